package handlers

import (
	"encoding/json"
	"net/http"
	"time"
)

// Health check endpoint
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

// Ready check endpoint
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	checks := map[string]bool{
		"storage": h.store.Ping(ctx) == nil,
	}
	if h.ch != nil {
		checks["clickhouse"] = h.ch.Ping(ctx) == nil
	}
	if h.redis != nil {
		checks["redis"] = h.redis.Ping(ctx).Err() == nil
	}

	allHealthy := true
	for _, ok := range checks {
		if !ok {
			allHealthy = false
			break
		}
	}

	status := http.StatusOK
	if !allHealthy {
		status = http.StatusServiceUnavailable
	}
	h.jsonResponse(w, status, map[string]interface{}{
		"ready":      allHealthy,
		"checks":     checks,
		"queueDepth": h.pool.QueueDepth(),
	})
}

func (h *Handler) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) errorResponse(w http.ResponseWriter, status int, message string) {
	h.jsonResponse(w, status, map[string]string{"error": message})
}
