package handlers

import (
	"net/http"
	"strconv"
)

const (
	defaultLeaderboardLimit = 25
	maxLeaderboardLimit     = 100
)

// GetLeaderboard handles GET /api/v1/leaderboard?limit=N.
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := defaultLeaderboardLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.errorResponse(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}
	if limit > maxLeaderboardLimit {
		limit = maxLeaderboardLimit
	}

	players, err := h.leaderboard.Top(r.Context(), limit)
	if err != nil {
		h.logger.Errorw("Leaderboard query failed", "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Leaderboard unavailable")
		return
	}

	h.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"count":   len(players),
		"players": players,
	})
}
