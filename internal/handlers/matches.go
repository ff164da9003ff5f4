package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rankforge/rankforge/internal/storage"
)

// GetMatch handles GET /api/v1/matches/{id}: the game row plus its full
// event timeline and accolades.
func (h *Handler) GetMatch(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		h.errorResponse(w, http.StatusBadRequest, "Invalid match id")
		return
	}
	ctx := r.Context()

	game, err := h.store.Game(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		h.errorResponse(w, http.StatusNotFound, "Match not found")
		return
	}
	if err != nil {
		h.logger.Errorw("Match lookup failed", "game_id", id, "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Lookup failed")
		return
	}

	events, err := h.store.GameEvents(ctx, id)
	if err != nil {
		h.logger.Errorw("Match events lookup failed", "game_id", id, "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Lookup failed")
		return
	}
	accolades, err := h.store.Accolades(ctx, id)
	if err != nil {
		h.logger.Errorw("Match accolades lookup failed", "game_id", id, "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Lookup failed")
		return
	}

	h.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"game":      game,
		"events":    events,
		"accolades": accolades,
	})
}
