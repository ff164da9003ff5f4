package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rankforge/rankforge/internal/models"
	"github.com/rankforge/rankforge/internal/storage"
)

// GetPlayerStats handles GET /api/v1/players/{steamID}/stats.
func (h *Handler) GetPlayerStats(w http.ResponseWriter, r *http.Request) {
	steamID := chi.URLParam(r, "steamID")
	if !models.IsSteamID(steamID) {
		h.errorResponse(w, http.StatusBadRequest, "Invalid steam id")
		return
	}

	stats, err := h.store.PlayerStats(r.Context(), steamID)
	if errors.Is(err, storage.ErrNotFound) {
		h.errorResponse(w, http.StatusNotFound, "Player not found")
		return
	}
	if err != nil {
		h.logger.Errorw("Player stats lookup failed", "steam_id", steamID, "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Lookup failed")
		return
	}

	h.jsonResponse(w, http.StatusOK, stats)
}
