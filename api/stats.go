package api

import (
	"net/http"
)

func (h *Handler) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.courier.Stats(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
