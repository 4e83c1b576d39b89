package api

import (
	"encoding/json"
	"net/http"

	"github.com/xraph/courier/catalog"
)

type triggerRequest struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

type triggerResponse struct {
	EventType string `json:"event_type"`
	Enqueued  int    `json:"enqueued"`
}

// triggerEvent fans an event out from the admin surface. The payload bytes
// are stored exactly as received.
func (h *Handler) triggerEvent(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	n, err := h.courier.Trigger(r.Context(), req.EventType, rawPayload(req.Payload))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, triggerResponse{EventType: req.EventType, Enqueued: n})
}

func (h *Handler) listEventTypes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.courier.Catalog().List())
}

func (h *Handler) getEventType(w http.ResponseWriter, r *http.Request) {
	def, err := h.courier.Catalog().Lookup(r.PathValue("name"))
	if err != nil {
		writeError(w, http.StatusNotFound, catalog.ErrUnknownType.Error())
		return
	}

	writeJSON(w, http.StatusOK, def)
}

// rawPayload keeps an absent payload as JSON null rather than empty bytes.
func rawPayload(p json.RawMessage) any {
	if len(p) == 0 {
		return nil
	}
	return p
}
