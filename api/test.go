package api

import (
	"encoding/json"
	"net/http"

	"github.com/xraph/courier/delivery"
)

type testDeliverRequest struct {
	URL       string          `json:"url"`
	Secret    string          `json:"secret"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

// testDeliver always answers 200; a failed send is reported in the body.
func (h *Handler) testDeliver(w http.ResponseWriter, r *http.Request) {
	var req testDeliverRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res := h.courier.TestDeliver(r.Context(), delivery.TestRequest{
		URL:       req.URL,
		Secret:    req.Secret,
		EventType: req.EventType,
		Payload:   rawPayload(req.Payload),
	})

	writeJSON(w, http.StatusOK, res)
}
