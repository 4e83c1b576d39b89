package api

import (
	"net/http"

	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/id"
)

func (h *Handler) listDeliveries(w http.ResponseWriter, r *http.Request) {
	subID, ok := subscriptionID(w, r)
	if !ok {
		return
	}

	opts := delivery.ListOpts{
		Offset: queryInt(r, "offset", 0),
		Limit:  pageSize(queryInt(r, "limit", defaultPageSize)),
	}
	if s := queryParam(r, "status"); s != "" {
		status := delivery.Status(s)
		if !status.Valid() {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown status " + s, Field: "status"})
			return
		}
		opts.Status = &status
	}

	page, err := h.courier.ListDeliveries(r.Context(), subID, opts)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) getDelivery(w http.ResponseWriter, r *http.Request) {
	delID, ok := deliveryID(w, r)
	if !ok {
		return
	}

	d, err := h.courier.Delivery(r.Context(), delID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) redeliver(w http.ResponseWriter, r *http.Request) {
	delID, ok := deliveryID(w, r)
	if !ok {
		return
	}

	d, err := h.courier.Redeliver(r.Context(), delID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, d)
}

func deliveryID(w http.ResponseWriter, r *http.Request) (id.ID, bool) {
	delID, err := id.ParseDeliveryID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "delivery not found")
		return id.Nil, false
	}
	return delID, true
}
