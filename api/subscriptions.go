package api

import (
	"net/http"

	"github.com/xraph/courier/id"
	"github.com/xraph/courier/subscription"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// subscriptionView is the response shape for a subscription. Secret is
// only filled in on create, the one place a secret leaves the service.
type subscriptionView struct {
	*subscription.Subscription
	HasSecret bool   `json:"has_secret"`
	Secret    string `json:"secret,omitempty"`
}

func viewOf(sub *subscription.Subscription) *subscriptionView {
	return &subscriptionView{Subscription: sub, HasSecret: sub.HasSecret()}
}

func viewsOf(subs []*subscription.Subscription) []*subscriptionView {
	views := make([]*subscriptionView, len(subs))
	for i, sub := range subs {
		views[i] = viewOf(sub)
	}
	return views
}

func createdView(sub *subscription.Subscription) *subscriptionView {
	v := viewOf(sub)
	v.Secret = sub.Secret
	return v
}

type secretResponse struct {
	Secret string `json:"secret"`
}

func (h *Handler) createSubscription(w http.ResponseWriter, r *http.Request) {
	var in subscription.Input
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sub, err := h.courier.Subscriptions().Create(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, createdView(sub))
}

func (h *Handler) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	opts := subscription.ListOpts{
		Offset: queryInt(r, "offset", 0),
		Limit:  pageSize(queryInt(r, "limit", defaultPageSize)),
		Active: queryBool(r, "active"),
	}

	subs, err := h.courier.Subscriptions().List(r.Context(), opts)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewsOf(subs))
}

func (h *Handler) getSubscription(w http.ResponseWriter, r *http.Request) {
	subID, ok := subscriptionID(w, r)
	if !ok {
		return
	}

	sub, err := h.courier.Subscriptions().Get(r.Context(), subID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, viewOf(sub))
}

func (h *Handler) updateSubscription(w http.ResponseWriter, r *http.Request) {
	subID, ok := subscriptionID(w, r)
	if !ok {
		return
	}

	var in subscription.UpdateInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sub, err := h.courier.Subscriptions().Update(r.Context(), subID, in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, viewOf(sub))
}

func (h *Handler) deleteSubscription(w http.ResponseWriter, r *http.Request) {
	subID, ok := subscriptionID(w, r)
	if !ok {
		return
	}

	if err := h.courier.Subscriptions().Delete(r.Context(), subID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) rotateSecret(w http.ResponseWriter, r *http.Request) {
	subID, ok := subscriptionID(w, r)
	if !ok {
		return
	}

	secret, err := h.courier.Subscriptions().RotateSecret(r.Context(), subID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, secretResponse{Secret: secret})
}

// subscriptionID parses the {id} path value. A malformed id cannot name an
// existing subscription, so it is reported as not found.
func subscriptionID(w http.ResponseWriter, r *http.Request) (id.ID, bool) {
	subID, err := id.ParseSubscriptionID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "subscription not found")
		return id.Nil, false
	}
	return subID, true
}

func pageSize(n int) int {
	switch {
	case n <= 0:
		return defaultPageSize
	case n > maxPageSize:
		return maxPageSize
	default:
		return n
	}
}
