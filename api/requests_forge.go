package api

import (
	"encoding/json"

	"github.com/xraph/courier/subscription"
)

// ---------------------------------------------------------------------------
// Subscription requests
// ---------------------------------------------------------------------------

// CreateSubscriptionForgeRequest binds the body for POST /subscriptions.
type CreateSubscriptionForgeRequest struct {
	Name        string   `description:"Display name"                                json:"name"`
	URL         string   `description:"Webhook delivery URL"                        json:"url"`
	Secret      string   `description:"Signing secret (generated when empty)"       json:"secret,omitempty"`
	Events      []string `description:"Event types to deliver"                      json:"events"`
	Active      *bool    `description:"Whether new events are delivered (default true)" json:"active,omitempty"`
	RetryLimit  *int     `description:"Total attempts per delivery (0 = no retries)" json:"retry_limit,omitempty"`
	TimeoutMs   int      `description:"Per-attempt timeout in milliseconds"         json:"timeout_ms,omitempty"`
	Description string   `description:"Free-form description"                       json:"description,omitempty"`
	CreatedBy   string   `description:"Creator reference"                           json:"created_by,omitempty"`
}

func (r *CreateSubscriptionForgeRequest) input() subscription.Input {
	return subscription.Input{
		Name:        r.Name,
		URL:         r.URL,
		Secret:      r.Secret,
		Events:      r.Events,
		Active:      r.Active,
		RetryLimit:  r.RetryLimit,
		TimeoutMs:   r.TimeoutMs,
		Description: r.Description,
		CreatedBy:   r.CreatedBy,
	}
}

// ListSubscriptionsForgeRequest binds query parameters for GET /subscriptions.
type ListSubscriptionsForgeRequest struct {
	Active string `description:"Filter by active flag (true/false)" query:"active"`
	Offset int    `description:"Pagination offset"                  query:"offset"`
	Limit  int    `description:"Page size (default 50)"             query:"limit"`
}

// GetSubscriptionForgeRequest binds the path for GET /subscriptions/:subscriptionId.
type GetSubscriptionForgeRequest struct {
	SubscriptionID string `description:"Subscription identifier" path:"subscriptionId"`
}

// UpdateSubscriptionForgeRequest binds the path and body for PATCH /subscriptions/:subscriptionId.
type UpdateSubscriptionForgeRequest struct {
	SubscriptionID string    `description:"Subscription identifier"       path:"subscriptionId"`
	Name           *string   `description:"Display name"                  json:"name,omitempty"`
	URL            *string   `description:"Webhook delivery URL"          json:"url,omitempty"`
	Secret         *string   `description:"Signing secret"                json:"secret,omitempty"`
	Events         *[]string `description:"Event types to deliver"        json:"events,omitempty"`
	Active         *bool     `description:"Whether new events are delivered" json:"active,omitempty"`
	RetryLimit     *int      `description:"Total attempts per delivery"   json:"retry_limit,omitempty"`
	TimeoutMs      *int      `description:"Per-attempt timeout in ms"     json:"timeout_ms,omitempty"`
	Description    *string   `description:"Free-form description"         json:"description,omitempty"`
}

func (r *UpdateSubscriptionForgeRequest) input() subscription.UpdateInput {
	return subscription.UpdateInput{
		Name:        r.Name,
		URL:         r.URL,
		Secret:      r.Secret,
		Events:      r.Events,
		Active:      r.Active,
		RetryLimit:  r.RetryLimit,
		TimeoutMs:   r.TimeoutMs,
		Description: r.Description,
	}
}

// SubscriptionActionForgeRequest binds the path for delete and rotate-secret.
type SubscriptionActionForgeRequest struct {
	SubscriptionID string `description:"Subscription identifier" path:"subscriptionId"`
}

// ---------------------------------------------------------------------------
// Delivery requests
// ---------------------------------------------------------------------------

// ListDeliveriesForgeRequest binds path and query for GET /subscriptions/:subscriptionId/deliveries.
type ListDeliveriesForgeRequest struct {
	SubscriptionID string `description:"Subscription identifier"                 path:"subscriptionId"`
	Status         string `description:"Filter by status (pending, delivered, failed)" query:"status"`
	Offset         int    `description:"Pagination offset"                       query:"offset"`
	Limit          int    `description:"Page size (default 50)"                  query:"limit"`
}

// DeliveryActionForgeRequest binds the path for GET /deliveries/:deliveryId and redeliver.
type DeliveryActionForgeRequest struct {
	DeliveryID string `description:"Delivery identifier" path:"deliveryId"`
}

// ---------------------------------------------------------------------------
// Event requests
// ---------------------------------------------------------------------------

// TriggerForgeRequest binds the body for POST /events.
type TriggerForgeRequest struct {
	EventType string          `description:"Event type name (e.g. message-received)" json:"event_type"`
	Payload   json.RawMessage `description:"Event payload, stored and sent verbatim"  json:"payload"`
}

// ListEventTypesForgeRequest is empty; GET /event-types has no parameters.
type ListEventTypesForgeRequest struct{}

// GetEventTypeForgeRequest binds the path for GET /event-types/:name.
type GetEventTypeForgeRequest struct {
	Name string `description:"Event type name" path:"name"`
}

// TestDeliverForgeRequest binds the body for POST /test.
type TestDeliverForgeRequest struct {
	URL       string          `description:"Target URL"                         json:"url"`
	Secret    string          `description:"Signing secret"                     json:"secret"`
	EventType string          `description:"Event type header (default webhook-test)" json:"event_type,omitempty"`
	Payload   json.RawMessage `description:"Payload sent verbatim"              json:"payload,omitempty"`
}

// ---------------------------------------------------------------------------
// Stats requests
// ---------------------------------------------------------------------------

// StatsForgeRequest is empty; GET /stats has no parameters.
type StatsForgeRequest struct{}

// ---------------------------------------------------------------------------
// Responses
// ---------------------------------------------------------------------------

// SecretForgeResponse is the response for POST /subscriptions/:subscriptionId/rotate-secret.
type SecretForgeResponse struct {
	Secret string `json:"secret"`
}

// TriggerForgeResponse is the response for POST /events.
type TriggerForgeResponse struct {
	EventType string `json:"event_type"`
	Enqueued  int    `json:"enqueued"`
}
