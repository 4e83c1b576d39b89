// Package delivery persists, schedules and executes webhook deliveries.
package delivery

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/xraph/courier/id"
	"github.com/xraph/courier/internal/entity"
)

// Status is the lifecycle state of a delivery.
type Status string

const (
	// StatusPending deliveries are waiting for their next attempt.
	StatusPending Status = "pending"

	// StatusDelivered deliveries received a 2xx response.
	StatusDelivered Status = "delivered"

	// StatusFailed deliveries used up their retries or lost their subscription.
	StatusFailed Status = "failed"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusPending, StatusDelivered, StatusFailed}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusDelivered, StatusFailed:
		return true
	}
	return false
}

// Delivery is one event bound for one subscription.
type Delivery struct {
	entity.Entity

	ID             id.ID  `json:"id"`
	SubscriptionID id.ID  `json:"subscription_id"`
	EventType      string `json:"event_type"`

	// Payload is the serialized event, fixed at trigger time. Every attempt
	// sends and signs exactly these bytes.
	Payload json.RawMessage `json:"payload"`

	Status       Status `json:"status"`
	AttemptCount int    `json:"attempt_count"`

	// Outcome of the most recent attempt.
	ResponseCode *int    `json:"response_code,omitempty"`
	ResponseBody *string `json:"response_body,omitempty"`
	Error        *string `json:"error,omitempty"`
	LatencyMs    int     `json:"latency_ms,omitempty"`

	DeliveredAt *time.Time `json:"delivered_at,omitempty"`

	// NextAttemptAt is nil once the delivery is terminal.
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
}

// New returns a pending delivery due now.
func New(subID id.ID, eventType string, payload []byte) *Delivery {
	e := entity.New()
	due := e.CreatedAt
	return &Delivery{
		Entity:         e,
		ID:             id.NewDeliveryID(),
		SubscriptionID: subID,
		EventType:      eventType,
		Payload:        slices.Clone(payload),
		Status:         StatusPending,
		NextAttemptAt:  &due,
	}
}

// IsTerminal reports whether no further attempts will be made.
func (d *Delivery) IsTerminal() bool {
	return d.Status == StatusDelivered || d.Status == StatusFailed
}

// Clone returns a deep copy, so stores can hand out records without sharing
// memory with their own state.
func (d *Delivery) Clone() *Delivery {
	cp := *d
	cp.Payload = slices.Clone(d.Payload)
	cp.ResponseCode = clonePtr(d.ResponseCode)
	cp.ResponseBody = clonePtr(d.ResponseBody)
	cp.Error = clonePtr(d.Error)
	cp.DeliveredAt = clonePtr(d.DeliveredAt)
	cp.NextAttemptAt = clonePtr(d.NextAttemptAt)
	return &cp
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// ListOpts configures filtering and pagination for delivery listing.
type ListOpts struct {
	Offset int
	Limit  int
	Status *Status
}
