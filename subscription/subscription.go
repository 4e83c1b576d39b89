// Package subscription manages webhook subscriptions: where events go, which
// events a target wants, and how hard courier tries to deliver them.
package subscription

import (
	"slices"
	"time"

	"github.com/xraph/courier/id"
	"github.com/xraph/courier/internal/entity"
)

// Subscription is a registered webhook target.
type Subscription struct {
	entity.Entity

	ID   id.ID  `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`

	// Secret keys the HMAC signature. Never serialized.
	Secret string `json:"-"`

	// Events is the ordered, non-empty set of event types delivered to URL.
	Events []string `json:"events"`

	Active bool `json:"active"`

	// RetryLimit is the total number of attempts a delivery gets. Zero
	// still allows the first attempt, with no retries.
	RetryLimit int `json:"retry_limit"`

	// TimeoutMs bounds each HTTP attempt.
	TimeoutMs int `json:"timeout_ms"`

	Description string `json:"description,omitempty"`
	CreatedBy   string `json:"created_by,omitempty"`
}

// Wants reports whether eventType is in the subscription's event set.
// Matching is exact.
func (s *Subscription) Wants(eventType string) bool {
	return slices.Contains(s.Events, eventType)
}

// Timeout returns TimeoutMs as a duration.
func (s *Subscription) Timeout() time.Duration {
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

// HasSecret reports whether a signing secret is set.
func (s *Subscription) HasSecret() bool { return s.Secret != "" }

// Clone returns a deep copy.
func (s *Subscription) Clone() *Subscription {
	cp := *s
	cp.Events = slices.Clone(s.Events)
	return &cp
}
