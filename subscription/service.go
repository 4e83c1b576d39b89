package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/xraph/courier/id"
	"github.com/xraph/courier/internal/entity"
	"github.com/xraph/courier/signature"
)

// Defaults holds the values applied when an Input leaves them unset.
type Defaults struct {
	RetryLimit int
	Timeout    time.Duration

	// MaxTimeout caps TimeoutMs. Zero means no cap.
	MaxTimeout time.Duration

	// KnownEventType, when set, rejects event names it returns false for.
	KnownEventType func(name string) bool
}

// Service provides subscription management operations.
type Service struct {
	store    Store
	defaults Defaults
	logger   *slog.Logger
}

// NewService creates a subscription service. Zero defaults fall back to a
// retry limit of 3 and a 30s timeout.
func NewService(store Store, defaults Defaults, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if defaults.RetryLimit <= 0 {
		defaults.RetryLimit = 3
	}
	if defaults.Timeout <= 0 {
		defaults.Timeout = 30 * time.Second
	}
	return &Service{
		store:    store,
		defaults: defaults,
		logger:   logger,
	}
}

// Create registers a new subscription. A secret is generated when the
// input carries none.
func (svc *Service) Create(ctx context.Context, in Input) (*Subscription, error) {
	if err := validateURL(in.URL); err != nil {
		return nil, err
	}

	events, err := svc.normalizeEvents(in.Events)
	if err != nil {
		return nil, err
	}

	retryLimit := svc.defaults.RetryLimit
	if in.RetryLimit != nil {
		if err := validateRetryLimit(*in.RetryLimit); err != nil {
			return nil, err
		}
		retryLimit = *in.RetryLimit
	}

	timeoutMs := in.TimeoutMs
	if timeoutMs == 0 {
		timeoutMs = int(min(svc.defaults.Timeout, svc.maxTimeout()) / time.Millisecond)
	}
	if err := svc.validateTimeout(timeoutMs); err != nil {
		return nil, err
	}

	secret := in.Secret
	if secret == "" {
		secret, err = signature.GenerateSecret()
		if err != nil {
			return nil, err
		}
	}

	active := true
	if in.Active != nil {
		active = *in.Active
	}

	sub := &Subscription{
		Entity:      entity.New(),
		ID:          id.NewSubscriptionID(),
		Name:        in.Name,
		URL:         in.URL,
		Secret:      secret,
		Events:      events,
		Active:      active,
		RetryLimit:  retryLimit,
		TimeoutMs:   timeoutMs,
		Description: in.Description,
		CreatedBy:   in.CreatedBy,
	}

	if err := svc.store.CreateSubscription(ctx, sub); err != nil {
		return nil, err
	}

	svc.logger.DebugContext(ctx, "subscription created",
		"subscription_id", sub.ID.String(),
		"events", sub.Events,
	)

	return sub, nil
}

// Get returns a subscription by ID.
func (svc *Service) Get(ctx context.Context, subID id.ID) (*Subscription, error) {
	return svc.store.GetSubscription(ctx, subID)
}

// List returns subscriptions oldest first.
func (svc *Service) List(ctx context.Context, opts ListOpts) ([]*Subscription, error) {
	return svc.store.ListSubscriptions(ctx, opts)
}

// Update applies a partial patch. Patched fields are validated the same
// way Create validates them.
func (svc *Service) Update(ctx context.Context, subID id.ID, in UpdateInput) (*Subscription, error) {
	sub, err := svc.store.GetSubscription(ctx, subID)
	if err != nil {
		return nil, err
	}

	if in.URL != nil {
		if err := validateURL(*in.URL); err != nil {
			return nil, err
		}
		sub.URL = *in.URL
	}
	if in.Events != nil {
		events, err := svc.normalizeEvents(*in.Events)
		if err != nil {
			return nil, err
		}
		sub.Events = events
	}
	if in.RetryLimit != nil {
		if err := validateRetryLimit(*in.RetryLimit); err != nil {
			return nil, err
		}
		sub.RetryLimit = *in.RetryLimit
	}
	if in.TimeoutMs != nil {
		if err := svc.validateTimeout(*in.TimeoutMs); err != nil {
			return nil, err
		}
		sub.TimeoutMs = *in.TimeoutMs
	}
	if in.Secret != nil {
		if *in.Secret == "" {
			return nil, &ValidationError{Field: "secret", Message: "must not be empty"}
		}
		sub.Secret = *in.Secret
	}
	if in.Name != nil {
		sub.Name = *in.Name
	}
	if in.Active != nil {
		sub.Active = *in.Active
	}
	if in.Description != nil {
		sub.Description = *in.Description
	}

	sub.Touch()

	if err := svc.store.UpdateSubscription(ctx, sub); err != nil {
		return nil, err
	}

	return sub, nil
}

// Delete removes a subscription. Its deliveries are kept; pending ones
// fail on their next attempt.
func (svc *Service) Delete(ctx context.Context, subID id.ID) error {
	return svc.store.DeleteSubscription(ctx, subID)
}

// RotateSecret replaces the signing secret and returns the new value.
func (svc *Service) RotateSecret(ctx context.Context, subID id.ID) (string, error) {
	sub, err := svc.store.GetSubscription(ctx, subID)
	if err != nil {
		return "", err
	}

	secret, err := signature.GenerateSecret()
	if err != nil {
		return "", err
	}

	sub.Secret = secret
	sub.Touch()
	if err := svc.store.UpdateSubscription(ctx, sub); err != nil {
		return "", err
	}

	return secret, nil
}

// validateRetryLimit accepts zero, which means one attempt and no retries.
func validateRetryLimit(n int) error {
	if n < 0 {
		return &ValidationError{Field: "retry_limit", Message: "must not be negative"}
	}
	return nil
}

func (svc *Service) maxTimeout() time.Duration {
	if svc.defaults.MaxTimeout <= 0 {
		return time.Duration(math.MaxInt64)
	}
	return svc.defaults.MaxTimeout
}

// validateTimeout keeps an attempt inside the claim it runs under.
func (svc *Service) validateTimeout(ms int) error {
	if ms <= 0 {
		return &ValidationError{Field: "timeout_ms", Message: "must be positive"}
	}
	if limit := svc.defaults.MaxTimeout; limit > 0 && time.Duration(ms)*time.Millisecond > limit {
		return &ValidationError{
			Field:   "timeout_ms",
			Message: fmt.Sprintf("must not exceed %d", limit.Milliseconds()),
		}
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || raw == "" {
		return &ValidationError{Field: "url", Message: "invalid URL"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ValidationError{Field: "url", Message: "scheme must be http or https"}
	}
	if u.Host == "" {
		return &ValidationError{Field: "url", Message: "host is required"}
	}
	return nil
}

// normalizeEvents rejects empty sets and blank names, and drops duplicates
// while keeping first-seen order.
func (svc *Service) normalizeEvents(events []string) ([]string, error) {
	if len(events) == 0 {
		return nil, &ValidationError{Field: "events", Message: "at least one event type required"}
	}

	seen := make(map[string]struct{}, len(events))
	out := make([]string, 0, len(events))
	for _, e := range events {
		if strings.TrimSpace(e) == "" {
			return nil, &ValidationError{Field: "events", Message: "event type must not be blank"}
		}
		if svc.defaults.KnownEventType != nil && !svc.defaults.KnownEventType(e) {
			return nil, &ValidationError{Field: "events", Message: "unknown event type " + e}
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out, nil
}
