package courier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xraph/courier/catalog"
	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/ratelimit"
	"github.com/xraph/courier/store"
	"github.com/xraph/courier/subscription"
)

// wireServices initializes the internal services after options have been applied.
func (c *Courier) wireServices() {
	if c.catalog == nil {
		c.catalog = catalog.New(c.logger, catalog.Builtin()...)
	}

	c.engine = delivery.NewEngine(c.store, delivery.EngineConfig{
		Concurrency:     c.config.Concurrency,
		PollInterval:    c.config.PollInterval,
		BatchSize:       c.config.BatchSize,
		ClaimLease:      c.config.ClaimLease,
		ShutdownTimeout: c.config.ShutdownTimeout,
		MaxResponseBody: c.config.MaxResponseBody,
		HTTPClient:      c.httpClient,
		Metrics:         c.metrics,
		Tracer:          c.tracer,
		Now:             c.now,
	}, c.logger)

	// A subscription timeout must end before the claim on its delivery does.
	defaults := subscription.Defaults{
		RetryLimit: c.config.DefaultRetryLimit,
		Timeout:    c.config.DefaultTimeout,
		MaxTimeout: delivery.MaxAttemptTimeout(c.engine.ClaimLease()),
	}
	if c.config.StrictEventTypes {
		defaults.KnownEventType = c.catalog.Known
	}
	c.subscriptionSvc = subscription.NewService(c.store, defaults, c.logger)

	var limiter *ratelimit.Limiter
	if c.config.TestRate > 0 {
		limiter = ratelimit.New(c.config.TestRate, c.config.TestBurst)
	}
	c.tester = delivery.NewTester(c.engine.Sender(), limiter, c.config.DefaultTimeout)
}

// Start runs the background worker loop.
func (c *Courier) Start(ctx context.Context) {
	c.engine.Start(ctx)
}

// Stop halts the worker loop and waits for in-flight attempts.
func (c *Courier) Stop(ctx context.Context) {
	c.engine.Stop(ctx)
}

// Trigger records one pending delivery for every active subscription that
// wants eventType and returns how many were recorded.
//
// The payload is serialized once; json.RawMessage and []byte are used
// verbatim. Only a blank event type or an invalid payload is returned as
// an error. A failure to look up subscriptions, or to record one
// subscription's delivery, is logged and does not fail the call.
func (c *Courier) Trigger(ctx context.Context, eventType string, payload any) (int, error) {
	ctx, span := c.tracer.StartTriggerSpan(ctx, eventType)

	n, err := c.trigger(ctx, eventType, payload)
	c.tracer.EndTriggerSpan(span, n, err)
	if err == nil {
		c.metrics.RecordTrigger(eventType)
	}
	return n, err
}

func (c *Courier) trigger(ctx context.Context, eventType string, payload any) (int, error) {
	if strings.TrimSpace(eventType) == "" {
		return 0, ErrInvalidEventType
	}

	body, err := delivery.EncodePayload(payload)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrPayloadInvalid, err.Error())
	}
	if err := c.catalog.Validate(eventType, body); err != nil {
		return 0, fmt.Errorf("%w: %s", ErrPayloadInvalid, err.Error())
	}

	// Past input validation Trigger never fails its caller: an unreadable
	// subscription registry drops the event with a log entry.
	subs, err := c.store.MatchSubscriptions(ctx, eventType)
	if err != nil {
		c.logger.ErrorContext(ctx, "match subscriptions failed, event dropped",
			"event_type", eventType,
			"error", err,
		)
		return 0, nil
	}

	enqueued := 0
	for _, sub := range subs {
		d := c.newDelivery(sub.ID, eventType, body)
		if err := c.store.Enqueue(ctx, d); err != nil {
			c.logger.WarnContext(ctx, "enqueue delivery failed",
				"subscription_id", sub.ID.String(),
				"event_type", eventType,
				"error", err,
			)
			continue
		}
		enqueued++
	}

	c.logger.DebugContext(ctx, "event triggered",
		"event_type", eventType,
		"matched", len(subs),
		"enqueued", enqueued,
	)

	return enqueued, nil
}

func (c *Courier) newDelivery(subID id.ID, eventType string, body []byte) *delivery.Delivery {
	d := delivery.New(subID, eventType, body)
	if c.now != nil {
		due := c.now()
		d.NextAttemptAt = &due
	}
	return d
}

// ProcessDue attempts every delivery that is due now and returns how many
// attempts were made.
func (c *Courier) ProcessDue(ctx context.Context) (int, error) {
	return c.engine.ProcessDue(ctx)
}

// TestDeliver sends one signed request to an arbitrary URL. Nothing is
// persisted and nothing is retried.
func (c *Courier) TestDeliver(ctx context.Context, req delivery.TestRequest) *delivery.TestResult {
	if req.EventType == "" {
		req.EventType = "webhook-test"
	}
	return c.tester.TestDeliver(ctx, req)
}

// Redeliver enqueues a fresh pending delivery carrying the same
// subscription, event type and payload bytes as deliveryID. The original
// delivery is left as it is.
func (c *Courier) Redeliver(ctx context.Context, deliveryID id.ID) (*delivery.Delivery, error) {
	orig, err := c.store.GetDelivery(ctx, deliveryID)
	if err != nil {
		return nil, err
	}

	if _, err := c.store.GetSubscription(ctx, orig.SubscriptionID); err != nil {
		return nil, err
	}

	d := c.newDelivery(orig.SubscriptionID, orig.EventType, orig.Payload)
	if err := c.store.Enqueue(ctx, d); err != nil {
		return nil, fmt.Errorf("courier: enqueue redelivery: %w", err)
	}

	c.logger.InfoContext(ctx, "delivery requeued",
		"delivery_id", d.ID.String(),
		"original_id", orig.ID.String(),
	)
	return d, nil
}

// Stats summarizes the delivery queue.
type Stats struct {
	Subscriptions int                       `json:"subscriptions"`
	Deliveries    map[delivery.Status]int64 `json:"deliveries"`
}

// Stats counts subscriptions and deliveries by status.
func (c *Courier) Stats(ctx context.Context) (*Stats, error) {
	counts, err := c.store.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("courier: count deliveries: %w", err)
	}

	subs, err := c.store.ListSubscriptions(ctx, subscription.ListOpts{})
	if err != nil {
		return nil, fmt.Errorf("courier: list subscriptions: %w", err)
	}

	c.metrics.SetPending(counts[delivery.StatusPending])

	return &Stats{Subscriptions: len(subs), Deliveries: counts}, nil
}

// Delivery returns one delivery.
func (c *Courier) Delivery(ctx context.Context, deliveryID id.ID) (*delivery.Delivery, error) {
	return c.store.GetDelivery(ctx, deliveryID)
}

// DeliveryPage is one page of a subscription's deliveries.
type DeliveryPage struct {
	Items  []*delivery.Delivery `json:"items"`
	Total  int64                `json:"total"`
	Offset int                  `json:"offset"`
	Limit  int                  `json:"limit"`
}

// ListDeliveries returns a subscription's deliveries newest first. The
// subscription must exist.
func (c *Courier) ListDeliveries(ctx context.Context, subID id.ID, opts delivery.ListOpts) (*DeliveryPage, error) {
	if _, err := c.store.GetSubscription(ctx, subID); err != nil {
		return nil, err
	}

	items, err := c.store.ListBySubscription(ctx, subID, opts)
	if err != nil {
		return nil, fmt.Errorf("courier: list deliveries: %w", err)
	}
	total, err := c.store.CountBySubscription(ctx, subID, opts.Status)
	if err != nil {
		return nil, fmt.Errorf("courier: count deliveries: %w", err)
	}
	if items == nil {
		items = []*delivery.Delivery{}
	}

	return &DeliveryPage{Items: items, Total: total, Offset: opts.Offset, Limit: opts.Limit}, nil
}

// Subscriptions returns the subscription management service.
func (c *Courier) Subscriptions() *subscription.Service {
	return c.subscriptionSvc
}

// Catalog returns the event type catalog.
func (c *Courier) Catalog() *catalog.Catalog {
	return c.catalog
}

// Store returns the underlying store.
func (c *Courier) Store() store.Store {
	return c.store
}

// IsNotFound reports whether err means a subscription or delivery does not
// exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSubscriptionNotFound) || errors.Is(err, ErrDeliveryNotFound)
}
