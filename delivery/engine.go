package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/xraph/courier/id"
	"github.com/xraph/courier/observability"
	"github.com/xraph/courier/subscription"
)

// EngineStore is the interface the engine needs for delivery operations.
type EngineStore interface {
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*Delivery, error)
	UpdateDelivery(ctx context.Context, d *Delivery) error
	GetSubscription(ctx context.Context, subID id.ID) (*subscription.Subscription, error)
}

// EngineConfig holds engine configuration.
type EngineConfig struct {
	Concurrency     int
	PollInterval    time.Duration
	BatchSize       int
	ClaimLease      time.Duration
	ShutdownTimeout time.Duration
	MaxResponseBody int64
	HTTPClient      *http.Client
	Metrics         *observability.Metrics
	Tracer          *observability.Tracer

	// Now replaces the wall clock. Tests use it to pin backoff times.
	Now func() time.Time
}

const errSubscriptionGone = "subscription not found"

// Engine claims due deliveries and attempts them.
type Engine struct {
	store  EngineStore
	sender *Sender
	config EngineConfig
	logger *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	loopWG  sync.WaitGroup
	running sync.WaitGroup
}

// NewEngine creates a delivery engine. Zero config values get defaults.
func NewEngine(store EngineStore, cfg EngineConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.ClaimLease <= 0 {
		cfg.ClaimLease = 5 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}

	sender := NewSender(cfg.HTTPClient, cfg.MaxResponseBody)
	sender.now = cfg.Now

	return &Engine{
		store:  store,
		sender: sender,
		config: cfg,
		logger: logger,
	}
}

// Sender returns the engine's HTTP sender.
func (e *Engine) Sender() *Sender { return e.sender }

// ClaimLease returns how long a claimed delivery stays hidden from other
// claimers.
func (e *Engine) ClaimLease() time.Duration { return e.config.ClaimLease }

// Start runs ProcessDue every PollInterval until Stop or ctx is cancelled.
// Nothing but the store is consulted on start, so a restarted process picks
// up exactly where the persisted rows say it should.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return
	}

	ctx, e.cancel = context.WithCancel(ctx)

	e.loopWG.Add(1)
	go func() {
		defer e.loopWG.Done()
		e.pollLoop(ctx)
	}()
}

// Stop cancels the poll loop and waits for in-flight attempts, at most
// ShutdownTimeout (or until ctx is done).
func (e *Engine) Stop(ctx context.Context) {
	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()

	done := make(chan struct{})
	go func() {
		e.loopWG.Wait()
		e.running.Wait()
		close(done)
	}()

	var timeout <-chan time.Time
	if e.config.ShutdownTimeout > 0 {
		t := time.NewTimer(e.config.ShutdownTimeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case <-done:
	case <-timeout:
		e.logger.WarnContext(ctx, "shutdown timeout reached with attempts in flight")
	case <-ctx.Done():
	}
}

func (e *Engine) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(e.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.ProcessDue(ctx); err != nil && !errors.Is(err, context.Canceled) {
				e.logger.ErrorContext(ctx, "process due deliveries failed", "error", err)
			}
		}
	}
}

// ProcessDue claims due deliveries batch by batch and attempts them,
// at most Concurrency at a time, until a claim comes back empty. It returns
// the number of attempts made.
//
// Cancelling ctx stops further claims. Attempts already started run to
// completion, bounded by their subscription timeout.
func (e *Engine) ProcessDue(ctx context.Context) (int, error) {
	sem := make(chan struct{}, e.config.Concurrency)
	var wg sync.WaitGroup
	attempted := 0

	defer wg.Wait()

	for {
		if err := ctx.Err(); err != nil {
			return attempted, err
		}

		batch, err := e.store.ClaimDue(ctx, e.config.Now(), e.config.ClaimLease, e.config.BatchSize)
		if err != nil {
			return attempted, fmt.Errorf("courier: claim due deliveries: %w", err)
		}
		if len(batch) == 0 {
			return attempted, nil
		}

		for _, d := range batch {
			select {
			case <-ctx.Done():
				// Unstarted claims come back once their lease expires.
				return attempted, ctx.Err()
			case sem <- struct{}{}:
			}

			attempted++
			wg.Add(1)
			e.running.Add(1)
			go func(d *Delivery) {
				defer e.running.Done()
				defer wg.Done()
				defer func() { <-sem }()

				if err := e.Attempt(context.WithoutCancel(ctx), d); err != nil {
					e.logger.ErrorContext(ctx, "delivery attempt failed",
						"delivery_id", d.ID.String(), "error", err)
				}
			}(d)
		}
	}
}

// Attempt performs one delivery attempt and persists its outcome.
//
// An error means the outcome could not be loaded or stored. The delivery
// then stays claimed until its lease runs out and is retried after that.
func (e *Engine) Attempt(ctx context.Context, d *Delivery) error {
	ctx, span := e.config.Tracer.StartAttemptSpan(ctx, d.ID.String(), d.SubscriptionID.String(), d.EventType)

	d.AttemptCount++

	sub, err := e.store.GetSubscription(ctx, d.SubscriptionID)
	if err != nil {
		if !errors.Is(err, subscription.ErrNotFound) {
			e.config.Tracer.EndAttemptSpan(span, 0, 0, "error", err.Error())
			return fmt.Errorf("courier: load subscription %s: %w", d.SubscriptionID, err)
		}

		msg := errSubscriptionGone
		d.Status = StatusFailed
		d.Error = &msg
		d.NextAttemptAt = nil
		d.UpdatedAt = e.config.Now()

		e.config.Metrics.RecordAttempt(string(StatusFailed), 0)
		e.config.Tracer.EndAttemptSpan(span, 0, 0, string(StatusFailed), msg)
		e.logger.WarnContext(ctx, "subscription gone, delivery failed",
			"delivery_id", d.ID.String(), "subscription_id", d.SubscriptionID.String())

		return e.persist(ctx, d)
	}

	res := e.sender.Send(ctx, Request{
		URL:       sub.URL,
		Secret:    sub.Secret,
		EventType: d.EventType,
		Body:      d.Payload,
		Timeout:   e.attemptTimeout(sub.Timeout()),
	})

	decision := e.record(d, res, sub.RetryLimit)

	e.config.Metrics.RecordAttempt(decision.String(), float64(res.LatencyMs)/1000.0)
	e.config.Tracer.EndAttemptSpan(span, res.StatusCode, res.LatencyMs, decision.String(), res.Error)

	switch decision {
	case Delivered:
		e.logger.DebugContext(ctx, "delivered",
			"delivery_id", d.ID.String(), "status", res.StatusCode, "latency_ms", res.LatencyMs)
	case Retry:
		e.logger.DebugContext(ctx, "retry scheduled",
			"delivery_id", d.ID.String(), "attempt", d.AttemptCount, "next_at", d.NextAttemptAt)
	case Fail:
		e.logger.WarnContext(ctx, "delivery failed permanently",
			"delivery_id", d.ID.String(), "attempts", d.AttemptCount,
			"status", res.StatusCode, "error", res.Error)
	}

	return e.persist(ctx, d)
}

// record copies the attempt result onto d and moves it to its next state.
func (e *Engine) record(d *Delivery, res Result, retryLimit int) Decision {
	now := e.config.Now()

	d.LatencyMs = res.LatencyMs
	d.ResponseCode = nil
	d.ResponseBody = nil
	if res.StatusCode != 0 {
		code, body := res.StatusCode, res.Response
		d.ResponseCode = &code
		d.ResponseBody = &body
	}

	decision := Decide(res, d.AttemptCount, retryLimit)
	switch decision {
	case Delivered:
		d.Status = StatusDelivered
		d.Error = nil
		d.DeliveredAt = &now
		d.NextAttemptAt = nil
	case Retry:
		msg := res.Error
		next := now.Add(Backoff(d.AttemptCount))
		d.Error = &msg
		d.NextAttemptAt = &next
	case Fail:
		msg := res.Error
		d.Status = StatusFailed
		d.Error = &msg
		d.NextAttemptAt = nil
	}
	d.UpdatedAt = now

	return decision
}

// persist writes the outcome back. A lost claim means another worker has
// already recorded this attempt, so the outcome is dropped.
func (e *Engine) persist(ctx context.Context, d *Delivery) error {
	err := e.store.UpdateDelivery(ctx, d)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrClaimLost):
		e.logger.WarnContext(ctx, "claim lost, attempt outcome dropped",
			"delivery_id", d.ID.String(), "attempt", d.AttemptCount)
		return nil
	default:
		return fmt.Errorf("courier: update delivery %s: %w", d.ID, err)
	}
}

// leaseMargin is the time kept free at the end of a claim for writing the
// outcome back.
const leaseMargin = 30 * time.Second

// MaxAttemptTimeout is the longest request timeout that still finishes
// inside a claim of the given lease.
func MaxAttemptTimeout(lease time.Duration) time.Duration {
	return lease - min(leaseMargin, lease/2)
}

// attemptTimeout bounds the subscription timeout by the claim lease.
func (e *Engine) attemptTimeout(timeout time.Duration) time.Duration {
	return min(timeout, MaxAttemptTimeout(e.config.ClaimLease))
}
