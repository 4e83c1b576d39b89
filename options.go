package courier

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/xraph/courier/catalog"
	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/observability"
	"github.com/xraph/courier/store"
	"github.com/xraph/courier/subscription"
)

// Courier is the root webhook dispatcher.
type Courier struct {
	config          Config
	store           store.Store
	catalog         *catalog.Catalog
	subscriptionSvc *subscription.Service
	engine          *delivery.Engine
	tester          *delivery.Tester
	httpClient      *http.Client
	metrics         *observability.Metrics
	tracer          *observability.Tracer
	logger          *slog.Logger
	now             func() time.Time
}

// Option configures a Courier instance.
type Option func(*Courier) error

// New creates a Courier with the given options.
func New(opts ...Option) (*Courier, error) {
	c := &Courier{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.store == nil {
		return nil, ErrNoStore
	}
	c.wireServices()
	return c, nil
}

// WithStore sets the persistence backend.
func WithStore(s store.Store) Option {
	return func(c *Courier) error {
		c.store = s
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Courier) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithConfig replaces the whole configuration. Options after it still apply.
func WithConfig(cfg Config) Option {
	return func(c *Courier) error {
		c.config = cfg
		return nil
	}
}

// WithConcurrency sets how many attempts may run at once.
func WithConcurrency(n int) Option {
	return func(c *Courier) error {
		c.config.Concurrency = n
		return nil
	}
}

// WithPollInterval sets how often the worker loop looks for due deliveries.
func WithPollInterval(d time.Duration) Option {
	return func(c *Courier) error {
		c.config.PollInterval = d
		return nil
	}
}

// WithBatchSize sets the maximum number of deliveries claimed at once.
func WithBatchSize(n int) Option {
	return func(c *Courier) error {
		c.config.BatchSize = n
		return nil
	}
}

// WithClaimLease sets how long a claimed delivery stays hidden from other
// workers.
func WithClaimLease(d time.Duration) Option {
	return func(c *Courier) error {
		c.config.ClaimLease = d
		return nil
	}
}

// WithDefaultTimeout sets the attempt timeout for subscriptions created
// without one.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *Courier) error {
		c.config.DefaultTimeout = d
		return nil
	}
}

// WithDefaultRetryLimit sets the retry limit for subscriptions created
// without one.
func WithDefaultRetryLimit(n int) Option {
	return func(c *Courier) error {
		c.config.DefaultRetryLimit = n
		return nil
	}
}

// WithShutdownTimeout caps how long Stop waits for in-flight attempts.
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *Courier) error {
		c.config.ShutdownTimeout = d
		return nil
	}
}

// WithMaxResponseBody caps how many response bytes are kept per attempt.
func WithMaxResponseBody(n int64) Option {
	return func(c *Courier) error {
		c.config.MaxResponseBody = n
		return nil
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Courier) error {
		c.metrics = m
		return nil
	}
}

// WithTracer enables OpenTelemetry spans.
func WithTracer(t *observability.Tracer) Option {
	return func(c *Courier) error {
		c.tracer = t
		return nil
	}
}

// WithHTTPClient sets the client used for outbound requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Courier) error {
		c.httpClient = hc
		return nil
	}
}

// WithTestRateLimit sets the per-host budget of TestDeliver. A rate of zero
// disables the limit.
func WithTestRateLimit(perSecond float64, burst int) Option {
	return func(c *Courier) error {
		c.config.TestRate = perSecond
		c.config.TestBurst = burst
		return nil
	}
}

// WithStrictEventTypes rejects subscriptions to event types missing from
// the catalog.
func WithStrictEventTypes(strict bool) Option {
	return func(c *Courier) error {
		c.config.StrictEventTypes = strict
		return nil
	}
}

// WithCatalog replaces the built-in event catalog.
func WithCatalog(cat *catalog.Catalog) Option {
	return func(c *Courier) error {
		c.catalog = cat
		return nil
	}
}

// WithClock replaces the wall clock used for scheduling.
func WithClock(now func() time.Time) Option {
	return func(c *Courier) error {
		c.now = now
		return nil
	}
}
