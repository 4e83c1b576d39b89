package courier

import "time"

// Config holds the tunables of a Courier instance.
type Config struct {
	// Concurrency bounds the number of attempts in flight.
	Concurrency int `json:"concurrency" yaml:"concurrency" mapstructure:"concurrency"`

	// PollInterval is the period of the background worker loop.
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval" mapstructure:"poll_interval"`

	// BatchSize is the maximum number of deliveries claimed per store call.
	BatchSize int `json:"batch_size" yaml:"batch_size" mapstructure:"batch_size"`

	// ClaimLease is how far a claim pushes next_attempt_at. It must exceed
	// the longest subscription timeout, or a slow attempt can be claimed twice.
	ClaimLease time.Duration `json:"claim_lease" yaml:"claim_lease" mapstructure:"claim_lease"`

	// DefaultTimeout applies to subscriptions created without a timeout and
	// to ad-hoc test sends.
	DefaultTimeout time.Duration `json:"default_timeout" yaml:"default_timeout" mapstructure:"default_timeout"`

	// DefaultRetryLimit applies to subscriptions created without a limit.
	DefaultRetryLimit int `json:"default_retry_limit" yaml:"default_retry_limit" mapstructure:"default_retry_limit"`

	// ShutdownTimeout caps how long Stop waits for in-flight attempts.
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`

	// MaxResponseBody caps the recorded response body, in bytes.
	MaxResponseBody int64 `json:"max_response_body" yaml:"max_response_body" mapstructure:"max_response_body"`

	// TestRate and TestBurst configure the per-host token bucket of the
	// ad-hoc test runner.
	TestRate  float64 `json:"test_rate" yaml:"test_rate" mapstructure:"test_rate"`
	TestBurst int     `json:"test_burst" yaml:"test_burst" mapstructure:"test_burst"`

	// StrictEventTypes rejects subscriptions naming event types the catalog
	// does not know.
	StrictEventTypes bool `json:"strict_event_types" yaml:"strict_event_types" mapstructure:"strict_event_types"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:       10,
		PollInterval:      1 * time.Second,
		BatchSize:         50,
		ClaimLease:        5 * time.Minute,
		DefaultTimeout:    30 * time.Second,
		DefaultRetryLimit: 3,
		ShutdownTimeout:   30 * time.Second,
		MaxResponseBody:   1024,
		TestRate:          1,
		TestBurst:         5,
	}
}
