package extension

import (
	"github.com/xraph/courier"
)

// Store drivers understood by the daemon. Anything but memory needs an
// opened grove handle and is attached with WithStore.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
	DriverMongo    = "mongo"
)

// Config holds configuration for the courier extension. Fields can be set
// programmatically via ExtOption functions or loaded from YAML (under the
// "courier" key) or COURIER_ environment variables.
type Config struct {
	// Config embeds the core courier configuration.
	courier.Config `json:",inline" yaml:",inline" mapstructure:",squash"`

	// BasePath is the URL prefix for the admin routes (default: "/webhooks").
	BasePath string `json:"base_path" yaml:"base_path" mapstructure:"base_path"`

	// DisableRoutes turns off the admin API.
	DisableRoutes bool `json:"disable_routes" yaml:"disable_routes" mapstructure:"disable_routes"`

	// DisableMigrate skips store migrations on Register.
	DisableMigrate bool `json:"disable_migrate" yaml:"disable_migrate" mapstructure:"disable_migrate"`

	// StoreDriver names the backend. Only "memory" is built by the extension
	// itself; the rest are reported so a missing WithStore fails loudly.
	StoreDriver string `json:"store_driver" yaml:"store_driver" mapstructure:"store_driver"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Config:      courier.DefaultConfig(),
		BasePath:    "/webhooks",
		StoreDriver: DriverMemory,
	}
}

// ToOptions converts the embedded Config into courier.Option values. Zero
// fields are skipped so the core defaults stay in force.
func (c Config) ToOptions() []courier.Option {
	var opts []courier.Option

	if c.Concurrency > 0 {
		opts = append(opts, courier.WithConcurrency(c.Concurrency))
	}
	if c.PollInterval > 0 {
		opts = append(opts, courier.WithPollInterval(c.PollInterval))
	}
	if c.BatchSize > 0 {
		opts = append(opts, courier.WithBatchSize(c.BatchSize))
	}
	if c.ClaimLease > 0 {
		opts = append(opts, courier.WithClaimLease(c.ClaimLease))
	}
	if c.DefaultTimeout > 0 {
		opts = append(opts, courier.WithDefaultTimeout(c.DefaultTimeout))
	}
	if c.DefaultRetryLimit > 0 {
		opts = append(opts, courier.WithDefaultRetryLimit(c.DefaultRetryLimit))
	}
	if c.ShutdownTimeout > 0 {
		opts = append(opts, courier.WithShutdownTimeout(c.ShutdownTimeout))
	}
	if c.MaxResponseBody > 0 {
		opts = append(opts, courier.WithMaxResponseBody(c.MaxResponseBody))
	}
	if c.TestRate > 0 {
		opts = append(opts, courier.WithTestRateLimit(c.TestRate, c.TestBurst))
	}
	if c.StrictEventTypes {
		opts = append(opts, courier.WithStrictEventTypes(true))
	}

	return opts
}
