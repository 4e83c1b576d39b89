package extension

import (
	"log/slog"

	"github.com/xraph/courier"
	"github.com/xraph/courier/store"
)

// ExtOption configures the courier extension.
type ExtOption func(*Extension)

// WithStore sets the persistence backend.
func WithStore(s store.Store) ExtOption {
	return func(e *Extension) {
		e.store = s
	}
}

// WithBasePath sets the URL prefix for the admin routes.
func WithBasePath(prefix string) ExtOption {
	return func(e *Extension) {
		e.config.BasePath = prefix
	}
}

// WithConfig sets the extension configuration directly.
func WithConfig(cfg Config) ExtOption {
	return func(e *Extension) {
		e.config = cfg
	}
}

// WithCourierOption appends a raw courier.Option, applied after the config.
func WithCourierOption(opt courier.Option) ExtOption {
	return func(e *Extension) {
		e.opts = append(e.opts, opt)
	}
}

// WithLogger sets the logger shared by the extension and its Courier.
func WithLogger(logger *slog.Logger) ExtOption {
	return func(e *Extension) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithDisableRoutes disables the admin API.
func WithDisableRoutes() ExtOption {
	return func(e *Extension) {
		e.config.DisableRoutes = true
	}
}

// WithDisableMigrate skips store migrations on Register.
func WithDisableMigrate() ExtOption {
	return func(e *Extension) {
		e.config.DisableMigrate = true
	}
}
