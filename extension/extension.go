package extension

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/xraph/forge"

	"github.com/xraph/courier"
	"github.com/xraph/courier/api"
	"github.com/xraph/courier/store"
	"github.com/xraph/courier/store/memory"
)

// ErrNotRegistered is returned by lifecycle calls made before Register.
var ErrNotRegistered = errors.New("courier extension: not registered")

// Extension embeds courier in a host application.
type Extension struct {
	config  Config
	opts    []courier.Option
	store   store.Store
	logger  *slog.Logger
	courier *courier.Courier
	handler http.Handler
}

// New creates an extension. Nothing is built until Register.
func New(opts ...ExtOption) *Extension {
	e := &Extension{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name identifies the extension.
func (e *Extension) Name() string { return "courier" }

// Register builds the Courier, runs migrations and prepares the admin
// handler.
func (e *Extension) Register(ctx context.Context) error {
	s, err := e.resolveStore()
	if err != nil {
		return err
	}

	opts := []courier.Option{
		courier.WithStore(s),
		courier.WithLogger(e.logger),
	}
	opts = append(opts, e.config.ToOptions()...)
	opts = append(opts, e.opts...)

	c, err := courier.New(opts...)
	if err != nil {
		return fmt.Errorf("courier extension: %w", err)
	}

	if !e.config.DisableMigrate {
		if err := s.Migrate(ctx); err != nil {
			return fmt.Errorf("courier extension: migrate: %w", err)
		}
	}

	e.courier = c
	if !e.config.DisableRoutes {
		e.handler = http.StripPrefix(e.basePath(), api.NewHandler(c, e.logger))
	}

	e.logger.InfoContext(ctx, "courier registered",
		"store_driver", e.config.StoreDriver,
		"base_path", e.basePath(),
		"routes", !e.config.DisableRoutes,
	)
	return nil
}

// Start launches the delivery worker loop.
func (e *Extension) Start(ctx context.Context) error {
	if e.courier == nil {
		return ErrNotRegistered
	}
	e.courier.Start(ctx)
	return nil
}

// Stop drains in-flight attempts and closes the store.
func (e *Extension) Stop(ctx context.Context) error {
	if e.courier == nil {
		return ErrNotRegistered
	}
	e.courier.Stop(ctx)
	return e.courier.Store().Close()
}

// Health pings the store.
func (e *Extension) Health(ctx context.Context) error {
	if e.courier == nil {
		return ErrNotRegistered
	}
	return e.courier.Store().Ping(ctx)
}

// Courier returns the managed instance, or nil before Register.
func (e *Extension) Courier() *courier.Courier { return e.courier }

// Config returns the effective configuration.
func (e *Extension) Config() Config { return e.config }

// Handler serves the admin API with BasePath stripped. It answers 404 to
// everything when routes are disabled or Register has not run.
func (e *Extension) Handler() http.Handler {
	if e.handler == nil {
		return http.NotFoundHandler()
	}
	return e.handler
}

// RegisterRoutes mounts the admin API on a Forge router under BasePath.
func (e *Extension) RegisterRoutes(router forge.Router, log forge.Logger) error {
	if e.courier == nil {
		return ErrNotRegistered
	}
	if e.config.DisableRoutes {
		return nil
	}
	api.NewForgeAPI(e.courier, log).RegisterRoutes(router.Group(e.basePath()))
	return nil
}

func (e *Extension) resolveStore() (store.Store, error) {
	if e.store != nil {
		return e.store, nil
	}
	switch e.config.StoreDriver {
	case "", DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("courier extension: store driver %q needs WithStore", e.config.StoreDriver)
	}
}

// basePath normalizes BasePath to "/prefix", or "" for the root.
func (e *Extension) basePath() string {
	p := strings.Trim(e.config.BasePath, "/")
	if p == "" {
		return ""
	}
	return "/" + p
}
