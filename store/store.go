// Package store defines the composite Store interface for courier
// persistence.
//
// Each subsystem owns its store interface; the aggregate composes them and
// adds lifecycle methods.
package store

import (
	"context"

	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/subscription"
)

// Store is the aggregate persistence interface.
type Store interface {
	subscription.Store
	delivery.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}
