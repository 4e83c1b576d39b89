package subscription

import (
	"context"

	"github.com/xraph/courier/id"
)

// Store is the persistence contract for subscriptions.
type Store interface {
	CreateSubscription(ctx context.Context, s *Subscription) error

	// GetSubscription returns ErrNotFound for an unknown id.
	GetSubscription(ctx context.Context, subID id.ID) (*Subscription, error)

	// UpdateSubscription replaces the stored record. ErrNotFound if absent.
	UpdateSubscription(ctx context.Context, s *Subscription) error

	// DeleteSubscription removes the record and leaves its deliveries.
	DeleteSubscription(ctx context.Context, subID id.ID) error

	// ListSubscriptions returns subscriptions oldest first.
	ListSubscriptions(ctx context.Context, opts ListOpts) ([]*Subscription, error)

	// MatchSubscriptions returns the active subscriptions whose event set
	// contains eventType.
	MatchSubscriptions(ctx context.Context, eventType string) ([]*Subscription, error)
}
