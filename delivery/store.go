package delivery

import (
	"context"
	"time"

	"github.com/xraph/courier/id"
)

// Store defines the persistence contract for webhook deliveries.
type Store interface {
	// Enqueue inserts a pending delivery.
	Enqueue(ctx context.Context, d *Delivery) error

	// ClaimDue atomically takes up to limit pending deliveries whose
	// next_attempt_at is at or before now, oldest due first, and moves their
	// next_attempt_at to now+lease. A delivery claimed by one caller is
	// invisible to other callers until the lease runs out.
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*Delivery, error)

	// UpdateDelivery writes back the outcome of attempt d.AttemptCount. The
	// write only lands while the stored row is still pending at attempt
	// d.AttemptCount-1; otherwise it returns ErrClaimLost and leaves the
	// row alone.
	UpdateDelivery(ctx context.Context, d *Delivery) error

	// GetDelivery returns ErrNotFound for an unknown id.
	GetDelivery(ctx context.Context, delID id.ID) (*Delivery, error)

	// ListBySubscription returns a subscription's deliveries, newest first.
	ListBySubscription(ctx context.Context, subID id.ID, opts ListOpts) ([]*Delivery, error)

	// CountBySubscription counts a subscription's deliveries, optionally
	// restricted to one status.
	CountBySubscription(ctx context.Context, subID id.ID, status *Status) (int64, error)

	// CountByStatus counts all deliveries grouped by status.
	CountByStatus(ctx context.Context) (map[Status]int64, error)
}
