// Package memory provides an in-memory Store for tests and single-process
// deployments. Records are copied in and out, so callers never share memory
// with the store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/courier"
	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/subscription"
	cstore "github.com/xraph/courier/store"
)

// compile-time interface check.
var _ cstore.Store = (*Store)(nil)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	subscriptions map[string]*subscription.Subscription
	deliveries    map[string]*delivery.Delivery

	closed bool
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		subscriptions: make(map[string]*subscription.Subscription),
		deliveries:    make(map[string]*delivery.Delivery),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the in-memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping reports ErrStoreClosed after Close.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return courier.ErrStoreClosed
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// subscription.Store
// ──────────────────────────────────────────────────

// CreateSubscription stores a copy of sub.
func (s *Store) CreateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[sub.ID.String()] = sub.Clone()
	return nil
}

// GetSubscription returns a copy of the subscription.
func (s *Store) GetSubscription(_ context.Context, subID id.ID) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subscriptions[subID.String()]
	if !ok {
		return nil, courier.ErrSubscriptionNotFound
	}
	return sub.Clone(), nil
}

// UpdateSubscription replaces an existing subscription.
func (s *Store) UpdateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscriptions[sub.ID.String()]; !ok {
		return courier.ErrSubscriptionNotFound
	}
	s.subscriptions[sub.ID.String()] = sub.Clone()
	return nil
}

// DeleteSubscription removes a subscription. Deliveries are untouched.
func (s *Store) DeleteSubscription(_ context.Context, subID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscriptions[subID.String()]; !ok {
		return courier.ErrSubscriptionNotFound
	}
	delete(s.subscriptions, subID.String())
	return nil
}

// ListSubscriptions returns subscriptions oldest first.
func (s *Store) ListSubscriptions(_ context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*subscription.Subscription
	for _, sub := range s.subscriptions {
		if opts.Active != nil && sub.Active != *opts.Active {
			continue
		}
		result = append(result, sub.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		return lessByCreated(result[i].CreatedAt, result[j].CreatedAt, result[i].ID, result[j].ID)
	})

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// MatchSubscriptions returns the active subscriptions that want eventType.
func (s *Store) MatchSubscriptions(_ context.Context, eventType string) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*subscription.Subscription
	for _, sub := range s.subscriptions {
		if sub.Active && sub.Wants(eventType) {
			result = append(result, sub.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return lessByCreated(result[i].CreatedAt, result[j].CreatedAt, result[i].ID, result[j].ID)
	})

	return result, nil
}

// ──────────────────────────────────────────────────
// delivery.Store
// ──────────────────────────────────────────────────

// Enqueue stores a copy of d.
func (s *Store) Enqueue(_ context.Context, d *delivery.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries[d.ID.String()] = d.Clone()
	return nil
}

// ClaimDue picks due pending deliveries under the write lock and pushes
// their next attempt to now+lease before releasing it.
func (s *Store) ClaimDue(_ context.Context, now time.Time, lease time.Duration, limit int) ([]*delivery.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*delivery.Delivery
	for _, d := range s.deliveries {
		if d.Status != delivery.StatusPending {
			continue
		}
		if d.NextAttemptAt != nil && d.NextAttemptAt.After(now) {
			continue
		}
		due = append(due, d)
	}

	// A nil next attempt sorts first: it has been due since creation.
	sort.Slice(due, func(i, j int) bool {
		a, b := due[i].NextAttemptAt, due[j].NextAttemptAt
		if a == nil || b == nil {
			return a == nil && b != nil
		}
		return a.Before(*b)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	leaseUntil := now.Add(lease)
	result := make([]*delivery.Delivery, 0, len(due))
	for _, d := range due {
		t := leaseUntil
		d.NextAttemptAt = &t
		result = append(result, d.Clone())
	}

	return result, nil
}

// UpdateDelivery replaces a delivery that is still pending at the attempt
// before d's.
func (s *Store) UpdateDelivery(_ context.Context, d *delivery.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.deliveries[d.ID.String()]
	if !ok {
		return courier.ErrDeliveryNotFound
	}
	if cur.Status != delivery.StatusPending || cur.AttemptCount != d.AttemptCount-1 {
		return courier.ErrClaimLost
	}
	s.deliveries[d.ID.String()] = d.Clone()
	return nil
}

// GetDelivery returns a copy of a delivery.
func (s *Store) GetDelivery(_ context.Context, delID id.ID) (*delivery.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.deliveries[delID.String()]
	if !ok {
		return nil, courier.ErrDeliveryNotFound
	}
	return d.Clone(), nil
}

// ListBySubscription returns a subscription's deliveries, newest first.
func (s *Store) ListBySubscription(_ context.Context, subID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*delivery.Delivery
	for _, d := range s.deliveries {
		if d.SubscriptionID.String() != subID.String() {
			continue
		}
		if opts.Status != nil && d.Status != *opts.Status {
			continue
		}
		result = append(result, d.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		return lessByCreated(result[j].CreatedAt, result[i].CreatedAt, result[j].ID, result[i].ID)
	})

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// CountBySubscription counts a subscription's deliveries.
func (s *Store) CountBySubscription(_ context.Context, subID id.ID, status *delivery.Status) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, d := range s.deliveries {
		if d.SubscriptionID.String() != subID.String() {
			continue
		}
		if status != nil && d.Status != *status {
			continue
		}
		n++
	}
	return n, nil
}

// CountByStatus counts all deliveries by status.
func (s *Store) CountByStatus(_ context.Context) (map[delivery.Status]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := map[delivery.Status]int64{
		delivery.StatusPending:   0,
		delivery.StatusDelivered: 0,
		delivery.StatusFailed:    0,
	}
	for _, d := range s.deliveries {
		counts[d.Status]++
	}
	return counts, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// lessByCreated orders by creation time, then by ID. IDs are UUIDv7, so
// the tiebreak keeps insertion order for records created in the same tick.
func lessByCreated(a, b time.Time, aID, bID id.ID) bool {
	if !a.Equal(b) {
		return a.Before(b)
	}
	return aID.String() < bID.String()
}

func applyPagination[T any](items []*T, offset, limit int) []*T {
	if offset >= len(items) {
		return nil
	}
	if offset > 0 {
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
