package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/courier"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/subscription"
)

// CreateSubscription persists a new subscription.
func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	if _, err := s.mdb.NewInsert(toSubscriptionModel(sub)).Exec(ctx); err != nil {
		return fmt.Errorf("courier/mongo: create subscription: %w", err)
	}
	return nil
}

// GetSubscription returns a subscription by ID.
func (s *Store) GetSubscription(ctx context.Context, subID id.ID) (*subscription.Subscription, error) {
	var m subscriptionModel

	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": subID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, courier.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("courier/mongo: get subscription: %w", err)
	}

	return fromSubscriptionModel(&m)
}

// UpdateSubscription replaces a stored subscription.
func (s *Store) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("courier/mongo: update subscription: %w", err)
	}
	if res.MatchedCount() == 0 {
		return courier.ErrSubscriptionNotFound
	}
	return nil
}

// DeleteSubscription removes a subscription. Deliveries are kept.
func (s *Store) DeleteSubscription(ctx context.Context, subID id.ID) error {
	res, err := s.mdb.NewDelete((*subscriptionModel)(nil)).
		Filter(bson.M{"_id": subID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("courier/mongo: delete subscription: %w", err)
	}
	if res.DeletedCount() == 0 {
		return courier.ErrSubscriptionNotFound
	}
	return nil
}

// ListSubscriptions returns subscriptions oldest first.
func (s *Store) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []subscriptionModel

	filter := bson.M{}
	if opts.Active != nil {
		filter["active"] = *opts.Active
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("courier/mongo: list subscriptions: %w", err)
	}
	return fromSubscriptionModels(models)
}

// MatchSubscriptions returns active subscriptions listing eventType.
// Equality against an array field matches any element exactly.
func (s *Store) MatchSubscriptions(ctx context.Context, eventType string) ([]*subscription.Subscription, error) {
	var models []subscriptionModel

	err := s.mdb.NewFind(&models).
		Filter(bson.M{"active": true, "events": eventType}).
		Sort(bson.D{{Key: "created_at", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("courier/mongo: match subscriptions: %w", err)
	}
	return fromSubscriptionModels(models)
}
