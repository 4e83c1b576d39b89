package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/courier"
	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/id"
)

// Enqueue creates a pending delivery.
func (s *Store) Enqueue(ctx context.Context, d *delivery.Delivery) error {
	if _, err := s.mdb.NewInsert(toDeliveryModel(d)).Exec(ctx); err != nil {
		return fmt.Errorf("courier/mongo: enqueue: %w", err)
	}
	return nil
}

// ClaimDue claims due deliveries one document at a time. Each
// FindOneAndUpdate is atomic, so concurrent claimers never share a row.
func (s *Store) ClaimDue(ctx context.Context, at time.Time, lease time.Duration, limit int) ([]*delivery.Delivery, error) {
	result := make([]*delivery.Delivery, 0, limit)
	col := s.mdb.Collection(colDeliveries)
	deadline := at.Add(lease)

	for range limit {
		filter := bson.M{
			"status": string(delivery.StatusPending),
			"$or": bson.A{
				bson.M{"next_attempt_at": bson.M{"$lte": at}},
				bson.M{"next_attempt_at": nil},
			},
		}
		update := bson.M{
			"$set": bson.M{
				"next_attempt_at": deadline,
				"updated_at":      now(),
			},
		}
		opts := options.FindOneAndUpdate().
			SetReturnDocument(options.After).
			SetSort(bson.D{{Key: "next_attempt_at", Value: 1}})

		var m deliveryModel
		if err := col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&m); err != nil {
			if errors.Is(err, mongod.ErrNoDocuments) {
				break
			}
			return nil, fmt.Errorf("courier/mongo: claim: %w", err)
		}

		d, err := fromDeliveryModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}

	return result, nil
}

// UpdateDelivery writes back an attempt outcome while the document is
// still pending at the previous attempt.
func (s *Store) UpdateDelivery(ctx context.Context, d *delivery.Delivery) error {
	m := toDeliveryModel(d)

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{
			"_id":           m.ID,
			"status":        string(delivery.StatusPending),
			"attempt_count": d.AttemptCount - 1,
		}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("courier/mongo: update delivery: %w", err)
	}
	if res.MatchedCount() == 0 {
		return courier.ErrClaimLost
	}
	return nil
}

// GetDelivery returns a delivery by ID.
func (s *Store) GetDelivery(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	var m deliveryModel

	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": delID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, courier.ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("courier/mongo: get delivery: %w", err)
	}

	return fromDeliveryModel(&m)
}

func subscriptionFilter(subID id.ID, status *delivery.Status) bson.M {
	filter := bson.M{"subscription_id": subID.String()}
	if status != nil {
		filter["status"] = string(*status)
	}
	return filter
}

// ListBySubscription returns a subscription's deliveries newest first.
func (s *Store) ListBySubscription(ctx context.Context, subID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	var models []deliveryModel

	q := s.mdb.NewFind(&models).
		Filter(subscriptionFilter(subID, opts.Status)).
		Sort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("courier/mongo: list deliveries: %w", err)
	}
	return fromDeliveryModels(models)
}

// CountBySubscription counts a subscription's deliveries.
func (s *Store) CountBySubscription(ctx context.Context, subID id.ID, status *delivery.Status) (int64, error) {
	count, err := s.mdb.NewFind((*deliveryModel)(nil)).
		Filter(subscriptionFilter(subID, status)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("courier/mongo: count deliveries: %w", err)
	}
	return count, nil
}

// CountByStatus counts deliveries grouped by status.
func (s *Store) CountByStatus(ctx context.Context) (map[delivery.Status]int64, error) {
	counts := make(map[delivery.Status]int64, len(delivery.Statuses))
	for _, st := range delivery.Statuses {
		n, err := s.mdb.NewFind((*deliveryModel)(nil)).
			Filter(bson.M{"status": string(st)}).
			Count(ctx)
		if err != nil {
			return nil, fmt.Errorf("courier/mongo: count %s: %w", st, err)
		}
		counts[st] = n
	}
	return counts, nil
}
