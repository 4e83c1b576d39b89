// Package bunstore implements the courier store with the Bun ORM on
// PostgreSQL, for applications that already manage a *bun.DB.
package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/courier"
	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/id"
	courierstore "github.com/xraph/courier/store"
	"github.com/xraph/courier/subscription"
)

// compile-time interface check
var _ courierstore.Store = (*Store)(nil)

// Store implements store.Store using the Bun ORM.
type Store struct {
	db *bun.DB
}

// New creates a Bun-backed store.
func New(db *bun.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying Bun database for direct access.
func (s *Store) DB() *bun.DB { return s.db }

// Migrate creates the required tables using Bun's CreateTable.
func (s *Store) Migrate(ctx context.Context) error {
	models := []any{
		(*subscriptionModel)(nil),
		(*deliveryModel)(nil),
	}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("%w: bun: %w", courier.ErrMigrationFailed, err)
		}
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_courier_deliveries_due ON courier_deliveries (next_attempt_at) WHERE status = 'pending'",
		"CREATE INDEX IF NOT EXISTS idx_courier_deliveries_subscription ON courier_deliveries (subscription_id, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_courier_subscriptions_events ON courier_subscriptions USING GIN (events)",
	}
	for _, ddl := range indexes {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("%w: bun: %w", courier.ErrMigrationFailed, err)
		}
	}

	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("courier/bun: ping: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	if _, err := s.db.NewInsert().Model(toSubscriptionModel(sub)).Exec(ctx); err != nil {
		return fmt.Errorf("courier/bun: create subscription: %w", err)
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID id.ID) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.db.NewSelect().
		Model(m).
		Where("id = ?", subID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, courier.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("courier/bun: get subscription: %w", err)
	}
	return fromSubscriptionModel(m)
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	m.UpdatedAt = time.Now().UTC()
	res, err := s.db.NewUpdate().Model(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("courier/bun: update subscription: %w", err)
	}
	return requireRow(res, courier.ErrSubscriptionNotFound)
}

func (s *Store) DeleteSubscription(ctx context.Context, subID id.ID) error {
	res, err := s.db.NewDelete().
		Model((*subscriptionModel)(nil)).
		Where("id = ?", subID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("courier/bun: delete subscription: %w", err)
	}
	return requireRow(res, courier.ErrSubscriptionNotFound)
}

func (s *Store) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	q := s.db.NewSelect().Model(&models)

	if opts.Active != nil {
		q = q.Where("active = ?", *opts.Active)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.Order("created_at ASC", "id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("courier/bun: list subscriptions: %w", err)
	}
	return fromSubscriptionModels(models)
}

func (s *Store) MatchSubscriptions(ctx context.Context, eventType string) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	if err := s.db.NewSelect().
		Model(&models).
		Where("active = TRUE").
		Where("? = ANY(events)", eventType).
		Order("created_at ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("courier/bun: match subscriptions: %w", err)
	}
	return fromSubscriptionModels(models)
}

// ==================== Delivery Store ====================

func (s *Store) Enqueue(ctx context.Context, d *delivery.Delivery) error {
	if _, err := s.db.NewInsert().Model(toDeliveryModel(d)).Exec(ctx); err != nil {
		return fmt.Errorf("courier/bun: enqueue delivery: %w", err)
	}
	return nil
}

func (s *Store) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*delivery.Delivery, error) {
	var models []deliveryModel
	err := s.db.NewRaw(`
		UPDATE courier_deliveries
		SET next_attempt_at = ?, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM courier_deliveries
			WHERE status = 'pending'
				AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
			ORDER BY next_attempt_at ASC NULLS FIRST
			LIMIT ?
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *
	`, now.Add(lease), now, limit).Scan(ctx, &models)
	if err != nil {
		return nil, fmt.Errorf("courier/bun: claim deliveries: %w", err)
	}
	return fromDeliveryModels(models)
}

// UpdateDelivery only matches the row while it is still pending at the
// previous attempt.
func (s *Store) UpdateDelivery(ctx context.Context, d *delivery.Delivery) error {
	res, err := s.db.NewUpdate().
		Model(toDeliveryModel(d)).
		WherePK().
		Where("status = ?", string(delivery.StatusPending)).
		Where("attempt_count = ?", d.AttemptCount-1).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("courier/bun: update delivery: %w", err)
	}
	return requireRow(res, courier.ErrClaimLost)
}

func (s *Store) GetDelivery(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	m := new(deliveryModel)
	err := s.db.NewSelect().
		Model(m).
		Where("id = ?", delID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, courier.ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("courier/bun: get delivery: %w", err)
	}
	return fromDeliveryModel(m)
}

func (s *Store) ListBySubscription(ctx context.Context, subID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	var models []deliveryModel
	q := s.db.NewSelect().Model(&models).Where("subscription_id = ?", subID.String())

	if opts.Status != nil {
		q = q.Where("status = ?", string(*opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.Order("created_at DESC", "id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("courier/bun: list deliveries: %w", err)
	}
	return fromDeliveryModels(models)
}

func (s *Store) CountBySubscription(ctx context.Context, subID id.ID, status *delivery.Status) (int64, error) {
	q := s.db.NewSelect().
		Model((*deliveryModel)(nil)).
		Where("subscription_id = ?", subID.String())
	if status != nil {
		q = q.Where("status = ?", string(*status))
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("courier/bun: count deliveries: %w", err)
	}
	return int64(count), nil
}

func (s *Store) CountByStatus(ctx context.Context) (map[delivery.Status]int64, error) {
	var rows []struct {
		Status string `bun:"status"`
		Count  int64  `bun:"count"`
	}
	if err := s.db.NewSelect().
		Model((*deliveryModel)(nil)).
		Column("status").
		ColumnExpr("COUNT(*) AS count").
		Group("status").
		Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("courier/bun: count by status: %w", err)
	}

	counts := make(map[delivery.Status]int64, len(delivery.Statuses))
	for _, st := range delivery.Statuses {
		counts[st] = 0
	}
	for _, r := range rows {
		counts[delivery.Status(r.Status)] = r.Count
	}
	return counts, nil
}

// ==================== Helpers ====================

func fromSubscriptionModels(models []subscriptionModel) ([]*subscription.Subscription, error) {
	result := make([]*subscription.Subscription, len(models))
	for i := range models {
		sub, err := fromSubscriptionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = sub
	}
	return result, nil
}

func fromDeliveryModels(models []deliveryModel) ([]*delivery.Delivery, error) {
	result := make([]*delivery.Delivery, len(models))
	for i := range models {
		d, err := fromDeliveryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = d
	}
	return result, nil
}

func requireRow(res sql.Result, notFound error) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("courier/bun: rows affected: %w", err)
	}
	if rows == 0 {
		return notFound
	}
	return nil
}
