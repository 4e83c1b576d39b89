// Package sqlite implements the courier store on SQLite via grove.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/courier"
	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/subscription"
	courierstore "github.com/xraph/courier/store"
)

// compile-time interface check
var _ courierstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("courier/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: sqlite: %w", courier.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m, err := toSubscriptionModel(sub)
	if err != nil {
		return err
	}
	if _, err := s.sdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("courier/sqlite: create subscription: %w", err)
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID id.ID) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", subID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, courier.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("courier/sqlite: get subscription: %w", err)
	}
	return fromSubscriptionModel(m)
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m, err := toSubscriptionModel(sub)
	if err != nil {
		return err
	}
	m.UpdatedAt = now()
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("courier/sqlite: update subscription: %w", err)
	}
	return requireRow(res, courier.ErrSubscriptionNotFound)
}

func (s *Store) DeleteSubscription(ctx context.Context, subID id.ID) error {
	res, err := s.sdb.NewDelete((*subscriptionModel)(nil)).
		Where("id = ?", subID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("courier/sqlite: delete subscription: %w", err)
	}
	return requireRow(res, courier.ErrSubscriptionNotFound)
}

func (s *Store) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	q := s.sdb.NewSelect(&models)
	if opts.Active != nil {
		q = q.Where("active = ?", *opts.Active)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("courier/sqlite: list subscriptions: %w", err)
	}
	return fromSubscriptionModels(models)
}

func (s *Store) MatchSubscriptions(ctx context.Context, eventType string) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	if err := s.sdb.NewSelect(&models).
		Where("active = 1").
		Where("EXISTS (SELECT 1 FROM json_each(events) WHERE json_each.value = ?)", eventType).
		OrderExpr("created_at ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("courier/sqlite: match subscriptions: %w", err)
	}
	return fromSubscriptionModels(models)
}

// ==================== Delivery Store ====================

func (s *Store) Enqueue(ctx context.Context, d *delivery.Delivery) error {
	if _, err := s.sdb.NewInsert(toDeliveryModel(d)).Exec(ctx); err != nil {
		return fmt.Errorf("courier/sqlite: enqueue delivery: %w", err)
	}
	return nil
}

func (s *Store) ClaimDue(ctx context.Context, at time.Time, lease time.Duration, limit int) ([]*delivery.Delivery, error) {
	// SQLite serializes writers, so the single UPDATE is already exclusive.
	at = at.UTC()
	var models []deliveryModel
	err := s.sdb.NewRaw(`
		UPDATE courier_deliveries
		SET next_attempt_at = ?, updated_at = ?
		WHERE id IN (
			SELECT id FROM courier_deliveries
			WHERE status = 'pending'
				AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
			ORDER BY next_attempt_at ASC
			LIMIT ?
		)
		RETURNING *
	`, at.Add(lease), now(), at, limit).Scan(ctx, &models)
	if err != nil {
		return nil, fmt.Errorf("courier/sqlite: claim deliveries: %w", err)
	}
	return fromDeliveryModels(models)
}

// UpdateDelivery only matches the row while it is still pending at the
// previous attempt.
func (s *Store) UpdateDelivery(ctx context.Context, d *delivery.Delivery) error {
	res, err := s.sdb.NewUpdate(toDeliveryModel(d)).
		WherePK().
		Where("status = ?", string(delivery.StatusPending)).
		Where("attempt_count = ?", d.AttemptCount-1).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("courier/sqlite: update delivery: %w", err)
	}
	return requireRow(res, courier.ErrClaimLost)
}

func (s *Store) GetDelivery(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	m := new(deliveryModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", delID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, courier.ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("courier/sqlite: get delivery: %w", err)
	}
	return fromDeliveryModel(m)
}

func (s *Store) ListBySubscription(ctx context.Context, subID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	var models []deliveryModel
	q := s.sdb.NewSelect(&models).Where("subscription_id = ?", subID.String())
	if opts.Status != nil {
		q = q.Where("status = ?", string(*opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("courier/sqlite: list deliveries: %w", err)
	}
	return fromDeliveryModels(models)
}

func (s *Store) CountBySubscription(ctx context.Context, subID id.ID, status *delivery.Status) (int64, error) {
	q := s.sdb.NewSelect((*deliveryModel)(nil)).Where("subscription_id = ?", subID.String())
	if status != nil {
		q = q.Where("status = ?", string(*status))
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("courier/sqlite: count deliveries: %w", err)
	}
	return count, nil
}

func (s *Store) CountByStatus(ctx context.Context) (map[delivery.Status]int64, error) {
	counts := make(map[delivery.Status]int64, len(delivery.Statuses))
	for _, st := range delivery.Statuses {
		n, err := s.sdb.NewSelect((*deliveryModel)(nil)).
			Where("status = ?", string(st)).
			Count(ctx)
		if err != nil {
			return nil, fmt.Errorf("courier/sqlite: count %s deliveries: %w", st, err)
		}
		counts[st] = n
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

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

func requireRow(res rowsAffecter, notFound error) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
