// Package postgres implements the courier store on PostgreSQL via grove.
//
// Claims use FOR UPDATE SKIP LOCKED, so any number of courier processes can
// share one database.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/courier"
	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/subscription"
	courierstore "github.com/xraph/courier/store"
)

// compile-time interface check
var _ courierstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("courier/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: postgres: %w", courier.ErrMigrationFailed, err)
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
	_, err := s.pg.NewInsert(toSubscriptionModel(sub)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("courier/postgres: create subscription: %w", err)
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID id.ID) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", subID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, courier.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("courier/postgres: get subscription: %w", err)
	}
	return fromSubscriptionModel(m)
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	m.UpdatedAt = time.Now().UTC()
	res, err := s.pg.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("courier/postgres: update subscription: %w", err)
	}
	return requireRow(res, courier.ErrSubscriptionNotFound)
}

func (s *Store) DeleteSubscription(ctx context.Context, subID id.ID) error {
	res, err := s.pg.NewDelete((*subscriptionModel)(nil)).
		Where("id = $1", subID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("courier/postgres: delete subscription: %w", err)
	}
	return requireRow(res, courier.ErrSubscriptionNotFound)
}

func (s *Store) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	q := s.pg.NewSelect(&models)
	if opts.Active != nil {
		q = q.Where("active = $1", *opts.Active)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("courier/postgres: list subscriptions: %w", err)
	}
	return fromSubscriptionModels(models)
}

func (s *Store) MatchSubscriptions(ctx context.Context, eventType string) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	if err := s.pg.NewSelect(&models).
		Where("active = true").
		Where("$1 = ANY(events)", eventType).
		OrderExpr("created_at ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("courier/postgres: match subscriptions: %w", err)
	}
	return fromSubscriptionModels(models)
}

// ==================== Delivery Store ====================

func (s *Store) Enqueue(ctx context.Context, d *delivery.Delivery) error {
	_, err := s.pg.NewInsert(toDeliveryModel(d)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("courier/postgres: enqueue delivery: %w", err)
	}
	return nil
}

func (s *Store) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*delivery.Delivery, error) {
	// Moving next_attempt_at past now in the same statement hides the rows
	// from every other claimer until the lease expires.
	var models []deliveryModel
	err := s.pg.NewRaw(`
		UPDATE courier_deliveries
		SET next_attempt_at = $1, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM courier_deliveries
			WHERE status = 'pending'
				AND (next_attempt_at IS NULL OR next_attempt_at <= $2)
			ORDER BY next_attempt_at ASC NULLS FIRST
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *
	`, now.Add(lease), now, limit).Scan(ctx, &models)
	if err != nil {
		return nil, fmt.Errorf("courier/postgres: claim deliveries: %w", err)
	}
	return fromDeliveryModels(models)
}

// UpdateDelivery only matches the row while it is still pending at the
// previous attempt, so a worker whose claim was taken over cannot
// overwrite the newer outcome.
func (s *Store) UpdateDelivery(ctx context.Context, d *delivery.Delivery) error {
	m := toDeliveryModel(d)
	res, err := s.pg.NewUpdate(m).
		WherePK().
		Where("status = 'pending'").
		Where(fmt.Sprintf("attempt_count = %d", d.AttemptCount-1)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("courier/postgres: update delivery: %w", err)
	}
	return requireRow(res, courier.ErrClaimLost)
}

func (s *Store) GetDelivery(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	m := new(deliveryModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", delID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, courier.ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("courier/postgres: get delivery: %w", err)
	}
	return fromDeliveryModel(m)
}

func (s *Store) ListBySubscription(ctx context.Context, subID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	var models []deliveryModel
	q := s.pg.NewSelect(&models).Where("subscription_id = $1", subID.String())

	if opts.Status != nil {
		q = q.Where("status = $2", string(*opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("courier/postgres: list deliveries: %w", err)
	}
	return fromDeliveryModels(models)
}

func (s *Store) CountBySubscription(ctx context.Context, subID id.ID, status *delivery.Status) (int64, error) {
	q := s.pg.NewSelect((*deliveryModel)(nil)).Where("subscription_id = $1", subID.String())
	if status != nil {
		q = q.Where("status = $2", string(*status))
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("courier/postgres: count deliveries: %w", err)
	}
	return count, nil
}

func (s *Store) CountByStatus(ctx context.Context) (map[delivery.Status]int64, error) {
	counts := make(map[delivery.Status]int64, len(delivery.Statuses))
	for _, st := range delivery.Statuses {
		n, err := s.pg.NewSelect((*deliveryModel)(nil)).
			Where("status = $1", string(st)).
			Count(ctx)
		if err != nil {
			return nil, fmt.Errorf("courier/postgres: count %s deliveries: %w", st, err)
		}
		counts[st] = n
	}
	return counts, nil
}

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

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
