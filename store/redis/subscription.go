package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/courier"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/internal/entity"
	"github.com/xraph/courier/subscription"
)

// subscriptionModel is the JSON representation stored in Redis.
type subscriptionModel struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	Secret      string    `json:"secret"`
	Events      []string  `json:"events"`
	Active      bool      `json:"active"`
	RetryLimit  int       `json:"retry_limit"`
	TimeoutMs   int       `json:"timeout_ms"`
	Description string    `json:"description"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toSubscriptionModel(sub *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		ID:          sub.ID.String(),
		Name:        sub.Name,
		URL:         sub.URL,
		Secret:      sub.Secret,
		Events:      sub.Events,
		Active:      sub.Active,
		RetryLimit:  sub.RetryLimit,
		TimeoutMs:   sub.TimeoutMs,
		Description: sub.Description,
		CreatedBy:   sub.CreatedBy,
		CreatedAt:   sub.CreatedAt,
		UpdatedAt:   sub.UpdatedAt,
	}
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	subID, err := id.ParseSubscriptionID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse subscription ID %q: %w", m.ID, err)
	}
	return &subscription.Subscription{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          subID,
		Name:        m.Name,
		URL:         m.URL,
		Secret:      m.Secret,
		Events:      m.Events,
		Active:      m.Active,
		RetryLimit:  m.RetryLimit,
		TimeoutMs:   m.TimeoutMs,
		Description: m.Description,
		CreatedBy:   m.CreatedBy,
	}, nil
}

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	if err := s.setEntity(ctx, entityKey(prefixSubscription, m.ID), m); err != nil {
		return fmt.Errorf("courier/redis: create subscription: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, zSubscriptionAll, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
	for _, evt := range m.Events {
		pipe.SAdd(ctx, sSubscriptionEvent+evt, m.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("courier/redis: create subscription indexes: %w", err)
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID id.ID) (*subscription.Subscription, error) {
	m, err := s.getSubscriptionModel(ctx, subID.String())
	if err != nil {
		return nil, err
	}
	return fromSubscriptionModel(m)
}

func (s *Store) getSubscriptionModel(ctx context.Context, subID string) (*subscriptionModel, error) {
	var m subscriptionModel
	if err := s.getEntity(ctx, entityKey(prefixSubscription, subID), &m); err != nil {
		if isNotFound(err) {
			return nil, courier.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("courier/redis: get subscription: %w", err)
	}
	return &m, nil
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	old, err := s.getSubscriptionModel(ctx, sub.ID.String())
	if err != nil {
		return err
	}

	m := toSubscriptionModel(sub)
	m.UpdatedAt = time.Now().UTC()
	if err := s.setEntity(ctx, entityKey(prefixSubscription, m.ID), m); err != nil {
		return fmt.Errorf("courier/redis: update subscription: %w", err)
	}

	pipe := s.rdb.Pipeline()
	for _, evt := range old.Events {
		pipe.SRem(ctx, sSubscriptionEvent+evt, m.ID)
	}
	for _, evt := range m.Events {
		pipe.SAdd(ctx, sSubscriptionEvent+evt, m.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("courier/redis: update subscription indexes: %w", err)
	}
	return nil
}

func (s *Store) DeleteSubscription(ctx context.Context, subID id.ID) error {
	old, err := s.getSubscriptionModel(ctx, subID.String())
	if err != nil {
		return err
	}

	if err := s.kv.Delete(ctx, entityKey(prefixSubscription, old.ID)); err != nil {
		return fmt.Errorf("courier/redis: delete subscription: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.ZRem(ctx, zSubscriptionAll, old.ID)
	for _, evt := range old.Events {
		pipe.SRem(ctx, sSubscriptionEvent+evt, old.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("courier/redis: delete subscription indexes: %w", err)
	}
	return nil
}

func (s *Store) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	ids, err := s.rdb.ZRange(ctx, zSubscriptionAll, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("courier/redis: list subscriptions: %w", err)
	}

	result := make([]*subscription.Subscription, 0, len(ids))
	for _, subID := range ids {
		m, err := s.getSubscriptionModel(ctx, subID)
		if err != nil {
			if errors.Is(err, courier.ErrSubscriptionNotFound) {
				continue
			}
			return nil, err
		}
		if opts.Active != nil && m.Active != *opts.Active {
			continue
		}
		sub, err := fromSubscriptionModel(m)
		if err != nil {
			return nil, err
		}
		result = append(result, sub)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

func (s *Store) MatchSubscriptions(ctx context.Context, eventType string) ([]*subscription.Subscription, error) {
	ids, err := s.rdb.SMembers(ctx, sSubscriptionEvent+eventType).Result()
	if err != nil && !isRedisNil(err) {
		return nil, fmt.Errorf("courier/redis: match subscriptions: %w", err)
	}

	var result []*subscription.Subscription
	for _, subID := range ids {
		m, err := s.getSubscriptionModel(ctx, subID)
		if err != nil {
			if errors.Is(err, courier.ErrSubscriptionNotFound) {
				continue
			}
			return nil, err
		}
		if !m.Active {
			continue
		}
		sub, err := fromSubscriptionModel(m)
		if err != nil {
			return nil, err
		}
		result = append(result, sub)
	}
	return result, nil
}
