package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/courier"
	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/internal/entity"
)

// deliveryModel is the JSON representation stored in Redis. Payload is a
// string so the stored bytes are never re-encoded.
type deliveryModel struct {
	ID             string     `json:"id"`
	SubscriptionID string     `json:"subscription_id"`
	EventType      string     `json:"event_type"`
	Payload        string     `json:"payload"`
	Status         string     `json:"status"`
	AttemptCount   int        `json:"attempt_count"`
	ResponseCode   *int       `json:"response_code,omitempty"`
	ResponseBody   *string    `json:"response_body,omitempty"`
	Error          *string    `json:"error,omitempty"`
	LatencyMs      int        `json:"latency_ms"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	NextAttemptAt  *time.Time `json:"next_attempt_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func toDeliveryModel(d *delivery.Delivery) *deliveryModel {
	return &deliveryModel{
		ID:             d.ID.String(),
		SubscriptionID: d.SubscriptionID.String(),
		EventType:      d.EventType,
		Payload:        string(d.Payload),
		Status:         string(d.Status),
		AttemptCount:   d.AttemptCount,
		ResponseCode:   d.ResponseCode,
		ResponseBody:   d.ResponseBody,
		Error:          d.Error,
		LatencyMs:      d.LatencyMs,
		DeliveredAt:    d.DeliveredAt,
		NextAttemptAt:  d.NextAttemptAt,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

func fromDeliveryModel(m *deliveryModel) (*delivery.Delivery, error) {
	delID, err := id.ParseDeliveryID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse delivery ID %q: %w", m.ID, err)
	}
	subID, err := id.ParseSubscriptionID(m.SubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("parse subscription ID %q: %w", m.SubscriptionID, err)
	}
	return &delivery.Delivery{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             delID,
		SubscriptionID: subID,
		EventType:      m.EventType,
		Payload:        []byte(m.Payload),
		Status:         delivery.Status(m.Status),
		AttemptCount:   m.AttemptCount,
		ResponseCode:   m.ResponseCode,
		ResponseBody:   m.ResponseBody,
		Error:          m.Error,
		LatencyMs:      m.LatencyMs,
		DeliveredAt:    m.DeliveredAt,
		NextAttemptAt:  m.NextAttemptAt,
	}, nil
}

// claimScript takes due IDs from the due set and rescores them to the
// lease deadline in one step.
// KEYS[1] = courier:z:del:due
// ARGV[1] = now score, ARGV[2] = limit, ARGV[3] = lease deadline score
var claimScript = goredis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, id in ipairs(ids) do
    redis.call('ZADD', KEYS[1], ARGV[3], id)
end
return ids
`)

// fenceScript swaps a delivery's fence only if it still holds the expected
// value. A missing fence is treated as a match.
// KEYS[1] = courier:h:del:fence
// ARGV[1] = delivery ID, ARGV[2] = expected, ARGV[3] = replacement
var fenceScript = goredis.NewScript(`
local cur = redis.call('HGET', KEYS[1], ARGV[1])
if cur and cur ~= ARGV[2] then
    return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[3])
return 1
`)

func fenceValue(status string, attempts int) string {
	return status + ":" + strconv.Itoa(attempts)
}

// dueScore places a pending delivery in the due set. A nil next attempt
// has been due since the epoch.
func dueScore(next *time.Time) float64 {
	if next == nil {
		return 0
	}
	return scoreFromTime(*next)
}

func (s *Store) Enqueue(ctx context.Context, d *delivery.Delivery) error {
	m := toDeliveryModel(d)
	if err := s.setEntity(ctx, entityKey(prefixDelivery, m.ID), m); err != nil {
		return fmt.Errorf("courier/redis: enqueue delivery: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, zDeliverySub+m.SubscriptionID, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
	pipe.SAdd(ctx, sDeliveryStatus+m.Status, m.ID)
	pipe.HSet(ctx, hDeliveryFence, m.ID, fenceValue(m.Status, m.AttemptCount))
	if m.Status == string(delivery.StatusPending) {
		pipe.ZAdd(ctx, zDeliveryDue, goredis.Z{Score: dueScore(m.NextAttemptAt), Member: m.ID})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("courier/redis: enqueue delivery indexes: %w", err)
	}
	return nil
}

func (s *Store) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*delivery.Delivery, error) {
	deadline := now.Add(lease)
	ids, err := claimScript.Run(ctx, s.rdb, []string{zDeliveryDue},
		formatScore(scoreFromTime(now)), limit, formatScore(scoreFromTime(deadline)),
	).StringSlice()
	if err != nil {
		if isRedisNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("courier/redis: claim script: %w", err)
	}

	claimed := make([]*delivery.Delivery, 0, len(ids))
	for _, delID := range ids {
		key := entityKey(prefixDelivery, delID)
		var m deliveryModel
		if err := s.getEntity(ctx, key, &m); err != nil {
			if isNotFound(err) {
				s.rdb.ZRem(ctx, zDeliveryDue, delID)
				continue
			}
			return nil, fmt.Errorf("courier/redis: claim get: %w", err)
		}

		m.NextAttemptAt = &deadline
		m.UpdatedAt = time.Now().UTC()
		if err := s.setEntity(ctx, key, &m); err != nil {
			return nil, fmt.Errorf("courier/redis: claim update: %w", err)
		}

		d, err := fromDeliveryModel(&m)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, d)
	}
	return claimed, nil
}

func (s *Store) UpdateDelivery(ctx context.Context, d *delivery.Delivery) error {
	key := entityKey(prefixDelivery, d.ID.String())
	var old deliveryModel
	if err := s.getEntity(ctx, key, &old); err != nil {
		if isNotFound(err) {
			return courier.ErrDeliveryNotFound
		}
		return fmt.Errorf("courier/redis: update delivery: %w", err)
	}

	m := toDeliveryModel(d)
	swapped, err := fenceScript.Run(ctx, s.rdb, []string{hDeliveryFence},
		m.ID,
		fenceValue(string(delivery.StatusPending), d.AttemptCount-1),
		fenceValue(m.Status, m.AttemptCount),
	).Int()
	if err != nil {
		return fmt.Errorf("courier/redis: update delivery fence: %w", err)
	}
	if swapped == 0 {
		return courier.ErrClaimLost
	}

	if err := s.setEntity(ctx, key, m); err != nil {
		return fmt.Errorf("courier/redis: update delivery: %w", err)
	}

	pipe := s.rdb.Pipeline()
	if old.Status != m.Status {
		pipe.SMove(ctx, sDeliveryStatus+old.Status, sDeliveryStatus+m.Status, m.ID)
	}
	if m.Status == string(delivery.StatusPending) {
		pipe.ZAdd(ctx, zDeliveryDue, goredis.Z{Score: dueScore(m.NextAttemptAt), Member: m.ID})
	} else {
		pipe.ZRem(ctx, zDeliveryDue, m.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("courier/redis: update delivery indexes: %w", err)
	}
	return nil
}

func (s *Store) GetDelivery(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	var m deliveryModel
	if err := s.getEntity(ctx, entityKey(prefixDelivery, delID.String()), &m); err != nil {
		if isNotFound(err) {
			return nil, courier.ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("courier/redis: get delivery: %w", err)
	}
	return fromDeliveryModel(&m)
}

// subscriptionDeliveries loads a subscription's deliveries newest first.
func (s *Store) subscriptionDeliveries(ctx context.Context, subID id.ID, status *delivery.Status) ([]*delivery.Delivery, error) {
	ids, err := s.rdb.ZRevRange(ctx, zDeliverySub+subID.String(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("courier/redis: list by subscription: %w", err)
	}

	result := make([]*delivery.Delivery, 0, len(ids))
	for _, delID := range ids {
		var m deliveryModel
		if err := s.getEntity(ctx, entityKey(prefixDelivery, delID), &m); err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		if status != nil && delivery.Status(m.Status) != *status {
			continue
		}
		d, err := fromDeliveryModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, nil
}

func (s *Store) ListBySubscription(ctx context.Context, subID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	result, err := s.subscriptionDeliveries(ctx, subID, opts.Status)
	if err != nil {
		return nil, err
	}
	return applyPagination(result, opts.Offset, opts.Limit), nil
}

func (s *Store) CountBySubscription(ctx context.Context, subID id.ID, status *delivery.Status) (int64, error) {
	if status == nil {
		n, err := s.rdb.ZCard(ctx, zDeliverySub+subID.String()).Result()
		if err != nil {
			return 0, fmt.Errorf("courier/redis: count deliveries: %w", err)
		}
		return n, nil
	}
	result, err := s.subscriptionDeliveries(ctx, subID, status)
	if err != nil {
		return 0, err
	}
	return int64(len(result)), nil
}

func (s *Store) CountByStatus(ctx context.Context) (map[delivery.Status]int64, error) {
	pipe := s.rdb.Pipeline()
	cmds := make(map[delivery.Status]*goredis.IntCmd, len(delivery.Statuses))
	for _, st := range delivery.Statuses {
		cmds[st] = pipe.SCard(ctx, sDeliveryStatus+string(st))
	}
	if _, err := pipe.Exec(ctx); err != nil && !isRedisNil(err) {
		return nil, fmt.Errorf("courier/redis: count by status: %w", err)
	}

	counts := make(map[delivery.Status]int64, len(cmds))
	for st, cmd := range cmds {
		counts[st] = cmd.Val()
	}
	return counts, nil
}
