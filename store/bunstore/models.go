package bunstore

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/internal/entity"
	"github.com/xraph/courier/subscription"
)

type subscriptionModel struct {
	bun.BaseModel `bun:"table:courier_subscriptions"`

	ID          string    `bun:"id,pk"`
	Name        string    `bun:"name,notnull"`
	URL         string    `bun:"url,notnull"`
	Secret      string    `bun:"secret,notnull"`
	Events      []string  `bun:"events,array"`
	Active      bool      `bun:"active,notnull"`
	RetryLimit  int       `bun:"retry_limit,notnull"`
	TimeoutMs   int       `bun:"timeout_ms,notnull"`
	Description string    `bun:"description,notnull"`
	CreatedBy   string    `bun:"created_by,notnull"`
	CreatedAt   time.Time `bun:"created_at,notnull"`
	UpdatedAt   time.Time `bun:"updated_at,notnull"`
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
		Entity:      entity.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
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

type deliveryModel struct {
	bun.BaseModel `bun:"table:courier_deliveries"`

	ID             string     `bun:"id,pk"`
	SubscriptionID string     `bun:"subscription_id,notnull"`
	EventType      string     `bun:"event_type,notnull"`
	Payload        string     `bun:"payload,notnull"`
	Status         string     `bun:"status,notnull"`
	AttemptCount   int        `bun:"attempt_count,notnull"`
	ResponseCode   *int       `bun:"response_code"`
	ResponseBody   *string    `bun:"response_body"`
	Error          *string    `bun:"error"`
	LatencyMs      int        `bun:"latency_ms,notnull"`
	DeliveredAt    *time.Time `bun:"delivered_at"`
	NextAttemptAt  *time.Time `bun:"next_attempt_at"`
	CreatedAt      time.Time  `bun:"created_at,notnull"`
	UpdatedAt      time.Time  `bun:"updated_at,notnull"`
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
		Entity:         entity.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
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
