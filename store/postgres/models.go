package postgres

import (
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/internal/entity"
	"github.com/xraph/courier/subscription"
)

// --- Subscription models ---

type subscriptionModel struct {
	grove.BaseModel `grove:"table:courier_subscriptions"`

	ID          string    `grove:"id,pk"`
	Name        string    `grove:"name"`
	URL         string    `grove:"url"`
	Secret      string    `grove:"secret"`
	Events      []string  `grove:"events,array"`
	Active      bool      `grove:"active"`
	RetryLimit  int       `grove:"retry_limit"`
	TimeoutMs   int       `grove:"timeout_ms"`
	Description string    `grove:"description"`
	CreatedBy   string    `grove:"created_by"`
	CreatedAt   time.Time `grove:"created_at"`
	UpdatedAt   time.Time `grove:"updated_at"`
}

func toSubscriptionModel(sub *subscription.Subscription) *subscriptionModel {
	events := sub.Events
	if events == nil {
		events = []string{}
	}
	return &subscriptionModel{
		ID:          sub.ID.String(),
		Name:        sub.Name,
		URL:         sub.URL,
		Secret:      sub.Secret,
		Events:      events,
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

// --- Delivery models ---

// Payload is TEXT rather than JSONB: JSONB rewrites key order and
// whitespace, and receivers verify signatures over the exact bytes.
type deliveryModel struct {
	grove.BaseModel `grove:"table:courier_deliveries"`

	ID             string     `grove:"id,pk"`
	SubscriptionID string     `grove:"subscription_id"`
	EventType      string     `grove:"event_type"`
	Payload        string     `grove:"payload"`
	Status         string     `grove:"status"`
	AttemptCount   int        `grove:"attempt_count"`
	ResponseCode   *int       `grove:"response_code"`
	ResponseBody   *string    `grove:"response_body"`
	Error          *string    `grove:"error"`
	LatencyMs      int        `grove:"latency_ms"`
	DeliveredAt    *time.Time `grove:"delivered_at"`
	NextAttemptAt  *time.Time `grove:"next_attempt_at"`
	CreatedAt      time.Time  `grove:"created_at"`
	UpdatedAt      time.Time  `grove:"updated_at"`
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
