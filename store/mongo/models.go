package mongo

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

	ID          string    `grove:"id,pk"       bson:"_id"`
	Name        string    `grove:"name"        bson:"name"`
	URL         string    `grove:"url"         bson:"url"`
	Secret      string    `grove:"secret"      bson:"secret"`
	Events      []string  `grove:"events"      bson:"events"`
	Active      bool      `grove:"active"      bson:"active"`
	RetryLimit  int       `grove:"retry_limit" bson:"retry_limit"`
	TimeoutMs   int       `grove:"timeout_ms"  bson:"timeout_ms"`
	Description string    `grove:"description" bson:"description"`
	CreatedBy   string    `grove:"created_by"  bson:"created_by"`
	CreatedAt   time.Time `grove:"created_at"  bson:"created_at"`
	UpdatedAt   time.Time `grove:"updated_at"  bson:"updated_at"`
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

// --- Delivery models ---

// Payload is kept as a string so BSON never reinterprets the JSON bytes.
type deliveryModel struct {
	grove.BaseModel `grove:"table:courier_deliveries"`

	ID             string     `grove:"id,pk"           bson:"_id"`
	SubscriptionID string     `grove:"subscription_id" bson:"subscription_id"`
	EventType      string     `grove:"event_type"      bson:"event_type"`
	Payload        string     `grove:"payload"         bson:"payload"`
	Status         string     `grove:"status"          bson:"status"`
	AttemptCount   int        `grove:"attempt_count"   bson:"attempt_count"`
	ResponseCode   *int       `grove:"response_code"   bson:"response_code,omitempty"`
	ResponseBody   *string    `grove:"response_body"   bson:"response_body,omitempty"`
	Error          *string    `grove:"error"           bson:"error,omitempty"`
	LatencyMs      int        `grove:"latency_ms"      bson:"latency_ms"`
	DeliveredAt    *time.Time `grove:"delivered_at"    bson:"delivered_at,omitempty"`
	NextAttemptAt  *time.Time `grove:"next_attempt_at" bson:"next_attempt_at,omitempty"`
	CreatedAt      time.Time  `grove:"created_at"      bson:"created_at"`
	UpdatedAt      time.Time  `grove:"updated_at"      bson:"updated_at"`
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
