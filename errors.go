package courier

import (
	"errors"

	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/subscription"
)

// Sentinel errors returned by courier operations. Stores wrap them, so
// compare with errors.Is.
var (
	// ErrNoStore is returned by New when no store option was given.
	ErrNoStore = errors.New("courier: store is required")

	// ErrSubscriptionNotFound is returned for an unknown subscription id.
	ErrSubscriptionNotFound = subscription.ErrNotFound

	// ErrDeliveryNotFound is returned for an unknown delivery id.
	ErrDeliveryNotFound = delivery.ErrNotFound

	// ErrClaimLost is returned by UpdateDelivery when another worker has
	// already written the outcome of the claimed attempt.
	ErrClaimLost = delivery.ErrClaimLost

	// ErrInvalidEventType is returned by Trigger for a blank event type.
	ErrInvalidEventType = errors.New("courier: invalid event type")

	// ErrPayloadInvalid is returned by Trigger when the payload cannot be
	// encoded or fails the event type's schema.
	ErrPayloadInvalid = errors.New("courier: invalid payload")

	// ErrRateLimited is reported by the test runner when a target host has
	// used up its budget.
	ErrRateLimited = delivery.ErrRateLimited

	// ErrStoreClosed is returned by stores used after Close.
	ErrStoreClosed = errors.New("courier: store is closed")

	// ErrMigrationFailed wraps schema migration failures.
	ErrMigrationFailed = errors.New("courier: migration failed")
)
