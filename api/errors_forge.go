package api

import (
	"errors"

	"github.com/xraph/forge"

	"github.com/xraph/courier"
	"github.com/xraph/courier/catalog"
	"github.com/xraph/courier/subscription"
)

// mapError converts courier errors to Forge HTTP errors.
func mapError(err error) error {
	var verr *subscription.ValidationError
	switch {
	case errors.As(err, &verr):
		return forge.BadRequest(verr.Field + ": " + verr.Message)
	case errors.Is(err, courier.ErrSubscriptionNotFound):
		return forge.NotFound(err.Error())
	case errors.Is(err, courier.ErrDeliveryNotFound):
		return forge.NotFound(err.Error())
	case errors.Is(err, catalog.ErrUnknownType):
		return forge.NotFound(err.Error())
	case errors.Is(err, courier.ErrInvalidEventType):
		return forge.BadRequest(err.Error())
	case errors.Is(err, courier.ErrPayloadInvalid):
		return forge.BadRequest(err.Error())
	default:
		return forge.InternalError(err)
	}
}
