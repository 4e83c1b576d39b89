package subscription

import "errors"

// ErrNotFound is returned for an unknown subscription id.
var ErrNotFound = errors.New("courier: subscription not found")

// ValidationError indicates invalid input.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return "subscription validation: " + e.Field + ": " + e.Message
}
