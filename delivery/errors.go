package delivery

import "errors"

var (
	// ErrNotFound is returned for an unknown delivery id.
	ErrNotFound = errors.New("courier: delivery not found")

	// ErrClaimLost is returned by UpdateDelivery when the row moved on
	// since it was claimed, because another worker wrote its outcome first.
	ErrClaimLost = errors.New("courier: delivery claim lost")

	// ErrRateLimited is reported by the Tester when a host is over budget.
	ErrRateLimited = errors.New("courier: test delivery rate limited")
)
