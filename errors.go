package entitle

import (
	"errors"

	"github.com/xraph/entitle/entitlement"
)

// Sentinel errors for common failure scenarios.
var (
	// Caller errors
	ErrInvalidInput  = errors.New("entitle: invalid input")
	ErrAuthenticity  = errors.New("entitle: event failed authentication")
	ErrConfiguration = errors.New("entitle: not configured")

	// Dependency errors, absorbed on the restore and webhook paths
	ErrGateway     = errors.New("entitle: gateway unavailable")
	ErrPersistence = errors.New("entitle: persistence failed")

	// Store and cache errors, shared with the backend packages
	ErrNotFound    = entitlement.ErrNotFound
	ErrCacheMiss   = entitlement.ErrCacheMiss
	ErrStoreClosed = entitlement.ErrStoreClosed
)

// IsAuthenticity reports whether err is a rejected webhook event.
func IsAuthenticity(err error) bool {
	return errors.Is(err, ErrAuthenticity)
}

// IsConfiguration reports whether err is a missing gateway, secret, or
// price mapping.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsNotFound reports whether err is a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrGateway) ||
		errors.Is(err, ErrPersistence)
}
