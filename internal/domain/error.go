package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound            = errors.New("entity not found")
	ErrAlreadyExists       = errors.New("entity already exists")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrInvalidExecContext  = errors.New("invalid execution context")
	ErrOperationFailed     = errors.New("operation failed")
	ErrReadDatabaseRow     = errors.New("failed to read database row")
	ErrCodeNotFound        = errors.New("license code not found")
	ErrSelfReferral        = errors.New("user cannot refer themselves")
	ErrInvalidRole         = errors.New("invalid client role")
	ErrInvalidToken        = errors.New("invalid offline token")
	ErrStaleToken          = errors.New("offline token is too old")
	ErrSecretNotConfigured = errors.New("signing secret is not configured")
	ErrPaymentsDisabled    = errors.New("payments are disabled")
)
