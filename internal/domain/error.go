package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOperationFailed    = errors.New("operation failed")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")

	// Purchase flow
	ErrNoFreeConfigs   = errors.New("no free vpn configurations")
	ErrInvalidPhone    = errors.New("invalid phone number")
	ErrInvalidEmail    = errors.New("invalid email")
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrInvalidDevice   = errors.New("unknown device type")
	ErrSelfReferral    = errors.New("self referral is not allowed")
	ErrInvalidPayload  = errors.New("invalid payment payload")
	ErrNotOwner        = errors.New("configuration belongs to another user")
	ErrSessionExpired  = errors.New("session expired")
	ErrUnexpectedStep  = errors.New("action does not match current step")

	// Transport
	ErrUserLocked = errors.New("user action already in progress")
)
