package domain

import "errors"

// Sentinel errors shared by every repository implementation.
var (
	ErrLeadNotFound     = errors.New("lead not found")
	ErrResourceNotFound = errors.New("resource not found")
	// ErrDuplicateSend is returned when a second sent decision is appended
	// for an idempotency key that already has one.
	ErrDuplicateSend = errors.New("idempotency key already has a sent decision")
)
