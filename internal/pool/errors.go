package pool

import "errors"

// Sentinel errors for the resource pool.
var (
	ErrInvalidKind   = errors.New("invalid resource kind")
	ErrInvalidHealth = errors.New("invalid resource health")
)
