package compliance

import "errors"

// Sentinel errors for the compliance gate.
var (
	ErrDNCRUnavailable = errors.New("do-not-call registry unavailable")
	ErrInvalidMode     = errors.New("invalid permission mode")
)
