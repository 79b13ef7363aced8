package dispatch

import "errors"

// Sentinel errors for the dispatch orchestrator.
var (
	ErrUnknownChannel = errors.New("unknown channel")
	ErrNoSender       = errors.New("no sender configured for channel")
	ErrInvalidRequest = errors.New("invalid dispatch request")
	ErrNotSuppressed  = errors.New("lead is not suppressed")
	ErrDNCROverride   = errors.New("dncr suppression cannot be overridden")
)
