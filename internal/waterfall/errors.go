package waterfall

import "errors"

// Sentinel errors for the waterfall resolver.
var (
	ErrUnknownField = errors.New("unknown contact field")
)
