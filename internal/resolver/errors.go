package resolver

import "errors"

var (
	// ErrInvalidInput indicates a manifest reference that cannot be turned
	// into a descriptor.
	ErrInvalidInput = errors.New("invalid resolver input")
)
