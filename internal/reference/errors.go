package reference

import (
	"errors"

	"github.com/bayleafwalker/bindery-scr/internal/filter"
)

var (
	// ErrInvalidArgument is returned by New for an invalid consumer, a missing
	// logger or an invalid descriptor. Retrying with the same inputs fails again.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrFilterEvaluation marks a malformed target filter. It is logged and the
	// filter is treated as never matching.
	ErrFilterEvaluation = filter.ErrMalformedFilter

	// ErrProviderAcquisition marks a provider the registry could not
	// materialize during a bind. The candidate is skipped for that evaluation.
	ErrProviderAcquisition = errors.New("provider acquisition failed")

	// ErrListenerCallback marks a listener that returned an error or panicked.
	ErrListenerCallback = errors.New("listener callback failed")
)
