package registry

import "errors"

var (
	// ErrInvalidPublication is returned by Publish for a provider without
	// interfaces or with an unknown scope.
	ErrInvalidPublication = errors.New("invalid publication")

	// ErrAcquisitionFailed is returned by Acquire when the provider is gone or
	// its factory failed.
	ErrAcquisitionFailed = errors.New("acquisition failed")
)
