package notifier

import "errors"

var (
	// ErrValidation wraps every synchronous submission rejection.
	ErrValidation = errors.New("notifier: validation failed")

	ErrMissingDependency = errors.New("notifier: missing dependency")
	ErrNoChannels        = errors.New("notifier: no delivery channels configured")
)
