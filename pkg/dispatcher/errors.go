package dispatcher

import "errors"

var (
	ErrUnsupportedChannel = errors.New("dispatcher: unsupported channel")
	ErrNotConfigured      = errors.New("dispatcher: channel not configured")
	ErrTimeout            = errors.New("dispatcher: send timed out")
	ErrProvider           = errors.New("dispatcher: provider error")
	ErrCircuitOpen        = errors.New("dispatcher: circuit open")
	ErrInvalidAddress     = errors.New("dispatcher: invalid email address")
)
