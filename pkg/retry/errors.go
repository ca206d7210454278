package retry

import "errors"

var (
	ErrNotFound      = errors.New("retry: entry not found")
	ErrContextSealed = errors.New("retry: entry has failed permanently")
	ErrEmptyID       = errors.New("retry: id is required")
)
