package queue

import "errors"

var (
	ErrStorageNil     = errors.New("queue: storage cannot be nil")
	ErrHandlerNil     = errors.New("queue: handler cannot be nil")
	ErrPayloadNil     = errors.New("queue: payload cannot be nil")
	ErrPayloadMarshal = errors.New("queue: failed to marshal payload")
	ErrJobCreate      = errors.New("queue: failed to create job")
	ErrJobNotFound    = errors.New("queue: job not found")
	ErrJobExists      = errors.New("queue: job already exists")
	ErrJobNotActive   = errors.New("queue: job is not active")
	ErrNoJob          = errors.New("queue: no job to claim")
	ErrAlreadyStarted = errors.New("queue: worker already started")
	ErrNotStarted     = errors.New("queue: worker not started")
	ErrShutdown       = errors.New("queue: shutdown timed out")

	// ErrPermanent marks handler errors that must not be retried.
	ErrPermanent = errors.New("queue: permanent failure")
)

// Permanent wraps err so the worker fails the job without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(ErrPermanent, err)
}
