package queue

import (
	"context"
	"fmt"
)

// Handler processes a claimed job. Returning an error wrapped with Permanent
// fails the job without retrying it.
type Handler interface {
	Handle(ctx context.Context, job *Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job *Job) error

func (f HandlerFunc) Handle(ctx context.Context, job *Job) error {
	return f(ctx, job)
}

// TypedHandlerFunc receives the decoded job payload.
type TypedHandlerFunc[T any] func(ctx context.Context, job *Job, payload T) error

// NewTypedHandler decodes the payload into T before calling fn. Payloads that
// cannot be decoded fail permanently.
func NewTypedHandler[T any](fn TypedHandlerFunc[T]) Handler {
	return HandlerFunc(func(ctx context.Context, job *Job) error {
		var payload T
		if err := job.Decode(&payload); err != nil {
			return Permanent(fmt.Errorf("decode payload of job %s: %w", job.ID, err))
		}
		return fn(ctx, job, payload)
	})
}
