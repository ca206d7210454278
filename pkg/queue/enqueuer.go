package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Enqueuer creates jobs.
type Enqueuer struct {
	storage      Storage
	defaultQueue string
	maxAttempts  int
	signal       *Signal
	now          func() time.Time
}

// EnqueuerOption is a functional option for configuring an Enqueuer
type EnqueuerOption func(*Enqueuer)

// WithDefaultQueue sets the default queue name
func WithDefaultQueue(queue string) EnqueuerOption {
	return func(e *Enqueuer) {
		if queue != "" {
			e.defaultQueue = queue
		}
	}
}

// WithDefaultMaxAttempts sets how many times a job is tried unless overridden.
func WithDefaultMaxAttempts(n int) EnqueuerOption {
	return func(e *Enqueuer) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// WithSignal makes every enqueue wake a worker listening on s.
func WithSignal(s *Signal) EnqueuerOption {
	return func(e *Enqueuer) {
		e.signal = s
	}
}

func WithEnqueuerClock(now func() time.Time) EnqueuerOption {
	return func(e *Enqueuer) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEnqueuer creates a new Enqueuer
func NewEnqueuer(storage Storage, opts ...EnqueuerOption) (*Enqueuer, error) {
	if storage == nil {
		return nil, ErrStorageNil
	}

	e := &Enqueuer{
		storage:      storage,
		defaultQueue: DefaultQueueName,
		maxAttempts:  3,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// EnqueueOption is a functional option for the Enqueue method
type EnqueueOption func(*enqueueOptions)

type enqueueOptions struct {
	queue       string
	maxAttempts int
	delay       time.Duration
	scheduledAt *time.Time
}

// WithQueue sets the queue for the job
func WithQueue(queue string) EnqueueOption {
	return func(o *enqueueOptions) {
		if queue != "" {
			o.queue = queue
		}
	}
}

// WithMaxAttempts caps how many times the job is tried (1-10).
func WithMaxAttempts(n int) EnqueueOption {
	return func(o *enqueueOptions) {
		if n > 0 && n <= 10 {
			o.maxAttempts = n
		}
	}
}

// WithDelay sets a delay before the job can be processed
func WithDelay(delay time.Duration) EnqueueOption {
	return func(o *enqueueOptions) {
		if delay > 0 {
			o.delay = delay
		}
	}
}

// WithScheduledAt sets a specific time for the job to be processed
func WithScheduledAt(at time.Time) EnqueueOption {
	return func(o *enqueueOptions) {
		o.scheduledAt = &at
	}
}

// Enqueue stores a job for eventKey carrying payload and returns its ID.
func (e *Enqueuer) Enqueue(ctx context.Context, eventKey string, payload any, opts ...EnqueueOption) (uuid.UUID, error) {
	if payload == nil {
		return uuid.Nil, ErrPayloadNil
	}

	options := &enqueueOptions{
		queue:       e.defaultQueue,
		maxAttempts: e.maxAttempts,
	}
	for _, opt := range opts {
		opt(options)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, errors.Join(ErrPayloadMarshal, fmt.Errorf("payload of type %T: %w", payload, err))
	}

	now := e.now()
	scheduledAt := now
	if options.scheduledAt != nil {
		scheduledAt = *options.scheduledAt
	} else if options.delay > 0 {
		scheduledAt = now.Add(options.delay)
	}

	job := &Job{
		ID:          uuid.New(),
		Queue:       options.queue,
		EventKey:    eventKey,
		Payload:     data,
		Status:      pendingStatus(scheduledAt, now),
		MaxAttempts: options.maxAttempts,
		ScheduledAt: scheduledAt,
		CreatedAt:   now,
	}

	if err := e.storage.Create(ctx, job); err != nil {
		return uuid.Nil, errors.Join(ErrJobCreate, fmt.Errorf("job %q in queue %q: %w", eventKey, job.Queue, err))
	}

	if job.Status == StatusWaiting {
		e.signal.Notify()
	}
	return job.ID, nil
}
