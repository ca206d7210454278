package queue

import (
	"context"
	"time"
)

// Inspector exposes read-only statistics and housekeeping for one queue.
type Inspector struct {
	storage Storage
	queue   string
}

func NewInspector(storage Storage, queue string) (*Inspector, error) {
	if storage == nil {
		return nil, ErrStorageNil
	}
	if queue == "" {
		queue = DefaultQueueName
	}
	return &Inspector{storage: storage, queue: queue}, nil
}

// Queue returns the inspected queue name.
func (i *Inspector) Queue() string {
	return i.queue
}

// Stats counts jobs by state.
func (i *Inspector) Stats(ctx context.Context) (Stats, error) {
	return i.storage.Stats(ctx, i.queue)
}

// Cleanup removes completed and failed jobs that finished more than grace ago.
func (i *Inspector) Cleanup(ctx context.Context, grace time.Duration) (int, error) {
	return i.storage.Cleanup(ctx, i.queue, grace)
}

// RecoverExpired returns jobs with an expired lock to the waiting state.
func (i *Inspector) RecoverExpired(ctx context.Context) (int, error) {
	return i.storage.RecoverExpired(ctx, i.queue)
}
