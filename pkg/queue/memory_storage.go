package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage keeps jobs in process memory.
type MemoryStorage struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*Job
	now  func() time.Time
}

// MemoryOption configures a MemoryStorage.
type MemoryOption func(*MemoryStorage)

func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(ms *MemoryStorage) {
		if now != nil {
			ms.now = now
		}
	}
}

func NewMemoryStorage(opts ...MemoryOption) *MemoryStorage {
	ms := &MemoryStorage{
		jobs: make(map[uuid.UUID]*Job),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(ms)
	}
	return ms
}

func (ms *MemoryStorage) Create(_ context.Context, job *Job) error {
	if job == nil {
		return ErrPayloadNil
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.jobs[job.ID]; exists {
		return fmt.Errorf("%w: %s", ErrJobExists, job.ID)
	}
	c := job.clone()
	if !c.Status.Terminal() && c.Status != StatusActive {
		c.Status = pendingStatus(c.ScheduledAt, ms.now())
	}
	ms.jobs[job.ID] = c
	return nil
}

func (ms *MemoryStorage) Get(_ context.Context, id uuid.UUID) (*Job, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, ok := ms.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	c := job.clone()
	if c.Status == StatusDelayed || c.Status == StatusWaiting {
		c.Status = pendingStatus(c.ScheduledAt, ms.now())
	}
	return c, nil
}

func (ms *MemoryStorage) Claim(_ context.Context, queue string, lock time.Duration) (*Job, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	var best *Job
	for _, job := range ms.jobs {
		if job.Queue != queue {
			continue
		}
		if job.Status != StatusWaiting && job.Status != StatusDelayed {
			continue
		}
		if job.ScheduledAt.After(now) {
			continue
		}
		if best == nil ||
			job.ScheduledAt.Before(best.ScheduledAt) ||
			(job.ScheduledAt.Equal(best.ScheduledAt) && job.CreatedAt.Before(best.CreatedAt)) {
			best = job
		}
	}
	if best == nil {
		return nil, ErrNoJob
	}

	until := now.Add(lock)
	best.Status = StatusActive
	best.LockedUntil = &until
	best.Attempts++
	return best.clone(), nil
}

func (ms *MemoryStorage) Complete(_ context.Context, id uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, err := ms.active(id)
	if err != nil {
		return err
	}
	now := ms.now()
	job.Status = StatusCompleted
	job.ProcessedAt = &now
	job.LockedUntil = nil
	return nil
}

func (ms *MemoryStorage) Fail(_ context.Context, id uuid.UUID, reason string, retryIn time.Duration) (*Job, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, err := ms.active(id)
	if err != nil {
		return nil, err
	}
	now := ms.now()
	job.Error = reason
	job.LockedUntil = nil

	if retryIn < 0 || job.Attempts >= job.MaxAttempts {
		job.Status = StatusFailed
		job.ProcessedAt = &now
	} else {
		job.ScheduledAt = now.Add(retryIn)
		job.Status = pendingStatus(job.ScheduledAt, now)
	}
	return job.clone(), nil
}

func (ms *MemoryStorage) ExtendLock(_ context.Context, id uuid.UUID, d time.Duration) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, err := ms.active(id)
	if err != nil {
		return err
	}
	until := ms.now().Add(d)
	job.LockedUntil = &until
	return nil
}

func (ms *MemoryStorage) RecoverExpired(_ context.Context, queue string) (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	recovered := 0
	for _, job := range ms.jobs {
		if job.Queue != queue || job.Status != StatusActive {
			continue
		}
		if job.LockedUntil != nil && job.LockedUntil.Before(now) {
			job.Status = StatusWaiting
			job.LockedUntil = nil
			job.ScheduledAt = now
			recovered++
		}
	}
	return recovered, nil
}

func (ms *MemoryStorage) Stats(_ context.Context, queue string) (Stats, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	var st Stats
	for _, job := range ms.jobs {
		if job.Queue != queue {
			continue
		}
		switch job.Status {
		case StatusWaiting, StatusDelayed:
			if pendingStatus(job.ScheduledAt, now) == StatusDelayed {
				st.Delayed++
			} else {
				st.Waiting++
			}
		case StatusActive:
			st.Active++
		case StatusCompleted:
			st.Completed++
		case StatusFailed:
			st.Failed++
		}
	}
	return st, nil
}

func (ms *MemoryStorage) Cleanup(_ context.Context, queue string, olderThan time.Duration) (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	cutoff := ms.now().Add(-olderThan)
	removed := 0
	for id, job := range ms.jobs {
		if job.Queue != queue || !job.Status.Terminal() {
			continue
		}
		if job.ProcessedAt != nil && job.ProcessedAt.Before(cutoff) {
			delete(ms.jobs, id)
			removed++
		}
	}
	return removed, nil
}

// active must be called with the lock held.
func (ms *MemoryStorage) active(id uuid.UUID) (*Job, error) {
	job, ok := ms.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	if job.Status != StatusActive {
		return nil, fmt.Errorf("%w: %s is %s", ErrJobNotActive, id, job.Status)
	}
	return job, nil
}
