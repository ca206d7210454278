package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Storage persists jobs. Claim must hand a job to exactly one caller.
type Storage interface {
	// Create stores a new job.
	Create(ctx context.Context, job *Job) error
	// Get returns a copy of the job.
	Get(ctx context.Context, id uuid.UUID) (*Job, error)
	// Claim locks the earliest due job of queue for lock, marks it active and
	// increments its attempts. It returns ErrNoJob when nothing is due.
	Claim(ctx context.Context, queue string, lock time.Duration) (*Job, error)
	// Complete marks an active job completed.
	Complete(ctx context.Context, id uuid.UUID) error
	// Fail records reason on an active job. The job is rescheduled after
	// retryIn unless its attempts are spent or retryIn is negative, in which
	// case it is marked failed. The updated job is returned.
	Fail(ctx context.Context, id uuid.UUID, reason string, retryIn time.Duration) (*Job, error)
	// ExtendLock pushes the lock of an active job forward by d.
	ExtendLock(ctx context.Context, id uuid.UUID, d time.Duration) error
	// RecoverExpired returns active jobs whose lock expired to the waiting state.
	RecoverExpired(ctx context.Context, queue string) (int, error)
	// Stats counts the jobs of queue by state.
	Stats(ctx context.Context, queue string) (Stats, error)
	// Cleanup removes completed and failed jobs of queue finished more than
	// olderThan ago.
	Cleanup(ctx context.Context, queue string, olderThan time.Duration) (int, error)
}
