package audit

import (
	"context"
	"slices"
	"sync"
)

// MemoryStorage keeps records in memory. It is meant for tests and for
// inspecting recent activity in single-process deployments.
type MemoryStorage struct {
	mu      sync.RWMutex
	records []Record
	limit   int
}

// NewMemoryStorage keeps at most limit records, dropping the oldest. A
// non-positive limit keeps everything.
func NewMemoryStorage(limit int) *MemoryStorage {
	return &MemoryStorage{limit: limit}
}

func (s *MemoryStorage) Store(ctx context.Context, r Record) error {
	return s.StoreBatch(ctx, []Record{r})
}

func (s *MemoryStorage) StoreBatch(ctx context.Context, records []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, records...)
	if s.limit > 0 && len(s.records) > s.limit {
		s.records = slices.Clone(s.records[len(s.records)-s.limit:])
	}
	return nil
}

// Records returns a copy of the stored records, oldest first.
func (s *MemoryStorage) Records() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.records)
}

// FindByJob returns the records of the given job.
func (s *MemoryStorage) FindByJob(jobID string) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for _, r := range s.records {
		if r.JobID == jobID {
			out = append(out, r)
		}
	}
	return out
}

func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
