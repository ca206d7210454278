package retry

import (
	"context"
	"hash/fnv"
	"sync"
)

const shardCount = 32

type shard struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// MemoryStore keeps entries in process memory, spread over lock shards by id.
type MemoryStore struct {
	shards [shardCount]*shard
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]Entry)}
	}
	return s
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	sh := s.shard(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	e, ok := sh.entries[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e.clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, fn UpdateFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sh := s.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	var current *Entry
	if e, ok := sh.entries[id]; ok {
		c := e.clone()
		current = &c
	}

	next, err := fn(current)
	if err != nil {
		return err
	}
	if next == nil {
		delete(sh.entries, id)
		return nil
	}
	sh.entries[id] = next.clone()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sh := s.shard(id)
	sh.mu.Lock()
	delete(sh.entries, id)
	sh.mu.Unlock()
	return nil
}

func (s *MemoryStore) Range(ctx context.Context, fn func(Entry) bool) error {
	for _, sh := range s.shards {
		if err := ctx.Err(); err != nil {
			return err
		}

		sh.mu.RLock()
		snapshot := make([]Entry, 0, len(sh.entries))
		for _, e := range sh.entries {
			snapshot = append(snapshot, e.clone())
		}
		sh.mu.RUnlock()

		for _, e := range snapshot {
			if !fn(e) {
				return nil
			}
		}
	}
	return nil
}

func (s *MemoryStore) shard(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return s.shards[h.Sum32()%shardCount]
}
