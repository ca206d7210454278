package templates

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// MemoryStorage keeps templates in process memory.
type MemoryStorage struct {
	mu    sync.RWMutex
	byID  map[uuid.UUID]Template
	byKey map[Key]uuid.UUID
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		byID:  make(map[uuid.UUID]Template),
		byKey: make(map[Key]uuid.UUID),
	}
}

func (s *MemoryStorage) Create(_ context.Context, t Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byKey[t.Key()]; ok {
		return ErrDuplicateTemplate
	}
	if _, ok := s.byID[t.ID]; ok {
		return ErrDuplicateTemplate
	}
	s.byID[t.ID] = clone(t)
	s.byKey[t.Key()] = t.ID
	return nil
}

func (s *MemoryStorage) Get(_ context.Context, id uuid.UUID) (Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.byID[id]
	if !ok {
		return Template{}, ErrTemplateNotFound
	}
	return clone(t), nil
}

func (s *MemoryStorage) GetByKey(_ context.Context, key Key) (Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byKey[key]
	if !ok {
		return Template{}, ErrTemplateNotFound
	}
	return clone(s.byID[id]), nil
}

func (s *MemoryStorage) ListByEvent(ctx context.Context, eventKey string, activeOnly bool) ([]Template, error) {
	f := Filter{EventKey: eventKey}
	if activeOnly {
		active := true
		f.Active = &active
	}
	return s.List(ctx, f)
}

func (s *MemoryStorage) Update(_ context.Context, t Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.byID[t.ID]
	if !ok {
		return ErrTemplateNotFound
	}
	if t.Key() != old.Key() {
		if _, taken := s.byKey[t.Key()]; taken {
			return ErrDuplicateTemplate
		}
		delete(s.byKey, old.Key())
		s.byKey[t.Key()] = t.ID
	}
	s.byID[t.ID] = clone(t)
	return nil
}

func (s *MemoryStorage) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[id]
	if !ok {
		return ErrTemplateNotFound
	}
	delete(s.byID, id)
	delete(s.byKey, t.Key())
	return nil
}

func (s *MemoryStorage) List(_ context.Context, f Filter) ([]Template, error) {
	s.mu.RLock()
	out := make([]Template, 0, len(s.byID))
	for _, t := range s.byID {
		if f.match(t) {
			out = append(out, clone(t))
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b Template) int {
		return cmp.Or(
			cmp.Compare(a.EventKey, b.EventKey),
			cmp.Compare(a.Channel, b.Channel),
		)
	})
	return paginate(out, f.Limit, f.Offset), nil
}

func (s *MemoryStorage) EventKeys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	seen := make(map[string]struct{})
	for k := range s.byKey {
		seen[k.EventKey] = struct{}{}
	}
	s.mu.RUnlock()

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys, nil
}

func (s *MemoryStorage) CountActiveByChannel(_ context.Context) (map[notifications.Channel]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[notifications.Channel]int)
	for _, t := range s.byID {
		if t.IsActive {
			counts[t.Channel]++
		}
	}
	return counts, nil
}

func clone(t Template) Template {
	t.Metadata = maps.Clone(t.Metadata)
	return t
}

func paginate(ts []Template, limit, offset int) []Template {
	if offset > 0 {
		if offset >= len(ts) {
			return []Template{}
		}
		ts = ts[offset:]
	}
	if limit > 0 && limit < len(ts) {
		ts = ts[:limit]
	}
	return ts
}
