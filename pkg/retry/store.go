package retry

import "context"

// UpdateFunc receives the current entry, or nil when none exists, and returns
// the entry to store. Returning nil removes the entry.
type UpdateFunc func(current *Entry) (*Entry, error)

// Store persists retry entries. Update must run fn atomically for its id.
type Store interface {
	Get(ctx context.Context, id string) (Entry, error)
	Update(ctx context.Context, id string, fn UpdateFunc) error
	Delete(ctx context.Context, id string) error
	// Range calls fn for a snapshot of every entry until fn returns false.
	Range(ctx context.Context, fn func(Entry) bool) error
}
