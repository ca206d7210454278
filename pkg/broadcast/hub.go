package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/cache"
)

const (
	defaultHubCapacity   = 10000
	defaultHubBufferSize = 16
)

// Hub routes messages to per-key rooms, typically one per recipient.
// At most Capacity keys are tracked; the least recently used key is evicted
// and its subscribers are closed.
type Hub[T any] struct {
	mu         sync.RWMutex
	closed     bool
	bufferSize int
	rooms      *cache.LRU[string, *room[T]]
}

// HubOption configures a Hub.
type HubOption func(*hubOptions)

type hubOptions struct {
	capacity   int
	bufferSize int
}

// WithCapacity sets the maximum number of tracked keys.
func WithCapacity(n int) HubOption {
	return func(o *hubOptions) {
		if n > 0 {
			o.capacity = n
		}
	}
}

// WithBufferSize sets the per-subscriber message buffer.
func WithBufferSize(n int) HubOption {
	return func(o *hubOptions) {
		if n > 0 {
			o.bufferSize = n
		}
	}
}

func NewHub[T any](opts ...HubOption) *Hub[T] {
	o := hubOptions{capacity: defaultHubCapacity, bufferSize: defaultHubBufferSize}
	for _, opt := range opts {
		opt(&o)
	}

	return &Hub[T]{
		bufferSize: o.bufferSize,
		rooms: cache.New(o.capacity, cache.WithEvictCallback(func(_ string, r *room[T]) {
			r.close()
		})),
	}
}

// Subscribe registers a subscriber for key. It lives until ctx is cancelled,
// the subscriber is closed, or the key is evicted.
func (h *Hub[T]) Subscribe(ctx context.Context, key string) (*Subscription[T], error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return nil, ErrHubClosed
	}

	r := h.rooms.GetOrCreate(key, func() *room[T] {
		return newRoom[T](key, h.bufferSize)
	})
	return r.subscribe(ctx), nil
}

// Publish sends data to every subscriber of key and returns how many
// received it. Keys without subscribers receive nothing.
func (h *Hub[T]) Publish(ctx context.Context, key string, data T) (int, error) {
	if key == "" {
		return 0, ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return 0, ErrHubClosed
	}

	r, ok := h.rooms.Get(key)
	if !ok {
		return 0, nil
	}
	return r.send(Message[T]{Key: key, Data: data, SentAt: time.Now()}), nil
}

// Subscribers returns the number of active subscribers of key.
func (h *Hub[T]) Subscribers(key string) int {
	r, ok := h.rooms.Get(key)
	if !ok {
		return 0
	}
	return r.len()
}

// Keys returns tracked keys, most recently used first.
func (h *Hub[T]) Keys() []string {
	return h.rooms.Keys()
}

// Prune drops keys that have no subscribers left and returns how many were dropped.
func (h *Hub[T]) Prune() int {
	removed := 0
	for _, key := range h.rooms.Keys() {
		r, ok := h.rooms.Get(key)
		if ok && r.len() == 0 && h.rooms.Remove(key) {
			removed++
		}
	}
	return removed
}

// Closed reports whether Close was called.
func (h *Hub[T]) Closed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}

// Close ends every subscription. It is safe to call more than once.
func (h *Hub[T]) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	h.rooms.Purge()
	return nil
}
