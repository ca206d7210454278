package broadcast

import (
	"context"
	"sync"
	"time"
)

// Message is one published value together with the key it was published to.
type Message[T any] struct {
	Key    string
	Data   T
	SentAt time.Time
}

// Subscription receives the messages published to one key. Its channel is
// closed when the subscription ends for any reason.
type Subscription[T any] struct {
	key  string
	ch   chan Message[T]
	once sync.Once
	stop func() bool // detaches the context watcher
	room *room[T]
}

// Key returns the key the subscription listens on.
func (s *Subscription[T]) Key() string { return s.key }

// Receive returns the message channel. The context argument is accepted for
// symmetry with blocking transports and is not used.
func (s *Subscription[T]) Receive(context.Context) <-chan Message[T] {
	return s.ch
}

// Close unsubscribes. It is idempotent.
func (s *Subscription[T]) Close() error {
	if s.room != nil {
		s.room.remove(s)
	} else {
		s.finish()
	}
	return nil
}

func (s *Subscription[T]) finish() {
	s.once.Do(func() {
		if s.stop != nil {
			s.stop()
		}
		close(s.ch)
	})
}

// room fans messages for a single key out to its subscriptions. A
// subscription that cannot take a message without blocking is dropped.
type room[T any] struct {
	key        string
	bufferSize int

	mu     sync.Mutex
	subs   map[*Subscription[T]]struct{}
	closed bool
}

func newRoom[T any](key string, bufferSize int) *room[T] {
	return &room[T]{
		key:        key,
		bufferSize: max(bufferSize, 1),
		subs:       make(map[*Subscription[T]]struct{}),
	}
}

func (r *room[T]) subscribe(ctx context.Context) *Subscription[T] {
	sub := &Subscription[T]{key: r.key, ch: make(chan Message[T], r.bufferSize)}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		sub.finish()
		return sub
	}
	sub.room = r
	r.subs[sub] = struct{}{}
	sub.stop = context.AfterFunc(ctx, func() { r.remove(sub) })
	return sub
}

// send delivers msg to every subscription with buffer room and returns how
// many took it.
func (r *room[T]) send(msg Message[T]) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0
	}

	delivered := 0
	for sub := range r.subs {
		select {
		case sub.ch <- msg:
			delivered++
		default:
			delete(r.subs, sub)
			sub.finish()
		}
	}
	return delivered
}

func (r *room[T]) remove(sub *Subscription[T]) {
	r.mu.Lock()
	delete(r.subs, sub)
	r.mu.Unlock()
	sub.finish()
}

func (r *room[T]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

func (r *room[T]) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for sub := range r.subs {
		sub.finish()
	}
	clear(r.subs)
}
