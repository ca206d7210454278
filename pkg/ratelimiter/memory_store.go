package ratelimiter

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"
)

const (
	defaultSweepInterval = 5 * time.Minute
	defaultIdleTimeout   = time.Hour
)

// window is the state of one key. Timestamps are accepted requests in
// ascending order, none older than DayWindow after pruning.
type window struct {
	mu         sync.Mutex
	timestamps []time.Time
	burst      int
	burstReset time.Time
	lastAccept time.Time
	createdAt  time.Time
	evicted    bool
}

// MemoryStore keeps limiter state in process memory. Each key has its own
// lock so checks for different recipients never contend.
type MemoryStore struct {
	mu      sync.RWMutex
	windows map[string]*window

	sweepInterval time.Duration
	idleTimeout   time.Duration
	now           func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithSweepInterval sets how often idle keys are removed. Zero disables the
// background sweep.
func WithSweepInterval(d time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) { s.sweepInterval = d }
}

// WithIdleTimeout sets how long a key may go without an accepted request
// before the sweep removes it.
func WithIdleTimeout(d time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		if d > 0 {
			s.idleTimeout = d
		}
	}
}

// WithStoreClock sets the time source of the background sweep.
func WithStoreClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		windows:       make(map[string]*window),
		sweepInterval: defaultSweepInterval,
		idleTimeout:   defaultIdleTimeout,
		now:           time.Now,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.sweepInterval > 0 {
		go s.sweepLoop()
	} else {
		close(s.done)
	}
	return s
}

func (s *MemoryStore) Take(ctx context.Context, key string, limits Limits, now time.Time) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	for {
		w := s.window(key, now)
		w.mu.Lock()
		if w.evicted {
			// swept between lookup and lock, start over with a fresh window
			w.mu.Unlock()
			continue
		}
		res := w.take(limits, now)
		w.mu.Unlock()
		return res, nil
	}
}

func (s *MemoryStore) Peek(ctx context.Context, key string, limits Limits, now time.Time) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	s.mu.RLock()
	w, ok := s.windows[key]
	s.mu.RUnlock()
	if !ok {
		return evaluate(limits, Counts{}), nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return evaluate(limits, w.counts(now)), nil
}

func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	w, ok := s.windows[key]
	delete(s.windows, key)
	s.mu.Unlock()

	if ok {
		w.mu.Lock()
		w.evicted = true
		w.mu.Unlock()
	}
	return nil
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.windows)
}

// Sweep removes keys without an accepted request within the idle timeout
// before now and returns how many were removed.
func (s *MemoryStore) Sweep(now time.Time) int {
	cutoff := now.Add(-s.idleTimeout)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, w := range s.windows {
		w.mu.Lock()
		last := w.lastAccept
		if last.IsZero() {
			last = w.createdAt
		}
		if last.Before(cutoff) {
			w.evicted = true
			delete(s.windows, key)
			removed++
		}
		w.mu.Unlock()
	}
	return removed
}

// Close stops the background sweep. It is safe to call more than once.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
	return nil
}

func (s *MemoryStore) window(key string, now time.Time) *window {
	s.mu.RLock()
	w, ok := s.windows[key]
	s.mu.RUnlock()
	if ok {
		return w
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.windows[key]; ok {
		return w
	}
	w = &window{burstReset: now, createdAt: now}
	s.windows[key] = w
	return w
}

func (s *MemoryStore) sweepLoop() {
	defer close(s.done)

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep(s.now())
		case <-s.stop:
			return
		}
	}
}

// take must be called with w.mu held.
func (w *window) take(limits Limits, now time.Time) Result {
	w.prune(now)
	if now.Sub(w.burstReset) >= BurstWindow {
		w.burst = 0
		w.burstReset = now
	}

	res := evaluate(limits, w.counts(now))
	if !res.Allowed {
		return res
	}

	w.timestamps = append(w.timestamps, now)
	w.burst++
	w.lastAccept = now
	return res
}

// prune drops timestamps older than DayWindow.
func (w *window) prune(now time.Time) {
	cutoff := now.Add(-DayWindow)
	i := sort.Search(len(w.timestamps), func(i int) bool {
		return w.timestamps[i].After(cutoff)
	})
	if i > 0 {
		w.timestamps = slices.Delete(w.timestamps, 0, i)
	}
}

// counts computes window counts without mutating state.
func (w *window) counts(now time.Time) Counts {
	var c Counts
	if now.Sub(w.burstReset) < BurstWindow {
		c.Burst = w.burst
	}
	minute := now.Add(-MinuteWindow)
	hour := now.Add(-HourWindow)
	day := now.Add(-DayWindow)
	for _, ts := range w.timestamps {
		if ts.After(day) {
			c.Day++
		}
		if ts.After(hour) {
			c.Hour++
		}
		if ts.After(minute) {
			c.Minute++
		}
	}
	return c
}
