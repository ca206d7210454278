package retry

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// DefaultCleanupHorizon is how long failed entries are kept for inspection.
const DefaultCleanupHorizon = 24 * time.Hour

// Service records delivery attempts and decides when the next one is due.
// It never schedules work itself; callers poll Ready.
type Service struct {
	store  Store
	policy Policy
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithPolicy(p Policy) Option {
	return func(s *Service) { s.policy = p.normalize() }
}

func WithStore(store Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Service with DefaultPolicy and a MemoryStore unless options
// say otherwise.
func New(opts ...Option) *Service {
	s := &Service{
		store:  NewMemoryStore(),
		policy: DefaultPolicy(),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the active policy.
func (s *Service) Policy() Policy {
	return s.policy
}

// RecordFailure appends a failed attempt for id, creating the entry on first
// failure. The entry moves to retrying with NextRetryAt set, or to failed once
// the attempt budget is spent. Failed entries reject further records with
// ErrContextSealed.
func (s *Service) RecordFailure(
	ctx context.Context,
	id string,
	channel notifications.Channel,
	recipientID string,
	payload notifications.Payload,
	result notifications.DispatchResult,
) (Entry, error) {
	if id == "" {
		return Entry{}, ErrEmptyID
	}

	var out Entry
	err := s.store.Update(ctx, id, func(cur *Entry) (*Entry, error) {
		now := s.now()
		if cur == nil {
			cur = &Entry{
				ID:          id,
				Channel:     channel,
				RecipientID: recipientID,
				Payload:     payload,
				Status:      StatusPending,
				CreatedAt:   now,
			}
		}
		if cur.Status == StatusFailed {
			return nil, ErrContextSealed
		}

		cur.Attempts = append(cur.Attempts, Attempt{
			Number:    len(cur.Attempts) + 1,
			Timestamp: now,
			Result:    result,
		})
		cur.UpdatedAt = now

		if s.policy.Exhausted(len(cur.Attempts)) {
			cur.Status = StatusFailed
			cur.NextRetryAt = nil
		} else {
			cur.Status = StatusRetrying
			next := now.Add(s.policy.Delay(len(cur.Attempts)))
			cur.NextRetryAt = &next
		}
		out = cur.clone()
		return cur, nil
	})
	if err != nil {
		return Entry{}, err
	}

	attrs := []slog.Attr{
		logger.Component("retry"),
		logger.RetryID(id),
		logger.Channel(string(out.Channel)),
		logger.Attempt(len(out.Attempts)),
		logger.Status(string(out.Status)),
	}
	if out.Status == StatusFailed {
		s.logger.LogAttrs(ctx, slog.LevelWarn, "retry attempts exhausted", attrs...)
	} else {
		s.logger.LogAttrs(ctx, slog.LevelDebug, "retry scheduled",
			append(attrs, slog.Time("next_retry_at", *out.NextRetryAt))...)
	}
	return out, nil
}

// RecordPermanent appends a failed attempt for an existing entry and seals it
// as failed regardless of the remaining attempt budget.
func (s *Service) RecordPermanent(ctx context.Context, id string, result notifications.DispatchResult) (Entry, error) {
	if id == "" {
		return Entry{}, ErrEmptyID
	}

	var out Entry
	err := s.store.Update(ctx, id, func(cur *Entry) (*Entry, error) {
		if cur == nil {
			return nil, ErrNotFound
		}
		if cur.Status == StatusFailed {
			return nil, ErrContextSealed
		}
		now := s.now()
		cur.Attempts = append(cur.Attempts, Attempt{
			Number:    len(cur.Attempts) + 1,
			Timestamp: now,
			Result:    result,
		})
		cur.Status = StatusFailed
		cur.NextRetryAt = nil
		cur.UpdatedAt = now
		out = cur.clone()
		return cur, nil
	})
	if err != nil {
		return Entry{}, err
	}

	s.logger.LogAttrs(ctx, slog.LevelWarn, "retry failed permanently",
		logger.Component("retry"),
		logger.RetryID(id),
		logger.Channel(string(out.Channel)),
		logger.Attempt(len(out.Attempts)),
		slog.String("error", result.Error),
	)
	return out, nil
}

// RecordSuccess appends a successful attempt and discards the entry.
// The returned entry is the final state before removal.
func (s *Service) RecordSuccess(ctx context.Context, id string, result notifications.DispatchResult) (Entry, error) {
	if id == "" {
		return Entry{}, ErrEmptyID
	}

	var out Entry
	err := s.store.Update(ctx, id, func(cur *Entry) (*Entry, error) {
		if cur == nil {
			return nil, ErrNotFound
		}
		if cur.Status == StatusFailed {
			return nil, ErrContextSealed
		}
		now := s.now()
		cur.Attempts = append(cur.Attempts, Attempt{
			Number:    len(cur.Attempts) + 1,
			Timestamp: now,
			Result:    result,
		})
		cur.Status = StatusSuccess
		cur.NextRetryAt = nil
		cur.UpdatedAt = now
		out = cur.clone()
		return nil, nil
	})
	if err != nil {
		return Entry{}, err
	}

	s.logger.LogAttrs(ctx, slog.LevelDebug, "retry succeeded",
		logger.Component("retry"),
		logger.RetryID(id),
		logger.Attempt(len(out.Attempts)),
	)
	return out, nil
}

// Ready returns retrying entries due at or before now, earliest first.
func (s *Service) Ready(ctx context.Context, now time.Time) ([]Entry, error) {
	var ready []Entry
	err := s.store.Range(ctx, func(e Entry) bool {
		if e.Status == StatusRetrying && e.NextRetryAt != nil && !e.NextRetryAt.After(now) {
			ready = append(ready, e)
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(ready, func(a, b Entry) int {
		return a.NextRetryAt.Compare(*b.NextRetryAt)
	})
	return ready, nil
}

func (s *Service) Get(ctx context.Context, id string) (Entry, error) {
	return s.store.Get(ctx, id)
}

// Stats counts stored entries by status.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.store.Range(ctx, func(e Entry) bool {
		switch e.Status {
		case StatusPending:
			st.Pending++
		case StatusRetrying:
			st.Retrying++
		case StatusSuccess:
			st.Success++
		case StatusFailed:
			st.Failed++
		}
		return true
	})
	return st, err
}

// Cleanup removes terminal entries last updated before now minus horizon.
// A non-positive horizon means DefaultCleanupHorizon.
func (s *Service) Cleanup(ctx context.Context, horizon time.Duration) (int, error) {
	if horizon <= 0 {
		horizon = DefaultCleanupHorizon
	}
	cutoff := s.now().Add(-horizon)

	var stale []string
	if err := s.store.Range(ctx, func(e Entry) bool {
		if e.Status.Terminal() && e.UpdatedAt.Before(cutoff) {
			stale = append(stale, e.ID)
		}
		return true
	}); err != nil {
		return 0, err
	}

	removed := 0
	var errs []error
	for _, id := range stale {
		err := s.store.Update(ctx, id, func(cur *Entry) (*Entry, error) {
			// recheck under the lock
			if cur == nil || !cur.Status.Terminal() || !cur.UpdatedAt.Before(cutoff) {
				return cur, nil
			}
			removed++
			return nil, nil
		})
		if err != nil {
			errs = append(errs, err)
		}
	}

	if removed > 0 {
		s.logger.LogAttrs(ctx, slog.LevelInfo, "retry entries cleaned up",
			logger.Component("retry"),
			slog.Int("removed", removed),
		)
	}
	return removed, errors.Join(errs...)
}
