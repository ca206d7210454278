package ratelimiter

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// Limiter enforces per-channel limits for each recipient.
type Limiter struct {
	store  Store
	limits map[notifications.Channel]Limits
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithChannelLimits overrides the limits of one channel.
func WithChannelLimits(ch notifications.Channel, l Limits) Option {
	return func(rl *Limiter) { rl.limits[ch] = l }
}

// WithConfig replaces the limits of every channel.
func WithConfig(cfg ChannelLimits) Option {
	return func(rl *Limiter) { rl.limits = cfg.Map() }
}

// WithClock sets the time source used to evaluate windows.
func WithClock(now func() time.Time) Option {
	return func(rl *Limiter) {
		if now != nil {
			rl.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(rl *Limiter) {
		if l != nil {
			rl.logger = l
		}
	}
}

// New creates a limiter backed by store, using DefaultConfig limits unless
// options say otherwise.
func New(store Store, opts ...Option) *Limiter {
	rl := &Limiter{
		store:  store,
		limits: DefaultConfig().Map(),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

// Key returns the store key of a channel and recipient pair.
func Key(ch notifications.Channel, recipientID string) string {
	return string(ch) + ":" + recipientID
}

// Check evaluates and, when allowed, records a request for recipientID on ch.
// Channels without configured limits are always allowed.
func (rl *Limiter) Check(ctx context.Context, ch notifications.Channel, recipientID string) (Result, error) {
	if recipientID == "" {
		return Result{}, ErrEmptyKey
	}
	limits, ok := rl.limits[ch]
	if !ok {
		return Result{Allowed: true}, nil
	}

	res, err := rl.store.Take(ctx, Key(ch, recipientID), limits, rl.now())
	if err != nil {
		return Result{}, err
	}
	if !res.Allowed {
		rl.logger.LogAttrs(ctx, slog.LevelDebug, "rate limit exceeded",
			logger.Component("ratelimiter"),
			logger.Channel(string(ch)),
			logger.RecipientID(recipientID),
			slog.String("reason", string(res.Reason)),
			slog.Duration("retry_after", res.RetryAfter),
		)
	}
	return res, nil
}

// Status reports current counts for recipientID on ch without recording a request.
func (rl *Limiter) Status(ctx context.Context, ch notifications.Channel, recipientID string) (Result, error) {
	if recipientID == "" {
		return Result{}, ErrEmptyKey
	}
	limits, ok := rl.limits[ch]
	if !ok {
		return Result{Allowed: true}, nil
	}
	return rl.store.Peek(ctx, Key(ch, recipientID), limits, rl.now())
}

// Reset clears the state of recipientID on ch.
func (rl *Limiter) Reset(ctx context.Context, ch notifications.Channel, recipientID string) error {
	if recipientID == "" {
		return ErrEmptyKey
	}
	return rl.store.Reset(ctx, Key(ch, recipientID))
}

// Limits returns the limits of ch.
func (rl *Limiter) Limits(ch notifications.Channel) (Limits, bool) {
	l, ok := rl.limits[ch]
	return l, ok
}

// Close closes the store when it holds background resources.
func (rl *Limiter) Close() error {
	if c, ok := rl.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
