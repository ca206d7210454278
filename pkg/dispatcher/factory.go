package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// DefaultTimeout bounds a single Send made through the Factory.
const DefaultTimeout = 10 * time.Second

// Factory resolves dispatchers by channel.
type Factory struct {
	mu          sync.RWMutex
	dispatchers map[notifications.Channel]Dispatcher
	timeout     time.Duration
	logger      *slog.Logger
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithTimeout sets the per-send timeout used by Factory.Send.
func WithTimeout(d time.Duration) FactoryOption {
	return func(f *Factory) { f.timeout = d }
}

func WithLogger(l *slog.Logger) FactoryOption {
	return func(f *Factory) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithDispatchers registers dispatchers at construction.
func WithDispatchers(ds ...Dispatcher) FactoryOption {
	return func(f *Factory) {
		for _, d := range ds {
			f.dispatchers[d.Channel()] = d
		}
	}
}

func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{
		dispatchers: make(map[notifications.Channel]Dispatcher),
		timeout:     DefaultTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Register adds d, replacing any dispatcher already registered for its channel.
func (f *Factory) Register(d Dispatcher) {
	f.mu.Lock()
	f.dispatchers[d.Channel()] = d
	f.mu.Unlock()
}

// Get returns the dispatcher of ch or ErrUnsupportedChannel.
func (f *Factory) Get(ch notifications.Channel) (Dispatcher, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	d, ok := f.dispatchers[ch]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedChannel, ch)
	}
	return d, nil
}

// Channels returns registered channels in the order of notifications.Channels,
// followed by any others sorted by name.
func (f *Factory) Channels() []notifications.Channel {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]notifications.Channel, 0, len(f.dispatchers))
	for _, ch := range notifications.Channels() {
		if _, ok := f.dispatchers[ch]; ok {
			out = append(out, ch)
		}
	}
	var extra []notifications.Channel
	for ch := range f.dispatchers {
		if !slices.Contains(out, ch) {
			extra = append(extra, ch)
		}
	}
	slices.Sort(extra)
	return append(out, extra...)
}

// Send dispatches msg on ch within the factory timeout.
// Only an unregistered channel produces an error.
func (f *Factory) Send(ctx context.Context, ch notifications.Channel, msg Message) (notifications.DispatchResult, error) {
	d, err := f.Get(ch)
	if err != nil {
		return notifications.DispatchResult{}, err
	}

	start := time.Now()
	res := SendWithTimeout(ctx, d, msg, f.timeout)

	level := slog.LevelDebug
	if !res.Succeeded() {
		level = slog.LevelWarn
	}
	attrs := []slog.Attr{
		logger.Component("dispatcher"),
		logger.Channel(string(ch)),
		logger.EventKey(msg.Payload.Event),
		logger.RecipientID(msg.Payload.Recipient.ID),
		logger.Status(string(res.Status)),
		logger.MessageID(res.ExternalID),
		logger.Duration(time.Since(start)),
	}
	if res.Error != "" {
		attrs = append(attrs, slog.String("error", res.Error))
	}
	f.logger.LogAttrs(ctx, level, "notification dispatched", attrs...)
	return res, nil
}

// Health reports IsHealthy for every registered channel.
func (f *Factory) Health(ctx context.Context) map[notifications.Channel]bool {
	f.mu.RLock()
	ds := maps.Clone(f.dispatchers)
	f.mu.RUnlock()

	out := make(map[notifications.Channel]bool, len(ds))
	for ch, d := range ds {
		out[ch] = d.IsHealthy(ctx)
	}
	return out
}

// Configs returns the public configuration of every registered channel.
func (f *Factory) Configs() []PublicConfig {
	out := make([]PublicConfig, 0)
	for _, ch := range f.Channels() {
		if d, err := f.Get(ch); err == nil {
			out = append(out, d.Config())
		}
	}
	return out
}
