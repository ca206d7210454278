package notifier_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/audit"
	"github.com/dmitrymomot/notifykit/pkg/dispatcher"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/notifier"
	"github.com/dmitrymomot/notifykit/pkg/ratelimiter"
	"github.com/dmitrymomot/notifykit/pkg/retry"
	"github.com/dmitrymomot/notifykit/pkg/templates"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// stubDispatcher replays results in order and repeats the last one.
type stubDispatcher struct {
	channel notifications.Channel

	mu       sync.Mutex
	results  []notifications.DispatchResult
	messages []dispatcher.Message
}

func newStub(ch notifications.Channel, results ...notifications.DispatchResult) *stubDispatcher {
	if len(results) == 0 {
		results = []notifications.DispatchResult{notifications.Sent(string(ch)+"-id", time.Now())}
	}
	return &stubDispatcher{channel: ch, results: results}
}

func (s *stubDispatcher) Channel() notifications.Channel { return s.channel }

func (s *stubDispatcher) Send(_ context.Context, msg dispatcher.Message) notifications.DispatchResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.messages)
	s.messages = append(s.messages, msg)
	if n >= len(s.results) {
		n = len(s.results) - 1
	}
	return s.results[n]
}

func (s *stubDispatcher) IsHealthy(context.Context) bool { return true }

func (s *stubDispatcher) Config() dispatcher.PublicConfig {
	return dispatcher.PublicConfig{Channel: s.channel, Configured: true}
}

func (s *stubDispatcher) Messages() []dispatcher.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]dispatcher.Message(nil), s.messages...)
}

// hangingDispatcher blocks every send until ctx is done.
type hangingDispatcher struct {
	channel notifications.Channel

	mu    sync.Mutex
	calls int
}

func (h *hangingDispatcher) Channel() notifications.Channel { return h.channel }

func (h *hangingDispatcher) Send(ctx context.Context, _ dispatcher.Message) notifications.DispatchResult {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
	<-ctx.Done()
	return notifications.Failed("%v", ctx.Err())
}

func (h *hangingDispatcher) IsHealthy(context.Context) bool { return true }

func (h *hangingDispatcher) Config() dispatcher.PublicConfig {
	return dispatcher.PublicConfig{Channel: h.channel, Configured: true}
}

func (h *hangingDispatcher) Calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

// flakyStorage fails ListByEvent while an error is set.
type flakyStorage struct {
	*templates.MemoryStorage

	mu  sync.Mutex
	err error
}

func (s *flakyStorage) SetErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *flakyStorage) ListByEvent(ctx context.Context, eventKey string, activeOnly bool) ([]templates.Template, error) {
	s.mu.Lock()
	err := s.err
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.MemoryStorage.ListByEvent(ctx, eventKey, activeOnly)
}

type fixture struct {
	clock     *clock
	templates *templates.Manager
	storage   *flakyStorage
	retries   *retry.Service
	audit     *audit.MemoryStorage
	processor *notifier.Processor
	driver    *notifier.RetryDriver
}

type fixtureOpts struct {
	dispatchers []dispatcher.Dispatcher
	limits      map[notifications.Channel]ratelimiter.Limits
	policy      retry.Policy
	// timeout bounds both the factory send and the processor channel
	// pipeline, as serve wires them.
	timeout time.Duration
}

func newFixture(t *testing.T, o fixtureOpts) *fixture {
	t.Helper()

	c := newClock()
	storage := &flakyStorage{MemoryStorage: templates.NewMemoryStorage()}
	tm := templates.NewManager(storage, templates.WithClock(c.Now))

	limiterOpts := []ratelimiter.Option{
		ratelimiter.WithConfig(ratelimiter.ChannelLimits{}),
		ratelimiter.WithClock(c.Now),
	}
	for ch, l := range o.limits {
		limiterOpts = append(limiterOpts, ratelimiter.WithChannelLimits(ch, l))
	}
	store := ratelimiter.NewMemoryStore(ratelimiter.WithSweepInterval(0))
	t.Cleanup(func() { _ = store.Close() })
	limiter := ratelimiter.New(store, limiterOpts...)

	policy := o.policy
	if policy.MaxAttempts == 0 {
		policy = retry.Policy{InitialDelay: time.Second, Multiplier: 2, MaxDelay: time.Minute, MaxAttempts: 3}
	}
	retries := retry.New(retry.WithPolicy(policy), retry.WithClock(c.Now))

	auditStore := audit.NewMemoryStorage(100)
	factoryOpts := []dispatcher.FactoryOption{dispatcher.WithDispatchers(o.dispatchers...)}
	procOpts := []notifier.ProcessorOption{
		notifier.WithAudit(audit.NewLogger(auditStore, audit.WithClock(c.Now))),
		notifier.WithClock(c.Now),
	}
	if o.timeout > 0 {
		factoryOpts = append(factoryOpts, dispatcher.WithTimeout(o.timeout))
		procOpts = append(procOpts, notifier.WithChannelTimeout(o.timeout))
	}
	factory := dispatcher.NewFactory(factoryOpts...)

	p, err := notifier.NewProcessor(tm, factory, limiter, retries, procOpts...)
	require.NoError(t, err)

	return &fixture{
		clock:     c,
		templates: tm,
		storage:   storage,
		retries:   retries,
		audit:     auditStore,
		processor: p,
		driver:    notifier.NewRetryDriver(p),
	}
}

func testPayload(event string, channels ...notifications.Channel) notifier.JobPayload {
	return notifier.JobPayload{
		Payload: notifications.Payload{
			Event:     event,
			Timestamp: time.Date(2024, 6, 1, 11, 59, 0, 0, time.UTC),
			Recipient: notifications.Recipient{ID: "user-1", Name: "Ada", Email: "ada@example.com"},
			Data:      map[string]any{"order_id": "A-100"},
		},
		Channels: channels,
	}
}
