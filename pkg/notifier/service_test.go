package notifier_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/audit"
	"github.com/dmitrymomot/notifykit/pkg/broadcast"
	"github.com/dmitrymomot/notifykit/pkg/dispatcher"
	"github.com/dmitrymomot/notifykit/pkg/metrics"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/notifier"
	"github.com/dmitrymomot/notifykit/pkg/queue"
	"github.com/dmitrymomot/notifykit/pkg/ratelimiter"
	"github.com/dmitrymomot/notifykit/pkg/retry"
	"github.com/dmitrymomot/notifykit/pkg/templates"
)

type recordingProvider struct {
	mu   sync.Mutex
	sent []dispatcher.EmailMessage
}

func (p *recordingProvider) Name() string { return "recording" }

func (p *recordingProvider) Send(_ context.Context, msg dispatcher.EmailMessage) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, msg)
	return "email-" + uuid.NewString(), nil
}

func (p *recordingProvider) Sent() []dispatcher.EmailMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]dispatcher.EmailMessage(nil), p.sent...)
}

type fakePublisher struct {
	mu     sync.Mutex
	topics []string
	bodies [][]byte
}

func (p *fakePublisher) Publish(_ context.Context, routingKey, _ string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, routingKey)
	p.bodies = append(p.bodies, body)
	return nil
}

func (p *fakePublisher) IsClosed() bool { return false }
func (p *fakePublisher) Close() error   { return nil }

func (p *fakePublisher) Envelopes(t *testing.T) []dispatcher.PushEnvelope {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]dispatcher.PushEnvelope, 0, len(p.bodies))
	for _, b := range p.bodies {
		var env dispatcher.PushEnvelope
		require.NoError(t, json.Unmarshal(b, &env))
		out = append(out, env)
	}
	return out
}

type serviceFixture struct {
	service  *notifier.Service
	email    *recordingProvider
	push     *fakePublisher
	hub      *broadcast.Hub[dispatcher.SocketEvent]
	audit    *audit.MemoryStorage
	queue    *queue.MemoryStorage
	registry *prometheus.Registry
}

func newService(t *testing.T, opts ...notifier.Option) *serviceFixture {
	t.Helper()

	email := &recordingProvider{}
	push := &fakePublisher{}
	hub := broadcast.NewHub[dispatcher.SocketEvent]()
	t.Cleanup(func() { _ = hub.Close() })

	factory := dispatcher.NewFactory(dispatcher.WithDispatchers(
		dispatcher.NewEmail(dispatcher.EmailConfig{SenderEmail: "noreply@example.com"}, dispatcher.WithEmailProvider(email)),
		dispatcher.NewPush(dispatcher.PushConfig{DefaultTopic: "push.default"}, push),
		dispatcher.NewSocket(hub),
	))

	store := ratelimiter.NewMemoryStore(ratelimiter.WithSweepInterval(0))
	t.Cleanup(func() { _ = store.Close() })

	cfg := notifier.DefaultConfig()
	cfg.Workers = 2
	cfg.Queue.PollInterval = 10 * time.Millisecond
	cfg.Queue.ShutdownTimeout = time.Second

	qs := queue.NewMemoryStorage()
	auditStore := audit.NewMemoryStorage(100)
	reg := prometheus.NewRegistry()

	svc, err := notifier.New(cfg, notifier.Deps{
		Templates:   templates.NewManager(templates.NewMemoryStorage()),
		Dispatchers: factory,
		Limiter:     ratelimiter.New(store),
		Retries:     retry.New(),
		Queue:       qs,
		Audit:       audit.NewLogger(auditStore),
		Metrics:     metrics.New(reg),
	}, opts...)
	require.NoError(t, err)

	return &serviceFixture{
		service:  svc,
		email:    email,
		push:     push,
		hub:      hub,
		audit:    auditStore,
		queue:    qs,
		registry: reg,
	}
}

func validInput() notifier.Input {
	return notifier.Input{
		Timestamp: "2024-06-01T12:00:00Z",
		Recipient: notifications.Recipient{ID: "user-42", Name: "Grace", Email: "grace@example.com"},
		Data:      map[string]any{"verification_url": "https://example.com/verify"},
	}
}

func TestNew_RequiresQueue(t *testing.T) {
	t.Parallel()

	_, err := notifier.New(notifier.DefaultConfig(), notifier.Deps{})
	require.ErrorIs(t, err, notifier.ErrMissingDependency)
}

func TestService_EnqueueValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		event  string
		mutate func(*notifier.Input)
	}{
		{"missing event", "", func(*notifier.Input) {}},
		{"missing timestamp", "USER_REGISTERED", func(in *notifier.Input) { in.Timestamp = "" }},
		{"bad timestamp", "USER_REGISTERED", func(in *notifier.Input) { in.Timestamp = "yesterday" }},
		{"missing recipient id", "USER_REGISTERED", func(in *notifier.Input) { in.Recipient.ID = "" }},
		{"missing recipient name", "USER_REGISTERED", func(in *notifier.Input) { in.Recipient.Name = "" }},
		{"bad recipient email", "USER_REGISTERED", func(in *notifier.Input) { in.Recipient.Email = "grace" }},
		{"missing data", "USER_REGISTERED", func(in *notifier.Input) { in.Data = nil }},
		{"unknown channel", "USER_REGISTERED", func(in *notifier.Input) { in.Channels = []notifications.Channel{"sms"} }},
	}

	f := newService(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)

			id, err := f.service.Enqueue(context.Background(), tt.event, in)
			require.ErrorIs(t, err, notifier.ErrValidation)
			assert.Equal(t, uuid.Nil, id)
		})
	}

	st, err := f.service.Inspector().Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, st.Pending())
}

func TestService_EnqueueWithoutChannels(t *testing.T) {
	t.Parallel()

	svc, err := notifier.New(notifier.DefaultConfig(), notifier.Deps{
		Templates:   templates.NewManager(templates.NewMemoryStorage()),
		Dispatchers: dispatcher.NewFactory(),
		Limiter:     ratelimiter.New(ratelimiter.NewMemoryStore(ratelimiter.WithSweepInterval(0))),
		Retries:     retry.New(),
		Queue:       queue.NewMemoryStorage(),
	})
	require.NoError(t, err)

	_, err = svc.Enqueue(context.Background(), "USER_REGISTERED", validInput())
	require.ErrorIs(t, err, notifier.ErrNoChannels)
}

func TestService_EnqueueDelayed(t *testing.T) {
	t.Parallel()

	f := newService(t)
	in := validInput()
	in.Delay = time.Hour

	id, err := f.service.Enqueue(context.Background(), "USER_REGISTERED", in)
	require.NoError(t, err)

	job, err := f.queue.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusDelayed, job.Status)
	assert.Equal(t, "USER_REGISTERED", job.EventKey)
}

func TestService_DeliversWithDefaultTemplates(t *testing.T) {
	t.Parallel()

	f := newService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := f.hub.Subscribe(ctx, "user-42")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, f.service.Start(ctx))

	id, err := f.service.Enqueue(ctx, "USER_REGISTERED", validInput())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(f.audit.FindByJob(id.String())) == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, f.service.Stop())

	rec := f.audit.FindByJob(id.String())[0]
	assert.Equal(t, audit.ResultSuccess, rec.Result)
	assert.Equal(t, "USER_REGISTERED", rec.EventKey)
	assert.Equal(t, "user-42", rec.RecipientID)
	assert.Equal(t, true, rec.Metadata["defaulted_templates"])
	require.Len(t, rec.Channels, 3)
	for ch, entry := range rec.Channels {
		assert.Equal(t, string(notifications.StatusSent), entry.Status, ch)
		assert.NotEmpty(t, entry.ExternalID, ch)
	}

	t.Run("email", func(t *testing.T) {
		sent := f.email.Sent()
		require.Len(t, sent, 1)
		assert.Equal(t, "User Registered", sent[0].Subject)
		assert.Equal(t, "grace@example.com", sent[0].To)
		assert.Equal(t, "noreply@example.com", sent[0].From)
		assert.Contains(t, sent[0].TextBody, "Hi Grace,")
	})

	t.Run("push", func(t *testing.T) {
		envs := f.push.Envelopes(t)
		require.Len(t, envs, 1)
		assert.Equal(t, "User Registered", envs[0].Title)
		assert.Equal(t, "Grace, you have a new user registered notification.", envs[0].Body)
		assert.Equal(t, "user-42", envs[0].RecipientID)
	})

	t.Run("socket", func(t *testing.T) {
		select {
		case msg := <-sub.Receive(ctx):
			assert.Equal(t, "user_registered", msg.Data.Event)
			assert.Equal(t, "User Registered", msg.Data.Body)
		case <-time.After(time.Second):
			t.Fatal("socket event not received")
		}
	})

	t.Run("queue and metrics", func(t *testing.T) {
		job, err := f.queue.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusCompleted, job.Status)

		n, err := testutil.GatherAndCount(f.registry, "notifykit_jobs_processed_total")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func TestService_Housekeeping(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	f := newService(t, notifier.WithPeriodicTask(notifier.PeriodicTask{
		Name:     "probe",
		Interval: 20 * time.Millisecond,
		Run: func(context.Context) error {
			runs.Add(1)
			return errors.New("probe failure is logged, not fatal")
		},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	run := f.service.Run(ctx)

	done := make(chan error, 1)
	go func() { done <- run() }()

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("service did not stop")
	}

	stopped := runs.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, stopped, runs.Load())
}

func TestService_Health(t *testing.T) {
	t.Parallel()

	f := newService(t)
	health := f.service.Health(context.Background())
	assert.Equal(t, map[notifications.Channel]bool{
		notifications.ChannelEmail:  true,
		notifications.ChannelPush:   true,
		notifications.ChannelSocket: true,
	}, health)
}
