package dispatcher_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mrz1836/postmark"
	"github.com/stretchr/testify/mock"

	"github.com/dmitrymomot/notifykit/pkg/dispatcher"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

type stubDispatcher struct {
	channel notifications.Channel
	delay   time.Duration
	result  notifications.DispatchResult
	healthy bool

	mu    sync.Mutex
	calls int
}

func (s *stubDispatcher) Channel() notifications.Channel { return s.channel }

func (s *stubDispatcher) Send(ctx context.Context, _ dispatcher.Message) notifications.DispatchResult {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return notifications.Failed("canceled")
		}
	}
	return s.result
}

func (s *stubDispatcher) IsHealthy(context.Context) bool { return s.healthy }

func (s *stubDispatcher) Config() dispatcher.PublicConfig {
	return dispatcher.PublicConfig{Channel: s.channel, Configured: true}
}

func (s *stubDispatcher) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recordingProvider struct {
	name string
	err  error

	mu   sync.Mutex
	sent []dispatcher.EmailMessage
}

func (p *recordingProvider) Name() string { return p.name }

func (p *recordingProvider) Send(_ context.Context, msg dispatcher.EmailMessage) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.sent = append(p.sent, msg)
	return "msg-1", nil
}

func (p *recordingProvider) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

func (p *recordingProvider) Last() dispatcher.EmailMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent[len(p.sent)-1]
}

type mockPostmark struct {
	mock.Mock
}

func (m *mockPostmark) SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(postmark.EmailResponse), args.Error(1)
}

type fakePublisher struct {
	err    error
	closed bool

	mu        sync.Mutex
	published []published
}

type published struct {
	routingKey string
	messageID  string
	body       []byte
}

func (p *fakePublisher) Publish(_ context.Context, routingKey, messageID string, body []byte) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	p.published = append(p.published, published{routingKey, messageID, body})
	p.mu.Unlock()
	return nil
}

func (p *fakePublisher) IsClosed() bool { return p.closed }

func (p *fakePublisher) Close() error {
	p.closed = true
	return nil
}

var errBoom = errors.New("boom")

func testPayload() notifications.Payload {
	return notifications.Payload{
		Event:     "USER_REGISTERED",
		Timestamp: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Recipient: notifications.Recipient{ID: "u-1", Name: "Ann", Email: "ann@example.com"},
		Data:      map[string]any{"app_name": "Acme"},
	}
}
