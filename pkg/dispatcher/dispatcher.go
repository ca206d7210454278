package dispatcher

import (
	"context"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/renderer"
)

// Message is a rendered notification ready for delivery.
type Message struct {
	Title    string
	Body     string
	Metadata renderer.Metadata
	Payload  notifications.Payload
}

// Meta returns the metadata directive key, or fallback when it is absent.
func (m Message) Meta(key, fallback string) string {
	return m.Metadata.GetOr(key, fallback)
}

// PublicConfig describes a dispatcher without exposing secrets.
type PublicConfig struct {
	Channel    notifications.Channel `json:"channel"`
	Provider   string                `json:"provider,omitempty"`
	Configured bool                  `json:"configured"`
	Details    map[string]string     `json:"details,omitempty"`
}

// Dispatcher delivers messages on one channel. Send never returns a Go
// error: provider failures are reported through the result.
type Dispatcher interface {
	Channel() notifications.Channel
	Send(ctx context.Context, msg Message) notifications.DispatchResult
	IsHealthy(ctx context.Context) bool
	Config() PublicConfig
}

// SendWithTimeout runs d.Send bounded by timeout. A send that does not finish
// in time yields a retryable failure. A non-positive timeout means no bound.
func SendWithTimeout(ctx context.Context, d Dispatcher, msg Message, timeout time.Duration) notifications.DispatchResult {
	if timeout <= 0 {
		return d.Send(ctx, msg)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan notifications.DispatchResult, 1)
	go func() {
		done <- d.Send(ctx, msg)
	}()

	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		return notifications.Failed("%s: %s send exceeded %s", ErrTimeout, d.Channel(), timeout)
	}
}
