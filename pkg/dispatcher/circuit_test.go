package dispatcher_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/dispatcher"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

func TestCircuitBreaker_Transitions(t *testing.T) {
	t.Parallel()

	cb := dispatcher.NewCircuitBreaker(2, 1, 20*time.Millisecond)
	assert.Equal(t, dispatcher.CircuitClosed, cb.State())

	cb.RecordFailure()
	assert.True(t, cb.Allow())
	cb.RecordFailure()
	assert.Equal(t, dispatcher.CircuitOpen, cb.State())
	assert.False(t, cb.Allow())

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, dispatcher.CircuitHalfOpen, cb.State())
	assert.True(t, cb.Allow())

	cb.RecordSuccess()
	assert.Equal(t, dispatcher.CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	cb := dispatcher.NewCircuitBreaker(1, 1, 20*time.Millisecond)
	cb.RecordFailure()
	time.Sleep(30 * time.Millisecond)
	assert.True(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, dispatcher.CircuitOpen, cb.State())

	cb.Reset()
	assert.Equal(t, dispatcher.CircuitClosed, cb.State())
	assert.Equal(t, "closed", cb.State().String())
}

func TestWithBreaker(t *testing.T) {
	t.Parallel()

	inner := &stubDispatcher{
		channel: notifications.ChannelEmail,
		healthy: true,
		result:  notifications.Failed("smtp down"),
	}
	d := dispatcher.WithBreaker(inner, dispatcher.NewCircuitBreaker(2, 1, time.Hour))
	ctx := context.Background()

	d.Send(ctx, dispatcher.Message{})
	d.Send(ctx, dispatcher.Message{})
	assert.Equal(t, 2, inner.Calls())
	assert.False(t, d.IsHealthy(ctx))
	assert.Equal(t, "open", d.Config().Details["circuit"])

	res := d.Send(ctx, dispatcher.Message{})
	assert.Equal(t, 2, inner.Calls())
	assert.True(t, res.Retryable())
	assert.Contains(t, res.Error, "circuit open")
}

func TestWithBreaker_PermanentFailuresIgnored(t *testing.T) {
	t.Parallel()

	inner := &stubDispatcher{
		channel: notifications.ChannelEmail,
		healthy: true,
		result:  notifications.PermanentFailure("not configured"),
	}
	d := dispatcher.WithBreaker(inner, dispatcher.NewCircuitBreaker(1, 1, time.Hour))

	for range 3 {
		d.Send(context.Background(), dispatcher.Message{})
	}
	assert.Equal(t, 3, inner.Calls())
	assert.True(t, d.IsHealthy(context.Background()))
}

func TestCircuitBreaker_SingleProbe(t *testing.T) {
	t.Parallel()

	cb := dispatcher.NewCircuitBreaker(1, 2, 10*time.Millisecond)
	cb.RecordFailure()
	require.Eventually(t, func() bool { return cb.State() == dispatcher.CircuitHalfOpen }, time.Second, 5*time.Millisecond)

	assert.True(t, cb.Allow())
	assert.False(t, cb.Allow(), "second probe waits for the first")

	cb.RecordSuccess()
	assert.Equal(t, dispatcher.CircuitHalfOpen, cb.State(), "one of two probes succeeded")
	assert.True(t, cb.Allow())
	cb.RecordSuccess()
	assert.Equal(t, dispatcher.CircuitClosed, cb.State())
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	t.Parallel()

	cb := dispatcher.NewCircuitBreaker(2, 1, time.Hour)
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	assert.Equal(t, dispatcher.CircuitClosed, cb.State())
}
