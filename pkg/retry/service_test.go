package retry_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/retry"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
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

func newService(t *testing.T) (*retry.Service, *clock) {
	t.Helper()
	c := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	return retry.New(retry.WithClock(c.Now)), c
}

func testPayload() notifications.Payload {
	return notifications.Payload{
		Event:     "USER_REGISTERED",
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Recipient: notifications.Recipient{ID: "u1", Name: "Ann", Email: "ann@example.com"},
		Data:      map[string]any{},
	}
}

func TestService_FailureLifecycle(t *testing.T) {
	t.Parallel()

	svc, c := newService(t)
	ctx := context.Background()
	start := c.Now()

	e, err := svc.RecordFailure(ctx, "job:email", notifications.ChannelEmail, "u1", testPayload(), notifications.Failed("smtp down"))
	require.NoError(t, err)
	assert.Equal(t, retry.StatusRetrying, e.Status)
	require.Len(t, e.Attempts, 1)
	assert.Equal(t, 1, e.Attempts[0].Number)
	require.NotNil(t, e.NextRetryAt)
	assert.Equal(t, start.Add(time.Second), *e.NextRetryAt)

	c.Advance(time.Second)
	e, err = svc.RecordFailure(ctx, "job:email", notifications.ChannelEmail, "u1", testPayload(), notifications.Failed("smtp down"))
	require.NoError(t, err)
	assert.Equal(t, retry.StatusRetrying, e.Status)
	assert.Len(t, e.Attempts, 2)
	assert.Equal(t, c.Now().Add(2*time.Second), *e.NextRetryAt)

	c.Advance(2 * time.Second)
	e, err = svc.RecordFailure(ctx, "job:email", notifications.ChannelEmail, "u1", testPayload(), notifications.Failed("smtp down"))
	require.NoError(t, err)
	assert.Equal(t, retry.StatusFailed, e.Status)
	assert.Len(t, e.Attempts, 3)
	assert.Nil(t, e.NextRetryAt)

	_, err = svc.RecordFailure(ctx, "job:email", notifications.ChannelEmail, "u1", testPayload(), notifications.Failed("again"))
	assert.ErrorIs(t, err, retry.ErrContextSealed)

	_, err = svc.RecordSuccess(ctx, "job:email", notifications.Sent("id", c.Now()))
	assert.ErrorIs(t, err, retry.ErrContextSealed)

	stored, err := svc.Get(ctx, "job:email")
	require.NoError(t, err)
	assert.Len(t, stored.Attempts, 3)
}

func TestService_SuccessDiscardsEntry(t *testing.T) {
	t.Parallel()

	svc, c := newService(t)
	ctx := context.Background()

	_, err := svc.RecordFailure(ctx, "id", notifications.ChannelPush, "u1", testPayload(), notifications.Failed("timeout"))
	require.NoError(t, err)

	e, err := svc.RecordSuccess(ctx, "id", notifications.Sent("ext", c.Now()))
	require.NoError(t, err)
	assert.Equal(t, retry.StatusSuccess, e.Status)
	assert.Len(t, e.Attempts, 2)

	_, err = svc.Get(ctx, "id")
	assert.ErrorIs(t, err, retry.ErrNotFound)

	_, err = svc.RecordSuccess(ctx, "id", notifications.Sent("ext", c.Now()))
	assert.ErrorIs(t, err, retry.ErrNotFound)
}

func TestService_PermanentSealsEntry(t *testing.T) {
	t.Parallel()

	svc, c := newService(t)
	ctx := context.Background()

	_, err := svc.RecordFailure(ctx, "id", notifications.ChannelEmail, "u1", testPayload(), notifications.Failed("smtp down"))
	require.NoError(t, err)

	e, err := svc.RecordPermanent(ctx, "id", notifications.PermanentFailure("render email body: missing key"))
	require.NoError(t, err)
	assert.Equal(t, retry.StatusFailed, e.Status)
	assert.Nil(t, e.NextRetryAt)
	require.Len(t, e.Attempts, 2)
	assert.True(t, e.Attempts[1].Result.Permanent)
	assert.Less(t, len(e.Attempts), svc.Policy().MaxAttempts)

	got, err := svc.Get(ctx, "id")
	require.NoError(t, err)
	assert.Equal(t, retry.StatusFailed, got.Status)

	c.Advance(time.Hour)
	ready, err := svc.Ready(ctx, c.Now())
	require.NoError(t, err)
	assert.Empty(t, ready)

	_, err = svc.RecordPermanent(ctx, "id", notifications.PermanentFailure("again"))
	assert.ErrorIs(t, err, retry.ErrContextSealed)
	_, err = svc.RecordFailure(ctx, "id", notifications.ChannelEmail, "u1", testPayload(), notifications.Failed("x"))
	assert.ErrorIs(t, err, retry.ErrContextSealed)

	_, err = svc.RecordPermanent(ctx, "missing", notifications.PermanentFailure("x"))
	assert.ErrorIs(t, err, retry.ErrNotFound)
}

func TestService_RecordOnCanceledContext(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.RecordFailure(ctx, "id", notifications.ChannelPush, "u1", testPayload(), notifications.Failed("x"))
	require.ErrorIs(t, err, context.Canceled)

	e, err := svc.RecordFailure(context.WithoutCancel(ctx), "id", notifications.ChannelPush, "u1", testPayload(), notifications.Failed("x"))
	require.NoError(t, err)
	assert.Equal(t, retry.StatusRetrying, e.Status)
}

func TestService_Ready(t *testing.T) {
	t.Parallel()

	svc, c := newService(t)
	ctx := context.Background()

	_, err := svc.RecordFailure(ctx, "a", notifications.ChannelEmail, "u1", testPayload(), notifications.Failed("x"))
	require.NoError(t, err)
	c.Advance(500 * time.Millisecond)
	_, err = svc.RecordFailure(ctx, "b", notifications.ChannelEmail, "u2", testPayload(), notifications.Failed("x"))
	require.NoError(t, err)

	ready, err := svc.Ready(ctx, c.Now())
	require.NoError(t, err)
	assert.Empty(t, ready)

	ready, err = svc.Ready(ctx, c.Now().Add(600*time.Millisecond))
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, "a", ready[0].ID)

	ready, err = svc.Ready(ctx, c.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, ready, 2)
	assert.Equal(t, "a", ready[0].ID)
	assert.Equal(t, "b", ready[1].ID)
}

func TestService_StatsAndCleanup(t *testing.T) {
	t.Parallel()

	c := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	svc := retry.New(
		retry.WithClock(c.Now),
		retry.WithPolicy(retry.Policy{MaxAttempts: 1}),
	)
	ctx := context.Background()

	_, err := svc.RecordFailure(ctx, "dead", notifications.ChannelEmail, "u1", testPayload(), notifications.Failed("x"))
	require.NoError(t, err)

	st, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, retry.Stats{Failed: 1}, st)
	assert.Equal(t, 1, st.Total())

	removed, err := svc.Cleanup(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, removed)

	c.Advance(25 * time.Hour)
	removed, err = svc.Cleanup(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = svc.Get(ctx, "dead")
	assert.ErrorIs(t, err, retry.ErrNotFound)
}

func TestService_CleanupKeepsActive(t *testing.T) {
	t.Parallel()

	svc, c := newService(t)
	ctx := context.Background()

	_, err := svc.RecordFailure(ctx, "live", notifications.ChannelEmail, "u1", testPayload(), notifications.Failed("x"))
	require.NoError(t, err)

	c.Advance(48 * time.Hour)
	removed, err := svc.Cleanup(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, removed)

	st, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Retrying)
}

func TestService_EmptyID(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	_, err := svc.RecordFailure(context.Background(), "", notifications.ChannelEmail, "u", testPayload(), notifications.Failed("x"))
	assert.ErrorIs(t, err, retry.ErrEmptyID)
}

func TestService_ConcurrentFailuresRespectBudget(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.RecordFailure(ctx, "shared", notifications.ChannelEmail, "u", testPayload(), notifications.Failed("x"))
		}()
	}
	wg.Wait()

	e, err := svc.Get(ctx, "shared")
	require.NoError(t, err)
	assert.Len(t, e.Attempts, 3)
	assert.Equal(t, retry.StatusFailed, e.Status)
	for i, a := range e.Attempts {
		assert.Equal(t, i+1, a.Number, fmt.Sprintf("attempt %d", i))
	}
}
