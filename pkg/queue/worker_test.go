package queue_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/queue"
)

type testPayload struct {
	Message string `json:"message"`
}

func TestNewWorker(t *testing.T) {
	t.Parallel()

	noop := queue.HandlerFunc(func(context.Context, *queue.Job) error { return nil })

	_, err := queue.NewWorker(nil, noop)
	assert.ErrorIs(t, err, queue.ErrStorageNil)

	_, err = queue.NewWorker(queue.NewMemoryStorage(), nil)
	assert.ErrorIs(t, err, queue.ErrHandlerNil)

	w, err := queue.NewWorker(queue.NewMemoryStorage(), noop)
	require.NoError(t, err)
	assert.ErrorIs(t, w.Stop(), queue.ErrNotStarted)
}

func TestWorker_ProcessNext(t *testing.T) {
	t.Parallel()

	t.Run("no job", func(t *testing.T) {
		t.Parallel()
		w, err := queue.NewWorker(queue.NewMemoryStorage(), queue.HandlerFunc(func(context.Context, *queue.Job) error {
			t.Fatal("handler must not run")
			return nil
		}))
		require.NoError(t, err)

		processed, err := w.ProcessNext(context.Background())
		require.NoError(t, err)
		assert.False(t, processed)
	})

	t.Run("typed handler success", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		storage := queue.NewMemoryStorage()
		enq, err := queue.NewEnqueuer(storage)
		require.NoError(t, err)

		var got string
		w, err := queue.NewWorker(storage, queue.NewTypedHandler(func(_ context.Context, job *queue.Job, p testPayload) error {
			got = p.Message
			return nil
		}))
		require.NoError(t, err)

		id, err := enq.Enqueue(ctx, "USER_REGISTERED", testPayload{Message: "hello"})
		require.NoError(t, err)

		processed, err := w.ProcessNext(ctx)
		require.NoError(t, err)
		assert.True(t, processed)
		assert.Equal(t, "hello", got)

		job, err := storage.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusCompleted, job.Status)
	})

	t.Run("transient errors retry until max attempts", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		storage := queue.NewMemoryStorage()
		enq, err := queue.NewEnqueuer(storage)
		require.NoError(t, err)

		var calls int
		w, err := queue.NewWorker(storage, queue.HandlerFunc(func(context.Context, *queue.Job) error {
			calls++
			return errors.New("provider down")
		}), queue.WithRetryBackoff(0))
		require.NoError(t, err)

		id, err := enq.Enqueue(ctx, "ORDER_CREATED", testPayload{}, queue.WithMaxAttempts(3))
		require.NoError(t, err)

		for range 5 {
			_, err := w.ProcessNext(ctx)
			require.NoError(t, err)
		}
		assert.Equal(t, 3, calls)

		job, err := storage.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusFailed, job.Status)
		assert.Equal(t, 3, job.Attempts)
		assert.Equal(t, "provider down", job.Error)
	})

	t.Run("permanent error is not retried", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		storage := queue.NewMemoryStorage()
		enq, err := queue.NewEnqueuer(storage)
		require.NoError(t, err)

		w, err := queue.NewWorker(storage, queue.HandlerFunc(func(context.Context, *queue.Job) error {
			return queue.Permanent(errors.New("invalid"))
		}), queue.WithRetryBackoff(0))
		require.NoError(t, err)

		id, err := enq.Enqueue(ctx, "ORDER_CREATED", testPayload{})
		require.NoError(t, err)

		_, err = w.ProcessNext(ctx)
		require.NoError(t, err)

		job, err := storage.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusFailed, job.Status)
		assert.Equal(t, 1, job.Attempts)
	})

	t.Run("undecodable payload fails permanently", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		storage := queue.NewMemoryStorage()
		enq, err := queue.NewEnqueuer(storage)
		require.NoError(t, err)

		w, err := queue.NewWorker(storage, queue.NewTypedHandler(func(context.Context, *queue.Job, testPayload) error {
			return nil
		}), queue.WithRetryBackoff(0))
		require.NoError(t, err)

		id, err := enq.Enqueue(ctx, "ORDER_CREATED", []int{1, 2})
		require.NoError(t, err)

		_, err = w.ProcessNext(ctx)
		require.NoError(t, err)

		job, err := storage.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusFailed, job.Status)
	})

	t.Run("panic is recorded as failure", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		storage := queue.NewMemoryStorage()
		enq, err := queue.NewEnqueuer(storage)
		require.NoError(t, err)

		w, err := queue.NewWorker(storage, queue.HandlerFunc(func(context.Context, *queue.Job) error {
			panic("kaboom")
		}), queue.WithRetryBackoff(time.Hour))
		require.NoError(t, err)

		id, err := enq.Enqueue(ctx, "ORDER_CREATED", testPayload{})
		require.NoError(t, err)

		_, err = w.ProcessNext(ctx)
		require.NoError(t, err)

		job, err := storage.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusDelayed, job.Status)
		assert.Contains(t, job.Error, "panic in handler: kaboom")
	})
}

func TestWorker_StartStop(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := queue.NewMemoryStorage()
	signal := queue.NewSignal()
	enq, err := queue.NewEnqueuer(storage, queue.WithSignal(signal))
	require.NoError(t, err)

	var (
		mu   sync.Mutex
		seen = make(map[uuid.UUID]int)
		done atomic.Int32
	)
	w, err := queue.NewWorker(storage, queue.HandlerFunc(func(_ context.Context, job *queue.Job) error {
		mu.Lock()
		seen[job.ID]++
		mu.Unlock()
		done.Add(1)
		return nil
	}),
		queue.WithConcurrency(4),
		queue.WithPollInterval(time.Hour),
		queue.WithWorkerSignal(signal),
	)
	require.NoError(t, err)

	require.NoError(t, w.Start(ctx))
	assert.ErrorIs(t, w.Start(ctx), queue.ErrAlreadyStarted)

	const total = 25
	for range total {
		_, err := enq.Enqueue(ctx, "USER_REGISTERED", testPayload{Message: "x"})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return done.Load() == total }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, w.Stop())

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, total)
	for _, n := range seen {
		assert.Equal(t, 1, n)
	}

	stats, err := storage.Stats(ctx, queue.DefaultQueueName)
	require.NoError(t, err)
	assert.Equal(t, queue.Stats{Completed: total}, stats)
}

func TestWorker_Run(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	w, err := queue.NewWorker(queue.NewMemoryStorage(), queue.HandlerFunc(func(context.Context, *queue.Job) error {
		return nil
	}), queue.WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx)() }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
