package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// Worker runs a fixed pool of goroutines that claim and process jobs from one queue.
type Worker struct {
	storage  Storage
	handler  Handler
	workerID uuid.UUID

	queue           string
	concurrency     int
	pollInterval    time.Duration
	lockTimeout     time.Duration
	retryBackoff    time.Duration
	shutdownTimeout time.Duration
	signal          *Signal
	logger          *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// WorkerOption is a functional option for configuring a worker
type WorkerOption func(*Worker)

// WithWorkerQueue sets the queue the worker pulls from
func WithWorkerQueue(queue string) WorkerOption {
	return func(w *Worker) {
		if queue != "" {
			w.queue = queue
		}
	}
}

// WithConcurrency sets the number of processing goroutines
func WithConcurrency(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithPollInterval sets how often idle goroutines check for due jobs
func WithPollInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithLockTimeout sets the lock duration for claimed jobs and the handler deadline
func WithLockTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.lockTimeout = d
		}
	}
}

// WithRetryBackoff sets the base delay of the linear retry backoff
func WithRetryBackoff(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d >= 0 {
			w.retryBackoff = d
		}
	}
}

// WithShutdownTimeout bounds how long Stop waits for in-flight jobs
func WithShutdownTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.shutdownTimeout = d
		}
	}
}

// WithWorkerSignal wakes idle goroutines as soon as a job is enqueued
func WithWorkerSignal(s *Signal) WorkerOption {
	return func(w *Worker) {
		w.signal = s
	}
}

// WithWorkerLogger sets the logger for the worker
func WithWorkerLogger(l *slog.Logger) WorkerOption {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithConfig applies queue settings from cfg. Concurrency is set separately.
func WithConfig(cfg Config) WorkerOption {
	return func(w *Worker) {
		WithWorkerQueue(cfg.Name)(w)
		WithPollInterval(cfg.PollInterval)(w)
		WithLockTimeout(cfg.LockTimeout)(w)
		WithRetryBackoff(cfg.RetryBackoff)(w)
		WithShutdownTimeout(cfg.ShutdownTimeout)(w)
	}
}

// NewWorker creates a worker that passes every claimed job to handler.
func NewWorker(storage Storage, handler Handler, opts ...WorkerOption) (*Worker, error) {
	if storage == nil {
		return nil, ErrStorageNil
	}
	if handler == nil {
		return nil, ErrHandlerNil
	}

	w := &Worker{
		storage:         storage,
		handler:         handler,
		workerID:        uuid.New(),
		queue:           DefaultQueueName,
		concurrency:     4,
		pollInterval:    time.Second,
		lockTimeout:     5 * time.Minute,
		retryBackoff:    30 * time.Second,
		shutdownTimeout: 30 * time.Second,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(logger.Component("queue.worker"), slog.String("worker_id", w.workerID.String()))
	return w, nil
}

// Start launches the processing goroutines in the background.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	for range w.concurrency {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.loop(runCtx)
		}()
	}

	w.logger.LogAttrs(ctx, slog.LevelInfo, "worker started",
		slog.String("queue", w.queue),
		slog.Int("concurrency", w.concurrency))
	return nil
}

// Stop cancels claiming and waits for in-flight jobs up to the shutdown timeout.
func (w *Worker) Stop() error {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	if cancel == nil {
		return ErrNotStarted
	}
	cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("worker stopped")
		return nil
	case <-time.After(w.shutdownTimeout):
		return fmt.Errorf("%w after %s", ErrShutdown, w.shutdownTimeout)
	}
}

// Run starts the worker and returns a function suitable for errgroup
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return w.Stop()
	}
}

func (w *Worker) loop(ctx context.Context) {
	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			return
		}

		processed, err := w.ProcessNext(ctx)
		if err != nil && ctx.Err() == nil {
			w.logger.LogAttrs(ctx, slog.LevelError, "failed to process job", logger.Error(err))
		}
		if processed {
			continue
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(w.pollInterval)

		select {
		case <-ctx.Done():
			return
		case <-w.signal.C():
		case <-timer.C:
		}
	}
}

// ProcessNext claims one due job and processes it. It reports whether a job
// was claimed.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	job, err := w.storage.Claim(ctx, w.queue, w.lockTimeout)
	if err != nil {
		if errors.Is(err, ErrNoJob) {
			return false, nil
		}
		return false, fmt.Errorf("failed to claim job: %w", err)
	}

	w.logger.LogAttrs(ctx, slog.LevelDebug, "claimed job",
		logger.JobID(job.ID),
		logger.EventKey(job.EventKey),
		logger.Attempt(job.Attempts))

	return true, w.process(ctx, job)
}

func (w *Worker) process(ctx context.Context, job *Job) error {
	start := time.Now()

	// Jobs finish and record their outcome even while the worker is stopping.
	storeCtx := context.WithoutCancel(ctx)
	handlerCtx, cancel := context.WithTimeout(storeCtx, w.lockTimeout)
	defer cancel()
	handlerCtx = logger.ContextWithAttrs(handlerCtx, slog.String("worker_id", w.workerID.String()))

	err := w.handle(handlerCtx, job)
	duration := time.Since(start)

	if err == nil {
		if err := w.storage.Complete(storeCtx, job.ID); err != nil {
			return fmt.Errorf("failed to mark job %s as completed: %w", job.ID, err)
		}
		w.logger.LogAttrs(ctx, slog.LevelInfo, "job completed",
			logger.JobID(job.ID),
			logger.EventKey(job.EventKey),
			logger.Duration(duration))
		return nil
	}

	retryIn := w.retryBackoff * time.Duration(job.Attempts)
	if errors.Is(err, ErrPermanent) {
		retryIn = -1
	}

	updated, ferr := w.storage.Fail(storeCtx, job.ID, err.Error(), retryIn)
	if ferr != nil {
		return fmt.Errorf("failed to mark job %s as failed: %w", job.ID, ferr)
	}

	level := slog.LevelWarn
	if updated.Status == StatusFailed {
		level = slog.LevelError
	}
	w.logger.LogAttrs(ctx, level, "job failed",
		logger.JobID(job.ID),
		logger.EventKey(job.EventKey),
		logger.Attempt(job.Attempts),
		slog.Int("max_attempts", job.MaxAttempts),
		logger.Status(string(updated.Status)),
		logger.Duration(duration),
		logger.Error(err))
	return nil
}

func (w *Worker) handle(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in handler: %v", r)
		}
	}()
	return w.handler.Handle(ctx, job)
}
