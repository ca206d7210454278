package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// AsyncOptions configures batching and buffering.
type AsyncOptions struct {
	BufferSize     int           `env:"AUDIT_BUFFER_SIZE" envDefault:"1000"`
	BatchSize      int           `env:"AUDIT_BATCH_SIZE" envDefault:"100"`
	BatchTimeout   time.Duration `env:"AUDIT_BATCH_TIMEOUT" envDefault:"100ms"`
	StorageTimeout time.Duration `env:"AUDIT_STORAGE_TIMEOUT" envDefault:"5s"`
}

func (o AsyncOptions) withDefaults() AsyncOptions {
	if o.BufferSize <= 0 {
		o.BufferSize = 1000
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.BatchTimeout <= 0 {
		o.BatchTimeout = 100 * time.Millisecond
	}
	if o.StorageTimeout <= 0 {
		o.StorageTimeout = 5 * time.Second
	}
	return o
}

// AsyncLogger queues records in memory and writes them in batches from a
// background goroutine. Log never waits for storage; write failures are
// reported to the slog logger.
type AsyncLogger struct {
	prep    *SyncLogger
	storage BatchStorage
	opts    AsyncOptions
	log     *slog.Logger

	records chan Record
	done    chan struct{}
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// AsyncOption configures an AsyncLogger.
type AsyncOption func(*AsyncLogger)

func WithAsyncLogger(l *slog.Logger) AsyncOption {
	return func(a *AsyncLogger) {
		if l != nil {
			a.log = l
		}
	}
}

// WithAsyncRecordOptions configures record preparation (filter, clock).
func WithAsyncRecordOptions(opts ...Option) AsyncOption {
	return func(a *AsyncLogger) {
		for _, opt := range opts {
			opt(a.prep)
		}
	}
}

// NewAsyncLogger starts the background writer. Call Close to flush pending records.
func NewAsyncLogger(storage BatchStorage, opts AsyncOptions, options ...AsyncOption) *AsyncLogger {
	if storage == nil {
		panic("audit: batch storage cannot be nil")
	}

	opts = opts.withDefaults()
	a := &AsyncLogger{
		prep:    NewLogger(batchAdapter{storage}),
		storage: storage,
		opts:    opts,
		log:     slog.Default(),
		records: make(chan Record, opts.BufferSize),
		done:    make(chan struct{}),
	}
	for _, opt := range options {
		opt(a)
	}
	a.log = a.log.With(logger.Component("audit"))

	a.wg.Add(1)
	go a.run()
	return a
}

// Log validates and queues the record. It returns ErrBufferFull when the
// buffer is full and ErrClosed after Close.
func (a *AsyncLogger) Log(_ context.Context, record Record) error {
	if err := record.Validate(); err != nil {
		return err
	}
	record = a.prep.prepare(record)

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}

	select {
	case a.records <- record:
		return nil
	default:
		return ErrBufferFull
	}
}

// Pending returns the number of queued records not yet handed to storage.
func (a *AsyncLogger) Pending() int {
	return len(a.records)
}

// Close stops accepting records and flushes what is queued. ctx bounds the wait.
func (a *AsyncLogger) Close(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.done)
	a.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *AsyncLogger) run() {
	defer a.wg.Done()

	batch := make([]Record, 0, a.opts.BatchSize)
	ticker := time.NewTicker(a.opts.BatchTimeout)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), a.opts.StorageTimeout)
		defer cancel()

		if err := a.storage.StoreBatch(ctx, batch); err != nil {
			a.log.LogAttrs(ctx, slog.LevelError, "failed to store audit records",
				slog.Int("count", len(batch)),
				logger.Error(err))
		}
		clear(batch)
		batch = batch[:0]
	}

	for {
		select {
		case r := <-a.records:
			batch = append(batch, r)
			if len(batch) >= a.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-a.done:
			// Senders hold the read lock, so no sends happen after done is closed.
			for {
				select {
				case r := <-a.records:
					batch = append(batch, r)
					if len(batch) >= a.opts.BatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

type batchAdapter struct {
	BatchStorage
}

func (b batchAdapter) Store(ctx context.Context, r Record) error {
	return b.StoreBatch(ctx, []Record{r})
}
