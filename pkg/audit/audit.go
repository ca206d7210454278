package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Logger receives one record per processed notification event.
type Logger interface {
	Log(ctx context.Context, record Record) error
}

// Storage persists audit records.
type Storage interface {
	Store(ctx context.Context, record Record) error
}

// BatchStorage persists several records at once.
type BatchStorage interface {
	StoreBatch(ctx context.Context, records []Record) error
}

// LoggerFunc adapts a function to Logger.
type LoggerFunc func(ctx context.Context, record Record) error

func (f LoggerFunc) Log(ctx context.Context, record Record) error {
	return f(ctx, record)
}

// Nop discards every record.
var Nop Logger = LoggerFunc(func(context.Context, Record) error { return nil })

// SyncLogger validates, filters and stores records in the caller's goroutine.
type SyncLogger struct {
	storage Storage
	filter  *MetadataFilter
	now     func() time.Time
}

// Option configures a SyncLogger.
type Option func(*SyncLogger)

// WithFilter applies f to record metadata before storing it.
func WithFilter(f *MetadataFilter) Option {
	return func(l *SyncLogger) {
		l.filter = f
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *SyncLogger) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLogger creates a new audit logger
func NewLogger(storage Storage, opts ...Option) *SyncLogger {
	if storage == nil {
		panic("audit: storage cannot be nil")
	}
	l := &SyncLogger{
		storage: storage,
		filter:  NewMetadataFilter(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Log fills the record ID, timestamps and result when missing, then stores it.
func (l *SyncLogger) Log(ctx context.Context, record Record) error {
	if err := record.Validate(); err != nil {
		return err
	}
	return l.storage.Store(ctx, l.prepare(record))
}

func (l *SyncLogger) prepare(r Record) Record {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = l.now()
	}
	if r.FinishedAt.IsZero() {
		r.FinishedAt = r.CreatedAt
	}
	if r.Result == "" {
		r.Result = Summarize(r.Channels)
	}
	if l.filter != nil {
		r.Metadata = l.filter.Filter(r.Metadata)
	}
	return r
}
