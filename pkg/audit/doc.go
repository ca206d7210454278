// Package audit records one entry per processed notification event.
//
// A Record carries the per-channel outcomes of an event together with the
// job, event and recipient it belongs to. Loggers fill in the record ID,
// timestamps and overall Result, and scrub sensitive metadata through a
// MetadataFilter before storage.
//
// SyncLogger stores records in the caller's goroutine. AsyncLogger queues
// them and writes batches from a background goroutine; callers never wait on
// storage and failures are only logged.
//
//	storage := audit.NewSlogStorage(slog.Default(), slog.LevelInfo)
//	al := audit.NewAsyncLogger(storage, audit.AsyncOptions{})
//	defer al.Close(context.Background())
package audit
