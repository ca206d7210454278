package audit

import "errors"

var (
	// ErrStorageNotAvailable indicates the storage backend is unavailable
	ErrStorageNotAvailable = errors.New("audit: storage backend is unavailable")

	// ErrRecordValidation indicates record validation failed
	ErrRecordValidation = errors.New("audit: record validation failed")

	// ErrBufferFull indicates the async buffer is full
	ErrBufferFull = errors.New("audit: async buffer is full")

	// ErrClosed indicates the logger no longer accepts records
	ErrClosed = errors.New("audit: logger is closed")
)
