// Package queue implements a small persistent job queue with an enqueuer, a
// fixed-size worker pool and pluggable storage.
//
// Jobs are claimed in scheduled-time order. A claim locks the job for the
// worker's lock timeout; jobs whose lock expires are returned to the waiting
// state by RecoverExpired, which gives at-least-once processing. Failed jobs
// are rescheduled with a linear backoff until MaxAttempts is reached and are
// then marked failed.
//
// Two storages are provided: MemoryStorage for single-process deployments and
// tests, and RedisStorage backed by sorted sets.
//
//	storage := queue.NewMemoryStorage()
//	signal := queue.NewSignal()
//	enq, _ := queue.NewEnqueuer(storage, queue.WithSignal(signal))
//	w, _ := queue.NewWorker(storage, handler, queue.WithWorkerSignal(signal))
//	_ = w.Start(ctx)
//	id, _ := enq.Enqueue(ctx, "USER_REGISTERED", payload)
package queue
