// Package notifier ties the notification engine together.
//
// A Service validates submitted events and queues them. Its worker pool hands
// each job to the Processor, which fans out over the job channels and runs
// the same pipeline for each: check the per-recipient rate limit, resolve and
// render the channel template, dispatch, then classify the result. Events
// without stored templates are delivered with synthesized defaults.
//
// Retryable failures are handed to the retry service and re-dispatched by the
// RetryDriver once their backoff elapses. Every processed job produces one
// audit record.
//
// Housekeeping runs on a gocron Scheduler: the retry driver, retry cleanup,
// recovery of queue jobs with expired locks, queue cleanup and queue metrics.
//
//	svc, err := notifier.New(cfg, notifier.Deps{
//		Templates:   manager,
//		Dispatchers: factory,
//		Limiter:     limiter,
//		Retries:     retries,
//		Queue:       queue.NewMemoryStorage(),
//	})
//	g.Go(svc.Run(ctx))
//	id, err := svc.Enqueue(ctx, "USER_REGISTERED", in)
package notifier
