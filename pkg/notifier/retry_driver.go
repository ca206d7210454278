package notifier

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/metrics"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/retry"
)

// RetryRun summarises one pass of the retry driver.
type RetryRun struct {
	Ready       int `json:"ready"`
	Recovered   int `json:"recovered"`
	Rescheduled int `json:"rescheduled"`
	Exhausted   int `json:"exhausted"`
}

// RetryDriver re-dispatches retry contexts whose backoff has elapsed. Retries
// bypass the rate limiter: the original request was already counted.
type RetryDriver struct {
	processor *Processor
}

func NewRetryDriver(p *Processor) *RetryDriver {
	return &RetryDriver{processor: p}
}

// RunOnce processes every ready retry context once.
func (d *RetryDriver) RunOnce(ctx context.Context) (RetryRun, error) {
	p := d.processor
	ready, err := p.retries.Ready(ctx, p.now())
	if err != nil {
		return RetryRun{}, err
	}

	run := RetryRun{Ready: len(ready)}
	for _, entry := range ready {
		if ctx.Err() != nil {
			return run, ctx.Err()
		}
		switch d.retry(ctx, entry) {
		case retry.StatusSuccess:
			run.Recovered++
		case retry.StatusFailed:
			run.Exhausted++
		case retry.StatusRetrying:
			run.Rescheduled++
		}
	}

	if run.Ready > 0 {
		p.logger.LogAttrs(ctx, slog.LevelInfo, "retry pass finished",
			slog.Int("ready", run.Ready),
			slog.Int("recovered", run.Recovered),
			slog.Int("rescheduled", run.Rescheduled),
			slog.Int("exhausted", run.Exhausted))
	}
	return run, nil
}

func (d *RetryDriver) retry(ctx context.Context, entry retry.Entry) retry.Status {
	p := d.processor
	ch := entry.Channel
	record := context.WithoutCancel(ctx)

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	var result notifications.DispatchResult
	resolved, _, err := p.resolveTemplates(ctx, entry.Payload.Event, []notifications.Channel{ch})
	tpl, ok := resolved[ch]
	switch {
	case err != nil:
		result = notifications.Failed("%v", err)
	case !ok:
		result = notifications.PermanentFailure("no active template for channel %s", ch)
	default:
		msg, rerr := p.render(tpl, entry.Payload)
		if rerr != nil {
			result = notifications.PermanentFailure("%v", rerr)
		} else {
			result = p.dispatch(ctx, ch, msg)
		}
	}

	attrs := []slog.Attr{
		logger.RetryID(entry.ID),
		logger.Channel(string(ch)),
		logger.Attempt(len(entry.Attempts) + 1),
	}

	if result.Succeeded() {
		if _, err := p.retries.RecordSuccess(record, entry.ID, result); err != nil {
			p.logger.LogAttrs(record, slog.LevelError, "failed to record retry success", append(attrs, logger.Error(err))...)
			return ""
		}
		p.metrics.Retry(string(ch), metrics.RetryRecovered)
		p.logger.LogAttrs(record, slog.LevelInfo, "retry delivered", attrs...)
		return retry.StatusSuccess
	}

	// A permanent result seals the entry; only retryable ones spend the budget.
	var updated retry.Entry
	if result.Retryable() {
		updated, err = p.retries.RecordFailure(record, entry.ID, ch, entry.RecipientID, entry.Payload, result)
	} else {
		updated, err = p.retries.RecordPermanent(record, entry.ID, result)
	}
	if err != nil {
		p.logger.LogAttrs(record, slog.LevelError, "failed to record retry failure", append(attrs, logger.Error(err))...)
		return ""
	}
	if updated.Status == retry.StatusFailed {
		p.metrics.Retry(string(ch), metrics.RetryExhausted)
		p.logger.LogAttrs(record, slog.LevelWarn, "retries exhausted", append(attrs, slog.String("error", result.Error))...)
	} else {
		p.metrics.Retry(string(ch), metrics.RetryScheduled)
	}
	return updated.Status
}
