package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/audit"
	"github.com/dmitrymomot/notifykit/pkg/dispatcher"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/metrics"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/queue"
	"github.com/dmitrymomot/notifykit/pkg/ratelimiter"
	"github.com/dmitrymomot/notifykit/pkg/renderer"
	"github.com/dmitrymomot/notifykit/pkg/retry"
	"github.com/dmitrymomot/notifykit/pkg/templates"
)

// Processor runs the per-channel delivery pipeline for queued jobs:
// rate-limit, render, dispatch, classify.
type Processor struct {
	templates   *templates.Manager
	dispatchers *dispatcher.Factory
	limiter     *ratelimiter.Limiter
	retries     *retry.Service
	audit       audit.Logger
	metrics     *metrics.Metrics

	renderers map[notifications.Channel]*renderer.Renderer
	fallback  *renderer.Renderer
	timeout   time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

func WithAudit(l audit.Logger) ProcessorOption {
	return func(p *Processor) {
		if l != nil {
			p.audit = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) ProcessorOption {
	return func(p *Processor) {
		p.metrics = m
	}
}

// WithChannelRenderer overrides the renderer of one channel.
func WithChannelRenderer(ch notifications.Channel, r *renderer.Renderer) ProcessorOption {
	return func(p *Processor) {
		if r != nil {
			p.renderers[ch] = r
		}
	}
}

// WithChannelTimeout bounds the delivery steps of a single channel. Retry
// bookkeeping runs outside the bound.
func WithChannelTimeout(d time.Duration) ProcessorOption {
	return func(p *Processor) {
		p.timeout = d
	}
}

func WithClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}

func WithLogger(l *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewProcessor wires the pipeline stages. Templates, dispatchers, limiter and
// retries are required.
func NewProcessor(
	tm *templates.Manager,
	factory *dispatcher.Factory,
	limiter *ratelimiter.Limiter,
	retries *retry.Service,
	opts ...ProcessorOption,
) (*Processor, error) {
	if tm == nil || factory == nil || limiter == nil || retries == nil {
		return nil, fmt.Errorf("%w: templates, dispatchers, limiter and retries are required", ErrMissingDependency)
	}

	p := &Processor{
		templates:   tm,
		dispatchers: factory,
		limiter:     limiter,
		retries:     retries,
		audit:       audit.Nop,
		renderers: map[notifications.Channel]*renderer.Renderer{
			notifications.ChannelEmail: renderer.New(renderer.WithAutoescape(true)),
		},
		fallback: renderer.New(),
		timeout:  10 * time.Second,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(logger.Component("notifier"))
	return p, nil
}

// Handle is the queue handler. Channel failures never fail the job; only an
// undecodable payload does, permanently.
func (p *Processor) Handle(ctx context.Context, job *queue.Job) error {
	var body JobPayload
	if err := job.Decode(&body); err != nil {
		return queue.Permanent(fmt.Errorf("decode job %s: %w", job.ID, err))
	}
	p.Process(ctx, job.ID, body)
	return nil
}

// Process delivers body on each of its channels concurrently and emits one
// audit record for the job.
func (p *Processor) Process(ctx context.Context, jobID uuid.UUID, body JobPayload) JobResult {
	payload := body.Payload
	res := JobResult{
		JobID:       jobID,
		EventKey:    payload.Event,
		Category:    payload.Category,
		RecipientID: payload.Recipient.ID,
		Outcomes:    make(map[notifications.Channel]ChannelOutcome, len(body.Channels)),
		StartedAt:   p.now(),
	}

	channels := body.Channels
	if len(channels) == 0 {
		channels = p.dispatchers.Channels()
	}

	resolved, defaulted, resolveErr := p.resolveTemplates(ctx, payload.Event, channels)
	if resolveErr != nil {
		p.logger.LogAttrs(ctx, slog.LevelError, "failed to resolve templates",
			logger.JobID(jobID),
			logger.EventKey(payload.Event),
			logger.Error(resolveErr))
	}
	res.Defaulted = defaulted

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, ch := range channels {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := p.runChannel(ctx, jobID, ch, resolved, resolveErr, payload)
			mu.Lock()
			res.Outcomes[ch] = out
			mu.Unlock()
		}()
	}
	wg.Wait()
	res.FinishedAt = p.now()

	rec := res.AuditRecord()
	p.metrics.JobProcessed(string(rec.Result))
	if err := p.audit.Log(ctx, rec); err != nil {
		p.metrics.AuditDropped()
		p.logger.LogAttrs(ctx, slog.LevelWarn, "failed to write audit record",
			logger.JobID(jobID),
			logger.Error(err))
	}

	p.logger.LogAttrs(ctx, slog.LevelInfo, "notification processed",
		logger.JobID(jobID),
		logger.EventKey(payload.Event),
		logger.RecipientID(payload.Recipient.ID),
		slog.String("result", string(rec.Result)),
		slog.Int("channels", len(res.Outcomes)),
		logger.Duration(res.FinishedAt.Sub(res.StartedAt)))
	return res
}

// resolveTemplates returns the active templates of the event, or synthesized
// defaults for every channel when the event has none. A storage error returns
// no templates.
func (p *Processor) resolveTemplates(
	ctx context.Context,
	eventKey string,
	channels []notifications.Channel,
) (map[notifications.Channel]templates.Template, bool, error) {
	active, err := p.templates.ActiveForEvent(ctx, eventKey)
	if err != nil {
		return nil, false, fmt.Errorf("resolve templates: %w", err)
	}
	if len(active) > 0 {
		return active, false, nil
	}

	defaults := make(map[notifications.Channel]templates.Template, len(channels))
	for _, ch := range channels {
		defaults[ch] = DefaultTemplate(eventKey, ch)
	}
	return defaults, true, nil
}

func (p *Processor) runChannel(
	ctx context.Context,
	jobID uuid.UUID,
	ch notifications.Channel,
	resolved map[notifications.Channel]templates.Template,
	resolveErr error,
	payload notifications.Payload,
) ChannelOutcome {
	// Retry state outlives the delivery deadline.
	record := context.WithoutCancel(ctx)
	retryID := RetryID(jobID, ch)

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	if resolveErr != nil {
		if _, err := p.dispatchers.Get(ch); err != nil {
			return ChannelOutcome{Channel: ch, Status: StatusSkipped, Reason: "channel not configured"}
		}
		return p.classify(record, retryID, ch, payload, notifications.Failed("%v", resolveErr))
	}

	tpl, ok := resolved[ch]
	if !ok {
		return ChannelOutcome{Channel: ch, Status: StatusSkipped, Reason: "no active template for channel"}
	}
	if _, err := p.dispatchers.Get(ch); err != nil {
		return ChannelOutcome{Channel: ch, Status: StatusSkipped, Reason: "channel not configured"}
	}

	if out, blocked := p.rateLimit(ctx, ch, payload); blocked {
		return out
	}

	msg, err := p.render(tpl, payload)
	if err != nil {
		p.logger.LogAttrs(ctx, slog.LevelWarn, "failed to render template",
			logger.JobID(jobID),
			logger.Channel(string(ch)),
			logger.EventKey(payload.Event),
			logger.Error(err))
		return ChannelOutcome{Channel: ch, Status: notifications.StatusFailed, Error: err.Error()}
	}

	result := p.dispatch(ctx, ch, msg)
	return p.classify(record, retryID, ch, payload, result)
}

// rateLimit reports a RATE_LIMITED outcome when the limiter rejects the
// request. Limiter errors let the request through.
func (p *Processor) rateLimit(ctx context.Context, ch notifications.Channel, payload notifications.Payload) (ChannelOutcome, bool) {
	res, err := p.limiter.Check(ctx, ch, payload.Recipient.ID)
	if err != nil {
		p.logger.LogAttrs(ctx, slog.LevelWarn, "rate limiter unavailable",
			logger.Channel(string(ch)),
			logger.RecipientID(payload.Recipient.ID),
			logger.Error(err))
		return ChannelOutcome{}, false
	}
	if res.Allowed {
		return ChannelOutcome{}, false
	}

	p.metrics.RateLimited(string(ch), string(res.Reason))
	return ChannelOutcome{
		Channel:    ch,
		Status:     StatusRateLimited,
		Reason:     string(res.Reason),
		RetryAfter: res.RetryAfter,
	}, true
}

func (p *Processor) rendererFor(ch notifications.Channel) *renderer.Renderer {
	if r, ok := p.renderers[ch]; ok {
		return r
	}
	return p.fallback
}

// render builds the channel message from tpl. Errors wrap renderer.ErrRender.
func (p *Processor) render(tpl templates.Template, payload notifications.Payload) (dispatcher.Message, error) {
	r := p.rendererFor(tpl.Channel)
	data := payload.TemplateData()

	meta, err := r.RenderMetadata(tpl.Metadata, data)
	if err != nil {
		return dispatcher.Message{}, fmt.Errorf("render %s header: %w", tpl.Channel, err)
	}
	body, err := r.Render(tpl.Body, data)
	if err != nil {
		return dispatcher.Message{}, fmt.Errorf("render %s body: %w", tpl.Channel, err)
	}

	title := tpl.Title
	if title != "" {
		if title, err = r.Render(title, data); err != nil {
			return dispatcher.Message{}, fmt.Errorf("render %s title: %w", tpl.Channel, err)
		}
	}
	title = meta.GetOr(dispatcher.MetaTitle, meta.GetOr(dispatcher.MetaSubject, title))

	return dispatcher.Message{
		Title:    title,
		Body:     body,
		Metadata: meta,
		Payload:  payload,
	}, nil
}

func (p *Processor) dispatch(ctx context.Context, ch notifications.Channel, msg dispatcher.Message) notifications.DispatchResult {
	start := time.Now()
	res, err := p.dispatchers.Send(ctx, ch, msg)
	if err != nil {
		res = notifications.PermanentFailure("%v", err)
	}
	p.metrics.ObserveDispatch(string(ch), string(res.Status), time.Since(start))
	return res
}

// classify maps a dispatch result to an outcome, handing retryable failures
// to the retry service. ctx must not carry the delivery deadline.
func (p *Processor) classify(
	ctx context.Context,
	retryID string,
	ch notifications.Channel,
	payload notifications.Payload,
	res notifications.DispatchResult,
) ChannelOutcome {
	out := ChannelOutcome{
		Channel:    ch,
		Status:     res.Status,
		ExternalID: res.ExternalID,
		Error:      res.Error,
		Metadata:   res.Metadata,
	}
	if !res.Retryable() {
		return out
	}

	entry, err := p.retries.RecordFailure(ctx, retryID, ch, payload.Recipient.ID, payload, res)
	if err != nil {
		if errors.Is(err, retry.ErrContextSealed) {
			return out
		}
		p.logger.LogAttrs(ctx, slog.LevelError, "failed to record retry",
			logger.RetryID(retryID),
			logger.Error(err))
		return out
	}

	out.RetryID = entry.ID
	if entry.Status == retry.StatusFailed {
		p.metrics.Retry(string(ch), metrics.RetryExhausted)
		return out
	}
	p.metrics.Retry(string(ch), metrics.RetryScheduled)
	out.Status = notifications.StatusRetrying
	out.NextRetryAt = entry.NextRetryAt
	return out
}

// RetryID is the retry context ID of a job channel.
func RetryID(jobID uuid.UUID, ch notifications.Channel) string {
	return jobID.String() + ":" + string(ch)
}
