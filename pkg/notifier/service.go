package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/audit"
	"github.com/dmitrymomot/notifykit/pkg/dispatcher"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/metrics"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/queue"
	"github.com/dmitrymomot/notifykit/pkg/ratelimiter"
	"github.com/dmitrymomot/notifykit/pkg/retry"
	"github.com/dmitrymomot/notifykit/pkg/templates"
)

// Deps are the collaborators of a Service. Audit and Metrics are optional.
type Deps struct {
	Templates   *templates.Manager
	Dispatchers *dispatcher.Factory
	Limiter     *ratelimiter.Limiter
	Retries     *retry.Service
	Queue       queue.Storage
	Audit       audit.Logger
	Metrics     *metrics.Metrics
}

// Service accepts events for delivery and runs the worker pool and
// housekeeping tasks that process them.
type Service struct {
	cfg         Config
	dispatchers *dispatcher.Factory
	metrics     *metrics.Metrics
	enqueuer    *queue.Enqueuer
	worker      *queue.Worker
	inspector   *queue.Inspector
	processor   *Processor
	driver      *RetryDriver
	scheduler   *Scheduler
	retries     *retry.Service
	extra       []PeriodicTask
	now         func() time.Time
	logger      *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithServiceLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithServiceClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithPeriodicTask adds a housekeeping task run by the service scheduler.
func WithPeriodicTask(t PeriodicTask) Option {
	return func(s *Service) {
		s.extra = append(s.extra, t)
	}
}

// New assembles the processor, queue worker and housekeeping scheduler.
func New(cfg Config, deps Deps, opts ...Option) (*Service, error) {
	if deps.Queue == nil {
		return nil, fmt.Errorf("%w: queue storage is required", ErrMissingDependency)
	}

	s := &Service{
		cfg:         cfg,
		dispatchers: deps.Dispatchers,
		metrics:     deps.Metrics,
		retries:     deps.Retries,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	processor, err := NewProcessor(deps.Templates, deps.Dispatchers, deps.Limiter, deps.Retries,
		WithAudit(deps.Audit),
		WithMetrics(deps.Metrics),
		WithChannelTimeout(cfg.ChannelTimeout),
		WithClock(s.now),
		WithLogger(s.logger),
	)
	if err != nil {
		return nil, err
	}
	s.processor = processor
	s.driver = NewRetryDriver(processor)

	signal := queue.NewSignal()
	s.enqueuer, err = queue.NewEnqueuer(deps.Queue,
		queue.WithDefaultQueue(cfg.Queue.Name),
		queue.WithDefaultMaxAttempts(cfg.Queue.MaxAttempts),
		queue.WithSignal(signal),
	)
	if err != nil {
		return nil, err
	}
	s.worker, err = queue.NewWorker(deps.Queue, processor,
		queue.WithConfig(cfg.Queue),
		queue.WithConcurrency(cfg.Workers),
		queue.WithWorkerSignal(signal),
		queue.WithWorkerLogger(s.logger),
	)
	if err != nil {
		return nil, err
	}
	s.inspector, err = queue.NewInspector(deps.Queue, cfg.Queue.Name)
	if err != nil {
		return nil, err
	}

	s.scheduler, err = NewScheduler(s.logger)
	if err != nil {
		return nil, err
	}
	for _, t := range append(s.housekeeping(), s.extra...) {
		if err := s.scheduler.Add(t); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Service) housekeeping() []PeriodicTask {
	return []PeriodicTask{
		{
			Name:     "retry-driver",
			Interval: s.cfg.RetryPollInterval,
			Run: func(ctx context.Context) error {
				_, err := s.driver.RunOnce(ctx)
				return err
			},
		},
		{
			Name:     "retry-cleanup",
			Interval: s.cfg.RetryCleanupInterval,
			Run: func(ctx context.Context) error {
				_, err := s.retries.Cleanup(ctx, s.cfg.RetryHorizon)
				return err
			},
		},
		{
			Name:     "queue-recover",
			Interval: s.cfg.RecoverInterval,
			Run: func(ctx context.Context) error {
				n, err := s.inspector.RecoverExpired(ctx)
				if n > 0 {
					s.logger.LogAttrs(ctx, slog.LevelWarn, "recovered jobs with expired locks", slog.Int("count", n))
				}
				return err
			},
		},
		{
			Name:     "queue-cleanup",
			Interval: s.cfg.QueueCleanupInterval,
			Run: func(ctx context.Context) error {
				_, err := s.inspector.Cleanup(ctx, s.cfg.Queue.CleanupGrace)
				return err
			},
		},
		{
			Name:     "queue-stats",
			Interval: s.cfg.StatsInterval,
			Run: func(ctx context.Context) error {
				st, err := s.inspector.Stats(ctx)
				if err != nil {
					return err
				}
				s.metrics.ObserveQueue(st)
				return nil
			},
		},
	}
}

// Enqueue validates in and queues it for delivery, returning the job ID.
// Invalid input is rejected with an error wrapping ErrValidation.
func (s *Service) Enqueue(ctx context.Context, eventKey string, in Input) (uuid.UUID, error) {
	configured := s.dispatchers.Channels()
	if len(configured) == 0 {
		return uuid.Nil, ErrNoChannels
	}
	if err := in.Validate(eventKey, configured); err != nil {
		return uuid.Nil, err
	}

	body := JobPayload{
		Payload:  in.payload(eventKey),
		Channels: channelsFor(in.Channels, configured),
	}

	var opts []queue.EnqueueOption
	if in.Delay > 0 {
		opts = append(opts, queue.WithDelay(in.Delay))
	}
	id, err := s.enqueuer.Enqueue(ctx, eventKey, body, opts...)
	if err != nil {
		return uuid.Nil, err
	}

	s.logger.LogAttrs(ctx, slog.LevelDebug, "notification enqueued",
		logger.Component("notifier"),
		logger.JobID(id),
		logger.EventKey(eventKey),
		logger.RecipientID(in.Recipient.ID))
	return id, nil
}

// Start launches the worker pool and the housekeeping scheduler.
func (s *Service) Start(ctx context.Context) error {
	if err := s.worker.Start(ctx); err != nil {
		return err
	}
	s.scheduler.Start()
	return nil
}

// Stop drains the worker pool and stops housekeeping.
func (s *Service) Stop() error {
	return errors.Join(s.worker.Stop(), s.scheduler.Stop())
}

// Run starts the service and returns a function suitable for errgroup
func (s *Service) Run(ctx context.Context) func() error {
	return func() error {
		if err := s.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return s.Stop()
	}
}

func (s *Service) Processor() *Processor       { return s.processor }
func (s *Service) RetryDriver() *RetryDriver   { return s.driver }
func (s *Service) Inspector() *queue.Inspector { return s.inspector }

// Health reports dispatcher health by channel.
func (s *Service) Health(ctx context.Context) map[notifications.Channel]bool {
	return s.dispatchers.Health(ctx)
}
