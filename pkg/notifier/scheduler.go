package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// PeriodicTask is a housekeeping function run on a fixed interval.
type PeriodicTask struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs housekeeping tasks with gocron. A task never overlaps
// with itself; a run that is still busy skips the next tick.
type Scheduler struct {
	cron   gocron.Scheduler
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(l *slog.Logger) (*Scheduler, error) {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("creating gocron scheduler: %w", err)
	}
	if l == nil {
		l = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron,
		logger: l.With(logger.Component("notifier.scheduler")),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Add registers t. Tasks with a non-positive interval are ignored.
func (s *Scheduler) Add(t PeriodicTask) error {
	if t.Interval <= 0 || t.Run == nil {
		return nil
	}

	_, err := s.cron.NewJob(
		gocron.DurationJob(t.Interval),
		gocron.NewTask(func() {
			ctx := s.ctx
			start := time.Now()
			if err := t.Run(ctx); err != nil && ctx.Err() == nil {
				s.logger.LogAttrs(ctx, slog.LevelError, "periodic task failed",
					slog.String("task", t.Name),
					logger.Duration(time.Since(start)),
					logger.Error(err))
			}
		}),
		gocron.WithName(t.Name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("scheduling task %q: %w", t.Name, err)
	}
	return nil
}

// Jobs returns the names of the registered tasks.
func (s *Scheduler) Jobs() []string {
	jobs := s.cron.Jobs()
	names := make([]string, 0, len(jobs))
	for _, j := range jobs {
		names = append(names, j.Name())
	}
	return names
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", slog.Int("tasks", len(s.cron.Jobs())))
}

// Stop cancels running tasks and shuts gocron down.
func (s *Scheduler) Stop() error {
	s.cancel()
	return s.cron.Shutdown()
}
