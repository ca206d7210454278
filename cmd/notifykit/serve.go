package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/notifykit/pkg/audit"
	"github.com/dmitrymomot/notifykit/pkg/broadcast"
	"github.com/dmitrymomot/notifykit/pkg/dispatcher"
	"github.com/dmitrymomot/notifykit/pkg/httpserver"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/metrics"
	"github.com/dmitrymomot/notifykit/pkg/notifier"
	"github.com/dmitrymomot/notifykit/pkg/pg"
	"github.com/dmitrymomot/notifykit/pkg/queue"
	"github.com/dmitrymomot/notifykit/pkg/ratelimiter"
	"github.com/dmitrymomot/notifykit/pkg/redis"
	"github.com/dmitrymomot/notifykit/pkg/retry"
	"github.com/dmitrymomot/notifykit/pkg/templates"
)

const socketPruneInterval = time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the delivery workers and the ops endpoints",
	Long: "Start the queue workers, the retry driver and housekeeping tasks, " +
		"and serve health, readiness and Prometheus metrics on OPS_ADDR.",
	RunE: runServe,
}

// closers run in reverse order on shutdown.
type closers []func() error

func (c *closers) add(fn func() error) { *c = append(*c, fn) }

func (c closers) close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		errs = append(errs, c[i]())
	}
	return errors.Join(errs...)
}

func runServe(cmd *cobra.Command, _ []string) (err error) {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, closeLog := newLogger(cfg.Log)
	logger.SetAsDefault(log)

	var cleanup closers
	cleanup.add(closeLog)
	defer func() { err = errors.Join(err, cleanup.close()) }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)
	checks := make(map[string]httpserver.Check)

	manager, err := openTemplates(ctx, cfg, log, checks, &cleanup)
	if err != nil {
		return err
	}
	qs, err := openQueue(ctx, cfg, checks, &cleanup)
	if err != nil {
		return err
	}

	hub := broadcast.NewHub[dispatcher.SocketEvent](
		broadcast.WithCapacity(cfg.Socket.MaxRecipients),
		broadcast.WithBufferSize(cfg.Socket.BufferSize),
	)
	cleanup.add(hub.Close)

	factory, err := openDispatchers(cfg, hub, log, &cleanup)
	if err != nil {
		return err
	}

	limits, err := ratelimiter.LoadConfig()
	if err != nil {
		return err
	}
	limiter := ratelimiter.New(
		ratelimiter.NewMemoryStore(
			ratelimiter.WithSweepInterval(limits.SweepInterval),
			ratelimiter.WithIdleTimeout(limits.IdleTimeout),
		),
		ratelimiter.WithConfig(limits),
		ratelimiter.WithLogger(log),
	)
	cleanup.add(limiter.Close)

	retries := retry.New(retry.WithPolicy(cfg.Retry.Policy()), retry.WithLogger(log))

	auditLog := audit.NewAsyncLogger(
		audit.NewSlogStorage(log.With(logger.Component("audit")), slog.LevelInfo),
		cfg.Audit,
		audit.WithAsyncLogger(log),
	)
	cleanup.add(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Audit.StorageTimeout+time.Second)
		defer cancel()
		return auditLog.Close(ctx)
	})

	svc, err := notifier.New(cfg.Notifier, notifier.Deps{
		Templates:   manager,
		Dispatchers: factory,
		Limiter:     limiter,
		Retries:     retries,
		Queue:       qs,
		Audit:       auditLog,
		Metrics:     m,
	},
		notifier.WithServiceLogger(log),
		notifier.WithPeriodicTask(notifier.PeriodicTask{
			Name:     "socket-prune",
			Interval: socketPruneInterval,
			Run: func(context.Context) error {
				hub.Prune()
				return nil
			},
		}),
	)
	if err != nil {
		return err
	}

	router := httpserver.NewRouter(httpserver.RouterConfig{
		Metrics: metrics.Handler(reg),
		Checks:  checks,
		Logger:  log,
		Routes:  statusRoutes(svc, factory, retries),
	})
	ops := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))

	log.LogAttrs(ctx, slog.LevelInfo, "notifykit starting",
		slog.Any("channels", factory.Channels()),
		slog.String("queue_storage", cfg.Notifier.Queue.Storage),
		slog.Int("workers", cfg.Notifier.Workers),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(svc.Run(ctx))
	g.Go(func() error { return ops.Run(ctx, router) })
	return g.Wait()
}

// openTemplates uses PostgreSQL when PG_CONN_URL is set and an in-memory
// store otherwise.
func openTemplates(ctx context.Context, cfg appConfig, log *slog.Logger, checks map[string]httpserver.Check, cleanup *closers) (*templates.Manager, error) {
	var extra []templates.Schema
	if cfg.Schemas.File != "" {
		s, err := templates.LoadSchemas(cfg.Schemas.File)
		if err != nil {
			return nil, err
		}
		extra = s
	}
	opts := []templates.ManagerOption{
		templates.WithSchemaRegistry(templates.NewSchemaRegistry(extra...)),
		templates.WithLogger(log),
	}

	if !cfg.PG.Enabled() {
		log.Warn("PG_CONN_URL is not set, templates are kept in memory")
		return templates.NewManager(templates.NewMemoryStorage(), opts...), nil
	}

	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return nil, err
	}
	cleanup.add(func() error {
		pool.Close()
		return nil
	})
	if err := pg.Migrate(ctx, pool, cfg.PG, templates.Migrations, "migrations", log); err != nil {
		return nil, err
	}
	checks["postgres"] = pg.Healthcheck(pool)
	return templates.NewManager(templates.NewPostgresStorage(pool), opts...), nil
}

func openQueue(ctx context.Context, cfg appConfig, checks map[string]httpserver.Check, cleanup *closers) (queue.Storage, error) {
	switch cfg.Notifier.Queue.Storage {
	case "", "memory":
		return queue.NewMemoryStorage(), nil
	case "redis":
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		cleanup.add(client.Close)
		checks["redis"] = redis.Healthcheck(client)
		return queue.NewRedisStorage(client, queue.WithRedisPrefix(cfg.Redis.KeyPrefix))
	default:
		return nil, fmt.Errorf("unknown QUEUE_STORAGE %q: must be memory or redis", cfg.Notifier.Queue.Storage)
	}
}

// openDispatchers registers the socket channel and every external channel
// that has credentials. External providers sit behind circuit breakers.
func openDispatchers(cfg appConfig, hub *broadcast.Hub[dispatcher.SocketEvent], log *slog.Logger, cleanup *closers) (*dispatcher.Factory, error) {
	factory := dispatcher.NewFactory(
		dispatcher.WithTimeout(cfg.Notifier.ChannelTimeout),
		dispatcher.WithLogger(log),
	)
	factory.Register(dispatcher.NewSocket(hub))

	if cfg.Email.PostmarkEnabled() || cfg.Email.SMTPEnabled() {
		email := dispatcher.NewEmail(cfg.Email, dispatcher.WithEmailLogger(log))
		factory.Register(dispatcher.WithBreaker(email, cfg.Breaker.New()))
	}

	if cfg.Push.Enabled() {
		publisher, err := dispatcher.DialAMQP(cfg.Push)
		if err != nil {
			return nil, err
		}
		cleanup.add(publisher.Close)
		factory.Register(dispatcher.WithBreaker(dispatcher.NewPush(cfg.Push, publisher), cfg.Breaker.New()))
	}
	return factory, nil
}

func statusRoutes(svc *notifier.Service, factory *dispatcher.Factory, retries *retry.Service) []httpserver.Route {
	return []httpserver.Route{
		{
			Pattern: "/status/channels",
			Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				httpserver.WriteJSON(w, http.StatusOK, map[string]any{
					"health":   svc.Health(r.Context()),
					"channels": factory.Configs(),
				})
			}),
		},
		{
			Pattern: "/status/queue",
			Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				st, err := svc.Inspector().Stats(r.Context())
				if err != nil {
					httpserver.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
					return
				}
				httpserver.WriteJSON(w, http.StatusOK, st)
			}),
		},
		{
			Pattern: "/status/retries",
			Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				st, err := retries.Stats(r.Context())
				if err != nil {
					httpserver.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
					return
				}
				httpserver.WriteJSON(w, http.StatusOK, st)
			}),
		},
	}
}
