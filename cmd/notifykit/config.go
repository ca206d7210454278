package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dmitrymomot/notifykit/pkg/audit"
	"github.com/dmitrymomot/notifykit/pkg/config"
	"github.com/dmitrymomot/notifykit/pkg/dispatcher"
	"github.com/dmitrymomot/notifykit/pkg/httpserver"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifier"
	"github.com/dmitrymomot/notifykit/pkg/pg"
	"github.com/dmitrymomot/notifykit/pkg/redis"
	"github.com/dmitrymomot/notifykit/pkg/retry"
	"github.com/dmitrymomot/notifykit/pkg/templates"
)

const serviceName = "notifykit"

type logConfig struct {
	Env    string `env:"APP_ENV" envDefault:"development"`
	Level  string `env:"LOG_LEVEL"`
	Format string `env:"LOG_FORMAT"`
	// File enables rotating file output instead of stdout.
	File       string `env:"LOG_FILE"`
	MaxSizeMB  int    `env:"LOG_FILE_MAX_SIZE_MB" envDefault:"100"`
	MaxBackups int    `env:"LOG_FILE_MAX_BACKUPS" envDefault:"5"`
	MaxAgeDays int    `env:"LOG_FILE_MAX_AGE_DAYS" envDefault:"14"`
}

type appConfig struct {
	Log      logConfig
	Notifier notifier.Config
	Retry    retry.Config
	Email    dispatcher.EmailConfig
	Push     dispatcher.PushConfig
	Socket   dispatcher.SocketConfig
	Breaker  dispatcher.BreakerConfig
	Schemas  templates.SchemaConfig
	Audit    audit.AsyncOptions
	PG       pg.Config
	Redis    redis.Config
	HTTP     httpserver.Config
}

func loadConfig() (appConfig, error) {
	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		return appConfig{}, err
	}
	if f := logger.Format(cfg.Log.Format); f != "" && f != logger.FormatJSON && f != logger.FormatText {
		return appConfig{}, fmt.Errorf("LOG_FORMAT must be %q or %q, got %q", logger.FormatJSON, logger.FormatText, f)
	}
	return cfg, nil
}

// newLogger builds the process logger. The returned closer flushes the log
// file when LOG_FILE is set.
func newLogger(cfg logConfig) (*slog.Logger, func() error) {
	var out io.Writer = os.Stdout
	closer := func() error { return nil }
	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		out, closer = lj, lj.Close
	}

	opts := []logger.Option{
		logger.WithEnvironment(cfg.Env, serviceName),
		logger.WithOutput(out),
		logger.WithLevelName(cfg.Level),
	}
	if cfg.Format != "" {
		opts = append(opts, logger.WithFormat(logger.Format(cfg.Format)))
	}
	return logger.New(opts...), closer
}
