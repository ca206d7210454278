package notifier

import (
	"time"

	"github.com/dmitrymomot/notifykit/pkg/queue"
)

// Config holds processor and housekeeping settings.
type Config struct {
	Workers        int           `env:"NOTIFIER_WORKERS" envDefault:"4"`
	ChannelTimeout time.Duration `env:"NOTIFIER_CHANNEL_TIMEOUT" envDefault:"10s"`

	RetryPollInterval    time.Duration `env:"NOTIFIER_RETRY_POLL_INTERVAL" envDefault:"5s"`
	RetryCleanupInterval time.Duration `env:"NOTIFIER_RETRY_CLEANUP_INTERVAL" envDefault:"1h"`
	RetryHorizon         time.Duration `env:"NOTIFIER_RETRY_HORIZON" envDefault:"24h"`

	RecoverInterval      time.Duration `env:"NOTIFIER_RECOVER_INTERVAL" envDefault:"1m"`
	QueueCleanupInterval time.Duration `env:"NOTIFIER_QUEUE_CLEANUP_INTERVAL" envDefault:"1h"`
	StatsInterval        time.Duration `env:"NOTIFIER_STATS_INTERVAL" envDefault:"15s"`

	Queue queue.Config
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Workers:              4,
		ChannelTimeout:       10 * time.Second,
		RetryPollInterval:    5 * time.Second,
		RetryCleanupInterval: time.Hour,
		RetryHorizon:         24 * time.Hour,
		RecoverInterval:      time.Minute,
		QueueCleanupInterval: time.Hour,
		StatsInterval:        15 * time.Second,
		Queue: queue.Config{
			Name:            queue.DefaultQueueName,
			PollInterval:    time.Second,
			LockTimeout:     5 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
			MaxAttempts:     3,
			RetryBackoff:    30 * time.Second,
			CleanupGrace:    24 * time.Hour,
			Storage:         "memory",
		},
	}
}
