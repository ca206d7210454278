package queue

import "time"

// Config holds queue and worker settings.
type Config struct {
	Name            string        `env:"QUEUE_NAME" envDefault:"notifications"`
	PollInterval    time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"1s"`
	LockTimeout     time.Duration `env:"QUEUE_LOCK_TIMEOUT" envDefault:"5m"`
	ShutdownTimeout time.Duration `env:"QUEUE_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	MaxAttempts     int           `env:"QUEUE_MAX_ATTEMPTS" envDefault:"3"`
	RetryBackoff    time.Duration `env:"QUEUE_RETRY_BACKOFF" envDefault:"30s"`
	// CleanupGrace is how long finished jobs are kept before Cleanup removes them.
	CleanupGrace time.Duration `env:"QUEUE_CLEANUP_GRACE" envDefault:"24h"`
	// Storage selects the backend: "memory" or "redis".
	Storage string `env:"QUEUE_STORAGE" envDefault:"memory"`
}
