package ratelimiter

import (
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/dmitrymomot/notifykit/pkg/config"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// ChannelLimits holds limits for every channel plus the sweep settings of
// the in-memory store. Values are read from RATE_LIMIT_* variables, for
// example RATE_LIMIT_EMAIL_BURST or RATE_LIMIT_PUSH_PER_DAY.
type ChannelLimits struct {
	Email  Limits `envPrefix:"EMAIL_"`
	Push   Limits `envPrefix:"PUSH_"`
	Socket Limits `envPrefix:"SOCKET_"`

	SweepInterval time.Duration `env:"SWEEP_INTERVAL"`
	IdleTimeout   time.Duration `env:"IDLE_TIMEOUT"`
}

// EnvPrefix is prepended to every variable read by LoadConfig.
const EnvPrefix = "RATE_LIMIT_"

// DefaultConfig returns the built-in per-channel limits.
func DefaultConfig() ChannelLimits {
	return ChannelLimits{
		Email:         Limits{Burst: 5, PerMinute: 10, PerHour: 100, PerDay: 500},
		Push:          Limits{Burst: 10, PerMinute: 30, PerHour: 300, PerDay: 2000},
		Socket:        Limits{Burst: 50, PerMinute: 120, PerHour: 3000, PerDay: 20000},
		SweepInterval: defaultSweepInterval,
		IdleTimeout:   defaultIdleTimeout,
	}
}

// LoadConfig returns DefaultConfig overridden by the environment.
func LoadConfig() (ChannelLimits, error) {
	cfg := DefaultConfig()
	if err := config.Apply(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return ChannelLimits{}, err
	}
	return cfg, nil
}

// Map returns limits keyed by channel.
func (c ChannelLimits) Map() map[notifications.Channel]Limits {
	return map[notifications.Channel]Limits{
		notifications.ChannelEmail:  c.Email,
		notifications.ChannelPush:   c.Push,
		notifications.ChannelSocket: c.Socket,
	}
}
