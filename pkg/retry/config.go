package retry

import "time"

// Config is the environment form of Policy.
type Config struct {
	InitialDelay time.Duration `env:"RETRY_INITIAL_DELAY" envDefault:"1s"`
	Multiplier   float64       `env:"RETRY_MULTIPLIER" envDefault:"2"`
	MaxDelay     time.Duration `env:"RETRY_MAX_DELAY" envDefault:"5m"`
	MaxAttempts  int           `env:"RETRY_MAX_ATTEMPTS" envDefault:"3"`
}

// Policy converts the configuration into a Policy.
func (c Config) Policy() Policy {
	return Policy{
		InitialDelay: c.InitialDelay,
		Multiplier:   c.Multiplier,
		MaxDelay:     c.MaxDelay,
		MaxAttempts:  c.MaxAttempts,
	}
}
