package httpserver

import "time"

// Config configures the operations endpoint server.
type Config struct {
	Addr            string        `env:"OPS_ADDR" envDefault:":9090"`
	ReadTimeout     time.Duration `env:"OPS_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"OPS_WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"OPS_SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

// defaults mirrors the envDefault tags for servers built without config.Load.
var defaults = Config{
	Addr:            ":9090",
	ReadTimeout:     10 * time.Second,
	WriteTimeout:    10 * time.Second,
	ShutdownTimeout: 5 * time.Second,
}

// NewFromConfig creates a Server from cfg. Zero fields keep the defaults;
// opts are applied afterwards.
func NewFromConfig(cfg Config, opts ...Option) *Server {
	base := []Option{
		WithAddr(cfg.Addr),
		WithReadTimeout(cfg.ReadTimeout),
		WithWriteTimeout(cfg.WriteTimeout),
		WithShutdownTimeout(cfg.ShutdownTimeout),
	}
	return New(append(base, opts...)...)
}
