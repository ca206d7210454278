package httpserver

import (
	"log/slog"
	"time"
)

// Option overrides a field of the server Config. Zero values are ignored.
type Option func(*Server)

func WithAddr(addr string) Option {
	return func(s *Server) {
		if addr != "" {
			s.cfg.Addr = addr
		}
	}
}

func WithReadTimeout(d time.Duration) Option {
	return func(s *Server) { setPositive(&s.cfg.ReadTimeout, d) }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) { setPositive(&s.cfg.WriteTimeout, d) }
}

// WithShutdownTimeout bounds graceful shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) { setPositive(&s.cfg.ShutdownTimeout, d) }
}

// WithLogger sets the lifecycle logger. Nil discards.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

func setPositive(dst *time.Duration, d time.Duration) {
	if d > 0 {
		*dst = d
	}
}
