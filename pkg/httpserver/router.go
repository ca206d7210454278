package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Route is an extra GET endpoint mounted on the ops router.
type Route struct {
	Pattern string
	Handler http.Handler
}

// RouterConfig lists what the ops router exposes.
type RouterConfig struct {
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// Checks back /readyz.
	Checks map[string]Check
	Routes []Route
	Logger *slog.Logger
}

// NewRouter builds the ops router: /healthz, /readyz, /metrics and any
// extra routes.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", LivenessHandler())
	r.Get("/readyz", ReadinessHandler(cfg.Logger, cfg.Checks))
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}
	for _, rt := range cfg.Routes {
		r.Method(http.MethodGet, rt.Pattern, rt.Handler)
	}
	return r
}
