package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"maps"
	"net/http"
	"slices"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

// Readiness is the body written by ReadinessHandler.
type Readiness struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

const (
	StatusReady    = "ready"
	StatusNotReady = "not_ready"
	checkOK        = "ok"
)

// LivenessHandler always answers 200 ALIVE.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ALIVE"))
	}
}

// ReadinessHandler runs every check with the request context. All checks
// run even after one fails; any failure answers 503.
func ReadinessHandler(log *slog.Logger, checks map[string]Check) http.HandlerFunc {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	names := slices.Sorted(maps.Keys(checks))

	return func(w http.ResponseWriter, r *http.Request) {
		res := Readiness{Status: StatusReady, Checks: make(map[string]string, len(names))}
		for _, name := range names {
			if err := checks[name](r.Context()); err != nil {
				log.LogAttrs(r.Context(), slog.LevelWarn, "readiness check failed",
					slog.String("check", name),
					logger.Error(err))
				res.Status = StatusNotReady
				res.Checks[name] = err.Error()
				continue
			}
			res.Checks[name] = checkOK
		}

		status := http.StatusOK
		if res.Status != StatusReady {
			status = http.StatusServiceUnavailable
		}
		WriteJSON(w, status, res)
	}
}

// WriteJSON writes v as a JSON response with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
