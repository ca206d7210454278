// Package httpserver serves the operations endpoints of a notifykit process:
// liveness, readiness, Prometheus metrics and a few JSON status routes.
//
// Server.Run blocks until its context is cancelled and then shuts down
// gracefully within the configured timeout. Listen errors wrap ErrStart and
// shutdown errors wrap ErrShutdown.
//
//	h := httpserver.NewRouter(httpserver.RouterConfig{
//		Metrics: metrics.Handler(reg),
//		Checks:  map[string]httpserver.Check{"redis": redis.Healthcheck(client)},
//	})
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	err := srv.Run(ctx, h)
package httpserver
