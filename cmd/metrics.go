package main

import (
	"context"
	"net"
	"strconv"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/soundshare/internal/metrics"
	"github.com/desertthunder/soundshare/internal/server"
	"github.com/desertthunder/soundshare/internal/shared"
)

const defaultMetricsPort = 9090

func (r *Runner) metricsAddr(flag string) string {
	switch {
	case flag != "":
		return flag
	case r.config.Server.MetricsAddr != "":
		return r.config.Server.MetricsAddr
	default:
		return net.JoinHostPort(r.config.Server.Host, strconv.Itoa(defaultMetricsPort))
	}
}

func (r *Runner) metricsRouter() *server.BasicRouter {
	router := server.NewBasicRouter()
	router.Use(server.LoggingMiddleware(shared.WithLogger(r.logger, "component", "metrics")))
	router.Handle("GET", "/metrics", metrics.Handler(r.registry))
	return router
}

// MetricsServe serves the process registry on /metrics until the context ends.
func (r *Runner) MetricsServe(ctx context.Context, cmd *cli.Command) error {
	ln, err := server.Listen(r.metricsAddr(cmd.String("addr")))
	if err != nil {
		return err
	}

	r.logger.Info("serving metrics", "addr", "http://"+ln.Addr().String()+"/metrics")
	return server.Serve(ctx, ln, r.metricsRouter(), r.logger)
}

// serveMetricsInBackground exposes /metrics on server.metrics_addr for the lifetime of ctx. A bind
// failure is logged and ignored.
func (r *Runner) serveMetricsInBackground(ctx context.Context) {
	addr := r.config.Server.MetricsAddr
	if addr == "" {
		return
	}

	ln, err := server.Listen(addr)
	if err != nil {
		r.logger.Warn("metrics disabled", "error", err)
		return
	}

	go func() {
		if err := server.Serve(ctx, ln, r.metricsRouter(), r.logger); err != nil {
			r.logger.Warn("metrics server stopped", "error", err)
		}
	}()
}
