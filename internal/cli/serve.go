package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"retail-bi/internal/middleware"
	"retail-bi/internal/observability"
	"retail-bi/internal/pipeline"
	"retail-bi/internal/server"
	"retail-bi/pkg/version"
)

const loadTimeout = 30 * time.Second

type serveOptions struct {
	source string
	host   string
	port   int
}

func newServeCmd(a *app) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the pipeline once and serve the results over HTTP",
		Long: `Load a transaction table, run the analytics pipeline once and serve the
result read-only: a JSON API under /api, datastar fragments under /sse, a
dashboard at / and Prometheus metrics at /metrics.

The server stops gracefully on SIGINT or SIGTERM.

Example:
  retailbi serve --source data.csv
  retailbi serve --source data.csv --port 9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.source, "source", "",
		"transaction table (.csv or .xlsx)")
	cmd.Flags().StringVar(&opts.host, "host", "",
		"listen host")
	cmd.Flags().IntVar(&opts.port, "port", 0,
		"listen port")

	return cmd
}

func (a *app) runServe(cmd *cobra.Command, opts *serveOptions) error {
	if opts.source != "" {
		a.cfg.Data.Source = opts.source
	}
	if opts.host != "" {
		a.cfg.Server.Host = opts.host
	}
	if opts.port > 0 {
		a.cfg.Server.Port = opts.port
	}
	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := a.logger
	logger.Info("starting application", "version", version.Short(), "source", a.cfg.Data.Source)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	loadCtx, cancel := context.WithTimeout(cmd.Context(), loadTimeout)
	defer cancel()

	run, err := pipeline.New(a.cfg.Pipeline, logger, metrics).ExecuteFile(loadCtx, a.cfg.Data.Source)
	if err != nil {
		return fmt.Errorf("pipeline failed: %w", err)
	}
	if failed := run.Failed(); len(failed) > 0 {
		logger.Warn("serving a partial run", "run_id", run.ID(), "unavailable", failed)
	}

	srv := server.NewServer(run, a.cfg.Pipeline.TopAssociations, logger, reg, &server.TemplateHandlers{
		Dashboard: server.DashboardHandler(run),
	})

	rateLimiter := middleware.NewRateLimiter(a.cfg.Security)

	middlewareChain := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Metrics(metrics),
		middleware.Logger(logger),
		middleware.Tracing(logger),
		middleware.SecurityHeaders(),
		middleware.CORS(a.cfg.Security),
		middleware.TrustedProxy(a.cfg.Security),
		middleware.RateLimit(rateLimiter, logger),
	)

	httpServer := &http.Server{
		Addr:         a.cfg.Address(),
		Handler:      middlewareChain(srv),
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  a.cfg.Server.IdleTimeout,
	}

	gracefulServer := server.NewGracefulServer(httpServer, logger, a.cfg.Server)
	gracefulServer.RegisterShutdownHook(func(ctx context.Context) error {
		logger.Info("releasing run", "run_id", run.ID())
		return nil
	})

	if err := gracefulServer.ListenAndServe(cmd.Context()); err != nil {
		return err
	}
	logger.Info("application stopped gracefully")
	return nil
}
