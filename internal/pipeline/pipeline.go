// Package pipeline runs the analytics modules over one transaction table and
// collects their outputs into an immutable Run.
package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"retail-bi/internal/aggregate"
	"retail-bi/internal/basket"
	"retail-bi/internal/config"
	"retail-bi/internal/errors"
	"retail-bi/internal/forecast"
	"retail-bi/internal/loader"
	"retail-bi/internal/models"
	"retail-bi/internal/observability"
	"retail-bi/internal/rfm"
)

type Module string

const (
	ModuleAggregate Module = "aggregate"
	ModuleForecast  Module = "forecast"
	ModuleBasket    Module = "basket"
	ModuleRFM       Module = "rfm"
)

// Modules lists every module in reporting order.
var Modules = []Module{ModuleAggregate, ModuleForecast, ModuleBasket, ModuleRFM}

type Pipeline struct {
	cfg     config.PipelineConfig
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New builds a pipeline. metrics may be nil.
func New(cfg config.PipelineConfig, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	if logger == nil {
		logger = observability.Discard()
	}
	return &Pipeline{cfg: cfg, logger: logger, metrics: metrics}
}

// ExecuteFile loads path and runs every module over it. A load failure is
// fatal and produces no Run.
func (p *Pipeline) ExecuteFile(ctx context.Context, path string) (*Run, error) {
	loadCtx, span := observability.StartSpan(ctx, "pipeline.load")
	span.SetTag("source", path)

	started := time.Now()
	txs, err := loader.Load(loadCtx, path)
	if err != nil {
		span.SetError(err)
		span.End(p.logger)
		if p.metrics != nil {
			p.metrics.Runs.WithLabelValues("failed").Inc()
		}
		p.logger.Error("failed to load transactions",
			"source", path,
			"error_code", errors.CodeOf(err),
			"error", err,
		)
		return nil, err
	}
	span.End(p.logger)

	p.logger.Info("transactions loaded",
		"source", path,
		"transactions", len(txs),
		"duration", time.Since(started),
	)

	run := p.Execute(ctx, txs)
	run.source = path
	return run, nil
}

// Execute runs every module over txs. Module failures are recorded on the Run
// and never stop the other modules. txs must not be modified afterwards.
func (p *Pipeline) Execute(ctx context.Context, txs []models.Transaction) *Run {
	ctx, span := observability.StartSpan(ctx, "pipeline.execute")
	defer span.End(p.logger)

	run := &Run{
		id:           uuid.NewString(),
		startedAt:    time.Now().UTC(),
		transactions: txs,
		statuses:     make(map[Module]ModuleStatus, len(Modules)),
	}
	span.SetTag("run_id", run.id)

	// Aggregation feeds the forecast, so it runs first.
	p.runModule(ctx, run, ModuleAggregate, func() error {
		run.summary = aggregate.Summarize(txs)
		run.monthly = aggregate.ByMonth(txs)
		run.categories = aggregate.ByCategory(txs)
		run.regions = aggregate.ByRegion(txs)
		run.products = aggregate.ByProduct(txs)
		run.seasonal = aggregate.Seasonal(txs)
		return nil
	})

	statuses := make([]ModuleStatus, 3)
	var g errgroup.Group

	g.Go(func() error {
		statuses[0] = p.measure(ctx, ModuleForecast, func() (err error) {
			run.forecast, err = forecast.Project(run.monthly, forecast.Options{
				Horizon:           p.cfg.ForecastHorizon,
				SingleMonthPolicy: p.cfg.SingleMonthPolicy,
			})
			return err
		})
		return nil
	})
	g.Go(func() error {
		statuses[1] = p.measure(ctx, ModuleBasket, func() (err error) {
			run.basket, err = basket.Analyze(txs)
			return err
		})
		return nil
	})
	g.Go(func() error {
		statuses[2] = p.measure(ctx, ModuleRFM, func() (err error) {
			run.rfm, err = rfm.Compute(txs, rfmOptions(p.cfg.RFM))
			return err
		})
		return nil
	})
	_ = g.Wait()

	for _, st := range statuses {
		run.statuses[st.Module] = st
	}
	run.duration = time.Since(run.startedAt)

	failed := run.Failed()
	outcome := "ok"
	if len(failed) > 0 {
		outcome = "partial"
		span.SetTag("failed_modules", joinModules(failed))
	}
	if p.metrics != nil {
		p.metrics.Runs.WithLabelValues(outcome).Inc()
		p.metrics.TransactionsLoaded.Set(float64(len(txs)))
	}

	for _, w := range run.rfm.Warnings {
		p.logger.Warn("rfm metric not ranked", "run_id", run.id, "warning", w.Message)
	}
	p.logger.Info("pipeline run finished",
		"run_id", run.id,
		"transactions", len(txs),
		"outcome", outcome,
		"failed_modules", len(failed),
		"duration", run.duration,
	)
	return run
}

func (p *Pipeline) runModule(ctx context.Context, run *Run, module Module, fn func() error) {
	run.statuses[module] = p.measure(ctx, module, fn)
}

// measure runs one module and turns its outcome into a status.
func (p *Pipeline) measure(ctx context.Context, module Module, fn func() error) ModuleStatus {
	_, span := observability.StartSpan(ctx, "module."+string(module))
	defer span.End(p.logger)

	started := time.Now()
	var err error
	if err = ctx.Err(); err == nil {
		err = fn()
	}

	st := ModuleStatus{Module: module, Duration: time.Since(started)}
	code := ""
	if err != nil {
		st.Err = err
		st.Code = errors.CodeOf(err)
		code = string(st.Code)
		span.SetError(err)
		p.logger.Warn("module failed",
			"module", module,
			"error_code", st.Code,
			"error", err,
		)
	} else {
		p.logger.Debug("module finished", "module", module, "duration", st.Duration)
	}
	p.metrics.ObserveModule(string(module), started, code)
	return st
}

func rfmOptions(cfg config.RFMConfig) rfm.Options {
	opts := rfm.Options{
		Fallback:     models.Segment(cfg.FallbackSegment),
		DefaultScore: cfg.DefaultScore,
	}
	for _, r := range cfg.Rules {
		opts.Rules = append(opts.Rules, rfm.Rule{
			Segment:   models.Segment(r.Segment),
			Recency:   r.Recency,
			Frequency: r.Frequency,
			Monetary:  r.Monetary,
			FMAny:     r.FMAny,
		})
	}
	if len(opts.Rules) == 0 {
		opts.Rules = rfm.DefaultRules()
	}
	return opts
}

func joinModules(mods []Module) string {
	names := make([]string, len(mods))
	for i, m := range mods {
		names[i] = string(m)
	}
	return strings.Join(names, ",")
}
