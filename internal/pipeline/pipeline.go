// Package pipeline wires the stages together. Every stage runs to completion
// before the next starts, and each stage invocation opens its own query engine.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/leonardosantosdev/imdb-analytics/internal/analytics"
	"github.com/leonardosantosdev/imdb-analytics/internal/config"
	"github.com/leonardosantosdev/imdb-analytics/internal/engine"
	"github.com/leonardosantosdev/imdb-analytics/internal/ingest"
	"github.com/leonardosantosdev/imdb-analytics/internal/lake"
	"github.com/leonardosantosdev/imdb-analytics/internal/logging"
	"github.com/leonardosantosdev/imdb-analytics/internal/metrics"
	"github.com/leonardosantosdev/imdb-analytics/internal/report"
	"github.com/leonardosantosdev/imdb-analytics/internal/snapshot"
	"github.com/leonardosantosdev/imdb-analytics/internal/transform"
)

// Options are shared by every stage of a run
type Options struct {
	// Date selects the snapshot; nil means today for ingest and latest for
	// transform and analytics
	Date  *time.Time
	Keep  int
	Force bool
}

// Result collects the outcome of a full run
type Result struct {
	RunID     string
	Ingest    *ingest.Result
	Transform *transform.Result
	Analytics *analytics.Result
}

// Pipeline runs the ingest, transform and analytics stages
type Pipeline struct {
	cfg     *config.Config
	logger  *logging.ComponentLogger
	metrics *metrics.Metrics
	bronze  *snapshot.Store
	silver  *snapshot.Store

	ingester *ingest.Ingester
	// sinks builds the report sink for an analytics run
	sinks func(ctx context.Context) (report.Sink, func(), error)
}

func New(cfg *config.Config, logger *logging.ComponentLogger, m *metrics.Metrics) *Pipeline {
	bronze := snapshot.NewStore(cfg.Storage.BronzeDir)
	p := &Pipeline{
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		bronze:   bronze,
		silver:   snapshot.NewStore(cfg.Storage.SilverDir),
		ingester: ingest.New(bronze, cfg.Ingest, logger, m),
	}
	p.sinks = p.configuredSinks
	return p
}

// Bronze returns the raw snapshot store
func (p *Pipeline) Bronze() *snapshot.Store { return p.bronze }

// Silver returns the normalized snapshot store
func (p *Pipeline) Silver() *snapshot.Store { return p.silver }

func (p *Pipeline) keep(opts Options) int {
	if opts.Keep > 0 {
		return opts.Keep
	}
	return p.cfg.Storage.Keep
}

// Ingest downloads a new bronze snapshot
func (p *Pipeline) Ingest(ctx context.Context, opts Options, runID string) (*ingest.Result, error) {
	return p.ingester.Run(ctx, ingest.Options{
		Date:  opts.Date,
		Keep:  p.keep(opts),
		Force: opts.Force,
		RunID: runID,
	})
}

// Transform builds a silver snapshot from a bronze snapshot
func (p *Pipeline) Transform(ctx context.Context, opts Options, runID string) (*transform.Result, error) {
	client, err := engine.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	t := transform.New(p.bronze, p.silver, lake.NewWriter(p.cfg.Service.Name+" "+p.cfg.Service.Version),
		p.cfg.Transform.AllowedTitleTypes, p.logger, p.metrics)
	return t.Run(ctx, client, transform.Options{
		Date:  opts.Date,
		Keep:  p.keep(opts),
		Force: opts.Force,
		RunID: runID,
	})
}

// Analytics publishes every report for a silver snapshot
func (p *Pipeline) Analytics(ctx context.Context, opts Options, runID string) (*analytics.Result, error) {
	sink, closeSinks, err := p.sinks(ctx)
	if err != nil {
		return nil, err
	}
	defer closeSinks()

	client, err := engine.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	e := analytics.NewEngine(p.silver, sink, p.logger, p.metrics)
	return e.Run(ctx, client, analytics.Options{Date: opts.Date, RunID: runID})
}

// Run executes ingest, transform and analytics for one snapshot date
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Result, error) {
	res := &Result{RunID: uuid.NewString()}
	start := time.Now()
	p.logger.Info().Str("run_id", res.RunID).Msg("Pipeline run started")

	var err error
	if res.Ingest, err = p.Ingest(ctx, opts, res.RunID); err != nil {
		return res, fmt.Errorf("ingest: %w", err)
	}

	// later stages use the snapshot ingest just committed
	date := res.Ingest.Snapshot.Date
	opts.Date = &date

	if res.Transform, err = p.Transform(ctx, opts, res.RunID); err != nil {
		return res, fmt.Errorf("transform: %w", err)
	}
	if res.Analytics, err = p.Analytics(ctx, opts, res.RunID); err != nil {
		return res, fmt.Errorf("metrics: %w", err)
	}

	p.logger.Info().
		Str("run_id", res.RunID).
		Str("snapshot_date", date.Format(snapshot.DateLayout)).
		Dur("duration", time.Since(start)).
		Msg("Pipeline run completed")
	return res, nil
}

// configuredSinks always publishes to the output directory and adds the
// database and object store sinks when they are enabled.
func (p *Pipeline) configuredSinks(ctx context.Context) (report.Sink, func(), error) {
	sinks := report.MultiSink{report.NewFileSink(p.cfg.Reports.OutputDir)}
	var closers []func() error
	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				p.logger.Warn().Err(err).Msg("Failed to close report sink")
			}
		}
	}

	if pg := p.cfg.Reports.Postgres; pg.Enabled {
		s, err := report.NewPostgresSink(ctx, pg.ConnectionString(), pg.Table)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, s)
		closers = append(closers, s.Close)
		p.logger.Info().Str("table", pg.Table).Msg("Publishing reports to PostgreSQL")
	}

	if store := p.cfg.Reports.ObjectStore; store.Enabled {
		s, err := report.NewObjectSink(ctx, store)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, s)
		p.logger.Info().Str("bucket", store.Bucket).Str("prefix", store.Prefix).Msg("Publishing reports to object storage")
	}

	return sinks, closeAll, nil
}
