package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/leonardosantosdev/imdb-analytics/internal/imdb"
	"github.com/leonardosantosdev/imdb-analytics/internal/logging"
	"github.com/leonardosantosdev/imdb-analytics/internal/manifest"
	"github.com/leonardosantosdev/imdb-analytics/internal/metrics"
	"github.com/leonardosantosdev/imdb-analytics/internal/report"
	"github.com/leonardosantosdev/imdb-analytics/internal/snapshot"
)

const stageName = "metrics"

// SilverSource loads silver tables from a snapshot directory
type SilverSource interface {
	ReadSilver(ctx context.Context, dir string) (*imdb.Silver, error)
	ReadRatings(ctx context.Context, dir string) ([]imdb.Rating, error)
}

// Options controls one analytics invocation
type Options struct {
	// Date selects the silver snapshot; nil resolves the latest
	Date  *time.Time
	RunID string
}

// Summary describes one published report
type Summary struct {
	Name string `json:"name"`
	Rows int    `json:"rows"`
	Note string `json:"note,omitempty"`
}

// Result describes an analytics run
type Result struct {
	Snapshot    snapshot.Snapshot
	Previous    *snapshot.Snapshot
	GeneratedAt string
	Reports     []Summary
}

// Engine computes and publishes every report for a silver snapshot
type Engine struct {
	silver  *snapshot.Store
	sink    report.Sink
	logger  *logging.ComponentLogger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewEngine(silver *snapshot.Store, sink report.Sink, logger *logging.ComponentLogger, m *metrics.Metrics) *Engine {
	return &Engine{
		silver:  silver,
		sink:    sink,
		logger:  logger.With(stageName),
		metrics: m,
		now:     time.Now,
	}
}

// Run resolves the silver snapshot and its predecessor, builds the views and
// writes every report through the sink. The analytics stage never writes to
// a snapshot store.
func (e *Engine) Run(ctx context.Context, src SilverSource, opts Options) (res *Result, err error) {
	start := e.now()
	defer func() { e.metrics.RecordStage(stageName, time.Since(start), err) }()

	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}

	current, err := e.silver.Resolve(opts.Date)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve silver snapshot: %w", err)
	}
	e.logger.LogStageStart(stageName, opts.RunID, current.DateString())

	data, err := src.ReadSilver(ctx, current.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load silver snapshot %s: %w", current.DateString(), err)
	}

	res = &Result{Snapshot: current}

	prev, ok, err := e.silver.Previous(current.Date)
	if err != nil {
		return nil, err
	}
	var previousRatings []imdb.Rating
	if ok {
		res.Previous = &prev
		previousRatings, err = src.ReadRatings(ctx, prev.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to load previous ratings %s: %w", prev.DateString(), err)
		}
		if previousRatings == nil {
			previousRatings = []imdb.Rating{}
		}
		e.logger.Info().Str("previous_snapshot", prev.DateString()).Msg("Resolved previous snapshot")
	} else {
		e.logger.Info().Msg("No previous snapshot, week-over-week report will be empty")
	}

	views := BuildViews(data, previousRatings)

	res.GeneratedAt = manifest.Timestamp(e.now())
	meta := report.Meta{GeneratedAt: res.GeneratedAt, SnapshotDate: current.DateString()}

	for _, build := range Builders {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r := build(views)
		if err := e.sink.Write(ctx, r, meta); err != nil {
			return nil, fmt.Errorf("failed to publish report %s: %w", r.Name, err)
		}
		e.metrics.SetReportRows(r.Name, r.Len())
		e.logger.Debug().Str("report", r.Name).Int("rows", r.Len()).Msg("Report written")
		res.Reports = append(res.Reports, Summary{Name: r.Name, Rows: r.Len(), Note: r.Note})
	}

	e.metrics.RecordSnapshot(stageName, current.Date)
	e.logger.Info().
		Str("snapshot_date", current.DateString()).
		Int("reports", len(res.Reports)).
		Msg("Reports published")
	e.logger.LogStageComplete(stageName, opts.RunID, time.Since(start))
	return res, nil
}
