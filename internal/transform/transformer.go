// Package transform builds validated silver snapshots from bronze snapshots.
package transform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/leonardosantosdev/imdb-analytics/internal/config"
	"github.com/leonardosantosdev/imdb-analytics/internal/imdb"
	"github.com/leonardosantosdev/imdb-analytics/internal/logging"
	"github.com/leonardosantosdev/imdb-analytics/internal/manifest"
	"github.com/leonardosantosdev/imdb-analytics/internal/metrics"
	"github.com/leonardosantosdev/imdb-analytics/internal/snapshot"
)

const stageName = "transform"

// RawSource scans the raw extracts of a bronze snapshot directory
type RawSource interface {
	ReadRaw(ctx context.Context, dir string) (*imdb.RawTables, error)
}

// TableWriter persists the silver tables into a snapshot directory and returns
// the artifact name of each table
type TableWriter interface {
	WriteSilver(dir string, s *imdb.Silver) (map[string]string, error)
}

// Options controls one transform invocation
type Options struct {
	// Date selects the bronze snapshot; nil resolves the latest
	Date *time.Time
	// Keep is the silver retention count; zero uses the default
	Keep  int
	Force bool
	RunID string
}

// Result describes a committed silver snapshot
type Result struct {
	Snapshot snapshot.Snapshot
	Manifest manifest.Silver
	Checks   []QualityCheckResult
	Pruned   []string
}

// Transformer turns a bronze snapshot into a silver snapshot
type Transformer struct {
	bronze       *snapshot.Store
	silver       *snapshot.Store
	writer       TableWriter
	allowedTypes []string
	logger       *logging.ComponentLogger
	metrics      *metrics.Metrics
}

// New creates a transformer. A nil allow-list uses the default title types.
func New(bronze, silver *snapshot.Store, writer TableWriter, allowedTypes []string,
	logger *logging.ComponentLogger, m *metrics.Metrics) *Transformer {
	if len(allowedTypes) == 0 {
		allowedTypes = imdb.TransformTitleTypes
	}
	return &Transformer{
		bronze:       bronze,
		silver:       silver,
		writer:       writer,
		allowedTypes: allowedTypes,
		logger:       logger.With(stageName),
		metrics:      m,
	}
}

// Run resolves the bronze snapshot, normalizes and validates it, and commits a
// silver snapshot for the same date. Any failure leaves no silver manifest.
func (t *Transformer) Run(ctx context.Context, src RawSource, opts Options) (res *Result, err error) {
	start := time.Now()
	defer func() { t.metrics.RecordStage(stageName, time.Since(start), err) }()

	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}

	bronzeSnap, err := t.bronze.Resolve(opts.Date)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve bronze snapshot: %w", err)
	}
	t.logger.LogStageStart(stageName, opts.RunID, bronzeSnap.DateString())

	for _, name := range imdb.RawFiles {
		path := bronzeSnap.File(name)
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, &MissingInputError{Path: path}
			}
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}
	}

	raw, err := src.ReadRaw(ctx, bronzeSnap.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bronze snapshot %s: %w", bronzeSnap.DateString(), err)
	}
	t.logger.Debug().
		Int("basics", len(raw.Basics)).
		Int("ratings", len(raw.Ratings)).
		Int("episodes", len(raw.Episodes)).
		Msg("Raw extracts loaded")

	silverData := Normalize(raw, t.allowedTypes)

	checks, err := Validate(silverData)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			t.metrics.RecordValidationFailure(verr.Table, verr.Rule)
			t.logger.Error().
				Str("table", verr.Table).
				Str("rule", verr.Rule).
				Int("violations", verr.Count).
				Msg("Validation gate failed")
		}
		return nil, err
	}

	staged, err := t.silver.Create(bronzeSnap.Date, opts.Force)
	if err != nil {
		return nil, err
	}

	silverSnap, m, err := t.commit(staged, silverData, opts.RunID)
	if err != nil {
		if derr := t.silver.Discard(staged); derr != nil {
			t.logger.Warn().Err(derr).Str("path", staged.Path).Msg("Failed to discard uncommitted snapshot")
		}
		return nil, err
	}

	counts := silverData.RowCounts()
	for table, n := range counts {
		t.metrics.SetTableRows(table, n)
	}
	t.metrics.RecordSnapshot(stageName, silverSnap.Date)
	t.logger.Info().
		Str("snapshot_date", silverSnap.DateString()).
		Int64("title_basics", counts[imdb.TableBasics]).
		Int64("title_ratings", counts[imdb.TableRatings]).
		Int64("title_episodes", counts[imdb.TableEpisodes]).
		Msg("Silver snapshot committed")

	keep := opts.Keep
	if keep == 0 {
		keep = config.DefaultKeep
	}
	pruned, err := t.silver.Prune(keep)
	if err != nil {
		return nil, fmt.Errorf("failed to prune silver store: %w", err)
	}
	t.logger.LogPruned(t.silver.Dir(), pruned, keep)
	t.metrics.RecordPruned("silver", len(pruned))

	t.logger.LogStageComplete(stageName, opts.RunID, time.Since(start))
	return &Result{Snapshot: silverSnap, Manifest: m, Checks: checks, Pruned: pruned}, nil
}

// commit writes the tables and the manifest into the staged directory, then
// moves it into place
func (t *Transformer) commit(staged snapshot.Snapshot, data *imdb.Silver, runID string) (snapshot.Snapshot, manifest.Silver, error) {
	outputs, err := t.writer.WriteSilver(staged.Path, data)
	if err != nil {
		return snapshot.Snapshot{}, manifest.Silver{}, err
	}

	m := manifest.Silver{
		SnapshotDate: staged.DateString(),
		GeneratedAt:  manifest.Timestamp(time.Now()),
		RunID:        runID,
		Inputs: map[string]string{
			"basics":   imdb.BasicsFile,
			"ratings":  imdb.RatingsFile,
			"episodes": imdb.EpisodesFile,
		},
		Outputs:   outputs,
		RowCounts: data.RowCounts(),
	}
	if err := manifest.Write(staged.Path, m); err != nil {
		return snapshot.Snapshot{}, manifest.Silver{}, err
	}
	snap, err := t.silver.Commit(staged)
	if err != nil {
		return snapshot.Snapshot{}, manifest.Silver{}, err
	}
	return snap, m, nil
}
