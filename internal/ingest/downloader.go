// Package ingest downloads the raw extracts into bronze snapshots.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/leonardosantosdev/imdb-analytics/internal/config"
	"github.com/leonardosantosdev/imdb-analytics/internal/imdb"
	"github.com/leonardosantosdev/imdb-analytics/internal/logging"
	"github.com/leonardosantosdev/imdb-analytics/internal/manifest"
	"github.com/leonardosantosdev/imdb-analytics/internal/metrics"
	"github.com/leonardosantosdev/imdb-analytics/internal/resilience"
	"github.com/leonardosantosdev/imdb-analytics/internal/snapshot"
)

const stageName = "ingest"

// StatusError is returned for HTTP responses with status >= 400
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Transient reports whether the server may succeed on a later attempt
func (e *StatusError) Transient() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Options controls one ingest invocation
type Options struct {
	// Date names the bronze snapshot; nil uses the current UTC date
	Date *time.Time
	// Keep is the bronze retention count; zero uses the default
	Keep  int
	Force bool
	RunID string
}

// Result describes a committed bronze snapshot
type Result struct {
	Snapshot snapshot.Snapshot
	Manifest manifest.Bronze
	Pruned   []string
}

// Ingester fetches the raw extracts over HTTP
type Ingester struct {
	store   *snapshot.Store
	client  *http.Client
	baseURL string
	retry   *resilience.RetryManager
	logger  *logging.ComponentLogger
	metrics *metrics.Metrics
	now     func() time.Time
}

func New(store *snapshot.Store, cfg config.IngestConfig, logger *logging.ComponentLogger, m *metrics.Metrics) *Ingester {
	logger = logger.With(stageName)
	retry := resilience.NewRetryManager(resilience.PolicyFromConfig(cfg.Retry), logger)
	retry.OnRetry = func(dataset string, _ int, _ error) { m.RecordRetry(dataset) }

	return &Ingester{
		store:   store,
		client:  newHTTPClient(cfg.Timeout()),
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		retry:   retry,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// URL returns the download location of a raw extract
func (i *Ingester) URL(name string) string {
	return i.baseURL + "/" + name
}

// Run downloads every raw extract into a new bronze snapshot, commits its
// manifest and prunes old snapshots.
func (i *Ingester) Run(ctx context.Context, opts Options) (res *Result, err error) {
	start := i.now()
	defer func() { i.metrics.RecordStage(stageName, time.Since(start), err) }()

	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	date := today(i.now())
	if opts.Date != nil {
		date = *opts.Date
	}

	snap, err := i.store.Create(date, opts.Force)
	if err != nil {
		return nil, err
	}
	i.logger.LogStageStart(stageName, opts.RunID, snap.DateString())

	m := manifest.Bronze{SnapshotDate: snap.DateString(), RunID: opts.RunID}
	for _, name := range imdb.RawFiles {
		ds, err := i.fetch(ctx, name, snap.File(name))
		if err != nil {
			i.discard(snap)
			return nil, err
		}
		m.Datasets = append(m.Datasets, ds)
	}

	m.GeneratedAt = manifest.Timestamp(i.now())
	if err := manifest.Write(snap.Path, m); err != nil {
		i.discard(snap)
		return nil, err
	}
	staged := snap
	if snap, err = i.store.Commit(staged); err != nil {
		i.discard(staged)
		return nil, err
	}
	i.metrics.RecordSnapshot(stageName, snap.Date)
	i.logger.Info().Str("path", snap.Path).Msg("Bronze snapshot ready")

	keep := opts.Keep
	if keep == 0 {
		keep = config.DefaultKeep
	}
	pruned, err := i.store.Prune(keep)
	if err != nil {
		return nil, fmt.Errorf("failed to prune bronze store: %w", err)
	}
	i.logger.LogPruned(i.store.Dir(), pruned, keep)
	i.metrics.RecordPruned("bronze", len(pruned))

	i.logger.LogStageComplete(stageName, opts.RunID, time.Since(start))
	return &Result{Snapshot: snap, Manifest: m, Pruned: pruned}, nil
}

func (i *Ingester) fetch(ctx context.Context, name, dest string) (manifest.Dataset, error) {
	url := i.URL(name)
	i.logger.Info().Str("url", url).Msg("Downloading")

	ds, err := resilience.ExecuteWithResult(ctx, i.retry, name, func(ctx context.Context) (manifest.Dataset, error) {
		return i.download(ctx, url, dest)
	})
	if err != nil {
		return manifest.Dataset{}, fmt.Errorf("failed to download %s: %w", name, err)
	}
	i.metrics.RecordDownload(name, ds.SizeBytes)
	i.logger.Debug().
		Str("dataset", name).
		Int64("size_bytes", ds.SizeBytes).
		Str("sha256", ds.SHA256).
		Msg("Download complete")
	return ds, nil
}

// download streams url into dest, hashing the bytes as they are written.
// Each attempt truncates dest.
func (i *Ingester) download(ctx context.Context, url, dest string) (manifest.Dataset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return manifest.Dataset{}, err
	}
	resp, err := i.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return manifest.Dataset{}, ctx.Err()
		}
		return manifest.Dataset{}, resilience.Retryable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		serr := &StatusError{URL: url, StatusCode: resp.StatusCode}
		if serr.Transient() {
			return manifest.Dataset{}, resilience.Retryable(serr)
		}
		return manifest.Dataset{}, serr
	}

	f, err := os.Create(dest)
	if err != nil {
		return manifest.Dataset{}, err
	}
	h := sha256.New()
	n, copyErr := io.Copy(io.MultiWriter(f, h), resp.Body)
	closeErr := f.Close()
	if copyErr != nil {
		if ctx.Err() != nil {
			return manifest.Dataset{}, ctx.Err()
		}
		// a body cut short mid-stream is worth another attempt
		return manifest.Dataset{}, resilience.Retryable(copyErr)
	}
	if closeErr != nil {
		return manifest.Dataset{}, closeErr
	}

	return manifest.Dataset{
		URL:       url,
		Path:      filepath.Base(dest),
		SizeBytes: n,
		SHA256:    hex.EncodeToString(h.Sum(nil)),
	}, nil
}

func (i *Ingester) discard(snap snapshot.Snapshot) {
	if err := i.store.Discard(snap); err != nil && !errors.Is(err, os.ErrNotExist) {
		i.logger.Warn().Err(err).Str("path", snap.Path).Msg("Failed to discard uncommitted snapshot")
	}
}

// newHTTPClient bounds the wait for response headers. Bodies stream without a deadline.
func newHTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout
	return &http.Client{Transport: transport}
}

func today(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
