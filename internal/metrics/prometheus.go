// Package metrics provides Prometheus metrics for pipeline runs.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/leonardosantosdev/imdb-analytics/internal/config"
)

// Metrics holds all pipeline metrics. A nil *Metrics records nothing.
type Metrics struct {
	// Counters
	StageRuns          *prometheus.CounterVec
	ValidationFailures *prometheus.CounterVec
	SnapshotsPruned    *prometheus.CounterVec
	BytesDownloaded    *prometheus.CounterVec
	DownloadRetries    *prometheus.CounterVec

	// Gauges
	TableRows    *prometheus.GaugeVec
	ReportRows   *prometheus.GaugeVec
	LastSnapshot *prometheus.GaugeVec

	// Histograms
	StageDuration *prometheus.HistogramVec

	registry *prometheus.Registry
	enabled  bool
	pushURL  string
	job      string
}

// New creates a metrics instance. When disabled every recorder is a no-op.
func New(cfg config.MetricsConfig) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		enabled:  cfg.Enabled,
		pushURL:  cfg.PushgatewayURL,
		job:      cfg.Job,
	}
	if !cfg.Enabled {
		return m
	}

	m.StageRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imdb",
			Name:      "stage_runs_total",
			Help:      "Stage invocations by outcome",
		},
		[]string{"stage", "status"}, // "success", "error"
	)

	m.ValidationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imdb",
			Name:      "validation_failures_total",
			Help:      "Validation gate failures by table and rule",
		},
		[]string{"table", "rule"},
	)

	m.SnapshotsPruned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imdb",
			Name:      "snapshots_pruned_total",
			Help:      "Snapshot directories removed by retention",
		},
		[]string{"layer"},
	)

	m.BytesDownloaded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imdb",
			Name:      "bytes_downloaded_total",
			Help:      "Raw extract bytes written to bronze",
		},
		[]string{"dataset"},
	)

	m.DownloadRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imdb",
			Name:      "download_retries_total",
			Help:      "Download attempts retried after a transient failure",
		},
		[]string{"dataset"},
	)

	m.TableRows = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "imdb",
			Name:      "silver_table_rows",
			Help:      "Rows in the last written silver table",
		},
		[]string{"table"},
	)

	m.ReportRows = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "imdb",
			Name:      "report_rows",
			Help:      "Rows in the last generated report",
		},
		[]string{"report"},
	)

	m.LastSnapshot = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "imdb",
			Name:      "last_snapshot_timestamp_seconds",
			Help:      "Date of the last snapshot processed per stage as unix time",
		},
		[]string{"stage"},
	)

	m.StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "imdb",
			Name:      "stage_duration_seconds",
			Help:      "Wall time of a stage invocation",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"stage"},
	)

	m.registry.MustRegister(
		m.StageRuns,
		m.ValidationFailures,
		m.SnapshotsPruned,
		m.BytesDownloaded,
		m.DownloadRetries,
		m.TableRows,
		m.ReportRows,
		m.LastSnapshot,
		m.StageDuration,
	)

	m.registry.MustRegister(prometheus.NewGoCollector())
	m.registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	return m
}

// Handler returns an HTTP handler for metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// IsEnabled returns true if metrics are enabled.
func (m *Metrics) IsEnabled() bool {
	return m != nil && m.enabled
}

// Push sends the registry to the configured Pushgateway. Batch runs exit
// before any scrape, so this is how their metrics leave the process.
func (m *Metrics) Push(ctx context.Context) error {
	if !m.IsEnabled() || m.pushURL == "" {
		return nil
	}
	if err := push.New(m.pushURL, m.job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}

// RecordStage records the outcome and duration of a stage invocation.
func (m *Metrics) RecordStage(stage string, duration time.Duration, err error) {
	if !m.IsEnabled() {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.StageRuns.WithLabelValues(stage, status).Inc()
	m.StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordSnapshot records the snapshot date a stage produced or consumed.
func (m *Metrics) RecordSnapshot(stage string, date time.Time) {
	if m.IsEnabled() {
		m.LastSnapshot.WithLabelValues(stage).Set(float64(date.Unix()))
	}
}

// RecordValidationFailure increments the validation failure counter.
func (m *Metrics) RecordValidationFailure(table, rule string) {
	if m.IsEnabled() {
		m.ValidationFailures.WithLabelValues(table, rule).Inc()
	}
}

// RecordPruned adds removed snapshot directories for a layer.
func (m *Metrics) RecordPruned(layer string, count int) {
	if m.IsEnabled() {
		m.SnapshotsPruned.WithLabelValues(layer).Add(float64(count))
	}
}

// RecordDownload adds downloaded bytes for a dataset.
func (m *Metrics) RecordDownload(dataset string, bytes int64) {
	if m.IsEnabled() {
		m.BytesDownloaded.WithLabelValues(dataset).Add(float64(bytes))
	}
}

// RecordRetry increments the retry counter for a dataset.
func (m *Metrics) RecordRetry(dataset string) {
	if m.IsEnabled() {
		m.DownloadRetries.WithLabelValues(dataset).Inc()
	}
}

// SetTableRows sets the row gauge for a silver table.
func (m *Metrics) SetTableRows(table string, rows int64) {
	if m.IsEnabled() {
		m.TableRows.WithLabelValues(table).Set(float64(rows))
	}
}

// SetReportRows sets the row gauge for a report.
func (m *Metrics) SetReportRows(report string, rows int) {
	if m.IsEnabled() {
		m.ReportRows.WithLabelValues(report).Set(float64(rows))
	}
}
