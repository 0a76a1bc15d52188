package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/leonardosantosdev/imdb-analytics/internal/config"
)

func TestNilAndDisabledAreNoOps(t *testing.T) {
	var nilMetrics *Metrics
	nilMetrics.RecordStage("transform", time.Second, nil)
	nilMetrics.SetTableRows("title_basics", 3)
	if err := nilMetrics.Push(context.Background()); err != nil {
		t.Fatalf("Push() on nil = %v", err)
	}

	disabled := New(config.MetricsConfig{Enabled: false})
	disabled.RecordValidationFailure("title_ratings", "unique_tconst")
	if disabled.IsEnabled() {
		t.Error("disabled metrics should report IsEnabled() == false")
	}
}

func TestHandlerExposesRecordedMetrics(t *testing.T) {
	m := New(config.MetricsConfig{Enabled: true, Job: "imdb_pipeline"})
	m.RecordStage("transform", 2*time.Second, nil)
	m.RecordStage("transform", time.Second, errors.New("boom"))
	m.SetTableRows("title_basics", 42)
	m.SetReportRows("top_titles_all_time", 200)
	m.RecordPruned("silver", 2)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	out := string(body)

	for _, want := range []string{
		`imdb_stage_runs_total{stage="transform",status="success"} 1`,
		`imdb_stage_runs_total{stage="transform",status="error"} 1`,
		`imdb_silver_table_rows{table="title_basics"} 42`,
		`imdb_report_rows{report="top_titles_all_time"} 200`,
		`imdb_snapshots_pruned_total{layer="silver"} 2`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestPushToGateway(t *testing.T) {
	var gotPath string
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	m := New(config.MetricsConfig{Enabled: true, PushgatewayURL: gateway.URL, Job: "imdb_pipeline"})
	m.SetReportRows("top_episodes", 10)
	if err := m.Push(context.Background()); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if gotPath != "/metrics/job/imdb_pipeline" {
		t.Errorf("push path = %q", gotPath)
	}
}
