package pipeline

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/leonardosantosdev/imdb-analytics/internal/analytics"
	"github.com/leonardosantosdev/imdb-analytics/internal/config"
	"github.com/leonardosantosdev/imdb-analytics/internal/imdb"
	"github.com/leonardosantosdev/imdb-analytics/internal/logging"
	"github.com/leonardosantosdev/imdb-analytics/internal/manifest"
	"github.com/leonardosantosdev/imdb-analytics/internal/transform"
)

var basicsTSV = []string{
	"tconst\ttitleType\tprimaryTitle\toriginalTitle\tisAdult\tstartYear\tendYear\truntimeMinutes\tgenres",
	"tt0000001\tmovie\tThe Long Night\tThe Long Night\t0\t1994\t\\N\t142\tDrama,Crime",
	"tt0000002\ttvSeries\tHarbor\tHarbor\t0\t2008\t2013\t47\tDrama",
	"tt0000003\ttvEpisode\tPilot\tPilot\t0\t2008\t\\N\t47\tDrama",
	"tt0000004\tshort\tBrief\tBrief\t0\t1901\t\\N\t2\tShort",
	"tt0000005\tmovie\tAdult Film\tAdult Film\t1\t2001\t\\N\t90\tDrama",
}

var episodesTSV = []string{
	"tconst\tparentTconst\tseasonNumber\tepisodeNumber",
	"tt0000003\ttt0000002\t1\t1",
}

func ratingsTSV(longNightVotes string) []string {
	return []string{
		"tconst\taverageRating\tnumVotes",
		"tt0000001\t8.9\t" + longNightVotes,
		"tt0000002\t8.1\t15000",
		"tt0000003\t8.4\t6000",
	}
}

// upstream serves gzip-compressed extracts whose content can change between runs
type upstream struct {
	mu     sync.Mutex
	bodies map[string][]byte
}

func (u *upstream) set(t *testing.T, name string, lines []string) {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(strings.Join(lines, "\n") + "\n")); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.bodies["/"+name] = buf.Bytes()
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	body, ok := u.bodies[r.URL.Path]
	u.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	_, _ = w.Write(body)
}

func newPipeline(t *testing.T) (*Pipeline, *upstream, *config.Config) {
	t.Helper()
	up := &upstream{bodies: map[string][]byte{}}
	up.set(t, imdb.BasicsFile, basicsTSV)
	up.set(t, imdb.RatingsFile, ratingsTSV("20000"))
	up.set(t, imdb.EpisodesFile, episodesTSV)
	srv := httptest.NewServer(up)
	t.Cleanup(srv.Close)

	root := t.TempDir()
	cfg := config.Default()
	cfg.Storage.BronzeDir = filepath.Join(root, "bronze")
	cfg.Storage.SilverDir = filepath.Join(root, "silver")
	cfg.Reports.OutputDir = filepath.Join(root, "reports")
	cfg.Ingest.BaseURL = srv.URL
	cfg.Ingest.Retry = config.RetryConfig{MaxAttempts: 1}

	return New(cfg, logging.NewNopLogger(), nil), up, cfg
}

type payload struct {
	SnapshotDate string           `json:"snapshotDate"`
	Rows         int              `json:"rows"`
	Data         []map[string]any `json:"data"`
	Note         string           `json:"note"`
}

func readReport(t *testing.T, dir, name string) payload {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name+".json"))
	if err != nil {
		t.Fatal(err)
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatal(err)
	}
	return p
}

func day(s string) *time.Time {
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return &d
}

func TestRunTwoWeeklySnapshots(t *testing.T) {
	p, up, cfg := newPipeline(t)
	ctx := context.Background()

	res, err := p.Run(ctx, Options{Date: day("2024-01-01")})
	if err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if got := res.Transform.Manifest.RowCounts; got[imdb.TableBasics] != 3 || got[imdb.TableRatings] != 3 || got[imdb.TableEpisodes] != 1 {
		t.Errorf("silver row counts = %v", got)
	}
	if len(res.Analytics.Reports) != len(analytics.Builders) {
		t.Errorf("published %d reports", len(res.Analytics.Reports))
	}

	rising := readReport(t, cfg.Reports.OutputDir, analytics.RisingTitlesName)
	if rising.Rows != 0 || len(rising.Data) != 0 || rising.Note != analytics.NoPreviousNote {
		t.Fatalf("first rising report = %+v", rising)
	}

	up.set(t, imdb.RatingsFile, ratingsTSV("20500"))
	if _, err := p.Run(ctx, Options{Date: day("2024-01-08")}); err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	rising = readReport(t, cfg.Reports.OutputDir, analytics.RisingTitlesName)
	if rising.SnapshotDate != "2024-01-08" || rising.Note != "" || rising.Rows != 2 {
		t.Fatalf("second rising report = %+v", rising)
	}
	first := rising.Data[0]
	if first["tconst"] != "tt0000001" || first["deltaVotes"] != 500.0 || first["pctChange"] != 2.5 {
		t.Errorf("first rising row = %v", first)
	}

	top := readReport(t, cfg.Reports.OutputDir, analytics.TopEpisodesName)
	if top.Rows != 1 || top.Data[0]["seriesTitle"] != "Harbor" || top.Data[0]["episodeTitle"] != "Pilot" {
		t.Errorf("top episodes = %+v", top)
	}

	for _, ext := range []string{".csv", ".json"} {
		if _, err := os.Stat(filepath.Join(cfg.Reports.OutputDir, analytics.TopTitlesAllTimeName+ext)); err != nil {
			t.Errorf("missing %s artifact: %v", ext, err)
		}
	}
}

func TestStagesResolveLatest(t *testing.T) {
	p, _, _ := newPipeline(t)
	ctx := context.Background()

	if _, err := p.Ingest(ctx, Options{Date: day("2024-01-01")}, "run-1"); err != nil {
		t.Fatal(err)
	}
	tr, err := p.Transform(ctx, Options{}, "run-1")
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if tr.Snapshot.DateString() != "2024-01-01" {
		t.Errorf("transformed %s", tr.Snapshot.DateString())
	}
	if !manifest.Exists(tr.Snapshot.Path) {
		t.Error("silver manifest missing")
	}

	an, err := p.Analytics(ctx, Options{}, "run-1")
	if err != nil {
		t.Fatalf("Analytics() error = %v", err)
	}
	if an.Snapshot.DateString() != "2024-01-01" || an.Previous != nil {
		t.Errorf("analytics resolved %s against %v", an.Snapshot.DateString(), an.Previous)
	}
}

func TestRunRejectsDuplicateRatings(t *testing.T) {
	p, up, _ := newPipeline(t)
	up.set(t, imdb.RatingsFile, append(ratingsTSV("20000"), "tt0000001\t7.0\t10"))

	_, err := p.Run(context.Background(), Options{Date: day("2024-01-01")})
	var verr *transform.ValidationError
	if !errors.As(err, &verr) || verr.Table != imdb.TableRatings || verr.Rule != transform.RuleUniqueTconst {
		t.Fatalf("Run() error = %v, want ratings uniqueness failure", err)
	}
	if snaps, err := p.Silver().List(); err != nil || len(snaps) != 0 {
		t.Errorf("silver snapshots = %v, %v", snaps, err)
	}
	if _, err := p.Bronze().Latest(); err != nil {
		t.Errorf("bronze snapshot should still be committed: %v", err)
	}
}

func TestRunStopsWhenIngestFails(t *testing.T) {
	p, up, _ := newPipeline(t)
	up.mu.Lock()
	delete(up.bodies, "/"+imdb.EpisodesFile)
	up.mu.Unlock()

	_, err := p.Run(context.Background(), Options{Date: day("2024-01-01")})
	if err == nil || !strings.HasPrefix(err.Error(), "ingest:") {
		t.Fatalf("Run() error = %v", err)
	}
	if _, err := p.Silver().Latest(); err == nil {
		t.Error("no silver snapshot should exist")
	}
}
