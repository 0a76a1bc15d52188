package report

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/leonardosantosdev/imdb-analytics/internal/config"
)

var meta = Meta{GeneratedAt: "2024-01-08T06:00:00Z", SnapshotDate: "2024-01-08"}

func sample() *Report {
	r := New("top_titles_all_time", "tconst", "primaryTitle", "startYear", "averageRating", "numVotes")
	r.Append("tt0111161", "The Shawshank Redemption", int32(1994), 9.3, int64(2800000))
	r.Append("tt0000002", "Say \"Hi\", World", nil, 8.0, int64(60000))
	return r
}

func TestEncodeCSV(t *testing.T) {
	data, err := EncodeCSV(sample())
	if err != nil {
		t.Fatal(err)
	}
	want := "tconst,primaryTitle,startYear,averageRating,numVotes\n" +
		"tt0111161,The Shawshank Redemption,1994,9.3,2800000\n" +
		"tt0000002,\"Say \"\"Hi\"\", World\",,8,60000\n"
	if string(data) != want {
		t.Errorf("EncodeCSV() =\n%s\nwant\n%s", data, want)
	}
}

func TestEncodeJSONKeepsColumnOrder(t *testing.T) {
	data, err := EncodeJSON(sample(), meta)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	order := []string{`"tconst"`, `"primaryTitle"`, `"startYear"`, `"averageRating"`, `"numVotes"`}
	last := -1
	for _, key := range order {
		idx := strings.Index(text, key)
		if idx < last {
			t.Fatalf("key %s out of order in %s", key, text)
		}
		last = idx
	}
	if strings.Contains(text, `"note"`) {
		t.Error("note should be omitted when empty")
	}

	var decoded struct {
		GeneratedAt  string           `json:"generatedAt"`
		SnapshotDate string           `json:"snapshotDate"`
		Rows         int              `json:"rows"`
		Data         []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Rows != 2 || decoded.SnapshotDate != "2024-01-08" {
		t.Errorf("unexpected payload header %+v", decoded)
	}
	if decoded.Data[1]["startYear"] != nil {
		t.Errorf("null cell decoded as %v", decoded.Data[1]["startYear"])
	}
}

func TestEmptyReportWithNote(t *testing.T) {
	r := New("rising_titles_votes_week_over_week", "tconst", "deltaVotes")
	r.Note = "Previous snapshot not found. Run at least two weekly snapshots."

	data, err := EncodeJSON(r, meta)
	if err != nil {
		t.Fatal(err)
	}
	var p struct {
		Rows int               `json:"rows"`
		Data []json.RawMessage `json:"data"`
		Note *string           `json:"note"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatal(err)
	}
	if p.Rows != 0 || p.Data == nil || len(p.Data) != 0 {
		t.Errorf("want an explicit empty data array, got rows=%d data=%v", p.Rows, p.Data)
	}
	if p.Note == nil || *p.Note == "" {
		t.Error("note should be present")
	}
}

func TestAppendPanicsOnWidthMismatch(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	New("x", "a", "b").Append("only one")
}

func TestFileSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dashboard", "data")
	sink := NewFileSink(dir)
	if err := sink.Write(context.Background(), sample(), meta); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	for _, name := range []string{"top_titles_all_time.csv", "top_titles_all_time.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s not written: %v", name, err)
		}
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Errorf("unexpected files left behind: %d entries", len(entries))
	}
}

type recordingSink struct {
	names []string
	err   error
}

func (s *recordingSink) Write(_ context.Context, r *Report, _ Meta) error {
	s.names = append(s.names, r.Name)
	return s.err
}

func TestMultiSinkStopsAtFirstError(t *testing.T) {
	boom := errors.New("boom")
	first, failing, never := &recordingSink{}, &recordingSink{err: boom}, &recordingSink{}

	err := MultiSink{first, failing, never}.Write(context.Background(), sample(), meta)
	if !errors.Is(err, boom) {
		t.Fatalf("Write() error = %v, want boom", err)
	}
	if len(first.names) != 1 || len(failing.names) != 1 || len(never.names) != 0 {
		t.Errorf("unexpected fan-out: %d %d %d", len(first.names), len(failing.names), len(never.names))
	}
}

func TestPostgresSinkRejectsUnsafeTable(t *testing.T) {
	if _, err := NewPostgresSinkWithDB(context.Background(), nil, "reports; DROP TABLE x"); err == nil {
		t.Fatal("expected invalid table name error")
	}
}

// fakeS3 accepts bucket HEAD and object PUT requests
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodHead:
		w.WriteHeader(http.StatusOK)
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.objects[r.URL.Path] = string(body)
		f.mu.Unlock()
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func TestObjectSink(t *testing.T) {
	backend := &fakeS3{objects: map[string]string{}}
	srv := httptest.NewServer(backend)
	defer srv.Close()

	ctx := context.Background()
	sink, err := NewObjectSink(ctx, config.ObjectStoreConfig{
		Endpoint:        srv.URL,
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		Region:          "us-east-1",
		Bucket:          "dashboard",
		Prefix:          "reports/latest",
	})
	if err != nil {
		t.Fatalf("NewObjectSink() error = %v", err)
	}
	if err := sink.Write(ctx, sample(), meta); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()
	csvBody, ok := backend.objects["/dashboard/reports/latest/top_titles_all_time.csv"]
	if !ok {
		t.Fatalf("csv object missing, have %v", backend.objects)
	}
	if !strings.Contains(csvBody, "tconst,primaryTitle") {
		t.Errorf("unexpected csv body %q", csvBody)
	}
	if _, ok := backend.objects["/dashboard/reports/latest/top_titles_all_time.json"]; !ok {
		t.Error("json object missing")
	}
}
