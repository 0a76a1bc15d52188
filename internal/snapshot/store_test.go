package snapshot

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDate(s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

// seed creates snapshot directories; complete ones get a manifest
func seed(t *testing.T, dir string, complete []string, partial []string) {
	t.Helper()
	for _, d := range complete {
		path := filepath.Join(dir, DirName(mustDate(t, d)))
		if err := os.MkdirAll(path, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(path, ManifestFile), []byte("{}"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	for _, d := range partial {
		if err := os.MkdirAll(filepath.Join(dir, DirName(mustDate(t, d))), 0o755); err != nil {
			t.Fatal(err)
		}
	}
}

func dates(snaps []Snapshot) []string {
	out := make([]string, len(snaps))
	for i, s := range snaps {
		out[i] = s.DateString()
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestListSkipsIncompleteAndForeignEntries(t *testing.T) {
	dir := t.TempDir()
	seed(t, dir, []string{"2024-01-15", "2024-01-01", "2024-01-08"}, []string{"2024-01-22"})
	if err := os.MkdirAll(filepath.Join(dir, "scratch"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "snapshot_date=not-a-date"), 0o755); err != nil {
		t.Fatal(err)
	}

	snaps, err := NewStore(dir).List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []string{"2024-01-01", "2024-01-08", "2024-01-15"}
	if got := dates(snaps); !equal(got, want) {
		t.Errorf("List() = %v, want %v", got, want)
	}
}

func TestListMissingStoreIsEmpty(t *testing.T) {
	snaps, err := NewStore(filepath.Join(t.TempDir(), "nope")).List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(snaps) != 0 {
		t.Errorf("expected no snapshots, got %d", len(snaps))
	}
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	seed(t, dir, []string{"2024-01-01", "2024-01-08"}, []string{"2024-01-15"})
	store := NewStore(dir)

	latest, err := store.Resolve(nil)
	if err != nil {
		t.Fatalf("Resolve(nil) error = %v", err)
	}
	if latest.DateString() != "2024-01-08" {
		t.Errorf("latest = %s, want 2024-01-08", latest.DateString())
	}

	explicit := mustDate(t, "2024-01-01")
	snap, err := store.Resolve(&explicit)
	if err != nil {
		t.Fatalf("Resolve(2024-01-01) error = %v", err)
	}
	if snap.Path != filepath.Join(dir, "snapshot_date=2024-01-01") {
		t.Errorf("unexpected path %s", snap.Path)
	}

	missing := mustDate(t, "2023-12-25")
	if _, err := store.Resolve(&missing); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("Resolve(missing) error = %v, want ErrSnapshotNotFound", err)
	}

	incomplete := mustDate(t, "2024-01-15")
	if _, err := store.Resolve(&incomplete); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("Resolve(incomplete) error = %v, want ErrSnapshotNotFound", err)
	}
}

func TestResolveEmptyStore(t *testing.T) {
	if _, err := NewStore(t.TempDir()).Resolve(nil); !errors.Is(err, ErrNoSnapshots) {
		t.Errorf("error = %v, want ErrNoSnapshots", err)
	}
}

func TestPrevious(t *testing.T) {
	dir := t.TempDir()
	seed(t, dir, []string{"2024-01-01", "2024-01-08", "2024-01-15"}, []string{"2024-01-10"})
	store := NewStore(dir)

	tests := []struct {
		name   string
		date   string
		want   string
		wantOK bool
	}{
		{"latest has predecessor", "2024-01-15", "2024-01-08", true},
		{"skips incomplete", "2024-01-12", "2024-01-08", true},
		{"earliest has none", "2024-01-01", "", false},
		{"before everything", "2023-06-01", "", false},
		{"after everything", "2025-01-01", "2024-01-15", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, ok, err := store.Previous(mustDate(t, tt.date))
			if err != nil {
				t.Fatalf("Previous() error = %v", err)
			}
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && snap.DateString() != tt.want {
				t.Errorf("Previous() = %s, want %s", snap.DateString(), tt.want)
			}
		})
	}

	if _, ok, err := NewStore(t.TempDir()).Previous(mustDate(t, "2024-01-01")); err != nil || ok {
		t.Errorf("empty store Previous() = ok %v err %v", ok, err)
	}
}

func TestPrune(t *testing.T) {
	tests := []struct {
		name        string
		complete    []string
		partial     []string
		keep        int
		wantKept    []string
		wantRemoved int
	}{
		{
			name:        "removes oldest beyond keep",
			complete:    []string{"2024-01-01", "2024-01-08", "2024-01-15", "2024-01-22"},
			keep:        2,
			wantKept:    []string{"2024-01-15", "2024-01-22"},
			wantRemoved: 2,
		},
		{
			name:        "compliant store is a no-op",
			complete:    []string{"2024-01-01", "2024-01-08"},
			keep:        8,
			wantKept:    []string{"2024-01-01", "2024-01-08"},
			wantRemoved: 0,
		},
		{
			name:        "exactly keep is a no-op",
			complete:    []string{"2024-01-01", "2024-01-08"},
			keep:        2,
			wantKept:    []string{"2024-01-01", "2024-01-08"},
			wantRemoved: 0,
		},
		{
			name:        "abandoned directories older than cutoff go too",
			complete:    []string{"2024-01-01", "2024-01-08", "2024-01-15"},
			partial:     []string{"2024-01-03", "2024-01-20"},
			keep:        1,
			wantKept:    []string{"2024-01-15"},
			wantRemoved: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			seed(t, dir, tt.complete, tt.partial)
			store := NewStore(dir)

			removed, err := store.Prune(tt.keep)
			if err != nil {
				t.Fatalf("Prune() error = %v", err)
			}
			if len(removed) != tt.wantRemoved {
				t.Errorf("removed %d entries (%v), want %d", len(removed), removed, tt.wantRemoved)
			}
			snaps, _ := store.List()
			if got := dates(snaps); !equal(got, tt.wantKept) {
				t.Errorf("kept %v, want %v", got, tt.wantKept)
			}
			if len(snaps) > tt.keep {
				t.Errorf("store holds %d snapshots, keep is %d", len(snaps), tt.keep)
			}
		})
	}
}

func TestPruneKeepsNewerAbandonedDirectory(t *testing.T) {
	dir := t.TempDir()
	seed(t, dir, []string{"2024-01-01", "2024-01-08"}, []string{"2024-01-20"})

	if _, err := NewStore(dir).Prune(1); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "snapshot_date=2024-01-20")); err != nil {
		t.Errorf("in-flight directory should survive pruning: %v", err)
	}
}

func TestPruneRejectsNonPositiveKeep(t *testing.T) {
	if _, err := NewStore(t.TempDir()).Prune(0); err == nil {
		t.Fatal("expected error for keep=0")
	}
}

func TestCreateStagesOutsideTheStore(t *testing.T) {
	dir := t.TempDir()
	seed(t, dir, []string{"2024-01-01"}, nil)
	store := NewStore(dir)

	if _, err := store.Create(mustDate(t, "2024-01-01"), false); !errors.Is(err, ErrSnapshotExists) {
		t.Errorf("Create(committed) error = %v, want ErrSnapshotExists", err)
	}

	staged, err := store.Create(mustDate(t, "2024-01-08"), false)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if filepath.Dir(staged.Path) != dir || staged.Path == store.Path(staged.Date) {
		t.Errorf("staged path = %s", staged.Path)
	}
	if err := os.WriteFile(staged.ManifestPath(), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	// a staged snapshot is invisible even with a manifest
	snaps, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if got := dates(snaps); len(got) != 1 || got[0] != "2024-01-01" {
		t.Errorf("List() = %v, want only the committed snapshot", got)
	}
}

func TestCommit(t *testing.T) {
	dir := t.TempDir()
	seed(t, dir, []string{"2024-01-01"}, []string{"2024-01-08"})
	store := NewStore(dir)

	stage := func(date string, force bool, marker string) Snapshot {
		t.Helper()
		staged, err := store.Create(mustDate(t, date), force)
		if err != nil {
			t.Fatalf("Create(%s) error = %v", date, err)
		}
		if err := os.WriteFile(staged.File(marker), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(staged.ManifestPath(), []byte("{}"), 0o644); err != nil {
			t.Fatal(err)
		}
		return staged
	}

	tests := []struct {
		name   string
		date   string
		force  bool
		marker string
	}{
		{"replaces abandoned directory", "2024-01-08", false, "fresh.parquet"},
		{"forced replace of committed snapshot", "2024-01-01", true, "rebuilt.parquet"},
		{"new date", "2024-01-15", false, "new.parquet"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := store.Commit(stage(tt.date, tt.force, tt.marker))
			if err != nil {
				t.Fatalf("Commit() error = %v", err)
			}
			if snap.Path != store.Path(mustDate(t, tt.date)) {
				t.Errorf("committed path = %s", snap.Path)
			}
			if _, err := os.Stat(snap.File(tt.marker)); err != nil {
				t.Errorf("committed snapshot misses staged file: %v", err)
			}
			entries, err := os.ReadDir(snap.Path)
			if err != nil {
				t.Fatal(err)
			}
			if len(entries) != 2 {
				t.Errorf("committed snapshot holds %d entries, want 2", len(entries))
			}
		})
	}

	leftovers, err := filepath.Glob(filepath.Join(dir, ".*"))
	if err != nil {
		t.Fatal(err)
	}
	if len(leftovers) != 0 {
		t.Errorf("staging leftovers after commit: %v", leftovers)
	}

	unstaged := Snapshot{Date: mustDate(t, "2024-01-01"), Path: store.Path(mustDate(t, "2024-01-01"))}
	if _, err := store.Commit(unstaged); err == nil {
		t.Error("Commit of a committed path should fail")
	}
}

func TestCommitRequiresManifest(t *testing.T) {
	store := NewStore(t.TempDir())
	staged, err := store.Create(mustDate(t, "2024-01-01"), false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Commit(staged); err == nil {
		t.Fatal("Commit() without manifest should fail")
	}
	if _, err := store.Latest(); !errors.Is(err, ErrNoSnapshots) {
		t.Errorf("Latest() error = %v, want ErrNoSnapshots", err)
	}
}

func TestDiscardKeepsCommittedSnapshot(t *testing.T) {
	dir := t.TempDir()
	seed(t, dir, []string{"2024-01-01"}, nil)
	store := NewStore(dir)

	staged, err := store.Create(mustDate(t, "2024-01-01"), true)
	if err != nil {
		t.Fatalf("Create(force) error = %v", err)
	}
	if err := os.WriteFile(staged.ManifestPath(), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := store.Discard(staged); err != nil {
		t.Fatalf("Discard() error = %v", err)
	}
	if _, err := os.Stat(staged.Path); !os.IsNotExist(err) {
		t.Error("Discard should remove the staged directory")
	}
	date := mustDate(t, "2024-01-01")
	if _, err := store.Resolve(&date); err != nil {
		t.Errorf("committed snapshot lost after discarding a forced re-run: %v", err)
	}

	committed := store.Path(mustDate(t, "2024-01-01"))
	if err := store.Discard(Snapshot{Date: mustDate(t, "2024-01-01"), Path: committed}); err != nil {
		t.Fatal(err)
	}
	if !isComplete(committed) {
		t.Error("Discard must not remove a committed snapshot")
	}
}

func TestPruneRemovesStaleStaging(t *testing.T) {
	dir := t.TempDir()
	seed(t, dir, []string{"2024-01-08", "2024-01-15"}, nil)
	stale := filepath.Join(dir, ".snapshot_date=2024-01-01.tmp-123")
	current := filepath.Join(dir, ".snapshot_date=2024-01-15.tmp-456")
	for _, p := range []string{stale, current} {
		if err := os.MkdirAll(p, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := NewStore(dir).Prune(1); err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("staging directory older than the kept snapshots should be removed")
	}
	if _, err := os.Stat(current); err != nil {
		t.Errorf("staging directory for a kept date should stay: %v", err)
	}
}
