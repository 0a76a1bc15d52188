// Package snapshot implements the time-partitioned snapshot directory convention
// shared by the bronze and silver layers.
//
// A store is a directory holding one sub-directory per snapshot, named
// snapshot_date=YYYY-MM-DD. The zero-padded ISO date sorts lexicographically in
// chronological order. A snapshot is complete once its manifest file exists;
// directories without a manifest are abandoned writes and are never returned by
// List, Latest, Resolve or Previous. New snapshots are written into a hidden
// staging directory and renamed into place by Commit.
package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	// DateLayout is the ISO date layout used for snapshot identity
	DateLayout = "2006-01-02"

	// ManifestFile marks a snapshot directory as fully written
	ManifestFile = "manifest.json"

	dirPrefix  = "snapshot_date="
	stagingTag = ".tmp-"
)

var (
	// ErrSnapshotNotFound is returned when an explicit date has no complete snapshot
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrNoSnapshots is returned when latest resolution finds an empty store
	ErrNoSnapshots = errors.New("no snapshots found")

	// ErrSnapshotExists is returned when creating a snapshot whose date is already committed
	ErrSnapshotExists = errors.New("snapshot already exists")
)

// Snapshot identifies one dated generation inside a store
type Snapshot struct {
	Date time.Time
	Path string
}

// DateString returns the snapshot identity as YYYY-MM-DD
func (s Snapshot) DateString() string {
	return s.Date.Format(DateLayout)
}

// ManifestPath returns the path of the snapshot's manifest
func (s Snapshot) ManifestPath() string {
	return filepath.Join(s.Path, ManifestFile)
}

// File returns the path of a named artifact inside the snapshot
func (s Snapshot) File(name string) string {
	return filepath.Join(s.Path, name)
}

// Store is one snapshot namespace (bronze or silver)
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir. The directory is created lazily.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the store root
func (s *Store) Dir() string {
	return s.dir
}

// ParseDate parses a YYYY-MM-DD snapshot date
func ParseDate(value string) (time.Time, error) {
	d, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid snapshot date %q: %w", value, err)
	}
	return d, nil
}

// DirName returns the directory name for a snapshot date
func DirName(date time.Time) string {
	return dirPrefix + date.Format(DateLayout)
}

// Path returns where the snapshot for date lives, whether or not it exists
func (s *Store) Path(date time.Time) string {
	return filepath.Join(s.dir, DirName(date))
}

// List returns complete snapshots ordered by date ascending
func (s *Store) List() ([]Snapshot, error) {
	all, err := s.scan()
	if err != nil {
		return nil, err
	}
	complete := all[:0]
	for _, e := range all {
		if e.complete {
			complete = append(complete, e)
		}
	}
	out := make([]Snapshot, len(complete))
	for i, e := range complete {
		out[i] = e.Snapshot
	}
	return out, nil
}

// Latest returns the most recent complete snapshot
func (s *Store) Latest() (Snapshot, error) {
	snaps, err := s.List()
	if err != nil {
		return Snapshot{}, err
	}
	if len(snaps) == 0 {
		return Snapshot{}, fmt.Errorf("%w in %s", ErrNoSnapshots, s.dir)
	}
	return snaps[len(snaps)-1], nil
}

// Resolve returns the snapshot for an explicit date, or the latest when date is nil
func (s *Store) Resolve(date *time.Time) (Snapshot, error) {
	if date == nil {
		return s.Latest()
	}
	snap := Snapshot{Date: *date, Path: s.Path(*date)}
	if !isComplete(snap.Path) {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrSnapshotNotFound, snap.Path)
	}
	return snap, nil
}

// Previous returns the complete snapshot with the greatest date strictly before date.
// ok is false when none exists.
func (s *Store) Previous(date time.Time) (snap Snapshot, ok bool, err error) {
	snaps, err := s.List()
	if err != nil {
		return Snapshot{}, false, err
	}
	for i := len(snaps) - 1; i >= 0; i-- {
		if snaps[i].Date.Before(date) {
			return snaps[i], true, nil
		}
	}
	return Snapshot{}, false, nil
}

// Create stages a new snapshot in a hidden sibling directory. Nothing in the
// store changes until Commit, so a failed run leaves the committed snapshot for
// the same date in place. A committed snapshot is only replaced when force is set.
func (s *Store) Create(date time.Time, force bool) (Snapshot, error) {
	final := s.Path(date)
	if isComplete(final) && !force {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrSnapshotExists, final)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return Snapshot{}, fmt.Errorf("failed to create store directory: %w", err)
	}
	staging, err := os.MkdirTemp(s.dir, "."+DirName(date)+stagingTag)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to create staging directory: %w", err)
	}
	return Snapshot{Date: date, Path: staging}, nil
}

// Commit moves a staged snapshot into place and returns it at its final path.
// The staged manifest must already be written. A snapshot being replaced is
// moved aside first and removed only once the new one is in place.
func (s *Store) Commit(staged Snapshot) (Snapshot, error) {
	if !isStaging(staged.Path) {
		return Snapshot{}, fmt.Errorf("not a staged snapshot: %s", staged.Path)
	}
	if !isComplete(staged.Path) {
		return Snapshot{}, fmt.Errorf("staged snapshot %s has no manifest", staged.Path)
	}

	final := Snapshot{Date: staged.Date, Path: s.Path(staged.Date)}
	var previous string
	if _, err := os.Stat(final.Path); err == nil {
		previous = staged.Path + ".old"
		if err := os.Rename(final.Path, previous); err != nil {
			return Snapshot{}, fmt.Errorf("failed to move aside %s: %w", final.Path, err)
		}
	}

	if err := os.Rename(staged.Path, final.Path); err != nil {
		if previous != "" {
			_ = os.Rename(previous, final.Path)
		}
		return Snapshot{}, fmt.Errorf("failed to commit snapshot %s: %w", final.DateString(), err)
	}
	if previous != "" {
		_ = os.RemoveAll(previous)
	}
	return final, nil
}

// Discard removes a staged snapshot after a failed write. Committed snapshots
// are left alone.
func (s *Store) Discard(snap Snapshot) error {
	if !isStaging(snap.Path) && isComplete(snap.Path) {
		return nil
	}
	return os.RemoveAll(snap.Path)
}

// Prune keeps the keep most recent complete snapshots and removes the rest,
// along with abandoned directories older than the oldest kept snapshot.
// Removal is best-effort: failures on individual entries are skipped.
func (s *Store) Prune(keep int) ([]string, error) {
	if keep < 1 {
		return nil, fmt.Errorf("keep must be at least 1, got %d", keep)
	}
	all, err := s.scan()
	if err != nil {
		return nil, err
	}

	var complete []entry
	for _, e := range all {
		if e.complete {
			complete = append(complete, e)
		}
	}
	if len(complete) <= keep {
		return nil, nil
	}
	cutoff := complete[len(complete)-keep].Date

	var removed []string
	for _, e := range all {
		if !e.Date.Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(e.Path); err != nil {
			continue
		}
		removed = append(removed, e.Path)
	}
	s.removeStaleStaging(cutoff)
	return removed, nil
}

// removeStaleStaging clears staging directories left by crashed runs for dates
// older than cutoff
func (s *Store) removeStaleStaging(cutoff time.Time) {
	items, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	prefix := "." + dirPrefix
	for _, item := range items {
		name := item.Name()
		if !item.IsDir() || !strings.HasPrefix(name, prefix) || len(name) < len(prefix)+len(DateLayout) {
			continue
		}
		date, err := time.Parse(DateLayout, name[len(prefix):len(prefix)+len(DateLayout)])
		if err != nil || !date.Before(cutoff) {
			continue
		}
		_ = os.RemoveAll(filepath.Join(s.dir, name))
	}
}

type entry struct {
	Snapshot
	complete bool
}

// scan lists every snapshot-named directory, complete or not, sorted by date
func (s *Store) scan() ([]entry, error) {
	items, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list snapshots in %s: %w", s.dir, err)
	}

	var out []entry
	for _, item := range items {
		if !item.IsDir() || !strings.HasPrefix(item.Name(), dirPrefix) {
			continue
		}
		date, err := time.Parse(DateLayout, strings.TrimPrefix(item.Name(), dirPrefix))
		if err != nil {
			continue
		}
		path := filepath.Join(s.dir, item.Name())
		out = append(out, entry{
			Snapshot: Snapshot{Date: date, Path: path},
			complete: isComplete(path),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out, nil
}

func isStaging(path string) bool {
	name := filepath.Base(path)
	return strings.HasPrefix(name, "."+dirPrefix) && strings.Contains(name, stagingTag)
}

func isComplete(path string) bool {
	info, err := os.Stat(filepath.Join(path, ManifestFile))
	return err == nil && info.Mode().IsRegular()
}
