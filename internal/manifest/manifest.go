// Package manifest records snapshot provenance. Writing the manifest is the
// commit point of a snapshot: it is written once, after every data artifact of
// the snapshot exists, and never modified afterwards.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileName is the manifest file inside every snapshot directory
const FileName = "manifest.json"

// Dataset describes one raw extract downloaded into a bronze snapshot
type Dataset struct {
	URL       string `json:"url"`
	Path      string `json:"path"`
	SizeBytes int64  `json:"sizeBytes"`
	SHA256    string `json:"sha256"`
}

// Bronze is the provenance record of a raw snapshot
type Bronze struct {
	SnapshotDate string    `json:"snapshotDate"`
	GeneratedAt  string    `json:"generatedAt"`
	RunID        string    `json:"runId,omitempty"`
	Datasets     []Dataset `json:"datasets"`
}

// Silver is the provenance record of a normalized snapshot
type Silver struct {
	SnapshotDate string            `json:"snapshotDate"`
	GeneratedAt  string            `json:"generatedAt"`
	RunID        string            `json:"runId,omitempty"`
	Inputs       map[string]string `json:"inputs"`
	Outputs      map[string]string `json:"outputs"`
	RowCounts    map[string]int64  `json:"rowCounts,omitempty"`
}

// Timestamp formats t the way manifests and reports carry generation times
func Timestamp(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

// Write stores payload as indented JSON in dir/manifest.json. The file appears
// atomically: it is written under a temporary name and renamed into place.
func Write(dir string, payload any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".manifest-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create manifest temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close manifest: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, FileName)); err != nil {
		return fmt.Errorf("failed to commit manifest: %w", err)
	}
	return nil
}

// Read decodes dir/manifest.json into out
func Read(dir string, out any) error {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return fmt.Errorf("failed to read manifest: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse manifest: %w", err)
	}
	return nil
}

// Exists reports whether dir holds a committed manifest
func Exists(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, FileName))
	return err == nil && info.Mode().IsRegular()
}
