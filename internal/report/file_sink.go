package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileSink writes <dir>/<name>.csv and <dir>/<name>.json
type FileSink struct {
	dir string
}

func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

// Dir returns the output directory
func (s *FileSink) Dir() string {
	return s.dir
}

func (s *FileSink) Write(_ context.Context, r *Report, meta Meta) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	csvData, err := EncodeCSV(r)
	if err != nil {
		return err
	}
	jsonData, err := EncodeJSON(r, meta)
	if err != nil {
		return err
	}

	if err := writeFileAtomic(filepath.Join(s.dir, r.Name+".csv"), csvData); err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(s.dir, r.Name+".json"), jsonData)
}

// writeFileAtomic replaces path so readers never see a half-written artifact
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", filepath.Base(path), err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to publish %s: %w", filepath.Base(path), err)
	}
	return nil
}
