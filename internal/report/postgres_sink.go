package report

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	_ "github.com/lib/pq"
)

var tableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresSink upserts report payloads into a dashboard table keyed by
// (name, snapshot_date).
type PostgresSink struct {
	db    *sql.DB
	table string
}

// NewPostgresSink connects to Postgres and ensures the report table exists.
func NewPostgresSink(ctx context.Context, dsn, table string) (*PostgresSink, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	sink, err := NewPostgresSinkWithDB(ctx, db, table)
	if err != nil {
		db.Close()
		return nil, err
	}
	return sink, nil
}

// NewPostgresSinkWithDB reuses an existing *sql.DB
func NewPostgresSinkWithDB(ctx context.Context, db *sql.DB, table string) (*PostgresSink, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid report table name %q", table)
	}
	s := &PostgresSink{db: db, table: table}
	if err := s.ensureTable(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresSink) ensureTable(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  name text NOT NULL,
  snapshot_date date NOT NULL,
  generated_at timestamptz NOT NULL,
  row_count integer NOT NULL,
  payload jsonb NOT NULL,
  PRIMARY KEY (name, snapshot_date)
)`, s.table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create %s: %w", s.table, err)
	}
	return nil
}

func (s *PostgresSink) Write(ctx context.Context, r *Report, meta Meta) error {
	payload, err := EncodeJSON(r, meta)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (name, snapshot_date, generated_at, row_count, payload)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (name, snapshot_date) DO UPDATE SET
  generated_at = EXCLUDED.generated_at,
  row_count = EXCLUDED.row_count,
  payload = EXCLUDED.payload`, s.table)

	if _, err := s.db.ExecContext(ctx, query,
		r.Name, meta.SnapshotDate, meta.GeneratedAt, r.Len(), string(payload)); err != nil {
		return fmt.Errorf("failed to upsert report %s: %w", r.Name, err)
	}
	return nil
}

// Close closes the database connection
func (s *PostgresSink) Close() error {
	return s.db.Close()
}
