// Package engine provides the per-run analytical query context. A Client is
// opened at the start of a stage, passed to everything that scans snapshot
// files, and closed when the stage ends; nothing is shared across runs.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/leonardosantosdev/imdb-analytics/internal/imdb"
)

const rawCSVOptions = "delim='\t', header=true, nullstr='\\N', all_varchar=true"

// Client wraps an in-memory DuckDB database scoped to one run
type Client struct {
	db *sql.DB
}

// Open creates a fresh in-memory DuckDB instance
func Open(ctx context.Context) (*Client, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}
	// in-memory databases are per connection
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to duckdb: %w", err)
	}
	return &Client{db: db}, nil
}

// Close releases the database
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// ReadRaw scans the three tab-separated extracts of a bronze snapshot directory.
// Every column is read as text; the extract's null token becomes an invalid value.
func (c *Client) ReadRaw(ctx context.Context, dir string) (*imdb.RawTables, error) {
	basics, err := c.readBasics(ctx, filepath.Join(dir, imdb.BasicsFile))
	if err != nil {
		return nil, err
	}
	ratings, err := c.readRawRatings(ctx, filepath.Join(dir, imdb.RatingsFile))
	if err != nil {
		return nil, err
	}
	episodes, err := c.readRawEpisodes(ctx, filepath.Join(dir, imdb.EpisodesFile))
	if err != nil {
		return nil, err
	}
	return &imdb.RawTables{Basics: basics, Ratings: ratings, Episodes: episodes}, nil
}

func (c *Client) readBasics(ctx context.Context, path string) ([]imdb.RawBasics, error) {
	query := `
		SELECT tconst, titleType, primaryTitle, originalTitle, isAdult,
		       startYear, endYear, runtimeMinutes, genres
		FROM read_csv(?, ` + rawCSVOptions + `)`

	rows, err := c.db.QueryContext(ctx, query, path)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", filepath.Base(path), err)
	}
	defer rows.Close()

	var out []imdb.RawBasics
	for rows.Next() {
		var r imdb.RawBasics
		if err := rows.Scan(&r.Tconst, &r.TitleType, &r.PrimaryTitle, &r.OriginalTitle, &r.IsAdult,
			&r.StartYear, &r.EndYear, &r.RuntimeMinutes, &r.Genres); err != nil {
			return nil, fmt.Errorf("failed to read %s row: %w", filepath.Base(path), err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (c *Client) readRawRatings(ctx context.Context, path string) ([]imdb.RawRating, error) {
	query := `SELECT tconst, averageRating, numVotes FROM read_csv(?, ` + rawCSVOptions + `)`

	rows, err := c.db.QueryContext(ctx, query, path)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", filepath.Base(path), err)
	}
	defer rows.Close()

	var out []imdb.RawRating
	for rows.Next() {
		var r imdb.RawRating
		if err := rows.Scan(&r.Tconst, &r.AverageRating, &r.NumVotes); err != nil {
			return nil, fmt.Errorf("failed to read %s row: %w", filepath.Base(path), err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (c *Client) readRawEpisodes(ctx context.Context, path string) ([]imdb.RawEpisode, error) {
	query := `SELECT tconst, parentTconst, seasonNumber, episodeNumber FROM read_csv(?, ` + rawCSVOptions + `)`

	rows, err := c.db.QueryContext(ctx, query, path)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", filepath.Base(path), err)
	}
	defer rows.Close()

	var out []imdb.RawEpisode
	for rows.Next() {
		var r imdb.RawEpisode
		if err := rows.Scan(&r.Tconst, &r.ParentTconst, &r.SeasonNumber, &r.EpisodeNumber); err != nil {
			return nil, fmt.Errorf("failed to read %s row: %w", filepath.Base(path), err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
