package engine

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/leonardosantosdev/imdb-analytics/internal/imdb"
)

// ReadSilver loads the three normalized tables of a silver snapshot directory
func (c *Client) ReadSilver(ctx context.Context, dir string) (*imdb.Silver, error) {
	basics, err := c.ReadTitles(ctx, dir)
	if err != nil {
		return nil, err
	}
	ratings, err := c.ReadRatings(ctx, dir)
	if err != nil {
		return nil, err
	}
	episodes, err := c.ReadEpisodes(ctx, dir)
	if err != nil {
		return nil, err
	}
	return &imdb.Silver{Basics: basics, Ratings: ratings, Episodes: episodes}, nil
}

// ReadTitles loads title_basics from a silver snapshot directory
func (c *Client) ReadTitles(ctx context.Context, dir string) ([]imdb.Title, error) {
	path := filepath.Join(dir, imdb.ParquetName(imdb.TableBasics))
	rows, err := c.db.QueryContext(ctx, `
		SELECT tconst, titleType, primaryTitle, originalTitle, isAdult,
		       startYear, endYear, runtimeMinutes, genres
		FROM read_parquet(?)`, path)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", imdb.TableBasics, err)
	}
	defer rows.Close()

	var out []imdb.Title
	for rows.Next() {
		var t imdb.Title
		if err := rows.Scan(&t.Tconst, &t.TitleType, &t.PrimaryTitle, &t.OriginalTitle, &t.IsAdult,
			&t.StartYear, &t.EndYear, &t.RuntimeMinutes, &t.Genres); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", imdb.TableBasics, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ReadRatings loads title_ratings from a silver snapshot directory. The
// analytics stage also calls it on the preceding snapshot for vote deltas.
func (c *Client) ReadRatings(ctx context.Context, dir string) ([]imdb.Rating, error) {
	path := filepath.Join(dir, imdb.ParquetName(imdb.TableRatings))
	rows, err := c.db.QueryContext(ctx, `SELECT tconst, averageRating, numVotes FROM read_parquet(?)`, path)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", imdb.TableRatings, err)
	}
	defer rows.Close()

	var out []imdb.Rating
	for rows.Next() {
		var r imdb.Rating
		if err := rows.Scan(&r.Tconst, &r.AverageRating, &r.NumVotes); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", imdb.TableRatings, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ReadEpisodes loads title_episodes from a silver snapshot directory
func (c *Client) ReadEpisodes(ctx context.Context, dir string) ([]imdb.Episode, error) {
	path := filepath.Join(dir, imdb.ParquetName(imdb.TableEpisodes))
	rows, err := c.db.QueryContext(ctx, `
		SELECT tconst, parentTconst, seasonNumber, episodeNumber
		FROM read_parquet(?)`, path)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", imdb.TableEpisodes, err)
	}
	defer rows.Close()

	var out []imdb.Episode
	for rows.Next() {
		var e imdb.Episode
		if err := rows.Scan(&e.Tconst, &e.ParentTconst, &e.SeasonNumber, &e.EpisodeNumber); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", imdb.TableEpisodes, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
