package engine

import (
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leonardosantosdev/imdb-analytics/internal/imdb"
)

func writeGzip(t *testing.T, path string, lines ...string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	zw := gzip.NewWriter(f)
	if _, err := zw.Write([]byte(strings.Join(lines, "\n") + "\n")); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestReadRaw(t *testing.T) {
	dir := t.TempDir()
	writeGzip(t, filepath.Join(dir, imdb.BasicsFile),
		"tconst\ttitleType\tprimaryTitle\toriginalTitle\tisAdult\tstartYear\tendYear\truntimeMinutes\tgenres",
		"tt0000001\tmovie\tAlpha\tAlpha\t0\t1994\t\\N\t142\tDrama",
		"tt0000002\ttvSeries\tBeta\tBeta\t0\t2008\t2013\t\\N\t\\N",
	)
	writeGzip(t, filepath.Join(dir, imdb.RatingsFile),
		"tconst\taverageRating\tnumVotes",
		"tt0000001\t9.3\t2800000",
	)
	writeGzip(t, filepath.Join(dir, imdb.EpisodesFile),
		"tconst\tparentTconst\tseasonNumber\tepisodeNumber",
		"tt0000003\ttt0000002\t1\t\\N",
	)

	ctx := context.Background()
	client, err := Open(ctx)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer client.Close()

	raw, err := client.ReadRaw(ctx, dir)
	if err != nil {
		t.Fatalf("ReadRaw() error = %v", err)
	}
	if len(raw.Basics) != 2 || len(raw.Ratings) != 1 || len(raw.Episodes) != 1 {
		t.Fatalf("unexpected row counts: %d %d %d", len(raw.Basics), len(raw.Ratings), len(raw.Episodes))
	}
	if raw.Basics[0].EndYear.Valid {
		t.Error("null token should read as an invalid value")
	}
	if raw.Basics[0].StartYear.V != "1994" {
		t.Errorf("StartYear = %q, want text 1994", raw.Basics[0].StartYear.V)
	}
	if raw.Basics[1].Genres.Valid {
		t.Error("null genres should read as an invalid value")
	}
	if raw.Episodes[0].EpisodeNumber.Valid || raw.Episodes[0].SeasonNumber.V != "1" {
		t.Errorf("unexpected episode row %+v", raw.Episodes[0])
	}
}

func TestReadRawMissingFile(t *testing.T) {
	ctx := context.Background()
	client, err := Open(ctx)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer client.Close()

	if _, err := client.ReadRaw(ctx, t.TempDir()); err == nil {
		t.Fatal("expected an error scanning an empty directory")
	}
}
