// Package imdb defines the typed raw and normalized IMDb tables that flow from
// the bronze layer through the silver layer into analytics.
package imdb

import (
	"database/sql"
	"strings"
)

// Raw extract file names inside a bronze snapshot
const (
	BasicsFile   = "title.basics.tsv.gz"
	RatingsFile  = "title.ratings.tsv.gz"
	EpisodesFile = "title.episode.tsv.gz"
)

// Normalized silver table names
const (
	TableBasics   = "title_basics"
	TableRatings  = "title_ratings"
	TableEpisodes = "title_episodes"
)

// Title types
const (
	TypeMovie        = "movie"
	TypeTVSeries     = "tvSeries"
	TypeTVMiniSeries = "tvMiniSeries"
	TypeTVEpisode    = "tvEpisode"
)

// TransformTitleTypes is the allow-list applied when building silver
var TransformTitleTypes = []string{TypeMovie, TypeTVSeries, TypeTVMiniSeries, TypeTVEpisode}

// DisplayTitleTypes is the allow-list applied by analytics
var DisplayTitleTypes = []string{TypeMovie, TypeTVSeries, TypeTVMiniSeries}

// RawFiles lists the bronze extracts in a fixed order
var RawFiles = []string{BasicsFile, RatingsFile, EpisodesFile}

// Tables lists the silver tables in a fixed order
var Tables = []string{TableBasics, TableRatings, TableEpisodes}

// ParquetName returns the artifact name of a silver table
func ParquetName(table string) string {
	return table + ".parquet"
}

// RawBasics is one title.basics row as read, every column untyped.
// An invalid field is the extract's null sentinel.
type RawBasics struct {
	Tconst         sql.Null[string]
	TitleType      sql.Null[string]
	PrimaryTitle   sql.Null[string]
	OriginalTitle  sql.Null[string]
	IsAdult        sql.Null[string]
	StartYear      sql.Null[string]
	EndYear        sql.Null[string]
	RuntimeMinutes sql.Null[string]
	Genres         sql.Null[string]
}

// RawRating is one title.ratings row as read
type RawRating struct {
	Tconst        sql.Null[string]
	AverageRating sql.Null[string]
	NumVotes      sql.Null[string]
}

// RawEpisode is one title.episode row as read
type RawEpisode struct {
	Tconst        sql.Null[string]
	ParentTconst  sql.Null[string]
	SeasonNumber  sql.Null[string]
	EpisodeNumber sql.Null[string]
}

// RawTables holds the three bronze extracts of one snapshot
type RawTables struct {
	Basics   []RawBasics
	Ratings  []RawRating
	Episodes []RawEpisode
}

// Title is one row of the silver title_basics table
type Title struct {
	Tconst         string
	TitleType      string
	PrimaryTitle   string
	OriginalTitle  string
	IsAdult        int32
	StartYear      sql.Null[int32]
	EndYear        sql.Null[int32]
	RuntimeMinutes sql.Null[int32]
	Genres         sql.Null[string]
}

// GenreList splits the comma-joined genre column. Titles without genres yield nil.
func (t Title) GenreList() []string {
	if !t.Genres.Valid || t.Genres.V == "" {
		return nil
	}
	return strings.Split(t.Genres.V, ",")
}

// Rating is one row of the silver title_ratings table
type Rating struct {
	Tconst        string
	AverageRating float64
	NumVotes      int64
}

// Episode is one row of the silver title_episodes table
type Episode struct {
	Tconst        string
	ParentTconst  string
	SeasonNumber  sql.Null[int32]
	EpisodeNumber sql.Null[int32]
}

// Silver holds the three normalized tables of one snapshot
type Silver struct {
	Basics   []Title
	Ratings  []Rating
	Episodes []Episode
}

// RowCounts returns the size of every table keyed by table name
func (s *Silver) RowCounts() map[string]int64 {
	return map[string]int64{
		TableBasics:   int64(len(s.Basics)),
		TableRatings:  int64(len(s.Ratings)),
		TableEpisodes: int64(len(s.Episodes)),
	}
}
