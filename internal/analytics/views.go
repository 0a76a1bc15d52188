// Package analytics derives the dashboard reports from silver snapshots.
//
// Every report is a pure function of Views, which are built once per run from
// the resolved snapshot and, for the week-over-week report, the ratings of its
// predecessor.
package analytics

import (
	"cmp"
	"database/sql"
	"slices"
	"strings"

	"github.com/leonardosantosdev/imdb-analytics/internal/imdb"
)

// TopGenreCount is the size of the genre set used by the per-genre breakdowns
const TopGenreCount = 12

// RatedTitle is one row of the titles view: a display-type title joined to its rating
type RatedTitle struct {
	Tconst         string
	TitleType      string
	PrimaryTitle   string
	OriginalTitle  string
	StartYear      sql.Null[int32]
	EndYear        sql.Null[int32]
	RuntimeMinutes sql.Null[int32]
	Genres         sql.Null[string]
	AverageRating  float64
	NumVotes       int64
}

// EpisodeRating is one row of the episode_ratings view
type EpisodeRating struct {
	Tconst        string
	ParentTconst  string
	SeasonNumber  sql.Null[int32]
	EpisodeNumber sql.Null[int32]
	EpisodeTitle  string
	AverageRating float64
	NumVotes      int64
}

// GenreTitle pairs one genre with a title that carries it
type GenreTitle struct {
	Genre string
	Title *RatedTitle
}

// SeasonRating aggregates the rated episodes of one season of a series
type SeasonRating struct {
	SeriesTconst string
	SeasonNumber int32
	AvgRating    float64
	TotalVotes   int64
	EpisodeCount int64
}

// Views holds the derived tables shared by all reports of a run
type Views struct {
	Silver         *imdb.Silver
	Titles         []RatedTitle
	EpisodeRatings []EpisodeRating
	GenreExploded  []GenreTitle
	SeasonRatings  []SeasonRating
	// TopGenres are the TopGenreCount genres with the most votes
	TopGenres []string

	// Previous holds the predecessor snapshot's ratings; nil when there is none
	Previous []imdb.Rating

	basics map[string]*imdb.Title
}

// BuildViews derives the shared views from current. previous is the rating
// table of the preceding snapshot, or nil when no predecessor exists.
func BuildViews(current *imdb.Silver, previous []imdb.Rating) *Views {
	v := &Views{
		Silver:   current,
		Previous: previous,
		basics:   make(map[string]*imdb.Title, len(current.Basics)),
	}
	for i := range current.Basics {
		t := &current.Basics[i]
		if _, seen := v.basics[t.Tconst]; !seen {
			v.basics[t.Tconst] = t
		}
	}
	ratings := ratingIndex(current.Ratings)

	for _, b := range current.Basics {
		if !slices.Contains(imdb.DisplayTitleTypes, b.TitleType) {
			continue
		}
		r, ok := ratings[b.Tconst]
		if !ok {
			continue
		}
		v.Titles = append(v.Titles, RatedTitle{
			Tconst:         b.Tconst,
			TitleType:      b.TitleType,
			PrimaryTitle:   b.PrimaryTitle,
			OriginalTitle:  b.OriginalTitle,
			StartYear:      b.StartYear,
			EndYear:        b.EndYear,
			RuntimeMinutes: b.RuntimeMinutes,
			Genres:         b.Genres,
			AverageRating:  r.AverageRating,
			NumVotes:       r.NumVotes,
		})
	}

	for _, e := range current.Episodes {
		b, ok := v.basics[e.Tconst]
		if !ok {
			continue
		}
		r, ok := ratings[e.Tconst]
		if !ok {
			continue
		}
		v.EpisodeRatings = append(v.EpisodeRatings, EpisodeRating{
			Tconst:        e.Tconst,
			ParentTconst:  e.ParentTconst,
			SeasonNumber:  e.SeasonNumber,
			EpisodeNumber: e.EpisodeNumber,
			EpisodeTitle:  b.PrimaryTitle,
			AverageRating: r.AverageRating,
			NumVotes:      r.NumVotes,
		})
	}

	for i := range v.Titles {
		t := &v.Titles[i]
		if !t.Genres.Valid {
			continue
		}
		for _, g := range strings.Split(t.Genres.V, ",") {
			v.GenreExploded = append(v.GenreExploded, GenreTitle{Genre: g, Title: t})
		}
	}

	v.SeasonRatings = seasonRatings(v.EpisodeRatings)
	v.TopGenres = topGenres(v.GenreExploded, TopGenreCount)
	return v
}

// HasPrevious reports whether a predecessor snapshot was supplied
func (v *Views) HasPrevious() bool {
	return v.Previous != nil
}

// Basics looks up a title_basics row by identifier
func (v *Views) Basics(tconst string) (*imdb.Title, bool) {
	t, ok := v.basics[tconst]
	return t, ok
}

func ratingIndex(ratings []imdb.Rating) map[string]imdb.Rating {
	idx := make(map[string]imdb.Rating, len(ratings))
	for _, r := range ratings {
		if _, seen := idx[r.Tconst]; !seen {
			idx[r.Tconst] = r
		}
	}
	return idx
}

type seasonKey struct {
	series string
	season int32
}

func seasonRatings(episodes []EpisodeRating) []SeasonRating {
	type acc struct {
		ratingSum float64
		votes     int64
		count     int64
	}
	groups := make(map[seasonKey]*acc)
	for _, e := range episodes {
		if !e.SeasonNumber.Valid {
			continue
		}
		k := seasonKey{e.ParentTconst, e.SeasonNumber.V}
		a, ok := groups[k]
		if !ok {
			a = &acc{}
			groups[k] = a
		}
		a.ratingSum += e.AverageRating
		a.votes += e.NumVotes
		a.count++
	}

	out := make([]SeasonRating, 0, len(groups))
	for k, a := range groups {
		out = append(out, SeasonRating{
			SeriesTconst: k.series,
			SeasonNumber: k.season,
			AvgRating:    round(a.ratingSum/float64(a.count), 3),
			TotalVotes:   a.votes,
			EpisodeCount: a.count,
		})
	}
	slices.SortFunc(out, func(a, b SeasonRating) int {
		return cmp.Or(strings.Compare(a.SeriesTconst, b.SeriesTconst), cmp.Compare(a.SeasonNumber, b.SeasonNumber))
	})
	return out
}

// topGenres ranks genres by total votes over every exploded row
func topGenres(rows []GenreTitle, n int) []string {
	totals := make(map[string]int64)
	for _, r := range rows {
		totals[r.Genre] += r.Title.NumVotes
	}
	genres := make([]string, 0, len(totals))
	for g := range totals {
		genres = append(genres, g)
	}
	slices.SortFunc(genres, func(a, b string) int {
		return cmp.Or(cmp.Compare(totals[b], totals[a]), strings.Compare(a, b))
	})
	if len(genres) > n {
		genres = genres[:n]
	}
	return genres
}
