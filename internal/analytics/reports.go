package analytics

import (
	"cmp"
	"slices"
	"strings"

	"github.com/leonardosantosdev/imdb-analytics/internal/imdb"
	"github.com/leonardosantosdev/imdb-analytics/internal/report"
)

// Report names, also the artifact file stems
const (
	TopTitlesAllTimeName        = "top_titles_all_time"
	TopTitlesByDecadeName       = "top_titles_by_decade"
	MainstreamVsCultName        = "mainstream_vs_cult"
	GenreWeightedRatingsName    = "genre_weighted_ratings"
	GenrePopularityByDecadeName = "genre_popularity_by_decade"
	RuntimeVsRatingByGenreName  = "runtime_vs_rating_by_genre"
	TopEpisodesName             = "top_episodes"
	SeriesSeasonRatingsName     = "series_season_ratings"
	SeriesQualityDropName       = "series_quality_drop"
	RisingTitlesName            = "rising_titles_votes_week_over_week"
	SnapshotOverviewName        = "snapshot_overview"
	TitleTypeSummaryName        = "title_type_summary"
)

// Thresholds
const (
	MinVotesTopAll      = 50000
	MinVotesByDecade    = 10000
	MainstreamMinRating = 8.0
	MainstreamMinVotes  = 100000
	CultMinRating       = 8.0
	CultMinVotes        = 5000
	CultMaxVotes        = 20000
	MinGenreTitles      = 200
	MinEpisodeVotes     = 5000
	MinRisingVotes      = 10000

	topLimit        = 200
	perDecadeLimit  = 10
	categoryLimit   = 50
	seriesLimit     = 50
	qualityDropRows = 50
	risingLimit     = 100
)

// NoPreviousNote explains an empty week-over-week report
const NoPreviousNote = "Previous snapshot not found. Run at least two weekly snapshots."

// Builder computes one report from the shared views
type Builder func(v *Views) *report.Report

// Builders lists every report in publication order
var Builders = []Builder{
	TopTitlesAllTime,
	TopTitlesByDecade,
	MainstreamVsCult,
	GenreWeightedRatings,
	GenrePopularityByDecade,
	RuntimeVsRatingByGenre,
	TopEpisodes,
	SeriesSeasonRatings,
	SeriesQualityDrop,
	RisingTitles,
	SnapshotOverview,
	TitleTypeSummary,
}

var titleColumns = []string{"tconst", "primaryTitle", "titleType", "startYear", "genres", "averageRating", "numVotes"}

func titleValues(t *RatedTitle) []any {
	return []any{t.Tconst, t.PrimaryTitle, t.TitleType, imdb.Value(t.StartYear), imdb.Value(t.Genres), t.AverageRating, t.NumVotes}
}

// byRating orders by rating desc, then votes desc, then identifier
func byRating(a, b *RatedTitle) int {
	return cmp.Or(
		cmp.Compare(b.AverageRating, a.AverageRating),
		cmp.Compare(b.NumVotes, a.NumVotes),
		strings.Compare(a.Tconst, b.Tconst),
	)
}

// filterTitles returns pointers to the titles satisfying keep, ordered by rating
func filterTitles(v *Views, keep func(*RatedTitle) bool) []*RatedTitle {
	var out []*RatedTitle
	for i := range v.Titles {
		if keep(&v.Titles[i]) {
			out = append(out, &v.Titles[i])
		}
	}
	slices.SortFunc(out, byRating)
	return out
}

// TopTitlesAllTime ranks titles with at least MinVotesTopAll votes
func TopTitlesAllTime(v *Views) *report.Report {
	r := report.New(TopTitlesAllTimeName, titleColumns...)
	top := filterTitles(v, func(t *RatedTitle) bool { return t.NumVotes >= MinVotesTopAll })
	for _, t := range limit(top, topLimit) {
		r.Append(titleValues(t)...)
	}
	return r
}

// TopTitlesByDecade ranks the ten best titles of every decade
func TopTitlesByDecade(v *Views) *report.Report {
	r := report.New(TopTitlesByDecadeName, append([]string{"decade", "rank"}, titleColumns...)...)

	eligible := filterTitles(v, func(t *RatedTitle) bool {
		return t.NumVotes >= MinVotesByDecade && t.StartYear.Valid
	})
	byDecade := make(map[int32][]*RatedTitle)
	for _, t := range eligible {
		d := decade(t.StartYear.V)
		byDecade[d] = append(byDecade[d], t)
	}

	decades := make([]int32, 0, len(byDecade))
	for d := range byDecade {
		decades = append(decades, d)
	}
	slices.Sort(decades)

	for _, d := range decades {
		for i, t := range limit(byDecade[d], perDecadeLimit) {
			r.Append(append([]any{int64(d), int64(i + 1)}, titleValues(t)...)...)
		}
	}
	return r
}

// MainstreamVsCult contrasts highly rated blockbusters with highly rated niche titles
func MainstreamVsCult(v *Views) *report.Report {
	r := report.New(MainstreamVsCultName, append(slices.Clone(titleColumns), "category")...)

	mainstream := filterTitles(v, func(t *RatedTitle) bool {
		return t.AverageRating >= MainstreamMinRating && t.NumVotes >= MainstreamMinVotes
	})
	cult := filterTitles(v, func(t *RatedTitle) bool {
		return t.AverageRating >= CultMinRating && t.NumVotes >= CultMinVotes && t.NumVotes <= CultMaxVotes
	})

	for _, t := range limit(mainstream, categoryLimit) {
		r.Append(append(titleValues(t), "mainstream")...)
	}
	for _, t := range limit(cult, categoryLimit) {
		r.Append(append(titleValues(t), "cult")...)
	}
	return r
}

type genreAgg struct {
	genre       string
	titles      map[string]struct{}
	votes       int64
	weightedSum float64
}

func aggregateGenres(rows []GenreTitle) map[string]*genreAgg {
	out := make(map[string]*genreAgg)
	for _, row := range rows {
		a, ok := out[row.Genre]
		if !ok {
			a = &genreAgg{genre: row.Genre, titles: make(map[string]struct{})}
			out[row.Genre] = a
		}
		a.titles[row.Title.Tconst] = struct{}{}
		a.votes += row.Title.NumVotes
		a.weightedSum += row.Title.AverageRating * float64(row.Title.NumVotes)
	}
	return out
}

// GenreWeightedRatings computes the vote-weighted rating of every genre with
// at least MinGenreTitles distinct titles.
func GenreWeightedRatings(v *Views) *report.Report {
	r := report.New(GenreWeightedRatingsName, "genre", "titleCount", "totalVotes", "weightedRating")

	type row struct {
		agg      *genreAgg
		weighted any
	}
	var rows []row
	for _, a := range aggregateGenres(v.GenreExploded) {
		if len(a.titles) < MinGenreTitles {
			continue
		}
		var weighted any
		if a.votes != 0 {
			weighted = round(a.weightedSum/float64(a.votes), 3)
		}
		rows = append(rows, row{agg: a, weighted: weighted})
	}

	slices.SortFunc(rows, func(a, b row) int {
		return cmp.Or(compareNullableDesc(a.weighted, b.weighted), strings.Compare(a.agg.genre, b.agg.genre))
	})
	for _, x := range rows {
		r.Append(x.agg.genre, int64(len(x.agg.titles)), x.agg.votes, x.weighted)
	}
	return r
}

// compareNullableDesc orders float values descending with nil last
func compareNullableDesc(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return cmp.Compare(b.(float64), a.(float64))
}

// GenrePopularityByDecade breaks the top genres down by decade
func GenrePopularityByDecade(v *Views) *report.Report {
	r := report.New(GenrePopularityByDecadeName, "decade", "genre", "titleCount", "totalVotes")

	type key struct {
		decade int32
		genre  string
	}
	type acc struct {
		titles map[string]struct{}
		votes  int64
	}
	groups := make(map[key]*acc)
	for _, row := range v.GenreExploded {
		if !row.Title.StartYear.Valid || !slices.Contains(v.TopGenres, row.Genre) {
			continue
		}
		k := key{decade(row.Title.StartYear.V), row.Genre}
		a, ok := groups[k]
		if !ok {
			a = &acc{titles: make(map[string]struct{})}
			groups[k] = a
		}
		a.titles[row.Title.Tconst] = struct{}{}
		a.votes += row.Title.NumVotes
	}

	keys := make([]key, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b key) int {
		return cmp.Or(
			cmp.Compare(a.decade, b.decade),
			cmp.Compare(groups[b].votes, groups[a].votes),
			strings.Compare(a.genre, b.genre),
		)
	})
	for _, k := range keys {
		r.Append(int64(k.decade), k.genre, int64(len(groups[k].titles)), groups[k].votes)
	}
	return r
}

// RuntimeVsRatingByGenre summarizes runtime and rating for the top genres,
// counting only titles with a positive runtime.
func RuntimeVsRatingByGenre(v *Views) *report.Report {
	r := report.New(RuntimeVsRatingByGenreName,
		"genre", "titleCount", "avgRuntimeMinutes", "medianRuntimeMinutes", "avgRating", "medianRating")

	type acc struct {
		titles   map[string]struct{}
		runtimes []float64
		ratings  []float64
	}
	groups := make(map[string]*acc)
	for _, row := range v.GenreExploded {
		t := row.Title
		if !t.RuntimeMinutes.Valid || t.RuntimeMinutes.V <= 0 || !slices.Contains(v.TopGenres, row.Genre) {
			continue
		}
		a, ok := groups[row.Genre]
		if !ok {
			a = &acc{titles: make(map[string]struct{})}
			groups[row.Genre] = a
		}
		a.titles[t.Tconst] = struct{}{}
		a.runtimes = append(a.runtimes, float64(t.RuntimeMinutes.V))
		a.ratings = append(a.ratings, t.AverageRating)
	}

	type row struct {
		genre                  string
		count                  int64
		avgRuntime, medRuntime float64
		avgRating, medRating   float64
	}
	rows := make([]row, 0, len(groups))
	for g, a := range groups {
		rows = append(rows, row{
			genre:      g,
			count:      int64(len(a.titles)),
			avgRuntime: round(mean(a.runtimes), 1),
			medRuntime: round(median(a.runtimes), 1),
			avgRating:  round(mean(a.ratings), 2),
			medRating:  round(median(a.ratings), 2),
		})
	}
	slices.SortFunc(rows, func(a, b row) int {
		return cmp.Or(cmp.Compare(b.avgRating, a.avgRating), strings.Compare(a.genre, b.genre))
	})
	for _, x := range rows {
		r.Append(x.genre, x.count, x.avgRuntime, x.medRuntime, x.avgRating, x.medRating)
	}
	return r
}

// TopEpisodes ranks rated episodes whose series is a known title
func TopEpisodes(v *Views) *report.Report {
	r := report.New(TopEpisodesName,
		"tconst", "seriesTitle", "episodeTitle", "seasonNumber", "episodeNumber", "averageRating", "numVotes")

	type row struct {
		ep     *EpisodeRating
		series string
	}
	var rows []row
	for i := range v.EpisodeRatings {
		e := &v.EpisodeRatings[i]
		if e.NumVotes < MinEpisodeVotes {
			continue
		}
		series, ok := v.Basics(e.ParentTconst)
		if !ok {
			continue
		}
		rows = append(rows, row{ep: e, series: series.PrimaryTitle})
	}
	slices.SortFunc(rows, func(a, b row) int {
		return cmp.Or(
			cmp.Compare(b.ep.AverageRating, a.ep.AverageRating),
			cmp.Compare(b.ep.NumVotes, a.ep.NumVotes),
			strings.Compare(a.ep.Tconst, b.ep.Tconst),
		)
	})
	for _, x := range limit(rows, topLimit) {
		e := x.ep
		r.Append(e.Tconst, x.series, e.EpisodeTitle,
			imdb.Value(e.SeasonNumber), imdb.Value(e.EpisodeNumber), e.AverageRating, e.NumVotes)
	}
	return r
}

// SeriesSeasonRatings lists every season of the most voted series. Series are
// ranked by votes summed over all their seasons before titles are resolved.
func SeriesSeasonRatings(v *Views) *report.Report {
	r := report.New(SeriesSeasonRatingsName,
		"seriesTconst", "seriesTitle", "seasonNumber", "avgRating", "totalVotes", "episodeCount")

	seriesVotes := make(map[string]int64)
	for _, s := range v.SeasonRatings {
		seriesVotes[s.SeriesTconst] += s.TotalVotes
	}
	ranked := make([]string, 0, len(seriesVotes))
	for s := range seriesVotes {
		ranked = append(ranked, s)
	}
	slices.SortFunc(ranked, func(a, b string) int {
		return cmp.Or(cmp.Compare(seriesVotes[b], seriesVotes[a]), strings.Compare(a, b))
	})
	ranked = limit(ranked, seriesLimit)

	seasons := make(map[string][]SeasonRating, len(ranked))
	for _, s := range v.SeasonRatings {
		seasons[s.SeriesTconst] = append(seasons[s.SeriesTconst], s)
	}

	for _, series := range ranked {
		title, ok := v.Basics(series)
		if !ok {
			continue
		}
		// SeasonRatings is sorted by series then season
		for _, s := range seasons[series] {
			r.Append(s.SeriesTconst, title.PrimaryTitle, int64(s.SeasonNumber), s.AvgRating, s.TotalVotes, s.EpisodeCount)
		}
	}
	return r
}

// SeriesQualityDrop compares the first and last season of series with at
// least two seasons.
func SeriesQualityDrop(v *Views) *report.Report {
	r := report.New(SeriesQualityDropName,
		"seriesTconst", "seriesTitle", "season1Rating", "lastSeasonRating", "lastSeason", "qualityDrop")

	type span struct {
		first, last *SeasonRating
	}
	spans := make(map[string]*span)
	for i := range v.SeasonRatings {
		s := &v.SeasonRatings[i]
		sp, ok := spans[s.SeriesTconst]
		if !ok {
			sp = &span{}
			spans[s.SeriesTconst] = sp
		}
		if s.SeasonNumber == 1 {
			sp.first = s
		}
		if sp.last == nil || s.SeasonNumber > sp.last.SeasonNumber {
			sp.last = s
		}
	}

	type row struct {
		series string
		title  string
		first  float64
		last   float64
		season int32
		drop   float64
	}
	var rows []row
	for series, sp := range spans {
		if sp.first == nil || sp.last.SeasonNumber < 2 {
			continue
		}
		title, ok := v.Basics(series)
		if !ok {
			continue
		}
		rows = append(rows, row{
			series: series,
			title:  title.PrimaryTitle,
			first:  sp.first.AvgRating,
			last:   sp.last.AvgRating,
			season: sp.last.SeasonNumber,
			drop:   round(sp.first.AvgRating-sp.last.AvgRating, 3),
		})
	}
	slices.SortFunc(rows, func(a, b row) int {
		return cmp.Or(cmp.Compare(b.drop, a.drop), strings.Compare(a.series, b.series))
	})
	for _, x := range limit(rows, qualityDropRows) {
		r.Append(x.series, x.title, x.first, x.last, int64(x.season), x.drop)
	}
	return r
}

// RisingTitles reports the week-over-week vote gain of popular titles. Without
// a predecessor snapshot it is empty and carries NoPreviousNote.
func RisingTitles(v *Views) *report.Report {
	r := report.New(RisingTitlesName,
		"tconst", "primaryTitle", "titleType", "startYear", "genres",
		"numVotesCurrent", "numVotesPrevious", "deltaVotes", "pctChange")
	if !v.HasPrevious() {
		r.Note = NoPreviousNote
		return r
	}

	previous := ratingIndex(v.Previous)

	type row struct {
		t     *RatedTitle
		prev  int64
		delta int64
	}
	var rows []row
	for i := range v.Titles {
		t := &v.Titles[i]
		if t.NumVotes < MinRisingVotes {
			continue
		}
		p, ok := previous[t.Tconst]
		if !ok {
			continue
		}
		rows = append(rows, row{t: t, prev: p.NumVotes, delta: t.NumVotes - p.NumVotes})
	}
	slices.SortFunc(rows, func(a, b row) int {
		return cmp.Or(cmp.Compare(b.delta, a.delta), strings.Compare(a.t.Tconst, b.t.Tconst))
	})

	for _, x := range limit(rows, risingLimit) {
		var pct any
		if x.prev != 0 {
			pct = round(float64(x.delta)*100/float64(x.prev), 2)
		}
		r.Append(x.t.Tconst, x.t.PrimaryTitle, x.t.TitleType, imdb.Value(x.t.StartYear), imdb.Value(x.t.Genres),
			x.t.NumVotes, x.prev, x.delta, pct)
	}
	return r
}

// SnapshotOverview summarizes the size of the snapshot as metric/value rows
func SnapshotOverview(v *Views) *report.Report {
	r := report.New(SnapshotOverviewName, "metric", "value")

	var totalVotes int64
	ratings := make([]float64, 0, len(v.Titles))
	for _, t := range v.Titles {
		totalVotes += t.NumVotes
		ratings = append(ratings, t.AverageRating)
	}
	var meanRating any
	if len(ratings) > 0 {
		meanRating = round(mean(ratings), 3)
	}

	r.Append("basicsRows", int64(len(v.Silver.Basics)))
	r.Append("ratingsRows", int64(len(v.Silver.Ratings)))
	r.Append("episodesRows", int64(len(v.Silver.Episodes)))
	r.Append("ratedTitles", int64(len(v.Titles)))
	r.Append("ratedEpisodes", int64(len(v.EpisodeRatings)))
	r.Append("totalVotes", totalVotes)
	r.Append("meanRating", meanRating)
	return r
}

// TitleTypeSummary aggregates rated titles per title type
func TitleTypeSummary(v *Views) *report.Report {
	r := report.New(TitleTypeSummaryName, "titleType", "titleCount", "totalVotes", "avgRating", "weightedRating")

	type acc struct {
		titleType   string
		count       int64
		votes       int64
		ratingSum   float64
		weightedSum float64
	}
	groups := make(map[string]*acc)
	for _, t := range v.Titles {
		a, ok := groups[t.TitleType]
		if !ok {
			a = &acc{titleType: t.TitleType}
			groups[t.TitleType] = a
		}
		a.count++
		a.votes += t.NumVotes
		a.ratingSum += t.AverageRating
		a.weightedSum += t.AverageRating * float64(t.NumVotes)
	}

	rows := make([]*acc, 0, len(groups))
	for _, a := range groups {
		rows = append(rows, a)
	}
	slices.SortFunc(rows, func(a, b *acc) int {
		return cmp.Or(cmp.Compare(b.votes, a.votes), strings.Compare(a.titleType, b.titleType))
	})
	for _, a := range rows {
		var weighted any
		if a.votes != 0 {
			weighted = round(a.weightedSum/float64(a.votes), 3)
		}
		r.Append(a.titleType, a.count, a.votes, round(a.ratingSum/float64(a.count), 2), weighted)
	}
	return r
}
