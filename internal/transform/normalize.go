package transform

import (
	"slices"

	"github.com/leonardosantosdev/imdb-analytics/internal/imdb"
)

// Normalize coerces and filters the raw extracts into silver tables.
//
// Basics keep rows whose title type is allowed and whose adult flag coerces to
// exactly 0. Ratings keep rows with a vote count >= 0 and a rating in [0,10];
// values that fail to coerce are null and never pass either bound. Episodes
// need a parent and must join a kept title. Rows without an identifier are
// dropped. The result is not yet validated.
func Normalize(raw *imdb.RawTables, allowedTypes []string) *imdb.Silver {
	basics := normalizeBasics(raw.Basics, allowedTypes)
	return &imdb.Silver{
		Basics:   basics,
		Ratings:  normalizeRatings(raw.Ratings),
		Episodes: normalizeEpisodes(raw.Episodes, basics),
	}
}

func normalizeBasics(rows []imdb.RawBasics, allowedTypes []string) []imdb.Title {
	titles := make([]imdb.Title, 0, len(rows))
	for _, r := range rows {
		if !r.Tconst.Valid || !r.TitleType.Valid || !slices.Contains(allowedTypes, r.TitleType.V) {
			continue
		}
		isAdult := imdb.TryInt32(r.IsAdult)
		if !imdb.Equals(isAdult, 0) {
			continue
		}
		titles = append(titles, imdb.Title{
			Tconst:         r.Tconst.V,
			TitleType:      r.TitleType.V,
			PrimaryTitle:   r.PrimaryTitle.V,
			OriginalTitle:  r.OriginalTitle.V,
			IsAdult:        isAdult.V,
			StartYear:      imdb.TryInt32(r.StartYear),
			EndYear:        imdb.TryInt32(r.EndYear),
			RuntimeMinutes: imdb.TryInt32(r.RuntimeMinutes),
			Genres:         r.Genres,
		})
	}
	return titles
}

func normalizeRatings(rows []imdb.RawRating) []imdb.Rating {
	ratings := make([]imdb.Rating, 0, len(rows))
	for _, r := range rows {
		if !r.Tconst.Valid {
			continue
		}
		avg := imdb.TryFloat64(r.AverageRating)
		votes := imdb.TryInt64(r.NumVotes)
		if !imdb.AtLeast(votes, 0) || !imdb.Between(avg, 0, 10) {
			continue
		}
		ratings = append(ratings, imdb.Rating{
			Tconst:        r.Tconst.V,
			AverageRating: avg.V,
			NumVotes:      votes.V,
		})
	}
	return ratings
}

// normalizeEpisodes inner-joins episodes to titles. A title identifier that
// appears twice yields the episode twice so the uniqueness gate still sees it.
func normalizeEpisodes(rows []imdb.RawEpisode, titles []imdb.Title) []imdb.Episode {
	known := make(map[string]int, len(titles))
	for _, t := range titles {
		known[t.Tconst]++
	}

	episodes := make([]imdb.Episode, 0, len(rows))
	for _, r := range rows {
		if !r.Tconst.Valid || !r.ParentTconst.Valid {
			continue
		}
		e := imdb.Episode{
			Tconst:        r.Tconst.V,
			ParentTconst:  r.ParentTconst.V,
			SeasonNumber:  imdb.TryInt32(r.SeasonNumber),
			EpisodeNumber: imdb.TryInt32(r.EpisodeNumber),
		}
		for range known[e.Tconst] {
			episodes = append(episodes, e)
		}
	}
	return episodes
}
