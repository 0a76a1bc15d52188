package transform

import (
	"fmt"
	"time"

	"github.com/leonardosantosdev/imdb-analytics/internal/imdb"
)

// Rule names reported by the validation gate
const (
	RuleNonEmpty         = "non_empty"
	RuleUniqueTconst     = "unique_tconst"
	RuleRatingRange      = "rating_range"
	RuleVotesNonNegative = "votes_non_negative"
)

// QualityCheck defines the interface for all data quality checks
type QualityCheck interface {
	// Name returns the rule this check enforces
	Name() string

	// Type returns the category of check (completeness, consistency, validity)
	Type() string

	// Run executes the check and returns a result
	Run() QualityCheckResult
}

// QualityCheckResult holds the outcome of a quality check
type QualityCheckResult struct {
	CheckName  string
	CheckType  string
	Table      string
	Passed     bool
	Details    string
	RowCount   int
	Violations int
	CreatedAt  time.Time
}

// NonEmptyCheck fails when a table has no rows
type NonEmptyCheck struct {
	table string
	rows  int
}

func NewNonEmptyCheck(table string, rows int) *NonEmptyCheck {
	return &NonEmptyCheck{table: table, rows: rows}
}

func (c *NonEmptyCheck) Name() string { return RuleNonEmpty }

func (c *NonEmptyCheck) Type() string { return "completeness" }

func (c *NonEmptyCheck) Run() QualityCheckResult {
	result := QualityCheckResult{
		CheckName: c.Name(),
		CheckType: c.Type(),
		Table:     c.table,
		RowCount:  c.rows,
		CreatedAt: time.Now(),
	}
	if c.rows == 0 {
		result.Violations = 1
		result.Details = "table is empty"
		return result
	}
	result.Passed = true
	result.Details = fmt.Sprintf("%d rows", c.rows)
	return result
}

// UniqueKeyCheck fails when a tconst occurs more than once in a table
type UniqueKeyCheck struct {
	table string
	keys  []string
}

func NewUniqueKeyCheck(table string, keys []string) *UniqueKeyCheck {
	return &UniqueKeyCheck{table: table, keys: keys}
}

func (c *UniqueKeyCheck) Name() string { return RuleUniqueTconst }

func (c *UniqueKeyCheck) Type() string { return "consistency" }

// Run counts surplus rows, i.e. total rows minus distinct keys
func (c *UniqueKeyCheck) Run() QualityCheckResult {
	result := QualityCheckResult{
		CheckName: c.Name(),
		CheckType: c.Type(),
		Table:     c.table,
		RowCount:  len(c.keys),
		CreatedAt: time.Now(),
	}

	seen := make(map[string]struct{}, len(c.keys))
	var first string
	for _, k := range c.keys {
		if _, dup := seen[k]; dup {
			if result.Violations == 0 {
				first = k
			}
			result.Violations++
			continue
		}
		seen[k] = struct{}{}
	}

	if result.Violations > 0 {
		result.Details = fmt.Sprintf("%d duplicate tconst values, first %s", result.Violations, first)
		return result
	}
	result.Passed = true
	result.Details = fmt.Sprintf("all %d tconst values unique", len(c.keys))
	return result
}

// RatingRangeCheck fails when an average rating lies outside [0,10]
type RatingRangeCheck struct {
	ratings []imdb.Rating
}

func NewRatingRangeCheck(ratings []imdb.Rating) *RatingRangeCheck {
	return &RatingRangeCheck{ratings: ratings}
}

func (c *RatingRangeCheck) Name() string { return RuleRatingRange }

func (c *RatingRangeCheck) Type() string { return "validity" }

func (c *RatingRangeCheck) Run() QualityCheckResult {
	result := QualityCheckResult{
		CheckName: c.Name(),
		CheckType: c.Type(),
		Table:     imdb.TableRatings,
		RowCount:  len(c.ratings),
		CreatedAt: time.Now(),
	}
	for _, r := range c.ratings {
		if r.AverageRating < 0 || r.AverageRating > 10 {
			result.Violations++
		}
	}
	result.Passed = result.Violations == 0
	result.Details = fmt.Sprintf("%d ratings outside [0,10]", result.Violations)
	return result
}

// VoteCountCheck fails when a vote count is negative
type VoteCountCheck struct {
	ratings []imdb.Rating
}

func NewVoteCountCheck(ratings []imdb.Rating) *VoteCountCheck {
	return &VoteCountCheck{ratings: ratings}
}

func (c *VoteCountCheck) Name() string { return RuleVotesNonNegative }

func (c *VoteCountCheck) Type() string { return "validity" }

func (c *VoteCountCheck) Run() QualityCheckResult {
	result := QualityCheckResult{
		CheckName: c.Name(),
		CheckType: c.Type(),
		Table:     imdb.TableRatings,
		RowCount:  len(c.ratings),
		CreatedAt: time.Now(),
	}
	for _, r := range c.ratings {
		if r.NumVotes < 0 {
			result.Violations++
		}
	}
	result.Passed = result.Violations == 0
	result.Details = fmt.Sprintf("%d negative vote counts", result.Violations)
	return result
}

// Checks returns the validation gate in evaluation order: emptiness for every
// table, then key uniqueness for every table, then the rating bounds.
func Checks(s *imdb.Silver) []QualityCheck {
	basicsKeys := make([]string, len(s.Basics))
	for i, t := range s.Basics {
		basicsKeys[i] = t.Tconst
	}
	ratingKeys := make([]string, len(s.Ratings))
	for i, r := range s.Ratings {
		ratingKeys[i] = r.Tconst
	}
	episodeKeys := make([]string, len(s.Episodes))
	for i, e := range s.Episodes {
		episodeKeys[i] = e.Tconst
	}

	return []QualityCheck{
		NewNonEmptyCheck(imdb.TableBasics, len(s.Basics)),
		NewNonEmptyCheck(imdb.TableRatings, len(s.Ratings)),
		NewNonEmptyCheck(imdb.TableEpisodes, len(s.Episodes)),
		NewUniqueKeyCheck(imdb.TableBasics, basicsKeys),
		NewUniqueKeyCheck(imdb.TableRatings, ratingKeys),
		NewUniqueKeyCheck(imdb.TableEpisodes, episodeKeys),
		NewRatingRangeCheck(s.Ratings),
		NewVoteCountCheck(s.Ratings),
	}
}

// Validate runs the gate and stops at the first failing check, returning the
// results gathered so far and a *ValidationError for the failure.
func Validate(s *imdb.Silver) ([]QualityCheckResult, error) {
	checks := Checks(s)
	results := make([]QualityCheckResult, 0, len(checks))
	for _, check := range checks {
		result := check.Run()
		results = append(results, result)
		if !result.Passed {
			return results, &ValidationError{
				Table:   result.Table,
				Rule:    result.CheckName,
				Count:   result.Violations,
				Details: result.Details,
			}
		}
	}
	return results, nil
}
