// Package policy holds the rules deciding which listing entries count as
// popular: the exclusion filter and the popularity ranker.
package policy

import (
	"sort"

	"github.com/IshaanNene/hotboard/internal/types"
)

// DefaultTopN is how many candidates a site contributes per crawl.
const DefaultTopN = 10

// Score is the popularity of a listing entry. Comments weigh more than
// likes, and likes more than views.
func Score(views, likes, comments int) int {
	return views + likes*2 + comments*3
}

// ScoreCandidate attaches the popularity score to c.
func ScoreCandidate(c types.PostCandidate) types.ScoredCandidate {
	return types.ScoredCandidate{
		PostCandidate: c,
		Score:         Score(c.Views, c.Likes, c.Comments),
	}
}

// Rank scores candidates and returns the top n by score, descending.
// Equal scores keep their input order. n <= 0 keeps everything.
func Rank(candidates []types.PostCandidate, n int) []types.ScoredCandidate {
	scored := make([]types.ScoredCandidate, len(candidates))
	for i, c := range candidates {
		scored[i] = ScoreCandidate(c)
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if n > 0 && len(scored) > n {
		scored = scored[:n]
	}
	return scored
}
