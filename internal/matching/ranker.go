package matching

import (
	"cmp"
	"slices"

	"github.com/desertthunder/harmony/internal/models"
	"github.com/desertthunder/harmony/internal/similarity"
)

// DefaultThreshold is the minimum score a candidate needs to be retained.
const DefaultThreshold = 0.3

// Ranker filters and orders candidates by similarity to a profile.
type Ranker struct {
	threshold float64
	score     func(a, b models.IDSet) float64
}

// RankerOption configures a [Ranker].
type RankerOption func(*Ranker)

// WithThreshold overrides [DefaultThreshold].
func WithThreshold(threshold float64) RankerOption {
	return func(r *Ranker) { r.threshold = threshold }
}

// WithScorer replaces [similarity.Jaccard].
func WithScorer(score func(a, b models.IDSet) float64) RankerOption {
	return func(r *Ranker) { r.score = score }
}

func NewRanker(opts ...RankerOption) *Ranker {
	r := &Ranker{
		threshold: DefaultThreshold,
		score:     func(a, b models.IDSet) float64 { return similarity.Jaccard(a, b) },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Threshold returns the configured cut-off.
func (r *Ranker) Threshold() float64 { return r.threshold }

// Rank scores candidates against profile.
//
// Candidates submitted by the profile's user are always excluded. An empty
// profile short-circuits to no results without scoring. Ties keep input order.
func (r *Ranker) Rank(profile models.TasteProfile, candidates []models.Candidate) []models.RankedCandidate {
	if profile.Empty() {
		return nil
	}

	var ranked []models.RankedCandidate
	for _, c := range candidates {
		if c.SubmittedBy == profile.UserID {
			continue
		}

		score := r.score(profile.Artists, c.Artists())
		if score < r.threshold {
			continue
		}
		ranked = append(ranked, models.RankedCandidate{Candidate: c, Score: score})
	}

	slices.SortStableFunc(ranked, func(a, b models.RankedCandidate) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return ranked
}
