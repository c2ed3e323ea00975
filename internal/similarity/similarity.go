// Package similarity scores overlap between identifier sets.
package similarity

// Jaccard returns |A∩B| / |A∪B|.
//
// If either set is empty the score is 0. The result is order independent and always in [0,1].
func Jaccard[T comparable](a, b map[T]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}

	shared := 0
	for k := range small {
		if _, ok := large[k]; ok {
			shared++
		}
	}

	return float64(shared) / float64(len(a)+len(b)-shared)
}

// JaccardSlices is [Jaccard] over slices; duplicates collapse.
func JaccardSlices[T comparable](a, b []T) float64 {
	return Jaccard(toSet(a), toSet(b))
}

func toSet[T comparable](items []T) map[T]struct{} {
	s := make(map[T]struct{}, len(items))
	for _, item := range items {
		s[item] = struct{}{}
	}
	return s
}

// Scorer computes a similarity score between two sets.
type Scorer[T comparable] func(a, b map[T]struct{}) float64

// IsTasteSimilar reports whether two users' sets meet threshold.
//
// Comparing a user with themselves never calls score: the result is true for any threshold below 1.
// A nil score means [Jaccard].
func IsTasteSimilar[T comparable](userA, userB string, a, b map[T]struct{}, threshold float64, score Scorer[T]) bool {
	if userA == userB {
		return threshold < 1.0
	}
	if score == nil {
		score = Jaccard[T]
	}
	return score(a, b) >= threshold
}
