package engine

import "math"

// Aggregate computes the revealed result for a disclosed vote list: the
// arithmetic mean of the numeric votes, rounded half away from zero to one
// decimal place. Unknown markers are skipped; with no numeric votes there is
// no result. Deterministic for a given multiset of votes.
func Aggregate(votes []DisclosedVote) *float64 {
	var sum float64
	var n int
	for _, v := range votes {
		if v.Vote.Unknown {
			continue
		}
		sum += float64(v.Vote.Value)
		n++
	}
	if n == 0 {
		return nil
	}
	mean := math.Round(sum/float64(n)*10) / 10
	return &mean
}
