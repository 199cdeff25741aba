package games

import "sort"

// TallyResult is the outcome of counting a session's votes.
type TallyResult struct {
	Counts   map[string]int `json:"counts"`
	Leader   string         `json:"leader,omitempty"`
	TopVotes int            `json:"topVotes"`
	// Tied lists the targets sharing the top count, in ascending order. Empty when there is a leader.
	Tied []string `json:"tied,omitempty"`
}

// Resolved reports whether one target got strictly more votes than every other.
func (t TallyResult) Resolved() bool {
	return t.Leader != ""
}

// Tally counts votes per target. The target with the strictly highest count leads;
// a shared top count leaves Leader empty.
func Tally(votes map[string]string) TallyResult {
	result := TallyResult{Counts: make(map[string]int)}
	for _, target := range votes {
		if target == "" {
			continue
		}
		result.Counts[target]++
	}

	var top []string
	for target, n := range result.Counts {
		switch {
		case n > result.TopVotes:
			result.TopVotes = n
			top = append(top[:0], target)
		case n == result.TopVotes:
			top = append(top, target)
		}
	}

	switch len(top) {
	case 0:
	case 1:
		result.Leader = top[0]
	default:
		sort.Strings(top)
		result.Tied = top
	}

	return result
}
