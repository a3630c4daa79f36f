// Package voting accumulates weighted ballots per candidate and resolves a
// phase winner.
package voting

import (
	"sort"
	"strings"
)

// Tally maps a candidate (ticker or strategy name) to its accumulated weight.
type Tally map[string]float64

type Standing struct {
	Candidate string  `json:"candidate"`
	Weight    float64 `json:"weight"`
}

// AddBallot returns a copy of t with weight added to candidate. t itself is
// not modified, so a published tally never changes under a reader.
// Blank candidates are ignored.
func AddBallot(t Tally, candidate string, weight float64) Tally {
	out := make(Tally, len(t)+1)
	for k, v := range t {
		out[k] = v
	}
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return out
	}
	out[candidate] += weight
	return out
}

// Ranked orders candidates by weight, highest first. Equal weights are
// ordered lexicographically so the result is deterministic.
func Ranked(t Tally) []Standing {
	out := make([]Standing, 0, len(t))
	for k, v := range t {
		out = append(out, Standing{Candidate: k, Weight: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Candidate < out[j].Candidate
	})
	return out
}

// ResolveWinner returns the top-ranked candidate, or def when t is empty.
func ResolveWinner(t Tally, def string) string {
	ranked := Ranked(t)
	if len(ranked) == 0 {
		return def
	}
	return ranked[0].Candidate
}
