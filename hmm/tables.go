package hmm

import (
	"math"
	"sort"
)

// CountTable maps a context (a tag, or the preceding tag for transitions) to outcome
// frequencies.
type CountTable map[string]map[string]int

func (t CountTable) Increment(context, outcome string) {
	outcomes, ok := t[context]
	if !ok {
		outcomes = make(map[string]int)
		t[context] = outcomes
	}
	outcomes[outcome]++
}

func (t CountTable) Total(context string) int {
	total := 0
	for _, c := range t[context] {
		total += c
	}
	return total
}

// Merge adds every count of other into t.
func (t CountTable) Merge(other CountTable) {
	for context, outcomes := range other {
		for outcome, c := range outcomes {
			if _, ok := t[context]; !ok {
				t[context] = make(map[string]int, len(outcomes))
			}
			t[context][outcome] += c
		}
	}
}

// ProbTable has the shape of a CountTable with natural-log probabilities as values.
type ProbTable map[string]map[string]float64

// Normalize turns every context of counts into a log-probability distribution over the
// outcomes recorded for it. counts is not modified.
func Normalize(counts CountTable) ProbTable {
	probs := make(ProbTable, len(counts))
	for context, outcomes := range counts {
		total := counts.Total(context)
		dist := make(map[string]float64, len(outcomes))
		for outcome, c := range outcomes {
			dist[outcome] = math.Log(float64(c) / float64(total))
		}
		probs[context] = dist
	}
	return probs
}

func (t ProbTable) Lookup(context, outcome string) (float64, bool) {
	lp, ok := t[context][outcome]
	return lp, ok
}

func (t ProbTable) clone() ProbTable {
	out := make(ProbTable, len(t))
	for context, outcomes := range t {
		dist := make(map[string]float64, len(outcomes))
		for outcome, lp := range outcomes {
			dist[outcome] = lp
		}
		out[context] = dist
	}
	return out
}

func (t ProbTable) contexts() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (t ProbTable) outcomes(context string) []string {
	keys := make([]string, 0, len(t[context]))
	for k := range t[context] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
