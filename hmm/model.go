package hmm

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strconv"

	"hmmtagger.com/postag/utils"
)

// StartTag is the synthetic tag preceding the first token of every sentence. It only
// ever appears as a transition context.
const StartTag = "<s>"

const startState = 0

// Tolerance used when checking that a loaded distribution sums to one.
const distributionTolerance = 1e-6

type arc struct {
	to      int
	logProb float64
}

// Model is a trained HMM: emission log-probabilities P(word|tag) and transition
// log-probabilities P(tag|previous tag). A Model is immutable and safe for concurrent
// use by any number of decoders.
type Model struct {
	emissions   ProbTable
	transitions ProbTable

	// tags[0] is StartTag, the rest are sorted.
	tags        []string
	index       map[string]int
	successors  [][]arc
	emits       []map[string]float64
	fingerprint uint64
}

// NewModel validates a pair of probability tables and builds a Model from copies of them.
func NewModel(emissions, transitions ProbTable) (*Model, error) {
	if err := validateTable(emissions); err != nil {
		return nil, fmt.Errorf("emissions: %w", err)
	}
	if err := validateTable(transitions); err != nil {
		return nil, fmt.Errorf("transitions: %w", err)
	}
	if _, ok := emissions[StartTag]; ok {
		return nil, fmt.Errorf("%w: start tag %q has emissions", ErrInvalidModel, StartTag)
	}
	for prev, outcomes := range transitions {
		if _, ok := outcomes[StartTag]; ok {
			return nil, fmt.Errorf("%w: transition %q -> %q", ErrInvalidModel, prev, StartTag)
		}
	}
	return compile(emissions.clone(), transitions.clone()), nil
}

func validateTable(table ProbTable) error {
	for context, outcomes := range table {
		if len(outcomes) == 0 {
			return fmt.Errorf("%w: context %q has no outcomes", ErrInvalidModel, context)
		}
		sum := 0.0
		for outcome, lp := range outcomes {
			if math.IsNaN(lp) || lp > 0 {
				return fmt.Errorf("%w: %q -> %q has log-probability %v", ErrInvalidModel, context, outcome, lp)
			}
			sum += math.Exp(lp)
		}
		if math.Abs(sum-1) > distributionTolerance {
			return fmt.Errorf("%w: context %q sums to %v", ErrInvalidModel, context, sum)
		}
	}
	return nil
}

func compile(emissions, transitions ProbTable) *Model {
	observed := make(map[string]struct{})
	for tag := range emissions {
		observed[tag] = struct{}{}
	}
	for prev, outcomes := range transitions {
		if prev != StartTag {
			observed[prev] = struct{}{}
		}
		for tag := range outcomes {
			observed[tag] = struct{}{}
		}
	}
	names := make([]string, 0, len(observed))
	for tag := range observed {
		names = append(names, tag)
	}
	sort.Strings(names)

	m := &Model{
		emissions:   emissions,
		transitions: transitions,
		tags:        append([]string{StartTag}, names...),
	}
	m.index = make(map[string]int, len(m.tags))
	for i, tag := range m.tags {
		m.index[tag] = i
	}
	m.successors = make([][]arc, len(m.tags))
	m.emits = make([]map[string]float64, len(m.tags))
	for i, tag := range m.tags {
		// outcomes are sorted, so successors come out in vocabulary order
		for _, next := range transitions.outcomes(tag) {
			m.successors[i] = append(m.successors[i], arc{to: m.index[next], logProb: transitions[tag][next]})
		}
		m.emits[i] = emissions[tag]
	}
	m.fingerprint = fingerprint(emissions, transitions)
	return m
}

func fingerprint(tables ...ProbTable) uint64 {
	var buf bytes.Buffer
	for _, table := range tables {
		for _, context := range table.contexts() {
			for _, outcome := range table.outcomes(context) {
				buf.WriteString(context)
				buf.WriteByte(0)
				buf.WriteString(outcome)
				buf.WriteByte(0)
				buf.Write(strconv.AppendFloat(nil, table[context][outcome], 'g', -1, 64))
				buf.WriteByte('\n')
			}
		}
		buf.WriteByte(0x1e)
	}
	return utils.HashBytes(buf.Bytes())
}

// Tags returns the tags observed in training, sorted. The start tag is not included.
func (m *Model) Tags() []string {
	tags := make([]string, len(m.tags)-1)
	copy(tags, m.tags[1:])
	return tags
}

func (m *Model) EmissionLogProb(tag, word string) (float64, bool) {
	return m.emissions.Lookup(tag, word)
}

func (m *Model) TransitionLogProb(prevTag, tag string) (float64, bool) {
	return m.transitions.Lookup(prevTag, tag)
}

// Emissions returns a copy of the emission table.
func (m *Model) Emissions() ProbTable {
	return m.emissions.clone()
}

// Transitions returns a copy of the transition table.
func (m *Model) Transitions() ProbTable {
	return m.transitions.clone()
}

// Fingerprint is a murmur3 hash of the table contents. Models with equal tables have
// equal fingerprints regardless of how they were built.
func (m *Model) Fingerprint() uint64 {
	return m.fingerprint
}

func (m *Model) emission(state int, word string) (float64, bool) {
	lp, ok := m.emits[state][word]
	return lp, ok
}
