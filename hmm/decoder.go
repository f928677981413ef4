package hmm

import (
	"fmt"
	"strings"
)

// DefaultUnseenWordPenalty is the emission score of a (tag, word) pair never seen in
// training. It is a smoothing floor, not a probability estimate: out-of-vocabulary words
// are penalized but still get a tag.
const DefaultUnseenWordPenalty = -20.0

// TieBreak decides which of two equally scored candidates survives.
type TieBreak int

const (
	// TieBreakFirstSeen keeps the candidate evaluated first.
	TieBreakFirstSeen TieBreak = iota
	// TieBreakLastSeen keeps the candidate evaluated last.
	TieBreakLastSeen
)

func ParseTieBreak(s string) (TieBreak, error) {
	switch s {
	case "", "first_seen":
		return TieBreakFirstSeen, nil
	case "last_seen":
		return TieBreakLastSeen, nil
	}
	return TieBreakFirstSeen, fmt.Errorf("unknown tie break %q", s)
}

func (tb TieBreak) String() string {
	if tb == TieBreakLastSeen {
		return "last_seen"
	}
	return "first_seen"
}

func (tb TieBreak) replaces(candidate, best float64) bool {
	if tb == TieBreakLastSeen {
		return candidate >= best
	}
	return candidate > best
}

type DecoderOptions struct {
	UnseenWordPenalty float64
	TieBreak          TieBreak
}

func DefaultDecoderOptions() DecoderOptions {
	return DecoderOptions{
		UnseenWordPenalty: DefaultUnseenWordPenalty,
		TieBreak:          TieBreakFirstSeen,
	}
}

// Path is the best tag sequence for a sentence and its cumulative log score.
type Path struct {
	Tags    []string
	LogProb float64
}

// Decoder runs Viterbi searches against one model. It holds no per-call state and can be
// shared between goroutines.
type Decoder struct {
	model *Model
	opts  DecoderOptions
}

func NewDecoder(model *Model, opts DecoderOptions) *Decoder {
	return &Decoder{model: model, opts: opts}
}

// Decode tags sentence with the default decoder options.
func Decode(model *Model, sentence string) ([]string, error) {
	return NewDecoder(model, DefaultDecoderOptions()).Decode(sentence)
}

// Tokenize lower-cases a sentence and splits it on whitespace.
func Tokenize(sentence string) []string {
	return strings.Fields(strings.ToLower(sentence))
}

func (d *Decoder) Model() *Model {
	return d.model
}

func (d *Decoder) Options() DecoderOptions {
	return d.opts
}

func (d *Decoder) Decode(sentence string) ([]string, error) {
	return d.DecodeTokens(Tokenize(sentence))
}

func (d *Decoder) DecodeTokens(tokens []string) ([]string, error) {
	path, err := d.DecodePath(tokens)
	if err != nil {
		return nil, err
	}
	return path.Tags, nil
}

// DecodePath returns the most likely tag sequence for tokens. Only transitions recorded
// in training are followed; a tag with no recorded way in is never considered.
func (d *Decoder) DecodePath(tokens []string) (Path, error) {
	if len(tokens) == 0 {
		return Path{Tags: []string{}}, nil
	}
	words := make([]string, len(tokens))
	for i, tok := range tokens {
		words[i] = strings.ToLower(tok)
	}

	n := len(d.model.tags)
	lattice := newLattice(len(words), n)
	scores := make([]float64, n)
	nextScores := make([]float64, n)
	reached := make([]bool, n)
	frontier := make([]int, 1, n)
	frontier[0] = startState
	next := make([]int, 0, n)

	for i, word := range words {
		next = next[:0]
		for _, curr := range frontier {
			base := scores[curr]
			for _, a := range d.model.successors[curr] {
				score := base + a.logProb + d.emissionScore(a.to, word)
				if !reached[a.to] {
					reached[a.to] = true
					next = append(next, a.to)
				} else if !d.opts.TieBreak.replaces(score, nextScores[a.to]) {
					continue
				}
				nextScores[a.to] = score
				lattice.set(i, a.to, curr)
			}
		}
		if len(next) == 0 {
			return Path{}, fmt.Errorf("%w: position %d (%q)", ErrNoReachableState, i, word)
		}
		for _, s := range next {
			reached[s] = false
		}
		frontier, next = next, frontier
		scores, nextScores = nextScores, scores
	}

	best := frontier[0]
	for _, s := range frontier[1:] {
		if d.opts.TieBreak.replaces(scores[s], scores[best]) {
			best = s
		}
	}

	states := lattice.backtrace(best)
	tags := make([]string, len(states))
	for i, s := range states {
		tags[i] = d.model.tags[s]
	}
	return Path{Tags: tags, LogProb: scores[best]}, nil
}

// emissionScore is the only place unseen (tag, word) pairs are scored.
func (d *Decoder) emissionScore(state int, word string) float64 {
	if lp, ok := d.model.emission(state, word); ok {
		return lp
	}
	return d.opts.UnseenWordPenalty
}
