package hmm

import (
	"fmt"
	"strings"
	"sync"
)

// Example is one tagged sentence: Tags[i] is the tag of Tokens[i].
type Example struct {
	Tokens []string
	Tags   []string
}

// NewExample splits a sentence line and its tag line on whitespace.
func NewExample(sentence, tags string) Example {
	return Example{
		Tokens: strings.Fields(sentence),
		Tags:   strings.Fields(tags),
	}
}

func (ex Example) validate() error {
	if len(ex.Tokens) != len(ex.Tags) {
		return fmt.Errorf("%w: %d tokens, %d tags", ErrMalformedTrainingExample, len(ex.Tokens), len(ex.Tags))
	}
	for i, tag := range ex.Tags {
		if tag == "" || tag == StartTag {
			return fmt.Errorf("%w: reserved tag %q at position %d", ErrMalformedTrainingExample, tag, i)
		}
	}
	return nil
}

// Trainer accumulates emission and transition counts. A Trainer is not safe for
// concurrent use; shard the corpus over several trainers and Merge them instead.
type Trainer struct {
	emissions   CountTable
	transitions CountTable
	observed    int
}

func NewTrainer() *Trainer {
	return &Trainer{
		emissions:   CountTable{},
		transitions: CountTable{},
	}
}

func (t *Trainer) ObserveEmission(tag, word string) {
	t.emissions.Increment(tag, strings.ToLower(word))
}

func (t *Trainer) ObserveTransition(prevTag, tag string) {
	t.transitions.Increment(prevTag, tag)
}

// Observe records one example. A malformed example is rejected before any count changes.
func (t *Trainer) Observe(ex Example) error {
	if err := ex.validate(); err != nil {
		return err
	}
	prev := StartTag
	for i, tag := range ex.Tags {
		t.ObserveEmission(tag, ex.Tokens[i])
		t.ObserveTransition(prev, tag)
		prev = tag
	}
	t.observed++
	return nil
}

// Observed is the number of examples recorded so far, merged trainers included.
func (t *Trainer) Observed() int {
	return t.observed
}

func (t *Trainer) Merge(other *Trainer) {
	t.emissions.Merge(other.emissions)
	t.transitions.Merge(other.transitions)
	t.observed += other.observed
}

// Finalize normalizes the current counts into a new Model. The trainer keeps its counts;
// the model shares nothing with them.
func (t *Trainer) Finalize() *Model {
	return compile(Normalize(t.emissions), Normalize(t.transitions))
}

// Train builds a model from examples. It stops at the first malformed example.
func Train(examples []Example) (*Model, error) {
	trainer := NewTrainer()
	if err := observeAll(trainer, examples, 0); err != nil {
		return nil, err
	}
	return trainer.Finalize(), nil
}

// TrainParallel counts contiguous shards of examples on separate goroutines and merges
// the counts. The resulting tables are identical to those of Train.
func TrainParallel(examples []Example, workers int) (*Model, error) {
	if workers < 2 || len(examples) < 2*workers {
		return Train(examples)
	}
	shardSize := (len(examples) + workers - 1) / workers
	var shards []*Trainer
	for lo := 0; lo < len(examples); lo += shardSize {
		shards = append(shards, NewTrainer())
	}
	errs := make([]error, len(shards))

	var wg sync.WaitGroup
	for i := range shards {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			lo := i * shardSize
			hi := lo + shardSize
			if hi > len(examples) {
				hi = len(examples)
			}
			errs[i] = observeAll(shards[i], examples[lo:hi], lo)
		}(i)
	}
	wg.Wait()

	merged := NewTrainer()
	for i, shard := range shards {
		if errs[i] != nil {
			return nil, errs[i]
		}
		merged.Merge(shard)
	}
	return merged.Finalize(), nil
}

func observeAll(trainer *Trainer, examples []Example, offset int) error {
	for i, ex := range examples {
		if err := trainer.Observe(ex); err != nil {
			return fmt.Errorf("example %d: %w", offset+i, err)
		}
	}
	return nil
}
