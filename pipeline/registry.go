package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"hmmtagger.com/postag/hmm"
	"hmmtagger.com/postag/types"
)

var ErrUnknownModel = errors.New("unknown model")

// Entry is a trained model published under a configuration name.
type Entry struct {
	Config  types.Configuration
	Model   *hmm.Model
	Decoder *hmm.Decoder
}

func NewEntry(cfg types.Configuration, model *hmm.Model) (*Entry, error) {
	opts, err := cfg.Decoder.Options()
	if err != nil {
		return nil, err
	}
	return &Entry{
		Config:  cfg,
		Model:   model,
		Decoder: hmm.NewDecoder(model, opts),
	}, nil
}

func (e *Entry) Name() string {
	return e.Config.Name
}

func (e *Entry) Fingerprint() string {
	return strconv.FormatUint(e.Model.Fingerprint(), 16)
}

// Registry publishes named models. Readers never lock: every change builds a new map and
// swaps it in, so a reader sees either the old or the new set of models.
type Registry struct {
	entries atomic.Pointer[map[string]*Entry]
	writeMu sync.Mutex
}

func NewRegistry(entries ...*Entry) *Registry {
	m := make(map[string]*Entry, len(entries))
	for _, e := range entries {
		m[e.Name()] = e
	}
	r := &Registry{}
	r.entries.Store(&m)
	return r
}

func (r *Registry) snapshot() map[string]*Entry {
	return *r.entries.Load()
}

// Get returns the named entry. An empty name selects the only model when exactly one is
// registered.
func (r *Registry) Get(name string) (*Entry, error) {
	entries := r.snapshot()
	if len(name) == 0 && len(entries) == 1 {
		for _, e := range entries {
			return e, nil
		}
	}
	e, ok := entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	return e, nil
}

// Swap publishes e, replacing any entry with the same name.
func (r *Registry) Swap(e *Entry) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	old := r.snapshot()
	next := make(map[string]*Entry, len(old)+1)
	for name, entry := range old {
		next[name] = entry
	}
	next[e.Name()] = e
	r.entries.Store(&next)
}

func (r *Registry) Names() []string {
	return sortedNames(r.snapshot())
}

func sortedNames(entries map[string]*Entry) []string {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Info() []types.ModelInfo {
	entries := r.snapshot()
	infos := make([]types.ModelInfo, 0, len(entries))
	for _, name := range sortedNames(entries) {
		e := entries[name]
		infos = append(infos, types.ModelInfo{
			Name:        name,
			Fingerprint: e.Fingerprint(),
			Tags:        len(e.Model.Tags()),
		})
	}
	return infos
}
