package pipeline

import (
	"fmt"
	"sync"

	"hmmtagger.com/postag/corpus"
	"hmmtagger.com/postag/hmm"
	"hmmtagger.com/postag/logger"
	"hmmtagger.com/postag/scoring"
	"hmmtagger.com/postag/types"
)

type Params struct {
	DataFolder     string                `json:"data_folder"`
	Configurations []types.Configuration `json:"configurations"`
}

func GetParams(dataPath string, cfgs []types.Configuration) Params {
	resolved := make([]types.Configuration, len(cfgs))
	for i, cfg := range cfgs {
		resolved[i] = cfg.ResolvePaths(dataPath)
	}
	return Params{
		DataFolder:     dataPath,
		Configurations: resolved,
	}
}

// BuildModel loads the persisted model of cfg, or trains one from its training corpus.
func BuildModel(cfg types.Configuration) (*hmm.Model, error) {
	if len(cfg.ModelFile) > 0 {
		return hmm.LoadModelFromFile(cfg.ModelFile)
	}
	examples, err := corpus.ReadFiles(cfg.Training.Sentences, cfg.Training.Tags)
	if err != nil {
		return nil, err
	}
	return hmm.TrainParallel(examples, cfg.TrainingWorkers)
}

// Evaluate scores e against its configured evaluation corpus.
func Evaluate(e *Entry) (scoring.Report, error) {
	cfg := e.Config
	if cfg.Evaluation.IsEmpty() {
		return scoring.Report{}, fmt.Errorf("model %q has no evaluation corpus", cfg.Name)
	}
	examples, err := corpus.ReadFiles(cfg.Evaluation.Sentences, cfg.Evaluation.Tags)
	if err != nil {
		return scoring.Report{}, err
	}
	return scoring.Evaluate(e.Decoder, examples)
}

func buildEntry(cfg types.Configuration) (*Entry, error) {
	model, err := BuildModel(cfg)
	if err != nil {
		return nil, fmt.Errorf("model %q: %w", cfg.Name, err)
	}
	return NewEntry(cfg, model)
}

// TrainModels builds every configured model concurrently. Any failure fails the whole set.
func TrainModels(params Params) (*Registry, error) {
	modelsLogger := logger.NewLogger("TrainModels")

	entries := make([]*Entry, len(params.Configurations))
	errs := make([]error, len(params.Configurations))
	var wg sync.WaitGroup
	for i, cfg := range params.Configurations {
		wg.Add(1)
		go func(i int, cfg types.Configuration) {
			defer wg.Done()
			cfgLogger := modelsLogger.With().Str("model", cfg.Name).Logger()
			cfgLogger.Info().Interface("configuration", cfg).Msg("Building model")
			entries[i], errs[i] = buildEntry(cfg)
			if errs[i] != nil {
				cfgLogger.Err(errs[i]).Msg("Failed to build model")
				return
			}
			cfgLogger.Info().
				Str("fingerprint", entries[i].Fingerprint()).
				Int("tags", len(entries[i].Model.Tags())).
				Msg("Model ready")
		}(i, cfg)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return NewRegistry(entries...), nil
}

// Retrain rebuilds the named model from its configuration and swaps it into the
// registry. Requests already holding the previous entry finish with it.
func (r *Registry) Retrain(name string) (*Entry, error) {
	current, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	e, err := buildEntry(current.Config)
	if err != nil {
		return nil, err
	}
	r.Swap(e)
	return e, nil
}
