package types

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"hmmtagger.com/postag/hmm"
	"hmmtagger.com/postag/logger"

	"gopkg.in/yaml.v3"
)

type CorpusConfig struct {
	Sentences string `yaml:"sentences" json:"sentences"`
	Tags      string `yaml:"tags" json:"tags"`
}

func (c CorpusConfig) IsEmpty() bool {
	return len(c.Sentences) == 0 && len(c.Tags) == 0
}

func (c CorpusConfig) validate() error {
	if c.IsEmpty() {
		return nil
	}
	if len(c.Sentences) == 0 || len(c.Tags) == 0 {
		return errors.New("both sentences and tags files are required")
	}
	return nil
}

type DecoderConfig struct {
	UnseenWordPenalty *float64 `yaml:"unseen_word_penalty" json:"unseen_word_penalty"`
	TieBreak          string   `yaml:"tie_break" json:"tie_break"`
}

// Options converts the configuration to decoder options. Unset fields keep their defaults.
func (c DecoderConfig) Options() (hmm.DecoderOptions, error) {
	opts := hmm.DefaultDecoderOptions()
	if c.UnseenWordPenalty != nil {
		if *c.UnseenWordPenalty > 0 {
			return opts, fmt.Errorf("unseen word penalty must not be positive, got %v", *c.UnseenWordPenalty)
		}
		opts.UnseenWordPenalty = *c.UnseenWordPenalty
	}
	tieBreak, err := hmm.ParseTieBreak(c.TieBreak)
	if err != nil {
		return opts, err
	}
	opts.TieBreak = tieBreak
	return opts, nil
}

// Configuration describes one named model: where its training data or persisted model
// lives and how it decodes.
type Configuration struct {
	Name            string        `json:"name"`
	FilePath        string        `json:"file_path"`
	Training        CorpusConfig  `yaml:"training" json:"training"`
	Evaluation      CorpusConfig  `yaml:"evaluation" json:"evaluation"`
	ModelFile       string        `yaml:"model_file" json:"model_file"`
	TrainingWorkers int           `yaml:"training_workers" json:"training_workers"`
	Decoder         DecoderConfig `yaml:"decoder" json:"decoder"`
}

func (cfg Configuration) Validate() error {
	if len(cfg.Name) == 0 {
		return errors.New("model name is empty")
	}
	if len(cfg.ModelFile) == 0 && cfg.Training.IsEmpty() {
		return errors.New("either model_file or training corpus is required")
	}
	if err := cfg.Training.validate(); err != nil {
		return fmt.Errorf("training: %w", err)
	}
	if err := cfg.Evaluation.validate(); err != nil {
		return fmt.Errorf("evaluation: %w", err)
	}
	if cfg.TrainingWorkers < 0 {
		return fmt.Errorf("training_workers must not be negative, got %d", cfg.TrainingWorkers)
	}
	if _, err := cfg.Decoder.Options(); err != nil {
		return fmt.Errorf("decoder: %w", err)
	}
	return nil
}

// ResolvePaths returns a copy of cfg with relative data paths joined to baseDir.
func (cfg Configuration) ResolvePaths(baseDir string) Configuration {
	resolve := func(p string) string {
		if len(p) == 0 || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(baseDir, p)
	}
	cfg.Training.Sentences = resolve(cfg.Training.Sentences)
	cfg.Training.Tags = resolve(cfg.Training.Tags)
	cfg.Evaluation.Sentences = resolve(cfg.Evaluation.Sentences)
	cfg.Evaluation.Tags = resolve(cfg.Evaluation.Tags)
	cfg.ModelFile = resolve(cfg.ModelFile)
	return cfg
}

func FindConfiguration(cfgs []Configuration, name string) (Configuration, bool) {
	for _, cfg := range cfgs {
		if cfg.Name == name {
			return cfg, true
		}
	}
	return Configuration{}, false
}

func isConfigFile(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}

// LoadConfigurations reads every YAML file in dirPath. The model name is the file name
// without extension. Files that fail to parse or validate are logged and skipped.
func LoadConfigurations(dirPath string) ([]Configuration, error) {
	cfgLogger := logger.NewLogger("LoadConfigurations")

	files, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, err
	}

	var wg sync.WaitGroup
	configChan := make(chan Configuration, len(files))
	for _, f := range files {
		// Skip dirs and non-yaml files
		if f.IsDir() || !isConfigFile(f.Name()) {
			continue
		}

		wg.Add(1)
		go func(file os.DirEntry) {
			defer wg.Done()
			cfg := Configuration{
				Name:     strings.TrimSuffix(file.Name(), filepath.Ext(file.Name())),
				FilePath: filepath.Join(dirPath, file.Name()),
			}
			fileLogger := cfgLogger.With().Str("file_path", cfg.FilePath).Logger()
			buf, err := os.ReadFile(cfg.FilePath)
			if err != nil {
				fileLogger.Err(err).Msg("Failed to read configuration")
				return
			}
			if err := yaml.Unmarshal(buf, &cfg); err != nil {
				fileLogger.Err(err).Msg("Failed to parse configuration")
				return
			}
			if err := cfg.Validate(); err != nil {
				fileLogger.Err(err).Msg("Invalid configuration")
				return
			}

			configChan <- cfg
		}(f)
	}

	go func() {
		wg.Wait()
		close(configChan)
	}()

	configs := make([]Configuration, 0, len(files))
	for cfg := range configChan {
		configs = append(configs, cfg)
	}
	sort.Slice(configs, func(i, j int) bool {
		return configs[i].Name < configs[j].Name
	})
	return configs, nil
}
