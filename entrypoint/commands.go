package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"hmmtagger.com/postag/hmm"
	"hmmtagger.com/postag/pipeline"
)

const quitCommand = "q"

// evaluateModels logs the accuracy of every model that has an evaluation corpus.
func evaluateModels(registry *pipeline.Registry, out io.Writer) error {
	for _, name := range registry.Names() {
		entry, err := registry.Get(name)
		if err != nil {
			return err
		}
		if entry.Config.Evaluation.IsEmpty() {
			mainLogger.Info().Str("model", name).Msg("No evaluation corpus configured, skipping")
			continue
		}
		report, err := pipeline.Evaluate(entry)
		if err != nil {
			return fmt.Errorf("evaluate %q: %w", name, err)
		}
		mainLogger.Info().
			Str("model", name).
			Int("correct", report.Correct).
			Int("wrong", report.Wrong).
			Int("sentences", report.Sentences).
			Int("unreachable", report.Unreachable).
			Int("skipped", report.Skipped).
			Float64("accuracy", report.Accuracy()).
			Msg("Evaluation finished")
		fmt.Fprintf(out, "%s: %d correct, %d wrong, accuracy %.4f\n",
			name, report.Correct, report.Wrong, report.Accuracy())
	}
	return nil
}

// saveModels writes every registered model to <dir>/<name>.json.
func saveModels(registry *pipeline.Registry, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, name := range registry.Names() {
		entry, err := registry.Get(name)
		if err != nil {
			return err
		}
		modelPath := filepath.Join(dir, name+".json")
		if err := entry.Model.SaveToFile(modelPath); err != nil {
			return fmt.Errorf("save %q: %w", name, err)
		}
		mainLogger.Info().Str("model", name).Str("path", modelPath).Msg("Model saved")
	}
	return nil
}

// runInteractive tags one sentence per input line until EOF or a line holding only "q".
func runInteractive(registry *pipeline.Registry, name string, in io.Reader, out io.Writer) error {
	entry, err := registry.Get(name)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Tagging with model %q, enter %q to quit\n", entry.Name(), quitCommand)
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == quitCommand {
			return nil
		}
		tokens := strings.Fields(line)
		tags, err := entry.Decoder.DecodeTokens(tokens)
		if errors.Is(err, hmm.ErrNoReachableState) {
			fmt.Fprintf(out, "cannot tag: %v\n", err)
			continue
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(out, formatTagged(tokens, tags))
	}
}

func formatTagged(tokens, tags []string) string {
	pairs := make([]string, len(tokens))
	for i := range tokens {
		pairs[i] = tokens[i] + "/" + tags[i]
	}
	return strings.Join(pairs, " ")
}
