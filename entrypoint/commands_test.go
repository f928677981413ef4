package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"hmmtagger.com/postag/hmm"
	"hmmtagger.com/postag/pipeline"
	"hmmtagger.com/postag/types"
)

func testRegistry(t *testing.T) *pipeline.Registry {
	t.Helper()
	model, err := hmm.Train([]hmm.Example{
		hmm.NewExample("the dog ran", "DET N V"),
		hmm.NewExample("a cat sat", "DET N V"),
	})
	require.NoError(t, err)
	entry, err := pipeline.NewEntry(types.Configuration{Name: "toy"}, model)
	require.NoError(t, err)
	return pipeline.NewRegistry(entry)
}

func TestRunInteractive(t *testing.T) {
	var out bytes.Buffer
	in := strings.NewReader("The dog sat\nthe dog ran home\n\nq\nthe cat ran\n")

	require.NoError(t, runInteractive(testRegistry(t), "toy", in, &out))

	output := out.String()
	require.Contains(t, output, "The/DET dog/N sat/V")
	require.Contains(t, output, "cannot tag")
	require.NotContains(t, output, "cat/N")
}

func TestRunInteractiveUntilEOF(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runInteractive(testRegistry(t), "", strings.NewReader("a cat ran"), &out))
	require.Contains(t, out.String(), "a/DET cat/N ran/V")
}

func TestRunInteractiveUnknownModel(t *testing.T) {
	var out bytes.Buffer
	err := runInteractive(testRegistry(t), "missing", strings.NewReader(""), &out)
	require.Error(t, err)
}

func TestSaveModels(t *testing.T) {
	registry := testRegistry(t)
	dir := filepath.Join(t.TempDir(), "models")

	require.NoError(t, saveModels(registry, dir))

	saved, err := hmm.LoadModelFromFile(filepath.Join(dir, "toy.json"))
	require.NoError(t, err)
	entry, err := registry.Get("toy")
	require.NoError(t, err)
	require.Equal(t, entry.Model.Fingerprint(), saved.Fingerprint())
}

func TestEvaluateModelsSkipsWithoutCorpus(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, evaluateModels(testRegistry(t), &out))
	require.Empty(t, out.String())
}
