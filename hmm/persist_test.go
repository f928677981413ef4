package hmm

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestModelJSON(t *testing.T) {
	model, err := Train(corpusExamples())
	require.NoError(t, err)

	buf, err := json.Marshal(model)
	require.NoError(t, err)

	loaded, err := ReadModel(bytes.NewReader(buf))
	require.NoError(t, err)
	if diff := cmp.Diff(model.Emissions(), loaded.Emissions()); diff != "" {
		t.Errorf("emissions differ after round trip:\n%s", diff)
	}
	if diff := cmp.Diff(model.Transitions(), loaded.Transitions()); diff != "" {
		t.Errorf("transitions differ after round trip:\n%s", diff)
	}
	require.Equal(t, model.Fingerprint(), loaded.Fingerprint())
	require.Equal(t, model.Tags(), loaded.Tags())
}

func TestModelFile(t *testing.T) {
	model, err := Train(sampleExamples())
	require.NoError(t, err)

	modelPath := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, model.SaveToFile(modelPath))

	loaded, err := LoadModelFromFile(modelPath)
	require.NoError(t, err)
	tags, err := Decode(loaded, "the dog ran")
	require.NoError(t, err)
	require.Equal(t, []string{"DET", "N", "V"}, tags)

	_, err = LoadModelFromFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestReadInvalidModel(t *testing.T) {
	for name, doc := range map[string]string{
		"not json":          `{"emissions": [`,
		"does not sum to 1": `{"emissions": {"N": {"dog": -0.1}}, "transitions": {}}`,
		"positive log prob": `{"emissions": {"N": {"dog": 0.5}}, "transitions": {}}`,
		"empty context":     `{"emissions": {"N": {}}, "transitions": {}}`,
		"start tag emits":   `{"emissions": {"<s>": {"dog": 0}}, "transitions": {}}`,
		"start tag reached": `{"emissions": {}, "transitions": {"N": {"<s>": 0}}}`,
	} {
		_, err := ReadModel(strings.NewReader(doc))
		require.True(t, errors.Is(err, ErrInvalidModel), "%s: got %v", name, err)
	}
}

func TestModelIsolatedFromInputs(t *testing.T) {
	emissions := ProbTable{"N": {"dog": 0}}
	transitions := ProbTable{StartTag: {"N": 0}}
	model, err := NewModel(emissions, transitions)
	require.NoError(t, err)

	emissions["N"]["dog"] = -5
	model.Emissions()["N"]["dog"] = -7

	lp, ok := model.EmissionLogProb("N", "dog")
	require.True(t, ok)
	require.Equal(t, 0.0, lp)
}

func TestSaveToFileReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.json")
	require.NoError(t, os.WriteFile(modelPath, []byte("stale"), 0o644))

	model, err := Train(sampleExamples())
	require.NoError(t, err)
	require.NoError(t, model.SaveToFile(modelPath))

	loaded, err := LoadModelFromFile(modelPath)
	require.NoError(t, err)
	require.Equal(t, model.Fingerprint(), loaded.Fingerprint())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "model.json", entries[0].Name())

	err = model.SaveToFile(filepath.Join(dir, "missing", "model.json"))
	require.Error(t, err)
	entries, err = os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
