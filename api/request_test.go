package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"hmmtagger.com/postag/pipeline"
	"hmmtagger.com/postag/types"
)

func testServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	dir := t.TempDir()
	sentences := filepath.Join(dir, "sentences.txt")
	tags := filepath.Join(dir, "tags.txt")
	require.NoError(t, os.WriteFile(sentences, []byte("the dog ran .\na cat sat .\n"), 0o644))
	require.NoError(t, os.WriteFile(tags, []byte("DET N V .\nDET N V .\n"), 0o644))

	cfg := types.Configuration{
		Name:     "toy",
		Training: types.CorpusConfig{Sentences: sentences, Tags: tags},
	}
	registry, err := pipeline.TrainModels(pipeline.Params{Configurations: []types.Configuration{cfg}})
	require.NoError(t, err)

	server := httptest.NewServer(NewRequest(registry).Handler())
	t.Cleanup(server.Close)
	return server, dir
}

func TestTag(t *testing.T) {
	server, _ := testServer(t)

	resp, err := http.Post(server.URL+"/tag?model=toy", "text/plain", strings.NewReader("The cat ran .\n"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body types.TaggingResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.True(t, strings.HasPrefix(body.Tid, "api-"))
	require.Equal(t, "toy", body.Model)
	require.Len(t, body.Sentences, 1)
	require.Equal(t, []string{"DET", "N", "V", "."}, body.Sentences[0].Tags)
}

func TestTagErrors(t *testing.T) {
	server, _ := testServer(t)

	resp, err := http.Get(server.URL + "/tag")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Post(server.URL+"/tag?model=missing", "text/plain", strings.NewReader("the dog"))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListModels(t *testing.T) {
	server, _ := testServer(t)

	resp, err := http.Get(server.URL + "/models")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var infos []types.ModelInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&infos))
	require.Len(t, infos, 1)
	require.Equal(t, "toy", infos[0].Name)
	require.Equal(t, 4, infos[0].Tags)
}

func TestRetrain(t *testing.T) {
	server, dir := testServer(t)

	before := modelInfo(t, server)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sentences.txt"), []byte("the dog ran .\nwe sat .\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tags.txt"), []byte("DET N V .\nPRO V .\n"), 0o644))

	resp, err := http.Post(server.URL+"/retrain?model=toy", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	after := modelInfo(t, server)
	require.NotEqual(t, before.Fingerprint, after.Fingerprint)
	require.Equal(t, 5, after.Tags)

	resp, err = http.Post(server.URL+"/retrain?model=missing", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func modelInfo(t *testing.T, server *httptest.Server) types.ModelInfo {
	t.Helper()
	resp, err := http.Get(server.URL + "/models")
	require.NoError(t, err)
	defer resp.Body.Close()
	var infos []types.ModelInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&infos))
	require.Len(t, infos, 1)
	return infos[0]
}
