package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"hmmtagger.com/postag/pipeline"
	"hmmtagger.com/postag/utils"
)

// Request serves the tagging endpoints over one model registry.
type Request struct {
	Pipeline pipeline.Pipeline
	Registry *pipeline.Registry
}

func NewRequest(registry *pipeline.Registry) *Request {
	return &Request{
		Pipeline: pipeline.New(registry),
		Registry: registry,
	}
}

// Handler routes the tagging endpoints.
func (req *Request) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/tag", req.ProcessData)
	mux.HandleFunc("/models", req.ListModels)
	mux.HandleFunc("/retrain", req.Retrain)
	return mux
}

// ProcessData tags the request body with the model named by the "model" query parameter.
func (req *Request) ProcessData(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	logger := makeRequestLogger(r)

	if r.Method != http.MethodPost {
		logger.Err(nil).Int("status", http.StatusMethodNotAllowed).Msg("Only 'POST' method is allowed here")
		http.Error(w, "", http.StatusMethodNotAllowed)
		return
	}

	msg, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Err(err).Int("status", http.StatusBadRequest).Msg("Could not read request body")
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	request := pipeline.Request{
		Tid:   "api-" + strconv.FormatUint(utils.HashBytes(msg), 16),
		Model: r.URL.Query().Get("model"),
		Text:  string(msg),
	}
	logger.Info().Str("tid", request.Tid).Msg("Starting pipeline for request from API")
	resp := <-req.Pipeline(request)
	if resp.Err != nil {
		status := http.StatusInternalServerError
		if errors.Is(resp.Err, pipeline.ErrUnknownModel) {
			status = http.StatusNotFound
		}
		logger.Err(resp.Err).Int("status", status).Msg("Pipeline failed")
		http.Error(w, resp.Err.Error(), status)
		return
	}
	_, _ = w.Write([]byte(resp.Data))
	logger.Info().Int("status", http.StatusOK).Msg("Finished processing request")
}

func (req *Request) ListModels(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	logger := makeRequestLogger(r)

	if r.Method != http.MethodGet {
		logger.Err(nil).Int("status", http.StatusMethodNotAllowed).Msg("Only 'GET' method is allowed here")
		http.Error(w, "", http.StatusMethodNotAllowed)
		return
	}
	if err := json.NewEncoder(w).Encode(req.Registry.Info()); err != nil {
		logger.Err(err).Msg("Failed to write models list")
	}
}

// Retrain rebuilds the named model from its configuration and publishes it.
func (req *Request) Retrain(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	logger := makeRequestLogger(r)

	if r.Method != http.MethodPost {
		logger.Err(nil).Int("status", http.StatusMethodNotAllowed).Msg("Only 'POST' method is allowed here")
		http.Error(w, "", http.StatusMethodNotAllowed)
		return
	}

	entry, err := req.Registry.Retrain(r.URL.Query().Get("model"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, pipeline.ErrUnknownModel) {
			status = http.StatusNotFound
		}
		logger.Err(err).Int("status", status).Msg("Retraining failed")
		http.Error(w, err.Error(), status)
		return
	}
	logger.Info().Str("fingerprint", entry.Fingerprint()).Msg("Model retrained")
	info := struct {
		Name        string `json:"name"`
		Fingerprint string `json:"fingerprint"`
	}{entry.Name(), entry.Fingerprint()}
	_ = json.NewEncoder(w).Encode(info)
}
