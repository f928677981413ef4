package pipeline

import (
	"encoding/json"
	"strings"
	"sync"

	"hmmtagger.com/postag/hmm"
	"hmmtagger.com/postag/logger"
	"hmmtagger.com/postag/types"
)

// New returns a pipeline tagging each request with the registry model it names. Every
// non-blank line of the request text is one sentence.
func New(registry *Registry) Pipeline {
	pplnLogger := logger.NewLogger("Tagging pipeline")

	return func(request Request) <-chan Result {
		resultChan := make(chan Result, 1)
		reqLogger := pplnLogger.With().
			Str("tid", request.Tid).
			Str("model", request.Model).
			Logger()

		go func() {
			defer close(resultChan)
			entry, err := registry.Get(request.Model)
			if err != nil {
				reqLogger.Err(err).Msg("Failed to select model")
				resultChan <- Result{Err: err}
				return
			}
			reqLogger.Info().Str("fingerprint", entry.Fingerprint()).Msg("Started tagging")

			sentences := TagText(entry.Decoder, request.Text)
			failed := 0
			for _, sent := range sentences {
				if len(sent.Error) > 0 {
					failed++
				}
			}
			response := types.TaggingResponse{
				Tid:              request.Tid,
				Model:            entry.Name(),
				ModelFingerprint: entry.Fingerprint(),
				Sentences:        sentences,
			}
			buf, err := json.Marshal(response)
			if err != nil {
				reqLogger.Err(err).Msg("Failed to marshal response")
				resultChan <- Result{Err: err}
				return
			}
			reqLogger.Info().
				Int("sentences", len(sentences)).
				Int("failed_sentences", failed).
				Msg("Finished tagging")
			resultChan <- Result{Data: string(buf)}
		}()

		return resultChan
	}
}

// TagText decodes every non-blank line of text concurrently. Sentences the decoder cannot
// tag carry the error instead of tags; the rest of the document is unaffected.
func TagText(decoder *hmm.Decoder, text string) []types.TaggedSentence {
	lines := strings.Split(text, "\n")
	sentences := make([]types.TaggedSentence, 0, len(lines))
	for i, line := range lines {
		tokens := strings.Fields(line)
		if len(tokens) == 0 {
			continue
		}
		sentences = append(sentences, types.TaggedSentence{Line: i + 1, Tokens: tokens})
	}

	var wg sync.WaitGroup
	for i := range sentences {
		wg.Add(1)
		go func(sent *types.TaggedSentence) {
			defer wg.Done()
			path, err := decoder.DecodePath(sent.Tokens)
			if err != nil {
				sent.Error = err.Error()
				return
			}
			sent.Tags = path.Tags
			sent.LogProb = path.LogProb
		}(&sentences[i])
	}
	wg.Wait()

	return sentences
}
