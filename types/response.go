package types

// TaggedSentence is the tagging result of one document line. Line is 1-based.
type TaggedSentence struct {
	Line    int      `json:"line"`
	Tokens  []string `json:"tokens"`
	Tags    []string `json:"tags,omitempty"`
	LogProb float64  `json:"log_prob"`
	Error   string   `json:"error,omitempty"`
}

type TaggingResponse struct {
	Tid              string           `json:"tid"`
	Model            string           `json:"model"`
	ModelFingerprint string           `json:"model_fingerprint"`
	Sentences        []TaggedSentence `json:"sentences"`
}

type ModelInfo struct {
	Name        string `json:"name"`
	Fingerprint string `json:"fingerprint"`
	Tags        int    `json:"tags"`
}
