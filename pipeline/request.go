package pipeline

type Request struct {
	Text  string `json:"text"`
	Tid   string `json:"tid"`
	Model string `json:"model"`
}

// Result carries either the JSON encoded types.TaggingResponse or the error that
// prevented tagging.
type Result struct {
	Data string
	Err  error
}

type Pipeline func(request Request) <-chan Result
