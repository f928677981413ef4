package scoring

import (
	"errors"

	"hmmtagger.com/postag/hmm"
)

// Report counts per-token agreement between decoded and reference tags.
type Report struct {
	Correct   int `json:"correct"`
	Wrong     int `json:"wrong"`
	Sentences int `json:"sentences"`
	// Sentences the decoder could not tag at all. Their tokens count as wrong.
	Unreachable int `json:"unreachable"`
	// Sentences whose reference has a different number of tags than tokens.
	Skipped int `json:"skipped"`
}

func (r Report) Tokens() int {
	return r.Correct + r.Wrong
}

func (r Report) Accuracy() float64 {
	if r.Tokens() == 0 {
		return 0
	}
	return float64(r.Correct) / float64(r.Tokens())
}

// Evaluate decodes every example and compares the result with its reference tags.
// Only ErrNoReachableState is absorbed into the report; any other decode error is returned.
func Evaluate(decoder *hmm.Decoder, examples []hmm.Example) (Report, error) {
	var report Report
	for _, ex := range examples {
		if len(ex.Tokens) != len(ex.Tags) {
			report.Skipped++
			continue
		}
		report.Sentences++
		tags, err := decoder.DecodeTokens(ex.Tokens)
		if errors.Is(err, hmm.ErrNoReachableState) {
			report.Unreachable++
			report.Wrong += len(ex.Tags)
			continue
		}
		if err != nil {
			return report, err
		}
		for i, tag := range tags {
			if tag == ex.Tags[i] {
				report.Correct++
			} else {
				report.Wrong++
			}
		}
	}
	return report, nil
}
