// Package corpus reads tagged training data stored as two line-aligned texts: one
// whitespace-tokenized sentence per line and, on the same line of the second text, one
// tag per token.
package corpus

import (
	"errors"
	"fmt"
	"io"

	"hmmtagger.com/postag/hmm"
	"hmmtagger.com/postag/utils"
)

var ErrMisaligned = errors.New("sentence and tag lines are not aligned")

// Read pairs the lines of sentences and tags. Example i comes from line i+1 of both.
func Read(sentences, tags io.Reader) ([]hmm.Example, error) {
	sentenceLines, err := utils.ReadLines(sentences)
	if err != nil {
		return nil, fmt.Errorf("read sentences: %w", err)
	}
	tagLines, err := utils.ReadLines(tags)
	if err != nil {
		return nil, fmt.Errorf("read tags: %w", err)
	}
	return pair(sentenceLines, tagLines)
}

func ReadFiles(sentencesPath, tagsPath string) ([]hmm.Example, error) {
	sentenceLines, err := utils.ReadList(sentencesPath)
	if err != nil {
		return nil, err
	}
	tagLines, err := utils.ReadList(tagsPath)
	if err != nil {
		return nil, err
	}
	examples, err := pair(sentenceLines, tagLines)
	if err != nil {
		return nil, fmt.Errorf("%s, %s: %w", sentencesPath, tagsPath, err)
	}
	return examples, nil
}

func pair(sentenceLines, tagLines []string) ([]hmm.Example, error) {
	if len(sentenceLines) != len(tagLines) {
		return nil, fmt.Errorf("%w: %d sentences, %d tag lines", ErrMisaligned, len(sentenceLines), len(tagLines))
	}
	examples := make([]hmm.Example, len(sentenceLines))
	for i := range sentenceLines {
		examples[i] = hmm.NewExample(sentenceLines[i], tagLines[i])
	}
	return examples, nil
}
