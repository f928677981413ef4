package hmm

import (
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	t.Run("Training sentence tags itself", testDecodeTrainingSentence)
	t.Run("Input is lower-cased", testDecodeMixedCase)
	t.Run("Unseen word still gets a tag", testDecodeUnseenWord)
	t.Run("Empty sentence", testDecodeEmpty)
	t.Run("Output length equals token count", testDecodeLength)
	t.Run("Decoding is deterministic", testDecodeDeterministic)
	t.Run("Frontier collapses", testNoReachableState)
	t.Run("Path score", testPathLogProb)
	t.Run("Concurrent decodes", testConcurrentDecode)
}

func testDecodeTrainingSentence(t *testing.T) {
	model, err := Train(sampleExamples())
	require.NoError(t, err)

	tags, err := Decode(model, "the dog ran")
	require.NoError(t, err)
	require.Equal(t, []string{"DET", "N", "V"}, tags)
}

func testDecodeMixedCase(t *testing.T) {
	model, err := Train(sampleExamples())
	require.NoError(t, err)

	tags, err := Decode(model, "  The DOG\tRan ")
	require.NoError(t, err)
	require.Equal(t, []string{"DET", "N", "V"}, tags)
}

func testDecodeUnseenWord(t *testing.T) {
	model, err := Train(sampleExamples())
	require.NoError(t, err)

	tags, err := Decode(model, "a cat ran")
	require.NoError(t, err)
	require.Len(t, tags, 3)
	require.Contains(t, model.Tags(), tags[1])
	require.Equal(t, "V", tags[2])
}

func testDecodeEmpty(t *testing.T) {
	model, err := Train(sampleExamples())
	require.NoError(t, err)

	for _, sentence := range []string{"", "   ", "\n\t"} {
		tags, err := Decode(model, sentence)
		require.NoError(t, err)
		require.NotNil(t, tags)
		require.Empty(t, tags)
	}
}

func testDecodeLength(t *testing.T) {
	model, err := Train(corpusExamples())
	require.NoError(t, err)

	for _, sentence := range []string{
		"the dog",
		"a big cat sat on the old mat",
		"we ran to the dog",
		"zebras dance",
	} {
		tags, err := Decode(model, sentence)
		require.NoError(t, err, sentence)
		require.Len(t, tags, len(strings.Fields(sentence)), sentence)
		for _, tag := range tags {
			require.Contains(t, model.Tags(), tag)
		}
	}
}

func testDecodeDeterministic(t *testing.T) {
	model, err := Train(corpusExamples())
	require.NoError(t, err)
	decoder := NewDecoder(model, DefaultDecoderOptions())

	first, err := decoder.Decode("the old dog saw a big park")
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := decoder.Decode("the old dog saw a big park")
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func testNoReachableState(t *testing.T) {
	model, err := Train(sampleExamples())
	require.NoError(t, err)

	// V only ever ends a sentence, so nothing can follow it.
	_, err = Decode(model, "the dog ran fast")
	require.True(t, errors.Is(err, ErrNoReachableState), "got %v", err)
	require.Contains(t, err.Error(), "position 3")

	tags, err := Decode(model, "the dog ran")
	require.NoError(t, err)
	require.Equal(t, []string{"DET", "N", "V"}, tags)
}

func testPathLogProb(t *testing.T) {
	model, err := Train(sampleExamples())
	require.NoError(t, err)

	path, err := NewDecoder(model, DefaultDecoderOptions()).DecodePath([]string{"the", "dog", "ran"})
	require.NoError(t, err)
	require.InDelta(t, math.Log(0.25), path.LogProb, 1e-12)

	path, err = NewDecoder(model, DefaultDecoderOptions()).DecodePath([]string{"a", "cat", "ran"})
	require.NoError(t, err)
	require.InDelta(t, math.Log(0.25)+DefaultUnseenWordPenalty, path.LogProb, 1e-12)
}

func testConcurrentDecode(t *testing.T) {
	model, err := Train(corpusExamples())
	require.NoError(t, err)
	decoder := NewDecoder(model, DefaultDecoderOptions())
	want, err := decoder.Decode("the cat ran to the big park")
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([][]string, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = decoder.Decode("the cat ran to the big park")
		}(i)
	}
	wg.Wait()
	for _, got := range results {
		require.Equal(t, want, got)
	}
}

func TestDecoderOptions(t *testing.T) {
	t.Run("Unseen word penalty is configurable", testUnseenWordPenalty)
	t.Run("Endpoint ties", testEndpointTieBreak)
	t.Run("Backpointer ties", testBackpointerTieBreak)
	t.Run("Parse tie break", testParseTieBreak)
}

func testUnseenWordPenalty(t *testing.T) {
	model, err := Train([]Example{
		NewExample("the dog", "DET N"),
		NewExample("the cat", "DET N"),
		NewExample("the cow", "DET N"),
		NewExample("the pig", "DET N"),
		NewExample("the run", "DET V"),
		NewExample("the run", "DET V"),
	})
	require.NoError(t, err)

	tags, err := NewDecoder(model, DefaultDecoderOptions()).Decode("the dog")
	require.NoError(t, err)
	require.Equal(t, []string{"DET", "N"}, tags)

	lenient := DecoderOptions{UnseenWordPenalty: 0, TieBreak: TieBreakFirstSeen}
	tags, err = NewDecoder(model, lenient).Decode("the dog")
	require.NoError(t, err)
	require.Equal(t, []string{"DET", "V"}, tags)
}

func testEndpointTieBreak(t *testing.T) {
	model, err := Train([]Example{NewExample("x", "A"), NewExample("x", "B")})
	require.NoError(t, err)

	tags, err := NewDecoder(model, DecoderOptions{UnseenWordPenalty: -20, TieBreak: TieBreakFirstSeen}).Decode("x")
	require.NoError(t, err)
	require.Equal(t, []string{"A"}, tags)

	tags, err = NewDecoder(model, DecoderOptions{UnseenWordPenalty: -20, TieBreak: TieBreakLastSeen}).Decode("x")
	require.NoError(t, err)
	require.Equal(t, []string{"B"}, tags)
}

func testBackpointerTieBreak(t *testing.T) {
	model, err := Train([]Example{NewExample("x y", "A C"), NewExample("x y", "B C")})
	require.NoError(t, err)

	tags, err := NewDecoder(model, DecoderOptions{UnseenWordPenalty: -20, TieBreak: TieBreakFirstSeen}).Decode("x y")
	require.NoError(t, err)
	require.Equal(t, []string{"A", "C"}, tags)

	tags, err = NewDecoder(model, DecoderOptions{UnseenWordPenalty: -20, TieBreak: TieBreakLastSeen}).Decode("x y")
	require.NoError(t, err)
	require.Equal(t, []string{"B", "C"}, tags)
}

func testParseTieBreak(t *testing.T) {
	tb, err := ParseTieBreak("")
	require.NoError(t, err)
	require.Equal(t, TieBreakFirstSeen, tb)

	tb, err = ParseTieBreak("last_seen")
	require.NoError(t, err)
	require.Equal(t, TieBreakLastSeen, tb)
	require.Equal(t, "last_seen", tb.String())

	_, err = ParseTieBreak("random")
	require.Error(t, err)
}

func TestEmptyModel(t *testing.T) {
	model := NewTrainer().Finalize()
	require.Empty(t, model.Tags())

	_, err := Decode(model, "anything")
	require.True(t, errors.Is(err, ErrNoReachableState), "got %v", err)
}

func TestLattice(t *testing.T) {
	l := newLattice(3, 4)
	require.Equal(t, 3, l.Len())

	_, ok := l.Predecessor(1, 2)
	require.False(t, ok)

	l.set(1, 2, 3)
	l.set(2, 1, 2)
	prev, ok := l.Predecessor(1, 2)
	require.True(t, ok)
	require.Equal(t, 3, prev)

	require.Equal(t, []int{3, 2, 1}, l.backtrace(1))
}
