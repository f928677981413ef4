package hmm

import "errors"

var (
	// ErrMalformedTrainingExample is returned when an example does not carry exactly one
	// usable tag per token.
	ErrMalformedTrainingExample = errors.New("malformed training example")

	// ErrNoReachableState is returned when the decoder frontier empties before the
	// sentence ends.
	ErrNoReachableState = errors.New("no reachable state")

	// ErrInvalidModel is returned when a persisted model's tables are not valid distributions.
	ErrInvalidModel = errors.New("invalid model")
)
