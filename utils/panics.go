package utils

import (
	"errors"
	"fmt"
)

var ErrPanic = errors.New("recovered panic")

// RecoverWithError stores a panic of the deferring function in *err. A panic value that is
// an error stays reachable with errors.Is and errors.As.
func RecoverWithError(err *error) {
	rv := recover()
	if rv == nil {
		return
	}
	if panicErr, ok := rv.(error); ok {
		*err = fmt.Errorf("%w: %w", ErrPanic, panicErr)
		return
	}
	*err = fmt.Errorf("%w: %v", ErrPanic, rv)
}
