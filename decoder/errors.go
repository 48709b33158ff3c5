package decoder

import (
	"errors"
	"fmt"
)

// ErrUnsupportedFormat is returned by resolvers for unknown stream types.
var ErrUnsupportedFormat = errors.New("unsupported stream format")

// StreamOpenError means a stream identifier could not be resolved or opened.
type StreamOpenError struct {
	ID  string
	Err error
}

func (e *StreamOpenError) Error() string {
	return fmt.Sprintf("open stream %s: %v", e.ID, e.Err)
}

func (e *StreamOpenError) Unwrap() error {
	return e.Err
}

// DecodeError reports corruption found while decoding a stream.
type DecodeError struct {
	ID    string
	Frame int
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode stream %s at frame %d: %v", e.ID, e.Frame, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
