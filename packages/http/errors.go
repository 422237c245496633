package http

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument is returned, wrapped, when a client or request cannot be
// built from the given arguments.
var ErrInvalidArgument = errors.New("invalid argument")

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// TransportError reports that no response was received.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusError reports a response whose status code is outside the client's
// acceptable range.
type StatusError struct {
	StatusCode int
	Response   *Response
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unacceptable status code %d", e.StatusCode)
}

// DecodeError reports a response body the decoder rejected.
type DecodeError struct {
	Err      error
	Response *Response
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding response: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
