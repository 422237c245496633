// Package decode turns response bodies into values for success continuations.
package decode

import (
	"errors"
	"fmt"
	"mime"
	"strings"
)

// ErrUnacceptableContentType is returned when a response declares a content
// type the decoder does not handle, or declares none at all.
var ErrUnacceptableContentType = errors.New("unacceptable content type")

// Decoder converts a response body with the declared content type into a value.
type Decoder interface {
	Decode(body []byte, contentType string) (any, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(body []byte, contentType string) (any, error)

func (f DecoderFunc) Decode(body []byte, contentType string) (any, error) {
	return f(body, contentType)
}

// Raw returns the body bytes unchanged, whatever the content type.
var Raw Decoder = DecoderFunc(func(body []byte, _ string) (any, error) {
	out := make([]byte, len(body))
	copy(out, body)
	return out, nil
})

// mediaType extracts the lower-cased media type and its parameters.
func mediaType(contentType string) (string, map[string]string, error) {
	if strings.TrimSpace(contentType) == "" {
		return "", nil, fmt.Errorf("%w: none declared", ErrUnacceptableContentType)
	}
	mt, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %q: %v", ErrUnacceptableContentType, contentType, err)
	}
	return strings.ToLower(mt), params, nil
}
