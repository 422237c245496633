// Package charset names the character encodings a client uses to turn text
// (form bodies, multipart strings) into bytes on the wire.
package charset

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// Encoding is a named text encoding. The zero value is UTF-8.
type Encoding struct {
	name string
	enc  encoding.Encoding
}

// UTF8 is the default encoding for clients and multipart bodies.
var UTF8 = Encoding{name: "utf-8", enc: unicode.UTF8}

// Lookup resolves an encoding by its WHATWG label ("utf-8", "latin1",
// "shift_jis", ...). Labels are matched case-insensitively.
func Lookup(label string) (Encoding, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return UTF8, nil
	}

	enc, err := htmlindex.Get(label)
	if err != nil {
		return Encoding{}, fmt.Errorf("unknown string encoding %q: %w", label, err)
	}

	name, err := htmlindex.Name(enc)
	if err != nil {
		name = strings.ToLower(label)
	}

	return Encoding{name: name, enc: enc}, nil
}

// MustLookup is like Lookup but panics on unknown labels.
func MustLookup(label string) Encoding {
	e, err := Lookup(label)
	if err != nil {
		panic(err)
	}
	return e
}

// Name returns the canonical charset name, suitable for a Content-Type
// charset parameter.
func (e Encoding) Name() string {
	if e.enc == nil {
		return UTF8.name
	}
	return e.name
}

// IsUTF8 reports whether text passes through unchanged.
func (e Encoding) IsUTF8() bool {
	return e.enc == nil || e.enc == unicode.UTF8
}

// Encode converts s into bytes in this encoding. Characters the encoding
// cannot represent produce an error rather than silent replacement.
func (e Encoding) Encode(s string) ([]byte, error) {
	if e.IsUTF8() {
		return []byte(s), nil
	}
	b, err := e.enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("encoding text as %s: %w", e.Name(), err)
	}
	return b, nil
}

// Decode converts bytes in this encoding into a Go string.
func (e Encoding) Decode(b []byte) (string, error) {
	if e.IsUTF8() {
		return string(b), nil
	}
	out, err := e.enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("decoding text as %s: %w", e.Name(), err)
	}
	return string(out), nil
}

func (e Encoding) String() string {
	return e.Name()
}
