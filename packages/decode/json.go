package decode

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrInvalidJSON is returned when a body declared as JSON does not parse.
var ErrInvalidJSON = errors.New("invalid JSON")

// DefaultJSONContentTypes are accepted by a zero-value JSON decoder, along
// with any "+json" structured suffix.
var DefaultJSONContentTypes = []string{"application/json", "text/json", "text/javascript"}

// JSON decodes bodies into map[string]any, []any, string, float64, bool or
// nil. The declared content type must be acceptable; an empty body decodes
// to nil.
type JSON struct {
	// ContentTypes overrides DefaultJSONContentTypes when non-empty.
	ContentTypes []string
}

func (d JSON) Decode(body []byte, contentType string) (any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	if err := d.accept(contentType); err != nil {
		return nil, err
	}

	if !gjson.ValidBytes(body) {
		return nil, ErrInvalidJSON
	}
	return gjson.ParseBytes(body).Value(), nil
}

func (d JSON) accept(contentType string) error {
	mt, _, err := mediaType(contentType)
	if err != nil {
		return err
	}

	accepted := d.ContentTypes
	if len(accepted) == 0 {
		accepted = DefaultJSONContentTypes
		if strings.HasSuffix(mt, "+json") {
			return nil
		}
	}
	for _, ct := range accepted {
		if strings.EqualFold(ct, mt) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnacceptableContentType, mt)
}

// Get extracts the value at a gjson path (e.g. "data.users.0.name") from a
// JSON body. An empty path returns the whole document.
func Get(body []byte, path string) (any, bool) {
	if !gjson.ValidBytes(body) {
		return nil, false
	}
	if path == "" {
		return gjson.ParseBytes(body).Value(), true
	}

	result := gjson.GetBytes(body, path)
	if !result.Exists() {
		return nil, false
	}
	return result.Value(), true
}
