package decode

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrSchemaMismatch is returned when a JSON body does not satisfy the schema.
var ErrSchemaMismatch = errors.New("response does not match schema")

// Schema decodes JSON like JSON and then validates the document against a
// JSON Schema, so a well-formed but unexpected payload fails.
type Schema struct {
	JSON   JSON
	schema *gojsonschema.Schema
}

// NewSchema compiles a JSON Schema document.
func NewSchema(schema []byte) (*Schema, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schema))
	if err != nil {
		return nil, fmt.Errorf("compiling schema: %w", err)
	}
	return &Schema{schema: compiled}, nil
}

func (s *Schema) Decode(body []byte, contentType string) (any, error) {
	value, err := s.JSON.Decode(body, contentType)
	if err != nil {
		return nil, err
	}
	// An empty body has nothing to validate; a literal null does.
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return value, nil
	}

	var problems []string
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return nil, fmt.Errorf("%w: %s", ErrSchemaMismatch, strings.Join(problems, "; "))
}
