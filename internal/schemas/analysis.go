// Package schemas provides JSON Schema validation for the structured
// analysis object produced by the model.
package schemas

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// analysisSchema is the strict contract for a finished analysis. Partial
// objects streamed mid-run are intentionally not held to it; only the final
// object is.
const analysisSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "VideoAnalysis",
  "type": "object",
  "additionalProperties": false,
  "required": ["sentiment", "structure", "topics", "keywords", "summary"],
  "properties": {
    "sentiment": {
      "type": "string",
      "enum": ["positive", "neutral", "negative"]
    },
    "structure": {
      "type": "object",
      "additionalProperties": false,
      "required": ["hook", "problem", "story", "payoff", "cta"],
      "properties": {
        "hook": {"type": "string"},
        "problem": {"type": "string"},
        "story": {"type": "string"},
        "payoff": {"type": "string"},
        "cta": {"type": "string"}
      }
    },
    "topics": {
      "type": "array",
      "items": {"type": "string"},
      "maxItems": 12
    },
    "keywords": {
      "type": "array",
      "items": {"type": "string"},
      "maxItems": 24
    },
    "summary": {"type": "string", "minLength": 1}
  }
}`

// ValidationError reports which fields of the document failed validation.
type ValidationError struct {
	Errors []FieldError
}

// FieldError is a single validation failure at a specific field.
type FieldError struct {
	Field   string
	Message string
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("analysis validation failed:\n")
	for i, err := range ve.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	return sb.String()
}

var (
	compileOnce sync.Once
	compiled    *gojsonschema.Schema
	compileErr  error
)

func schema() (*gojsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiled, compileErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(analysisSchema))
	})
	return compiled, compileErr
}

// ValidateAnalysis validates raw JSON against the analysis schema. It returns
// nil for a conforming document and a *ValidationError listing every failing
// field otherwise.
func ValidateAnalysis(raw []byte) error {
	s, err := schema()
	if err != nil {
		return fmt.Errorf("failed to compile analysis schema: %w", err)
	}

	result, err := s.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return &ValidationError{Errors: []FieldError{{
			Field:   "(root)",
			Message: fmt.Sprintf("document is not valid JSON: %v", err),
		}}}
	}
	if result.Valid() {
		return nil
	}

	validationErr := &ValidationError{
		Errors: make([]FieldError, 0, len(result.Errors())),
	}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		validationErr.Errors = append(validationErr.Errors, FieldError{
			Field:   field,
			Message: desc.Description(),
		})
	}
	return validationErr
}
