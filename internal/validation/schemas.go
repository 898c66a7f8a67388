package validation

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Schemas are embedded rather than loaded from disk so the binary stays
// self-contained.
const interactionToggleSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["interaction_type"],
	"properties": {
		"interaction_type": {
			"type": "string",
			"enum": ["like", "dislike"]
		}
	},
	"additionalProperties": false
}`

const interactionRecordSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["product_id", "interaction_type"],
	"properties": {
		"product_id": {
			"type": "integer",
			"minimum": 1
		},
		"interaction_type": {
			"type": "string",
			"enum": ["view", "like", "dislike", "purchase"]
		}
	},
	"additionalProperties": false
}`

// SchemaValidator validates API request bodies against JSON schemas.
type SchemaValidator struct {
	schemas map[string]*gojsonschema.Schema
}

type ValidationResult struct {
	Valid  bool
	Errors []string
}

func NewSchemaValidator() (*SchemaValidator, error) {
	sources := map[string]string{
		"interaction-toggle": interactionToggleSchema,
		"interaction-record": interactionRecordSchema,
	}

	sv := &SchemaValidator{schemas: make(map[string]*gojsonschema.Schema, len(sources))}
	for name, source := range sources {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(source))
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
		}
		sv.schemas[name] = schema
	}
	return sv, nil
}

// ValidateInteractionToggle validates a like/dislike toggle request body.
func (sv *SchemaValidator) ValidateInteractionToggle(body []byte) *ValidationResult {
	return sv.validate("interaction-toggle", body)
}

// ValidateInteractionRecord validates an interaction record request body.
func (sv *SchemaValidator) ValidateInteractionRecord(body []byte) *ValidationResult {
	return sv.validate("interaction-record", body)
}

func (sv *SchemaValidator) validate(name string, body []byte) *ValidationResult {
	schema, ok := sv.schemas[name]
	if !ok {
		return &ValidationResult{Valid: false, Errors: []string{fmt.Sprintf("unknown schema %s", name)}}
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return &ValidationResult{Valid: false, Errors: []string{err.Error()}}
	}
	if result.Valid() {
		return &ValidationResult{Valid: true}
	}

	vr := &ValidationResult{Valid: false}
	for _, desc := range result.Errors() {
		vr.Errors = append(vr.Errors, desc.String())
	}
	return vr
}
