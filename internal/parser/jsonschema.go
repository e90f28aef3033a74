package parser

import (
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/gemihub/gemiflow/pkg/schema"
)

// documentSchemaJSON is the JSON Schema for the workflow document shape.
// Embedded as a constant to avoid filesystem dependencies.
const documentSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://gemihub.dev/schemas/workflow.json",
  "type": "object",
  "required": ["nodes"],
  "properties": {
    "id": { "type": "string" },
    "name": { "type": "string" },
    "nodes": {
      "type": "object",
      "minProperties": 1,
      "additionalProperties": { "$ref": "#/$defs/node" }
    },
    "edges": {
      "type": "array",
      "items": { "$ref": "#/$defs/edge" }
    }
  },
  "additionalProperties": false,
  "$defs": {
    "node": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": { "type": "string", "minLength": 1 },
        "properties": {
          "type": "object",
          "additionalProperties": { "type": ["string", "number", "boolean"] }
        }
      },
      "additionalProperties": false
    },
    "edge": {
      "type": "object",
      "required": ["from", "to"],
      "properties": {
        "from": { "type": "string", "minLength": 1 },
        "to": { "type": "string", "minLength": 1 },
        "label": { "type": "string", "enum": ["true", "false"] }
      },
      "additionalProperties": false
    }
  }
}`

// documentValidator validates decoded workflow documents against the JSON
// Schema above. Safe for concurrent use.
type documentValidator struct {
	compiled *jsonschema.Schema
}

func newDocumentValidator() (*documentValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(documentSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal document schema: %w", err)
	}
	if err := c.AddResource("https://gemihub.dev/schemas/workflow.json", doc); err != nil {
		return nil, fmt.Errorf("add document schema resource: %w", err)
	}

	compiled, err := c.Compile("https://gemihub.dev/schemas/workflow.json")
	if err != nil {
		return nil, fmt.Errorf("compile document schema: %w", err)
	}

	return &documentValidator{compiled: compiled}, nil
}

// validate checks a decoded document value (JSON-typed maps and slices).
func (v *documentValidator) validate(doc any) error {
	if err := v.compiled.Validate(doc); err != nil {
		return schema.NewErrorf(schema.ErrCodeParse, "document structure invalid: %s", err.Error()).WithCause(err)
	}
	return nil
}

// normalizeYAML converts yaml.v3 generic values (map[string]any with scalar
// ints/bools) into JSON-typed values the schema validator accepts.
func normalizeYAML(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeYAML(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprintf("%v", k)] = normalizeYAML(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeYAML(item)
		}
		return out
	case int:
		return float64(val)
	case int64:
		return float64(val)
	default:
		return v
	}
}
