package tools

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Infer derives an object schema from the argument struct T. Fields without
// omitempty are required and the jsonschema tag becomes the description.
// Extra properties are tolerated, since models sometimes add them. Infer
// panics if T cannot be described, which only happens for a broken
// argument type.
func Infer[T any]() *jsonschema.Schema {
	s, err := jsonschema.For[T](nil)
	if err != nil {
		panic(fmt.Sprintf("infer tool schema: %v", err))
	}
	s.AdditionalProperties = nil
	if s.Properties == nil {
		s.Properties = map[string]*jsonschema.Schema{}
	}
	return s
}

// WithEnum restricts the string property prop of s to values.
func WithEnum(s *jsonschema.Schema, prop string, values ...string) *jsonschema.Schema {
	p, ok := s.Properties[prop]
	if !ok {
		panic(fmt.Sprintf("tool schema has no property %q", prop))
	}
	for _, v := range values {
		p.Enum = append(p.Enum, v)
	}
	return s
}

// SchemaMap renders a schema as a plain JSON object, the form model providers
// expect for function parameters. A nil schema is an object with no
// properties.
func SchemaMap(s *jsonschema.Schema) (map[string]any, error) {
	if s == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}, nil
	}
	bts, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(bts, &out); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	if _, ok := out["properties"]; !ok {
		out["properties"] = map[string]any{}
	}
	return out, nil
}

// DecodeArgs decodes tool arguments into T.
func DecodeArgs[T any](args json.RawMessage) (T, error) {
	var v T
	if len(args) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(args, &v); err != nil {
		return v, fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	}
	return v, nil
}
