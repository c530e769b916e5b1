package sigil

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zoobzio/sentinel"
)

// SchemaKind is the JSON type a schema node accepts.
type SchemaKind string

// Schema kinds.
const (
	KindObject  SchemaKind = "object"
	KindArray   SchemaKind = "array"
	KindString  SchemaKind = "string"
	KindInteger SchemaKind = "integer"
	KindNumber  SchemaKind = "number"
	KindBoolean SchemaKind = "boolean"
)

// Schema is a nested type descriptor for a typed output field. It is a
// deliberately small subset of JSON Schema: enough for the validator to cast
// and check decoded values, and for adapters to restate the expected shape
// in prompts and retry feedback.
type Schema struct {
	Kind        SchemaKind
	Description string

	// Object nodes.
	Properties map[string]*Schema
	Required   []string

	// Array nodes.
	Items *Schema

	// Scalar constraints.
	Enum    []string
	Minimum *float64
	Maximum *float64
}

// Obj builds an object schema from property name/schema pairs; every
// property is required.
func Obj(props map[string]*Schema) *Schema {
	required := make([]string, 0, len(props))
	for name := range props {
		required = append(required, name)
	}
	return &Schema{Kind: KindObject, Properties: props, Required: required}
}

// Arr builds an array schema.
func Arr(items *Schema) *Schema {
	return &Schema{Kind: KindArray, Items: items}
}

// Str builds a string schema.
func Str() *Schema { return &Schema{Kind: KindString} }

// Int builds an integer schema.
func Int() *Schema { return &Schema{Kind: KindInteger} }

// Num builds a number schema.
func Num() *Schema { return &Schema{Kind: KindNumber} }

// Bool builds a boolean schema.
func Bool() *Schema { return &Schema{Kind: KindBoolean} }

// Min returns a copy of the schema with an inclusive lower bound.
func (s *Schema) Min(v float64) *Schema {
	c := *s
	c.Minimum = &v
	return &c
}

// Max returns a copy of the schema with an inclusive upper bound.
func (s *Schema) Max(v float64) *Schema {
	c := *s
	c.Maximum = &v
	return &c
}

// Optional returns a copy of the schema with the named properties removed
// from the required set. Only meaningful on object schemas.
func (s *Schema) Optional(names ...string) *Schema {
	c := *s
	c.Required = nil
	skip := make(map[string]bool, len(names))
	for _, n := range names {
		skip[n] = true
	}
	for _, r := range s.Required {
		if !skip[r] {
			c.Required = append(c.Required, r)
		}
	}
	return &c
}

// JSON renders the schema as a compact JSON Schema object string for
// inclusion in prompts and corrective retry messages.
func (s *Schema) JSON() string {
	b, err := json.Marshal(s.asMap())
	if err != nil {
		return "{}"
	}
	return string(b)
}

func (s *Schema) asMap() map[string]any {
	m := map[string]any{"type": string(s.Kind)}
	if s.Description != "" {
		m["description"] = s.Description
	}
	switch s.Kind {
	case KindObject:
		props := make(map[string]any, len(s.Properties))
		for name, p := range s.Properties {
			props[name] = p.asMap()
		}
		m["properties"] = props
		if len(s.Required) > 0 {
			m["required"] = s.Required
		}
		m["additionalProperties"] = false
	case KindArray:
		if s.Items != nil {
			m["items"] = s.Items.asMap()
		}
	}
	if len(s.Enum) > 0 {
		m["enum"] = s.Enum
	}
	if s.Minimum != nil {
		m["minimum"] = *s.Minimum
	}
	if s.Maximum != nil {
		m["maximum"] = *s.Maximum
	}
	return m
}

// SchemaOf derives an object schema from a Go struct type using sentinel
// metadata. Property names come from json tags (falling back to the
// lower-cased field name), omitempty marks a property optional, and a desc
// tag becomes the property description. Nested struct shapes are reported
// as plain objects; hand-build a Schema when deeper validation is needed.
func SchemaOf[T any]() (*Schema, error) {
	metadata := sentinel.Inspect[T]()
	if len(metadata.Fields) == 0 {
		return nil, fmt.Errorf("schema: type has no usable fields")
	}

	schema := &Schema{
		Kind:       KindObject,
		Properties: make(map[string]*Schema, len(metadata.Fields)),
	}
	for _, field := range metadata.Fields {
		name := jsonFieldName(field)
		if name == "-" {
			continue
		}
		prop := &Schema{Kind: goTypeToKind(field.Type)}
		if prop.Kind == KindArray {
			prop.Items = &Schema{Kind: goTypeToKind(strings.TrimPrefix(field.Type, "[]"))}
		}
		if desc, ok := field.Tags["desc"]; ok {
			prop.Description = desc
		}
		schema.Properties[name] = prop
		if !hasOmitempty(field) {
			schema.Required = append(schema.Required, name)
		}
	}
	if len(schema.Properties) == 0 {
		return nil, fmt.Errorf("schema: every field is excluded via json:\"-\"")
	}
	return schema, nil
}

// jsonFieldName extracts the JSON field name from metadata.
func jsonFieldName(field sentinel.FieldMetadata) string {
	if jsonTag, ok := field.Tags["json"]; ok {
		// Handle "name,omitempty" format
		parts := strings.Split(jsonTag, ",")
		if len(parts) > 0 && parts[0] != "" {
			return parts[0]
		}
	}
	return strings.ToLower(field.Name[:1]) + field.Name[1:]
}

// hasOmitempty checks if the json tag contains omitempty.
func hasOmitempty(field sentinel.FieldMetadata) bool {
	if jsonTag, ok := field.Tags["json"]; ok {
		return strings.Contains(jsonTag, "omitempty")
	}
	return false
}

// goTypeToKind maps Go types to schema kinds.
func goTypeToKind(goType string) SchemaKind {
	switch {
	case strings.HasPrefix(goType, "string"):
		return KindString
	case strings.HasPrefix(goType, "int"), strings.HasPrefix(goType, "uint"):
		return KindInteger
	case strings.HasPrefix(goType, "float"):
		return KindNumber
	case strings.HasPrefix(goType, "bool"):
		return KindBoolean
	case strings.HasPrefix(goType, "[]"):
		return KindArray
	default:
		return KindObject
	}
}
