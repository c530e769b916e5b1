package sigil

import "fmt"

// FieldType identifies the kind of value a field carries.
type FieldType string

// Field types. The scalar types coerce from raw text or decoded JSON
// scalars; FieldJSON passes the decoded value through untouched. FieldHistory
// and FieldTool are input-only; FieldToolCalls is output-only and is filled
// from the completion's structured tool calls rather than its text.
const (
	FieldString    FieldType = "string"
	FieldInt       FieldType = "integer"
	FieldFloat     FieldType = "number"
	FieldBool      FieldType = "boolean"
	FieldJSON      FieldType = "json"
	FieldHistory   FieldType = "history"
	FieldTool      FieldType = "tool"
	FieldToolCalls FieldType = "tool_calls"
)

// Field describes one named input or output of a signature.
type Field struct {
	Name        string    // Unique within its direction; must be an identifier
	Type        FieldType // Defaults to FieldString when empty
	Required    bool
	Default     any      // Used for optional outputs absent from a parse
	OneOf       []string // Allowed values after coercion, if non-empty
	Schema      *Schema  // Nested type descriptor for typed outputs
	Description string   // Rendered into format instructions when present
}

// Typed reports whether the field carries a nested schema beyond its
// primitive type.
func (f Field) Typed() bool {
	return f.Schema != nil
}

func (f Field) fieldType() FieldType {
	if f.Type == "" {
		return FieldString
	}
	return f.Type
}

// Signature is the immutable description of one model invocation shape:
// instructions plus ordered, named input and output fields. Field order is
// significant; demonstration rendering and marker emission follow it.
//
// Signatures are created once and never mutated, so a single value is safe
// to share across concurrent runs without locking.
type Signature struct {
	name         string
	instructions string
	inputs       []Field
	outputs      []Field
}

// NewSignature builds a signature, validating that every field name is a
// non-empty identifier and unique within its direction. These are caller
// programming errors, detected before any model call can happen.
func NewSignature(name, instructions string, inputs, outputs []Field) (*Signature, error) {
	if err := checkFields("input", inputs); err != nil {
		return nil, err
	}
	if err := checkFields("output", outputs); err != nil {
		return nil, err
	}
	for _, f := range inputs {
		switch f.fieldType() {
		case FieldToolCalls:
			return nil, &Error{Tag: TagInvalidSignature,
				Field: f.Name, Reason: "tool_calls is an output-only type"}
		}
	}
	for _, f := range outputs {
		switch f.fieldType() {
		case FieldHistory, FieldTool:
			return nil, &Error{Tag: TagInvalidSignature,
				Field: f.Name, Reason: fmt.Sprintf("%s is an input-only type", f.fieldType())}
		}
	}

	sig := &Signature{
		name:         name,
		instructions: instructions,
		inputs:       make([]Field, len(inputs)),
		outputs:      make([]Field, len(outputs)),
	}
	copy(sig.inputs, inputs)
	copy(sig.outputs, outputs)
	return sig, nil
}

// MustSignature is NewSignature that panics on error, for signatures built
// from literals at package init.
func MustSignature(name, instructions string, inputs, outputs []Field) *Signature {
	sig, err := NewSignature(name, instructions, inputs, outputs)
	if err != nil {
		panic(err)
	}
	return sig
}

func checkFields(direction string, fields []Field) error {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if !isIdentifier(f.Name) {
			return &Error{Tag: TagInvalidSignature, Field: f.Name,
				Reason: direction + " field name must be a non-empty identifier"}
		}
		if seen[f.Name] {
			return &Error{Tag: TagInvalidSignature, Field: f.Name,
				Reason: "duplicate " + direction + " field name"}
		}
		seen[f.Name] = true
	}
	return nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Name returns the signature's name.
func (s *Signature) Name() string { return s.name }

// Instructions returns the task instructions.
func (s *Signature) Instructions() string { return s.instructions }

// Inputs returns a copy of the input fields in declaration order.
func (s *Signature) Inputs() []Field {
	out := make([]Field, len(s.inputs))
	copy(out, s.inputs)
	return out
}

// Outputs returns a copy of the output fields in declaration order.
func (s *Signature) Outputs() []Field {
	out := make([]Field, len(s.outputs))
	copy(out, s.outputs)
	return out
}

// Output returns the output field with the given name.
func (s *Signature) Output(name string) (Field, bool) {
	for _, f := range s.outputs {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// HasTypedOutputs reports whether any output field carries a nested schema.
// Typed signatures get strict parsing and corrective retries; untyped ones
// favor permissiveness.
func (s *Signature) HasTypedOutputs() bool {
	for _, f := range s.outputs {
		if f.Typed() {
			return true
		}
	}
	return false
}

// Demo is one worked example for a signature: input-field values plus
// output-field values, rendered as few-shot context. Demos are supplied per
// run and not retained.
type Demo map[string]any
