package sigil

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Adapter owns one wire protocol: how a signature, demonstrations, and the
// current inputs become a provider request, and how the model's completion
// becomes a validated output map. Adapters are stateless values; the same
// adapter instance serves concurrent runs.
type Adapter interface {
	// Name identifies the adapter in hooks and diagnostics.
	Name() string

	// Format builds a fresh request. Configuration problems (bad tool
	// specs, unusable field names) surface here, before any model call.
	Format(sig *Signature, inputs map[string]any, demos []Demo) (*Request, error)

	// Parse turns a completion into a validated output map, or a tagged
	// *Error describing exactly which contract the completion violated.
	Parse(sig *Signature, comp *Completion) (map[string]any, error)
}

// renderValue renders a field value for inclusion in prompt text. Strings
// pass through verbatim; everything else renders as compact JSON.
func renderValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case *History:
		return t.Transcript()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}

// fieldDoc renders one line documenting a field for format instructions.
func fieldDoc(f Field) string {
	var b strings.Builder
	b.WriteString(f.Name)
	if t := f.fieldType(); t != FieldString {
		fmt.Fprintf(&b, " (%s)", t)
	}
	if f.Description != "" {
		b.WriteString(": " + f.Description)
	}
	if len(f.OneOf) > 0 {
		fmt.Fprintf(&b, " (one of: %s)", strings.Join(f.OneOf, ", "))
	}
	if f.Typed() {
		b.WriteString(" matching schema " + f.Schema.JSON())
	}
	return b.String()
}

// collectTools gathers tool specs from tool-typed input fields. A tool field
// must hold a Tool, *Tool, or []Tool; anything else is a configuration error
// detected at format time.
func collectTools(sig *Signature, inputs map[string]any) ([]Tool, *Error) {
	var tools []Tool
	for _, f := range sig.inputs {
		if f.fieldType() != FieldTool {
			continue
		}
		v, ok := inputs[f.Name]
		if !ok {
			if f.Required {
				return nil, &Error{Tag: TagInvalidInputs, Field: f.Name, Reason: "required input missing"}
			}
			continue
		}
		switch t := v.(type) {
		case Tool:
			tools = append(tools, t)
		case *Tool:
			tools = append(tools, *t)
		case []Tool:
			tools = append(tools, t...)
		default:
			return nil, &Error{Tag: TagInvalidToolSpec, Field: f.Name,
				Reason: fmt.Sprintf("tool field holds %T, want Tool or []Tool", v)}
		}
	}
	for _, t := range tools {
		if !isIdentifier(t.Name) {
			return nil, &Error{Tag: TagInvalidToolSpec, Field: t.Name,
				Reason: "tool name must be a non-empty identifier"}
		}
	}
	return tools, nil
}

// historyFromInputs returns the value of the first history-typed input field,
// if any. A history field must hold a *History.
func historyFromInputs(sig *Signature, inputs map[string]any) (*History, *Error) {
	for _, f := range sig.inputs {
		if f.fieldType() != FieldHistory {
			continue
		}
		v, ok := inputs[f.Name]
		if !ok {
			if f.Required {
				return nil, &Error{Tag: TagInvalidInputs, Field: f.Name, Reason: "required input missing"}
			}
			continue
		}
		h, ok := v.(*History)
		if !ok {
			return nil, &Error{Tag: TagInvalidInputs, Field: f.Name,
				Reason: fmt.Sprintf("history field holds %T, want *History", v)}
		}
		return h, nil
	}
	return nil, nil
}

// checkInputs verifies that every required non-tool, non-history input has a
// value. Tool and history fields are checked by their own collectors.
func checkInputs(sig *Signature, inputs map[string]any) *Error {
	for _, f := range sig.inputs {
		switch f.fieldType() {
		case FieldTool, FieldHistory:
			continue
		}
		if _, ok := inputs[f.Name]; !ok && f.Required {
			return &Error{Tag: TagInvalidInputs, Field: f.Name, Reason: "required input missing"}
		}
	}
	return nil
}

// textInputs returns the input fields rendered as prompt text, in
// declaration order, skipping tool and history fields (those travel as
// request structure, not labels).
func textInputs(sig *Signature) []Field {
	fields := make([]Field, 0, len(sig.inputs))
	for _, f := range sig.inputs {
		switch f.fieldType() {
		case FieldTool, FieldHistory:
			continue
		}
		fields = append(fields, f)
	}
	return fields
}

// textOutputs returns the output fields expected in completion text, in
// declaration order. Tool-call outputs arrive structurally and are excluded.
func textOutputs(sig *Signature) []Field {
	fields := make([]Field, 0, len(sig.outputs))
	for _, f := range sig.outputs {
		if f.fieldType() == FieldToolCalls {
			continue
		}
		fields = append(fields, f)
	}
	return fields
}

// coerceField casts a parsed value to the field's declared shape. Typed
// fields route through the schema validator; primitives coerce then check
// the one_of constraint. Values may arrive as raw completion text (label and
// marker sections) or as decoded JSON; both shapes are accepted, but a
// decoded value is never stringified before coercion, so a JSON true for an
// integer field still fails.
func coerceField(f Field, value any) (any, *Error) {
	if f.Typed() {
		decoded := decodeIfText(f, value)
		typed, errs := ValidateValue(f.Schema, decoded)
		if len(errs) > 0 {
			return nil, validationFailed(f.Name, errs)
		}
		return typed, nil
	}

	switch f.fieldType() {
	case FieldJSON:
		return decodeIfText(f, value), nil
	case FieldToolCalls:
		return value, nil
	}

	coerced, ok := coerceScalar(f.fieldType(), value)
	if !ok {
		return nil, invalidValue(f.Name,
			fmt.Sprintf("type_coercion_failed type=%s raw=%s", f.fieldType(), compactRaw(value)))
	}
	if len(f.OneOf) > 0 {
		rendered := renderScalar(coerced)
		allowed := false
		for _, v := range f.OneOf {
			if v == rendered {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, invalidValue(f.Name,
				fmt.Sprintf("one_of_violation allowed=[%s] got=%s", strings.Join(f.OneOf, ", "), rendered))
		}
	}
	return coerced, nil
}

// decodeIfText decodes a raw text section into a JSON value when the field
// expects structure. Scalar-schema fields keep the raw string for scalar
// coercion inside the validator's caller.
func decodeIfText(f Field, value any) any {
	s, isText := value.(string)
	if !isText {
		return value
	}
	trimmed := strings.TrimSpace(s)
	if f.Typed() {
		switch f.Schema.Kind {
		case KindString:
			return trimmed
		case KindInteger, KindNumber, KindBoolean:
			if v, ok := coerceScalar(FieldType(f.Schema.Kind), trimmed); ok {
				return v
			}
			return trimmed
		}
	}
	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return s
	}
	return v
}

// coerceScalar casts to a primitive type from either a decoded JSON scalar
// or its raw text rendering.
func coerceScalar(t FieldType, value any) (any, bool) {
	switch t {
	case FieldString, "":
		switch v := value.(type) {
		case string:
			return strings.TrimSpace(v), true
		case json.Number:
			return v.String(), true
		case bool:
			return strconv.FormatBool(v), true
		case float64:
			return strconv.FormatFloat(v, 'g', -1, 64), true
		case int:
			return strconv.Itoa(v), true
		default:
			return nil, false
		}
	case FieldInt:
		switch v := value.(type) {
		case int:
			return v, true
		case float64:
			if v == float64(int(v)) {
				return int(v), true
			}
			return nil, false
		case json.Number:
			if i, err := v.Int64(); err == nil {
				return int(i), true
			}
			return nil, false
		case string:
			if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return i, true
			}
			return nil, false
		default:
			return nil, false
		}
	case FieldFloat:
		switch v := value.(type) {
		case float64:
			return v, true
		case int:
			return float64(v), true
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return f, true
			}
			return nil, false
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f, true
			}
			return nil, false
		default:
			return nil, false
		}
	case FieldBool:
		switch v := value.(type) {
		case bool:
			return v, true
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true":
				return true, true
			case "false":
				return false, true
			}
			return nil, false
		default:
			return nil, false
		}
	default:
		return nil, false
	}
}

func renderScalar(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func compactRaw(value any) string {
	s := renderValue(value)
	if len(s) > 120 {
		s = s[:120] + "..."
	}
	return strconv.Quote(s)
}

// resolveOutputs is the shared tail of every adapter's Parse: walk the
// declared output fields in order, fill tool-call outputs from the
// completion, apply defaults for absent optional fields, then coerce each
// present value. Structural absence is checked first and reports every
// missing required field at once, so adapters can distinguish a structural
// failure (fallback-eligible) from a content failure (terminal).
func resolveOutputs(sig *Signature, values map[string]any, comp *Completion) (map[string]any, *Error) {
	outputs := make(map[string]any, len(sig.outputs))
	var missing []string

	for _, f := range sig.outputs {
		if f.fieldType() == FieldToolCalls {
			if len(comp.ToolCalls) > 0 {
				outputs[f.Name] = comp.ToolCalls
			} else if f.Required {
				missing = append(missing, f.Name)
			}
			continue
		}
		if _, present := values[f.Name]; present {
			continue
		}
		switch {
		case f.Required:
			missing = append(missing, f.Name)
		case f.Default != nil:
			outputs[f.Name] = f.Default
		}
	}
	if len(missing) > 0 {
		return nil, missingOutputs(missing)
	}

	for _, f := range sig.outputs {
		raw, present := values[f.Name]
		if !present || f.fieldType() == FieldToolCalls {
			continue
		}
		coerced, cerr := coerceField(f, raw)
		if cerr != nil {
			return nil, cerr
		}
		outputs[f.Name] = coerced
	}
	return outputs, nil
}
