package sigil

import (
	"fmt"
	"strings"
)

// ChatAdapter speaks the marker protocol: every field travels in a section
// delimited by a "[[ ## name ## ]]" marker line. The system message
// documents the expected markers; demonstrations and the current inputs are
// wrapped the same way, so the completion's shape mirrors the prompt.
//
// Parsing is marker-first. Only a structural failure — a required marker
// absent, or no markers at all — falls back to JSON-object decoding. When
// the markers are all present but a field's content fails coercion or
// validation, the model did answer in the requested shape with bad content,
// and that error is terminal.
type ChatAdapter struct{}

// Name implements Adapter.
func (ChatAdapter) Name() string { return "chat" }

func marker(name string) string {
	return "[[ ## " + name + " ## ]]"
}

// Format implements Adapter.
func (a ChatAdapter) Format(sig *Signature, inputs map[string]any, demos []Demo) (*Request, error) {
	for _, f := range sig.outputs {
		if !isIdentifier(f.Name) {
			return nil, &Error{Tag: TagInvalidMarkerName, Field: f.Name,
				Reason: "field name cannot form a section marker"}
		}
	}
	if err := checkInputs(sig, inputs); err != nil {
		return nil, err
	}
	tools, terr := collectTools(sig, inputs)
	if terr != nil {
		return nil, terr
	}
	history, herr := historyFromInputs(sig, inputs)
	if herr != nil {
		return nil, herr
	}

	var sys strings.Builder
	if sig.instructions != "" {
		sys.WriteString(sig.instructions)
		sys.WriteString("\n\n")
	}
	sys.WriteString("Your response must contain these sections, each introduced by its exact marker line:\n")
	for _, f := range textOutputs(sig) {
		fmt.Fprintf(&sys, "%s\n%s\n", marker(f.Name), fieldDoc(f))
	}

	messages := []Message{{Role: RoleSystem, Content: strings.TrimRight(sys.String(), "\n")}}
	if history != nil {
		messages = append(messages, history.Messages()...)
	}

	var user strings.Builder
	for _, demo := range demos {
		user.WriteString(a.renderDemo(sig, demo))
		user.WriteString("\n")
	}
	for _, f := range textInputs(sig) {
		if v, ok := inputs[f.Name]; ok {
			fmt.Fprintf(&user, "%s\n%s\n\n", marker(f.Name), renderValue(v))
		}
	}
	messages = append(messages, Message{Role: RoleUser, Content: strings.TrimRight(user.String(), "\n")})

	return &Request{Messages: messages, Tools: tools}, nil
}

// renderDemo wraps a demonstration's input and output values in the same
// markers the model is asked to produce, in declaration order.
func (ChatAdapter) renderDemo(sig *Signature, demo Demo) string {
	var b strings.Builder
	for _, f := range textInputs(sig) {
		if v, ok := demo[f.Name]; ok {
			fmt.Fprintf(&b, "%s\n%s\n\n", marker(f.Name), renderValue(v))
		}
	}
	for _, f := range textOutputs(sig) {
		if v, ok := demo[f.Name]; ok {
			fmt.Fprintf(&b, "%s\n%s\n\n", marker(f.Name), renderValue(v))
		}
	}
	return b.String()
}

// Parse implements Adapter.
func (ChatAdapter) Parse(sig *Signature, comp *Completion) (map[string]any, error) {
	// Tool-calls-only signatures bypass the marker protocol entirely, and a
	// missing required tool call must not degrade into a decode error via
	// the JSON fallback.
	if len(textOutputs(sig)) == 0 {
		out, merr := resolveOutputs(sig, nil, comp)
		if merr != nil {
			return nil, merr
		}
		return out, nil
	}

	values := parseMarkers(sig, comp.Text)

	out, merr := resolveOutputs(sig, values, comp)
	if merr == nil {
		return out, nil
	}
	if merr.Tag != TagMissingRequiredOutputs {
		// Structurally sound answer with bad content. No fallback.
		return nil, merr
	}

	// Structural failure: try a plain JSON object instead.
	obj, derr := extractJSONObject(comp.Text)
	if derr != nil {
		return nil, derr
	}
	fallback := make(map[string]any, len(obj))
	for _, f := range textOutputs(sig) {
		if v, ok := obj[f.Name]; ok {
			fallback[f.Name] = v
		}
	}
	out, ferr := resolveOutputs(sig, fallback, comp)
	if ferr != nil {
		return nil, ferr
	}
	return out, nil
}

// parseMarkers scans for "[[ ## name ## ]]" section markers. A section's
// content runs until the next marker line or end of text. Markers that do
// not match a declared output field are ignored; for a repeated field the
// first occurrence wins.
func parseMarkers(sig *Signature, text string) map[string]any {
	declared := make(map[string]bool, len(sig.outputs))
	for _, f := range textOutputs(sig) {
		declared[f.Name] = true
	}

	values := make(map[string]any)
	lines := strings.Split(text, "\n")
	current := ""
	var buf []string

	flush := func() {
		if current == "" {
			return
		}
		if _, taken := values[current]; !taken {
			values[current] = strings.TrimSpace(strings.Join(buf, "\n"))
		}
		current, buf = "", nil
	}

	for _, line := range lines {
		if name, ok := markerName(line); ok {
			flush()
			if declared[name] {
				current = name
			}
			continue
		}
		if current != "" {
			buf = append(buf, line)
		}
	}
	flush()
	return values
}

// markerName extracts the field name from a marker line, tolerating
// surrounding whitespace.
func markerName(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "[[") || !strings.HasSuffix(trimmed, "]]") {
		return "", false
	}
	inner := strings.TrimSpace(trimmed[2 : len(trimmed)-2])
	if !strings.HasPrefix(inner, "##") || !strings.HasSuffix(inner, "##") {
		return "", false
	}
	name := strings.TrimSpace(inner[2 : len(inner)-2])
	if !isIdentifier(name) {
		return "", false
	}
	return name, true
}
