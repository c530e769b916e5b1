package sigil

import (
	"fmt"
	"strings"
)

// DefaultAdapter speaks the label protocol: fields render as "Name: value"
// lines and the model is asked to answer in the same shape. Parsing tries a
// JSON object first, then falls back to label extraction — unless the
// signature carries typed outputs, in which case decode failure is terminal
// rather than silently degrading to untyped text.
type DefaultAdapter struct{}

// Name implements Adapter.
func (DefaultAdapter) Name() string { return "default" }

// Format implements Adapter. Everything lands in a single user message:
// instructions, the expected output format, rendered demonstrations, then
// the current inputs as labeled lines.
func (a DefaultAdapter) Format(sig *Signature, inputs map[string]any, demos []Demo) (*Request, error) {
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

	var b strings.Builder
	if sig.instructions != "" {
		b.WriteString(sig.instructions)
		b.WriteString("\n\n")
	}

	b.WriteString("Follow this exact format in your response:\n")
	for _, f := range textOutputs(sig) {
		fmt.Fprintf(&b, "%s: <%s>\n", f.Name, fieldDoc(f))
	}

	for _, demo := range demos {
		b.WriteString("\n")
		b.WriteString(a.renderDemo(sig, demo))
	}

	if history != nil && history.Len() > 0 {
		b.WriteString("\nConversation so far:\n")
		b.WriteString(history.Transcript())
		b.WriteString("\n")
	}

	b.WriteString("\n")
	for _, f := range textInputs(sig) {
		if v, ok := inputs[f.Name]; ok {
			fmt.Fprintf(&b, "%s: %s\n", f.Name, renderValue(v))
		}
	}

	return &Request{
		Messages: []Message{{Role: RoleUser, Content: strings.TrimRight(b.String(), "\n")}},
		Tools:    tools,
	}, nil
}

// renderDemo renders one demonstration as input labels followed by output
// labels, in declaration order. Fields the demo lacks are omitted.
func (DefaultAdapter) renderDemo(sig *Signature, demo Demo) string {
	var b strings.Builder
	for _, f := range textInputs(sig) {
		if v, ok := demo[f.Name]; ok {
			fmt.Fprintf(&b, "%s: %s\n", f.Name, renderValue(v))
		}
	}
	for _, f := range textOutputs(sig) {
		if v, ok := demo[f.Name]; ok {
			fmt.Fprintf(&b, "%s: %s\n", f.Name, renderValue(v))
		}
	}
	return b.String()
}

// Parse implements Adapter.
func (DefaultAdapter) Parse(sig *Signature, comp *Completion) (map[string]any, error) {
	typed := sig.HasTypedOutputs()

	// Tool-calls-only signatures have no text protocol to parse.
	if len(textOutputs(sig)) == 0 {
		out, rerr := resolveOutputs(sig, nil, comp)
		if rerr != nil {
			return nil, rerr
		}
		return out, nil
	}

	obj, derr := extractJSONObject(comp.Text)
	if derr == nil {
		values := make(map[string]any, len(obj))
		for _, f := range textOutputs(sig) {
			if v, ok := obj[f.Name]; ok {
				values[f.Name] = v
			}
		}
		if typed || allRequiredPresent(sig, values) {
			out, rerr := resolveOutputs(sig, values, comp)
			if rerr != nil {
				return nil, rerr
			}
			return out, nil
		}
		// Fall through to labels for untyped signatures; the object did
		// not cover the contract.
	} else if typed {
		return nil, derr
	}

	values := parseLabels(sig, comp.Text)
	out, rerr := resolveOutputs(sig, values, comp)
	if rerr != nil {
		return nil, rerr
	}
	return out, nil
}

func allRequiredPresent(sig *Signature, values map[string]any) bool {
	for _, f := range textOutputs(sig) {
		if f.Required {
			if _, ok := values[f.Name]; !ok {
				return false
			}
		}
	}
	return true
}

// parseLabels extracts "Field: value" sections from completion text. Label
// matching is case-insensitive and tolerates surrounding whitespace; values
// are captured verbatim until the next recognized label or end of text. For
// a repeated label the first occurrence wins, the same tie-break the marker
// protocol uses.
func parseLabels(sig *Signature, text string) map[string]any {
	byLower := make(map[string]string, len(sig.outputs))
	for _, f := range textOutputs(sig) {
		byLower[strings.ToLower(f.Name)] = f.Name
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
		if name, rest, ok := splitLabel(line, byLower); ok {
			flush()
			current = name
			buf = append(buf, rest)
			continue
		}
		if current != "" {
			buf = append(buf, line)
		}
	}
	flush()
	return values
}

func splitLabel(line string, byLower map[string]string) (name, rest string, ok bool) {
	idx := strings.Index(line, ":")
	if idx <= 0 {
		return "", "", false
	}
	label := strings.ToLower(strings.TrimSpace(line[:idx]))
	canonical, known := byLower[label]
	if !known {
		return "", "", false
	}
	return canonical, strings.TrimSpace(line[idx+1:]), true
}
