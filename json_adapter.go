package sigil

import (
	"fmt"
	"strings"
)

// JSONAdapter speaks strict JSON: the model must answer with a single
// top-level JSON object holding exactly the declared output keys. Parsing
// runs the repair pass, strict-decodes, then enforces the keyset rule:
// every declared output name must be present (missing names are reported
// together), and keys beyond the declared set are filtered out rather than
// treated as an error.
type JSONAdapter struct{}

// Name implements Adapter.
func (JSONAdapter) Name() string { return "json" }

// Format implements Adapter.
func (a JSONAdapter) Format(sig *Signature, inputs map[string]any, demos []Demo) (*Request, error) {
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
	sys.WriteString("Respond with a single top-level JSON object and nothing else. ")
	sys.WriteString("It must contain exactly these keys:\n")
	for _, f := range textOutputs(sig) {
		sys.WriteString("- " + fieldDoc(f) + "\n")
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
			fmt.Fprintf(&user, "%s: %s\n", f.Name, renderValue(v))
		}
	}
	messages = append(messages, Message{Role: RoleUser, Content: strings.TrimRight(user.String(), "\n")})

	return &Request{Messages: messages, Tools: tools}, nil
}

// renderDemo renders one demonstration as labeled inputs followed by the
// JSON object the model should have produced.
func (JSONAdapter) renderDemo(sig *Signature, demo Demo) string {
	var b strings.Builder
	for _, f := range textInputs(sig) {
		if v, ok := demo[f.Name]; ok {
			fmt.Fprintf(&b, "%s: %s\n", f.Name, renderValue(v))
		}
	}
	var pairs []string
	for _, f := range textOutputs(sig) {
		if v, ok := demo[f.Name]; ok {
			pairs = append(pairs, fmt.Sprintf("%q: %s", f.Name, jsonLiteral(v)))
		}
	}
	b.WriteString("{" + strings.Join(pairs, ", ") + "}\n")
	return b.String()
}

func jsonLiteral(v any) string {
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return renderValue(v)
}

// Parse implements Adapter.
func (JSONAdapter) Parse(sig *Signature, comp *Completion) (map[string]any, error) {
	// When every output arrives structurally (tool calls only), there is no
	// JSON object to decode; a tool-use turn normally carries empty text.
	if len(textOutputs(sig)) == 0 {
		out, rerr := resolveOutputs(sig, nil, comp)
		if rerr != nil {
			return nil, rerr
		}
		return out, nil
	}

	obj, derr := extractJSONObject(comp.Text)
	if derr != nil {
		return nil, derr
	}

	values := make(map[string]any, len(obj))
	var missing []string
	for _, f := range textOutputs(sig) {
		v, ok := obj[f.Name]
		if !ok {
			// Keyset rule: declared names must appear. An optional field
			// with a default is the one tolerated absence.
			if !f.Required && f.Default != nil {
				continue
			}
			missing = append(missing, f.Name)
			continue
		}
		values[f.Name] = v
	}
	if len(missing) > 0 {
		return nil, missingOutputs(missing)
	}

	out, rerr := resolveOutputs(sig, values, comp)
	if rerr != nil {
		return nil, rerr
	}
	return out, nil
}
