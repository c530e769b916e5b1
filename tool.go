package sigil

// Tool describes one function the model may call. Tool values travel on the
// request for the provider to encode natively; this core never executes
// them.
type Tool struct {
	Name        string
	Description string
	Parameters  *Schema // Argument shape, rendered as JSON Schema
}

// ToolCall is one structured call returned by the model. Arguments are the
// raw JSON argument object text as the provider delivered it; callers decode
// against their own argument types.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}
