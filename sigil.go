// Package sigil executes typed signatures against language models.
//
// A Signature declares named, typed input and output fields for one model
// invocation shape. An Adapter turns a signature plus inputs and few-shot
// demonstrations into a provider request, and parses the model's free-text
// completion back into a validated output map. The Runner ties them together
// and retries with corrective feedback when a typed output fails to parse.
//
// Three adapters are provided, each encoding a different wire protocol:
//
//   - DefaultAdapter: "Field: value" label sections with a permissive
//     JSON-then-label parse for untyped signatures
//   - JSONAdapter: a single strict top-level JSON object
//   - ChatAdapter: [[ ## field ## ]] marker sections with a JSON fallback
//
// Basic usage:
//
//	sig, _ := sigil.NewSignature("qa", "Answer the question.",
//	    []sigil.Field{{Name: "question", Type: sigil.FieldString, Required: true}},
//	    []sigil.Field{{Name: "answer", Type: sigil.FieldString, Required: true}},
//	)
//	runner := sigil.New(openai.New(openai.Config{APIKey: key}))
//	res, err := runner.Run(ctx, sig, map[string]any{"question": "What is Go?"}, nil)
//	fmt.Println(res.Outputs["answer"])
package sigil

import "context"

// Role constants for message types.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in a conversation.
type Message struct {
	Role    string // RoleSystem, RoleUser, or RoleAssistant
	Content string // The message content
}

// Request is the provider-facing form of one model invocation.
// It is produced fresh by an adapter's Format and never mutated after
// being handed to the provider.
type Request struct {
	Messages    []Message // Chronological conversation, oldest first
	Tools       []Tool    // Tool specs the model may call, if any
	Temperature float32   // Sampling temperature for this request
}

// TokenUsage contains token counts from a provider response.
type TokenUsage struct {
	Prompt     int // Tokens used by the prompt/messages
	Completion int // Tokens used by the completion/response
	Total      int // Total tokens used
}

// Completion is the provider's answer to one request: opaque text plus
// optional structured tool calls and usage statistics.
type Completion struct {
	Text      string
	ToolCalls []ToolCall
	Usage     TokenUsage
}

// Provider defines the interface for LM transports.
// Providers accept conversation messages and return completions with usage
// stats. Messages are in chronological order (oldest first). Cancellation
// and timeouts are the provider's responsibility via ctx.
type Provider interface {
	// Call sends a request to the model and returns its completion.
	Call(ctx context.Context, req *Request) (*Completion, error)

	// Name returns the provider identifier (e.g., "openai", "anthropic").
	Name() string
}

// Temperature constants. Temperature controls the randomness of model
// responses; lower values produce more deterministic outputs.
const (
	// TemperatureUnset indicates no temperature has been explicitly set.
	// A zero-value float32 is also treated as unset for ergonomic struct
	// initialization.
	TemperatureUnset float32 = -1

	// TemperatureZero is an explicitly near-zero temperature for maximum
	// determinism. Use this instead of 0.0 since zero means "unset".
	TemperatureZero float32 = 0.0001

	// DefaultTemperature is used when neither the call nor the runner
	// specifies one. Low, since parsing favors deterministic output.
	DefaultTemperature float32 = 0.1
)
