// Package anthropic provides an Anthropic messages-API transport for sigil.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/zoobzio/capitan"

	"github.com/sigilkit/sigil"
)

// Provider implements the sigil Provider interface for the Anthropic API.
type Provider struct {
	apiKey     string
	model      string
	version    string
	baseURL    string
	maxTokens  int
	httpClient *http.Client
	name       string
}

// Config holds configuration for the Anthropic provider.
type Config struct {
	APIKey    string
	Model     string        // e.g. "claude-sonnet-4-20250514"
	Version   string        // API version, defaults to "2023-06-01"
	BaseURL   string        // Optional, defaults to "https://api.anthropic.com/v1"
	MaxTokens int           // Optional, defaults to 4096
	Timeout   time.Duration // Optional, defaults to 30s
}

// New creates a new Anthropic provider.
func New(config Config) *Provider {
	if config.Model == "" {
		config.Model = "claude-sonnet-4-20250514"
	}
	if config.Version == "" {
		config.Version = "2023-06-01"
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.anthropic.com/v1"
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 4096
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &Provider{
		apiKey:     config.APIKey,
		model:      config.Model,
		version:    config.Version,
		baseURL:    config.BaseURL,
		maxTokens:  config.MaxTokens,
		name:       "anthropic",
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// Call sends the request's messages to Anthropic and returns the completion.
// System-role messages become the API's top-level system field.
func (p *Provider) Call(ctx context.Context, req *sigil.Request) (*sigil.Completion, error) {
	startTime := time.Now()

	capitan.Emit(ctx, sigil.ProviderCallStarted,
		sigil.ProviderKey.Field(p.name),
		sigil.ModelKey.Field(p.model),
	)

	system, turns := splitSystem(req.Messages)
	requestBody := messagesRequest{
		Model:       p.model,
		MaxTokens:   p.maxTokens,
		Temperature: req.Temperature,
		System:      system,
		Messages:    turns,
		Tools:       toWireTools(req.Tools),
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/messages", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", p.version)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		duration := time.Since(startTime)
		var errorResp errorResponse

		fields := []capitan.Field{
			sigil.ProviderKey.Field(p.name),
			sigil.ModelKey.Field(p.model),
			sigil.HTTPStatusCodeKey.Field(resp.StatusCode),
			sigil.DurationMsKey.Field(int(duration.Milliseconds())),
		}
		if err := json.Unmarshal(body, &errorResp); err == nil && errorResp.Error.Message != "" {
			fields = append(fields,
				sigil.ErrorKey.Field(errorResp.Error.Message),
				sigil.APIErrorTypeKey.Field(errorResp.Error.Type),
			)
			capitan.Emit(ctx, sigil.ProviderCallFailed, fields...)

			if resp.StatusCode == http.StatusTooManyRequests {
				return nil, fmt.Errorf("rate limit exceeded: %s", errorResp.Error.Message)
			}
			return nil, fmt.Errorf("anthropic error (%d): %s", resp.StatusCode, errorResp.Error.Message)
		}
		fields = append(fields, sigil.ErrorKey.Field(fmt.Sprintf("status %d", resp.StatusCode)))
		capitan.Emit(ctx, sigil.ProviderCallFailed, fields...)
		return nil, fmt.Errorf("anthropic error: status %d", resp.StatusCode)
	}

	var messagesResp messagesResponse
	if err := json.Unmarshal(body, &messagesResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	completion := &sigil.Completion{
		Usage: sigil.TokenUsage{
			Prompt:     messagesResp.Usage.InputTokens,
			Completion: messagesResp.Usage.OutputTokens,
			Total:      messagesResp.Usage.InputTokens + messagesResp.Usage.OutputTokens,
		},
	}
	for _, block := range messagesResp.Content {
		switch block.Type {
		case "text":
			completion.Text += block.Text
		case "tool_use":
			args, _ := json.Marshal(block.Input)
			completion.ToolCalls = append(completion.ToolCalls, sigil.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: string(args),
			})
		}
	}
	if completion.Text == "" && len(completion.ToolCalls) == 0 {
		return nil, fmt.Errorf("no content in response")
	}

	duration := time.Since(startTime)
	capitan.Emit(ctx, sigil.ProviderCallCompleted,
		sigil.ProviderKey.Field(p.name),
		sigil.ModelKey.Field(messagesResp.Model),
		sigil.PromptTokensKey.Field(completion.Usage.Prompt),
		sigil.CompletionTokensKey.Field(completion.Usage.Completion),
		sigil.TotalTokensKey.Field(completion.Usage.Total),
		sigil.DurationMsKey.Field(int(duration.Milliseconds())),
		sigil.HTTPStatusCodeKey.Field(resp.StatusCode),
	)
	return completion, nil
}

// splitSystem separates system-role messages (concatenated into the API's
// system field) from conversation turns.
func splitSystem(messages []sigil.Message) (string, []message) {
	system := ""
	turns := make([]message, 0, len(messages))
	for _, m := range messages {
		if m.Role == sigil.RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		turns = append(turns, message{Role: m.Role, Content: m.Content})
	}
	return system, turns
}

func toWireTools(tools []sigil.Tool) []tool {
	if len(tools) == 0 {
		return nil
	}
	wire := make([]tool, len(tools))
	for i, t := range tools {
		var schema json.RawMessage
		if t.Parameters != nil {
			schema = json.RawMessage(t.Parameters.JSON())
		}
		wire[i] = tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		}
	}
	return wire
}

// Request/Response types for the Anthropic API.

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float32   `json:"temperature"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
	Tools       []tool    `json:"tools,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

type messagesResponse struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Role    string    `json:"role"`
	Content []content `json:"content"`
	Model   string    `json:"model"`
	Usage   usage     `json:"usage"`
}

type content struct {
	Type  string         `json:"type"`
	Text  string         `json:"text,omitempty"`
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
