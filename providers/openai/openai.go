// Package openai provides an OpenAI chat-completions transport for sigil.
package openai

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

// Provider implements the sigil Provider interface for the OpenAI API.
type Provider struct {
	apiKey     string
	model      string
	baseURL    string
	jsonMode   bool
	httpClient *http.Client
	name       string
}

// Config holds configuration for the OpenAI provider.
type Config struct {
	APIKey  string
	Model   string        // e.g. "gpt-4o", "gpt-4o-mini"
	BaseURL string        // Optional, defaults to "https://api.openai.com/v1"
	Timeout time.Duration // Optional, defaults to 30s

	// JSONMode asks the API for a guaranteed JSON object response. Enable
	// when pairing this provider with sigil.JSONAdapter.
	JSONMode bool
}

// New creates a new OpenAI provider.
func New(config Config) *Provider {
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &Provider{
		apiKey:   config.APIKey,
		model:    config.Model,
		baseURL:  config.BaseURL,
		jsonMode: config.JSONMode,
		name:     "openai",
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// Call sends the request's messages to OpenAI and returns the completion.
func (p *Provider) Call(ctx context.Context, req *sigil.Request) (*sigil.Completion, error) {
	startTime := time.Now()

	capitan.Emit(ctx, sigil.ProviderCallStarted,
		sigil.ProviderKey.Field(p.name),
		sigil.ModelKey.Field(p.model),
	)

	requestBody := chatCompletionRequest{
		Model:       p.model,
		Messages:    toWireMessages(req.Messages),
		Temperature: req.Temperature,
		Tools:       toWireTools(req.Tools),
	}
	if p.jsonMode {
		requestBody.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

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
			return nil, fmt.Errorf("openai error (%d): %s", resp.StatusCode, errorResp.Error.Message)
		}

		fields = append(fields, sigil.ErrorKey.Field(fmt.Sprintf("status %d", resp.StatusCode)))
		capitan.Emit(ctx, sigil.ProviderCallFailed, fields...)
		return nil, fmt.Errorf("openai error: status %d", resp.StatusCode)
	}

	var completionResp chatCompletionResponse
	if err := json.Unmarshal(body, &completionResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(completionResp.Choices) == 0 {
		return nil, fmt.Errorf("no response choices returned")
	}

	duration := time.Since(startTime)
	capitan.Emit(ctx, sigil.ProviderCallCompleted,
		sigil.ProviderKey.Field(p.name),
		sigil.ModelKey.Field(completionResp.Model),
		sigil.PromptTokensKey.Field(completionResp.Usage.PromptTokens),
		sigil.CompletionTokensKey.Field(completionResp.Usage.CompletionTokens),
		sigil.TotalTokensKey.Field(completionResp.Usage.TotalTokens),
		sigil.DurationMsKey.Field(int(duration.Milliseconds())),
		sigil.HTTPStatusCodeKey.Field(resp.StatusCode),
	)

	choice := completionResp.Choices[0]
	completion := &sigil.Completion{
		Text: choice.Message.Content,
		Usage: sigil.TokenUsage{
			Prompt:     completionResp.Usage.PromptTokens,
			Completion: completionResp.Usage.CompletionTokens,
			Total:      completionResp.Usage.TotalTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		completion.ToolCalls = append(completion.ToolCalls, sigil.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return completion, nil
}

func toWireMessages(messages []sigil.Message) []message {
	wire := make([]message, len(messages))
	for i, m := range messages {
		wire[i] = message{Role: m.Role, Content: m.Content}
	}
	return wire
}

func toWireTools(tools []sigil.Tool) []tool {
	if len(tools) == 0 {
		return nil
	}
	wire := make([]tool, len(tools))
	for i, t := range tools {
		var params json.RawMessage
		if t.Parameters != nil {
			params = json.RawMessage(t.Parameters.JSON())
		}
		wire[i] = tool{
			Type: "function",
			Function: toolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		}
	}
	return wire
}

// Request/Response types for the OpenAI API.

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []message       `json:"messages"`
	Temperature    float32         `json:"temperature"`
	Tools          []tool          `json:"tools,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type message struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []toolCall `json:"tool_calls,omitempty"`
}

type tool struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type toolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type toolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []choice `json:"choices"`
	Usage   usage    `json:"usage"`
}

type choice struct {
	Index        int     `json:"index"`
	Message      message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}
