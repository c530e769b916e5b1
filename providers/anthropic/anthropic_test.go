package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sigilkit/sigil"
)

func TestProviderCall(t *testing.T) {
	ctx := context.Background()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Verify headers
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("Expected x-api-key header, got %s", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != "2023-06-01" {
			t.Errorf("Expected anthropic-version header, got %s", r.Header.Get("anthropic-version"))
		}

		// System message must be lifted to the top-level system field
		var req messagesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		if req.System != "be helpful" {
			t.Errorf("Expected system field 'be helpful', got %q", req.System)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("Unexpected messages: %v", req.Messages)
		}

		resp := messagesResponse{
			ID:   "msg_123",
			Type: "message",
			Role: "assistant",
			Content: []content{
				{
					Type: "text",
					Text: "test response",
				},
			},
			Model: "claude-sonnet-4-20250514",
			Usage: usage{
				InputTokens:  10,
				OutputTokens: 5,
			},
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	provider := New(Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
	})

	completion, err := provider.Call(ctx, &sigil.Request{
		Messages: []sigil.Message{
			{Role: sigil.RoleSystem, Content: "be helpful"},
			{Role: sigil.RoleUser, Content: "test prompt"},
		},
		Temperature: 0.7,
	})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}

	if completion.Text != "test response" {
		t.Errorf("Expected 'test response', got '%s'", completion.Text)
	}
	if completion.Usage.Total != 15 {
		t.Errorf("Expected 15 total tokens, got %d", completion.Usage.Total)
	}
}

func TestProviderToolUse(t *testing.T) {
	ctx := context.Background()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_456",
			"type": "message",
			"role": "assistant",
			"content": [
				{"type": "tool_use", "id": "toolu_1", "name": "lookup", "input": {"q": "go"}}
			],
			"model": "claude-sonnet-4-20250514",
			"usage": {"input_tokens": 8, "output_tokens": 4}
		}`))
	}))
	defer server.Close()

	provider := New(Config{APIKey: "test-key", BaseURL: server.URL})
	completion, err := provider.Call(ctx, &sigil.Request{
		Messages: []sigil.Message{{Role: sigil.RoleUser, Content: "look up go"}},
		Tools:    []sigil.Tool{{Name: "lookup"}},
	})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if len(completion.ToolCalls) != 1 {
		t.Fatalf("Expected 1 tool call, got %d", len(completion.ToolCalls))
	}
	if completion.ToolCalls[0].Name != "lookup" {
		t.Errorf("Unexpected tool call: %+v", completion.ToolCalls[0])
	}
	if !strings.Contains(completion.ToolCalls[0].Arguments, `"q":"go"`) {
		t.Errorf("Unexpected arguments: %s", completion.ToolCalls[0].Arguments)
	}
}

func TestProviderErrorHandling(t *testing.T) {
	tests := []struct {
		name          string
		statusCode    int
		responseBody  string
		expectedError string
	}{
		{
			name:       "Rate limit",
			statusCode: http.StatusTooManyRequests,
			responseBody: `{
				"error": {
					"type": "rate_limit_error",
					"message": "Rate limit exceeded"
				}
			}`,
			expectedError: "rate limit exceeded",
		},
		{
			name:       "API error",
			statusCode: http.StatusBadRequest,
			responseBody: `{
				"error": {
					"type": "invalid_request_error",
					"message": "Invalid request"
				}
			}`,
			expectedError: "anthropic error (400)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.statusCode)
				w.Write([]byte(tt.responseBody))
			}))
			defer server.Close()

			provider := New(Config{
				APIKey:  "test-key",
				BaseURL: server.URL,
			})

			_, err := provider.Call(ctx, &sigil.Request{
				Messages: []sigil.Message{{Role: sigil.RoleUser, Content: "test"}},
			})
			if err == nil {
				t.Fatal("Expected error")
			}
			if !strings.Contains(err.Error(), tt.expectedError) {
				t.Errorf("Expected error containing '%s', got '%s'", tt.expectedError, err.Error())
			}
		})
	}
}
