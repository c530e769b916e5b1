package sigil

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func typedCountSignature(t *testing.T) *Signature {
	t.Helper()
	sig, err := NewSignature("count", "Count the items.",
		[]Field{{Name: "items", Required: true}},
		[]Field{{Name: "result", Required: true, Schema: Obj(map[string]*Schema{"count": Int().Min(0)})}},
	)
	if err != nil {
		t.Fatalf("failed to create signature: %v", err)
	}
	return sig
}

func TestRunnerRun(t *testing.T) {
	t.Run("success_first_attempt", func(t *testing.T) {
		provider := NewMockProvider("answer: hi\nconfidence: 7")
		runner := New(provider)

		res, err := runner.Run(context.Background(), qaSignature(t), map[string]any{"question": "hello?"}, nil)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if res.Outputs["answer"] != "hi" || res.Outputs["confidence"] != 7 {
			t.Errorf("Unexpected outputs: %v", res.Outputs)
		}
		if res.Attempts != 1 {
			t.Errorf("Expected 1 attempt, got %d", res.Attempts)
		}
		if provider.Calls() != 1 {
			t.Errorf("Expected 1 provider call, got %d", provider.Calls())
		}
	})

	t.Run("nil_signature", func(t *testing.T) {
		runner := New(NewMockProvider("x"))
		_, err := runner.Run(context.Background(), nil, nil, nil)
		var tagged *Error
		if !errors.As(err, &tagged) || tagged.Tag != TagInvalidSignature {
			t.Fatalf("Expected invalid_signature, got %v", err)
		}
	})

	t.Run("transport_error_not_retried", func(t *testing.T) {
		provider := NewMockProvider(`{"result": {"count": 1}}`)
		provider.SetAvailable(false)
		runner := New(provider)

		_, err := runner.Run(context.Background(), typedCountSignature(t),
			map[string]any{"items": "a b c"}, nil, WithMaxRetries(5))
		var tagged *Error
		if !errors.As(err, &tagged) || tagged.Tag != TagTransportError {
			t.Fatalf("Expected transport_error, got %v", err)
		}
		if provider.Calls() != 0 {
			t.Errorf("Unavailable provider should record no served calls, got %d", provider.Calls())
		}
	})

	t.Run("format_error_aborts_before_any_call", func(t *testing.T) {
		provider := NewMockProvider("irrelevant")
		runner := New(provider)

		sig := MustSignature("tooling", "",
			[]Field{{Name: "helper", Type: FieldTool}},
			[]Field{{Name: "answer", Required: true}},
		)
		_, err := runner.Run(context.Background(), sig, map[string]any{"helper": 42}, nil)
		var tagged *Error
		if !errors.As(err, &tagged) || tagged.Tag != TagInvalidToolSpec {
			t.Fatalf("Expected invalid_tool_spec, got %v", err)
		}
		if provider.Calls() != 0 {
			t.Errorf("Format errors must not reach the provider, got %d calls", provider.Calls())
		}
	})
}

func TestRunnerRetry(t *testing.T) {
	t.Run("retry_then_success", func(t *testing.T) {
		provider := NewMockProviderScript(
			`{"result": {"count": -1}}`,
			`{"result": {"count": 3}}`,
		)
		runner := New(provider)

		res, err := runner.Run(context.Background(), typedCountSignature(t),
			map[string]any{"items": "a b c"}, nil,
			WithAdapter(JSONAdapter{}), WithMaxRetries(1))
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		typed := res.Outputs["result"].(map[string]any)
		if typed["count"] != 3 {
			t.Errorf("Unexpected result: %v", typed)
		}
		if provider.Calls() != 2 {
			t.Errorf("Expected exactly 2 provider calls, got %d", provider.Calls())
		}
		if res.Attempts != 2 {
			t.Errorf("Expected 2 attempts, got %d", res.Attempts)
		}
		if res.Usage.Total != 30 {
			t.Errorf("Usage should sum across attempts, got %d", res.Usage.Total)
		}
	})

	t.Run("corrective_message_augments_context", func(t *testing.T) {
		provider := NewMockProviderScript(
			`{"result": {"count": -1}}`,
			`{"result": {"count": 3}}`,
		)
		runner := New(provider)

		_, err := runner.Run(context.Background(), typedCountSignature(t),
			map[string]any{"items": "a b c"}, nil,
			WithAdapter(JSONAdapter{}), WithMaxRetries(1))
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		first := provider.Request(0)
		second := provider.Request(1)
		if second == nil {
			t.Fatal("Expected a second request")
		}
		// Original context preserved, two messages appended.
		if len(second.Messages) != len(first.Messages)+2 {
			t.Fatalf("Expected prior messages + assistant + corrective, got %d vs %d",
				len(second.Messages), len(first.Messages))
		}
		for i, m := range first.Messages {
			if second.Messages[i] != m {
				t.Errorf("Original message %d was altered on retry", i)
			}
		}
		assistant := second.Messages[len(second.Messages)-2]
		if assistant.Role != RoleAssistant || !strings.Contains(assistant.Content, `"count": -1`) {
			t.Errorf("Prior completion missing from retry context: %v", assistant)
		}
		corrective := second.Messages[len(second.Messages)-1]
		if corrective.Role != RoleUser {
			t.Errorf("Corrective message should be a user turn, got %s", corrective.Role)
		}
		for _, want := range []string{"could not be accepted", "output_validation_failed", "minimum", `"type":"object"`} {
			if !strings.Contains(corrective.Content, want) {
				t.Errorf("Corrective message missing %q:\n%s", want, corrective.Content)
			}
		}
	})

	t.Run("bound_exhaustion_exact_call_count", func(t *testing.T) {
		// A model that never produces valid typed output: bound N means
		// exactly N+1 calls, then the terminal validation error.
		for _, bound := range []int{0, 1, 3} {
			provider := NewMockProvider(`{"result": {"count": -1}}`)
			runner := New(provider)

			_, err := runner.Run(context.Background(), typedCountSignature(t),
				map[string]any{"items": "x"}, nil,
				WithAdapter(JSONAdapter{}), WithMaxRetries(bound))
			var tagged *Error
			if !errors.As(err, &tagged) || tagged.Tag != TagOutputValidationFailed {
				t.Fatalf("bound %d: expected output_validation_failed, got %v", bound, err)
			}
			if provider.Calls() != bound+1 {
				t.Errorf("bound %d: expected %d calls, got %d", bound, bound+1, provider.Calls())
			}
		}
	})

	t.Run("untyped_signature_never_retries", func(t *testing.T) {
		provider := NewMockProvider("no labels here")
		runner := New(provider)

		_, err := runner.Run(context.Background(), qaSignature(t),
			map[string]any{"question": "?"}, nil, WithMaxRetries(3))
		var tagged *Error
		if !errors.As(err, &tagged) || tagged.Tag != TagMissingRequiredOutputs {
			t.Fatalf("Expected missing_required_outputs, got %v", err)
		}
		if provider.Calls() != 1 {
			t.Errorf("Untyped signature must not retry, got %d calls", provider.Calls())
		}
	})

	t.Run("decode_failure_retryable_for_typed", func(t *testing.T) {
		provider := NewMockProviderScript(
			"no json at all",
			`{"result": {"count": 2}}`,
		)
		runner := New(provider)

		res, err := runner.Run(context.Background(), typedCountSignature(t),
			map[string]any{"items": "x"}, nil,
			WithAdapter(JSONAdapter{}), WithMaxRetries(1))
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if provider.Calls() != 2 {
			t.Errorf("Expected 2 calls, got %d", provider.Calls())
		}
		if res.Outputs["result"].(map[string]any)["count"] != 2 {
			t.Errorf("Unexpected outputs: %v", res.Outputs)
		}
	})
}

func TestRunnerAdapterSelection(t *testing.T) {
	markerResponse := "[[ ## answer ## ]]\nhi\n\n[[ ## confidence ## ]]\n7"

	t.Run("per_call_override", func(t *testing.T) {
		provider := NewMockProvider(markerResponse)
		runner := New(provider)

		res, err := runner.Run(context.Background(), qaSignature(t),
			map[string]any{"question": "?"}, nil, WithAdapter(ChatAdapter{}))
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if res.Outputs["confidence"] != 7 {
			t.Errorf("Unexpected outputs: %v", res.Outputs)
		}
		// ChatAdapter emits a system message; the Default adapter would not.
		if provider.LastRequest().Messages[0].Role != RoleSystem {
			t.Error("Per-call adapter override was not used")
		}
	})

	t.Run("process_default", func(t *testing.T) {
		SetDefaultAdapter(ChatAdapter{})
		defer SetDefaultAdapter(nil)

		provider := NewMockProvider(markerResponse)
		runner := New(provider)
		res, err := runner.Run(context.Background(), qaSignature(t),
			map[string]any{"question": "?"}, nil)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if res.Outputs["answer"] != "hi" {
			t.Errorf("Unexpected outputs: %v", res.Outputs)
		}
		if provider.LastRequest().Messages[0].Role != RoleSystem {
			t.Error("Process default adapter was not used")
		}
	})

	t.Run("builtin_default", func(t *testing.T) {
		provider := NewMockProvider("answer: plain\nconfidence: 1")
		runner := New(provider)
		res, err := runner.Run(context.Background(), qaSignature(t),
			map[string]any{"question": "?"}, nil)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if res.Outputs["answer"] != "plain" {
			t.Errorf("Unexpected outputs: %v", res.Outputs)
		}
	})
}

func TestRunnerDemosAndTemperature(t *testing.T) {
	provider := NewMockProvider("answer: hi\nconfidence: 1")
	runner := New(provider)

	_, err := runner.Run(context.Background(), qaSignature(t),
		map[string]any{"question": "current?"},
		[]Demo{{"question": "past?", "answer": "done", "confidence": 2}},
		WithTemperature(0.7))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	req := provider.LastRequest()
	if req.Temperature != 0.7 {
		t.Errorf("Expected temperature 0.7, got %f", req.Temperature)
	}
	if !strings.Contains(req.Messages[0].Content, "past?") {
		t.Error("Demo missing from formatted request")
	}
}

func TestRunnerTransportOptions(t *testing.T) {
	t.Run("timeout_applies", func(t *testing.T) {
		slow := NewMockProviderWithCallback(func(*Request) (*Completion, error) {
			time.Sleep(50 * time.Millisecond)
			return &Completion{Text: "answer: hi\nconfidence: 1"}, nil
		})
		runner := New(slow, WithTimeout(time.Second))

		_, err := runner.Run(context.Background(), qaSignature(t),
			map[string]any{"question": "?"}, nil)
		if err != nil {
			t.Fatalf("Run failed under generous timeout: %v", err)
		}
	})

	t.Run("fallback_transport", func(t *testing.T) {
		primary := NewMockProvider("x")
		primary.SetAvailable(false)
		secondary := New(NewMockProvider("answer: saved\nconfidence: 1"))

		runner := New(primary, WithFallback(secondary))
		res, err := runner.Run(context.Background(), qaSignature(t),
			map[string]any{"question": "?"}, nil)
		if err != nil {
			t.Fatalf("Run failed despite fallback: %v", err)
		}
		if res.Outputs["answer"] != "saved" {
			t.Errorf("Unexpected outputs: %v", res.Outputs)
		}
	})
}
