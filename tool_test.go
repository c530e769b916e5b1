package sigil

import "testing"

func dispatchSignature(t *testing.T, required bool) *Signature {
	t.Helper()
	sig, err := NewSignature("dispatch", "Call the right tool for the request.",
		[]Field{
			{Name: "request", Required: true},
			{Name: "tools", Type: FieldTool},
		},
		[]Field{
			{Name: "calls", Type: FieldToolCalls, Required: required},
		},
	)
	if err != nil {
		t.Fatalf("failed to create signature: %v", err)
	}
	return sig
}

func TestToolCallOutputs(t *testing.T) {
	// A tool-use turn: structured calls, empty completion text.
	toolUse := &Completion{
		ToolCalls: []ToolCall{
			{ID: "call_1", Name: "get_weather", Arguments: `{"city": "Oslo"}`},
		},
	}

	adapters := []Adapter{DefaultAdapter{}, JSONAdapter{}, ChatAdapter{}}

	t.Run("filled_from_completion", func(t *testing.T) {
		sig := dispatchSignature(t, true)
		for _, adapter := range adapters {
			out, err := adapter.Parse(sig, toolUse)
			if err != nil {
				t.Fatalf("%s: Parse failed: %v", adapter.Name(), err)
			}
			calls, ok := out["calls"].([]ToolCall)
			if !ok || len(calls) != 1 {
				t.Fatalf("%s: unexpected calls output: %v", adapter.Name(), out["calls"])
			}
			if calls[0].Name != "get_weather" || calls[0].Arguments != `{"city": "Oslo"}` {
				t.Errorf("%s: unexpected call: %+v", adapter.Name(), calls[0])
			}
		}
	})

	t.Run("required_and_absent", func(t *testing.T) {
		sig := dispatchSignature(t, true)
		for _, adapter := range adapters {
			_, err := adapter.Parse(sig, &Completion{})
			var tagged *Error
			if !asTagged(err, &tagged) || tagged.Tag != TagMissingRequiredOutputs {
				t.Fatalf("%s: expected missing_required_outputs, got %v", adapter.Name(), err)
			}
			if len(tagged.Missing) != 1 || tagged.Missing[0] != "calls" {
				t.Errorf("%s: unexpected missing set: %v", adapter.Name(), tagged.Missing)
			}
		}
	})

	t.Run("optional_and_absent", func(t *testing.T) {
		sig := dispatchSignature(t, false)
		for _, adapter := range adapters {
			out, err := adapter.Parse(sig, &Completion{})
			if err != nil {
				t.Fatalf("%s: Parse failed: %v", adapter.Name(), err)
			}
			if _, present := out["calls"]; present {
				t.Errorf("%s: absent optional tool calls should be omitted, got %v", adapter.Name(), out["calls"])
			}
		}
	})

	t.Run("alongside_text_outputs", func(t *testing.T) {
		sig := MustSignature("dispatch", "",
			[]Field{{Name: "request", Required: true}},
			[]Field{
				{Name: "plan", Required: true},
				{Name: "calls", Type: FieldToolCalls, Required: true},
			},
		)
		comp := &Completion{
			Text:      "plan: check the forecast first",
			ToolCalls: toolUse.ToolCalls,
		}
		out, err := DefaultAdapter{}.Parse(sig, comp)
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		if out["plan"] != "check the forecast first" {
			t.Errorf("Unexpected plan: %v", out["plan"])
		}
		if calls := out["calls"].([]ToolCall); len(calls) != 1 {
			t.Errorf("Unexpected calls: %v", out["calls"])
		}
	})
}
