package sigil

import (
	"encoding/json"
	"testing"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name string
		text string
		want map[string]string // expected keys and rendered values
	}{
		{
			name: "plain_object",
			text: `{"answer": "x"}`,
			want: map[string]string{"answer": "x"},
		},
		{
			name: "json_fenced_block_preferred",
			text: "Here you go:\n```json\n{\"answer\": \"fenced\"}\n```\nAnd as text: {\"answer\": \"loose\"}",
			want: map[string]string{"answer": "fenced"},
		},
		{
			name: "untagged_fence_when_no_json_tag",
			text: "```\n{\"answer\": \"untagged\"}\n```",
			want: map[string]string{"answer": "untagged"},
		},
		{
			name: "json_tag_wins_over_untagged",
			text: "```\n{\"answer\": \"untagged\"}\n```\n```json\n{\"answer\": \"tagged\"}\n```",
			want: map[string]string{"answer": "tagged"},
		},
		{
			name: "brace_span_with_surrounding_prose",
			text: "Sure! The result is {\"answer\": \"spanned\"} hope that helps.",
			want: map[string]string{"answer": "spanned"},
		},
		{
			name: "trailing_comma_repaired",
			text: `{"answer": "x",}`,
			want: map[string]string{"answer": "x"},
		},
		{
			name: "single_quotes_repaired",
			text: `{'answer': 'x'}`,
			want: map[string]string{"answer": "x"},
		},
		{
			name: "trailing_comma_and_single_quotes",
			text: "{'answer': 'x', 'extra': 'y',}",
			want: map[string]string{"answer": "x", "extra": "y"},
		},
		{
			name: "escaped_single_quote_in_single_quoted_literal",
			text: `{'answer': 'it\'s fine'}`,
			want: map[string]string{"answer": "it's fine"},
		},
		{
			name: "double_quote_inside_single_quoted_literal",
			text: `{'answer': 'say "hi"'}`,
			want: map[string]string{"answer": `say "hi"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, err := extractJSONObject(tt.text)
			if err != nil {
				t.Fatalf("extractJSONObject failed: %v", err)
			}
			for key, want := range tt.want {
				got, ok := obj[key].(string)
				if !ok || got != want {
					t.Errorf("key %q: expected %q, got %v", key, want, obj[key])
				}
			}
		})
	}
}

func TestExtractJSONObjectErrors(t *testing.T) {
	t.Run("no_json_object", func(t *testing.T) {
		_, err := extractJSONObject("no braces here at all")
		if err == nil || err.Reason != ReasonNoJSONObject {
			t.Fatalf("Expected no_json_object_found, got %v", err)
		}
		if err.Tag != TagOutputDecodeFailed {
			t.Errorf("Expected output_decode_failed tag, got %s", err.Tag)
		}
	})

	t.Run("top_level_array", func(t *testing.T) {
		_, err := extractJSONObject("```json\n[1, 2, 3]\n```")
		if err == nil || err.Reason != ReasonTopLevelArray {
			t.Fatalf("Expected top_level_array_not_allowed, got %v", err)
		}
	})

	t.Run("unquoted_identifiers_stay_broken", func(t *testing.T) {
		// No guessing: bare identifiers are not repaired into strings.
		_, err := extractJSONObject(`{answer: hello}`)
		if err == nil || err.Reason != ReasonMalformedObject {
			t.Fatalf("Expected malformed_json_object, got %v", err)
		}
	})

	t.Run("quote_inside_single_quoted_literal", func(t *testing.T) {
		obj, err := extractJSONObject(`{'answer': 'say "hi"'}`)
		if err != nil {
			t.Fatalf("extractJSONObject failed: %v", err)
		}
		if obj["answer"] != `say "hi"` {
			t.Errorf("Expected escaped quote survival, got %v", obj["answer"])
		}
	})
}

func TestRepairIdempotence(t *testing.T) {
	inputs := []string{
		"{'a': 'x', 'b': [1, 2,],}",
		"```json\n{\"a\": 1}\n```",
		"prose {\"a\": \"b\"} prose",
	}
	for _, input := range inputs {
		obj, err := extractJSONObject(input)
		if err != nil {
			t.Fatalf("first pass failed for %q: %v", input, err)
		}
		rendered, merr := json.Marshal(obj)
		if merr != nil {
			t.Fatalf("marshal failed: %v", merr)
		}
		again, err := extractJSONObject(string(rendered))
		if err != nil {
			t.Fatalf("second pass failed for %q: %v", rendered, err)
		}
		rendered2, _ := json.Marshal(again)
		if string(rendered) != string(rendered2) {
			t.Errorf("Repair oscillated: %s vs %s", rendered, rendered2)
		}
	}
}
