package sigil

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorRetryable(t *testing.T) {
	cases := []struct {
		tag       ErrorTag
		retryable bool
	}{
		{TagOutputDecodeFailed, true},
		{TagMissingRequiredOutputs, true},
		{TagInvalidOutputValue, true},
		{TagOutputValidationFailed, true},
		{TagTransportError, false},
		{TagInvalidMarkerName, false},
		{TagInvalidToolSpec, false},
		{TagInvalidSignature, false},
		{TagInvalidInputs, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.tag), func(t *testing.T) {
			e := &Error{Tag: tc.tag}
			if e.Retryable() != tc.retryable {
				t.Errorf("Retryable() = %v, want %v", e.Retryable(), tc.retryable)
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	t.Run("tag_only", func(t *testing.T) {
		e := &Error{Tag: TagTransportError}
		if e.Error() != "transport_error" {
			t.Errorf("Unexpected message: %q", e.Error())
		}
	})

	t.Run("field_and_reason", func(t *testing.T) {
		e := invalidValue("confidence", "type_coercion_failed type=integer raw=\"high\"")
		msg := e.Error()
		for _, want := range []string{"invalid_output_value", "field=confidence", "type_coercion_failed"} {
			if !strings.Contains(msg, want) {
				t.Errorf("Message missing %q: %q", want, msg)
			}
		}
	})

	t.Run("missing_names", func(t *testing.T) {
		e := missingOutputs([]string{"answer", "confidence"})
		if !strings.Contains(e.Error(), "missing answer, confidence") {
			t.Errorf("Unexpected message: %q", e.Error())
		}
	})

	t.Run("validation_paths", func(t *testing.T) {
		e := validationFailed("result", []FieldError{
			{Path: "count", Message: "below minimum 0"},
			{Path: "tags[1]", Message: "expected string"},
		})
		msg := e.Error()
		for _, want := range []string{"output_validation_failed", "field=result", "count: below minimum 0", "tags[1]: expected string"} {
			if !strings.Contains(msg, want) {
				t.Errorf("Message missing %q: %q", want, msg)
			}
		}
	})

	t.Run("unwrap", func(t *testing.T) {
		cause := fmt.Errorf("connection refused")
		e := transportError(cause)
		if !errors.Is(e, cause) {
			t.Error("Expected wrapped cause to be reachable via errors.Is")
		}
		if !strings.Contains(e.Error(), "connection refused") {
			t.Errorf("Message missing cause: %q", e.Error())
		}
	})
}

func TestFieldErrorString(t *testing.T) {
	if got := (FieldError{Path: "a.b[0]", Message: "bad"}).String(); got != "a.b[0]: bad" {
		t.Errorf("Unexpected rendering: %q", got)
	}
	if got := (FieldError{Message: "bad"}).String(); got != "bad" {
		t.Errorf("Pathless rendering mismatch: %q", got)
	}
}
