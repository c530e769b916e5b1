package sigil

import (
	"fmt"
	"strings"
)

// ErrorTag identifies which contract a failed run violated.
type ErrorTag string

// Error tags. Parse-side tags (decode, missing outputs, invalid value,
// validation) are retryable when the signature carries typed outputs;
// transport and configuration tags are always terminal.
const (
	TagTransportError         ErrorTag = "transport_error"
	TagOutputDecodeFailed     ErrorTag = "output_decode_failed"
	TagMissingRequiredOutputs ErrorTag = "missing_required_outputs"
	TagInvalidOutputValue     ErrorTag = "invalid_output_value"
	TagOutputValidationFailed ErrorTag = "output_validation_failed"
	TagInvalidMarkerName      ErrorTag = "invalid_marker_name"
	TagInvalidToolSpec        ErrorTag = "invalid_tool_spec"
	TagInvalidSignature       ErrorTag = "invalid_signature"
	TagInvalidInputs          ErrorTag = "invalid_inputs"
)

// Decode failure reasons carried by TagOutputDecodeFailed errors.
const (
	ReasonNoJSONObject    = "no_json_object_found"
	ReasonTopLevelArray   = "top_level_array_not_allowed"
	ReasonMalformedObject = "malformed_json_object"
)

// FieldError locates a single validation violation inside a typed value.
// Path uses dotted/indexed notation ("user.emails[2]") relative to the
// output field that carried the schema.
type FieldError struct {
	Path    string
	Message string
}

func (e FieldError) String() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// Error is the tagged error type returned for every runtime failure in the
// pipeline. Callers dispatch on Tag (or use errors.As) rather than parsing
// the message.
type Error struct {
	Tag    ErrorTag
	Field  string       // Output field involved, when attributable
	Reason string       // Machine-readable detail (decode reason, coercion detail)
	Fields []FieldError // Path-scoped violations for validation failures
	Missing []string    // Missing output names for TagMissingRequiredOutputs
	Err    error        // Wrapped cause, if any
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Tag))
	if e.Field != "" {
		fmt.Fprintf(&b, " field=%s", e.Field)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	}
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, ": missing %s", strings.Join(e.Missing, ", "))
	}
	for _, fe := range e.Fields {
		fmt.Fprintf(&b, "; %s", fe.String())
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the runner may attempt a corrective retry for
// this error. Transport and configuration problems are never retryable:
// the former is not this layer's concern, the latter cannot be fixed by
// asking the model again.
func (e *Error) Retryable() bool {
	switch e.Tag {
	case TagOutputDecodeFailed, TagMissingRequiredOutputs,
		TagInvalidOutputValue, TagOutputValidationFailed:
		return true
	default:
		return false
	}
}

func transportError(err error) *Error {
	return &Error{Tag: TagTransportError, Err: err}
}

func decodeError(reason string, err error) *Error {
	return &Error{Tag: TagOutputDecodeFailed, Reason: reason, Err: err}
}

func missingOutputs(names []string) *Error {
	return &Error{Tag: TagMissingRequiredOutputs, Missing: names}
}

func invalidValue(field, reason string) *Error {
	return &Error{Tag: TagInvalidOutputValue, Field: field, Reason: reason}
}

func validationFailed(field string, errs []FieldError) *Error {
	return &Error{Tag: TagOutputValidationFailed, Field: field, Fields: errs}
}
