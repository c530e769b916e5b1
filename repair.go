package sigil

import (
	"encoding/json"
	"strings"
)

// extractJSONObject turns noisy completion text into a single decoded JSON
// object. The transforms are ordered and deterministic, each applied only if
// the previous state fails strict decoding:
//
//  1. candidate selection: the first ```json fenced block, else the first
//     untagged fenced block, else the substring from the first '{' to the
//     last '}'
//  2. trailing-comma removal before '}' or ']'
//  3. single-quoted string literals rewritten as double-quoted
//
// A top-level array is rejected outright; only an object is an acceptable
// payload. Running the pass on its own successful output yields the same
// object. No structure is ever guessed: missing quotes around bare
// identifiers stay broken and fail the final decode.
func extractJSONObject(text string) (map[string]any, *Error) {
	scope := text
	if block, ok := fencedBlock(text, true); ok {
		scope = block
	} else if block, ok := fencedBlock(text, false); ok {
		scope = block
	}
	if strings.HasPrefix(strings.TrimSpace(scope), "[") {
		return nil, decodeError(ReasonTopLevelArray, nil)
	}
	candidate := braceSpan(scope)
	if candidate == "" {
		return nil, decodeError(ReasonNoJSONObject, nil)
	}

	obj, err := strictDecodeObject(candidate)
	if err == nil {
		return obj, nil
	}

	repaired := stripTrailingCommas(candidate)
	if obj, err2 := strictDecodeObject(repaired); err2 == nil {
		return obj, nil
	}

	repaired = rewriteSingleQuotes(repaired)
	if obj, err3 := strictDecodeObject(repaired); err3 == nil {
		return obj, nil
	}

	return nil, decodeError(ReasonMalformedObject, err)
}

// braceSpan narrows to the substring from the first '{' to the last '}'.
func braceSpan(text string) string {
	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}
	end := strings.LastIndex(text, "}")
	if end < start {
		return ""
	}
	return text[start : end+1]
}

// fencedBlock returns the first ``` fenced block, restricted to ```json
// tagged blocks when jsonOnly is set.
func fencedBlock(text string, jsonOnly bool) (string, bool) {
	rest := text
	for {
		open := strings.Index(rest, "```")
		if open == -1 {
			return "", false
		}
		rest = rest[open+3:]
		newline := strings.Index(rest, "\n")
		if newline == -1 {
			return "", false
		}
		tag := strings.TrimSpace(rest[:newline])
		body := rest[newline+1:]
		closing := strings.Index(body, "```")
		if closing == -1 {
			return "", false
		}
		match := tag == "json"
		if !jsonOnly {
			match = tag == ""
		}
		if match {
			return strings.TrimSpace(body[:closing]), true
		}
		rest = body[closing+3:]
	}
}

func strictDecodeObject(candidate string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(candidate))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// stripTrailingCommas removes commas that directly precede a closing brace
// or bracket, outside of string literals.
func stripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\n' || s[j] == '\r') {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue // drop the comma
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// rewriteSingleQuotes replaces single-quoted string literals with
// double-quoted equivalents by literal substitution. Double quotes inside
// the literal are escaped; nothing else is inferred.
func rewriteSingleQuotes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inDouble := false
	inSingle := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inDouble:
			b.WriteByte(c)
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inDouble = false
			}
		case inSingle:
			if escaped {
				escaped = false
				// \' is not a valid escape inside a double-quoted string;
				// emit a bare quote. Any other escape passes through.
				if c == '\'' {
					b.WriteByte('\'')
				} else {
					b.WriteByte('\\')
					b.WriteByte(c)
				}
				continue
			}
			switch c {
			case '\\':
				escaped = true
			case '\'':
				inSingle = false
				b.WriteByte('"')
			case '"':
				b.WriteString(`\"`)
			default:
				b.WriteByte(c)
			}
		case c == '"':
			inDouble = true
			b.WriteByte(c)
		case c == '\'':
			inSingle = true
			b.WriteByte('"')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
