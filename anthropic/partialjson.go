package anthropic

import (
	"encoding/json"
	"errors"
	"strings"
	"unicode"
)

var errPartialJSON = errors.New("anthropic: unparsable partial json")

// parsePartialJSON parses a possibly-truncated JSON fragment into v by
// completing it: an unterminated string is closed, open objects and arrays
// are closed in stack order, and dangling commas, colons and half-written
// literals are dropped first. A fragment that is already valid JSON parses
// exactly as json.Unmarshal would, which makes delta application idempotent:
// once the concatenation is complete, the result equals the strict parse.
func parsePartialJSON(fragment string, v any) error {
	s := strings.TrimSpace(fragment)
	if s == "" {
		return errPartialJSON
	}
	if json.Valid([]byte(s)) {
		return json.Unmarshal([]byte(s), v)
	}
	completed, ok := completeJSON(s)
	if !ok {
		return errPartialJSON
	}
	if err := json.Unmarshal([]byte(completed), v); err != nil {
		return errPartialJSON
	}
	return nil
}

// completeJSON appends the closers a truncated fragment is missing.
func completeJSON(s string) (string, bool) {
	var stack []byte
	inString := false
	escaped := false
	lastSignificant := -1

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			lastSignificant = i
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}':
			if len(stack) == 0 || stack[len(stack)-1] != '{' {
				return "", false
			}
			stack = stack[:len(stack)-1]
		case ']':
			if len(stack) == 0 || stack[len(stack)-1] != '[' {
				return "", false
			}
			stack = stack[:len(stack)-1]
		}
		if !unicode.IsSpace(rune(c)) {
			lastSignificant = i
		}
	}
	if lastSignificant < 0 {
		return "", false
	}
	s = s[:lastSignificant+1]

	if inString {
		// A trailing backslash belongs to an unfinished escape; drop it so the
		// closing quote is not swallowed.
		if escaped {
			s = s[:len(s)-1]
		}
		s += `"`
		inString = false
	}

	// Strip dangling separators and incomplete literals so the closers below
	// produce valid JSON. Trimming `{"a": tr` leaves a key-only `{"a"`, so a
	// dangling key (or key+colon) is removed along with its comma.
	s = trimDangling(s)
	if len(stack) > 0 && stack[len(stack)-1] == '{' {
		// A key with no colon yet ({"na) cannot be completed; drop it.
		s = dropBareKey(s)
		s = trimDangling(s)
	}
	if s == "" {
		return "", false
	}

	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			s += "}"
		} else {
			s += "]"
		}
	}
	return s, true
}

// trimDangling removes a trailing comma, a trailing colon with a half-written
// value, and incomplete bare literals (tru, fals, nul, 12e, -).
func trimDangling(s string) string {
	for {
		t := strings.TrimRightFunc(s, unicode.IsSpace)
		if t == "" {
			return ""
		}
		last := t[len(t)-1]
		switch {
		case last == ',':
			s = t[:len(t)-1]
			continue
		case last == ':':
			// Dangling key: remove the key string as well.
			s = trimTrailingString(t[:len(t)-1])
			continue
		case isLiteralChar(last):
			start := len(t)
			for start > 0 && isLiteralChar(t[start-1]) {
				start--
			}
			lit := t[start:]
			if lit == "true" || lit == "false" || lit == "null" || json.Valid([]byte(lit)) {
				return t
			}
			s = t[:start]
			continue
		default:
			return t
		}
	}
}

// dropBareKey removes a trailing object key that has no colon after it.
// A trailing string is a key when the significant character before it is
// "{" or ",", and a value when it is ":".
func dropBareKey(s string) string {
	t := strings.TrimRightFunc(s, unicode.IsSpace)
	if !strings.HasSuffix(t, `"`) {
		return s
	}
	stripped := trimTrailingString(t)
	if stripped == t {
		return s
	}
	prev := strings.TrimRightFunc(stripped, unicode.IsSpace)
	if prev == "" {
		return s
	}
	switch prev[len(prev)-1] {
	case '{', ',':
		return stripped
	}
	return s
}

func trimTrailingString(s string) string {
	t := strings.TrimRightFunc(s, unicode.IsSpace)
	if !strings.HasSuffix(t, `"`) {
		return t
	}
	// Walk back to the opening quote, honoring escapes.
	for i := len(t) - 2; i >= 0; i-- {
		if t[i] == '"' {
			// Count preceding backslashes.
			n := 0
			for j := i - 1; j >= 0 && t[j] == '\\'; j-- {
				n++
			}
			if n%2 == 0 {
				return t[:i]
			}
		}
	}
	return t
}

func isLiteralChar(c byte) bool {
	switch {
	case c >= '0' && c <= '9':
		return true
	case c >= 'a' && c <= 'z':
		return true
	case c == '-' || c == '+' || c == '.' || c == 'E':
		return true
	}
	return false
}
