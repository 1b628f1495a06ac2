package generator

import (
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"strings"
)

// Model output rarely arrives as clean JSON: it gets wrapped in markdown
// fences, prefixed with prose, or sprinkled with trailing commas. The
// helpers here try progressively more forgiving extraction strategies
// before giving up.

var (
	fencedBlock    = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	trailingCommas = regexp.MustCompile(`,\s*([\]}])`)
)

// UnmarshalLenient decodes JSON from raw model output into v. It tries the
// text as-is, then the contents of a fenced code block, then the outermost
// bracket slice, cleaning each candidate before decoding.
func UnmarshalLenient(raw string, v interface{}) error {
	candidates := []string{strings.TrimSpace(raw)}

	if m := fencedBlock.FindStringSubmatch(raw); m != nil {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	if slice := outermostJSON(raw); slice != "" {
		candidates = append(candidates, slice)
	}

	var lastErr error
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		if err := json.Unmarshal([]byte(candidate), v); err == nil {
			return nil
		} else {
			lastErr = err
		}
		cleaned := CleanJSON(candidate)
		if cleaned != candidate {
			if err := json.Unmarshal([]byte(cleaned), v); err == nil {
				return nil
			} else {
				lastErr = err
			}
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no JSON found in model output")
	}
	return fmt.Errorf("failed to extract JSON: %w", lastErr)
}

// outermostJSON returns the slice between the first opening bracket and its
// matching final closing bracket, preferring an array over an object when
// the array starts first.
func outermostJSON(raw string) string {
	arrStart := strings.Index(raw, "[")
	objStart := strings.Index(raw, "{")

	start, closer := -1, byte(']')
	switch {
	case arrStart >= 0 && (objStart < 0 || arrStart < objStart):
		start = arrStart
	case objStart >= 0:
		start, closer = objStart, '}'
	default:
		return ""
	}

	end := strings.LastIndexByte(raw, closer)
	if end <= start {
		return ""
	}
	return strings.TrimSpace(raw[start : end+1])
}

// CleanJSON repairs the most common model JSON defects: trailing commas and
// HTML-escaped quotes.
func CleanJSON(s string) string {
	s = trailingCommas.ReplaceAllString(s, "$1")
	if strings.Contains(s, "&quot;") || strings.Contains(s, "&amp;") || strings.Contains(s, "&#") {
		s = html.UnescapeString(s)
	}
	return s
}

// SalvageObjects returns every balanced top-level {...} slice in raw. It is
// the last resort for a broken array whose individual objects are still
// intact.
func SalvageObjects(raw string) []string {
	var out []string
	depth, start := 0, -1
	inString, escaped := false, false
	for i, r := range raw {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					out = append(out, raw[start:i+1])
					start = -1
				}
			}
		}
	}
	return out
}

// StripCodeFences removes a surrounding markdown code fence from generated
// code, leaving fence-free output untouched.
func StripCodeFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	if m := fencedBlock.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(stripLanguageTag(m[1]))
	}
	// Unterminated fence: drop the opening line.
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		return strings.TrimSpace(trimmed[idx+1:])
	}
	return trimmed
}

// stripLanguageTag drops a leading language identifier line like "python"
// that survives fence extraction when the fence was ```python.
func stripLanguageTag(code string) string {
	idx := strings.IndexByte(code, '\n')
	if idx < 0 {
		return code
	}
	first := strings.TrimSpace(code[:idx])
	switch first {
	case "python", "py", "javascript", "typescript", "json":
		return code[idx+1:]
	}
	return code
}
