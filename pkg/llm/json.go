package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// thinkTagPattern matches <think>...</think> tags that may appear at the start of LLM responses.
var thinkTagPattern = regexp.MustCompile(`(?s)^[\s]*<think>.*?</think>[\s]*`)

// ExtractJSON extracts JSON content from an LLM response that may contain
// <think> tags, markdown code blocks, or other formatting.
func ExtractJSON(response string) (string, error) {
	// Strip <think>...</think> tags from the start of the response
	cleaned := thinkTagPattern.ReplaceAllString(response, "")

	// Find the first occurrence of { or [ to determine JSON type
	objStart := strings.IndexByte(cleaned, '{')
	arrStart := strings.IndexByte(cleaned, '[')

	// Try whichever comes first (or the one that exists)
	if objStart >= 0 && (arrStart < 0 || objStart < arrStart) {
		if jsonStr, ok := extractBalancedJSON(cleaned, '{', '}'); ok {
			if json.Valid([]byte(jsonStr)) {
				return jsonStr, nil
			}
		}
	}

	if arrStart >= 0 {
		if jsonStr, ok := extractBalancedJSON(cleaned, '[', ']'); ok {
			if json.Valid([]byte(jsonStr)) {
				return jsonStr, nil
			}
		}
	}

	// Last resort: check if the entire cleaned response is valid JSON
	trimmed := strings.TrimSpace(cleaned)
	if json.Valid([]byte(trimmed)) {
		return trimmed, nil
	}

	return "", fmt.Errorf("no valid JSON found in response")
}

// extractBalancedJSON finds the first balanced JSON structure starting with openChar.
// It handles nested structures by counting bracket depth.
func extractBalancedJSON(s string, openChar, closeChar byte) (string, bool) {
	start := strings.IndexByte(s, openChar)
	if start == -1 {
		return "", false
	}
	return balancedFrom(s, start, openChar, closeChar)
}

// balancedFrom returns the balanced structure opening at s[start].
func balancedFrom(s string, start int, openChar, closeChar byte) (string, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if escaped {
			escaped = false
			continue
		}

		if c == '\\' && inString {
			escaped = true
			continue
		}

		if c == '"' {
			inString = !inString
			continue
		}

		if inString {
			continue
		}

		if c == openChar {
			depth++
		} else if c == closeChar {
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}

	return "", false
}

// wrapperKeys are the object fields models use to wrap an element array,
// in order of preference.
var wrapperKeys = []string{"elements", "diagram", "items", "data"}

// ExtractJSONArray extracts the element array from a model response.
// In order it tries: the whole response as an array; a leading object that
// wraps the array under a known key such as {"elements": [...]}; the first
// balanced [...] substring whose items are objects; and the first
// non-empty balanced [...] substring. Candidates are visited in text order.
// Prose and unrelated objects before the array are skipped.
func ExtractJSONArray(response string) (json.RawMessage, error) {
	cleaned := strings.TrimSpace(thinkTagPattern.ReplaceAllString(response, ""))

	if strings.HasPrefix(cleaned, "[") && json.Valid([]byte(cleaned)) {
		return json.RawMessage(cleaned), nil
	}

	wrapper := leadingObject(cleaned)
	for _, key := range wrapperKeys {
		if raw, ok := wrapper[key]; ok && isJSONArray(raw) {
			return raw, nil
		}
	}

	var fallback json.RawMessage
	for i := 0; i < len(cleaned); i++ {
		if cleaned[i] != '[' {
			continue
		}
		candidate, ok := balancedFrom(cleaned, i, '[', ']')
		if !ok {
			continue
		}
		raw := json.RawMessage(candidate)
		if !json.Valid(raw) {
			continue
		}
		items := arrayItems(raw)
		if len(items) == 0 {
			continue
		}
		if strings.HasPrefix(strings.TrimSpace(string(items[0])), "{") {
			return raw, nil
		}
		if fallback == nil {
			fallback = raw
		}
	}
	if fallback != nil {
		return fallback, nil
	}

	return nil, fmt.Errorf("no JSON array found in response")
}

func arrayItems(raw json.RawMessage) []json.RawMessage {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	return items
}

// leadingObject decodes the first balanced {...} in s, or returns nil.
func leadingObject(s string) map[string]json.RawMessage {
	obj, ok := extractBalancedJSON(s, '{', '}')
	if !ok {
		return nil
	}
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal([]byte(obj), &wrapper); err != nil {
		return nil
	}
	return wrapper
}

func isJSONArray(raw json.RawMessage) bool {
	return strings.HasPrefix(strings.TrimSpace(string(raw)), "[")
}

// ParseJSONResponse extracts JSON from a response and unmarshals it into the target.
func ParseJSONResponse[T any](response string) (T, error) {
	var result T

	jsonStr, err := ExtractJSON(response)
	if err != nil {
		return result, err
	}

	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return result, fmt.Errorf("unmarshal JSON: %w", err)
	}

	return result, nil
}
