package helpers

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSONObject is returned when a model response holds no {...} span.
var ErrNoJSONObject = errors.New("no JSON object in response")

// ErrNoJSONValue is returned when ExtractJSON finds no decodable object or array.
var ErrNoJSONValue = errors.New("no JSON value in response")

// ExtractJSONObject pulls the JSON object out of a model response. Content of
// a ```json fence wins over a bare ``` fence; the result is the span from the
// first '{' to the last '}'.
func ExtractJSONObject(text string) (string, error) {
	cleaned := text
	if _, after, ok := strings.Cut(text, "```json"); ok {
		cleaned, _, _ = strings.Cut(after, "```")
	} else if _, after, ok := strings.Cut(text, "```"); ok {
		cleaned, _, _ = strings.Cut(after, "```")
	}
	start := strings.IndexByte(cleaned, '{')
	end := strings.LastIndexByte(cleaned, '}')
	if start < 0 || end < start {
		return "", ErrNoJSONObject
	}
	return cleaned[start : end+1], nil
}

// ExtractJSON returns the first complete JSON object or array in text, after
// unwrapping a code fence if one is present. Braces inside strings do not end
// the value.
func ExtractJSON(text string) (string, error) {
	text = strings.TrimPrefix(strings.TrimSpace(text), "\uFEFF")
	if inner, ok := unfence(text); ok {
		text = inner
	}
	for i := 0; i < len(text); i++ {
		if text[i] != '{' && text[i] != '[' {
			continue
		}
		var raw json.RawMessage
		if err := json.NewDecoder(strings.NewReader(text[i:])).Decode(&raw); err == nil {
			return string(raw), nil
		}
	}
	return "", ErrNoJSONValue
}

// unfence returns the body of the first ``` or ~~~ block, skipping any
// language tag on the opening line.
func unfence(text string) (string, bool) {
	for _, fence := range []string{"```", "~~~"} {
		_, after, ok := strings.Cut(text, fence)
		if !ok {
			continue
		}
		_, body, ok := strings.Cut(after, "\n")
		if !ok {
			return "", false
		}
		body, _, _ = strings.Cut(body, fence)
		return body, true
	}
	return "", false
}
