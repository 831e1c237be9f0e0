package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"reviewtrends/internal/domain"
)

const snippetLen = 200

var fencedJSONRe = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// ExtractJSON pulls a JSON document out of a model response. It tries the
// whole text, then a fenced code block, then the widest {...} or [...] span.
func ExtractJSON(text string) ([]byte, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, &domain.ParseError{Err: errors.New("empty response")}
	}

	if json.Valid([]byte(trimmed)) {
		return []byte(trimmed), nil
	}

	if m := fencedJSONRe.FindStringSubmatch(trimmed); m != nil {
		candidate := strings.TrimSpace(m[1])
		if json.Valid([]byte(candidate)) {
			return []byte(candidate), nil
		}
	}

	if candidate, ok := embeddedJSON(trimmed); ok {
		return candidate, nil
	}

	return nil, &domain.ParseError{
		Snippet: domain.Truncate(trimmed, snippetLen),
		Err:     errors.New("no JSON found in response"),
	}
}

// DecodeJSON extracts JSON from text and unmarshals it into v.
func DecodeJSON(text string, v any) error {
	raw, err := ExtractJSON(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &domain.ParseError{Snippet: domain.Truncate(string(raw), snippetLen), Err: err}
	}
	return nil
}

// embeddedJSON tries the span from the first opening bracket to the last
// matching closing bracket, object or array, whichever opens first.
func embeddedJSON(text string) ([]byte, bool) {
	type pair struct{ open, close byte }
	pairs := []pair{{'{', '}'}, {'[', ']'}}
	objStart := strings.IndexByte(text, '{')
	arrStart := strings.IndexByte(text, '[')
	if arrStart >= 0 && (objStart < 0 || arrStart < objStart) {
		pairs[0], pairs[1] = pairs[1], pairs[0]
	}
	for _, p := range pairs {
		start := strings.IndexByte(text, p.open)
		end := strings.LastIndexByte(text, p.close)
		if start < 0 || end <= start {
			continue
		}
		candidate := bytes.TrimSpace([]byte(text[start : end+1]))
		if json.Valid(candidate) {
			return candidate, true
		}
	}
	return nil, false
}

// withProvider stamps the provider name onto a ParseError.
func withProvider(err error, provider string) error {
	var pe *domain.ParseError
	if errors.As(err, &pe) && pe.Provider == "" {
		pe.Provider = provider
	}
	return err
}
