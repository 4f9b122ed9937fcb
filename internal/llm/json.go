package llm

import (
	"errors"
	"strings"
)

// ErrNoJSON is returned when a model response contains no JSON object.
var ErrNoJSON = errors.New("llm: response contains no JSON object")

// ExtractJSON pulls the JSON object out of a model response. Models often
// wrap JSON in fenced markdown or lead with prose; this strips the fences
// and returns the outermost {...} span.
func ExtractJSON(text string) ([]byte, error) {
	s := strings.TrimSpace(text)

	// Strip a fenced block if the response is wrapped in one.
	if idx := strings.Index(s, "```"); idx >= 0 {
		rest := s[idx+3:]
		// Skip an optional language tag on the fence line.
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			first := strings.TrimSpace(rest[:nl])
			if first == "json" || first == "" {
				rest = rest[nl+1:]
			}
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			s = rest[:end]
		} else {
			s = rest
		}
	}

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return nil, ErrNoJSON
	}
	return []byte(s[start : end+1]), nil
}
