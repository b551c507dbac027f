package planner

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoJSON is returned when a model reply contains no parseable JSON object.
var ErrNoJSON = errors.New("no JSON object found in reply")

// ExtractObject locates the first balanced JSON object in free text and
// returns it verbatim. Reasoning models wrap structured output in prose or
// markdown fences; this strips all of that without assuming a clean reply.
func ExtractObject(text string) ([]byte, error) {
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if start < 0 {
			if c == '{' {
				start = i
				depth = 1
			}
			continue
		}
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					candidate := []byte(text[start : i+1])
					if !json.Valid(candidate) {
						return nil, fmt.Errorf("%w: candidate object is not valid JSON", ErrNoJSON)
					}
					return candidate, nil
				}
			}
		}
	}
	return nil, ErrNoJSON
}

// Decode extracts the first JSON object from text and unmarshals it into v.
func Decode(text string, v any) error {
	raw, err := ExtractObject(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode model reply: %w", err)
	}
	return nil
}
