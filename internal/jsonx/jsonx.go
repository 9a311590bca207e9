// Package jsonx extracts structured JSON from LLM-generated text.
// Models frequently wrap their JSON answer in prose, markdown fences, or
// trailing commentary; Extract tolerates all of that by locating the first
// '{' and the last '}' in the raw text and parsing the substring between
// them. Every call site supplies its own fallback behaviour — a failed
// extraction is an expected condition, not an error to propagate.
package jsonx

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// trailingComma matches a comma immediately preceding a closing brace or
// bracket, the most common malformation in model-emitted JSON.
var trailingComma = regexp.MustCompile(`,(\s*[}\]])`)

// ErrNoJSON is returned when the input contains no brace-delimited region.
var ErrNoJSON = fmt.Errorf("jsonx: no JSON object found in text")

// Extract locates the outermost brace-delimited substring of raw and
// unmarshals it into v. Surrounding prose is ignored. If the substring is
// not valid JSON, a second parse is attempted with trailing commas
// stripped. Returns ErrNoJSON when raw contains no '{' … '}' region.
func Extract(raw string, v any) error {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end <= start {
		return ErrNoJSON
	}

	candidate := raw[start : end+1]
	if err := json.Unmarshal([]byte(candidate), v); err == nil {
		return nil
	}

	cleaned := trailingComma.ReplaceAllString(candidate, "$1")
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return fmt.Errorf("jsonx: parse extracted object: %w", err)
	}
	return nil
}
