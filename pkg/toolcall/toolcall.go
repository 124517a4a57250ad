// Package toolcall recovers tool invocations from free-text model replies.
//
// Models are instructed to answer with a bare JSON object when they want a
// plugin to run, but in practice the object arrives wrapped in prose, in a
// fenced code block, or as one element of an array. Parse handles all of
// those shapes; anything it cannot interpret is ordinary chat.
package toolcall

import (
	"encoding/json"
	"strings"
)

// FunctionCall is a parsed tool invocation.
type FunctionCall struct {
	Name      string         `json:"function"`
	Arguments map[string]any `json:"arguments"`
}

// Parse interprets a model reply as a function call.
//
// It tries, in order: the whole reply as JSON, then the first balanced JSON
// object Extract finds inside it. A parsed object must carry a non-empty
// "function" key; a parsed array yields the first element that does.
// Returns false when the reply is plain chat.
func Parse(reply string) (*FunctionCall, bool) {
	var value any
	if err := json.Unmarshal([]byte(reply), &value); err != nil {
		candidate, ok := Extract(reply)
		if !ok {
			return nil, false
		}
		if err := json.Unmarshal([]byte(candidate), &value); err != nil {
			return nil, false
		}
	}

	switch v := value.(type) {
	case map[string]any:
		return callFromObject(v)
	case []any:
		for _, elem := range v {
			obj, ok := elem.(map[string]any)
			if !ok {
				continue
			}
			if call, ok := callFromObject(obj); ok {
				return call, true
			}
		}
	}
	return nil, false
}

// callFromObject converts a decoded JSON object into a FunctionCall.
func callFromObject(obj map[string]any) (*FunctionCall, bool) {
	name, _ := obj["function"].(string)
	if name == "" {
		return nil, false
	}
	args, _ := obj["arguments"].(map[string]any)
	if args == nil {
		args = map[string]any{}
	}
	return &FunctionCall{Name: name, Arguments: args}, true
}

// Extract finds the first parseable JSON object embedded in text.
//
// A single surrounding code fence (``` or ```json) is stripped first. The
// scan then walks the text counting brace depth; each time depth returns to
// zero the spanned substring is tried as JSON, and the first one that
// parses wins. Braces inside string literals are counted naively — a
// candidate mis-split that way fails to parse and the scan simply moves on,
// which matches the behavior every front end has relied on so far.
func Extract(text string) (string, bool) {
	text = stripFence(text)

	depth := 0
	start := -1
	for i, r := range text {
		switch r {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				candidate := text[start : i+1]
				if json.Valid([]byte(candidate)) {
					return candidate, true
				}
				start = -1
			}
		}
	}
	return "", false
}

// stripFence removes one matching pair of leading/trailing code fences.
// Text with only one fence, or none, is returned unchanged.
func stripFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return text
	}
	rest := trimmed[3:]
	// Drop an optional language tag on the opening fence line.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		firstLine := strings.TrimSpace(rest[:nl])
		if firstLine == "" || isFenceTag(firstLine) {
			rest = rest[nl+1:]
		}
	}
	end := strings.LastIndex(rest, "```")
	if end < 0 {
		return text
	}
	return rest[:end]
}

func isFenceTag(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
