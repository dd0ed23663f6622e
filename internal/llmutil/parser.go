// Package llmutil contains helpers for coercing collaborator responses
// into typed structures.
package llmutil

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ParseJSONResponse parses a collaborator response into T, tolerating the
// usual formatting noise: markdown code fences and conversational text
// around the JSON body.
func ParseJSONResponse[T any](response string) (*T, error) {
	payload := extractJSON(strings.TrimSpace(response))
	if payload == "" {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	var result T
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("unmarshal collaborator response: %w (payload: %s)", err, truncate(payload, 300))
	}
	return &result, nil
}

// extractJSON finds the outermost JSON object or array in s. Fenced
// blocks are handled by the same boundary scan since the fence characters
// sit outside the brackets.
func extractJSON(s string) string {
	start, end := boundaries(s, '{', '}')
	if start == -1 {
		start, end = boundaries(s, '[', ']')
	}
	if start == -1 {
		return ""
	}
	return s[start : end+1]
}

func boundaries(s string, open, close byte) (int, int) {
	start := strings.IndexByte(s, open)
	end := strings.LastIndexByte(s, close)
	if start == -1 || end <= start {
		return -1, -1
	}
	return start, end
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
