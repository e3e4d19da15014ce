// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// fencePattern matches a fenced code block, optionally tagged (```json ... ```).
var fencePattern = regexp.MustCompile("(?s)```(?:[a-zA-Z]+)?\\s*(.*?)```")

// DecodeObject recovers a JSON object from unreliable generated text and
// unmarshals it into v. Three strategies are tried in order, first success
// wins:
//
//  1. the entire text as JSON;
//  2. the contents of a fenced code block;
//  3. the substring between the first '{' and the last '}'.
//
// DecodeObject returns an error only when all three fail; callers fall back
// to a stage-specific default rather than propagating it.
func DecodeObject(text string, v any) error {
	trimmed := strings.TrimSpace(text)

	if err := json.Unmarshal([]byte(trimmed), v); err == nil {
		return nil
	}

	if m := fencePattern.FindStringSubmatch(trimmed); m != nil {
		if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), v); err == nil {
			return nil
		}
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(trimmed[start:end+1]), v); err == nil {
			return nil
		}
	}

	return fmt.Errorf("no JSON object recoverable from response (%d bytes)", len(text))
}
