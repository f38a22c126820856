package openai

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// ExtractText pulls the completion text out of a response, trying each
// strategy in order until one yields non-empty text:
//
//  1. the legacy text field of the first choice,
//  2. the chat message content,
//  3. the reasoning content (reasoning models sometimes leave the final
//     answer there when they hit the token limit),
//  4. a text-bearing field embedded anywhere in the raw response body.
func ExtractText(resp *ChatCompletionResponse) (string, error) {
	if resp == nil {
		return "", eris.New("openai: nil response")
	}

	if len(resp.Choices) > 0 {
		ch := resp.Choices[0]
		if s := strings.TrimSpace(ch.Text); s != "" {
			return s, nil
		}
		if s := strings.TrimSpace(ch.Message.Content); s != "" {
			return s, nil
		}
		if s := strings.TrimSpace(ch.Message.ReasoningContent); s != "" {
			return s, nil
		}
	}

	if s := textFromRaw(resp.Raw); s != "" {
		return s, nil
	}

	return "", eris.New("openai: no text in response")
}

// textFromRaw walks the raw response body looking for the first non-empty
// string under a known text-bearing key.
func textFromRaw(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ""
	}
	return findTextField(doc)
}

var textKeys = []string{"output_text", "text", "content", "completion"}

func findTextField(node any) string {
	switch v := node.(type) {
	case map[string]any:
		for _, key := range textKeys {
			if s, ok := v[key].(string); ok {
				if trimmed := strings.TrimSpace(s); trimmed != "" {
					return trimmed
				}
			}
		}
		for _, child := range v {
			if s := findTextField(child); s != "" {
				return s
			}
		}
	case []any:
		for _, child := range v {
			if s := findTextField(child); s != "" {
				return s
			}
		}
	}
	return ""
}
