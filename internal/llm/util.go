// Package llm - util.go provides shared utilities for LLM response processing.
package llm

import "strings"

// CleanJSONBlock extracts the JSON payload from model output. LLMs often wrap
// JSON in ```json ... ``` fences or surround it with conversational prose even
// when instructed not to. The result is best-effort: if no JSON-looking block
// is found the trimmed text is returned as-is, leaving the caller's JSON
// parser to accept or reject it.
func CleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)

	// Handle ```json ... ``` blocks anywhere in the text
	if idx := strings.Index(text, "```json"); idx >= 0 {
		rest := text[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		return strings.TrimSpace(rest)
	}

	// Handle generic ``` ... ``` blocks
	if idx := strings.Index(text, "```"); idx >= 0 {
		rest := text[idx+len("```"):]
		// Skip potential language identifier on first line
		if nl := strings.Index(rest, "\n"); nl >= 0 {
			firstLine := strings.TrimSpace(rest[:nl])
			if firstLine != "" && len(firstLine) < 20 && !strings.ContainsAny(firstLine, " {[") {
				rest = rest[nl+1:]
			}
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		return strings.TrimSpace(rest)
	}

	// No fences: look for the first JSON object or array and strip any
	// surrounding prose.
	objIdx := strings.Index(text, "{")
	arrIdx := strings.Index(text, "[")
	switch {
	case objIdx >= 0 && (arrIdx < 0 || objIdx < arrIdx):
		if extracted := extractJSONObject(text[objIdx:]); extracted != "" {
			return extracted
		}
	case arrIdx >= 0:
		if extracted := extractJSONArray(text[arrIdx:]); extracted != "" {
			return extracted
		}
	}

	return text
}

// extractJSONObject returns the first balanced JSON object at the start of
// text, or "" if text does not begin with one. Braces inside string literals
// are ignored.
func extractJSONObject(text string) string {
	return extractBalanced(text, '{', '}')
}

// extractJSONArray returns the first balanced JSON array at the start of
// text, or "" if text does not begin with one.
func extractJSONArray(text string) string {
	return extractBalanced(text, '[', ']')
}

func extractBalanced(text string, open, close byte) string {
	if len(text) == 0 || text[0] != open {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return text[:i+1]
			}
		}
	}
	return ""
}
