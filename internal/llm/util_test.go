package llm

import (
	"testing"
)

func TestCleanJSONBlock_MarkdownCodeBlock(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "json code block",
			input:    "```json\n{\"page\": 1, \"page_type\": \"cover_sheet\"}\n```",
			expected: `{"page": 1, "page_type": "cover_sheet"}`,
		},
		{
			name:     "generic code block",
			input:    "```\n{\"page\": 1, \"page_type\": \"cover_sheet\"}\n```",
			expected: `{"page": 1, "page_type": "cover_sheet"}`,
		},
		{
			name:     "code block with language",
			input:    "```javascript\n{\"status\": \"pass\"}\n```",
			expected: `{"status": "pass"}`,
		},
		{
			name:     "plain JSON",
			input:    `{"status": "pass"}`,
			expected: `{"status": "pass"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CleanJSONBlock(tt.input)
			if result != tt.expected {
				t.Errorf("CleanJSONBlock() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestCleanJSONBlock_PreambleText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "preamble before JSON object",
			input:    "As requested, here is the JSON:\n{\"page_type\": \"site_plan\"}",
			expected: `{"page_type": "site_plan"}`,
		},
		{
			name:     "conversational preamble",
			input:    "Based on the page content provided, I've evaluated each check. Here's the structured output:\n\n{\"check_id\": \"title_block_present\", \"status\": \"fail\"}",
			expected: `{"check_id": "title_block_present", "status": "fail"}`,
		},
		{
			name:     "preamble with multiple sentences",
			input:    "I reviewed the pages. The cover sheet is missing a scale bar. Here is the result: {\"verdicts\": [\"fail\"]}",
			expected: `{"verdicts": ["fail"]}`,
		},
		{
			name:     "preamble before JSON array",
			input:    "Here are the verdicts:\n[\"pass\", \"needs_review\"]",
			expected: `["pass", "needs_review"]`,
		},
		{
			name:     "JSON with trailing text",
			input:    "{\"status\": \"pass\"}\n\nLet me know if you need anything else!",
			expected: `{"status": "pass"}`,
		},
		{
			name:     "nested objects",
			input:    "Output:\n{\"verdict\": {\"status\": \"pass\"}}",
			expected: `{"verdict": {"status": "pass"}}`,
		},
		{
			name:     "JSON with escaped quotes",
			input:    "Result: {\"notes\": \"Sheet labeled \\\"A-101\\\"\"}",
			expected: `{"notes": "Sheet labeled \"A-101\""}`,
		},
		{
			name:     "deeply nested",
			input:    "Here: {\"pages\": {\"1\": {\"checks\": {\"scale_bar\": \"pass\"}}}}",
			expected: `{"pages": {"1": {"checks": {"scale_bar": "pass"}}}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CleanJSONBlock(tt.input)
			if result != tt.expected {
				t.Errorf("CleanJSONBlock() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "simple object",
			input:    `{"status": "pass"}`,
			expected: `{"status": "pass"}`,
		},
		{
			name:     "nested objects",
			input:    `{"verdict": {"status": "pass"}}`,
			expected: `{"verdict": {"status": "pass"}}`,
		},
		{
			name:     "object with array",
			input:    `{"pages": [1, 2, 3]}`,
			expected: `{"pages": [1, 2, 3]}`,
		},
		{
			name:     "object with trailing text",
			input:    `{"status": "pass"} and some more text`,
			expected: `{"status": "pass"}`,
		},
		{
			name:     "string with braces inside",
			input:    `{"note": "See detail {3} on sheet A-101"}`,
			expected: `{"note": "See detail {3} on sheet A-101"}`,
		},
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
		{
			name:     "not starting with brace",
			input:    "not json",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := extractJSONObject(tt.input)
			if result != tt.expected {
				t.Errorf("extractJSONObject() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestExtractJSONArray(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "simple array",
			input:    `["pass", "fail", "na"]`,
			expected: `["pass", "fail", "na"]`,
		},
		{
			name:     "nested arrays",
			input:    `[[1, 2], [3, 4]]`,
			expected: `[[1, 2], [3, 4]]`,
		},
		{
			name:     "array of objects",
			input:    `[{"page": 1}, {"page": 2}]`,
			expected: `[{"page": 1}, {"page": 2}]`,
		},
		{
			name:     "array with trailing text",
			input:    `[1, 2, 3] extra stuff`,
			expected: `[1, 2, 3]`,
		},
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
		{
			name:     "not starting with bracket",
			input:    "not array",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := extractJSONArray(tt.input)
			if result != tt.expected {
				t.Errorf("extractJSONArray() = %q, want %q", result, tt.expected)
			}
		})
	}
}
