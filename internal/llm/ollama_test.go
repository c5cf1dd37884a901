package llm

import (
	"testing"
)

func TestParseTextToolCalls(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantCount int
		wantName  string // First tool name if wantCount > 0
	}{
		{
			name:      "empty content",
			content:   "",
			wantCount: 0,
		},
		{
			name:      "whitespace only",
			content:   "   \n\t  ",
			wantCount: 0,
		},
		{
			name:      "plain text no JSON",
			content:   "The weather in Mumbai is sunny.",
			wantCount: 0,
		},
		{
			name:      "single tool call object",
			content:   `{"name": "get_weather", "arguments": {"city": "Mumbai"}}`,
			wantCount: 1,
			wantName:  "get_weather",
		},
		{
			name:      "single tool call with whitespace",
			content:   `  {"name": "get_weather", "arguments": {"city": "Mumbai"}}  `,
			wantCount: 1,
			wantName:  "get_weather",
		},
		{
			name:      "array of tool calls",
			content:   `[{"name": "web_search", "arguments": {"query": "nifty 50"}}, {"name": "get_current_datetime", "arguments": {}}]`,
			wantCount: 2,
			wantName:  "web_search",
		},
		{
			name:      "tagged tool call",
			content:   `<tool_call>{"name": "web_search", "arguments": {"query": "latest cricket score"}}</tool_call>`,
			wantCount: 1,
			wantName:  "web_search",
		},
		{
			name:      "tagged tool call without closing tag",
			content:   `<tool_call>{"name": "get_weather", "arguments": {"city": "Delhi"}}`,
			wantCount: 1,
			wantName:  "get_weather",
		},
		{
			name:      "empty arguments",
			content:   `{"name": "get_current_datetime", "arguments": {}}`,
			wantCount: 1,
			wantName:  "get_current_datetime",
		},
		{
			name:      "malformed JSON",
			content:   `{"name": "get_weather", "arguments": {`,
			wantCount: 0,
		},
		{
			name:      "JSON without name field",
			content:   `{"foo": "bar", "arguments": {}}`,
			wantCount: 0,
		},
		{
			name:      "JSON with empty name",
			content:   `{"name": "", "arguments": {}}`,
			wantCount: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseTextToolCalls(tt.content)

			if len(got) != tt.wantCount {
				t.Errorf("parseTextToolCalls() returned %d tools, want %d", len(got), tt.wantCount)
				return
			}

			if tt.wantCount > 0 && got[0].Function.Name != tt.wantName {
				t.Errorf("parseTextToolCalls() first tool name = %q, want %q", got[0].Function.Name, tt.wantName)
			}
		})
	}
}

func TestParseTextToolCalls_Arguments(t *testing.T) {
	content := `{"name": "web_search", "arguments": {"query": "solo trip Goa", "max_results": "5"}}`

	calls := parseTextToolCalls(content)
	if len(calls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(calls))
	}

	args := calls[0].Function.Arguments
	if args["query"] != "solo trip Goa" {
		t.Errorf("query = %v, want 'solo trip Goa'", args["query"])
	}
	if args["max_results"] != "5" {
		t.Errorf("max_results = %v, want '5'", args["max_results"])
	}
}
