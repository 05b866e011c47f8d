package scoring

import "testing"

func TestAnalyzeStructure(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		codeBlocks int
		headings   int
	}{
		{
			name:    "plain text",
			content: "nothing structured here",
		},
		{
			name:       "fenced code block",
			content:    "fix:\n\n```go\nfunc main() {}\n```\n",
			codeBlocks: 1,
		},
		{
			name:       "headings and code",
			content:    "# Plan\n\n## Steps\n\n```sh\nmake build\n```\n\n```sh\nmake test\n```\n",
			codeBlocks: 2,
			headings:   2,
		},
		{
			name:       "indented code block",
			content:    "example:\n\n    fmt.Println(\"hi\")\n",
			codeBlocks: 1,
		},
		{
			name:    "empty",
			content: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AnalyzeStructure(tt.content)
			if got.CodeBlocks != tt.codeBlocks {
				t.Errorf("CodeBlocks = %d, want %d", got.CodeBlocks, tt.codeBlocks)
			}
			if got.Headings != tt.headings {
				t.Errorf("Headings = %d, want %d", got.Headings, tt.headings)
			}
		})
	}
}
