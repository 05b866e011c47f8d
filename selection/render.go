package selection

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/memorypg/memorypg/types"
)

// PromptFormat selects a rendering of a query result.
type PromptFormat string

const (
	FormatMarkdown PromptFormat = "markdown"
	FormatJSON     PromptFormat = "json"
	FormatConcise  PromptFormat = "concise"
)

// Render turns a query result into prompt text. It is a pure function of
// its input: the same result and format always produce the same string.
func Render(res *Result, format PromptFormat) (string, error) {
	switch format {
	case FormatMarkdown, "":
		return renderMarkdown(res), nil
	case FormatJSON:
		return renderJSON(res)
	case FormatConcise:
		return renderConcise(res), nil
	default:
		return "", fmt.Errorf("unknown prompt format %q", format)
	}
}

// sectionOrder fixes the heading order so rendering is deterministic.
var sectionOrder = []struct {
	title string
	types []types.ContextType
}{
	{"Project", []types.ContextType{types.TypeProjectMeta, types.TypeDependency}},
	{"Files", []types.ContextType{types.TypeFile, types.TypeFileStructure, types.TypeFolder}},
	{"Symbols", []types.ContextType{types.TypeSymbol, types.TypeSymbolReference}},
	{"Selection", []types.ContextType{types.TypeSelection}},
	{"Diagnostics", []types.ContextType{types.TypeDiagnostics}},
	{"Conversation", []types.ContextType{types.TypeUserMessage, types.TypeToolResult}},
}

func renderMarkdown(res *Result) string {
	if len(res.Entries) == 0 {
		return ""
	}

	byType := make(map[types.ContextType][]*types.ContextEntry)
	for _, entry := range res.Entries {
		byType[entry.Type] = append(byType[entry.Type], entry)
	}

	var b strings.Builder
	b.WriteString("# Context\n")
	for _, section := range sectionOrder {
		var entries []*types.ContextEntry
		for _, t := range section.types {
			entries = append(entries, byType[t]...)
		}
		if len(entries) == 0 {
			continue
		}

		fmt.Fprintf(&b, "\n## %s\n", section.title)
		for _, entry := range entries {
			writeMarkdownEntry(&b, entry)
		}
	}
	return b.String()
}

func writeMarkdownEntry(b *strings.Builder, entry *types.ContextEntry) {
	switch entry.Type {
	case types.TypeFile, types.TypeSelection:
		header := entry.Content.Path
		if entry.Type == types.TypeSelection && entry.Content.StartLine > 0 {
			header = fmt.Sprintf("%s:%d-%d", entry.Content.Path, entry.Content.StartLine, entry.Content.EndLine)
		}
		fmt.Fprintf(b, "\n### %s\n", header)
		fmt.Fprintf(b, "```%s\n%s\n```\n", entry.Content.Language, entry.Content.Text)
	case types.TypeSymbol, types.TypeSymbolReference:
		fmt.Fprintf(b, "- `%s` (%s) in %s\n", entry.Content.SymbolName, entry.Content.SymbolKind, entry.Content.Path)
		if entry.Content.Text != "" {
			fmt.Fprintf(b, "\n```%s\n%s\n```\n", entry.Content.Language, entry.Content.Text)
		}
	case types.TypeDiagnostics:
		for _, d := range entry.Content.Diagnostics {
			fmt.Fprintf(b, "- %s:%d [%s] %s\n", entry.Content.Path, d.Line, d.Severity, d.Message)
		}
	case types.TypeFileStructure, types.TypeFolder, types.TypeDependency:
		if entry.Content.Path != "" {
			fmt.Fprintf(b, "\n### %s\n", entry.Content.Path)
		}
		for _, item := range entry.Content.Items {
			fmt.Fprintf(b, "- %s\n", item)
		}
		if len(entry.Content.Items) == 0 && entry.Content.Text != "" {
			fmt.Fprintf(b, "%s\n", entry.Content.Text)
		}
	case types.TypeToolResult:
		fmt.Fprintf(b, "\n### %s\n%s\n", entry.Content.ToolName, entry.Content.Text)
	default:
		fmt.Fprintf(b, "%s\n", entry.Content.FlattenText())
	}
}

func renderJSON(res *Result) (string, error) {
	payload := struct {
		Entries []*types.ContextEntry `json:"entries"`
		Summary ContextSummary        `json:"summary"`
	}{
		Entries: res.Entries,
		Summary: res.Summary,
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("render json: %w", err)
	}
	return string(data), nil
}

func renderConcise(res *Result) string {
	var b strings.Builder
	for _, entry := range res.Entries {
		label := entry.Path()
		if label == "" {
			label = entry.Content.SymbolName
		}
		if label == "" {
			label = string(entry.Type)
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", entry.Type, label, firstLine(entry.Content.FlattenText()))
	}
	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
