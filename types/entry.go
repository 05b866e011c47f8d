package types

import (
	"fmt"
	"time"
)

// ContextSource identifies where a context entry originated.
type ContextSource string

const (
	SourceProject         ContextSource = "project"
	SourceWorkspace       ContextSource = "workspace"
	SourceIDE             ContextSource = "ide"
	SourceUserSelection   ContextSource = "user_selection"
	SourceSemanticRelated ContextSource = "semantic_related"
	SourceHistory         ContextSource = "history"
	SourceDiagnostics     ContextSource = "diagnostics"
)

// ContextSources lists every valid source.
var ContextSources = []ContextSource{
	SourceProject,
	SourceWorkspace,
	SourceIDE,
	SourceUserSelection,
	SourceSemanticRelated,
	SourceHistory,
	SourceDiagnostics,
}

// ContextType identifies the kind of information an entry carries.
type ContextType string

const (
	TypeFile            ContextType = "file"
	TypeFileStructure   ContextType = "file_structure"
	TypeSymbol          ContextType = "symbol"
	TypeSymbolReference ContextType = "symbol_reference"
	TypeSelection       ContextType = "selection"
	TypeDiagnostics     ContextType = "diagnostics"
	TypeDependency      ContextType = "dependency"
	TypeProjectMeta     ContextType = "project_meta"
	TypeUserMessage     ContextType = "user_message"
	TypeToolResult      ContextType = "tool_result"
	TypeFolder          ContextType = "folder"
)

// ContextTypes lists every valid entry type.
var ContextTypes = []ContextType{
	TypeFile,
	TypeFileStructure,
	TypeSymbol,
	TypeSymbolReference,
	TypeSelection,
	TypeDiagnostics,
	TypeDependency,
	TypeProjectMeta,
	TypeUserMessage,
	TypeToolResult,
	TypeFolder,
}

// Diagnostic is one compiler/linter finding attached to a diagnostics entry.
type Diagnostic struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Line     int    `json:"line"`
	Column   int    `json:"column,omitempty"`
	Code     string `json:"code,omitempty"`
}

// EntryContent is the payload of a context entry. It is a tagged union: the
// fields populated must match the owning entry's Type, which Validate checks.
type EntryContent struct {
	// Text is the primary textual payload: file contents, selection text,
	// symbol definition, user message, tool output, or project metadata.
	Text string `json:"text,omitempty"`

	// Path is the file or folder path this content belongs to.
	Path string `json:"path,omitempty"`

	// Language is the programming language, when known.
	Language string `json:"language,omitempty"`

	// StartLine/EndLine delimit a selection or symbol range.
	StartLine int `json:"start_line,omitempty"`
	EndLine   int `json:"end_line,omitempty"`

	// SymbolName and SymbolKind describe symbol / symbol_reference entries.
	SymbolName string `json:"symbol_name,omitempty"`
	SymbolKind string `json:"symbol_kind,omitempty"`

	// Items holds child listings for file_structure and folder entries,
	// or dependency specs for dependency entries.
	Items []string `json:"items,omitempty"`

	// Diagnostics holds findings for diagnostics entries.
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`

	// ToolName identifies the producing tool for tool_result entries.
	ToolName string `json:"tool_name,omitempty"`
}

// Validate checks that the populated variant matches the given entry type.
func (c EntryContent) Validate(t ContextType) error {
	switch t {
	case TypeFile, TypeSelection, TypeUserMessage, TypeProjectMeta:
		if c.Text == "" {
			return fmt.Errorf("content for %q requires text", t)
		}
	case TypeFileStructure, TypeFolder, TypeDependency:
		if len(c.Items) == 0 && c.Text == "" {
			return fmt.Errorf("content for %q requires items or text", t)
		}
	case TypeSymbol, TypeSymbolReference:
		if c.SymbolName == "" {
			return fmt.Errorf("content for %q requires symbol_name", t)
		}
	case TypeDiagnostics:
		if len(c.Diagnostics) == 0 {
			return fmt.Errorf("content for %q requires diagnostics", t)
		}
	case TypeToolResult:
		if c.Text == "" {
			return fmt.Errorf("content for %q requires text", t)
		}
	default:
		return fmt.Errorf("unknown entry type %q", t)
	}
	return nil
}

// FlattenText returns the content as a single string for token estimation
// and prompt rendering.
func (c EntryContent) FlattenText() string {
	if c.Text != "" {
		return c.Text
	}
	if len(c.Items) > 0 {
		out := ""
		for i, item := range c.Items {
			if i > 0 {
				out += "\n"
			}
			out += item
		}
		return out
	}
	if len(c.Diagnostics) > 0 {
		out := ""
		for i, d := range c.Diagnostics {
			if i > 0 {
				out += "\n"
			}
			out += fmt.Sprintf("%s:%d %s %s", c.Path, d.Line, d.Severity, d.Message)
		}
		return out
	}
	return c.SymbolName
}

// EntryMetadata carries optional entry annotations.
type EntryMetadata struct {
	WorkspaceID  string   `json:"workspace_id,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	Confidence   float64  `json:"confidence,omitempty"`
}

// ContextEntry is one unit of information eligible for inclusion in a model
// prompt.
type ContextEntry struct {
	ID       string        `json:"id"`
	Source   ContextSource `json:"source"`
	Type     ContextType   `json:"type"`
	Priority int           `json:"priority"` // 0-5
	Content  EntryContent  `json:"content"`
	Metadata EntryMetadata `json:"metadata,omitempty"`

	CreatedAt      time.Time  `json:"created_at"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	LastAccessedAt time.Time  `json:"last_accessed_at"`
	AccessCount    int        `json:"access_count"`

	// EstimatedTokens is the heuristic token cost of including this entry.
	// Always >= 0 after upsert.
	EstimatedTokens int `json:"estimated_tokens"`
}

// Expired reports whether the entry has passed its expiry time.
func (e *ContextEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && !e.ExpiresAt.After(now)
}

// Path returns the entry's file path, if it has one.
func (e *ContextEntry) Path() string {
	return e.Content.Path
}
