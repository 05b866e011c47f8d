package types

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	// RoleUser represents a user message
	RoleUser Role = "user"

	// RoleAssistant represents an assistant message
	RoleAssistant Role = "assistant"

	// RoleSystem represents a system message
	RoleSystem Role = "system"

	// RoleTool represents a tool-result message
	RoleTool Role = "tool"
)

// ToolCall records one tool invocation carried by a message.
type ToolCall struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Input   json.RawMessage `json:"input,omitempty"`
	Output  string          `json:"output,omitempty"`
	IsError bool            `json:"is_error,omitempty"`
}

// Message is one conversation turn. Compression archives messages (soft
// flag, never a hard delete); soft deletion is independent of archiving.
type Message struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`

	// Tokens is the estimated token cost of the message.
	Tokens int `json:"tokens"`

	IsArchived bool       `json:"is_archived"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`

	// ImportanceScore is 0-100. Zero means the message was never scored.
	ImportanceScore int `json:"importance_score"`

	IsDeleted bool      `json:"is_deleted"`
	Timestamp time.Time `json:"timestamp"`

	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// Active reports whether the message participates in live context.
func (m *Message) Active() bool {
	return !m.IsArchived && !m.IsDeleted
}

// Age returns how old the message is relative to now.
func (m *Message) Age(now time.Time) time.Duration {
	return now.Sub(m.Timestamp)
}
