package types

import "time"

// Session is one conversation. The message/token counters are running
// totals maintained by insert/archive/delete events on the session's
// messages, never recomputed by full scan in the hot path. Explicit
// reconciliation is the only operation allowed to rebuild them.
type Session struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	WorkspacePath string    `json:"workspace_path"`
	EngineID      string    `json:"engine_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// Counters over active (non-archived, non-deleted) messages.
	MessageCount int `json:"message_count"`
	TotalTokens  int `json:"total_tokens"`

	// Counters over archived messages.
	ArchivedCount  int `json:"archived_count"`
	ArchivedTokens int `json:"archived_tokens"`

	IsDeleted bool `json:"is_deleted"`
	IsPinned  bool `json:"is_pinned"`
}

// ConversationSummary is the durable provenance record of one compression
// run: it replaces exactly the set of messages archived in that run.
type ConversationSummary struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	// MessageCount and TotalTokens describe the archived slice.
	MessageCount int `json:"message_count"`
	TotalTokens  int `json:"total_tokens"`

	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points"`

	ModelUsed  string    `json:"model_used"`
	CostTokens int       `json:"cost_tokens"`
	CreatedAt  time.Time `json:"created_at"`
}
