package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// MemoryType classifies a long-term memory.
type MemoryType string

const (
	MemoryProjectContext MemoryType = "project_context"
	MemoryKeyDecision    MemoryType = "key_decision"
	MemoryUserPreference MemoryType = "user_preference"
	MemoryFAQ            MemoryType = "faq"
	MemoryCodePattern    MemoryType = "code_pattern"
)

// MemoryValue is the typed payload of a long-term memory. Exactly one
// concrete shape exists per memory type; values are (de)serialized to JSON
// only at the storage boundary.
type MemoryValue interface {
	// MemoryType returns the memory type this value shape belongs to.
	MemoryType() MemoryType
}

// ProjectContextValue records a project fact, typically a file path the
// conversation kept returning to.
type ProjectContextValue struct {
	Path        string `json:"path"`
	Description string `json:"description,omitempty"`
	Mentions    int    `json:"mentions,omitempty"`
}

func (ProjectContextValue) MemoryType() MemoryType { return MemoryProjectContext }

// KeyDecisionValue records a decision sentence mined from the conversation.
type KeyDecisionValue struct {
	Decision  string `json:"decision"`
	Rationale string `json:"rationale,omitempty"`
}

func (KeyDecisionValue) MemoryType() MemoryType { return MemoryKeyDecision }

// UserPreferenceValue records cross-session usage aggregates.
type UserPreferenceValue struct {
	PreferredEngine string         `json:"preferred_engine,omitempty"`
	EngineUsage     map[string]int `json:"engine_usage,omitempty"`
	PeakHour        int            `json:"peak_hour,omitempty"`
	PeakDay         string         `json:"peak_day,omitempty"`
	WorkspaceCounts map[string]int `json:"workspace_counts,omitempty"`
}

func (UserPreferenceValue) MemoryType() MemoryType { return MemoryUserPreference }

// FAQValue records an adjacent user-question / assistant-answer pair.
type FAQValue struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

func (FAQValue) MemoryType() MemoryType { return MemoryFAQ }

// CodePatternValue records a recurring code construct.
type CodePatternValue struct {
	Pattern  string `json:"pattern"`
	Kind     string `json:"kind"` // import, function, class, type, export
	Language string `json:"language,omitempty"`
	Snippet  string `json:"snippet,omitempty"`
}

func (CodePatternValue) MemoryType() MemoryType { return MemoryCodePattern }

// LongTermMemory is a durable, deduplicated fact mined from past sessions.
// Re-extraction of the same key increments HitCount instead of inserting a
// duplicate row; retrieval hits increment it again.
type LongTermMemory struct {
	ID    string      `json:"id"`
	Type  MemoryType  `json:"type"`
	Key   string      `json:"key"` // deduplication key
	Value MemoryValue `json:"value"`

	WorkspacePath string `json:"workspace_path,omitempty"`
	SessionID     string `json:"session_id,omitempty"`

	HitCount  int        `json:"hit_count"`
	LastHitAt *time.Time `json:"last_hit_at,omitempty"`

	Confidence float64 `json:"confidence"` // 0-1
	IsDeleted  bool    `json:"is_deleted"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MarshalMemoryValue serializes a typed value for storage.
func MarshalMemoryValue(v MemoryValue) ([]byte, error) {
	if v == nil {
		return nil, fmt.Errorf("memory value is nil")
	}
	return json.Marshal(v)
}

// UnmarshalMemoryValue deserializes a stored payload into the concrete
// shape for the given memory type.
func UnmarshalMemoryValue(t MemoryType, data []byte) (MemoryValue, error) {
	var v MemoryValue
	switch t {
	case MemoryProjectContext:
		v = &ProjectContextValue{}
	case MemoryKeyDecision:
		v = &KeyDecisionValue{}
	case MemoryUserPreference:
		v = &UserPreferenceValue{}
	case MemoryFAQ:
		v = &FAQValue{}
	case MemoryCodePattern:
		v = &CodePatternValue{}
	default:
		return nil, fmt.Errorf("unknown memory type %q", t)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return nil, fmt.Errorf("unmarshal %s value: %w", t, err)
	}
	switch concrete := v.(type) {
	case *ProjectContextValue:
		return *concrete, nil
	case *KeyDecisionValue:
		return *concrete, nil
	case *UserPreferenceValue:
		return *concrete, nil
	case *FAQValue:
		return *concrete, nil
	case *CodePatternValue:
		return *concrete, nil
	}
	return v, nil
}

// ValueText flattens the typed value into searchable text. Retrieval ranks
// against this representation.
func (m *LongTermMemory) ValueText() string {
	switch v := m.Value.(type) {
	case ProjectContextValue:
		return v.Path + " " + v.Description
	case KeyDecisionValue:
		return v.Decision + " " + v.Rationale
	case UserPreferenceValue:
		return v.PreferredEngine + " " + v.PeakDay
	case FAQValue:
		return v.Question + " " + v.Answer
	case CodePatternValue:
		return v.Pattern + " " + v.Snippet
	default:
		return ""
	}
}
