// Package storage defines the persistence interface over the four durable
// tables (sessions, messages, conversation_summaries, long_term_memories)
// and provides a PostgreSQL implementation plus an in-memory one for tests
// and embedded single-process use.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/memorypg/memorypg/types"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument is returned for malformed inputs (empty IDs,
	// nil records).
	ErrInvalidArgument = errors.New("invalid argument")
)

// Store persists sessions, messages, compression summaries, and long-term
// memories.
//
// Session counters (message_count, total_tokens, archived_count,
// archived_tokens) are running totals maintained by message insert, archive,
// and soft-delete events: SQL triggers in the Postgres store, code in the
// in-memory store. ReconcileSessionCounters is the only operation allowed to
// rebuild them by full scan.
type Store interface {
	// Sessions

	CreateSession(ctx context.Context, session *types.Session) error
	GetSession(ctx context.Context, sessionID string) (*types.Session, error)
	// ListSessions returns sessions ordered by last update, optionally
	// filtered by workspace path. Soft-deleted sessions are excluded unless
	// includeDeleted is set.
	ListSessions(ctx context.Context, workspacePath string, includeDeleted bool) ([]*types.Session, error)
	RenameSession(ctx context.Context, sessionID, title string) error
	SetSessionPinned(ctx context.Context, sessionID string, pinned bool) error
	SoftDeleteSession(ctx context.Context, sessionID string) error
	// ReconcileSessionCounters recomputes the session counters from the
	// messages table and persists them. Explicit repair only, never part of
	// the hot path.
	ReconcileSessionCounters(ctx context.Context, sessionID string) (*types.Session, error)

	// Messages

	InsertMessage(ctx context.Context, msg *types.Message) error
	InsertMessages(ctx context.Context, msgs []*types.Message) error
	// GetMessages returns the session's messages ordered by timestamp.
	// Archived messages are excluded unless includeArchived is set;
	// soft-deleted messages are always excluded.
	GetMessages(ctx context.Context, sessionID string, includeArchived bool) ([]*types.Message, error)
	// ArchiveMessages soft-flags the given messages as archived.
	ArchiveMessages(ctx context.Context, sessionID string, messageIDs []string, archivedAt time.Time) error
	SoftDeleteMessage(ctx context.Context, messageID string) error
	SetImportanceScore(ctx context.Context, messageID string, score int) error

	// Conversation summaries

	InsertSummary(ctx context.Context, summary *types.ConversationSummary) error
	GetSummaries(ctx context.Context, sessionID string) ([]*types.ConversationSummary, error)

	// Long-term memories

	// UpsertMemory inserts the memory, or, when a live row with the same
	// key already exists, atomically increments its hit count and
	// refreshes last_hit_at instead of inserting a duplicate. Returns true
	// when a new row was created.
	UpsertMemory(ctx context.Context, memory *types.LongTermMemory) (created bool, err error)
	// RecordMemoryHit atomically increments hit_count for a retrieval hit.
	RecordMemoryHit(ctx context.Context, memoryID string) error
	GetMemoryByKey(ctx context.Context, key string) (*types.LongTermMemory, error)
	// SearchMemories does a case-insensitive substring match over key and
	// value text. Ranking happens in the retrieval layer.
	SearchMemories(ctx context.Context, query, workspacePath string, limit int) ([]*types.LongTermMemory, error)
	ListMemoriesByType(ctx context.Context, memoryType types.MemoryType, workspacePath string) ([]*types.LongTermMemory, error)
	SoftDeleteMemory(ctx context.Context, memoryID string) error
}
