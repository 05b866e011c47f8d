package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memorypg/memorypg/types"
)

// txContextKey is the context key for storing pgx.Tx
type txContextKey struct{}

// WithTx returns a new context carrying the given transaction. Store
// operations on that context run inside the transaction.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// TxFromContext retrieves the transaction from context, or nil if not present
func TxFromContext(ctx context.Context) pgx.Tx {
	if tx, ok := ctx.Value(txContextKey{}).(pgx.Tx); ok {
		return tx
	}
	return nil
}

// querier is a common interface for pgxpool.Pool and pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// PostgresStore implements Store using PostgreSQL with pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// CreateSchema creates the tables, indexes, view, and counter triggers.
// Idempotent; safe to call on every startup.
func (s *PostgresStore) CreateSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// getQuerier returns the transaction from context if present, otherwise the pool
func (s *PostgresStore) getQuerier(ctx context.Context) querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return s.pool
}

// =============================================================================
// Sessions
// =============================================================================

const sessionColumns = `id, title, workspace_path, engine_id, message_count, total_tokens,
       archived_count, archived_tokens, is_deleted, is_pinned, created_at, updated_at`

func scanSession(row pgx.Row) (*types.Session, error) {
	var sess types.Session
	err := row.Scan(
		&sess.ID,
		&sess.Title,
		&sess.WorkspacePath,
		&sess.EngineID,
		&sess.MessageCount,
		&sess.TotalTokens,
		&sess.ArchivedCount,
		&sess.ArchivedTokens,
		&sess.IsDeleted,
		&sess.IsPinned,
		&sess.CreatedAt,
		&sess.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// CreateSession inserts a new session row.
func (s *PostgresStore) CreateSession(ctx context.Context, session *types.Session) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("%w: session with id is required", ErrInvalidArgument)
	}

	query := `
		INSERT INTO sessions (id, title, workspace_path, engine_id, is_pinned, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`
	createdAt := session.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.getQuerier(ctx).Exec(ctx, query,
		session.ID, session.Title, session.WorkspacePath, session.EngineID,
		session.IsPinned, createdAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`

	sess, err := scanSession(s.getQuerier(ctx).QueryRow(ctx, query, sessionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return sess, nil
}

// ListSessions retrieves sessions ordered by last update.
func (s *PostgresStore) ListSessions(ctx context.Context, workspacePath string, includeDeleted bool) ([]*types.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE 1=1`
	args := []any{}
	if workspacePath != "" {
		args = append(args, workspacePath)
		query += fmt.Sprintf(" AND workspace_path = $%d", len(args))
	}
	if !includeDeleted {
		query += " AND NOT is_deleted"
	}
	query += " ORDER BY is_pinned DESC, updated_at DESC"

	rows, err := s.getQuerier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*types.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

// RenameSession updates the session title.
func (s *PostgresStore) RenameSession(ctx context.Context, sessionID, title string) error {
	return s.execSessionUpdate(ctx, sessionID,
		`UPDATE sessions SET title = $2, updated_at = NOW() WHERE id = $1`, title)
}

// SetSessionPinned toggles the pin flag.
func (s *PostgresStore) SetSessionPinned(ctx context.Context, sessionID string, pinned bool) error {
	return s.execSessionUpdate(ctx, sessionID,
		`UPDATE sessions SET is_pinned = $2, updated_at = NOW() WHERE id = $1`, pinned)
}

// SoftDeleteSession marks the session deleted. Messages are untouched.
func (s *PostgresStore) SoftDeleteSession(ctx context.Context, sessionID string) error {
	return s.execSessionUpdate(ctx, sessionID,
		`UPDATE sessions SET is_deleted = TRUE, updated_at = NOW() WHERE id = $1`)
}

func (s *PostgresStore) execSessionUpdate(ctx context.Context, sessionID, query string, args ...any) error {
	tag, err := s.getQuerier(ctx).Exec(ctx, query, append([]any{sessionID}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}
	return nil
}

// ReconcileSessionCounters rebuilds the running counters from the
// session_activity view and persists them.
func (s *PostgresStore) ReconcileSessionCounters(ctx context.Context, sessionID string) (*types.Session, error) {
	query := `
		UPDATE sessions SET
			message_count   = COALESCE((SELECT active_count FROM session_activity a WHERE a.session_id = $1), 0),
			total_tokens    = COALESCE((SELECT active_tokens FROM session_activity a WHERE a.session_id = $1), 0),
			archived_count  = COALESCE((SELECT archived_count FROM session_activity a WHERE a.session_id = $1), 0),
			archived_tokens = COALESCE((SELECT archived_tokens FROM session_activity a WHERE a.session_id = $1), 0),
			updated_at      = NOW()
		WHERE id = $1
	`
	if _, err := s.getQuerier(ctx).Exec(ctx, query, sessionID); err != nil {
		return nil, fmt.Errorf("failed to reconcile counters: %w", err)
	}
	return s.GetSession(ctx, sessionID)
}

// =============================================================================
// Messages
// =============================================================================

const messageColumns = `id, session_id, role, content, tokens, is_archived, archived_at,
       importance_score, is_deleted, tool_calls, ts`

func scanMessage(row pgx.Row) (*types.Message, error) {
	var msg types.Message
	var toolCallsJSON []byte
	err := row.Scan(
		&msg.ID,
		&msg.SessionID,
		&msg.Role,
		&msg.Content,
		&msg.Tokens,
		&msg.IsArchived,
		&msg.ArchivedAt,
		&msg.ImportanceScore,
		&msg.IsDeleted,
		&toolCallsJSON,
		&msg.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	if len(toolCallsJSON) > 0 {
		if err := json.Unmarshal(toolCallsJSON, &msg.ToolCalls); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tool calls: %w", err)
		}
	}
	return &msg, nil
}

// InsertMessage inserts a single message.
func (s *PostgresStore) InsertMessage(ctx context.Context, msg *types.Message) error {
	return s.InsertMessages(ctx, []*types.Message{msg})
}

// InsertMessages inserts multiple messages in a batch. The insert trigger
// maintains the session counters.
func (s *PostgresStore) InsertMessages(ctx context.Context, msgs []*types.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO messages (id, session_id, role, content, tokens, is_archived,
		                      archived_at, importance_score, is_deleted, tool_calls, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	for _, msg := range msgs {
		if msg.ID == "" || msg.SessionID == "" {
			return fmt.Errorf("%w: message id and session_id are required", ErrInvalidArgument)
		}
		var toolCallsJSON []byte
		if len(msg.ToolCalls) > 0 {
			var err error
			toolCallsJSON, err = json.Marshal(msg.ToolCalls)
			if err != nil {
				return fmt.Errorf("failed to marshal tool calls: %w", err)
			}
		}
		ts := msg.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		batch.Queue(query, msg.ID, msg.SessionID, msg.Role, msg.Content, msg.Tokens,
			msg.IsArchived, msg.ArchivedAt, msg.ImportanceScore, msg.IsDeleted,
			toolCallsJSON, ts)
	}

	results := s.getQuerier(ctx).SendBatch(ctx, batch)
	defer results.Close()
	for range msgs {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}
	return nil
}

// GetMessages retrieves a session's messages ordered by timestamp.
func (s *PostgresStore) GetMessages(ctx context.Context, sessionID string, includeArchived bool) ([]*types.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE session_id = $1 AND NOT is_deleted`
	if !includeArchived {
		query += " AND NOT is_archived"
	}
	query += " ORDER BY ts ASC"

	rows, err := s.getQuerier(ctx).Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var msgs []*types.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return msgs, nil
}

// ArchiveMessages flags the given messages archived. The update trigger
// moves their tokens from the active counters to the archived counters.
func (s *PostgresStore) ArchiveMessages(ctx context.Context, sessionID string, messageIDs []string, archivedAt time.Time) error {
	if len(messageIDs) == 0 {
		return nil
	}
	query := `
		UPDATE messages SET is_archived = TRUE, archived_at = $3
		WHERE session_id = $1 AND id = ANY($2) AND NOT is_archived AND NOT is_deleted
	`
	_, err := s.getQuerier(ctx).Exec(ctx, query, sessionID, messageIDs, archivedAt)
	if err != nil {
		return fmt.Errorf("failed to archive messages: %w", err)
	}
	return nil
}

// SoftDeleteMessage marks the message deleted. The update trigger adjusts
// the owning session's counters.
func (s *PostgresStore) SoftDeleteMessage(ctx context.Context, messageID string) error {
	query := `UPDATE messages SET is_deleted = TRUE WHERE id = $1 AND NOT is_deleted`
	tag, err := s.getQuerier(ctx).Exec(ctx, query, messageID)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: message %s", ErrNotFound, messageID)
	}
	return nil
}

// SetImportanceScore records a message's importance score.
func (s *PostgresStore) SetImportanceScore(ctx context.Context, messageID string, score int) error {
	query := `UPDATE messages SET importance_score = $2 WHERE id = $1`
	tag, err := s.getQuerier(ctx).Exec(ctx, query, messageID, score)
	if err != nil {
		return fmt.Errorf("failed to set importance score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: message %s", ErrNotFound, messageID)
	}
	return nil
}

// =============================================================================
// Conversation summaries
// =============================================================================

// InsertSummary persists the provenance record of one compression run.
func (s *PostgresStore) InsertSummary(ctx context.Context, summary *types.ConversationSummary) error {
	if summary == nil || summary.ID == "" || summary.SessionID == "" {
		return fmt.Errorf("%w: summary with id and session_id is required", ErrInvalidArgument)
	}

	keyPointsJSON, err := json.Marshal(summary.KeyPoints)
	if err != nil {
		return fmt.Errorf("failed to marshal key points: %w", err)
	}

	query := `
		INSERT INTO conversation_summaries
			(id, session_id, start_time, end_time, message_count, total_tokens,
			 summary, key_points, model_used, cost_tokens, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
	`
	_, err = s.getQuerier(ctx).Exec(ctx, query,
		summary.ID, summary.SessionID, summary.StartTime, summary.EndTime,
		summary.MessageCount, summary.TotalTokens, summary.Summary,
		keyPointsJSON, summary.ModelUsed, summary.CostTokens)
	if err != nil {
		return fmt.Errorf("failed to insert summary: %w", err)
	}
	return nil
}

// GetSummaries retrieves a session's summaries, oldest first.
func (s *PostgresStore) GetSummaries(ctx context.Context, sessionID string) ([]*types.ConversationSummary, error) {
	query := `
		SELECT id, session_id, start_time, end_time, message_count, total_tokens,
		       summary, key_points, model_used, cost_tokens, created_at
		FROM conversation_summaries
		WHERE session_id = $1
		ORDER BY start_time ASC
	`
	rows, err := s.getQuerier(ctx).Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query summaries: %w", err)
	}
	defer rows.Close()

	var summaries []*types.ConversationSummary
	for rows.Next() {
		var sum types.ConversationSummary
		var keyPointsJSON []byte
		err := rows.Scan(
			&sum.ID, &sum.SessionID, &sum.StartTime, &sum.EndTime,
			&sum.MessageCount, &sum.TotalTokens, &sum.Summary,
			&keyPointsJSON, &sum.ModelUsed, &sum.CostTokens, &sum.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		if len(keyPointsJSON) > 0 {
			if err := json.Unmarshal(keyPointsJSON, &sum.KeyPoints); err != nil {
				return nil, fmt.Errorf("failed to unmarshal key points: %w", err)
			}
		}
		summaries = append(summaries, &sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating summaries: %w", err)
	}
	return summaries, nil
}

// =============================================================================
// Long-term memories
// =============================================================================

const memoryColumns = `id, type, key, value, workspace_path, session_id, hit_count,
       last_hit_at, confidence, is_deleted, created_at, updated_at`

func scanMemory(row pgx.Row) (*types.LongTermMemory, error) {
	var mem types.LongTermMemory
	var valueJSON []byte
	var sessionID *string
	err := row.Scan(
		&mem.ID,
		&mem.Type,
		&mem.Key,
		&valueJSON,
		&mem.WorkspacePath,
		&sessionID,
		&mem.HitCount,
		&mem.LastHitAt,
		&mem.Confidence,
		&mem.IsDeleted,
		&mem.CreatedAt,
		&mem.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if sessionID != nil {
		mem.SessionID = *sessionID
	}
	value, err := types.UnmarshalMemoryValue(mem.Type, valueJSON)
	if err != nil {
		return nil, err
	}
	mem.Value = value
	return &mem, nil
}

// UpsertMemory inserts a new memory or bumps the hit count of an existing
// live row with the same key. The increment is a single atomic statement,
// never read-then-write.
func (s *PostgresStore) UpsertMemory(ctx context.Context, memory *types.LongTermMemory) (bool, error) {
	if memory == nil || memory.ID == "" || memory.Key == "" {
		return false, fmt.Errorf("%w: memory with id and key is required", ErrInvalidArgument)
	}

	valueJSON, err := types.MarshalMemoryValue(memory.Value)
	if err != nil {
		return false, fmt.Errorf("failed to marshal memory value: %w", err)
	}

	var sessionID *string
	if memory.SessionID != "" {
		sessionID = &memory.SessionID
	}

	query := `
		INSERT INTO long_term_memories
			(id, type, key, value, value_text, workspace_path, session_id,
			 hit_count, confidence, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, NOW(), NOW())
		ON CONFLICT (key) WHERE NOT is_deleted DO UPDATE SET
			hit_count   = long_term_memories.hit_count + 1,
			last_hit_at = NOW(),
			updated_at  = NOW()
		RETURNING (xmax = 0) AS inserted
	`
	var inserted bool
	err = s.getQuerier(ctx).QueryRow(ctx, query,
		memory.ID, memory.Type, memory.Key, valueJSON, memory.ValueText(),
		memory.WorkspacePath, sessionID, memory.Confidence).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("failed to upsert memory: %w", err)
	}
	return inserted, nil
}

// RecordMemoryHit atomically increments the hit count for a retrieval hit.
func (s *PostgresStore) RecordMemoryHit(ctx context.Context, memoryID string) error {
	query := `
		UPDATE long_term_memories
		SET hit_count = hit_count + 1, last_hit_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND NOT is_deleted
	`
	tag, err := s.getQuerier(ctx).Exec(ctx, query, memoryID)
	if err != nil {
		return fmt.Errorf("failed to record memory hit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: memory %s", ErrNotFound, memoryID)
	}
	return nil
}

// GetMemoryByKey retrieves the live memory with the given key.
func (s *PostgresStore) GetMemoryByKey(ctx context.Context, key string) (*types.LongTermMemory, error) {
	query := `SELECT ` + memoryColumns + ` FROM long_term_memories WHERE key = $1 AND NOT is_deleted`
	mem, err := scanMemory(s.getQuerier(ctx).QueryRow(ctx, query, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: memory key %q", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get memory: %w", err)
	}
	return mem, nil
}

// SearchMemories does a case-insensitive LIKE match over key and value text.
func (s *PostgresStore) SearchMemories(ctx context.Context, query, workspacePath string, limit int) ([]*types.LongTermMemory, error) {
	pattern := "%" + strings.ToLower(query) + "%"
	sql := `
		SELECT ` + memoryColumns + `
		FROM long_term_memories
		WHERE NOT is_deleted
		  AND (LOWER(key) LIKE $1 OR LOWER(value_text) LIKE $1)
	`
	args := []any{pattern}
	if workspacePath != "" {
		args = append(args, workspacePath)
		sql += fmt.Sprintf(" AND (workspace_path = $%d OR workspace_path = '')", len(args))
	}
	sql += " ORDER BY hit_count DESC, updated_at DESC"
	if limit > 0 {
		args = append(args, limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.getQuerier(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search memories: %w", err)
	}
	defer rows.Close()
	return collectMemories(rows)
}

// ListMemoriesByType retrieves live memories of one type.
func (s *PostgresStore) ListMemoriesByType(ctx context.Context, memoryType types.MemoryType, workspacePath string) ([]*types.LongTermMemory, error) {
	sql := `SELECT ` + memoryColumns + ` FROM long_term_memories WHERE type = $1 AND NOT is_deleted`
	args := []any{memoryType}
	if workspacePath != "" {
		args = append(args, workspacePath)
		sql += fmt.Sprintf(" AND workspace_path = $%d", len(args))
	}
	sql += " ORDER BY hit_count DESC, updated_at DESC"

	rows, err := s.getQuerier(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}
	defer rows.Close()
	return collectMemories(rows)
}

// SoftDeleteMemory marks a memory deleted.
func (s *PostgresStore) SoftDeleteMemory(ctx context.Context, memoryID string) error {
	query := `UPDATE long_term_memories SET is_deleted = TRUE, updated_at = NOW() WHERE id = $1 AND NOT is_deleted`
	tag, err := s.getQuerier(ctx).Exec(ctx, query, memoryID)
	if err != nil {
		return fmt.Errorf("failed to delete memory: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: memory %s", ErrNotFound, memoryID)
	}
	return nil
}

func collectMemories(rows pgx.Rows) ([]*types.LongTermMemory, error) {
	var memories []*types.LongTermMemory
	for rows.Next() {
		mem, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		memories = append(memories, mem)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memories: %w", err)
	}
	return memories, nil
}
