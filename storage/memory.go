package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/memorypg/memorypg/types"
)

// MemoryStore is an in-memory Store for tests and embedded single-process
// use. It maintains the session counters with the same increment/decrement
// arithmetic the Postgres triggers apply.
type MemoryStore struct {
	mu sync.RWMutex

	sessions  map[string]*types.Session
	messages  map[string]*types.Message            // by message ID
	bysession map[string][]string                  // session ID -> ordered message IDs
	summaries map[string][]*types.ConversationSummary // by session ID
	memories  map[string]*types.LongTermMemory     // by memory ID
	memKeys   map[string]string                    // live key -> memory ID
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:  make(map[string]*types.Session),
		messages:  make(map[string]*types.Message),
		bysession: make(map[string][]string),
		summaries: make(map[string][]*types.ConversationSummary),
		memories:  make(map[string]*types.LongTermMemory),
		memKeys:   make(map[string]string),
	}
}

// =============================================================================
// Sessions
// =============================================================================

func (s *MemoryStore) CreateSession(ctx context.Context, session *types.Session) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("%w: session with id is required", ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return fmt.Errorf("%w: session %s already exists", ErrInvalidArgument, session.ID)
	}

	stored := *session
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	stored.UpdatedAt = stored.CreatedAt
	stored.MessageCount = 0
	stored.TotalTokens = 0
	stored.ArchivedCount = 0
	stored.ArchivedTokens = 0
	s.sessions[session.ID] = &stored
	return nil
}

func (s *MemoryStore) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}
	cp := *sess
	return &cp, nil
}

func (s *MemoryStore) ListSessions(ctx context.Context, workspacePath string, includeDeleted bool) ([]*types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.Session
	for _, sess := range s.sessions {
		if workspacePath != "" && sess.WorkspacePath != workspacePath {
			continue
		}
		if sess.IsDeleted && !includeDeleted {
			continue
		}
		cp := *sess
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsPinned != out[j].IsPinned {
			return out[i].IsPinned
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *MemoryStore) RenameSession(ctx context.Context, sessionID, title string) error {
	return s.updateSession(sessionID, func(sess *types.Session) {
		sess.Title = title
	})
}

func (s *MemoryStore) SetSessionPinned(ctx context.Context, sessionID string, pinned bool) error {
	return s.updateSession(sessionID, func(sess *types.Session) {
		sess.IsPinned = pinned
	})
}

func (s *MemoryStore) SoftDeleteSession(ctx context.Context, sessionID string) error {
	return s.updateSession(sessionID, func(sess *types.Session) {
		sess.IsDeleted = true
	})
}

func (s *MemoryStore) updateSession(sessionID string, apply func(*types.Session)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}
	apply(sess)
	sess.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) ReconcileSessionCounters(ctx context.Context, sessionID string) (*types.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}

	var activeCount, activeTokens, archivedCount, archivedTokens int
	for _, id := range s.bysession[sessionID] {
		msg := s.messages[id]
		if msg.IsDeleted {
			continue
		}
		if msg.IsArchived {
			archivedCount++
			archivedTokens += msg.Tokens
		} else {
			activeCount++
			activeTokens += msg.Tokens
		}
	}
	sess.MessageCount = activeCount
	sess.TotalTokens = activeTokens
	sess.ArchivedCount = archivedCount
	sess.ArchivedTokens = archivedTokens
	sess.UpdatedAt = time.Now()

	cp := *sess
	return &cp, nil
}

// =============================================================================
// Messages
// =============================================================================

func (s *MemoryStore) InsertMessage(ctx context.Context, msg *types.Message) error {
	return s.InsertMessages(ctx, []*types.Message{msg})
}

func (s *MemoryStore) InsertMessages(ctx context.Context, msgs []*types.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, msg := range msgs {
		if msg == nil || msg.ID == "" || msg.SessionID == "" {
			return fmt.Errorf("%w: message id and session_id are required", ErrInvalidArgument)
		}
		sess, ok := s.sessions[msg.SessionID]
		if !ok {
			return fmt.Errorf("%w: session %s", ErrNotFound, msg.SessionID)
		}

		stored := *msg
		if stored.Timestamp.IsZero() {
			stored.Timestamp = time.Now()
		}
		s.messages[stored.ID] = &stored
		s.bysession[msg.SessionID] = append(s.bysession[msg.SessionID], stored.ID)

		// Same arithmetic as the Postgres insert trigger.
		switch {
		case !stored.IsDeleted && !stored.IsArchived:
			sess.MessageCount++
			sess.TotalTokens += stored.Tokens
		case !stored.IsDeleted && stored.IsArchived:
			sess.ArchivedCount++
			sess.ArchivedTokens += stored.Tokens
		}
		sess.UpdatedAt = time.Now()
	}
	return nil
}

func (s *MemoryStore) GetMessages(ctx context.Context, sessionID string, includeArchived bool) ([]*types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.bysession[sessionID]
	out := make([]*types.Message, 0, len(ids))
	for _, id := range ids {
		msg := s.messages[id]
		if msg.IsDeleted {
			continue
		}
		if msg.IsArchived && !includeArchived {
			continue
		}
		cp := *msg
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (s *MemoryStore) ArchiveMessages(ctx context.Context, sessionID string, messageIDs []string, archivedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}

	for _, id := range messageIDs {
		msg, ok := s.messages[id]
		if !ok || msg.SessionID != sessionID || msg.IsArchived || msg.IsDeleted {
			continue
		}
		msg.IsArchived = true
		at := archivedAt
		msg.ArchivedAt = &at

		// Archive transition: active -> archived.
		sess.MessageCount--
		sess.TotalTokens -= msg.Tokens
		sess.ArchivedCount++
		sess.ArchivedTokens += msg.Tokens
	}
	sess.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) SoftDeleteMessage(ctx context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[messageID]
	if !ok || msg.IsDeleted {
		return fmt.Errorf("%w: message %s", ErrNotFound, messageID)
	}
	msg.IsDeleted = true

	if sess, ok := s.sessions[msg.SessionID]; ok {
		if msg.IsArchived {
			sess.ArchivedCount--
			sess.ArchivedTokens -= msg.Tokens
		} else {
			sess.MessageCount--
			sess.TotalTokens -= msg.Tokens
		}
		sess.UpdatedAt = time.Now()
	}
	return nil
}

func (s *MemoryStore) SetImportanceScore(ctx context.Context, messageID string, score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[messageID]
	if !ok {
		return fmt.Errorf("%w: message %s", ErrNotFound, messageID)
	}
	msg.ImportanceScore = score
	return nil
}

// =============================================================================
// Conversation summaries
// =============================================================================

func (s *MemoryStore) InsertSummary(ctx context.Context, summary *types.ConversationSummary) error {
	if summary == nil || summary.ID == "" || summary.SessionID == "" {
		return fmt.Errorf("%w: summary with id and session_id is required", ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *summary
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	stored.KeyPoints = append([]string(nil), summary.KeyPoints...)
	s.summaries[summary.SessionID] = append(s.summaries[summary.SessionID], &stored)
	return nil
}

func (s *MemoryStore) GetSummaries(ctx context.Context, sessionID string) ([]*types.ConversationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.summaries[sessionID]
	out := make([]*types.ConversationSummary, 0, len(list))
	for _, sum := range list {
		cp := *sum
		cp.KeyPoints = append([]string(nil), sum.KeyPoints...)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out, nil
}

// =============================================================================
// Long-term memories
// =============================================================================

func (s *MemoryStore) UpsertMemory(ctx context.Context, memory *types.LongTermMemory) (bool, error) {
	if memory == nil || memory.ID == "" || memory.Key == "" {
		return false, fmt.Errorf("%w: memory with id and key is required", ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if existingID, ok := s.memKeys[memory.Key]; ok {
		existing := s.memories[existingID]
		existing.HitCount++
		existing.LastHitAt = &now
		existing.UpdatedAt = now
		return false, nil
	}

	stored := *memory
	stored.HitCount = 0
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.memories[memory.ID] = &stored
	s.memKeys[memory.Key] = memory.ID
	return true, nil
}

func (s *MemoryStore) RecordMemoryHit(ctx context.Context, memoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mem, ok := s.memories[memoryID]
	if !ok || mem.IsDeleted {
		return fmt.Errorf("%w: memory %s", ErrNotFound, memoryID)
	}
	now := time.Now()
	mem.HitCount++
	mem.LastHitAt = &now
	mem.UpdatedAt = now
	return nil
}

func (s *MemoryStore) GetMemoryByKey(ctx context.Context, key string) (*types.LongTermMemory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.memKeys[key]
	if !ok {
		return nil, fmt.Errorf("%w: memory key %q", ErrNotFound, key)
	}
	cp := *s.memories[id]
	return &cp, nil
}

func (s *MemoryStore) SearchMemories(ctx context.Context, query, workspacePath string, limit int) ([]*types.LongTermMemory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(query)
	var out []*types.LongTermMemory
	for _, mem := range s.memories {
		if mem.IsDeleted {
			continue
		}
		if workspacePath != "" && mem.WorkspacePath != "" && mem.WorkspacePath != workspacePath {
			continue
		}
		key := strings.ToLower(mem.Key)
		value := strings.ToLower(mem.ValueText())
		if !strings.Contains(key, needle) && !strings.Contains(value, needle) {
			continue
		}
		cp := *mem
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].HitCount != out[j].HitCount {
			return out[i].HitCount > out[j].HitCount
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListMemoriesByType(ctx context.Context, memoryType types.MemoryType, workspacePath string) ([]*types.LongTermMemory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.LongTermMemory
	for _, mem := range s.memories {
		if mem.IsDeleted || mem.Type != memoryType {
			continue
		}
		if workspacePath != "" && mem.WorkspacePath != workspacePath {
			continue
		}
		cp := *mem
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].HitCount != out[j].HitCount {
			return out[i].HitCount > out[j].HitCount
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *MemoryStore) SoftDeleteMemory(ctx context.Context, memoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mem, ok := s.memories[memoryID]
	if !ok || mem.IsDeleted {
		return fmt.Errorf("%w: memory %s", ErrNotFound, memoryID)
	}
	mem.IsDeleted = true
	mem.UpdatedAt = time.Now()
	delete(s.memKeys, mem.Key)
	return nil
}
