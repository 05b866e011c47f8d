package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/memorypg/memorypg/types"
)

func newTestSession(t *testing.T, store Store) *types.Session {
	t.Helper()

	session := &types.Session{
		ID:            uuid.New().String(),
		Title:         "test session",
		WorkspacePath: "/work/project",
	}
	if err := store.CreateSession(context.Background(), session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	return session
}

func newTestMessage(sessionID string, tokens int, ts time.Time) *types.Message {
	return &types.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      types.RoleUser,
		Content:   "hello",
		Tokens:    tokens,
		Timestamp: ts,
	}
}

func TestMemoryStoreSessionCounters(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	session := newTestSession(t, store)

	now := time.Now()
	m1 := newTestMessage(session.ID, 10, now)
	m2 := newTestMessage(session.ID, 20, now.Add(time.Second))
	m3 := newTestMessage(session.ID, 30, now.Add(2*time.Second))
	if err := store.InsertMessages(ctx, []*types.Message{m1, m2, m3}); err != nil {
		t.Fatalf("InsertMessages failed: %v", err)
	}

	got, err := store.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.MessageCount != 3 || got.TotalTokens != 60 {
		t.Errorf("after insert: count=%d tokens=%d, want 3/60", got.MessageCount, got.TotalTokens)
	}

	// Archiving moves two messages from the active to the archived side.
	if err := store.ArchiveMessages(ctx, session.ID, []string{m1.ID, m2.ID}, now); err != nil {
		t.Fatalf("ArchiveMessages failed: %v", err)
	}
	got, _ = store.GetSession(ctx, session.ID)
	if got.MessageCount != 1 || got.TotalTokens != 30 {
		t.Errorf("after archive: active count=%d tokens=%d, want 1/30", got.MessageCount, got.TotalTokens)
	}
	if got.ArchivedCount != 2 || got.ArchivedTokens != 30 {
		t.Errorf("after archive: archived count=%d tokens=%d, want 2/30", got.ArchivedCount, got.ArchivedTokens)
	}

	// Archiving an already-archived message must not double-count.
	if err := store.ArchiveMessages(ctx, session.ID, []string{m1.ID}, now); err != nil {
		t.Fatalf("re-archive failed: %v", err)
	}
	got, _ = store.GetSession(ctx, session.ID)
	if got.ArchivedCount != 2 || got.ArchivedTokens != 30 {
		t.Errorf("after re-archive: archived count=%d tokens=%d, want 2/30", got.ArchivedCount, got.ArchivedTokens)
	}

	// Soft delete of an active message.
	if err := store.SoftDeleteMessage(ctx, m3.ID); err != nil {
		t.Fatalf("SoftDeleteMessage failed: %v", err)
	}
	got, _ = store.GetSession(ctx, session.ID)
	if got.MessageCount != 0 || got.TotalTokens != 0 {
		t.Errorf("after delete active: count=%d tokens=%d, want 0/0", got.MessageCount, got.TotalTokens)
	}

	// Soft delete of an archived message.
	if err := store.SoftDeleteMessage(ctx, m2.ID); err != nil {
		t.Fatalf("SoftDeleteMessage failed: %v", err)
	}
	got, _ = store.GetSession(ctx, session.ID)
	if got.ArchivedCount != 1 || got.ArchivedTokens != 10 {
		t.Errorf("after delete archived: count=%d tokens=%d, want 1/10", got.ArchivedCount, got.ArchivedTokens)
	}

	// Reconcile must land on the same numbers.
	rec, err := store.ReconcileSessionCounters(ctx, session.ID)
	if err != nil {
		t.Fatalf("ReconcileSessionCounters failed: %v", err)
	}
	if rec.MessageCount != 0 || rec.TotalTokens != 0 || rec.ArchivedCount != 1 || rec.ArchivedTokens != 10 {
		t.Errorf("reconcile: %d/%d active, %d/%d archived; want 0/0 and 1/10",
			rec.MessageCount, rec.TotalTokens, rec.ArchivedCount, rec.ArchivedTokens)
	}
}

func TestMemoryStoreGetMessagesFiltering(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	session := newTestSession(t, store)

	now := time.Now()
	active := newTestMessage(session.ID, 10, now)
	archived := newTestMessage(session.ID, 20, now.Add(time.Second))
	deleted := newTestMessage(session.ID, 30, now.Add(2*time.Second))
	if err := store.InsertMessages(ctx, []*types.Message{active, archived, deleted}); err != nil {
		t.Fatalf("InsertMessages failed: %v", err)
	}
	if err := store.ArchiveMessages(ctx, session.ID, []string{archived.ID}, now); err != nil {
		t.Fatalf("ArchiveMessages failed: %v", err)
	}
	if err := store.SoftDeleteMessage(ctx, deleted.ID); err != nil {
		t.Fatalf("SoftDeleteMessage failed: %v", err)
	}

	msgs, err := store.GetMessages(ctx, session.ID, false)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != active.ID {
		t.Errorf("active-only: got %d messages, want just the active one", len(msgs))
	}

	msgs, err = store.GetMessages(ctx, session.ID, true)
	if err != nil {
		t.Fatalf("GetMessages(includeArchived) failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Errorf("with archived: got %d messages, want 2", len(msgs))
	}
	// Ordered by timestamp, oldest first.
	if len(msgs) == 2 && msgs[0].ID != active.ID {
		t.Errorf("expected oldest message first, got %s", msgs[0].ID)
	}
}

func TestMemoryStoreSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	session := newTestSession(t, store)

	if err := store.RenameSession(ctx, session.ID, "renamed"); err != nil {
		t.Fatalf("RenameSession failed: %v", err)
	}
	if err := store.SetSessionPinned(ctx, session.ID, true); err != nil {
		t.Fatalf("SetSessionPinned failed: %v", err)
	}

	got, err := store.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Title != "renamed" || !got.IsPinned {
		t.Errorf("got title=%q pinned=%v, want renamed/true", got.Title, got.IsPinned)
	}

	if err := store.SoftDeleteSession(ctx, session.ID); err != nil {
		t.Fatalf("SoftDeleteSession failed: %v", err)
	}

	list, err := store.ListSessions(ctx, "/work/project", false)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("deleted session still listed: %d", len(list))
	}
	list, err = store.ListSessions(ctx, "/work/project", true)
	if err != nil {
		t.Fatalf("ListSessions(includeDeleted) failed: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("includeDeleted: got %d sessions, want 1", len(list))
	}

	if err := store.RenameSession(ctx, "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("RenameSession(missing) = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreSummaries(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	session := newTestSession(t, store)

	now := time.Now()
	older := &types.ConversationSummary{
		ID:        uuid.New().String(),
		SessionID: session.ID,
		StartTime: now.Add(-2 * time.Hour),
		EndTime:   now.Add(-time.Hour),
		Summary:   "first window",
		KeyPoints: []string{"a", "b"},
	}
	newer := &types.ConversationSummary{
		ID:        uuid.New().String(),
		SessionID: session.ID,
		StartTime: now.Add(-time.Hour),
		EndTime:   now,
		Summary:   "second window",
	}
	// Inserted newest-first to check ordering.
	if err := store.InsertSummary(ctx, newer); err != nil {
		t.Fatalf("InsertSummary failed: %v", err)
	}
	if err := store.InsertSummary(ctx, older); err != nil {
		t.Fatalf("InsertSummary failed: %v", err)
	}

	got, err := store.GetSummaries(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSummaries failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d summaries, want 2", len(got))
	}
	if got[0].ID != older.ID {
		t.Errorf("summaries not ordered by start time: first is %q", got[0].Summary)
	}
	if len(got[0].KeyPoints) != 2 {
		t.Errorf("key points lost: %v", got[0].KeyPoints)
	}
}

func TestMemoryStoreUpsertMemoryDedup(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first := &types.LongTermMemory{
		ID:         uuid.New().String(),
		Type:       types.MemoryProjectContext,
		Key:        "file:src/main.go",
		Value:      types.ProjectContextValue{Path: "src/main.go"},
		Confidence: 0.9,
	}
	created, err := store.UpsertMemory(ctx, first)
	if err != nil {
		t.Fatalf("UpsertMemory failed: %v", err)
	}
	if !created {
		t.Error("first upsert should create a row")
	}

	// Same key again: no new row, hit count bumped once.
	dup := &types.LongTermMemory{
		ID:         uuid.New().String(),
		Type:       types.MemoryProjectContext,
		Key:        "file:src/main.go",
		Value:      types.ProjectContextValue{Path: "src/main.go"},
		Confidence: 0.9,
	}
	created, err = store.UpsertMemory(ctx, dup)
	if err != nil {
		t.Fatalf("UpsertMemory duplicate failed: %v", err)
	}
	if created {
		t.Error("duplicate key must not create a second row")
	}

	got, err := store.GetMemoryByKey(ctx, "file:src/main.go")
	if err != nil {
		t.Fatalf("GetMemoryByKey failed: %v", err)
	}
	if got.ID != first.ID {
		t.Errorf("duplicate replaced the original row: id=%s", got.ID)
	}
	if got.HitCount != 1 {
		t.Errorf("hit count = %d, want 1", got.HitCount)
	}
	if got.LastHitAt == nil {
		t.Error("last hit time not recorded")
	}

	// After a soft delete the key is free for a fresh insert.
	if err := store.SoftDeleteMemory(ctx, first.ID); err != nil {
		t.Fatalf("SoftDeleteMemory failed: %v", err)
	}
	created, err = store.UpsertMemory(ctx, &types.LongTermMemory{
		ID:    uuid.New().String(),
		Type:  types.MemoryProjectContext,
		Key:   "file:src/main.go",
		Value: types.ProjectContextValue{Path: "src/main.go"},
	})
	if err != nil {
		t.Fatalf("UpsertMemory after delete failed: %v", err)
	}
	if !created {
		t.Error("upsert after soft delete should create a new row")
	}
}

func TestMemoryStoreSearchMemories(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	mems := []*types.LongTermMemory{
		{
			ID:   uuid.New().String(),
			Type: types.MemoryKeyDecision,
			Key:  "decision:use-postgres",
			Value: types.KeyDecisionValue{
				Decision: "use postgres for persistence",
			},
		},
		{
			ID:   uuid.New().String(),
			Type: types.MemoryFAQ,
			Key:  "faq:how-to-run-tests",
			Value: types.FAQValue{
				Question: "how do I run the tests",
				Answer:   "go test ./...",
			},
			WorkspacePath: "/work/other",
		},
	}
	for _, m := range mems {
		if _, err := store.UpsertMemory(ctx, m); err != nil {
			t.Fatalf("UpsertMemory failed: %v", err)
		}
	}

	got, err := store.SearchMemories(ctx, "postgres", "", 10)
	if err != nil {
		t.Fatalf("SearchMemories failed: %v", err)
	}
	if len(got) != 1 || got[0].Key != "decision:use-postgres" {
		t.Errorf("value-text search: got %d results", len(got))
	}

	// Workspace filter excludes memories bound to a different workspace.
	got, err = store.SearchMemories(ctx, "tests", "/work/project", 10)
	if err != nil {
		t.Fatalf("SearchMemories failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("workspace filter: got %d results, want 0", len(got))
	}

	if err := store.RecordMemoryHit(ctx, mems[0].ID); err != nil {
		t.Fatalf("RecordMemoryHit failed: %v", err)
	}
	got, _ = store.SearchMemories(ctx, "postgres", "", 10)
	if len(got) != 1 || got[0].HitCount != 1 {
		t.Errorf("hit not recorded: %+v", got)
	}
}

func TestMemoryStoreListMemoriesByType(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for i, key := range []string{"pattern:a", "pattern:b"} {
		m := &types.LongTermMemory{
			ID:    uuid.New().String(),
			Type:  types.MemoryCodePattern,
			Key:   key,
			Value: types.CodePatternValue{Pattern: key, Kind: "function"},
		}
		if _, err := store.UpsertMemory(ctx, m); err != nil {
			t.Fatalf("UpsertMemory failed: %v", err)
		}
		if i == 0 {
			// Give the first one a hit so it sorts first.
			if err := store.RecordMemoryHit(ctx, m.ID); err != nil {
				t.Fatalf("RecordMemoryHit failed: %v", err)
			}
		}
	}

	got, err := store.ListMemoriesByType(ctx, types.MemoryCodePattern, "")
	if err != nil {
		t.Fatalf("ListMemoriesByType failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d memories, want 2", len(got))
	}
	if got[0].Key != "pattern:a" {
		t.Errorf("expected most-hit memory first, got %s", got[0].Key)
	}
}
