package memorypg

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/memorypg/memorypg/selection"
	"github.com/memorypg/memorypg/storage"
	"github.com/memorypg/memorypg/types"
)

// fakeLLM returns a canned JSON summary and records its calls.
type fakeLLM struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeLLM) Complete(_ context.Context, _, _ string, _ float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return `{"summary": "discussed the auth refactor", "keyPoints": ["login handler fixed"]}`, nil
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, storage.Store, *fakeLLM) {
	t.Helper()
	store := storage.NewMemoryStore()
	llm := &fakeLLM{}

	opts = append([]Option{
		WithLLM(llm),
		WithAutoCompression(false),
		WithExpirySweep(false),
	}, opts...)
	engine, err := New(store, DefaultConfig(), opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, store, llm
}

func TestNewRequiresSummarizationBackend(t *testing.T) {
	_, err := New(storage.NewMemoryStore(), DefaultConfig())
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("New without client or LLM = %v, want ErrInvalidConfig", err)
	}

	if _, err := New(nil, DefaultConfig()); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("New(nil store) = %v, want ErrInvalidConfig", err)
	}
}

func TestSaveMessageFillsDefaults(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	session, err := engine.CreateSession(ctx, "/work/project", "claude", "auth work")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	msg, err := engine.SaveMessage(ctx, &types.Message{
		SessionID: session.ID,
		Role:      types.RoleUser,
		Content:   "there is an error in src/auth.go, can you fix it?",
	})
	if err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}
	if msg.ID == "" || msg.Timestamp.IsZero() {
		t.Error("SaveMessage did not fill ID and timestamp")
	}
	if msg.Tokens <= 0 {
		t.Errorf("tokens = %d, want > 0", msg.Tokens)
	}
	if msg.ImportanceScore <= 0 {
		t.Errorf("importance score = %d, want > 0", msg.ImportanceScore)
	}

	stored, err := store.GetMessages(ctx, session.ID, false)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(stored) != 1 || stored[0].ImportanceScore != msg.ImportanceScore {
		t.Errorf("persisted messages = %+v", stored)
	}

	if _, err := engine.SaveMessage(ctx, &types.Message{Role: types.RoleUser, Content: "no session"}); err == nil {
		t.Error("expected error for message without session_id")
	}
}

func TestSessionLifecycle(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	session, err := engine.CreateSession(ctx, "/work/a", "claude", "first")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := engine.RenameSession(ctx, session.ID, "renamed"); err != nil {
		t.Fatalf("RenameSession failed: %v", err)
	}
	if err := engine.PinSession(ctx, session.ID, true); err != nil {
		t.Fatalf("PinSession failed: %v", err)
	}

	got, err := engine.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Title != "renamed" || !got.IsPinned {
		t.Errorf("session = %+v", got)
	}

	if err := engine.DeleteSession(ctx, session.ID); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	sessions, err := engine.ListSessions(ctx, "/work/a")
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("deleted session still listed: %d", len(sessions))
	}

	if _, err := engine.GetSession(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("GetSession(missing) = %v, want ErrSessionNotFound", err)
	}
}

func TestCompressOldHistory(t *testing.T) {
	engine, store, llm := newTestEngine(t)
	ctx := context.Background()

	session, err := engine.CreateSession(ctx, "/work/project", "claude", "old history")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	// Two messages past the age threshold, three fresh ones.
	now := time.Now()
	ages := []time.Duration{200 * time.Hour, 180 * time.Hour, time.Hour, time.Minute, 0}
	for i, age := range ages {
		err := store.InsertMessage(ctx, &types.Message{
			ID:        "m" + string(rune('0'+i)),
			SessionID: session.ID,
			Role:      types.RoleUser,
			Content:   "message",
			Tokens:    10,
			Timestamp: now.Add(-age),
		})
		if err != nil {
			t.Fatalf("InsertMessage failed: %v", err)
		}
	}

	should, err := engine.ShouldCompress(ctx, session.ID)
	if err != nil {
		t.Fatalf("ShouldCompress failed: %v", err)
	}
	if !should {
		t.Fatal("age trigger did not fire")
	}

	result := engine.Compress(ctx, session.ID)
	if !result.Success {
		t.Fatalf("compression failed: %v", result.Error)
	}
	if result.ArchivedCount != 2 {
		t.Errorf("archived %d messages, want 2", result.ArchivedCount)
	}
	if llm.callCount() != 1 {
		t.Errorf("summarizer called %d times, want 1", llm.callCount())
	}

	history, err := engine.CompressionHistory(ctx, session.ID)
	if err != nil {
		t.Fatalf("CompressionHistory failed: %v", err)
	}
	if len(history) != 1 || history[0].MessageCount != 2 {
		t.Fatalf("history = %+v", history)
	}
	if !strings.Contains(history[0].Summary, "auth refactor") {
		t.Errorf("summary = %q", history[0].Summary)
	}

	active, err := engine.GetMessages(ctx, session.ID, false)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(active) != 3 {
		t.Errorf("active messages after compression = %d, want 3", len(active))
	}
}

func TestBuildPromptAppliesConfiguredBudget(t *testing.T) {
	engine, _, _ := newTestEngine(t, WithContextBudget(200, 50))

	for _, path := range []string{"src/a.go", "src/b.go", "src/c.go"} {
		_, err := engine.UpsertContext(&types.ContextEntry{
			Type:   types.TypeFile,
			Source: types.SourceIDE,
			Content: types.EntryContent{
				Path: path,
				Text: strings.Repeat("line of code\n", 20), // ~65 tokens
			},
		})
		if err != nil {
			t.Fatalf("UpsertContext failed: %v", err)
		}
	}

	prompt, res, err := engine.BuildPrompt(&selection.Request{}, selection.FormatMarkdown)
	if err != nil {
		t.Fatalf("BuildPrompt failed: %v", err)
	}
	// 150 usable tokens fit two of the three ~65-token entries.
	if len(res.Entries) != 2 || len(res.Dropped) != 1 {
		t.Errorf("selected %d, dropped %d, want 2/1", len(res.Entries), len(res.Dropped))
	}
	if res.UsedTokens > 150 {
		t.Errorf("used tokens %d exceed the 150 budget", res.UsedTokens)
	}
	// Equal priorities pack most recent first, so the newest entry is in.
	if !strings.Contains(prompt, "src/c.go") {
		t.Errorf("prompt missing newest entry:\n%s", prompt)
	}
}

func TestContextNotificationsAndRemoval(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	var events []storage.ChangeKind
	cancel := engine.SubscribeContext(func(ev storage.ChangeEvent) {
		events = append(events, ev.Kind)
	})
	defer cancel()

	entry, err := engine.UpsertContext(&types.ContextEntry{
		Type:    types.TypeFile,
		Source:  types.SourceIDE,
		Content: types.EntryContent{Path: "a.go", Text: "package a"},
	})
	if err != nil {
		t.Fatalf("UpsertContext failed: %v", err)
	}
	if !engine.TouchContext(entry.ID) {
		t.Error("TouchContext did not find the entry")
	}
	if !engine.RemoveContext(entry.ID) {
		t.Error("RemoveContext did not find the entry")
	}

	if len(events) != 2 || events[0] != storage.ChangeUpserted || events[1] != storage.ChangeRemoved {
		t.Errorf("events = %v", events)
	}
}

func TestKnowledgeRoundTrip(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	// Memory operations fail fast before Init.
	if _, err := engine.Memories(ctx, types.MemoryFAQ, ""); err == nil {
		t.Error("expected failure before Init")
	}
	if err := engine.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	session, err := engine.CreateSession(ctx, "/work/project", "claude", "extraction")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	turns := []*types.Message{
		{SessionID: session.ID, Role: types.RoleUser, Content: "how do I run the migrations?"},
		{SessionID: session.ID, Role: types.RoleAssistant, Content: "Run make migrate. We decided to use pgx for src/db/store.go."},
	}
	for _, msg := range turns {
		if _, err := engine.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("SaveMessage failed: %v", err)
		}
	}

	created, err := engine.ExtractSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("ExtractSession failed: %v", err)
	}
	if created == 0 {
		t.Fatal("extraction created no memories")
	}

	// Re-extraction dedups by key.
	again, err := engine.ExtractSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("ExtractSession failed: %v", err)
	}
	if again != 0 {
		t.Errorf("re-extraction created %d memories, want 0", again)
	}

	hits, err := engine.FindRelevantMemories(ctx, "store.go", "/work/project", 5)
	if err != nil {
		t.Fatalf("FindRelevantMemories failed: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("no memories found for extracted file path")
	}
	if err := engine.RecordMemoryHit(ctx, hits[0].Memory.ID); err != nil {
		t.Fatalf("RecordMemoryHit failed: %v", err)
	}

	if err := engine.Forget(ctx, hits[0].Memory.ID); err != nil {
		t.Fatalf("Forget failed: %v", err)
	}

	if err := engine.ExtractPreferences(ctx, "/work/project"); err != nil {
		t.Fatalf("ExtractPreferences failed: %v", err)
	}
	prefs, err := engine.Memories(ctx, types.MemoryUserPreference, "")
	if err != nil {
		t.Fatalf("Memories failed: %v", err)
	}
	if len(prefs) != 1 {
		t.Errorf("preference memories = %d, want 1", len(prefs))
	}
}

func TestClosedEngineRejectsWrites(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	engine.Close()
	engine.Close() // idempotent

	ctx := context.Background()
	if _, err := engine.CreateSession(ctx, "", "", ""); !errors.Is(err, ErrEngineClosed) {
		t.Errorf("CreateSession after Close = %v, want ErrEngineClosed", err)
	}
	if _, err := engine.SaveMessage(ctx, &types.Message{SessionID: "s"}); !errors.Is(err, ErrEngineClosed) {
		t.Errorf("SaveMessage after Close = %v, want ErrEngineClosed", err)
	}
	if _, err := engine.UpsertContext(nil); !errors.Is(err, ErrEngineClosed) {
		t.Errorf("UpsertContext after Close = %v, want ErrEngineClosed", err)
	}
}

// failingInsertStore rejects message inserts to exercise the storage
// failure path.
type failingInsertStore struct {
	storage.Store
	err error
}

func (s *failingInsertStore) InsertMessage(context.Context, *types.Message) error {
	return s.err
}

func TestSaveMessageWrapsStorageFailure(t *testing.T) {
	store := &failingInsertStore{
		Store: storage.NewMemoryStore(),
		err:   errors.New("connection reset"),
	}
	engine, err := New(store, DefaultConfig(),
		WithLLM(&fakeLLM{}),
		WithAutoCompression(false),
		WithExpirySweep(false),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer engine.Close()

	_, err = engine.SaveMessage(context.Background(), &types.Message{
		SessionID: "sess-1",
		Role:      types.RoleUser,
		Content:   "hello",
	})
	if !errors.Is(err, ErrStorageError) {
		t.Errorf("SaveMessage = %v, want ErrStorageError", err)
	}
	var ee *EngineError
	if !errors.As(err, &ee) || ee.SessionID != "sess-1" {
		t.Errorf("error does not carry the session: %v", err)
	}
}

func TestQueryContextDoesNotMutateRequest(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	req := &selection.Request{WorkspaceID: "ws"}
	engine.QueryContext(req)
	if req.MaxTokens != 0 || req.ReservedTokens != 0 {
		t.Errorf("engine wrote its budget into the caller's request: %+v", req)
	}

	// A nil request is still a valid empty query.
	if res := engine.QueryContext(nil); res == nil || len(res.Entries) != 0 {
		t.Errorf("nil request result = %+v", res)
	}
}
