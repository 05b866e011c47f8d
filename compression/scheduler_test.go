package compression

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/memorypg/memorypg/storage"
	"github.com/memorypg/memorypg/tuning"
	"github.com/memorypg/memorypg/types"
)

func newTestScheduler(t *testing.T, store storage.Store, llm LLM, cfg *Config) *Scheduler {
	t.Helper()
	if llm == nil {
		llm = &fakeLLM{response: `{"summary": "window summary", "keyPoints": ["point"]}`}
	}
	s, err := NewScheduler(store, NewSummarizer(llm, "test-model", 0.3), cfg, nil)
	if err != nil {
		t.Fatalf("NewScheduler failed: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func seedSession(t *testing.T, store storage.Store, msgs []*types.Message) string {
	t.Helper()
	session := &types.Session{ID: uuid.New().String()}
	if err := store.CreateSession(context.Background(), session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	for _, msg := range msgs {
		msg.SessionID = session.ID
		if msg.ID == "" {
			msg.ID = uuid.New().String()
		}
	}
	if err := store.InsertMessages(context.Background(), msgs); err != nil {
		t.Fatalf("InsertMessages failed: %v", err)
	}
	return session.ID
}

func msgAt(age time.Duration, tokens int, now time.Time) *types.Message {
	return &types.Message{
		Role:      types.RoleUser,
		Content:   "message content",
		Tokens:    tokens,
		Timestamp: now.Add(-age),
	}
}

func TestShouldCompressTripleTrigger(t *testing.T) {
	store := storage.NewMemoryStore()
	s := newTestScheduler(t, store, nil, &Config{
		MaxTokens:   1000,
		MaxMessages: 10,
		MaxAge:      168 * time.Hour,
	})
	now := time.Now()

	if s.ShouldCompress(nil, now) {
		t.Error("no messages should never trigger")
	}

	// Token trigger.
	if !s.ShouldCompress([]*types.Message{msgAt(time.Minute, 1000, now)}, now) {
		t.Error("token threshold should trigger")
	}

	// Count trigger.
	var many []*types.Message
	for i := 0; i < 10; i++ {
		many = append(many, msgAt(time.Minute, 1, now))
	}
	if !s.ShouldCompress(many, now) {
		t.Error("message count threshold should trigger")
	}

	// Age trigger.
	if !s.ShouldCompress([]*types.Message{msgAt(200*time.Hour, 1, now)}, now) {
		t.Error("age threshold should trigger")
	}

	// None of the three.
	if s.ShouldCompress([]*types.Message{msgAt(time.Minute, 1, now)}, now) {
		t.Error("a single fresh small message should not trigger")
	}
}

// Oldest message aged 200h with a 168h threshold: the time strategy runs
// and archives exactly the over-age slice; the summary's time range covers
// that slice.
func TestCompressTimeStrategyScenario(t *testing.T) {
	store := storage.NewMemoryStore()
	now := time.Now()

	old1 := msgAt(200*time.Hour, 10, now)
	old2 := msgAt(180*time.Hour, 10, now)
	var msgs []*types.Message
	msgs = append(msgs, old1, old2)
	for i := 0; i < 8; i++ {
		msgs = append(msgs, msgAt(time.Duration(i)*time.Minute, 10, now))
	}
	sessionID := seedSession(t, store, msgs)

	s := newTestScheduler(t, store, nil, &Config{
		MaxTokens:   100_000,
		MaxMessages: 100,
		MaxAge:      168 * time.Hour,
	})

	result := s.Compress(context.Background(), sessionID)
	if !result.Success {
		t.Fatalf("Compress failed: %v", result.Error)
	}
	if result.Strategy != StrategyTime {
		t.Errorf("strategy = %s, want %s", result.Strategy, StrategyTime)
	}
	if result.ArchivedCount != 2 {
		t.Errorf("archived %d messages, want exactly the 2 over-age ones", result.ArchivedCount)
	}
	if result.ArchivedTokens != 20 {
		t.Errorf("archived tokens = %d, want 20", result.ArchivedTokens)
	}
	if result.BeforeTokens < result.AfterTokens {
		t.Errorf("before %d < after %d on a successful archive", result.BeforeTokens, result.AfterTokens)
	}

	summaries, err := store.GetSummaries(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("GetSummaries failed: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("got %d summaries, want 1", len(summaries))
	}
	sum := summaries[0]
	if !sum.StartTime.Equal(old1.Timestamp) || !sum.EndTime.Equal(old2.Timestamp) {
		t.Errorf("summary range [%v, %v] does not match the archived slice [%v, %v]",
			sum.StartTime, sum.EndTime, old1.Timestamp, old2.Timestamp)
	}
	if sum.MessageCount != 2 {
		t.Errorf("summary message count = %d, want 2", sum.MessageCount)
	}

	remaining, _ := store.GetMessages(context.Background(), sessionID, false)
	if len(remaining) != 8 {
		t.Errorf("%d active messages remain, want 8", len(remaining))
	}
}

// 120 fresh messages trip only the count trigger: age and token branches
// are false, so the decision order falls through to Importance.
func TestCompressCountTriggerFallsThroughToImportance(t *testing.T) {
	store := storage.NewMemoryStore()
	now := time.Now()

	var msgs []*types.Message
	for i := 0; i < 120; i++ {
		msgs = append(msgs, msgAt(time.Duration(i)*time.Second, 10, now))
	}
	sessionID := seedSession(t, store, msgs)

	s := newTestScheduler(t, store, nil, &Config{
		MaxTokens:   100_000,
		MaxMessages: 100,
		MaxAge:      168 * time.Hour,
	})

	active, _ := store.GetMessages(context.Background(), sessionID, false)
	if !s.ShouldCompress(active, now) {
		t.Fatal("count threshold should trigger")
	}

	result := s.Compress(context.Background(), sessionID)
	if !result.Success {
		t.Fatalf("Compress failed: %v", result.Error)
	}
	if result.Strategy != StrategyImportance {
		t.Errorf("strategy = %s, want %s", result.Strategy, StrategyImportance)
	}
	if result.ArchivedCount == 0 {
		t.Error("expected the importance strategy to archive something")
	}
}

func TestCompressSizeStrategyHalvesTokens(t *testing.T) {
	store := storage.NewMemoryStore()
	now := time.Now()

	var msgs []*types.Message
	for i := 0; i < 10; i++ {
		msgs = append(msgs, msgAt(time.Duration(10-i)*time.Minute, 100, now))
	}
	sessionID := seedSession(t, store, msgs)

	s := newTestScheduler(t, store, nil, &Config{
		MaxTokens:        1000, // exactly at the token threshold
		MaxMessages:      1000,
		MaxAge:           168 * time.Hour,
		TargetTokenRatio: 0.5,
	})

	result := s.Compress(context.Background(), sessionID)
	if !result.Success {
		t.Fatalf("Compress failed: %v", result.Error)
	}
	if result.Strategy != StrategySize {
		t.Errorf("strategy = %s, want %s", result.Strategy, StrategySize)
	}
	// 1000 tokens total, ratio 0.5: five 100-token messages go.
	if result.ArchivedCount != 5 || result.ArchivedTokens != 500 {
		t.Errorf("archived %d messages / %d tokens, want 5/500",
			result.ArchivedCount, result.ArchivedTokens)
	}
	// Oldest first.
	remaining, _ := store.GetMessages(context.Background(), sessionID, false)
	for _, msg := range remaining {
		if now.Sub(msg.Timestamp) > 5*time.Minute {
			t.Errorf("an older message survived while newer ones were archived")
		}
	}
}

func TestCompressNoOpOnEmptySession(t *testing.T) {
	store := storage.NewMemoryStore()
	sessionID := seedSession(t, store, nil)

	s := newTestScheduler(t, store, nil, nil)
	result := s.Compress(context.Background(), sessionID)
	if !result.Success {
		t.Fatalf("empty session compression should be a successful no-op, got %v", result.Error)
	}
	if result.ArchivedCount != 0 || result.CompressionRatio != 1.0 {
		t.Errorf("no-op result: archived=%d ratio=%f", result.ArchivedCount, result.CompressionRatio)
	}
}

func TestCompressSummarizerFailureArchivesNothing(t *testing.T) {
	store := storage.NewMemoryStore()
	now := time.Now()
	sessionID := seedSession(t, store, []*types.Message{
		msgAt(200*time.Hour, 10, now),
		msgAt(time.Minute, 10, now),
	})

	s := newTestScheduler(t, store, &fakeLLM{err: errors.New("api down")}, &Config{
		MaxTokens:   100_000,
		MaxMessages: 100,
		MaxAge:      168 * time.Hour,
	})

	result := s.Compress(context.Background(), sessionID)
	if result.Success {
		t.Fatal("expected a failed result when summarization fails")
	}
	if result.Error == nil {
		t.Fatal("failed result must carry the error")
	}

	// All-or-nothing: nothing was archived and no summary row exists.
	active, _ := store.GetMessages(context.Background(), sessionID, false)
	if len(active) != 2 {
		t.Errorf("%d active messages after failed compression, want 2", len(active))
	}
	summaries, _ := store.GetSummaries(context.Background(), sessionID)
	if len(summaries) != 0 {
		t.Errorf("%d summaries persisted after failed compression, want 0", len(summaries))
	}
}

func TestImportanceStrategyProtectsHighScores(t *testing.T) {
	now := time.Now()
	cfg := &Config{TargetTokenRatio: 0.5}
	cfg.ApplyDefaults()

	msgs := []*types.Message{
		{ID: "protected", Tokens: 100, ImportanceScore: 90, Timestamp: now.Add(-3 * time.Hour)},
		{ID: "boundary", Tokens: 100, ImportanceScore: 70, Timestamp: now.Add(-2 * time.Hour)},
		{ID: "low", Tokens: 100, ImportanceScore: 20, Timestamp: now.Add(-time.Hour)},
		{ID: "unscored", Tokens: 100, Timestamp: now.Add(-30 * time.Minute)},
	}

	selected := ImportanceStrategy{}.Select(msgs, cfg, now)

	ids := make(map[string]bool)
	for _, msg := range selected {
		ids[msg.ID] = true
	}
	if ids["protected"] {
		t.Error("message scoring above the protection threshold was selected")
	}
	// Target is 200 of 400 tokens; the two lowest scores reach it:
	// low (20) then unscored (default 50). boundary (70) stays: it is
	// eligible (protection is strictly above the threshold) but the target
	// was already met.
	if !ids["low"] {
		t.Error("lowest-scoring message was not selected")
	}
	if !ids["unscored"] {
		t.Error("unscored message (default score) was not selected")
	}
	if ids["boundary"] {
		t.Error("selection went past the target reduction")
	}
}

func TestImportanceStrategyAcceptsUnderReach(t *testing.T) {
	now := time.Now()
	cfg := &Config{TargetTokenRatio: 0.5}
	cfg.ApplyDefaults()

	// Everything protected: the strategy archives nothing rather than
	// forcing eviction.
	msgs := []*types.Message{
		{ID: "a", Tokens: 100, ImportanceScore: 95, Timestamp: now.Add(-2 * time.Hour)},
		{ID: "b", Tokens: 100, ImportanceScore: 80, Timestamp: now.Add(-time.Hour)},
	}
	if selected := (ImportanceStrategy{}).Select(msgs, cfg, now); len(selected) != 0 {
		t.Errorf("selected %d protected messages, want 0", len(selected))
	}
}

func TestTriggerDelayedRevalidates(t *testing.T) {
	store := storage.NewMemoryStore()
	now := time.Now()
	// One fresh message: below every threshold, so the delayed check must
	// conclude there is nothing to do.
	sessionID := seedSession(t, store, []*types.Message{msgAt(time.Minute, 10, now)})

	llm := &fakeLLM{response: `{"summary": "s", "keyPoints": []}`}
	s := newTestScheduler(t, store, llm, nil)

	s.TriggerDelayed(sessionID)
	s.TriggerDelayed(sessionID) // collapses into the pending trigger

	time.Sleep(tuning.DelayedCompressionDelay + 200*time.Millisecond)

	if llm.calls != 0 {
		t.Errorf("summarizer called %d times for a session below thresholds, want 0", llm.calls)
	}
	summaries, _ := store.GetSummaries(context.Background(), sessionID)
	if len(summaries) != 0 {
		t.Errorf("delayed trigger compressed a session below thresholds")
	}
}

// failingSummaryStore rejects summary inserts to exercise the storage
// failure path.
type failingSummaryStore struct {
	storage.Store
	err error
}

func (s *failingSummaryStore) InsertSummary(context.Context, *types.ConversationSummary) error {
	return s.err
}

func TestCompressSummaryPersistFailureIsStorageError(t *testing.T) {
	base := storage.NewMemoryStore()
	now := time.Now()
	sessionID := seedSession(t, base, []*types.Message{
		msgAt(200*time.Hour, 10, now),
		msgAt(time.Minute, 10, now),
	})

	store := &failingSummaryStore{Store: base, err: errors.New("disk full")}
	s := newTestScheduler(t, store, nil, nil)

	result := s.Compress(context.Background(), sessionID)
	if result.Success {
		t.Fatal("compression must fail when the summary cannot be persisted")
	}
	if !errors.Is(result.Error, ErrStorageError) {
		t.Errorf("error = %v, want ErrStorageError", result.Error)
	}

	// All-or-nothing: nothing archived without a persisted summary.
	active, err := base.GetMessages(context.Background(), sessionID, false)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(active) != 2 {
		t.Errorf("active messages = %d, want 2", len(active))
	}
}
