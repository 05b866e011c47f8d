package memorypg

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/memorypg/memorypg/compression"
	"github.com/memorypg/memorypg/knowledge"
	"github.com/memorypg/memorypg/scoring"
	"github.com/memorypg/memorypg/selection"
	"github.com/memorypg/memorypg/storage"
	"github.com/memorypg/memorypg/tokens"
	"github.com/memorypg/memorypg/types"
)

// Engine is the application-level entry point. It composes the durable
// store, the live context selection layer, message scoring, the compression
// scheduler, and the long-term knowledge layer behind one API.
//
// All state hangs off the Engine; there are no package-level singletons.
// Run multiple Engines over separate stores in one process if needed.
type Engine struct {
	cfg    Config
	logger Logger

	store     storage.Store
	entries   *storage.EntryStore
	selection *selection.Manager
	scorer    *scoring.Scorer
	scheduler *compression.Scheduler

	extractor *knowledge.Extractor
	memories  *knowledge.Service
	retrieval *knowledge.Retrieval

	autoCompress bool

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

// New creates an Engine over the given store. The configuration is
// validated after defaults are applied; a summarization backend (Anthropic
// client or custom LLM) is required because compression cannot run without
// one.
func New(store storage.Store, cfg Config, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, NewEngineError("New", ErrInvalidConfig).
			WithContext("reason", "store is required")
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ic := newInternalConfig(cfg)
	for _, opt := range opts {
		if err := opt(ic); err != nil {
			return nil, err
		}
	}

	llm := ic.llm
	if llm == nil {
		if ic.client == nil {
			return nil, NewEngineError("New", ErrInvalidConfig).
				WithContext("reason", "an Anthropic client or a custom LLM is required")
		}
		llm = compression.NewAnthropicLLM(ic.client, ic.cfg.SummarizerMaxTokens)
	}

	summarizer := compression.NewSummarizer(llm, ic.cfg.SummarizerModel, ic.cfg.SummarizerTemperature)
	scheduler, err := compression.NewScheduler(store, summarizer, ic.cfg.compression(), ic.logger)
	if err != nil {
		return nil, err
	}

	entries := storage.NewEntryStore()
	manager := selection.NewManager(entries, ic.logger)
	if ic.runSweeper {
		manager.StartSweeper()
	}

	return &Engine{
		cfg:          ic.cfg,
		logger:       ic.logger,
		store:        store,
		entries:      entries,
		selection:    manager,
		scorer:       scoring.NewScorer(),
		scheduler:    scheduler,
		extractor:    knowledge.NewExtractor(),
		memories:     knowledge.NewService(store, ic.logger),
		retrieval:    knowledge.NewRetrieval(store, ic.logger),
		autoCompress: ic.autoCompress,
	}, nil
}

// Init prepares the long-term memory layer. Memory operations fail fast
// until Init has succeeded; everything else works without it.
func (e *Engine) Init(ctx context.Context) error {
	if err := e.alive(); err != nil {
		return err
	}
	return e.memories.Init(ctx)
}

// Close stops the expiry sweep and cancels pending delayed compressions.
// Safe to call more than once.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()

		e.selection.Close()
		e.scheduler.Close()
	})
}

func (e *Engine) alive() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	return nil
}

// =========================================================================
// Sessions
// =========================================================================

// CreateSession starts a new conversation.
func (e *Engine) CreateSession(ctx context.Context, workspacePath, engineID, title string) (*types.Session, error) {
	if err := e.alive(); err != nil {
		return nil, err
	}

	now := time.Now()
	session := &types.Session{
		ID:            uuid.New().String(),
		Title:         title,
		WorkspacePath: workspacePath,
		EngineID:      engineID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.store.CreateSession(ctx, session); err != nil {
		return nil, NewEngineError("CreateSession", wrapStorage(err))
	}
	e.logger.Info("session created", "session_id", session.ID, "workspace", workspacePath)
	return session, nil
}

// GetSession returns one session by ID.
func (e *Engine) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, NewEngineErrorWithSession("GetSession", sessionID, ErrSessionNotFound)
		}
		return nil, NewEngineErrorWithSession("GetSession", sessionID, wrapStorage(err))
	}
	return session, nil
}

// ListSessions returns sessions ordered by last update, optionally scoped
// to a workspace.
func (e *Engine) ListSessions(ctx context.Context, workspacePath string) ([]*types.Session, error) {
	return e.store.ListSessions(ctx, workspacePath, false)
}

// RenameSession sets the session title.
func (e *Engine) RenameSession(ctx context.Context, sessionID, title string) error {
	return e.store.RenameSession(ctx, sessionID, title)
}

// PinSession pins or unpins a session.
func (e *Engine) PinSession(ctx context.Context, sessionID string, pinned bool) error {
	return e.store.SetSessionPinned(ctx, sessionID, pinned)
}

// DeleteSession soft-deletes a session. Its messages and summaries stay
// recoverable in storage.
func (e *Engine) DeleteSession(ctx context.Context, sessionID string) error {
	return e.store.SoftDeleteSession(ctx, sessionID)
}

// ReconcileSession recomputes the session's running counters from its
// messages by full scan. Explicit repair only, never part of the hot path.
func (e *Engine) ReconcileSession(ctx context.Context, sessionID string) (*types.Session, error) {
	return e.store.ReconcileSessionCounters(ctx, sessionID)
}

// =========================================================================
// Messages
// =========================================================================

// SaveMessage persists one conversation turn: it fills in an ID, timestamp,
// and token estimate, scores the message for importance, and schedules the
// delayed compression check when auto compression is enabled.
func (e *Engine) SaveMessage(ctx context.Context, msg *types.Message) (*types.Message, error) {
	if err := e.alive(); err != nil {
		return nil, err
	}
	if msg == nil || msg.SessionID == "" {
		return nil, NewEngineError("SaveMessage", ErrInvalidFilter).
			WithContext("reason", "message with a session_id is required")
	}

	cp := *msg
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	if cp.Timestamp.IsZero() {
		cp.Timestamp = time.Now()
	}
	if cp.Tokens <= 0 {
		cp.Tokens = tokens.EstimateMessage(&cp)
	}
	if cp.ImportanceScore == 0 {
		cp.ImportanceScore = e.scorer.Score(&cp, time.Now()).Total
	}

	if err := e.store.InsertMessage(ctx, &cp); err != nil {
		return nil, NewEngineErrorWithSession("SaveMessage", cp.SessionID, wrapStorage(err))
	}

	if e.autoCompress {
		e.scheduler.TriggerDelayed(cp.SessionID)
	}
	return &cp, nil
}

// GetMessages returns the session's active messages in order. Set
// includeArchived to also see compressed-away history.
func (e *Engine) GetMessages(ctx context.Context, sessionID string, includeArchived bool) ([]*types.Message, error) {
	return e.store.GetMessages(ctx, sessionID, includeArchived)
}

// ScoreMessage rates a message on the six importance dimensions.
func (e *Engine) ScoreMessage(msg *types.Message) scoring.Score {
	return e.scorer.Score(msg, time.Now())
}

// =========================================================================
// Context selection
// =========================================================================

// UpsertContext stores a live context entry, filling in defaults.
func (e *Engine) UpsertContext(entry *types.ContextEntry) (*types.ContextEntry, error) {
	if err := e.alive(); err != nil {
		return nil, err
	}
	return e.selection.Upsert(entry)
}

// UpsertContexts stores a batch of entries. It stops at the first invalid
// one.
func (e *Engine) UpsertContexts(entries []*types.ContextEntry) ([]*types.ContextEntry, error) {
	if err := e.alive(); err != nil {
		return nil, err
	}
	return e.selection.UpsertMany(entries)
}

// TouchContext records an access on an entry, refreshing its recency for
// budget packing.
func (e *Engine) TouchContext(id string) bool {
	return e.selection.Touch(id)
}

// RemoveContext deletes a live entry by ID.
func (e *Engine) RemoveContext(id string) bool {
	return e.selection.Remove(id)
}

// RemoveContextWhere deletes every live entry matching the predicate and
// returns how many were removed.
func (e *Engine) RemoveContextWhere(match func(*types.ContextEntry) bool) int {
	return e.selection.RemoveWhere(match)
}

// SubscribeContext registers a callback for live entry changes (upserts,
// removals, expiry sweeps). The returned cancel unregisters it.
func (e *Engine) SubscribeContext(fn func(storage.ChangeEvent)) (cancel func()) {
	return e.entries.Subscribe(fn)
}

// QueryContext filters the live entries, boosts priorities for the request,
// and packs the result into the token budget. The engine's configured
// budget applies when the request leaves MaxTokens unset.
func (e *Engine) QueryContext(req *selection.Request) *selection.Result {
	cp := selection.Request{}
	if req != nil {
		cp = *req
	}
	if cp.MaxTokens <= 0 {
		cp.MaxTokens = e.cfg.ContextMaxTokens
		cp.ReservedTokens = e.cfg.ReservedTokens
	}
	return e.selection.Query(&cp)
}

// BuildPrompt runs QueryContext and renders the selection in the given
// format. The Result comes back too so callers can inspect what was
// dropped.
func (e *Engine) BuildPrompt(req *selection.Request, format selection.PromptFormat) (string, *selection.Result, error) {
	res := e.QueryContext(req)
	rendered, err := selection.Render(res, format)
	if err != nil {
		return "", res, err
	}
	return rendered, res, nil
}

// =========================================================================
// Compression
// =========================================================================

// ShouldCompress reports whether any compression trigger fires for the
// session's active messages.
func (e *Engine) ShouldCompress(ctx context.Context, sessionID string) (bool, error) {
	msgs, err := e.store.GetMessages(ctx, sessionID, false)
	if err != nil {
		return false, NewEngineErrorWithSession("ShouldCompress", sessionID, wrapStorage(err))
	}
	return e.scheduler.ShouldCompress(msgs, time.Now()), nil
}

// Compress runs one compression pass for the session. Failures come back
// inside the result, never as an error: the conversation continues against
// uncompressed history.
func (e *Engine) Compress(ctx context.Context, sessionID string) *compression.CompressionResult {
	return e.scheduler.Compress(ctx, sessionID)
}

// CompressionHistory returns the session's summary provenance records,
// oldest first.
func (e *Engine) CompressionHistory(ctx context.Context, sessionID string) ([]*types.ConversationSummary, error) {
	return e.store.GetSummaries(ctx, sessionID)
}

// =========================================================================
// Knowledge
// =========================================================================

// ExtractSession mines a session's full history (archived included) for
// knowledge candidates and persists them. Returns how many new memories
// were created; repeated extraction of the same session dedups by key.
func (e *Engine) ExtractSession(ctx context.Context, sessionID string) (int, error) {
	if err := e.alive(); err != nil {
		return 0, err
	}

	session, err := e.GetSession(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	msgs, err := e.store.GetMessages(ctx, sessionID, true)
	if err != nil {
		return 0, NewEngineErrorWithSession("ExtractSession", sessionID, wrapStorage(err))
	}

	candidates := e.extractor.ExtractFromMessages(msgs, session.WorkspacePath, sessionID)
	created, err := e.memories.SaveBatch(ctx, candidates)
	if err != nil {
		return created, err
	}
	e.logger.Debug("session extracted",
		"session_id", sessionID,
		"candidates", len(candidates),
		"created", created)
	return created, nil
}

// ExtractPreferences aggregates usage patterns across the workspace's
// sessions into a user-preference memory. A no-op without sessions.
func (e *Engine) ExtractPreferences(ctx context.Context, workspacePath string) error {
	if err := e.alive(); err != nil {
		return err
	}

	sessions, err := e.store.ListSessions(ctx, workspacePath, false)
	if err != nil {
		return NewEngineError("ExtractPreferences", wrapStorage(err))
	}
	pref := e.extractor.ExtractUserPreference(sessions)
	if pref == nil {
		return nil
	}
	_, err = e.memories.SaveKnowledge(ctx, pref)
	return err
}

// FindRelevantMemories searches long-term memories for the query and
// returns them ranked by composite relevance.
func (e *Engine) FindRelevantMemories(ctx context.Context, query, workspacePath string, limit int) ([]*knowledge.ScoredMemory, error) {
	return e.retrieval.SemanticSearch(ctx, query, workspacePath, limit)
}

// ShouldRemind reports whether an established memory matching the query is
// worth surfacing proactively, and the reminder text when it is.
func (e *Engine) ShouldRemind(ctx context.Context, query, workspacePath string) (bool, string, error) {
	return e.retrieval.ShouldRemind(ctx, query, workspacePath)
}

// RecordMemoryHit notes that a retrieved memory was actually used.
func (e *Engine) RecordMemoryHit(ctx context.Context, memoryID string) error {
	return e.retrieval.RecordHit(ctx, memoryID)
}

// Memories lists live memories of one type, optionally scoped to a
// workspace.
func (e *Engine) Memories(ctx context.Context, memoryType types.MemoryType, workspacePath string) ([]*types.LongTermMemory, error) {
	return e.memories.GetByType(ctx, memoryType, workspacePath)
}

// Forget soft-deletes a memory by ID.
func (e *Engine) Forget(ctx context.Context, memoryID string) error {
	return e.memories.Forget(ctx, memoryID)
}
