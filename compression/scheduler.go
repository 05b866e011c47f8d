package compression

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/memorypg/memorypg/storage"
	"github.com/memorypg/memorypg/tokens"
	"github.com/memorypg/memorypg/tuning"
	"github.com/memorypg/memorypg/types"
)

// Logger is the minimal logging interface the compression layer needs.
// *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// CompressionResult reports the outcome of one compression pass. A failed
// pass is reported here, never as a panic or returned error: the caller
// continues against uncompressed history.
type CompressionResult struct {
	Success  bool         `json:"success"`
	Strategy StrategyName `json:"strategy,omitempty"`

	// SummaryID identifies the persisted ConversationSummary, when one was
	// produced.
	SummaryID string `json:"summary_id,omitempty"`

	ArchivedCount  int `json:"archived_count"`
	ArchivedTokens int `json:"archived_tokens"`

	BeforeTokens int `json:"before_tokens"`
	AfterTokens  int `json:"after_tokens"`
	// CompressionRatio is AfterTokens/BeforeTokens; 1.0 for a no-op.
	CompressionRatio float64 `json:"compression_ratio"`

	DurationMs int64 `json:"duration_ms"`
	CostTokens int   `json:"cost_tokens"`

	Error error `json:"-"`
}

// Scheduler decides when a session's history is compressed and runs the
// compression pipeline: pick a strategy, summarize the selected slice,
// persist the summary, then archive. The summary is always persisted before
// any message is archived, so a failure can never leave a partially
// archived session without its summary.
type Scheduler struct {
	store      storage.Store
	summarizer *Summarizer
	cfg        *Config
	logger     Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	closed  bool
}

// NewScheduler creates a Scheduler. A nil config uses the defaults; a nil
// logger disables logging.
func NewScheduler(store storage.Store, summarizer *Summarizer, cfg *Config, logger Logger) (*Scheduler, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Scheduler{
		store:      store,
		summarizer: summarizer,
		cfg:        cfg,
		logger:     logger,
		pending:    make(map[string]*time.Timer),
	}, nil
}

// Config returns the scheduler's configuration.
func (s *Scheduler) Config() *Config {
	return s.cfg
}

// ShouldCompress reports whether any trigger fires for the given active
// messages: total tokens at or over MaxTokens, message count at or over
// MaxMessages, or oldest message age at or over MaxAge.
func (s *Scheduler) ShouldCompress(msgs []*types.Message, now time.Time) bool {
	if len(msgs) == 0 {
		return false
	}
	if sumTokens(msgs) >= s.cfg.MaxTokens {
		return true
	}
	if len(msgs) >= s.cfg.MaxMessages {
		return true
	}
	return oldestAge(msgs, now) >= s.cfg.MaxAge
}

// pickStrategy applies the fixed decision order: age threshold exceeded
// selects Time; else token threshold exceeded selects Size; everything else
// (including a count-only trigger) falls through to Importance.
func (s *Scheduler) pickStrategy(msgs []*types.Message, now time.Time) Strategy {
	if oldestAge(msgs, now) >= s.cfg.MaxAge {
		return TimeStrategy{}
	}
	if sumTokens(msgs) >= s.cfg.MaxTokens {
		return SizeStrategy{}
	}
	return ImportanceStrategy{}
}

func oldestAge(msgs []*types.Message, now time.Time) time.Duration {
	oldest := time.Duration(0)
	for _, msg := range msgs {
		if age := msg.Age(now); age > oldest {
			oldest = age
		}
	}
	return oldest
}

// Compress runs one compression pass for the session. It never returns an
// error or panics; failures come back as a failed CompressionResult.
func (s *Scheduler) Compress(ctx context.Context, sessionID string) *CompressionResult {
	start := time.Now()
	result := s.compress(ctx, sessionID, start)
	result.DurationMs = time.Since(start).Milliseconds()

	if result.Error != nil {
		s.logger.Warn("compression failed",
			"session_id", sessionID,
			"strategy", string(result.Strategy),
			"error", result.Error)
	} else {
		s.logger.Info("compression finished",
			"session_id", sessionID,
			"strategy", string(result.Strategy),
			"archived", result.ArchivedCount,
			"before_tokens", result.BeforeTokens,
			"after_tokens", result.AfterTokens)
	}
	return result
}

func (s *Scheduler) compress(ctx context.Context, sessionID string, now time.Time) *CompressionResult {
	msgs, err := s.store.GetMessages(ctx, sessionID, false)
	if err != nil {
		return &CompressionResult{
			Error: WrapErrorWithSession("Compress", sessionID, WrapStorageError(err)),
		}
	}

	beforeTokens := sumTokens(msgs)
	strategy := s.pickStrategy(msgs, now)
	selected := strategy.Select(msgs, s.cfg, now)

	if len(selected) == 0 {
		// Nothing to archive: a successful no-op.
		return &CompressionResult{
			Success:          true,
			Strategy:         strategy.Name(),
			BeforeTokens:     beforeTokens,
			AfterTokens:      beforeTokens,
			CompressionRatio: 1.0,
		}
	}

	// Summarize first; the archive step only runs once a summary row
	// exists, even a degraded fallback one.
	output, err := s.summarizer.Summarize(ctx, selected)
	if err != nil {
		return &CompressionResult{
			Strategy:     strategy.Name(),
			BeforeTokens: beforeTokens,
			Error:        WrapErrorWithSession("Summarize", sessionID, err),
		}
	}

	archivedTokens := sumTokens(selected)
	summary := &types.ConversationSummary{
		ID:           uuid.New().String(),
		SessionID:    sessionID,
		StartTime:    selected[0].Timestamp,
		EndTime:      selected[len(selected)-1].Timestamp,
		MessageCount: len(selected),
		TotalTokens:  archivedTokens,
		Summary:      output.Summary,
		KeyPoints:    output.KeyPoints,
		ModelUsed:    output.Model,
		CostTokens:   output.CostTokens,
	}
	if err := s.store.InsertSummary(ctx, summary); err != nil {
		return &CompressionResult{
			Strategy:     strategy.Name(),
			BeforeTokens: beforeTokens,
			CostTokens:   output.CostTokens,
			Error:        WrapErrorWithSession("PersistSummary", sessionID, WrapStorageError(err)),
		}
	}

	ids := make([]string, len(selected))
	for i, msg := range selected {
		ids[i] = msg.ID
	}
	if err := s.store.ArchiveMessages(ctx, sessionID, ids, time.Now()); err != nil {
		return &CompressionResult{
			Strategy:     strategy.Name(),
			SummaryID:    summary.ID,
			BeforeTokens: beforeTokens,
			CostTokens:   output.CostTokens,
			Error:        WrapErrorWithSession("Archive", sessionID, WrapStorageError(err)),
		}
	}

	summaryTokens := tokens.EstimateText(output.Summary)
	afterTokens := beforeTokens - archivedTokens +
		int(float64(summaryTokens)*tuning.SummaryTokenWeight)

	ratio := 1.0
	if beforeTokens > 0 {
		ratio = float64(afterTokens) / float64(beforeTokens)
	}

	return &CompressionResult{
		Success:          true,
		Strategy:         strategy.Name(),
		SummaryID:        summary.ID,
		ArchivedCount:    len(selected),
		ArchivedTokens:   archivedTokens,
		BeforeTokens:     beforeTokens,
		AfterTokens:      afterTokens,
		CompressionRatio: ratio,
		CostTokens:       output.CostTokens,
	}
}

// TriggerDelayed schedules a fire-and-forget compression check after the
// debounce window. Rapid successive triggers for the same session collapse
// into one; the check re-validates ShouldCompress before compressing.
func (s *Scheduler) TriggerDelayed(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if _, scheduled := s.pending[sessionID]; scheduled {
		return
	}
	s.pending[sessionID] = time.AfterFunc(tuning.DelayedCompressionDelay, func() {
		s.mu.Lock()
		delete(s.pending, sessionID)
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}

		ctx := context.Background()
		msgs, err := s.store.GetMessages(ctx, sessionID, false)
		if err != nil {
			s.logger.Warn("delayed compression check failed", "session_id", sessionID, "error", err)
			return
		}
		if !s.ShouldCompress(msgs, time.Now()) {
			return
		}
		s.Compress(ctx, sessionID)
	})
}

// Close cancels all pending delayed triggers.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for id, timer := range s.pending {
		timer.Stop()
		delete(s.pending, id)
	}
}
