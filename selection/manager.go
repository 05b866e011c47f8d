package selection

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/memorypg/memorypg/storage"
	"github.com/memorypg/memorypg/tokens"
	"github.com/memorypg/memorypg/tuning"
	"github.com/memorypg/memorypg/types"
)

// Logger is the minimal logging interface the selection layer needs.
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

// Request narrows and budgets a context query. The zero value selects
// everything live under the default budget.
type Request struct {
	// WorkspaceID restricts entries to one workspace when set.
	WorkspaceID string

	// CurrentFile boosts entries for the file the user is editing.
	CurrentFile string
	// MentionedFiles boosts entries for files referenced in the request.
	MentionedFiles []string

	// FilePaths restricts file-bearing entries to these paths when set.
	FilePaths []string
	// Types restricts entries to these content types when set.
	Types []types.ContextType
	// Sources restricts entries to these origins when set.
	Sources []types.ContextSource
	// MinPriority drops entries below this baseline priority.
	MinPriority int

	// MaxTokens is the total budget; DefaultContextMaxTokens when 0.
	MaxTokens int
	// ReservedTokens is subtracted from MaxTokens before packing.
	ReservedTokens int
}

func (r *Request) budget() int {
	max := r.MaxTokens
	if max <= 0 {
		max = tuning.DefaultContextMaxTokens
	}
	budget := max - r.ReservedTokens
	if budget < 0 {
		budget = 0
	}
	return budget
}

// ContextSummary aggregates what a selection contains.
type ContextSummary struct {
	FileCount        int      `json:"file_count"`
	SymbolCount      int      `json:"symbol_count"`
	DiagnosticsCount int      `json:"diagnostics_count"`
	Workspaces       []string `json:"workspaces,omitempty"`
	Languages        []string `json:"languages,omitempty"`
	HasProjectInfo   bool     `json:"has_project_info"`
	TotalTokens      int      `json:"total_tokens"`
}

// Result is the outcome of a context query.
type Result struct {
	Entries    []*types.ContextEntry
	Dropped    []DroppedEntry
	Summary    ContextSummary
	UsedTokens int
}

// Manager owns the live entry set and turns queries into budgeted
// selections. It also owns the periodic expiry sweep; Close stops it.
type Manager struct {
	entries    *storage.EntryStore
	priorities *PriorityManager
	budget     *BudgetSelector
	logger     Logger

	sweepOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
}

// NewManager creates a Manager over the given entry store. A nil logger
// disables logging.
func NewManager(entries *storage.EntryStore, logger Logger) *Manager {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Manager{
		entries:    entries,
		priorities: NewPriorityManager(),
		budget:     NewBudgetSelector(),
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// StartSweeper launches the periodic expiry sweep. Idempotent.
func (m *Manager) StartSweeper() {
	m.sweepOnce.Do(func() {
		go m.sweepLoop()
	})
}

func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(tuning.ExpirySweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			if swept := m.entries.SweepExpired(time.Now()); swept > 0 {
				m.logger.Debug("swept expired context entries", "count", swept)
			}
		}
	}
}

// Close stops the expiry sweep. Safe to call more than once.
func (m *Manager) Close() {
	m.closeOnce.Do(func() { close(m.done) })
}

// Upsert stores an entry, filling in an ID, creation time, default
// priority by source, and a token estimate by content-type rule when the
// caller omits them.
func (m *Manager) Upsert(entry *types.ContextEntry) (*types.ContextEntry, error) {
	if err := entry.Content.Validate(entry.Type); err != nil {
		return nil, err
	}

	cp := *entry
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	if cp.Priority <= 0 {
		cp.Priority = m.priorities.DefaultPriority(cp.Source)
	}
	if cp.Priority > tuning.MaxPriority {
		cp.Priority = tuning.MaxPriority
	}
	if cp.EstimatedTokens <= 0 {
		cp.EstimatedTokens = tokens.EstimateEntry(&cp)
	}

	m.entries.Upsert(&cp)
	return &cp, nil
}

// UpsertMany stores a batch of entries, applying the same defaults as
// Upsert. It stops at the first invalid entry.
func (m *Manager) UpsertMany(entries []*types.ContextEntry) ([]*types.ContextEntry, error) {
	out := make([]*types.ContextEntry, 0, len(entries))
	for _, entry := range entries {
		stored, err := m.Upsert(entry)
		if err != nil {
			return out, err
		}
		out = append(out, stored)
	}
	return out, nil
}

// Touch records an access on an entry.
func (m *Manager) Touch(id string) bool {
	return m.entries.Touch(id, time.Now())
}

// Remove deletes an entry by ID.
func (m *Manager) Remove(id string) bool {
	return m.entries.Remove(id)
}

// RemoveWhere deletes every entry matching the predicate.
func (m *Manager) RemoveWhere(match func(*types.ContextEntry) bool) int {
	return m.entries.RemoveWhere(match)
}

// Query filters the live entries, applies per-query priority boosts, packs
// them into the token budget, and summarizes the selection. Empty input
// yields an empty, non-error result.
func (m *Manager) Query(req *Request) *Result {
	if req == nil {
		req = &Request{}
	}
	now := time.Now()

	filtered := m.filter(m.entries.List(), req, now)
	adjusted := m.priorities.AdjustPriorities(filtered, req)
	sel := m.budget.SelectWithinBudget(adjusted, req.budget())

	res := &Result{
		Entries:    sel.Selected,
		Dropped:    sel.Dropped,
		UsedTokens: sel.UsedTokens,
		Summary:    summarize(sel.Selected, sel.UsedTokens),
	}
	m.logger.Debug("context query",
		"candidates", len(filtered),
		"selected", len(res.Entries),
		"dropped", len(res.Dropped),
		"tokens", res.UsedTokens)
	return res
}

func (m *Manager) filter(entries []*types.ContextEntry, req *Request, now time.Time) []*types.ContextEntry {
	typeSet := make(map[types.ContextType]bool, len(req.Types))
	for _, t := range req.Types {
		typeSet[t] = true
	}
	sourceSet := make(map[types.ContextSource]bool, len(req.Sources))
	for _, s := range req.Sources {
		sourceSet[s] = true
	}
	pathSet := make(map[string]bool, len(req.FilePaths))
	for _, p := range req.FilePaths {
		pathSet[p] = true
	}

	var out []*types.ContextEntry
	for _, entry := range entries {
		if entry.Expired(now) {
			continue
		}
		if req.WorkspaceID != "" && entry.Metadata.WorkspaceID != "" &&
			entry.Metadata.WorkspaceID != req.WorkspaceID {
			continue
		}
		if len(pathSet) > 0 {
			if path := entry.Path(); path != "" && !pathSet[path] {
				continue
			}
		}
		if len(typeSet) > 0 && !typeSet[entry.Type] {
			continue
		}
		if len(sourceSet) > 0 && !sourceSet[entry.Source] {
			continue
		}
		if entry.Priority < req.MinPriority {
			continue
		}
		out = append(out, entry)
	}
	return out
}

func summarize(entries []*types.ContextEntry, usedTokens int) ContextSummary {
	summary := ContextSummary{TotalTokens: usedTokens}
	workspaces := make(map[string]bool)
	languages := make(map[string]bool)

	for _, entry := range entries {
		switch entry.Type {
		case types.TypeFile, types.TypeFileStructure, types.TypeFolder:
			summary.FileCount++
		case types.TypeSymbol, types.TypeSymbolReference:
			summary.SymbolCount++
		case types.TypeDiagnostics:
			summary.DiagnosticsCount += len(entry.Content.Diagnostics)
		case types.TypeProjectMeta, types.TypeDependency:
			summary.HasProjectInfo = true
		}
		if ws := entry.Metadata.WorkspaceID; ws != "" {
			workspaces[ws] = true
		}
		if lang := entry.Content.Language; lang != "" {
			languages[lang] = true
		}
	}
	for ws := range workspaces {
		summary.Workspaces = append(summary.Workspaces, ws)
	}
	for lang := range languages {
		summary.Languages = append(summary.Languages, lang)
	}
	sort.Strings(summary.Workspaces)
	sort.Strings(summary.Languages)
	return summary
}
