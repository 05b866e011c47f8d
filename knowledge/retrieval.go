package knowledge

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/memorypg/memorypg/storage"
	"github.com/memorypg/memorypg/tuning"
	"github.com/memorypg/memorypg/types"
)

// ScoredMemory pairs a memory with its composite relevance score.
type ScoredMemory struct {
	Memory    *types.LongTermMemory
	Relevance int
}

// Retrieval finds relevant memories: a substring search in the store
// followed by a composite re-rank in memory.
type Retrieval struct {
	store  storage.Store
	logger Logger
}

// NewRetrieval creates a Retrieval. A nil logger disables logging.
func NewRetrieval(store storage.Store, logger Logger) *Retrieval {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Retrieval{store: store, logger: logger}
}

// SemanticSearch fetches candidate memories matching the query and
// re-ranks them: key matches dominate value matches, frequently-hit and
// recently-hit memories rise, confidence breaks ties.
func (r *Retrieval) SemanticSearch(ctx context.Context, query, workspacePath string, limit int) ([]*ScoredMemory, error) {
	candidates, err := r.store.SearchMemories(ctx, query, workspacePath, 0)
	if err != nil {
		return nil, fmt.Errorf("semantic search %q: %w", query, err)
	}

	now := time.Now()
	scored := make([]*ScoredMemory, 0, len(candidates))
	for _, mem := range candidates {
		scored = append(scored, &ScoredMemory{
			Memory:    mem,
			Relevance: relevance(mem, query, now),
		})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Relevance > scored[j].Relevance
	})
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}

	r.logger.Debug("semantic search", "query", query, "candidates", len(candidates), "returned", len(scored))
	return scored, nil
}

// relevance is the composite ranking score.
func relevance(mem *types.LongTermMemory, query string, now time.Time) int {
	q := strings.ToLower(strings.TrimSpace(query))
	key := strings.ToLower(mem.Key)
	value := strings.ToLower(mem.ValueText())

	score := 0
	if q != "" && strings.Contains(key, q) {
		score += tuning.RankExactKeyMatch
	}
	for _, word := range strings.Fields(q) {
		if strings.Contains(key, word) {
			score += tuning.RankPerWordKeyHit
		}
	}
	if q != "" && strings.Contains(value, q) {
		score += tuning.RankValueMatch
	}

	hitBonus := mem.HitCount * tuning.RankHitCountFactor
	if hitBonus > tuning.RankHitCountCap {
		hitBonus = tuning.RankHitCountCap
	}
	score += hitBonus
	score += int(mem.Confidence * tuning.RankConfidence)

	if mem.LastHitAt != nil {
		since := now.Sub(*mem.LastHitAt)
		switch {
		case since < tuning.RetrievalWeekWindow:
			score += tuning.RankRecentWeek
		case since < tuning.RemindRecentWindow:
			score += tuning.RankRecentMonth
		}
	}
	return score
}

// ShouldRemind reports whether the top match for the query is established
// enough to surface proactively: hit at least RemindMinHits times with a
// hit inside the recency window, or RemindHighHitFloor hits regardless of
// age. The second return is the type-templated reminder text, empty when
// no reminder applies.
func (r *Retrieval) ShouldRemind(ctx context.Context, query, workspacePath string) (bool, string, error) {
	matches, err := r.SemanticSearch(ctx, query, workspacePath, 1)
	if err != nil {
		return false, "", err
	}
	if len(matches) == 0 {
		return false, "", nil
	}

	mem := matches[0].Memory
	if !remindWorthy(mem, time.Now()) {
		return false, "", nil
	}
	return true, reminderText(mem), nil
}

func remindWorthy(mem *types.LongTermMemory, now time.Time) bool {
	if mem.HitCount >= tuning.RemindHighHitFloor {
		return true
	}
	if mem.HitCount < tuning.RemindMinHits || mem.LastHitAt == nil {
		return false
	}
	return now.Sub(*mem.LastHitAt) <= tuning.RemindRecentWindow
}

// reminderText renders a per-type reminder line.
func reminderText(mem *types.LongTermMemory) string {
	switch v := mem.Value.(type) {
	case types.ProjectContextValue:
		return fmt.Sprintf("You have worked with %s before (%d times).", v.Path, mem.HitCount)
	case types.KeyDecisionValue:
		return fmt.Sprintf("Earlier decision: %s", v.Decision)
	case types.UserPreferenceValue:
		if v.PreferredEngine != "" {
			return fmt.Sprintf("You usually use %s.", v.PreferredEngine)
		}
		return "Remembered preference applies here."
	case types.FAQValue:
		return fmt.Sprintf("This came up before: %s (%s)", v.Question, v.Answer)
	case types.CodePatternValue:
		return fmt.Sprintf("Recurring %s pattern: %s", v.Kind, v.Pattern)
	default:
		return fmt.Sprintf("Related memory: %s", mem.Key)
	}
}

// RecordHit notes that a retrieved memory was actually used.
func (r *Retrieval) RecordHit(ctx context.Context, memoryID string) error {
	if err := r.store.RecordMemoryHit(ctx, memoryID); err != nil {
		return fmt.Errorf("record memory hit: %w", err)
	}
	return nil
}
