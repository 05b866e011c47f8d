package compression

import (
	"sort"
	"time"

	"github.com/memorypg/memorypg/tokens"
	"github.com/memorypg/memorypg/tuning"
	"github.com/memorypg/memorypg/types"
)

// ImportanceStrategy archives the lowest-scoring unprotected messages
// toward the target token reduction. Messages scoring strictly above the
// protection threshold are never archived, so the strategy may legitimately
// under-reach its target when a session is dominated by high-value
// messages. Partial compression is accepted; there is no forced-eviction
// second pass.
type ImportanceStrategy struct{}

// Name returns the strategy name.
func (ImportanceStrategy) Name() StrategyName { return StrategyImportance }

// Select sorts candidates by score ascending (unscored messages assume the
// default score) and accumulates the lowest-scoring ones until the target
// reduction is reached.
func (ImportanceStrategy) Select(msgs []*types.Message, cfg *Config, now time.Time) []*types.Message {
	target := targetRemoval(sumTokens(msgs), cfg.TargetTokenRatio)
	if target <= 0 {
		return nil
	}

	candidates := make([]*types.Message, 0, len(msgs))
	for _, msg := range msgs {
		if effectiveScore(msg) > tuning.ProtectedScoreThreshold {
			continue
		}
		candidates = append(candidates, msg)
	}
	// Stable keeps the oldest-first order within equal scores.
	sort.SliceStable(candidates, func(i, j int) bool {
		return effectiveScore(candidates[i]) < effectiveScore(candidates[j])
	})

	var selected []*types.Message
	removed := 0
	for _, msg := range candidates {
		if removed >= target {
			break
		}
		selected = append(selected, msg)
		removed += tokens.MessageTokens(msg)
	}

	// Re-establish chronological order for summarization.
	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Timestamp.Before(selected[j].Timestamp)
	})
	return selected
}

func effectiveScore(msg *types.Message) int {
	if msg.ImportanceScore > 0 {
		return msg.ImportanceScore
	}
	return tuning.DefaultImportanceScore
}
