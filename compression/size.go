package compression

import (
	"time"

	"github.com/memorypg/memorypg/tokens"
	"github.com/memorypg/memorypg/types"
)

// SizeStrategy archives oldest messages first until the target token
// reduction is reached.
type SizeStrategy struct{}

// Name returns the strategy name.
func (SizeStrategy) Name() StrategyName { return StrategySize }

// Select accumulates messages oldest-first until at least
// total*(1-TargetTokenRatio) tokens have been selected for removal.
func (SizeStrategy) Select(msgs []*types.Message, cfg *Config, now time.Time) []*types.Message {
	target := targetRemoval(sumTokens(msgs), cfg.TargetTokenRatio)
	if target <= 0 {
		return nil
	}

	var selected []*types.Message
	removed := 0
	for _, msg := range msgs {
		if removed >= target {
			break
		}
		selected = append(selected, msg)
		removed += tokens.MessageTokens(msg)
	}
	return selected
}
