package compression

import (
	"time"

	"github.com/memorypg/memorypg/tokens"
	"github.com/memorypg/memorypg/types"
)

// Strategy selects which active messages a compression pass will archive.
// Input messages are ordered by timestamp, oldest first; the selection
// preserves that order.
type Strategy interface {
	// Name returns the strategy name.
	Name() StrategyName

	// Select returns the messages to summarize and archive. An empty
	// selection is a successful no-op, not a failure.
	Select(msgs []*types.Message, cfg *Config, now time.Time) []*types.Message
}

// targetRemoval computes how many tokens a target-ratio strategy must
// remove: enough that at most total*ratio remains.
func targetRemoval(totalTokens int, ratio float64) int {
	return totalTokens - int(float64(totalTokens)*ratio)
}

// sumTokens totals the recorded-or-estimated token counts of a slice.
func sumTokens(msgs []*types.Message) int {
	total := 0
	for _, msg := range msgs {
		total += tokens.MessageTokens(msg)
	}
	return total
}
