package compression

import (
	"time"

	"github.com/memorypg/memorypg/types"
)

// TimeStrategy archives every message older than the configured age
// threshold.
type TimeStrategy struct{}

// Name returns the strategy name.
func (TimeStrategy) Name() StrategyName { return StrategyTime }

// Select returns all messages whose age exceeds MaxAge.
func (TimeStrategy) Select(msgs []*types.Message, cfg *Config, now time.Time) []*types.Message {
	var selected []*types.Message
	for _, msg := range msgs {
		if msg.Age(now) > cfg.MaxAge {
			selected = append(selected, msg)
		}
	}
	return selected
}
