package selection

import (
	"sort"
	"time"

	"github.com/memorypg/memorypg/types"
)

// DropReason explains why an entry was excluded from a selection.
type DropReason string

const (
	// DropTokenLimit marks entries rejected by the token budget.
	DropTokenLimit DropReason = "token_limit"
)

// DroppedEntry pairs an excluded entry with the reason it was excluded.
type DroppedEntry struct {
	Entry  *types.ContextEntry
	Reason DropReason
}

// Selection is the outcome of a budget pass. Selected and Dropped together
// partition the input exactly.
type Selection struct {
	Selected   []*types.ContextEntry
	Dropped    []DroppedEntry
	UsedTokens int
}

// BudgetSelector packs entries into a token budget.
type BudgetSelector struct{}

// NewBudgetSelector creates a BudgetSelector.
func NewBudgetSelector() *BudgetSelector {
	return &BudgetSelector{}
}

// SelectWithinBudget greedily admits entries ordered by priority then
// recency while they fit the budget. The first rejection rejects every
// lower-ranked remaining entry too; there is no backtracking. Deliberately
// simple over optimal.
func (s *BudgetSelector) SelectWithinBudget(entries []*types.ContextEntry, budget int) Selection {
	ranked := make([]*types.ContextEntry, len(entries))
	copy(ranked, entries)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Priority != ranked[j].Priority {
			return ranked[i].Priority > ranked[j].Priority
		}
		return accessTime(ranked[i]).After(accessTime(ranked[j]))
	})

	sel := Selection{}
	rejecting := false
	for _, entry := range ranked {
		if !rejecting && sel.UsedTokens+entry.EstimatedTokens <= budget {
			sel.Selected = append(sel.Selected, entry)
			sel.UsedTokens += entry.EstimatedTokens
			continue
		}
		rejecting = true
		sel.Dropped = append(sel.Dropped, DroppedEntry{Entry: entry, Reason: DropTokenLimit})
	}
	return sel
}

// accessTime is the recency key: last access when recorded, creation time
// otherwise.
func accessTime(entry *types.ContextEntry) time.Time {
	if !entry.LastAccessedAt.IsZero() {
		return entry.LastAccessedAt
	}
	return entry.CreatedAt
}
