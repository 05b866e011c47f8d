package selection

import (
	"testing"
	"time"

	"github.com/memorypg/memorypg/types"
)

func budgetEntry(id string, priority, tokens int, createdAt time.Time) *types.ContextEntry {
	return &types.ContextEntry{
		ID:              id,
		Source:          types.SourceIDE,
		Type:            types.TypeFile,
		Priority:        priority,
		Content:         types.EntryContent{Path: id + ".go", Text: "x"},
		CreatedAt:       createdAt,
		EstimatedTokens: tokens,
	}
}

func TestSelectWithinBudgetOrdering(t *testing.T) {
	now := time.Now()
	entries := []*types.ContextEntry{
		budgetEntry("low", 1, 10, now),
		budgetEntry("high", 5, 10, now),
		budgetEntry("mid-old", 3, 10, now.Add(-time.Hour)),
		budgetEntry("mid-new", 3, 10, now),
	}

	sel := NewBudgetSelector().SelectWithinBudget(entries, 1000)
	if len(sel.Selected) != 4 {
		t.Fatalf("selected %d entries, want 4", len(sel.Selected))
	}
	wantOrder := []string{"high", "mid-new", "mid-old", "low"}
	for i, id := range wantOrder {
		if sel.Selected[i].ID != id {
			t.Errorf("position %d = %s, want %s", i, sel.Selected[i].ID, id)
		}
	}
}

func TestSelectWithinBudgetFirstRejectionRejectsRest(t *testing.T) {
	now := time.Now()
	entries := []*types.ContextEntry{
		budgetEntry("a", 5, 40, now),
		budgetEntry("b", 4, 40, now),
		// c does not fit; d would fit but must be rejected anyway.
		budgetEntry("c", 3, 40, now),
		budgetEntry("d", 2, 10, now),
	}

	sel := NewBudgetSelector().SelectWithinBudget(entries, 100)
	if len(sel.Selected) != 2 {
		t.Fatalf("selected %d entries, want 2", len(sel.Selected))
	}
	if sel.UsedTokens != 80 {
		t.Errorf("used tokens = %d, want 80", sel.UsedTokens)
	}
	if len(sel.Dropped) != 2 {
		t.Fatalf("dropped %d entries, want 2", len(sel.Dropped))
	}
	for _, d := range sel.Dropped {
		if d.Reason != DropTokenLimit {
			t.Errorf("drop reason for %s = %s, want %s", d.Entry.ID, d.Reason, DropTokenLimit)
		}
	}
}

func TestSelectWithinBudgetPartitionsInput(t *testing.T) {
	now := time.Now()
	var entries []*types.ContextEntry
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		entries = append(entries, budgetEntry(id, 3, 30, now))
	}

	sel := NewBudgetSelector().SelectWithinBudget(entries, 70)

	seen := make(map[string]bool)
	for _, e := range sel.Selected {
		seen[e.ID] = true
	}
	for _, d := range sel.Dropped {
		if seen[d.Entry.ID] {
			t.Errorf("entry %s appears in both selected and dropped", d.Entry.ID)
		}
		seen[d.Entry.ID] = true
	}
	if len(seen) != len(entries) {
		t.Errorf("selected+dropped covers %d entries, want %d", len(seen), len(entries))
	}
}

func TestSelectWithinBudgetZeroBudget(t *testing.T) {
	now := time.Now()
	entries := []*types.ContextEntry{budgetEntry("a", 5, 1, now)}

	sel := NewBudgetSelector().SelectWithinBudget(entries, 0)
	if len(sel.Selected) != 0 || len(sel.Dropped) != 1 {
		t.Errorf("zero budget: selected=%d dropped=%d, want 0/1", len(sel.Selected), len(sel.Dropped))
	}
}
