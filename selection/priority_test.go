package selection

import (
	"testing"

	"github.com/memorypg/memorypg/tuning"
	"github.com/memorypg/memorypg/types"
)

func TestDefaultPriorityTotalMapping(t *testing.T) {
	pm := NewPriorityManager()
	for _, source := range types.ContextSources {
		prio := pm.DefaultPriority(source)
		if prio < 1 || prio > tuning.MaxPriority {
			t.Errorf("DefaultPriority(%s) = %d, out of range", source, prio)
		}
	}
	if pm.DefaultPriority(types.SourceUserSelection) != tuning.PriorityUserSelection {
		t.Error("user_selection should carry the highest default priority")
	}
}

func TestAdjustPrioritiesBoosts(t *testing.T) {
	pm := NewPriorityManager()
	entries := []*types.ContextEntry{
		{ID: "current", Priority: 2, Content: types.EntryContent{Path: "src/main.go"}},
		{ID: "mentioned", Priority: 2, Content: types.EntryContent{Path: "src/util.go"}},
		{ID: "other", Priority: 2, Content: types.EntryContent{Path: "src/other.go"}},
	}
	req := &Request{
		CurrentFile:    "src/main.go",
		MentionedFiles: []string{"src/util.go"},
	}

	out := pm.AdjustPriorities(entries, req)

	want := map[string]int{
		"current":   2 + tuning.CurrentFileBoost,
		"mentioned": 2 + tuning.MentionedFileBoost,
		"other":     2,
	}
	for _, entry := range out {
		if entry.Priority != want[entry.ID] {
			t.Errorf("%s priority = %d, want %d", entry.ID, entry.Priority, want[entry.ID])
		}
	}

	// Copy-on-adjust: the originals must be untouched.
	for _, entry := range entries {
		if entry.Priority != 2 {
			t.Errorf("input entry %s mutated: priority = %d", entry.ID, entry.Priority)
		}
	}
}

func TestAdjustPrioritiesCapsAtMax(t *testing.T) {
	pm := NewPriorityManager()
	entries := []*types.ContextEntry{
		{ID: "a", Priority: tuning.MaxPriority, Content: types.EntryContent{Path: "src/main.go"}},
	}
	out := pm.AdjustPriorities(entries, &Request{CurrentFile: "src/main.go"})
	if out[0].Priority != tuning.MaxPriority {
		t.Errorf("boosted priority = %d, want capped at %d", out[0].Priority, tuning.MaxPriority)
	}
}
