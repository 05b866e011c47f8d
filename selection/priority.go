// Package selection assembles the set of context entries worth sending to a
// model: priority assignment, token-budgeted packing, and prompt rendering.
package selection

import (
	"github.com/memorypg/memorypg/tuning"
	"github.com/memorypg/memorypg/types"
)

// defaultPriorities maps every context source to its baseline priority.
// The mapping is total: every declared source has an entry.
var defaultPriorities = map[types.ContextSource]int{
	types.SourceUserSelection:   tuning.PriorityUserSelection,
	types.SourceIDE:             tuning.PriorityIDE,
	types.SourceDiagnostics:     tuning.PriorityDiagnostics,
	types.SourceProject:         tuning.PriorityProject,
	types.SourceWorkspace:       tuning.PriorityWorkspace,
	types.SourceSemanticRelated: tuning.PrioritySemanticRelated,
	types.SourceHistory:         tuning.PriorityHistory,
}

// PriorityManager assigns and adjusts entry priorities.
type PriorityManager struct{}

// NewPriorityManager creates a PriorityManager.
func NewPriorityManager() *PriorityManager {
	return &PriorityManager{}
}

// DefaultPriority returns the baseline priority for a source. Unknown
// sources fall back to the lowest priority rather than failing.
func (p *PriorityManager) DefaultPriority(source types.ContextSource) int {
	if prio, ok := defaultPriorities[source]; ok {
		return prio
	}
	return tuning.PriorityHistory
}

// AdjustPriorities returns a new slice with per-query boosts applied:
// entries whose path matches the request's current file get
// CurrentFileBoost, entries matching a mentioned file get
// MentionedFileBoost. The input slice and its entries are never mutated.
func (p *PriorityManager) AdjustPriorities(entries []*types.ContextEntry, req *Request) []*types.ContextEntry {
	out := make([]*types.ContextEntry, 0, len(entries))
	for _, entry := range entries {
		boost := 0
		path := entry.Path()
		if path != "" {
			if req.CurrentFile != "" && path == req.CurrentFile {
				boost = tuning.CurrentFileBoost
			} else {
				for _, mentioned := range req.MentionedFiles {
					if path == mentioned {
						boost = tuning.MentionedFileBoost
						break
					}
				}
			}
		}

		if boost == 0 {
			out = append(out, entry)
			continue
		}
		cp := *entry
		cp.Priority = entry.Priority + boost
		if cp.Priority > tuning.MaxPriority {
			cp.Priority = tuning.MaxPriority
		}
		out = append(out, &cp)
	}
	return out
}
