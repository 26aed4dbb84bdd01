// Package planmerge reassembles per-chunk plan fragments into one plan.
package planmerge

import (
	"sort"

	"github.com/KBLLR/Avatars-Lab-sub000/api/plan"
)

// Merge concatenates fragment sections in chunk order and merges top-level
// actions into one list sorted by time (stable, ties keep fragment order).
// Nil fragments contribute nothing and do not abort the merge. Title and
// notes take the first non-empty value across fragments. Source is left for
// the caller to assign; provenance belongs to the orchestrator.
func Merge(fragments []*plan.MergedPlan) plan.MergedPlan {
	var out plan.MergedPlan
	for _, f := range fragments {
		if f == nil {
			continue
		}
		if out.Title == "" {
			out.Title = f.Title
		}
		if out.PerformanceNotes == "" {
			out.PerformanceNotes = f.PerformanceNotes
		}
		if out.StageNotes == "" {
			out.StageNotes = f.StageNotes
		}
		if out.CameraNotes == "" {
			out.CameraNotes = f.CameraNotes
		}
		out.Sections = append(out.Sections, f.Sections...)
		out.Actions = append(out.Actions, f.Actions...)
	}
	sort.SliceStable(out.Actions, func(i, j int) bool {
		return out.Actions[i].TimeMS < out.Actions[j].TimeMS
	})
	return out
}
