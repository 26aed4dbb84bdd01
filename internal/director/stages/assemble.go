package stages

import (
	"fmt"
	"sort"

	"github.com/KBLLR/Avatars-Lab-sub000/api/plan"
)

// Assemble binds the pass results onto the chunk's windows and returns the
// chunk's plan fragment. Scene and camera results are optional; their
// attributes stay unset when a pass did not run, leaving the compiler to
// apply defaults.
func Assemble(c Chunk, perf PerformanceResult, scene *SceneResult, camera *CameraResult) *plan.MergedPlan {
	out := &plan.MergedPlan{
		Title:            perf.Title,
		Source:           plan.SourceLLM,
		PerformanceNotes: perf.Notes,
	}
	if scene != nil {
		out.StageNotes = scene.Notes
	}
	if camera != nil {
		out.CameraNotes = camera.Notes
	}

	for i, window := range c.Sections {
		section := plan.PlanSection{
			StartMS: window.StartMS,
			EndMS:   window.EndMS,
			Role:    plan.RoleSolo,
		}
		if i < len(perf.Sections) {
			d := perf.Sections[i]
			section.Label = d.Label
			section.Role = d.Role
			section.Mood = d.Mood
			section.Notes = d.Notes
		}
		if section.Label == "" {
			section.Label = fmt.Sprintf("Section %d", c.SectionOffset+i+1)
		}

		var actions []plan.PlanAction
		if scene != nil {
			if i < len(scene.Lights) {
				section.Light = scene.Lights[i]
			}
			if i < len(scene.Actions) {
				actions = append(actions, scene.Actions[i]...)
			}
		}
		if camera != nil {
			if i < len(camera.Views) {
				section.Camera = camera.Views[i]
			}
			if i < len(camera.Actions) {
				actions = append(actions, camera.Actions[i]...)
			}
		}
		sort.SliceStable(actions, func(a, b int) bool {
			return actions[a].TimeMS < actions[b].TimeMS
		})
		section.Actions = actions
		out.Sections = append(out.Sections, section)
	}
	return out
}
