// Package fallback produces deterministic heuristic plans. The same input
// always yields the same plan, byte for byte, so a performance can proceed
// whenever the model path is unavailable or invalid.
package fallback

import (
	"fmt"
	"strings"

	"github.com/KBLLR/Avatars-Lab-sub000/api/plan"
	"github.com/KBLLR/Avatars-Lab-sub000/api/transcript"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/director/segmenter"
)

// Input feeds one whole-performance fallback plan.
type Input struct {
	DurationMS int64
	// Words, when present, drive pause-based section boundaries.
	Words []transcript.WordTiming
	// Text is the raw transcript, distributed across sections as notes.
	Text string
}

const (
	minSections     = 3
	maxSections     = 6
	defaultSections = 4
)

// Generate builds a complete heuristic plan: 3 to 6 sections with
// alternating roles and round-robin mood, camera, and light assignments.
func Generate(in Input) plan.MergedPlan {
	durationMS := in.DurationMS
	if durationMS <= 0 {
		durationMS = 1
	}

	var sections []transcript.InputSection
	count := defaultSections
	if len(in.Words) > 0 {
		segmented := segmenter.Segment(in.Words, durationMS, segmenter.Options{})
		count = clampInt(len(segmented), minSections, maxSections)
		if count == len(segmented) {
			sections = segmented
		}
	}
	if sections == nil {
		sections = evenSections(durationMS, count, in.Text)
	}

	out := plan.MergedPlan{
		Title:  titleFrom(in.Text),
		Source: plan.SourceHeuristic,
	}
	for i, s := range sections {
		out.Sections = append(out.Sections, styleSection(i, label(i, len(sections)), s.StartMS, s.EndMS, s.Text))
	}
	return out
}

// Fragment builds heuristic sections for one chunk's input windows. The
// offset is the chunk's first global section index and total the run's
// section count; both keep labels and the style rotation continuous across
// chunk boundaries.
func Fragment(sections []transcript.InputSection, offset, total int) *plan.MergedPlan {
	out := &plan.MergedPlan{Source: plan.SourceHeuristic}
	for i, s := range sections {
		g := offset + i
		out.Sections = append(out.Sections, styleSection(g, label(g, total), s.StartMS, s.EndMS, s.Text))
	}
	return out
}

// styleSection assigns the deterministic per-index style: alternating role
// starting solo, round-robin mood, camera, and light.
func styleSection(idx int, label string, startMS, endMS int64, notes string) plan.PlanSection {
	moods := plan.Moods()
	views := plan.Views()
	lights := plan.Lights()

	role := plan.RoleSolo
	if idx%2 == 1 {
		role = plan.RoleEnsemble
	}
	return plan.PlanSection{
		Label:   label,
		StartMS: startMS,
		EndMS:   endMS,
		Role:    role,
		Mood:    moods[idx%len(moods)],
		Camera:  views[idx%len(views)],
		Light:   lights[idx%len(lights)],
		Notes:   notes,
	}
}

func label(idx, total int) string {
	switch {
	case idx == 0:
		return "Intro"
	case idx == total-1:
		return "Outro"
	default:
		return fmt.Sprintf("Section %d", idx+1)
	}
}

// evenSections divides the duration into count equal windows and spreads
// the transcript words evenly across them.
func evenSections(durationMS int64, count int, text string) []transcript.InputSection {
	words := strings.Fields(text)
	out := make([]transcript.InputSection, count)
	for i := 0; i < count; i++ {
		lo := len(words) * i / count
		hi := len(words) * (i + 1) / count
		out[i] = transcript.InputSection{
			StartMS: durationMS * int64(i) / int64(count),
			EndMS:   durationMS * int64(i+1) / int64(count),
			Text:    strings.Join(words[lo:hi], " "),
		}
	}
	return out
}

func titleFrom(text string) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return "Untitled Performance"
	}
	if len(words) > 4 {
		words = words[:4]
	}
	return strings.Join(words, " ")
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
