// Package compiler lowers an approved performance plan into a flat
// timeline of timed avatar actions. Section boundaries become mood, view,
// and light actions, section interiors get filler gestures, and the whole
// performance closes with an end marker that resets the stage.
package compiler

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/KBLLR/Avatars-Lab-sub000/api/plan"
)

// Defaults are the scene settings in force before any section overrides
// them.
type Defaults struct {
	Mood  plan.Mood
	View  plan.View
	Light plan.Light
}

func (d Defaults) withDefaults() Defaults {
	if d.Mood == "" {
		d.Mood = plan.MoodNeutral
	}
	if d.View == "" {
		d.View = plan.ViewFull
	}
	if d.Light == "" {
		d.Light = plan.LightStudio
	}
	return d
}

// Options configure one compilation.
type Options struct {
	Defaults Defaults
	// Seed drives filler gesture selection. Zero means seed from the
	// wall clock; replays are intentionally varied.
	Seed       int64
	OnComplete func()
}

// TimedAction pairs an absolute fire time with the action to dispatch.
// Exactly one entry per timeline carries Complete.
type TimedAction struct {
	TimeMS   int64
	Action   plan.PlanAction
	Complete bool
}

// Timeline is a compiled performance. Entries are in compile order, not
// time order; consumers sort before firing.
type Timeline struct {
	DurationMS int64
	Entries    []TimedAction
	OnComplete func()
}

const (
	fillerWindowMS  = 8000
	maxFillers      = 3
	endMarkerLeadMS = 500
)

// Compile lowers p into a timeline of length durationMS.
func Compile(p *plan.MergedPlan, durationMS int64, opts Options) (*Timeline, error) {
	if p == nil {
		return nil, fmt.Errorf("plan is required")
	}
	if durationMS <= 0 {
		return nil, fmt.Errorf("duration_ms must be > 0")
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}
	if got := p.DurationMS(); got != durationMS {
		return nil, fmt.Errorf("plan covers %dms, performance lasts %dms", got, durationMS)
	}

	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	gestures := plan.Gestures()
	current := opts.Defaults.withDefaults()

	t := &Timeline{DurationMS: durationMS, OnComplete: opts.OnComplete}
	for _, s := range p.Sections {
		if s.Mood != "" {
			current.Mood = s.Mood
		}
		if s.Camera != "" {
			current.View = s.Camera
		}
		if s.Light != "" {
			current.Light = s.Light
		}

		start := clampMS(s.StartMS, durationMS)
		t.push(start, plan.ActionSetMood, map[string]any{"mood": string(current.Mood)})
		t.push(start, plan.ActionSetView, map[string]any{"view": string(current.View)})
		t.push(start, plan.ActionSetLight, map[string]any{"preset": string(current.Light)})

		sectionMS := s.EndMS - s.StartMS
		fillers := clamp64(1, sectionMS/fillerWindowMS, maxFillers)
		for i := int64(0); i < fillers; i++ {
			at := s.StartMS + (i+1)*sectionMS/(fillers+1)
			gesture := gestures[rng.Intn(len(gestures))]
			t.push(clampMS(at, durationMS), plan.ActionPlayGesture, map[string]any{"gesture": gesture})
		}

		for _, a := range s.Actions {
			t.pushAction(a, durationMS)
		}
	}

	for _, a := range p.Actions {
		t.pushAction(a, durationMS)
	}

	end := endMarkerMS(durationMS)
	t.Entries = append(t.Entries, TimedAction{
		TimeMS: end,
		Action: plan.PlanAction{
			TimeMS: end,
			Action: plan.ActionSetLight,
			Args:   map[string]any{"preset": string(plan.LightSpotlight)},
		},
		Complete: true,
	})
	return t, nil
}

// Markers binds the timeline to a dispatch function and returns the
// parallel callback and time arrays for the avatar runtime's speak call,
// sorted by time.
func Markers(t *Timeline, dispatch func(plan.PlanAction) error) ([]func(), []int64) {
	sorted := make([]TimedAction, len(t.Entries))
	copy(sorted, t.Entries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TimeMS < sorted[j].TimeMS })

	markers := make([]func(), len(sorted))
	times := make([]int64, len(sorted))
	for i, entry := range sorted {
		entry := entry
		markers[i] = func() {
			_ = dispatch(entry.Action)
			if entry.Complete && t.OnComplete != nil {
				t.OnComplete()
			}
		}
		times[i] = entry.TimeMS
	}
	return markers, times
}

func (t *Timeline) push(at int64, name plan.ActionName, args map[string]any) {
	t.Entries = append(t.Entries, TimedAction{
		TimeMS: at,
		Action: plan.PlanAction{TimeMS: at, Action: name, Args: args},
	})
}

func (t *Timeline) pushAction(a plan.PlanAction, durationMS int64) {
	a.TimeMS = clampMS(a.TimeMS, durationMS)
	t.Entries = append(t.Entries, TimedAction{TimeMS: a.TimeMS, Action: a})
}

func endMarkerMS(durationMS int64) int64 {
	end := durationMS - endMarkerLeadMS
	if floor := durationMS * 99 / 100; floor > end {
		end = floor
	}
	return clampMS(end, durationMS)
}

func clampMS(v, maxMS int64) int64 {
	if v < 0 {
		return 0
	}
	if v > maxMS {
		return maxMS
	}
	return v
}

func clamp64(lo, v, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
