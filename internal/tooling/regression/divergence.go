// Package regression compares a regenerated performance plan against its
// approved baseline and applies review policy to the differences. Timing
// drift between model runs is tolerated within a bound; structural and
// stylistic changes must be declared before they ship.
package regression

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/KBLLR/Avatars-Lab-sub000/api/plan"
)

// DivergenceClass buckets plan differences by how review treats them.
type DivergenceClass string

const (
	TimingDivergence DivergenceClass = "timing"
	StyleDivergence  DivergenceClass = "style"
	ActionDivergence DivergenceClass = "action"
	LayoutDivergence DivergenceClass = "layout"
	SourceDivergence DivergenceClass = "source"
)

// PlanDivergence records one observed difference between a baseline plan
// and a candidate regeneration.
type PlanDivergence struct {
	Class    DivergenceClass `json:"class"`
	Scope    string          `json:"scope"`
	Message  string          `json:"message"`
	DiffMS   *int64          `json:"diff_ms,omitempty"`
	Expected bool            `json:"expected,omitempty"`
}

// Compare reports every difference between a baseline plan and a
// candidate regeneration. Sections are matched by index; a count
// mismatch is reported once and the shared prefix is still compared.
func Compare(baseline, candidate plan.MergedPlan) []PlanDivergence {
	divergences := make([]PlanDivergence, 0)

	if baseline.Title != candidate.Title {
		divergences = append(divergences, PlanDivergence{
			Class:   StyleDivergence,
			Scope:   "title",
			Message: fmt.Sprintf("title %q became %q", baseline.Title, candidate.Title),
		})
	}
	if baseline.Source != candidate.Source {
		divergences = append(divergences, PlanDivergence{
			Class:   SourceDivergence,
			Scope:   "source",
			Message: fmt.Sprintf("plan source changed from %s to %s", baseline.Source, candidate.Source),
		})
	}
	if len(baseline.Sections) != len(candidate.Sections) {
		divergences = append(divergences, PlanDivergence{
			Class:   LayoutDivergence,
			Scope:   "sections",
			Message: fmt.Sprintf("section count changed from %d to %d", len(baseline.Sections), len(candidate.Sections)),
		})
	}

	pairs := len(baseline.Sections)
	if len(candidate.Sections) < pairs {
		pairs = len(candidate.Sections)
	}
	for i := 0; i < pairs; i++ {
		divergences = append(divergences, compareSections(i, baseline.Sections[i], candidate.Sections[i])...)
	}

	if actionSignature(baseline.Actions) != actionSignature(candidate.Actions) {
		divergences = append(divergences, PlanDivergence{
			Class:   ActionDivergence,
			Scope:   "actions",
			Message: "top-level actions changed",
		})
	}

	return divergences
}

func compareSections(index int, baseline, candidate plan.PlanSection) []PlanDivergence {
	scope := fmt.Sprintf("section[%d]", index)
	divergences := make([]PlanDivergence, 0)

	if diff := boundaryShiftMS(baseline, candidate); diff > 0 {
		shifted := diff
		divergences = append(divergences, PlanDivergence{
			Class:   TimingDivergence,
			Scope:   scope,
			Message: fmt.Sprintf("section boundaries moved by %dms", diff),
			DiffMS:  &shifted,
		})
	}
	if baseline.Label != candidate.Label {
		divergences = append(divergences, PlanDivergence{
			Class:   LayoutDivergence,
			Scope:   scope + ".label",
			Message: fmt.Sprintf("label %q became %q", baseline.Label, candidate.Label),
		})
	}
	if baseline.Role != candidate.Role {
		divergences = append(divergences, PlanDivergence{
			Class:   LayoutDivergence,
			Scope:   scope + ".role",
			Message: fmt.Sprintf("role changed from %s to %s", baseline.Role, candidate.Role),
		})
	}
	if baseline.Mood != candidate.Mood {
		divergences = append(divergences, PlanDivergence{
			Class:   StyleDivergence,
			Scope:   scope + ".mood",
			Message: fmt.Sprintf("mood changed from %q to %q", baseline.Mood, candidate.Mood),
		})
	}
	if baseline.Camera != candidate.Camera {
		divergences = append(divergences, PlanDivergence{
			Class:   StyleDivergence,
			Scope:   scope + ".camera",
			Message: fmt.Sprintf("camera changed from %q to %q", baseline.Camera, candidate.Camera),
		})
	}
	if baseline.Light != candidate.Light {
		divergences = append(divergences, PlanDivergence{
			Class:   StyleDivergence,
			Scope:   scope + ".light",
			Message: fmt.Sprintf("light changed from %q to %q", baseline.Light, candidate.Light),
		})
	}
	if actionSignature(baseline.Actions) != actionSignature(candidate.Actions) {
		divergences = append(divergences, PlanDivergence{
			Class:   ActionDivergence,
			Scope:   scope + ".actions",
			Message: "scheduled actions changed",
		})
	}

	return divergences
}

func boundaryShiftMS(baseline, candidate plan.PlanSection) int64 {
	start := candidate.StartMS - baseline.StartMS
	if start < 0 {
		start = -start
	}
	end := candidate.EndMS - baseline.EndMS
	if end < 0 {
		end = -end
	}
	if end > start {
		return end
	}
	return start
}

// actionSignature folds a schedule into a comparable string so action
// lists diverge on any change to order, timing, name or arguments.
func actionSignature(actions []plan.PlanAction) string {
	parts := make([]string, 0, len(actions))
	for _, action := range actions {
		keys := make([]string, 0, len(action.Args))
		for key := range action.Args {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		args := make([]string, 0, len(keys))
		for _, key := range keys {
			args = append(args, fmt.Sprintf("%s=%v", key, action.Args[key]))
		}
		parts = append(parts, fmt.Sprintf("%s@%d{%s}", action.Action, action.TimeMS, strings.Join(args, ",")))
	}
	return strings.Join(parts, ";")
}

// ExpectedDivergence declares a reviewed divergence by class and scope.
type ExpectedDivergence struct {
	Class    DivergenceClass `json:"class"`
	Scope    string          `json:"scope"`
	Approved bool            `json:"approved,omitempty"`
}

// DivergencePolicy defines fail criteria for plan divergences.
type DivergencePolicy struct {
	TimingToleranceMS int64                `json:"timing_tolerance_ms"`
	Expected          []ExpectedDivergence `json:"expected,omitempty"`
}

// DivergenceEvaluation returns policy outcomes for a compared plan pair.
type DivergenceEvaluation struct {
	Failing         []PlanDivergence     `json:"failing"`
	Unexplained     []PlanDivergence     `json:"unexplained"`
	MissingExpected []ExpectedDivergence `json:"missing_expected,omitempty"`
}

// EvaluateDivergences enforces the review policy. Style and action
// changes need a declared expectation, layout changes additionally need
// approval, and a source flip always fails regardless of annotations.
func EvaluateDivergences(divergences []PlanDivergence, policy DivergencePolicy) DivergenceEvaluation {
	evaluation := DivergenceEvaluation{}
	if policy.TimingToleranceMS < 0 {
		policy.TimingToleranceMS = 0
	}

	expected := make(map[string]ExpectedDivergence, len(policy.Expected))
	for _, item := range policy.Expected {
		expected[key(item.Class, item.Scope)] = item
	}

	for _, entry := range divergences {
		entryCopy := entry
		expectedMatch, hasExpected := expected[key(entry.Class, entry.Scope)]
		if hasExpected {
			entryCopy.Expected = true
			delete(expected, key(entry.Class, entry.Scope))
		}

		switch entry.Class {
		case StyleDivergence, ActionDivergence:
			if !hasExpected {
				evaluation.Unexplained = append(evaluation.Unexplained, entryCopy)
				evaluation.Failing = append(evaluation.Failing, entryCopy)
			}
		case SourceDivergence:
			evaluation.Failing = append(evaluation.Failing, entryCopy)
		case LayoutDivergence:
			if !hasExpected || !expectedMatch.Approved {
				evaluation.Failing = append(evaluation.Failing, entryCopy)
				if !hasExpected {
					evaluation.Unexplained = append(evaluation.Unexplained, entryCopy)
				}
			}
		case TimingDivergence:
			if exceedsTimingTolerance(entryCopy, policy.TimingToleranceMS) {
				evaluation.Failing = append(evaluation.Failing, entryCopy)
			}
		default:
			evaluation.Failing = append(evaluation.Failing, entryCopy)
		}
	}

	missingKeys := make([]string, 0, len(expected))
	for k := range expected {
		missingKeys = append(missingKeys, k)
	}
	sort.Strings(missingKeys)
	for _, k := range missingKeys {
		missing := expected[k]
		evaluation.MissingExpected = append(evaluation.MissingExpected, missing)
		evaluation.Failing = append(evaluation.Failing, PlanDivergence{
			Class:   missing.Class,
			Scope:   missing.Scope,
			Message: fmt.Sprintf("declared divergence never observed: class=%s scope=%s", missing.Class, missing.Scope),
		})
	}

	return evaluation
}

// ReadPolicy loads a divergence policy from a JSON file. Unknown fields
// and unknown divergence classes are rejected.
func ReadPolicy(path string) (DivergencePolicy, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return DivergencePolicy{}, fmt.Errorf("divergence policy path is required")
	}
	raw, err := os.ReadFile(trimmed)
	if err != nil {
		return DivergencePolicy{}, fmt.Errorf("read divergence policy %s: %w", trimmed, err)
	}
	policy := DivergencePolicy{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&policy); err != nil {
		return DivergencePolicy{}, fmt.Errorf("decode divergence policy %s: %w", trimmed, err)
	}
	for i, item := range policy.Expected {
		if !validClass(item.Class) {
			return DivergencePolicy{}, fmt.Errorf("divergence policy %s: expected[%d] has unknown class %q", trimmed, i, item.Class)
		}
		if strings.TrimSpace(item.Scope) == "" {
			return DivergencePolicy{}, fmt.Errorf("divergence policy %s: expected[%d] scope is required", trimmed, i)
		}
	}
	return policy, nil
}

func validClass(class DivergenceClass) bool {
	switch class {
	case TimingDivergence, StyleDivergence, ActionDivergence, LayoutDivergence, SourceDivergence:
		return true
	default:
		return false
	}
}

func key(class DivergenceClass, scope string) string {
	return string(class) + "|" + scope
}

func exceedsTimingTolerance(divergence PlanDivergence, tolerance int64) bool {
	if divergence.DiffMS == nil {
		return true
	}
	return *divergence.DiffMS > tolerance
}
