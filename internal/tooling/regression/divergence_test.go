package regression

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/KBLLR/Avatars-Lab-sub000/api/plan"
)

func TestCompareIdenticalPlans(t *testing.T) {
	t.Parallel()

	baseline := basePlan()
	if divergences := Compare(baseline, baseline.Clone()); len(divergences) != 0 {
		t.Fatalf("expected identical plans to match, got %+v", divergences)
	}
}

func TestCompareFindsDrift(t *testing.T) {
	t.Parallel()

	baseline := basePlan()
	candidate := baseline.Clone()
	candidate.Source = plan.SourceHeuristic
	candidate.Sections[0].EndMS += 120
	candidate.Sections[1].StartMS += 120
	candidate.Sections[1].Mood = plan.MoodAngry
	candidate.Sections[1].Actions = append(candidate.Sections[1].Actions, plan.PlanAction{
		TimeMS: 12000,
		Action: plan.ActionPlayPose,
		Args:   map[string]any{"pose": "hip"},
	})

	divergences := Compare(baseline, candidate)

	if got := classCount(divergences, SourceDivergence); got != 1 {
		t.Fatalf("expected one source divergence, got %d in %+v", got, divergences)
	}
	if got := classCount(divergences, TimingDivergence); got != 2 {
		t.Fatalf("expected both shifted sections to report timing drift, got %d in %+v", got, divergences)
	}
	if got := classCount(divergences, StyleDivergence); got != 1 {
		t.Fatalf("expected one style divergence, got %d in %+v", got, divergences)
	}
	if got := classCount(divergences, ActionDivergence); got != 1 {
		t.Fatalf("expected one action divergence, got %d in %+v", got, divergences)
	}

	for _, d := range divergences {
		if d.Class == TimingDivergence {
			if d.DiffMS == nil || *d.DiffMS != 120 {
				t.Fatalf("expected timing drift of 120ms, got %+v", d)
			}
		}
		if d.Class == StyleDivergence && d.Scope != "section[1].mood" {
			t.Fatalf("unexpected style scope: %+v", d)
		}
	}
}

func TestCompareReportsSectionCountChange(t *testing.T) {
	t.Parallel()

	baseline := basePlan()
	candidate := baseline.Clone()
	candidate.Sections = candidate.Sections[:1]

	divergences := Compare(baseline, candidate)
	if got := classCount(divergences, LayoutDivergence); got != 1 {
		t.Fatalf("expected one layout divergence for the dropped section, got %+v", divergences)
	}
	if divergences[0].Scope != "sections" {
		t.Fatalf("unexpected scope: %+v", divergences[0])
	}
}

func TestEvaluateDivergencesUnexplainedStyleFails(t *testing.T) {
	t.Parallel()

	eval := EvaluateDivergences([]PlanDivergence{{
		Class:   StyleDivergence,
		Scope:   "section[0].mood",
		Message: "mood changed",
	}}, DivergencePolicy{TimingToleranceMS: 100})

	if len(eval.Failing) != 1 {
		t.Fatalf("expected one failing divergence, got %+v", eval.Failing)
	}
	if len(eval.Unexplained) != 1 {
		t.Fatalf("expected one unexplained divergence, got %+v", eval.Unexplained)
	}
}

func TestEvaluateDivergencesLayoutRequiresApprovedExpectation(t *testing.T) {
	t.Parallel()

	layout := PlanDivergence{Class: LayoutDivergence, Scope: "section[1].role", Message: "role changed"}
	approved := EvaluateDivergences([]PlanDivergence{layout}, DivergencePolicy{
		Expected: []ExpectedDivergence{{Class: LayoutDivergence, Scope: "section[1].role", Approved: true}},
	})
	if len(approved.Failing) != 0 {
		t.Fatalf("expected approved layout divergence to pass, got %+v", approved.Failing)
	}

	notApproved := EvaluateDivergences([]PlanDivergence{layout}, DivergencePolicy{
		Expected: []ExpectedDivergence{{Class: LayoutDivergence, Scope: "section[1].role", Approved: false}},
	})
	if len(notApproved.Failing) != 1 {
		t.Fatalf("expected unapproved layout divergence to fail, got %+v", notApproved.Failing)
	}
}

func TestEvaluateDivergencesTimingTolerance(t *testing.T) {
	t.Parallel()

	within := int64(120)
	outside := int64(800)
	pass := EvaluateDivergences([]PlanDivergence{{
		Class:   TimingDivergence,
		Scope:   "section[0]",
		Message: "boundaries moved",
		DiffMS:  &within,
	}}, DivergencePolicy{TimingToleranceMS: 250})
	if len(pass.Failing) != 0 {
		t.Fatalf("expected timing drift within tolerance to pass, got %+v", pass.Failing)
	}

	fail := EvaluateDivergences([]PlanDivergence{{
		Class:   TimingDivergence,
		Scope:   "section[0]",
		Message: "boundaries moved",
		DiffMS:  &outside,
	}}, DivergencePolicy{TimingToleranceMS: 250})
	if len(fail.Failing) != 1 {
		t.Fatalf("expected timing drift over tolerance to fail, got %+v", fail.Failing)
	}
}

func TestEvaluateDivergencesSourceFlipAlwaysFails(t *testing.T) {
	t.Parallel()

	eval := EvaluateDivergences([]PlanDivergence{{
		Class:   SourceDivergence,
		Scope:   "source",
		Message: "plan source changed from llm to heuristic",
	}}, DivergencePolicy{
		Expected: []ExpectedDivergence{{Class: SourceDivergence, Scope: "source", Approved: true}},
	})
	if len(eval.Failing) != 1 {
		t.Fatalf("expected source flip to always fail, got %+v", eval.Failing)
	}
}

func TestEvaluateDivergencesMissingExpectedFails(t *testing.T) {
	t.Parallel()

	eval := EvaluateDivergences(nil, DivergencePolicy{
		Expected: []ExpectedDivergence{{Class: ActionDivergence, Scope: "section[2].actions", Approved: true}},
	})
	if len(eval.MissingExpected) != 1 {
		t.Fatalf("expected one missing expected divergence, got %+v", eval.MissingExpected)
	}
	if len(eval.Failing) != 1 {
		t.Fatalf("expected missing expected divergence to fail, got %+v", eval.Failing)
	}
}

func TestReadPolicy(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	path := filepath.Join(tmp, "policy.json")
	payload := `{
  "timing_tolerance_ms": 250,
  "expected": [
    {"class": "style", "scope": "section[1].mood", "approved": true}
  ]
}`
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}

	policy, err := ReadPolicy(path)
	if err != nil {
		t.Fatalf("unexpected read policy error: %v", err)
	}
	if policy.TimingToleranceMS != 250 || len(policy.Expected) != 1 {
		t.Fatalf("unexpected policy: %+v", policy)
	}
}

func TestReadPolicyRejectsUnknownClass(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	path := filepath.Join(tmp, "policy.json")
	payload := `{"timing_tolerance_ms": 10, "expected": [{"class": "vibe", "scope": "title"}]}`
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}
	if _, err := ReadPolicy(path); err == nil {
		t.Fatalf("expected unknown divergence class to be rejected")
	}
}

func basePlan() plan.MergedPlan {
	return plan.MergedPlan{
		Title:  "Night Drive",
		Source: plan.SourceLLM,
		Sections: []plan.PlanSection{
			{
				Label:   "Verse",
				StartMS: 0,
				EndMS:   8000,
				Role:    plan.RoleSolo,
				Mood:    plan.MoodHappy,
				Camera:  plan.ViewHead,
				Light:   plan.LightConcert,
			},
			{
				Label:   "Chorus",
				StartMS: 8000,
				EndMS:   16000,
				Role:    plan.RoleEnsemble,
				Mood:    plan.MoodLove,
				Camera:  plan.ViewFull,
				Light:   plan.LightClub,
				Actions: []plan.PlanAction{
					{TimeMS: 9000, Action: plan.ActionPlayDance, Args: map[string]any{"clip": "groove"}},
				},
			},
		},
	}
}

func classCount(divergences []PlanDivergence, class DivergenceClass) int {
	count := 0
	for _, d := range divergences {
		if d.Class == class {
			count++
		}
	}
	return count
}
