package contract_test

import (
	"context"
	"testing"

	"github.com/KBLLR/Avatars-Lab-sub000/api/plan"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/performance/executor"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/performance/movement"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/performance/taskqueue"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/tooling/conformance"
	"github.com/KBLLR/Avatars-Lab-sub000/pkg/avatar"
)

type nopControls struct{}

func (nopControls) SetMood(plan.Mood) error                   { return nil }
func (nopControls) PlayGesture(string) error                  { return nil }
func (nopControls) PlayEmoji(string) error                    { return nil }
func (nopControls) SetView(plan.View) error                   { return nil }
func (nopControls) MoveCamera(_, _, _ float64, _ int64) error { return nil }
func (nopControls) SetLight(plan.Light) error                 { return nil }
func (nopControls) PlayAudio(string) error                    { return nil }
func (nopControls) Speak(string) error                        { return nil }
func (nopControls) SetSpeaker(string) error                   { return nil }
func (nopControls) PlayDance(string) error                    { return nil }
func (nopControls) PlayPose(string) error                     { return nil }
func (nopControls) SetPostEffect(string) error                { return nil }

func TestFullRigSatisfiesFullStageProfile(t *testing.T) {
	t.Parallel()

	queue := taskqueue.New(16)
	defer queue.Drain(context.Background())

	reg := executor.NewRegistry()
	defer reg.Close()

	rig := nopControls{}
	controls := avatar.SceneControls{
		Mood:    rig,
		Gesture: rig,
		Camera:  rig,
		Light:   rig,
		Audio:   rig,
		Speech:  rig,
		Dance:   rig,
		Effects: rig,
	}
	if err := executor.RegisterSceneControls(reg, controls, movement.NewController(), queue); err != nil {
		t.Fatalf("register controls: %v", err)
	}

	eval := conformance.EvaluateProfile(conformance.FullStageProfile(), reg.Categories())
	if !eval.Passed {
		t.Fatalf("full rig must satisfy full-stage profile:\n%s", conformance.RenderReport(eval))
	}
}

func TestPartialRigFailsFullStageProfile(t *testing.T) {
	t.Parallel()

	reg := executor.NewRegistry()
	defer reg.Close()

	controls := avatar.SceneControls{
		Mood:  nopControls{},
		Light: nopControls{},
	}
	if err := executor.RegisterSceneControls(reg, controls, nil, nil); err != nil {
		t.Fatalf("register controls: %v", err)
	}

	eval := conformance.EvaluateProfile(conformance.FullStageProfile(), reg.Categories())
	if eval.Passed {
		t.Fatal("two-capability rig must fail the full-stage profile")
	}
	if len(eval.Missing) != 6 {
		t.Fatalf("missing = %v", eval.Missing)
	}
}
