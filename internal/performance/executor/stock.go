package executor

import (
	"fmt"

	"github.com/KBLLR/Avatars-Lab-sub000/api/plan"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/performance/movement"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/performance/taskqueue"
	"github.com/KBLLR/Avatars-Lab-sub000/pkg/avatar"
)

// MoodExecutor drives the character's facial mood.
type MoodExecutor struct {
	target avatar.MoodSetter
}

func NewMoodExecutor(target avatar.MoodSetter) (*MoodExecutor, error) {
	if target == nil {
		return nil, fmt.Errorf("mood target is required")
	}
	return &MoodExecutor{target: target}, nil
}

func (e *MoodExecutor) Category() plan.Category { return plan.CategoryMood }

func (e *MoodExecutor) Apply(a plan.PlanAction) error {
	switch a.Action {
	case plan.ActionSetMood:
		mood := plan.Mood(a.StringArg("mood"))
		if !plan.ValidMood(mood) {
			return fmt.Errorf("unknown mood %q", mood)
		}
		return e.target.SetMood(mood)
	default:
		return fmt.Errorf("unsupported action %s", a.Action)
	}
}

func (e *MoodExecutor) Close() error { return nil }

// GestureExecutor plays gestures and emoji reactions.
type GestureExecutor struct {
	target avatar.GesturePlayer
}

func NewGestureExecutor(target avatar.GesturePlayer) (*GestureExecutor, error) {
	if target == nil {
		return nil, fmt.Errorf("gesture target is required")
	}
	return &GestureExecutor{target: target}, nil
}

func (e *GestureExecutor) Category() plan.Category { return plan.CategoryGesture }

func (e *GestureExecutor) Apply(a plan.PlanAction) error {
	switch a.Action {
	case plan.ActionPlayGesture:
		name := a.StringArg("gesture")
		if !containsString(plan.Gestures(), name) {
			return fmt.Errorf("unknown gesture %q", name)
		}
		return e.target.PlayGesture(name)
	case plan.ActionPlayEmoji:
		emoji := a.StringArg("emoji")
		if emoji == "" {
			return fmt.Errorf("emoji is required")
		}
		return e.target.PlayEmoji(emoji)
	default:
		return fmt.Errorf("unsupported action %s", a.Action)
	}
}

func (e *GestureExecutor) Close() error { return nil }

// CameraExecutor frames the character and runs relative camera moves
// through the movement controller so a new move supersedes the old one.
type CameraExecutor struct {
	rig   avatar.CameraRig
	moves *movement.Controller
}

func NewCameraExecutor(rig avatar.CameraRig, moves *movement.Controller) (*CameraExecutor, error) {
	if rig == nil {
		return nil, fmt.Errorf("camera rig is required")
	}
	if moves == nil {
		return nil, fmt.Errorf("movement controller is required")
	}
	return &CameraExecutor{rig: rig, moves: moves}, nil
}

func (e *CameraExecutor) Category() plan.Category { return plan.CategoryCamera }

func (e *CameraExecutor) Apply(a plan.PlanAction) error {
	switch a.Action {
	case plan.ActionSetView:
		view := plan.View(a.StringArg("view"))
		if !plan.ValidView(view) {
			return fmt.Errorf("unknown view %q", view)
		}
		return e.rig.SetView(view)
	case plan.ActionMoveCamera:
		durationMS, ok := a.NumberArg("duration_ms")
		if !ok || durationMS < 0 {
			return fmt.Errorf("duration_ms must be a number >= 0")
		}
		pan, _ := a.NumberArg("pan")
		tilt, _ := a.NumberArg("tilt")
		distance, _ := a.NumberArg("distance")
		handle, err := e.moves.Start(movement.Move{
			Pan:        pan,
			Tilt:       tilt,
			Distance:   distance,
			DurationMS: int64(durationMS),
		})
		if err != nil {
			return err
		}
		m := handle.Move
		if err := e.rig.MoveCamera(m.Pan, m.Tilt, m.Distance, m.DurationMS); err != nil {
			e.moves.Cancel()
			return err
		}
		return nil
	default:
		return fmt.Errorf("unsupported action %s", a.Action)
	}
}

func (e *CameraExecutor) Close() error { return nil }

// LightExecutor applies lighting presets.
type LightExecutor struct {
	rig avatar.LightRig
}

func NewLightExecutor(rig avatar.LightRig) (*LightExecutor, error) {
	if rig == nil {
		return nil, fmt.Errorf("light rig is required")
	}
	return &LightExecutor{rig: rig}, nil
}

func (e *LightExecutor) Category() plan.Category { return plan.CategoryLighting }

func (e *LightExecutor) Apply(a plan.PlanAction) error {
	switch a.Action {
	case plan.ActionSetLight:
		preset := plan.Light(a.StringArg("preset"))
		if !plan.ValidLight(preset) {
			return fmt.Errorf("unknown light preset %q", preset)
		}
		return e.rig.SetLight(preset)
	default:
		return fmt.Errorf("unsupported action %s", a.Action)
	}
}

func (e *LightExecutor) Close() error { return nil }

// AudioExecutor starts background audio playback.
type AudioExecutor struct {
	player avatar.AudioPlayer
}

func NewAudioExecutor(player avatar.AudioPlayer) (*AudioExecutor, error) {
	if player == nil {
		return nil, fmt.Errorf("audio player is required")
	}
	return &AudioExecutor{player: player}, nil
}

func (e *AudioExecutor) Category() plan.Category { return plan.CategoryAudio }

func (e *AudioExecutor) Apply(a plan.PlanAction) error {
	switch a.Action {
	case plan.ActionPlayAudio:
		source := a.StringArg("url")
		if source == "" {
			source = a.StringArg("clip")
		}
		if source == "" {
			return fmt.Errorf("url or clip is required")
		}
		return e.player.PlayAudio(source)
	default:
		return fmt.Errorf("unsupported action %s", a.Action)
	}
}

func (e *AudioExecutor) Close() error { return nil }

// SpeechExecutor sequences utterances and speaker switches through the
// task queue so they play in plan order. The queue is owned by the
// caller; Close leaves it running.
type SpeechExecutor struct {
	speaker avatar.Speaker
	queue   *taskqueue.Queue
}

func NewSpeechExecutor(speaker avatar.Speaker, queue *taskqueue.Queue) (*SpeechExecutor, error) {
	if speaker == nil {
		return nil, fmt.Errorf("speaker is required")
	}
	if queue == nil {
		return nil, fmt.Errorf("task queue is required")
	}
	return &SpeechExecutor{speaker: speaker, queue: queue}, nil
}

func (e *SpeechExecutor) Category() plan.Category { return plan.CategorySpeech }

func (e *SpeechExecutor) Apply(a plan.PlanAction) error {
	switch a.Action {
	case plan.ActionSpeak:
		text := a.StringArg("text")
		if text == "" {
			return fmt.Errorf("text is required")
		}
		return e.queue.Enqueue(taskqueue.Task{
			ID:  fmt.Sprintf("speak-%dms", a.TimeMS),
			Run: func() error { return e.speaker.Speak(text) },
		})
	case plan.ActionSetSpeaker:
		name := a.StringArg("speaker")
		if name == "" {
			return fmt.Errorf("speaker is required")
		}
		return e.queue.Enqueue(taskqueue.Task{
			ID:  fmt.Sprintf("speaker-%dms", a.TimeMS),
			Run: func() error { return e.speaker.SetSpeaker(name) },
		})
	default:
		return fmt.Errorf("unsupported action %s", a.Action)
	}
}

func (e *SpeechExecutor) Close() error { return nil }

// DanceExecutor runs dance clips and held poses.
type DanceExecutor struct {
	player avatar.DancePlayer
}

func NewDanceExecutor(player avatar.DancePlayer) (*DanceExecutor, error) {
	if player == nil {
		return nil, fmt.Errorf("dance player is required")
	}
	return &DanceExecutor{player: player}, nil
}

func (e *DanceExecutor) Category() plan.Category { return plan.CategoryDance }

func (e *DanceExecutor) Apply(a plan.PlanAction) error {
	switch a.Action {
	case plan.ActionPlayDance:
		clip := a.StringArg("clip")
		if !containsString(plan.DanceClips(), clip) {
			return fmt.Errorf("unknown dance clip %q", clip)
		}
		return e.player.PlayDance(clip)
	case plan.ActionPlayPose:
		pose := a.StringArg("pose")
		if !containsString(plan.Poses(), pose) {
			return fmt.Errorf("unknown pose %q", pose)
		}
		return e.player.PlayPose(pose)
	default:
		return fmt.Errorf("unsupported action %s", a.Action)
	}
}

func (e *DanceExecutor) Close() error { return nil }

// EffectExecutor toggles post-processing effects.
type EffectExecutor struct {
	rack avatar.EffectRack
}

func NewEffectExecutor(rack avatar.EffectRack) (*EffectExecutor, error) {
	if rack == nil {
		return nil, fmt.Errorf("effect rack is required")
	}
	return &EffectExecutor{rack: rack}, nil
}

func (e *EffectExecutor) Category() plan.Category { return plan.CategoryEffects }

func (e *EffectExecutor) Apply(a plan.PlanAction) error {
	switch a.Action {
	case plan.ActionSetPostEffect:
		effect := a.StringArg("effect")
		if !containsString(plan.PostEffects(), effect) {
			return fmt.Errorf("unknown post effect %q", effect)
		}
		return e.rack.SetPostEffect(effect)
	default:
		return fmt.Errorf("unsupported action %s", a.Action)
	}
}

func (e *EffectExecutor) Close() error { return nil }

// RegisterSceneControls builds and registers an executor for every
// non-nil capability in controls. Camera moves route through moves and
// speech through queue, both required only when their capability is set.
func RegisterSceneControls(r *Registry, controls avatar.SceneControls, moves *movement.Controller, queue *taskqueue.Queue) error {
	if controls.Mood != nil {
		e, err := NewMoodExecutor(controls.Mood)
		if err != nil {
			return err
		}
		if err := r.Register(e); err != nil {
			return err
		}
	}
	if controls.Gesture != nil {
		e, err := NewGestureExecutor(controls.Gesture)
		if err != nil {
			return err
		}
		if err := r.Register(e); err != nil {
			return err
		}
	}
	if controls.Camera != nil {
		e, err := NewCameraExecutor(controls.Camera, moves)
		if err != nil {
			return err
		}
		if err := r.Register(e); err != nil {
			return err
		}
	}
	if controls.Light != nil {
		e, err := NewLightExecutor(controls.Light)
		if err != nil {
			return err
		}
		if err := r.Register(e); err != nil {
			return err
		}
	}
	if controls.Audio != nil {
		e, err := NewAudioExecutor(controls.Audio)
		if err != nil {
			return err
		}
		if err := r.Register(e); err != nil {
			return err
		}
	}
	if controls.Speech != nil {
		e, err := NewSpeechExecutor(controls.Speech, queue)
		if err != nil {
			return err
		}
		if err := r.Register(e); err != nil {
			return err
		}
	}
	if controls.Dance != nil {
		e, err := NewDanceExecutor(controls.Dance)
		if err != nil {
			return err
		}
		if err := r.Register(e); err != nil {
			return err
		}
	}
	if controls.Effects != nil {
		e, err := NewEffectExecutor(controls.Effects)
		if err != nil {
			return err
		}
		if err := r.Register(e); err != nil {
			return err
		}
	}
	return nil
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
