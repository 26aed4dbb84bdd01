// Package avatar defines the contract between the performance engine and
// an embedding avatar runtime. The engine produces speech requests and
// scene-control calls; the embedder supplies the implementations that move
// the actual character, camera, and lights.
package avatar

import (
	"context"
	"fmt"

	"github.com/KBLLR/Avatars-Lab-sub000/api/plan"
)

// Speech is synthesized audio plus the timing tracks extracted from it.
// Track arrays are parallel: Words[i] begins at WordStartsMS[i] and lasts
// WordDurationsMS[i], likewise for visemes.
type Speech struct {
	Audio             []byte
	Format            string
	Words             []string
	WordStartsMS      []int64
	WordDurationsMS   []int64
	Visemes           []string
	VisemeStartsMS    []int64
	VisemeDurationsMS []int64
}

// Validate checks the parallel-track invariants.
func (s Speech) Validate() error {
	if len(s.Words) != len(s.WordStartsMS) || len(s.Words) != len(s.WordDurationsMS) {
		return fmt.Errorf("word tracks must be parallel: %d words, %d starts, %d durations",
			len(s.Words), len(s.WordStartsMS), len(s.WordDurationsMS))
	}
	if len(s.Visemes) != len(s.VisemeStartsMS) || len(s.Visemes) != len(s.VisemeDurationsMS) {
		return fmt.Errorf("viseme tracks must be parallel: %d visemes, %d starts, %d durations",
			len(s.Visemes), len(s.VisemeStartsMS), len(s.VisemeDurationsMS))
	}
	return nil
}

// SpeakRequest is the payload for the runtime's speak call. Markers are
// callbacks the runtime fires at the paired absolute playback times, at
// most once each, in non-decreasing time order, synchronized to the audio
// sample position.
type SpeakRequest struct {
	Speech
	Markers       []func()
	MarkerTimesMS []int64
}

// Validate checks track parity and marker ordering.
func (r SpeakRequest) Validate() error {
	if err := r.Speech.Validate(); err != nil {
		return err
	}
	if len(r.Markers) != len(r.MarkerTimesMS) {
		return fmt.Errorf("marker tracks must be parallel: %d markers, %d times",
			len(r.Markers), len(r.MarkerTimesMS))
	}
	for i := 1; i < len(r.MarkerTimesMS); i++ {
		if r.MarkerTimesMS[i] < r.MarkerTimesMS[i-1] {
			return fmt.Errorf("marker times must be non-decreasing: index %d", i)
		}
	}
	return nil
}

// Runtime is the live avatar surface. SpeakAudio blocks until playback
// finishes or ctx is cancelled.
type Runtime interface {
	SpeakAudio(ctx context.Context, req SpeakRequest) error
}

// Synthesizer turns text into timed speech. TTS providers implement this.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (Speech, error)
}

// MoodSetter switches the character's facial mood.
type MoodSetter interface {
	SetMood(mood plan.Mood) error
}

// GesturePlayer plays one-shot hand gestures and emoji reactions.
type GesturePlayer interface {
	PlayGesture(name string) error
	PlayEmoji(emoji string) error
}

// CameraRig frames the character and performs relative moves.
type CameraRig interface {
	SetView(view plan.View) error
	MoveCamera(pan, tilt, distance float64, durationMS int64) error
}

// LightRig applies a named lighting preset.
type LightRig interface {
	SetLight(preset plan.Light) error
}

// AudioPlayer starts background audio playback.
type AudioPlayer interface {
	PlayAudio(source string) error
}

// Speaker utters text and selects which character speaks in duo scenes.
type Speaker interface {
	Speak(text string) error
	SetSpeaker(name string) error
}

// DancePlayer runs looping dance clips and held poses.
type DancePlayer interface {
	PlayDance(clip string) error
	PlayPose(pose string) error
}

// EffectRack toggles full-screen post-processing effects.
type EffectRack interface {
	SetPostEffect(effect string) error
}

// SceneControls bundles the capability surfaces of a runtime. Nil fields
// mean the embedder does not support that capability; executors for nil
// surfaces are simply not registered.
type SceneControls struct {
	Mood    MoodSetter
	Gesture GesturePlayer
	Camera  CameraRig
	Light   LightRig
	Audio   AudioPlayer
	Speech  Speaker
	Dance   DancePlayer
	Effects EffectRack
}
