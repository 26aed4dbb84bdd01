package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KBLLR/Avatars-Lab-sub000/api/plan"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/config"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/director/review"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/fault"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/performance/compiler"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/performance/engine"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/performance/executor"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/performance/movement"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/performance/taskqueue"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/tooling/conformance"
	"github.com/KBLLR/Avatars-Lab-sub000/pkg/avatar"
	"github.com/KBLLR/Avatars-Lab-sub000/providers/tts/elevenlabs"
	"github.com/KBLLR/Avatars-Lab-sub000/providers/tts/polly"
)

var (
	performProfile string
	performTickMS  int
	performSeed    int64
)

const speakTimeout = 30 * time.Second

// performCmd plays an approved plan against the console stage rig.
var performCmd = &cobra.Command{
	Use:   "perform [plan.json]",
	Short: "Play a performance plan against the console rig",
	Long: `Approves the plan, compiles it into a timeline, and plays it in real
time. Scene calls are narrated to the log instead of driving a
renderer; with a TTS provider configured, speak actions synthesize real
audio. Ctrl+C stops the show.

Pass --profile to require a capability profile before playback instead
of the default warn-and-continue coverage check.

Example:
  avlab perform plan.json
  avlab perform plan.json --profile profiles/full-stage.json`,
	Args: cobra.ExactArgs(1),
	RunE: runPerform,
}

func init() {
	performCmd.Flags().StringVar(&performProfile, "profile", "", "Capability profile the rig must satisfy")
	performCmd.Flags().IntVar(&performTickMS, "tick-ms", 0, "Playback tick interval (default: engine.tick_ms config)")
	performCmd.Flags().Int64Var(&performSeed, "seed", 0, "Filler gesture seed (default: wall clock)")
	rootCmd.AddCommand(performCmd)
}

func runPerform(cmd *cobra.Command, args []string) error {
	draft, err := review.LoadDraft(args[0])
	if err != nil {
		return err
	}
	if err := draft.Approve(); err != nil {
		return err
	}
	approved, ok := draft.Approved()
	if !ok {
		return fmt.Errorf("plan approval did not hold")
	}
	durationMS := approved.DurationMS()

	synth, err := buildSynthesizer(cfg)
	if err != nil {
		return err
	}

	queue := taskqueue.New(cfg.Engine.SpeechQueueSize)
	moves := movement.NewController()
	registry := executor.NewRegistry()
	rig := &consoleControls{log: logger, synth: synth}
	if err := executor.RegisterSceneControls(registry, rig.sceneControls(), moves, queue); err != nil {
		return err
	}

	if err := checkCoverage(approved, registry.Categories()); err != nil {
		return err
	}

	timeline, err := compiler.Compile(&approved, durationMS, compiler.Options{
		Defaults: compiler.Defaults{
			Mood:  plan.Mood(cfg.Defaults.Mood),
			View:  plan.View(cfg.Defaults.View),
			Light: plan.Light(cfg.Defaults.Light),
		},
		Seed:       performSeed,
		OnComplete: func() { fmt.Println("performance complete") },
	})
	if err != nil {
		return err
	}

	eng, err := engine.New(engine.Options{
		Registry:        registry,
		Queue:           queue,
		Moves:           moves,
		Logger:          logger,
		SkewToleranceMS: int64(cfg.Engine.SkewToleranceMS),
	})
	if err != nil {
		return err
	}
	if err := eng.Load(timeline); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	tickMS := cfg.Engine.TickMS
	if performTickMS > 0 {
		tickMS = performTickMS
	}
	if tickMS < 1 {
		tickMS = 50
	}

	fmt.Printf("performing %q: %d sections, %d timeline entries, %dms\n",
		approved.Title, len(approved.Sections), len(timeline.Entries), durationMS)

	if err := eng.Play(); err != nil {
		return err
	}
	ticker := time.NewTicker(time.Duration(tickMS) * time.Millisecond)
	defer ticker.Stop()

	last := time.Now()
	for eng.State() == engine.StatePlaying {
		select {
		case <-ctx.Done():
			eng.Stop()
		case now := <-ticker.C:
			if err := eng.Tick(now.Sub(last).Milliseconds()); err != nil {
				eng.Stop()
				return err
			}
			last = now
		}
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer drainCancel()
	if err := queue.Drain(drainCtx); err != nil {
		logger.Warn("speech queue drain", zap.Error(err))
	}

	report := eng.Report()
	fmt.Printf("stage report: state=%s fired=%d position=%dms\n",
		report.State, report.Fired, report.PositionMS)
	for _, ae := range report.Errors {
		fmt.Printf("  action error at %dms: %s: %s\n", ae.TimeMS, ae.Action, ae.Detail)
	}
	if report.ErrorsDropped > 0 {
		fmt.Printf("  (%d further errors dropped)\n", report.ErrorsDropped)
	}
	return eng.Dispose()
}

// checkCoverage compares the plan's capability demand with the rig. A
// profile makes gaps fatal; without one they only warn, since the
// engine skips uncovered actions.
func checkCoverage(p plan.MergedPlan, covered []plan.Category) error {
	if performProfile != "" {
		profile, err := conformance.ReadProfile(performProfile)
		if err != nil {
			return err
		}
		eval := conformance.EvaluateProfile(profile, covered)
		fmt.Println(conformance.RenderReport(eval))
		if !eval.Passed {
			return fmt.Errorf("rig does not satisfy profile %s", profile.ProfileID)
		}
		return nil
	}

	eval := conformance.EvaluatePlan(p, covered)
	if !eval.Passed {
		fmt.Fprintln(os.Stderr, conformance.RenderReport(eval))
		fmt.Fprintln(os.Stderr, "uncovered actions will be skipped")
	}
	return nil
}

// buildSynthesizer maps the TTS config onto a provider. A nil return
// with nil error means synthesis is disabled.
func buildSynthesizer(c config.Config) (avatar.Synthesizer, error) {
	switch strings.ToLower(strings.TrimSpace(c.TTS.Provider)) {
	case "", "none":
		return nil, nil
	case "polly":
		return polly.New(polly.Config{
			Region:  c.TTS.Polly.Region,
			VoiceID: c.TTS.Polly.VoiceID,
			Engine:  c.TTS.Polly.Engine,
		})
	case "elevenlabs":
		return elevenlabs.New(elevenlabs.Config{
			APIKey:  c.TTS.ElevenLabs.APIKey,
			VoiceID: c.TTS.ElevenLabs.VoiceID,
			ModelID: c.TTS.ElevenLabs.ModelID,
		})
	default:
		return nil, &fault.ConfigError{Field: "tts.provider", Detail: fmt.Sprintf("unknown provider %q", c.TTS.Provider)}
	}
}

// consoleControls narrates scene calls instead of driving a renderer.
// It stands in for an embedder runtime when rehearsing from the
// terminal.
type consoleControls struct {
	log   *zap.Logger
	synth avatar.Synthesizer
}

func (c *consoleControls) sceneControls() avatar.SceneControls {
	return avatar.SceneControls{
		Mood:    c,
		Gesture: c,
		Camera:  c,
		Light:   c,
		Audio:   c,
		Speech:  c,
		Dance:   c,
		Effects: c,
	}
}

func (c *consoleControls) SetMood(mood plan.Mood) error {
	c.log.Info("mood", zap.String("mood", string(mood)))
	return nil
}

func (c *consoleControls) PlayGesture(name string) error {
	c.log.Info("gesture", zap.String("gesture", name))
	return nil
}

func (c *consoleControls) PlayEmoji(emoji string) error {
	c.log.Info("emoji", zap.String("emoji", emoji))
	return nil
}

func (c *consoleControls) SetView(view plan.View) error {
	c.log.Info("camera view", zap.String("view", string(view)))
	return nil
}

func (c *consoleControls) MoveCamera(pan, tilt, distance float64, durationMS int64) error {
	c.log.Info("camera move",
		zap.Float64("pan", pan),
		zap.Float64("tilt", tilt),
		zap.Float64("distance", distance),
		zap.Int64("duration_ms", durationMS))
	return nil
}

func (c *consoleControls) SetLight(preset plan.Light) error {
	c.log.Info("light", zap.String("preset", string(preset)))
	return nil
}

func (c *consoleControls) PlayAudio(source string) error {
	c.log.Info("audio", zap.String("source", source))
	return nil
}

func (c *consoleControls) Speak(text string) error {
	if c.synth == nil {
		c.log.Info("speak", zap.String("text", text))
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), speakTimeout)
	defer cancel()
	speech, err := c.synth.Synthesize(ctx, text)
	if err != nil {
		return err
	}
	c.log.Info("speak",
		zap.String("text", text),
		zap.Int("audio_bytes", len(speech.Audio)),
		zap.Int("words", len(speech.Words)),
		zap.Int("visemes", len(speech.Visemes)))
	return nil
}

func (c *consoleControls) SetSpeaker(name string) error {
	c.log.Info("speaker", zap.String("speaker", name))
	return nil
}

func (c *consoleControls) PlayDance(clip string) error {
	c.log.Info("dance", zap.String("clip", clip))
	return nil
}

func (c *consoleControls) PlayPose(pose string) error {
	c.log.Info("pose", zap.String("pose", pose))
	return nil
}

func (c *consoleControls) SetPostEffect(effect string) error {
	c.log.Info("post effect", zap.String("effect", effect))
	return nil
}
