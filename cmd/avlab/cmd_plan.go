package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KBLLR/Avatars-Lab-sub000/api/progress"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/director"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/director/fallback"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/director/segmenter"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/llm"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/observability/feed"
)

var (
	planTranscript string
	planOut        string
	planTimeout    time.Duration
	planHeuristic  bool
)

// planCmd runs the full director cascade over a transcript.
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Generate a directed performance plan from a transcript",
	Long: `Segments the transcript and walks the sections through the director
cascade: the performance pass sets roles and moods, the stage and camera
passes light and frame them, and the fragments merge into one plan.
When the model yields nothing usable the deterministic generator takes
over, so a plan is always produced.

The plan file is a draft: review it, edit it, then play it with
'avlab perform'.

Example:
  avlab plan --transcript talk.json --out plan.json`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVar(&planTranscript, "transcript", "", "Transcript JSON with word timings (required)")
	planCmd.Flags().StringVar(&planOut, "out", "plan.json", "Output plan file")
	planCmd.Flags().DurationVar(&planTimeout, "timeout", 5*time.Minute, "Whole-run timeout")
	planCmd.Flags().BoolVar(&planHeuristic, "heuristic", false, "Skip the model and build the deterministic plan")
	planCmd.MarkFlagRequired("transcript")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	doc, err := readTranscript(planTranscript)
	if err != nil {
		return err
	}

	if planHeuristic {
		p := fallback.Generate(fallback.Input{
			DurationMS: doc.DurationMS,
			Words:      doc.Words,
			Text:       doc.Text(),
		})
		if err := writeJSONFile(planOut, p); err != nil {
			return err
		}
		fmt.Printf("wrote deterministic plan %s: %d sections, %dms\n", planOut, len(p.Sections), p.DurationMS())
		return nil
	}

	client, err := llm.New(cfg.LLMClientConfig())
	if err != nil {
		return err
	}

	var mem *feed.MemorySink
	var sink feed.Sink
	if cfg.Feed.Endpoint != "" {
		sink, err = feed.NewHTTPSink(feed.HTTPSinkConfig{Endpoint: cfg.Feed.Endpoint})
		if err != nil {
			return err
		}
	} else {
		mem = feed.NewMemorySink(cfg.Feed.MemoryCapacity)
		sink = mem
	}
	progressFeed := feed.New(sink, cfg.FeedOptions())
	defer progressFeed.Close()

	orchestrator, err := director.New(cfg.DirectorOptions(client, logger, progressFeed))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), planTimeout)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	sections := segmenter.Segment(doc.Words, doc.DurationMS, segmenter.Options{})
	cb := director.Callbacks{
		OnProgress: printProgress,
		OnThoughts: func(stage progress.Stage, preview string) {
			logger.Debug("model thoughts", zap.String("stage", string(stage)), zap.String("preview", preview))
		},
		OnFallback: func(reason string) {
			fmt.Fprintf(os.Stderr, "substituting deterministic plan: %s\n", reason)
		},
	}

	result, err := orchestrator.Run(ctx, director.Input{
		Sections:   sections,
		DurationMS: doc.DurationMS,
		Words:      doc.Words,
		Text:       doc.Text(),
		Defaults:   cfg.StageDefaultsValue(),
	}, cb)
	if err != nil {
		return fmt.Errorf("plan generation failed: %w", err)
	}

	if err := writeJSONFile(planOut, result.Plan); err != nil {
		return err
	}

	// Drain the feed so the memory sink has every event before counting.
	progressFeed.Close()

	summary := fmt.Sprintf("wrote %s: %d sections, source=%s, took %.1fs",
		planOut, len(result.Plan.Sections), result.Plan.Source, result.TotalDuration.Seconds())
	if mem != nil {
		summary += fmt.Sprintf(", %d progress events", len(mem.Events()))
	}
	fmt.Println(summary)
	return nil
}

// printProgress renders one progress event as a terminal status line.
func printProgress(ev progress.Event) {
	line := fmt.Sprintf("  %-12s %s", ev.Stage, ev.Status)
	if ev.TotalChunks > 0 {
		line += fmt.Sprintf(" [chunk %d/%d]", ev.Chunk, ev.TotalChunks)
	}
	if ev.Message != "" {
		line += ": " + ev.Message
	}
	fmt.Fprintln(os.Stderr, line)
}
