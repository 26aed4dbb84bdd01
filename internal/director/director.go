// Package director orchestrates the AI planning cascade. A run chunks the
// transcript windows, walks each chunk through the performance, stage, and
// camera passes, merges the fragments, and falls back to the deterministic
// generator when the model gives nothing usable. Time always belongs to
// the input windows; the model only decorates them.
package director

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/KBLLR/Avatars-Lab-sub000/api/plan"
	"github.com/KBLLR/Avatars-Lab-sub000/api/progress"
	"github.com/KBLLR/Avatars-Lab-sub000/api/transcript"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/director/chunker"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/director/fallback"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/director/planmerge"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/director/stages"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/fault"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/llm"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/observability/feed"
)

const (
	defaultStageTimeout   = 30 * time.Second
	defaultMaxRetries     = 2
	defaultRetryBackoff   = 500 * time.Millisecond
	defaultChunkThreshold = 10
	thoughtsPreviewLimit  = 160
)

// StageClient is the streaming LLM surface the passes run against.
// *llm.Client satisfies it; tests substitute scripted fakes.
type StageClient interface {
	Stream(ctx context.Context, req llm.Request, onDelta func(llm.Delta)) (llm.Response, error)
}

// Options configure an Orchestrator.
type Options struct {
	Client StageClient
	Logger *zap.Logger
	Feed   *feed.Feed

	Chunker        chunker.Options
	ChunkThreshold int

	// StageTimeout bounds one model call. MaxRetries counts retries after
	// the first attempt; negative disables retrying. RetryBackoff scales
	// linearly with the attempt number, superseded by a server
	// Retry-After hint when longer.
	StageTimeout time.Duration
	MaxRetries   int
	RetryBackoff time.Duration

	// SequentialStages runs the stage and camera passes one after the
	// other instead of concurrently.
	SequentialStages bool
}

// Input is one planning request. Sections must tile [0, DurationMS).
// Words and Text feed the deterministic generator when the whole run
// falls back.
type Input struct {
	Sections   []transcript.InputSection
	DurationMS int64
	Words      []transcript.WordTiming
	Text       string
	Defaults   stages.Defaults
}

// Callbacks deliver run progress. All fields are optional; events also
// flow into the orchestrator's feed when one is configured.
type Callbacks struct {
	OnProgress func(progress.Event)
	OnChunk    func(chunk, total int, fragment *plan.MergedPlan)
	OnThoughts func(stage progress.Stage, preview string)
	OnFallback func(reason string)
}

// Result is the outcome of a completed run. UsedFallback marks full
// heuristic substitution; chunk-scoped substitutions keep it false.
type Result struct {
	RunID         string
	Plan          *plan.MergedPlan
	UsedFallback  bool
	TotalDuration time.Duration
}

// Orchestrator runs at most one plan generation at a time; starting a new
// run cancels and replaces the active one.
type Orchestrator struct {
	client         StageClient
	log            *zap.Logger
	feed           *feed.Feed
	chunkOpts      chunker.Options
	chunkThreshold int
	stageTimeout   time.Duration
	maxRetries     int
	backoff        time.Duration
	sequential     bool

	mu        sync.Mutex
	cancelRun context.CancelFunc
	runDone   chan struct{}
}

// New constructs an orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("stage client is required")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	threshold := opts.ChunkThreshold
	if threshold < 1 {
		threshold = defaultChunkThreshold
	}
	timeout := opts.StageTimeout
	if timeout <= 0 {
		timeout = defaultStageTimeout
	}
	retries := opts.MaxRetries
	if retries == 0 {
		retries = defaultMaxRetries
	}
	if retries < 0 {
		retries = 0
	}
	backoff := opts.RetryBackoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}

	return &Orchestrator{
		client:         opts.Client,
		log:            log,
		feed:           opts.Feed,
		chunkOpts:      opts.Chunker,
		chunkThreshold: threshold,
		stageTimeout:   timeout,
		maxRetries:     retries,
		backoff:        backoff,
		sequential:     opts.SequentialStages,
	}, nil
}

// Cancel aborts the active run, if any. The aborted Run call returns a
// cancellation error with a nil plan; no fallback is substituted.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	cancel := o.cancelRun
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Run generates a performance plan for the input. It blocks until the
// plan is ready, the context is cancelled, or Cancel/a replacing Run
// aborts it.
func (o *Orchestrator) Run(ctx context.Context, in Input, cb Callbacks) (Result, error) {
	started := time.Now()
	if in.DurationMS <= 0 {
		return Result{}, fmt.Errorf("duration_ms must be > 0")
	}
	if err := transcript.ValidateSections(in.Sections, in.DurationMS); err != nil {
		return Result{}, fmt.Errorf("input sections: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	o.replaceActiveRun(cancel, done)
	defer func() {
		cancel()
		close(done)
		o.clearActiveRun(done)
	}()

	runID := uuid.NewString()
	defaults := in.Defaults.WithDefaults()

	groups := [][]transcript.InputSection{in.Sections}
	if chunker.ShouldChunk(in.Sections, o.chunkThreshold) {
		groups = chunker.Chunk(in.Sections, o.chunkOpts)
	}
	total := len(groups)

	frags := make([]*plan.MergedPlan, 0, total)
	modelChunks := 0
	offset := 0
	for i, group := range groups {
		if err := runCtx.Err(); err != nil {
			return Result{}, fault.Cancelled(err)
		}
		c := stages.Chunk{
			Sections:      group,
			DurationMS:    in.DurationMS,
			Defaults:      defaults,
			ChunkIndex:    i,
			TotalChunks:   total,
			SectionOffset: offset,
			TotalSections: len(in.Sections),
		}
		frag, fromModel, err := o.planChunk(runCtx, c, cb, runID)
		if err != nil {
			return Result{}, err
		}
		if fromModel {
			modelChunks++
		}
		frags = append(frags, frag)
		offset += len(group)
		if cb.OnChunk != nil {
			cb.OnChunk(i+1, total, frag)
		}
	}
	if err := runCtx.Err(); err != nil {
		return Result{}, fault.Cancelled(err)
	}

	o.emit(cb, progress.Event{RunID: runID, Stage: progress.StageMerge, Status: progress.StatusRunning})
	merged := planmerge.Merge(frags)
	merged.Source = plan.SourceLLM

	reason := ""
	if modelChunks == 0 {
		reason = "no chunk produced usable model output"
	} else if err := merged.Validate(); err != nil {
		reason = fmt.Sprintf("merged plan invalid: %v", err)
	}
	if reason != "" {
		o.emit(cb, progress.Event{RunID: runID, Stage: progress.StageMerge, Status: progress.StatusFailed, Message: reason})
		o.log.Warn("substituting full heuristic plan", zap.String("reason", reason))
		if cb.OnFallback != nil {
			cb.OnFallback(reason)
		}
		o.emit(cb, progress.Event{RunID: runID, Stage: progress.StageFallback, Status: progress.StatusRunning, Message: reason})
		fb := fallback.Generate(fallback.Input{DurationMS: in.DurationMS, Words: in.Words, Text: in.Text})
		o.emit(cb, progress.Event{RunID: runID, Stage: progress.StageFallback, Status: progress.StatusComplete})
		return Result{RunID: runID, Plan: &fb, UsedFallback: true, TotalDuration: time.Since(started)}, nil
	}

	o.emit(cb, progress.Event{RunID: runID, Stage: progress.StageMerge, Status: progress.StatusComplete})
	return Result{RunID: runID, Plan: &merged, TotalDuration: time.Since(started)}, nil
}

// planChunk runs the three passes for one chunk. Performance failures
// substitute a chunk-scoped heuristic fragment; stage and camera failures
// degrade to an undirected overlay. Only cancellation returns an error.
func (o *Orchestrator) planChunk(ctx context.Context, c stages.Chunk, cb Callbacks, runID string) (*plan.MergedPlan, bool, error) {
	var perfStage stages.PerformanceStage
	var perf stages.PerformanceResult
	err := o.invoke(ctx, progress.StagePerformance, c, cb, runID, perfStage.Request(c), func(resp llm.Response) error {
		var perr error
		perf, perr = perfStage.Parse(c, resp)
		return perr
	})
	if err != nil {
		if fault.IsCancellation(err) {
			return nil, false, err
		}
		reason := fmt.Sprintf("performance pass failed: %v", err)
		o.log.Warn("substituting heuristic fragment",
			zap.Int("chunk", c.ChunkIndex+1),
			zap.Int("total_chunks", c.TotalChunks),
			zap.Error(err))
		o.emit(cb, chunkEvent(runID, progress.StageFallback, progress.StatusRunning, reason, c))
		frag := fallback.Fragment(c.Sections, c.SectionOffset, c.TotalSections)
		o.emit(cb, chunkEvent(runID, progress.StageFallback, progress.StatusComplete, "", c))
		return frag, false, nil
	}

	var sceneStage stages.SceneStage
	var camStage stages.CameraStage
	var scene stages.SceneResult
	var cam stages.CameraResult
	var sceneErr, camErr error

	runScene := func(ctx context.Context) error {
		err := o.invoke(ctx, progress.StageStage, c, cb, runID, sceneStage.Request(c, perf), func(resp llm.Response) error {
			var perr error
			scene, perr = sceneStage.Parse(c, resp)
			return perr
		})
		if err != nil && fault.IsCancellation(err) {
			return err
		}
		sceneErr = err
		return nil
	}
	runCamera := func(ctx context.Context) error {
		err := o.invoke(ctx, progress.StageCamera, c, cb, runID, camStage.Request(c, perf), func(resp llm.Response) error {
			var perr error
			cam, perr = camStage.Parse(c, resp)
			return perr
		})
		if err != nil && fault.IsCancellation(err) {
			return err
		}
		camErr = err
		return nil
	}

	if o.sequential {
		if err := runScene(ctx); err != nil {
			return nil, false, err
		}
		if err := runCamera(ctx); err != nil {
			return nil, false, err
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return runScene(gctx) })
		g.Go(func() error { return runCamera(gctx) })
		if err := g.Wait(); err != nil {
			return nil, false, err
		}
	}

	scenePtr := &scene
	if sceneErr != nil {
		o.log.Warn("stage pass degraded", zap.Int("chunk", c.ChunkIndex+1), zap.Error(sceneErr))
		scenePtr = nil
	}
	camPtr := &cam
	if camErr != nil {
		o.log.Warn("camera pass degraded", zap.Int("chunk", c.ChunkIndex+1), zap.Error(camErr))
		camPtr = nil
	}
	return stages.Assemble(c, perf, scenePtr, camPtr), true, nil
}

// invoke performs one stage call with streaming, bounded retries, and
// backoff. Parse failures count as retryable attempts; cancellation and
// configuration errors end the loop immediately.
func (o *Orchestrator) invoke(ctx context.Context, st progress.Stage, c stages.Chunk, cb Callbacks, runID string, req llm.Request, parse func(llm.Response) error) error {
	o.emit(cb, chunkEvent(runID, st, progress.StatusRunning, "", c))

	var thoughts strings.Builder
	onDelta := func(d llm.Delta) {
		if d.Reasoning == "" {
			return
		}
		thoughts.WriteString(d.Reasoning)
		if cb.OnThoughts != nil {
			cb.OnThoughts(st, tail(thoughts.String(), thoughtsPreviewLimit))
		}
	}

	var lastErr error
	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		if attempt > 0 {
			if err := o.sleep(ctx, o.retryDelay(attempt, lastErr)); err != nil {
				o.emit(cb, chunkEvent(runID, st, progress.StatusFailed, "cancelled", c))
				return err
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, o.stageTimeout)
		resp, err := o.client.Stream(callCtx, req, onDelta)
		cancel()
		if err == nil {
			err = parse(resp)
			if err == nil {
				ev := chunkEvent(runID, st, progress.StatusComplete, "", c)
				ev.ThoughtsPreview = tail(thoughts.String(), thoughtsPreviewLimit)
				o.emit(cb, ev)
				return nil
			}
		}
		if fault.IsCancellation(err) {
			o.emit(cb, chunkEvent(runID, st, progress.StatusFailed, "cancelled", c))
			return err
		}
		lastErr = err
		if !fault.Retryable(err) {
			break
		}
		o.log.Warn("stage attempt failed",
			zap.String("stage", string(st)),
			zap.Int("attempt", attempt+1),
			zap.Int("chunk", c.ChunkIndex+1),
			zap.Error(err))
	}

	o.emit(cb, chunkEvent(runID, st, progress.StatusFailed, lastErr.Error(), c))
	return lastErr
}

func (o *Orchestrator) retryDelay(attempt int, lastErr error) time.Duration {
	delay := o.backoff * time.Duration(attempt)
	if hint := fault.RetryAfterMS(lastErr); hint > 0 {
		if hinted := time.Duration(hint) * time.Millisecond; hinted > delay {
			delay = hinted
		}
	}
	return delay
}

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fault.Cancelled(ctx.Err())
	case <-t.C:
		return nil
	}
}

func (o *Orchestrator) emit(cb Callbacks, ev progress.Event) {
	if cb.OnProgress != nil {
		cb.OnProgress(ev)
	}
	if o.feed != nil {
		o.feed.Emit(ev)
	}
}

// replaceActiveRun cancels the current run, waits for it to finish, and
// installs this run as the active one.
func (o *Orchestrator) replaceActiveRun(cancel context.CancelFunc, done chan struct{}) {
	for {
		o.mu.Lock()
		if o.cancelRun == nil {
			o.cancelRun = cancel
			o.runDone = done
			o.mu.Unlock()
			return
		}
		prevCancel, prevDone := o.cancelRun, o.runDone
		o.mu.Unlock()
		prevCancel()
		<-prevDone
	}
}

func (o *Orchestrator) clearActiveRun(done chan struct{}) {
	o.mu.Lock()
	if o.runDone == done {
		o.cancelRun = nil
		o.runDone = nil
	}
	o.mu.Unlock()
}

func chunkEvent(runID string, st progress.Stage, status progress.Status, msg string, c stages.Chunk) progress.Event {
	return progress.Event{
		RunID:       runID,
		Stage:       st,
		Status:      status,
		Message:     msg,
		Chunk:       c.ChunkIndex + 1,
		TotalChunks: c.TotalChunks,
	}
}

func tail(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[len(s)-limit:]
}
