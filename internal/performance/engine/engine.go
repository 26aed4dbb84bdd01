// Package engine executes a compiled timeline against a live performance.
// Marker mode hands the timeline to the avatar runtime as audio-synced
// callbacks; state-machine mode runs a frame-driven loop that dispatches
// crossed actions to per-capability executors. Action failures degrade the
// show, they never stop it.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/KBLLR/Avatars-Lab-sub000/api/plan"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/fault"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/performance/clock"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/performance/compiler"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/performance/executor"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/performance/movement"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/performance/taskqueue"
	"github.com/KBLLR/Avatars-Lab-sub000/pkg/avatar"
)

// State is the engine lifecycle state.
type State string

const (
	StateIdle     State = "idle"
	StatePlaying  State = "playing"
	StateStopped  State = "stopped"
	StateDisposed State = "disposed"
)

const (
	defaultMaxReportErrors = 32
	defaultSkewToleranceMS = 250
)

// Options wire the engine's collaborators. Registry is required; Queue
// and Moves are cancelled on Stop when present. The queue and movement
// controller stay owned by the caller.
type Options struct {
	Registry        *executor.Registry
	Queue           *taskqueue.Queue
	Moves           *movement.Controller
	Logger          *zap.Logger
	MaxReportErrors int
	SkewToleranceMS int64
}

// ActionError is one recorded dispatch failure.
type ActionError struct {
	Action string
	TimeMS int64
	Detail string
}

// Report is bounded evidence about a performance.
type Report struct {
	State         State
	PositionMS    int64
	Fired         int64
	LastFiredMS   int64
	Errors        []ActionError
	ErrorsDropped int64
}

// Engine runs one performance at a time.
type Engine struct {
	registry *executor.Registry
	queue    *taskqueue.Queue
	moves    *movement.Controller
	log      *zap.Logger
	skewMS   int64

	mu       sync.Mutex
	state    State
	timeline *compiler.Timeline
	pending  []compiler.TimedAction
	next     int
	playback *clock.Playback

	rep struct {
		mu          sync.Mutex
		max         int
		fired       int64
		lastFiredMS int64
		errors      []ActionError
		dropped     int64
	}
}

// New constructs an idle engine.
func New(opts Options) (*Engine, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("executor registry is required")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	maxErrs := opts.MaxReportErrors
	if maxErrs < 1 {
		maxErrs = defaultMaxReportErrors
	}
	skew := opts.SkewToleranceMS
	if skew <= 0 {
		skew = defaultSkewToleranceMS
	}

	e := &Engine{
		registry: opts.Registry,
		queue:    opts.Queue,
		moves:    opts.Moves,
		log:      log,
		skewMS:   skew,
		state:    StateIdle,
	}
	e.rep.max = maxErrs
	return e, nil
}

// State returns the lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Load stages a timeline for state-machine playback, resetting the
// virtual clock. Loading replaces any previously loaded timeline and is
// rejected mid-playback.
func (e *Engine) Load(t *compiler.Timeline) error {
	if t == nil {
		return fmt.Errorf("timeline is required")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateDisposed:
		return fmt.Errorf("engine is disposed")
	case StatePlaying:
		return fmt.Errorf("cannot load while playing")
	}

	playback, err := clock.NewPlayback(0)
	if err != nil {
		return err
	}
	pending := make([]compiler.TimedAction, len(t.Entries))
	copy(pending, t.Entries)
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].TimeMS < pending[j].TimeMS })

	e.timeline = t
	e.pending = pending
	e.next = 0
	e.playback = playback
	e.state = StateIdle
	return nil
}

// Play begins dispatching on subsequent ticks. Calling Play while already
// playing is a no-op.
func (e *Engine) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StatePlaying:
		return nil
	case StateDisposed:
		return fmt.Errorf("engine is disposed")
	case StateStopped:
		return fmt.Errorf("engine is stopped: load a new timeline")
	}
	if e.timeline == nil {
		return fmt.Errorf("no timeline loaded")
	}
	e.state = StatePlaying
	return nil
}

// Tick advances virtual time by deltaMS and fires every crossed action
// exactly once, in time order, within this call. Frame deltas may vary;
// a skipped frame fires all the actions it skipped over. Ticks outside
// the playing state are no-ops.
func (e *Engine) Tick(deltaMS int64) error {
	if deltaMS < 0 {
		return fmt.Errorf("delta_ms must be >= 0")
	}

	var complete func()
	e.mu.Lock()
	if e.state != StatePlaying {
		e.mu.Unlock()
		return nil
	}
	now, err := e.playback.Advance(deltaMS)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	for e.next < len(e.pending) && e.pending[e.next].TimeMS <= now {
		entry := e.pending[e.next]
		e.next++
		_ = e.dispatch(entry.Action)
		if entry.Complete && e.timeline.OnComplete != nil {
			complete = e.timeline.OnComplete
		}
	}
	if e.next >= len(e.pending) && now >= e.timeline.DurationMS {
		e.state = StateStopped
	}
	e.mu.Unlock()

	if complete != nil {
		complete()
	}
	return nil
}

// ObserveAudio reconciles the virtual clock with the audio collaborator's
// reported position. After a forward rebase the skipped actions fire on
// the next tick; after a backward rebase nothing re-fires.
func (e *Engine) ObserveAudio(reportedMS int64) (clock.Observation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StatePlaying {
		return clock.Observation{}, fmt.Errorf("engine is not playing")
	}
	return e.playback.Observe(reportedMS, e.skewMS)
}

// Stop halts dispatching, discards pending speech, and cancels any camera
// move in flight. Stopping twice is a no-op.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.state == StateStopped || e.state == StateDisposed {
		e.mu.Unlock()
		return
	}
	e.state = StateStopped
	e.mu.Unlock()

	e.cancelInFlight()
}

// Dispose stops the engine and closes every executor once. The engine is
// unusable afterwards; further control calls error and ticks no-op.
func (e *Engine) Dispose() error {
	e.mu.Lock()
	if e.state == StateDisposed {
		e.mu.Unlock()
		return nil
	}
	e.state = StateDisposed
	e.mu.Unlock()

	e.cancelInFlight()
	return e.registry.Close()
}

// PerformMarkers runs the timeline in marker mode: every entry becomes a
// dispatch-bound callback handed to the avatar runtime in one speak call.
// The runtime owns all timing; the engine does no polling here.
func (e *Engine) PerformMarkers(ctx context.Context, t *compiler.Timeline, speech avatar.Speech, runtime avatar.Runtime) error {
	if t == nil {
		return fmt.Errorf("timeline is required")
	}
	if runtime == nil {
		return fmt.Errorf("runtime is required")
	}
	e.mu.Lock()
	if e.state == StateDisposed {
		e.mu.Unlock()
		return fmt.Errorf("engine is disposed")
	}
	e.mu.Unlock()

	markers, times := compiler.Markers(t, e.dispatch)
	req := avatar.SpeakRequest{Speech: speech, Markers: markers, MarkerTimesMS: times}
	if err := req.Validate(); err != nil {
		return err
	}
	if err := runtime.SpeakAudio(ctx, req); err != nil {
		if ctx.Err() != nil {
			return fault.Cancelled(ctx.Err())
		}
		return err
	}
	return nil
}

// Report returns a snapshot of playback evidence.
func (e *Engine) Report() Report {
	e.mu.Lock()
	state := e.state
	var pos int64
	if e.playback != nil {
		pos = e.playback.NowMS()
	}
	e.mu.Unlock()

	e.rep.mu.Lock()
	defer e.rep.mu.Unlock()

	errs := make([]ActionError, len(e.rep.errors))
	copy(errs, e.rep.errors)
	return Report{
		State:         state,
		PositionMS:    pos,
		Fired:         e.rep.fired,
		LastFiredMS:   e.rep.lastFiredMS,
		Errors:        errs,
		ErrorsDropped: e.rep.dropped,
	}
}

func (e *Engine) dispatch(a plan.PlanAction) error {
	err := e.registry.Dispatch(a)

	e.rep.mu.Lock()
	defer e.rep.mu.Unlock()

	if err != nil {
		e.log.Warn("action dispatch failed",
			zap.String("action", string(a.Action)),
			zap.Int64("time_ms", a.TimeMS),
			zap.Error(err))
		if len(e.rep.errors) < e.rep.max {
			e.rep.errors = append(e.rep.errors, ActionError{
				Action: string(a.Action),
				TimeMS: a.TimeMS,
				Detail: err.Error(),
			})
		} else {
			e.rep.dropped++
		}
		return err
	}

	e.rep.fired++
	if a.TimeMS > e.rep.lastFiredMS {
		e.rep.lastFiredMS = a.TimeMS
	}
	return nil
}

func (e *Engine) cancelInFlight() {
	if e.queue != nil {
		e.queue.CancelPending()
	}
	if e.moves != nil {
		e.moves.Cancel()
	}
}
