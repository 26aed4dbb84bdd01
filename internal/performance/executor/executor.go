// Package executor dispatches timed plan actions to per-capability
// executors. The engine's state-machine mode feeds actions through a
// Registry; each executor owns one capability surface of the avatar
// runtime and validates arguments before touching it.
package executor

import (
	"errors"
	"fmt"
	"sync"

	"github.com/KBLLR/Avatars-Lab-sub000/api/plan"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/fault"
)

// Executor applies actions for one capability category.
type Executor interface {
	Category() plan.Category
	Apply(action plan.PlanAction) error
	Close() error
}

var (
	// ErrDuplicateCategory is returned when a category is registered twice.
	ErrDuplicateCategory = errors.New("executor category already registered")
	// ErrNoExecutor indicates no executor serves the action's category.
	ErrNoExecutor = errors.New("no executor registered for category")
)

// Registry resolves an action's category and routes it to the matching
// executor. Registration happens before playback; dispatch during it.
type Registry struct {
	mu        sync.Mutex
	executors map[plan.Category]Executor
	closeOnce sync.Once
	closeErr  error
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[plan.Category]Executor)}
}

// Register adds an executor, rejecting duplicate categories.
func (r *Registry) Register(e Executor) error {
	if e == nil {
		return fmt.Errorf("executor is required")
	}
	cat := e.Category()
	if cat == "" {
		return fmt.Errorf("executor category is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.executors[cat]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCategory, cat)
	}
	r.executors[cat] = e
	return nil
}

// Categories lists the registered categories.
func (r *Registry) Categories() []plan.Category {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]plan.Category, 0, len(r.executors))
	for cat := range r.executors {
		out = append(out, cat)
	}
	return out
}

// Dispatch routes the action to its category's executor. Failures come
// back as *fault.ExecutionError so the engine can log and continue.
func (r *Registry) Dispatch(action plan.PlanAction) error {
	cat, ok := plan.CategoryOf(action.Action)
	if !ok {
		return execErr(action, fmt.Errorf("unknown action"))
	}

	r.mu.Lock()
	e, ok := r.executors[cat]
	r.mu.Unlock()
	if !ok {
		return execErr(action, fmt.Errorf("%w: %s", ErrNoExecutor, cat))
	}

	if err := e.Apply(action); err != nil {
		var already *fault.ExecutionError
		if errors.As(err, &already) {
			return err
		}
		return execErr(action, err)
	}
	return nil
}

// Close closes every registered executor once, keeping the first error.
func (r *Registry) Close() error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		for _, e := range r.executors {
			if err := e.Close(); err != nil && r.closeErr == nil {
				r.closeErr = err
			}
		}
	})
	return r.closeErr
}

func execErr(action plan.PlanAction, err error) error {
	return &fault.ExecutionError{Action: string(action.Action), TimeMS: action.TimeMS, Err: err}
}
