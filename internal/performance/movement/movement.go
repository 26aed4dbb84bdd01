// Package movement owns the single camera move a performance may have in
// flight. Starting a new move invalidates the previous handle, so a stale
// completion callback from a superseded move cannot disturb the camera.
package movement

import (
	"fmt"
	"sync"
)

// Move describes a relative camera motion.
type Move struct {
	Pan        float64
	Tilt       float64
	Distance   float64
	DurationMS int64
}

// Handle identifies one started move.
type Handle struct {
	ID   uint64
	Move Move
}

// Stats reports controller counters.
type Stats struct {
	Started    int64
	Completed  int64
	Cancelled  int64
	Superseded int64
}

// Controller tracks the active camera move.
type Controller struct {
	mu         sync.Mutex
	active     *Handle
	nextID     uint64
	started    int64
	completed  int64
	cancelled  int64
	superseded int64
}

// NewController returns a controller with no active move.
func NewController() *Controller {
	return &Controller{}
}

// Start begins a move, superseding any move still active. Axis values
// outside the rig range are clamped rather than rejected.
func (c *Controller) Start(m Move) (Handle, error) {
	if m.DurationMS < 0 {
		return Handle{}, fmt.Errorf("duration_ms must be >= 0")
	}
	m.Pan = clampAxis(m.Pan)
	m.Tilt = clampAxis(m.Tilt)
	m.Distance = clampAxis(m.Distance)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		c.superseded++
	}
	c.nextID++
	handle := Handle{ID: c.nextID, Move: m}
	c.active = &handle
	c.started++
	return handle, nil
}

// Complete marks the move identified by id as finished. It reports false
// when id no longer names the active move.
func (c *Controller) Complete(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil || c.active.ID != id {
		return false
	}
	c.active = nil
	c.completed++
	return true
}

// Cancel discards the active move, reporting whether one was active.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return false
	}
	c.active = nil
	c.cancelled++
	return true
}

// Active returns the current move handle, if any.
func (c *Controller) Active() (Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return Handle{}, false
	}
	return *c.active, true
}

// Stats returns a snapshot of controller counters.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Started:    c.started,
		Completed:  c.completed,
		Cancelled:  c.cancelled,
		Superseded: c.superseded,
	}
}

func clampAxis(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
