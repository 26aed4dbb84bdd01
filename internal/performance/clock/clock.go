// Package clock tracks the virtual playback position of a running
// performance and reconciles it with the position an audio collaborator
// reports. Frame-driven playback advances the clock; audio reports rebase
// it when the two drift apart.
package clock

import (
	"fmt"
	"sync"
)

// Observation is the reconciliation result returned by Observe.
type Observation struct {
	PositionMS int64
	SkewMS     int64
	Rebased    bool
}

// Playback is a monotonic virtual clock for one performance.
type Playback struct {
	mu         sync.Mutex
	positionMS int64
	rebases    int64
}

// NewPlayback returns a clock positioned at startMS.
func NewPlayback(startMS int64) (*Playback, error) {
	if startMS < 0 {
		return nil, fmt.Errorf("start_ms must be >= 0")
	}
	return &Playback{positionMS: startMS}, nil
}

// NowMS reports the current virtual position.
func (p *Playback) NowMS() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionMS
}

// Advance moves the position forward by deltaMS and returns the new
// position. Negative deltas are rejected so the clock stays monotonic.
func (p *Playback) Advance(deltaMS int64) (int64, error) {
	if deltaMS < 0 {
		return 0, fmt.Errorf("delta_ms must be >= 0")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.positionMS += deltaMS
	return p.positionMS, nil
}

// Observe compares a reported playback position against the virtual
// position and rebases onto the report when skew exceeds maxSkewMS. The
// reported position wins because the audio pipeline is the authority on
// what the listener actually heard.
func (p *Playback) Observe(reportedMS, maxSkewMS int64) (Observation, error) {
	if reportedMS < 0 {
		return Observation{}, fmt.Errorf("reported_ms must be >= 0")
	}
	if maxSkewMS < 0 {
		return Observation{}, fmt.Errorf("max_skew_ms must be >= 0")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	obs := Observation{
		PositionMS: p.positionMS,
		SkewMS:     abs64(reportedMS - p.positionMS),
	}
	if obs.SkewMS > maxSkewMS {
		p.positionMS = reportedMS
		p.rebases++
		obs.PositionMS = reportedMS
		obs.Rebased = true
	}
	return obs, nil
}

// Rebases reports how many times Observe has rebased the clock.
func (p *Playback) Rebases() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rebases
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
