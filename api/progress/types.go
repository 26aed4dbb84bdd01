// Package progress defines the events the director emits while a run is in
// flight. Events are advisory; dropping them never affects the run outcome.
package progress

import "fmt"

// Stage identifies the pipeline step an event belongs to.
type Stage string

const (
	StageSegment     Stage = "segment"
	StagePerformance Stage = "performance"
	StageStage       Stage = "stage"
	StageCamera      Stage = "camera"
	StageMerge       Stage = "merge"
	StageFallback    Stage = "fallback"
)

// Status is the step's reported condition.
type Status string

const (
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// Event is one progress report correlated to a run.
type Event struct {
	RunID           string `json:"run_id"`
	Stage           Stage  `json:"stage"`
	Status          Status `json:"status"`
	Message         string `json:"message,omitempty"`
	Chunk           int    `json:"chunk,omitempty"`
	TotalChunks     int    `json:"total_chunks,omitempty"`
	ThoughtsPreview string `json:"thoughts_preview,omitempty"`
}

func (e Event) Validate() error {
	if e.RunID == "" {
		return fmt.Errorf("run_id is required")
	}
	if !isStage(e.Stage) {
		return fmt.Errorf("invalid stage %q", e.Stage)
	}
	if !isStatus(e.Status) {
		return fmt.Errorf("invalid status %q", e.Status)
	}
	if e.Chunk < 0 || e.TotalChunks < 0 {
		return fmt.Errorf("chunk counters must be >= 0")
	}
	if e.TotalChunks > 0 && e.Chunk > e.TotalChunks {
		return fmt.Errorf("chunk %d exceeds total_chunks %d", e.Chunk, e.TotalChunks)
	}
	return nil
}

func isStage(v Stage) bool {
	switch v {
	case StageSegment, StagePerformance, StageStage, StageCamera, StageMerge, StageFallback:
		return true
	default:
		return false
	}
}

func isStatus(v Status) bool {
	switch v {
	case StatusRunning, StatusComplete, StatusFailed:
		return true
	default:
		return false
	}
}
