// Package ops evaluates operational health gates over recorded lab runs.
// One sample covers a single director invocation plus its playback; the
// resulting gate report is a publish artifact consumed by the release
// readiness check.
package ops

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/KBLLR/Avatars-Lab-sub000/api/plan"
)

// RunSample captures per-run measurements used for health gates.
type RunSample struct {
	RunID          string `json:"run_id"`
	Source         string `json:"source"`
	PlanLatencyMS  *int64 `json:"plan_latency_ms,omitempty"`
	ActionsPlanned int    `json:"actions_planned"`
	ActionsFired   int    `json:"actions_fired"`
	ActionErrors   int    `json:"action_errors,omitempty"`
	DroppedEvents  int    `json:"dropped_events,omitempty"`
}

// GateThresholds define normative limits for a publishable run set.
type GateThresholds struct {
	PlanLatencyP95MS    int64   `json:"plan_latency_p95_ms"`
	MaxFallbackRatio    float64 `json:"max_fallback_ratio"`
	MinFiredRatio       float64 `json:"min_fired_ratio"`
	MaxActionErrorRatio float64 `json:"max_action_error_ratio"`
	MaxDroppedEvents    int     `json:"max_dropped_events"`
}

// DefaultGateThresholds returns repository baseline gate thresholds.
func DefaultGateThresholds() GateThresholds {
	return GateThresholds{
		PlanLatencyP95MS:    20000,
		MaxFallbackRatio:    0.25,
		MinFiredRatio:       0.98,
		MaxActionErrorRatio: 0.02,
		MaxDroppedEvents:    0,
	}
}

// GateReport summarizes health gate results over a run set.
type GateReport struct {
	Samples          int      `json:"samples"`
	ModelRuns        int      `json:"model_runs"`
	FallbackRuns     int      `json:"fallback_runs"`
	PlanLatencyP95MS *int64   `json:"plan_latency_p95_ms,omitempty"`
	FallbackRatio    float64  `json:"fallback_ratio"`
	FiredRatio       float64  `json:"fired_ratio"`
	ActionErrorRatio float64  `json:"action_error_ratio"`
	DroppedEvents    int      `json:"dropped_events"`
	Violations       []string `json:"violations,omitempty"`
	Passed           bool     `json:"passed"`
}

// EvaluateGates evaluates health gates against recorded run samples.
func EvaluateGates(samples []RunSample, thresholds GateThresholds) GateReport {
	report := GateReport{Samples: len(samples)}
	latencies := make([]int64, 0, len(samples))

	plannedTotal := 0
	firedTotal := 0
	errorTotal := 0

	for _, sample := range samples {
		switch sample.Source {
		case string(plan.SourceLLM):
			report.ModelRuns++
		case string(plan.SourceHeuristic):
			report.FallbackRuns++
		default:
			report.Violations = append(report.Violations, fmt.Sprintf("run %s has unknown source %q", sample.RunID, sample.Source))
		}

		if sample.PlanLatencyMS == nil {
			report.Violations = append(report.Violations, fmt.Sprintf("run %s missing plan latency", sample.RunID))
		} else if *sample.PlanLatencyMS < 0 {
			report.Violations = append(report.Violations, fmt.Sprintf("run %s has negative plan latency", sample.RunID))
		} else {
			latencies = append(latencies, *sample.PlanLatencyMS)
		}

		if sample.ActionsFired > sample.ActionsPlanned {
			report.Violations = append(report.Violations, fmt.Sprintf("run %s fired %d actions but planned only %d", sample.RunID, sample.ActionsFired, sample.ActionsPlanned))
		}
		if sample.ActionErrors > sample.ActionsFired {
			report.Violations = append(report.Violations, fmt.Sprintf("run %s reports more action errors than fired actions", sample.RunID))
		}

		plannedTotal += sample.ActionsPlanned
		firedTotal += sample.ActionsFired
		errorTotal += sample.ActionErrors
		report.DroppedEvents += sample.DroppedEvents
	}

	if len(latencies) > 0 {
		p95 := percentile95(latencies)
		report.PlanLatencyP95MS = &p95
		if p95 > thresholds.PlanLatencyP95MS {
			report.Violations = append(report.Violations, fmt.Sprintf("plan-latency p95=%dms exceeds threshold=%dms", p95, thresholds.PlanLatencyP95MS))
		}
	}

	if report.Samples > 0 {
		report.FallbackRatio = float64(report.FallbackRuns) / float64(report.Samples)
	}
	if report.FallbackRatio > thresholds.MaxFallbackRatio {
		report.Violations = append(report.Violations, fmt.Sprintf("fallback ratio=%.2f exceeds max=%.2f", report.FallbackRatio, thresholds.MaxFallbackRatio))
	}

	if plannedTotal > 0 {
		report.FiredRatio = float64(firedTotal) / float64(plannedTotal)
	}
	if report.FiredRatio < thresholds.MinFiredRatio {
		report.Violations = append(report.Violations, fmt.Sprintf("fired ratio=%.2f below required=%.2f", report.FiredRatio, thresholds.MinFiredRatio))
	}

	if firedTotal > 0 {
		report.ActionErrorRatio = float64(errorTotal) / float64(firedTotal)
	}
	if report.ActionErrorRatio > thresholds.MaxActionErrorRatio {
		report.Violations = append(report.Violations, fmt.Sprintf("action error ratio=%.2f exceeds max=%.2f", report.ActionErrorRatio, thresholds.MaxActionErrorRatio))
	}

	if report.DroppedEvents > thresholds.MaxDroppedEvents {
		report.Violations = append(report.Violations, fmt.Sprintf("dropped progress events=%d exceeds max=%d", report.DroppedEvents, thresholds.MaxDroppedEvents))
	}
	if report.Samples == 0 {
		report.Violations = append(report.Violations, "no runs available for gate validation")
	}

	report.Passed = len(report.Violations) == 0
	return report
}

// ReadRunSamples loads a recorded run set from a JSON file. Unknown
// fields are rejected so recordings from stale builds fail loudly.
func ReadRunSamples(path string) ([]RunSample, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("run samples path is required")
	}
	raw, err := os.ReadFile(trimmed)
	if err != nil {
		return nil, fmt.Errorf("read run samples %s: %w", trimmed, err)
	}
	var samples []RunSample
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&samples); err != nil {
		return nil, fmt.Errorf("decode run samples %s: %w", trimmed, err)
	}
	if err := dec.Decode(new(any)); err != io.EOF {
		return nil, fmt.Errorf("decode run samples %s: unexpected trailing JSON payload", trimmed)
	}
	return samples, nil
}

func percentile95(values []int64) int64 {
	if len(values) == 0 {
		return 0
	}
	copied := append([]int64(nil), values...)
	sort.Slice(copied, func(i, j int) bool { return copied[i] < copied[j] })
	index := int(math.Ceil(0.95*float64(len(copied)))) - 1
	if index < 0 {
		index = 0
	}
	if index >= len(copied) {
		index = len(copied) - 1
	}
	return copied[index]
}
