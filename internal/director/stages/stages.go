// Package stages defines the three director passes: Performance decides
// labels, roles, and moods; Stage dresses lighting and scene actions;
// Camera frames views and movement. Each pass builds one model request and
// binds the reply to the chunk's input windows by index. Section timing is
// never delegated to the model; windows come from the segmenter.
package stages

import (
	"fmt"
	"strings"

	"github.com/KBLLR/Avatars-Lab-sub000/api/plan"
	"github.com/KBLLR/Avatars-Lab-sub000/api/transcript"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/fault"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/llm"
)

// Defaults carries the baseline style applied when a pass leaves a section
// attribute unset.
type Defaults struct {
	Mood  plan.Mood
	View  plan.View
	Light plan.Light
}

// WithDefaults fills unset fields with the neutral baseline.
func (d Defaults) WithDefaults() Defaults {
	if d.Mood == "" {
		d.Mood = plan.MoodNeutral
	}
	if d.View == "" {
		d.View = plan.ViewFull
	}
	if d.Light == "" {
		d.Light = plan.LightStudio
	}
	return d
}

// Chunk is one batch of input windows handed to the passes.
type Chunk struct {
	Sections   []transcript.InputSection
	DurationMS int64
	Defaults   Defaults

	// ChunkIndex and TotalChunks position this chunk in the run.
	ChunkIndex  int
	TotalChunks int
	// SectionOffset and TotalSections position the chunk's windows among
	// the run's sections, keeping labels continuous across chunks.
	SectionOffset int
	TotalSections int
}

func (c Chunk) describeSections() string {
	var b strings.Builder
	for i, s := range c.Sections {
		fmt.Fprintf(&b, "%d. [%s - %s] %q\n", i+1, formatMS(s.StartMS), formatMS(s.EndMS), s.Text)
	}
	return b.String()
}

func formatMS(ms int64) string {
	return fmt.Sprintf("%d:%02d.%03d", ms/60000, (ms/1000)%60, ms%1000)
}

// extractJSON recovers a JSON object from model text, tolerating markdown
// fences and prose around the payload.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}

// payload selects the stage's structured output: the forced tool call when
// present, otherwise the message content.
func payload(stage string, resp llm.Response, tool string) (string, error) {
	for _, call := range resp.ToolCalls {
		if call.Name == tool && strings.TrimSpace(call.Arguments) != "" {
			return call.Arguments, nil
		}
	}
	if strings.TrimSpace(resp.Content) == "" {
		return "", &fault.ParseError{Stage: stage, Detail: "model returned no structured output"}
	}
	return extractJSON(resp.Content), nil
}

// bindCount enforces the index contract between model sections and input
// windows.
func bindCount(stage string, got, want int) error {
	if got != want {
		return &fault.ParseError{
			Stage:  stage,
			Detail: fmt.Sprintf("model returned %d sections for %d input windows", got, want),
		}
	}
	return nil
}

// sanitizeActions validates, clamps, and category-filters model-proposed
// actions for one section window. Structurally bad actions are dropped
// rather than failing the pass.
func sanitizeActions(raw []plan.PlanAction, startMS, endMS int64, allowed map[plan.Category]bool) []plan.PlanAction {
	var out []plan.PlanAction
	for _, a := range raw {
		cat, ok := plan.CategoryOf(a.Action)
		if !ok || !allowed[cat] {
			continue
		}
		if a.TimeMS < startMS {
			a.TimeMS = startMS
		}
		if a.TimeMS > endMS {
			a.TimeMS = endMS
		}
		if err := a.Validate(); err != nil {
			continue
		}
		out = append(out, a)
	}
	return out
}

func parseRole(raw string) plan.Role {
	if plan.Role(strings.ToLower(strings.TrimSpace(raw))) == plan.RoleEnsemble {
		return plan.RoleEnsemble
	}
	return plan.RoleSolo
}

func parseMood(raw string) plan.Mood {
	m := plan.Mood(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range plan.Moods() {
		if m == known {
			return m
		}
	}
	return ""
}

func parseView(raw string) plan.View {
	v := plan.View(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range plan.Views() {
		if v == known {
			return v
		}
	}
	return ""
}

func parseLight(raw string) plan.Light {
	l := plan.Light(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range plan.Lights() {
		if l == known {
			return l
		}
	}
	return ""
}
