package stages

import (
	"encoding/json"
	"fmt"

	"github.com/KBLLR/Avatars-Lab-sub000/api/plan"
	"github.com/KBLLR/Avatars-Lab-sub000/api/progress"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/fault"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/llm"
)

// PerformanceStage decides the dramatic arc: one label, role, and mood per
// input window, plus run-level title and notes. It always runs first; the
// scene and camera passes build on its output.
type PerformanceStage struct{}

const performanceTool = "set_performance"

var performanceSchema = json.RawMessage(`{
  "type": "object",
  "required": ["title", "sections"],
  "properties": {
    "title": {"type": "string"},
    "notes": {"type": "string"},
    "sections": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["label", "role", "mood"],
        "properties": {
          "label": {"type": "string"},
          "role": {"type": "string", "enum": ["solo", "ensemble"]},
          "mood": {"type": "string", "enum": ["neutral", "happy", "angry", "sad", "fear", "disgust", "love", "sleep"]},
          "notes": {"type": "string"}
        }
      }
    }
  }
}`)

func (PerformanceStage) Name() progress.Stage { return progress.StagePerformance }

func (PerformanceStage) Request(c Chunk) llm.Request {
	system := "You are the performance director for a virtual avatar show. " +
		"You receive the lyric sections of one passage with their exact time windows. " +
		"Decide the dramatic arc: give every section a short evocative label, a role " +
		"(solo or ensemble), and a facial mood. Moods: neutral, happy, angry, sad, " +
		"fear, disgust, love, sleep. Do not invent or move time windows."

	user := fmt.Sprintf(
		"Passage %d of %d. Performance length %s.\n\nSections (respond with exactly %d entries, in this order):\n%s",
		c.ChunkIndex+1, c.TotalChunks, formatMS(c.DurationMS), len(c.Sections), c.describeSections(),
	)

	return llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Tools:      []llm.Tool{{Name: performanceTool, Description: "Record the performance direction for every section.", Parameters: performanceSchema}},
		ToolChoice: performanceTool,
	}
}

// SectionDirective is the performance pass verdict for one window.
type SectionDirective struct {
	Label string
	Role  plan.Role
	Mood  plan.Mood
	Notes string
}

// PerformanceResult is the parsed performance pass output.
type PerformanceResult struct {
	Title    string
	Notes    string
	Sections []SectionDirective
}

func (PerformanceStage) Parse(c Chunk, resp llm.Response) (PerformanceResult, error) {
	raw, err := payload("performance", resp, performanceTool)
	if err != nil {
		return PerformanceResult{}, err
	}

	var wire struct {
		Title    string `json:"title"`
		Notes    string `json:"notes"`
		Sections []struct {
			Label string `json:"label"`
			Role  string `json:"role"`
			Mood  string `json:"mood"`
			Notes string `json:"notes"`
		} `json:"sections"`
	}
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return PerformanceResult{}, &fault.ParseError{Stage: "performance", Detail: "malformed section payload", Err: err}
	}
	if err := bindCount("performance", len(wire.Sections), len(c.Sections)); err != nil {
		return PerformanceResult{}, err
	}

	out := PerformanceResult{Title: wire.Title, Notes: wire.Notes}
	for _, s := range wire.Sections {
		out.Sections = append(out.Sections, SectionDirective{
			Label: s.Label,
			Role:  parseRole(s.Role),
			Mood:  parseMood(s.Mood),
			Notes: s.Notes,
		})
	}
	return out, nil
}
