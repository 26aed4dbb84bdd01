package stages

import (
	"encoding/json"
	"fmt"

	"github.com/KBLLR/Avatars-Lab-sub000/api/plan"
	"github.com/KBLLR/Avatars-Lab-sub000/api/progress"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/fault"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/llm"
)

// SceneStage dresses the set: one lighting preset per window plus optional
// lighting, dance, effect, and background-audio actions inside the windows.
type SceneStage struct{}

const sceneTool = "set_stage"

var sceneSchema = json.RawMessage(`{
  "type": "object",
  "required": ["sections"],
  "properties": {
    "notes": {"type": "string"},
    "sections": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["light"],
        "properties": {
          "light": {"type": "string", "enum": ["studio", "concert", "club", "sunset", "dawn", "noir", "spotlight"]},
          "actions": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["time_ms", "action"],
              "properties": {
                "time_ms": {"type": "integer"},
                "action": {"type": "string", "enum": ["setLight", "playDance", "playPose", "setPostEffect", "playAudio"]},
                "args": {"type": "object"}
              }
            }
          }
        }
      }
    }
  }
}`)

var sceneCategories = map[plan.Category]bool{
	plan.CategoryLighting: true,
	plan.CategoryDance:    true,
	plan.CategoryEffects:  true,
	plan.CategoryAudio:    true,
}

func (SceneStage) Name() progress.Stage { return progress.StageStage }

func (SceneStage) Request(c Chunk, perf PerformanceResult) llm.Request {
	system := "You are the stage director for a virtual avatar show. You receive lyric " +
		"sections with time windows and the performance direction already decided for " +
		"them. Pick one lighting preset per section and, sparingly, add lighting, dance, " +
		"pose, effect, or background-audio actions with absolute time_ms inside the " +
		"section window. Lighting presets: studio, concert, club, sunset, dawn, noir, " +
		"spotlight. Dance clips: groove, wave, spin, bounce. Poses: straight, side, hip, " +
		"turn. Effects: bloom, shake, glitch, blur, none."

	user := fmt.Sprintf(
		"Passage %d of %d. Performance length %s. Direction so far: title %q, moods per section below.\n\nSections (respond with exactly %d entries, in this order):\n%s\nDirection:\n%s",
		c.ChunkIndex+1, c.TotalChunks, formatMS(c.DurationMS), perf.Title, len(c.Sections), c.describeSections(), describeDirectives(perf),
	)

	return llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Tools:      []llm.Tool{{Name: sceneTool, Description: "Record lighting and scene actions for every section.", Parameters: sceneSchema}},
		ToolChoice: sceneTool,
	}
}

// SceneResult is the parsed stage pass output: one light per window and the
// sanitized per-window actions.
type SceneResult struct {
	Notes   string
	Lights  []plan.Light
	Actions [][]plan.PlanAction
}

func (SceneStage) Parse(c Chunk, resp llm.Response) (SceneResult, error) {
	raw, err := payload("stage", resp, sceneTool)
	if err != nil {
		return SceneResult{}, err
	}

	var wire struct {
		Notes    string `json:"notes"`
		Sections []struct {
			Light   string            `json:"light"`
			Actions []plan.PlanAction `json:"actions"`
		} `json:"sections"`
	}
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return SceneResult{}, &fault.ParseError{Stage: "stage", Detail: "malformed section payload", Err: err}
	}
	if err := bindCount("stage", len(wire.Sections), len(c.Sections)); err != nil {
		return SceneResult{}, err
	}

	out := SceneResult{Notes: wire.Notes}
	for i, s := range wire.Sections {
		window := c.Sections[i]
		out.Lights = append(out.Lights, parseLight(s.Light))
		out.Actions = append(out.Actions, sanitizeActions(s.Actions, window.StartMS, window.EndMS, sceneCategories))
	}
	return out, nil
}

func describeDirectives(perf PerformanceResult) string {
	var b []byte
	for i, d := range perf.Sections {
		b = fmt.Appendf(b, "%d. %s (%s, %s)\n", i+1, d.Label, d.Role, d.Mood)
	}
	return string(b)
}
