package stages

import (
	"encoding/json"
	"fmt"

	"github.com/KBLLR/Avatars-Lab-sub000/api/plan"
	"github.com/KBLLR/Avatars-Lab-sub000/api/progress"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/fault"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/llm"
)

// CameraStage frames the show: one view per window plus optional cuts and
// movements inside the windows.
type CameraStage struct{}

const cameraTool = "set_camera"

var cameraSchema = json.RawMessage(`{
  "type": "object",
  "required": ["sections"],
  "properties": {
    "notes": {"type": "string"},
    "sections": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["view"],
        "properties": {
          "view": {"type": "string", "enum": ["full", "mid", "upper", "head"]},
          "actions": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["time_ms", "action"],
              "properties": {
                "time_ms": {"type": "integer"},
                "action": {"type": "string", "enum": ["setView", "moveCamera"]},
                "args": {"type": "object"}
              }
            }
          }
        }
      }
    }
  }
}`)

var cameraCategories = map[plan.Category]bool{
	plan.CategoryCamera: true,
}

func (CameraStage) Name() progress.Stage { return progress.StageCamera }

func (CameraStage) Request(c Chunk, perf PerformanceResult) llm.Request {
	system := "You are the camera director for a virtual avatar show. You receive lyric " +
		"sections with time windows and the performance direction already decided for " +
		"them. Pick one framing per section and, sparingly, add setView cuts or " +
		"moveCamera movements with absolute time_ms inside the section window. Views: " +
		"full, mid, upper, head. moveCamera args: pan, tilt, distance (each -1 to 1) " +
		"and duration_ms."

	user := fmt.Sprintf(
		"Passage %d of %d. Performance length %s.\n\nSections (respond with exactly %d entries, in this order):\n%s\nDirection:\n%s",
		c.ChunkIndex+1, c.TotalChunks, formatMS(c.DurationMS), len(c.Sections), c.describeSections(), describeDirectives(perf),
	)

	return llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Tools:      []llm.Tool{{Name: cameraTool, Description: "Record framing and movement for every section.", Parameters: cameraSchema}},
		ToolChoice: cameraTool,
	}
}

// CameraResult is the parsed camera pass output.
type CameraResult struct {
	Notes   string
	Views   []plan.View
	Actions [][]plan.PlanAction
}

func (CameraStage) Parse(c Chunk, resp llm.Response) (CameraResult, error) {
	raw, err := payload("camera", resp, cameraTool)
	if err != nil {
		return CameraResult{}, err
	}

	var wire struct {
		Notes    string `json:"notes"`
		Sections []struct {
			View    string            `json:"view"`
			Actions []plan.PlanAction `json:"actions"`
		} `json:"sections"`
	}
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return CameraResult{}, &fault.ParseError{Stage: "camera", Detail: "malformed section payload", Err: err}
	}
	if err := bindCount("camera", len(wire.Sections), len(c.Sections)); err != nil {
		return CameraResult{}, err
	}

	out := CameraResult{Notes: wire.Notes}
	for i, s := range wire.Sections {
		window := c.Sections[i]
		out.Views = append(out.Views, parseView(s.View))
		out.Actions = append(out.Actions, sanitizeActions(s.Actions, window.StartMS, window.EndMS, cameraCategories))
	}
	return out, nil
}
