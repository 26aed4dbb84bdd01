// Package plan defines the performance plan contract shared by the director,
// the timeline compiler, and the engine. JSON field names mirror
// docs/PerformancePlan.schema.json and round-trip losslessly.
package plan

import (
	"fmt"
	"strings"
)

// Source records who authored a plan.
type Source string

const (
	SourceLLM       Source = "llm"
	SourceHeuristic Source = "heuristic"
)

// Role mirrors docs/PerformancePlan.schema.json sections[].role.
type Role string

const (
	RoleSolo     Role = "solo"
	RoleEnsemble Role = "ensemble"
)

// Mood is an avatar facial mood preset.
type Mood string

const (
	MoodNeutral Mood = "neutral"
	MoodHappy   Mood = "happy"
	MoodAngry   Mood = "angry"
	MoodSad     Mood = "sad"
	MoodFear    Mood = "fear"
	MoodDisgust Mood = "disgust"
	MoodLove    Mood = "love"
	MoodSleep   Mood = "sleep"
)

// Moods lists every mood in round-robin order.
func Moods() []Mood {
	return []Mood{MoodNeutral, MoodHappy, MoodAngry, MoodSad, MoodFear, MoodDisgust, MoodLove, MoodSleep}
}

// View is a camera framing preset.
type View string

const (
	ViewFull  View = "full"
	ViewMid   View = "mid"
	ViewUpper View = "upper"
	ViewHead  View = "head"
)

// Views lists every camera view in round-robin order.
func Views() []View {
	return []View{ViewFull, ViewMid, ViewUpper, ViewHead}
}

// Light is a lighting preset. LightSpotlight is the end-of-performance reset.
type Light string

const (
	LightStudio    Light = "studio"
	LightConcert   Light = "concert"
	LightClub      Light = "club"
	LightSunset    Light = "sunset"
	LightDawn      Light = "dawn"
	LightNoir      Light = "noir"
	LightSpotlight Light = "spotlight"
)

// Lights lists every lighting preset in round-robin order.
func Lights() []Light {
	return []Light{LightStudio, LightConcert, LightClub, LightSunset, LightDawn, LightNoir, LightSpotlight}
}

// Gestures lists the gesture clips the compiler may schedule as filler.
func Gestures() []string {
	return []string{"handup", "index", "ok", "thumbup", "thumbdown", "side", "shrug", "namaste"}
}

// DanceClips lists the dance clip vocabulary.
func DanceClips() []string {
	return []string{"groove", "wave", "spin", "bounce"}
}

// Poses lists the body pose vocabulary.
func Poses() []string {
	return []string{"straight", "side", "hip", "turn"}
}

// PostEffects lists the post-processing effect vocabulary.
func PostEffects() []string {
	return []string{"bloom", "shake", "glitch", "blur", "none"}
}

// Visemes lists the Oculus viseme ids used by speech payloads.
func Visemes() []string {
	return []string{"sil", "PP", "FF", "TH", "DD", "kk", "CH", "SS", "nn", "RR", "aa", "E", "I", "O", "U"}
}

// Category groups actions by the avatar capability that executes them.
type Category string

const (
	CategoryMood     Category = "mood"
	CategoryGesture  Category = "gesture"
	CategoryCamera   Category = "camera"
	CategoryLighting Category = "lighting"
	CategoryDance    Category = "dance"
	CategoryEffects  Category = "effects"
	CategoryAudio    Category = "audio"
	CategorySpeech   Category = "speech"
)

// ActionName identifies one avatar operation.
type ActionName string

const (
	ActionSetMood       ActionName = "setMood"
	ActionPlayGesture   ActionName = "playGesture"
	ActionPlayEmoji     ActionName = "playEmoji"
	ActionSetView       ActionName = "setView"
	ActionMoveCamera    ActionName = "moveCamera"
	ActionSetLight      ActionName = "setLight"
	ActionPlayAudio     ActionName = "playAudio"
	ActionSpeak         ActionName = "speak"
	ActionSetSpeaker    ActionName = "setSpeaker"
	ActionPlayDance     ActionName = "playDance"
	ActionPlayPose      ActionName = "playPose"
	ActionSetPostEffect ActionName = "setPostEffect"
)

var actionCategories = map[ActionName]Category{
	ActionSetMood:       CategoryMood,
	ActionPlayGesture:   CategoryGesture,
	ActionPlayEmoji:     CategoryGesture,
	ActionSetView:       CategoryCamera,
	ActionMoveCamera:    CategoryCamera,
	ActionSetLight:      CategoryLighting,
	ActionPlayAudio:     CategoryAudio,
	ActionSpeak:         CategorySpeech,
	ActionSetSpeaker:    CategorySpeech,
	ActionPlayDance:     CategoryDance,
	ActionPlayPose:      CategoryDance,
	ActionSetPostEffect: CategoryEffects,
}

// CategoryOf resolves the executing capability for an action name.
func CategoryOf(name ActionName) (Category, bool) {
	c, ok := actionCategories[name]
	return c, ok
}

// PlanAction is one scheduled avatar operation. Args is a flat bag of
// string/number/bool values whose required keys depend on the action.
type PlanAction struct {
	TimeMS int64          `json:"time_ms"`
	Action ActionName     `json:"action"`
	Args   map[string]any `json:"args,omitempty"`
}

func (a PlanAction) Validate() error {
	if a.TimeMS < 0 {
		return fmt.Errorf("time_ms must be >= 0")
	}
	if _, ok := actionCategories[a.Action]; !ok {
		return fmt.Errorf("unknown action %q", a.Action)
	}
	for _, key := range requiredArgs[a.Action] {
		if !a.hasArg(key) {
			return fmt.Errorf("action %s requires arg %q", a.Action, key)
		}
	}
	if a.Action == ActionMoveCamera {
		if !a.hasArg("pan") && !a.hasArg("tilt") && !a.hasArg("distance") {
			return fmt.Errorf("action moveCamera requires at least one of pan, tilt, distance")
		}
	}
	if a.Action == ActionPlayAudio {
		if !a.hasArg("url") && !a.hasArg("clip") {
			return fmt.Errorf("action playAudio requires url or clip")
		}
	}
	return nil
}

var requiredArgs = map[ActionName][]string{
	ActionSetMood:       {"mood"},
	ActionPlayGesture:   {"gesture"},
	ActionPlayEmoji:     {"emoji"},
	ActionSetView:       {"view"},
	ActionMoveCamera:    {"duration_ms"},
	ActionSetLight:      {"preset"},
	ActionSpeak:         {"text"},
	ActionSetSpeaker:    {"speaker"},
	ActionPlayDance:     {"clip"},
	ActionPlayPose:      {"pose"},
	ActionSetPostEffect: {"effect"},
}

func (a PlanAction) hasArg(key string) bool {
	v, ok := a.Args[key]
	if !ok {
		return false
	}
	if s, isStr := v.(string); isStr {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// StringArg reads a string argument, "" when absent or not a string.
func (a PlanAction) StringArg(key string) string {
	s, _ := a.Args[key].(string)
	return s
}

// NumberArg reads a numeric argument. JSON decoding yields float64; direct
// construction may use any integer or float type.
func (a PlanAction) NumberArg(key string) (float64, bool) {
	switch v := a.Args[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// PlanSection is one directed span of the performance.
type PlanSection struct {
	Label   string       `json:"label"`
	StartMS int64        `json:"start_ms"`
	EndMS   int64        `json:"end_ms"`
	Role    Role         `json:"role"`
	Mood    Mood         `json:"mood,omitempty"`
	Camera  View         `json:"camera,omitempty"`
	Light   Light        `json:"light,omitempty"`
	Notes   string       `json:"notes,omitempty"`
	Actions []PlanAction `json:"actions,omitempty"`
}

func (s PlanSection) Validate() error {
	if strings.TrimSpace(s.Label) == "" {
		return fmt.Errorf("label is required")
	}
	if s.StartMS < 0 {
		return fmt.Errorf("start_ms must be >= 0")
	}
	if s.EndMS <= s.StartMS {
		return fmt.Errorf("end_ms must be > start_ms")
	}
	if !ValidRole(s.Role) {
		return fmt.Errorf("invalid role %q", s.Role)
	}
	if s.Mood != "" && !ValidMood(s.Mood) {
		return fmt.Errorf("invalid mood %q", s.Mood)
	}
	if s.Camera != "" && !ValidView(s.Camera) {
		return fmt.Errorf("invalid camera %q", s.Camera)
	}
	if s.Light != "" && !ValidLight(s.Light) {
		return fmt.Errorf("invalid light %q", s.Light)
	}
	for i, a := range s.Actions {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
		if a.TimeMS < s.StartMS || a.TimeMS > s.EndMS {
			return fmt.Errorf("action %d: time_ms %d outside section [%d, %d]", i, a.TimeMS, s.StartMS, s.EndMS)
		}
	}
	return nil
}

// MergedPlan is the fully assembled performance plan.
type MergedPlan struct {
	Title            string        `json:"title"`
	Sections         []PlanSection `json:"sections"`
	Actions          []PlanAction  `json:"actions,omitempty"`
	Source           Source        `json:"source"`
	PerformanceNotes string        `json:"performance_notes,omitempty"`
	StageNotes       string        `json:"stage_notes,omitempty"`
	CameraNotes      string        `json:"camera_notes,omitempty"`
}

// Validate enforces the whole-plan contract: valid enums throughout,
// sections strictly ordered and non-overlapping, top-level action times
// non-decreasing.
func (p MergedPlan) Validate() error {
	if p.Source != SourceLLM && p.Source != SourceHeuristic {
		return fmt.Errorf("invalid source %q", p.Source)
	}
	if len(p.Sections) == 0 {
		return fmt.Errorf("at least one section is required")
	}
	for i, s := range p.Sections {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("section %d (%s): %w", i, s.Label, err)
		}
		if i > 0 && s.StartMS < p.Sections[i-1].EndMS {
			return fmt.Errorf("section %d (%s) overlaps previous section", i, s.Label)
		}
	}
	var prev int64 = -1
	for i, a := range p.Actions {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("top-level action %d: %w", i, err)
		}
		if a.TimeMS < prev {
			return fmt.Errorf("top-level action %d: time_ms %d out of order", i, a.TimeMS)
		}
		prev = a.TimeMS
	}
	return nil
}

// DurationMS reports the end of the last section.
func (p MergedPlan) DurationMS() int64 {
	if len(p.Sections) == 0 {
		return 0
	}
	return p.Sections[len(p.Sections)-1].EndMS
}

// Clone deep-copies the plan so drafts can hand out snapshots safely.
func (p MergedPlan) Clone() MergedPlan {
	out := p
	out.Sections = make([]PlanSection, len(p.Sections))
	for i, s := range p.Sections {
		cs := s
		cs.Actions = cloneActions(s.Actions)
		out.Sections[i] = cs
	}
	out.Actions = cloneActions(p.Actions)
	return out
}

func cloneActions(in []PlanAction) []PlanAction {
	if in == nil {
		return nil
	}
	out := make([]PlanAction, len(in))
	for i, a := range in {
		ca := a
		if a.Args != nil {
			ca.Args = make(map[string]any, len(a.Args))
			for k, v := range a.Args {
				ca.Args[k] = v
			}
		}
		out[i] = ca
	}
	return out
}

// ValidRole reports whether v names a known role.
func ValidRole(v Role) bool {
	switch v {
	case RoleSolo, RoleEnsemble:
		return true
	default:
		return false
	}
}

// ValidMood reports whether v names a known mood preset.
func ValidMood(v Mood) bool {
	for _, m := range Moods() {
		if v == m {
			return true
		}
	}
	return false
}

// ValidView reports whether v names a known camera view.
func ValidView(v View) bool {
	for _, view := range Views() {
		if v == view {
			return true
		}
	}
	return false
}

// ValidLight reports whether v names a known lighting preset.
func ValidLight(v Light) bool {
	for _, l := range Lights() {
		if v == l {
			return true
		}
	}
	return false
}
