// Package conformance checks that a stage rig covers the avatar
// capabilities a performance plan will exercise once compiled. The engine
// skips actions without an executor, so a gap is a silent no-op on stage;
// these checks surface the gap before the curtain goes up.
package conformance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/KBLLR/Avatars-Lab-sub000/api/plan"
)

const ProfileSchemaVersionV1 = "avlab.capability-profile.v1"

// CapabilityProfile lists the capabilities a rig must provide.
type CapabilityProfile struct {
	SchemaVersion string   `json:"schema_version"`
	ProfileID     string   `json:"profile_id"`
	Mandatory     []string `json:"mandatory_capabilities"`
}

// Evaluation captures one coverage check.
type Evaluation struct {
	Passed     bool     `json:"passed"`
	Required   []string `json:"required"`
	Missing    []string `json:"missing,omitempty"`
	Violations []string `json:"violations,omitempty"`
}

// FullStageProfile requires every action category a director plan may
// emit.
func FullStageProfile() CapabilityProfile {
	mandatory := make([]string, 0, 8)
	for _, c := range allCategories() {
		mandatory = append(mandatory, string(c))
	}
	return CapabilityProfile{
		SchemaVersion: ProfileSchemaVersionV1,
		ProfileID:     "full-stage-v1",
		Mandatory:     mandatory,
	}
}

// VoiceProfile is the minimal profile for audio-only playback.
func VoiceProfile() CapabilityProfile {
	return CapabilityProfile{
		SchemaVersion: ProfileSchemaVersionV1,
		ProfileID:     "voice-only-v1",
		Mandatory: []string{
			string(plan.CategorySpeech),
			string(plan.CategoryAudio),
			string(plan.CategoryMood),
		},
	}
}

// RequiredCategories lists the capabilities the plan will exercise once
// compiled, sorted and de-duplicated. Compilation lowers every section
// boundary into mood, camera, and lighting actions and schedules filler
// gestures, so those four count for any plan.
func RequiredCategories(p plan.MergedPlan) []plan.Category {
	need := map[plan.Category]bool{
		plan.CategoryMood:     true,
		plan.CategoryCamera:   true,
		plan.CategoryLighting: true,
		plan.CategoryGesture:  true,
	}
	collect := func(actions []plan.PlanAction) {
		for _, a := range actions {
			if cat, ok := plan.CategoryOf(a.Action); ok {
				need[cat] = true
			}
		}
	}
	for _, s := range p.Sections {
		collect(s.Actions)
	}
	collect(p.Actions)

	out := make([]plan.Category, 0, len(need))
	for cat := range need {
		out = append(out, cat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// EvaluateProfile checks covered categories against a profile's mandatory
// set.
func EvaluateProfile(profile CapabilityProfile, covered []plan.Category) Evaluation {
	violations := make([]string, 0)
	if strings.TrimSpace(profile.SchemaVersion) != ProfileSchemaVersionV1 {
		violations = append(violations, fmt.Sprintf("schema_version must be %s", ProfileSchemaVersionV1))
	}
	if strings.TrimSpace(profile.ProfileID) == "" {
		violations = append(violations, "profile_id is required")
	}
	if len(profile.Mandatory) == 0 {
		violations = append(violations, "mandatory_capabilities requires at least one entry")
	}

	required := make([]plan.Category, 0, len(profile.Mandatory))
	for _, raw := range profile.Mandatory {
		cat := plan.Category(strings.TrimSpace(raw))
		if !knownCategory(cat) {
			violations = append(violations, fmt.Sprintf("unknown capability %q", raw))
			continue
		}
		required = append(required, cat)
	}

	eval := evaluateCoverage(required, covered)
	eval.Violations = append(violations, eval.Violations...)
	eval.Passed = len(eval.Violations) == 0 && len(eval.Missing) == 0
	return eval
}

// EvaluatePlan checks covered categories against what the plan needs.
func EvaluatePlan(p plan.MergedPlan, covered []plan.Category) Evaluation {
	return evaluateCoverage(RequiredCategories(p), covered)
}

func evaluateCoverage(required, covered []plan.Category) Evaluation {
	have := make(map[plan.Category]bool, len(covered))
	for _, c := range covered {
		have[c] = true
	}

	eval := Evaluation{Required: make([]string, 0, len(required))}
	for _, c := range required {
		eval.Required = append(eval.Required, string(c))
		if !have[c] {
			eval.Missing = append(eval.Missing, string(c))
		}
	}
	sort.Strings(eval.Required)
	sort.Strings(eval.Missing)
	for _, m := range eval.Missing {
		eval.Violations = append(eval.Violations, fmt.Sprintf("capability %s has no executor", m))
	}
	eval.Passed = len(eval.Missing) == 0
	return eval
}

// ReadProfile loads a capability profile JSON artifact.
func ReadProfile(path string) (CapabilityProfile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return CapabilityProfile{}, fmt.Errorf("read capability profile %s: %w", path, err)
	}
	var out CapabilityProfile
	if err := decodeStrict(raw, &out); err != nil {
		return CapabilityProfile{}, fmt.Errorf("decode capability profile %s: %w", path, err)
	}
	return out, nil
}

// RenderReport formats an evaluation for command output.
func RenderReport(e Evaluation) string {
	status := "PASS"
	if !e.Passed {
		status = "FAIL"
	}
	lines := []string{fmt.Sprintf("capability coverage: %s required=%d missing=%d", status, len(e.Required), len(e.Missing))}
	if len(e.Violations) > 0 {
		lines = append(lines, "violations:")
		for _, v := range e.Violations {
			lines = append(lines, "- "+v)
		}
	}
	return strings.Join(lines, "\n")
}

func allCategories() []plan.Category {
	return []plan.Category{
		plan.CategoryMood,
		plan.CategoryGesture,
		plan.CategoryCamera,
		plan.CategoryLighting,
		plan.CategoryDance,
		plan.CategoryEffects,
		plan.CategoryAudio,
		plan.CategorySpeech,
	}
}

func knownCategory(c plan.Category) bool {
	for _, known := range allCategories() {
		if c == known {
			return true
		}
	}
	return false
}

func decodeStrict(raw []byte, target any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}
