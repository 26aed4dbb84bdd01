package validation

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/KBLLR/Avatars-Lab-sub000/api/plan"
)

// Mode controls strictness for document validation commands.
type Mode string

const (
	ModeStrict  Mode = "strict"
	ModeRelaxed Mode = "relaxed"
)

// ParseMode normalizes command mode input.
func ParseMode(raw string) (Mode, error) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" {
		return ModeStrict, nil
	}
	switch Mode(trimmed) {
	case ModeStrict, ModeRelaxed:
		return Mode(trimmed), nil
	default:
		return "", fmt.Errorf("unsupported validation mode %q (expected strict|relaxed)", raw)
	}
}

// ValidatePlanFile validates a plan file in strict or relaxed mode and
// returns the decoded plan.
func ValidatePlanFile(path string, mode Mode) (*plan.MergedPlan, error) {
	normalizedPath := strings.TrimSpace(path)
	if normalizedPath == "" {
		return nil, fmt.Errorf("plan_path is required")
	}
	raw, err := os.ReadFile(normalizedPath)
	if err != nil {
		return nil, fmt.Errorf("read plan file %s: %w", normalizedPath, err)
	}
	p, err := ValidatePlan(raw, mode)
	if err != nil {
		return nil, fmt.Errorf("validate plan %s: %w", normalizedPath, err)
	}
	return p, nil
}

// ValidatePlan validates plan JSON in strict or relaxed mode. Strict mode
// rejects unknown fields; relaxed mode tolerates them so older tools can
// read documents written by newer ones.
func ValidatePlan(raw []byte, mode Mode) (*plan.MergedPlan, error) {
	parsedMode, err := ParseMode(string(mode))
	if err != nil {
		return nil, err
	}
	var p plan.MergedPlan
	if parsedMode == ModeStrict {
		if err := strictUnmarshal(raw, &p); err != nil {
			return nil, err
		}
	} else if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// ValidatePlanAgainstSchema checks the raw document against a published
// schema file, independent of the typed contract.
func ValidatePlanAgainstSchema(raw []byte, schemaPath string) error {
	compiled, err := compileSchema(schemaPath)
	if err != nil {
		return err
	}
	return validateAgainstSchema(compiled, raw)
}
