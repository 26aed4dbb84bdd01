// Package validation checks performance artifacts against both the typed Go
// contract and the published JSON schemas under docs/. The two must agree;
// the fixture sets under test/contract keep them honest.
package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/KBLLR/Avatars-Lab-sub000/api/plan"
	"github.com/KBLLR/Avatars-Lab-sub000/api/progress"
)

// FixtureSummary reports fixture validation totals. It marshals into the
// published contracts report, so field names are part of that artifact.
type FixtureSummary struct {
	Total    int      `json:"total"`
	Failed   int      `json:"failed"`
	Failures []string `json:"failures,omitempty"`
}

// ValidateFixtures validates the valid/invalid fixture sets for every
// published artifact kind. schemaDir is the directory holding the schema
// files, root the fixture tree (one subdirectory per artifact, each with
// valid/ and invalid/).
func ValidateFixtures(schemaDir, root string) (FixtureSummary, error) {
	artifacts := []struct {
		name   string
		schema string
		typed  func([]byte) error
	}{
		{name: "merged_plan", schema: "PerformancePlan.schema.json", typed: validateMergedPlan},
		{name: "progress_event", schema: "ProgressEvent.schema.json", typed: validateProgressEvent},
	}

	summary := FixtureSummary{}
	for _, artifact := range artifacts {
		compiled, err := compileSchema(filepath.Join(schemaDir, artifact.schema))
		if err != nil {
			return summary, err
		}

		for _, validity := range []struct {
			dir        string
			shouldPass bool
		}{
			{dir: "valid", shouldPass: true},
			{dir: "invalid", shouldPass: false},
		} {
			dir := filepath.Join(root, artifact.name, validity.dir)
			items, err := os.ReadDir(dir)
			if err != nil {
				return summary, fmt.Errorf("read fixtures %s: %w", dir, err)
			}
			names := make([]string, 0, len(items))
			for _, item := range items {
				if !item.IsDir() {
					names = append(names, item.Name())
				}
			}
			sort.Strings(names)
			for _, name := range names {
				summary.Total++
				filePath := filepath.Join(dir, name)
				raw, readErr := os.ReadFile(filePath)
				if readErr != nil {
					summary.Failed++
					summary.Failures = append(summary.Failures, fmt.Sprintf("%s: read error: %v", filePath, readErr))
					continue
				}

				typedErr := artifact.typed(raw)
				schemaErr := validateAgainstSchema(compiled, raw)

				if validity.shouldPass {
					if typedErr != nil || schemaErr != nil {
						summary.Failed++
						summary.Failures = append(summary.Failures, fmt.Sprintf("%s: expected valid, typed_err=%v schema_err=%v", filePath, typedErr, schemaErr))
					}
					continue
				}

				if typedErr == nil || schemaErr == nil {
					summary.Failed++
					summary.Failures = append(summary.Failures, fmt.Sprintf("%s: expected invalid by both validators, typed_err=%v schema_err=%v", filePath, typedErr, schemaErr))
				}
			}
		}
	}

	return summary, nil
}

func compileSchema(schemaPath string) (*jsonschema.Schema, error) {
	absSchemaPath, err := filepath.Abs(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("resolve schema path: %w", err)
	}
	if _, err := os.Stat(absSchemaPath); err != nil {
		return nil, fmt.Errorf("schema file unavailable at %s: %w", absSchemaPath, err)
	}

	compiler := jsonschema.NewCompiler()
	f, err := os.Open(absSchemaPath)
	if err != nil {
		return nil, fmt.Errorf("open schema file: %w", err)
	}
	defer f.Close()
	if err := compiler.AddResource(absSchemaPath, f); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(absSchemaPath)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

func validateAgainstSchema(schema *jsonschema.Schema, raw []byte) error {
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	return schema.Validate(payload)
}

// RenderSummary formats a summary for command output.
func RenderSummary(summary FixtureSummary) string {
	lines := []string{fmt.Sprintf("contract fixtures: total=%d failed=%d", summary.Total, summary.Failed)}
	if len(summary.Failures) > 0 {
		lines = append(lines, "failures:")
		for _, f := range summary.Failures {
			lines = append(lines, "- "+f)
		}
	}
	return strings.Join(lines, "\n")
}

func validateMergedPlan(data []byte) error {
	var p plan.MergedPlan
	if err := strictUnmarshal(data, &p); err != nil {
		return err
	}
	return p.Validate()
}

func validateProgressEvent(data []byte) error {
	var e progress.Event
	if err := strictUnmarshal(data, &e); err != nil {
		return err
	}
	return e.Validate()
}

func strictUnmarshal(data []byte, target any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return err
	}
	var extra any
	if err := dec.Decode(&extra); err != io.EOF {
		return fmt.Errorf("unexpected trailing JSON payload")
	}
	return nil
}
