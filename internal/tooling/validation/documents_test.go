package validation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validPlanJSON = `{
  "title": "Doc Check",
  "sections": [
    {"label": "Intro", "start_ms": 0, "end_ms": 4000, "role": "solo"}
  ],
  "source": "llm"
}`

func TestParseMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "", want: ModeStrict},
		{in: "strict", want: ModeStrict},
		{in: " Relaxed ", want: ModeRelaxed},
		{in: "lenient", wantErr: true},
	}
	for _, tc := range tests {
		got, err := ParseMode(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseMode(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseMode(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseMode(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestValidatePlanModes(t *testing.T) {
	t.Parallel()

	withExtra := strings.Replace(validPlanJSON, `"source": "llm"`, `"source": "llm", "future_field": 1`, 1)

	if _, err := ValidatePlan([]byte(validPlanJSON), "strict"); err != nil {
		t.Fatalf("strict on clean document: %v", err)
	}
	if _, err := ValidatePlan([]byte(withExtra), "strict"); err == nil {
		t.Fatal("strict must reject unknown fields")
	}
	p, err := ValidatePlan([]byte(withExtra), "relaxed")
	if err != nil {
		t.Fatalf("relaxed must tolerate unknown fields: %v", err)
	}
	if p.Title != "Doc Check" {
		t.Fatalf("title = %q", p.Title)
	}

	broken := strings.Replace(validPlanJSON, `"role": "solo"`, `"role": "crowd"`, 1)
	if _, err := ValidatePlan([]byte(broken), "relaxed"); err == nil {
		t.Fatal("relaxed still enforces the typed contract")
	}
}

func TestValidatePlanFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "plan.json")
	if err := os.WriteFile(path, []byte(validPlanJSON), 0o644); err != nil {
		t.Fatalf("write plan: %v", err)
	}

	p, err := ValidatePlanFile(path, "")
	if err != nil {
		t.Fatalf("ValidatePlanFile: %v", err)
	}
	if p.Source != "llm" {
		t.Fatalf("source = %q", p.Source)
	}

	if _, err := ValidatePlanFile("", ""); err == nil {
		t.Fatal("expected error for empty path")
	}
	if _, err := ValidatePlanFile(filepath.Join(t.TempDir(), "absent.json"), ""); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidatePlanAgainstSchema(t *testing.T) {
	t.Parallel()

	schemaPath := filepath.Join("..", "..", "..", "docs", "PerformancePlan.schema.json")
	if err := ValidatePlanAgainstSchema([]byte(validPlanJSON), schemaPath); err != nil {
		t.Fatalf("schema validation: %v", err)
	}

	noSource := strings.Replace(validPlanJSON, `"source": "llm"`, `"notes_only": true`, 1)
	if err := ValidatePlanAgainstSchema([]byte(noSource), schemaPath); err == nil {
		t.Fatal("schema must reject plan without source")
	}
}
