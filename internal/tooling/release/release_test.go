package release

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/KBLLR/Avatars-Lab-sub000/internal/tooling/ops"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/tooling/validation"
)

func TestLoadRolloutConfigAndValidate(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "rollout.json")
	mustWriteJSON(t, cfgPath, map[string]any{
		"show_version": "night-drive-v2",
		"strategy":     "canary",
		"rollback_posture": map[string]any{
			"mode":    "automatic",
			"trigger": "gate_or_regression_failure",
		},
	})

	cfg, source, err := LoadRolloutConfig(cfgPath)
	if err != nil {
		t.Fatalf("unexpected load rollout config error: %v", err)
	}
	if cfg.ShowVersion != "night-drive-v2" || cfg.Strategy != "canary" {
		t.Fatalf("unexpected rollout config: %+v", cfg)
	}
	if source.Path != cfgPath || source.SHA256 == "" {
		t.Fatalf("unexpected rollout source: %+v", source)
	}
}

func TestLoadRolloutConfigRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "rollout-invalid.json")
	mustWriteJSON(t, cfgPath, map[string]any{
		"show_version": "night-drive-v2",
		"strategy":     "yolo",
		"rollback_posture": map[string]any{
			"mode":    "automatic",
			"trigger": "gate_or_regression_failure",
		},
	})
	if _, _, err := LoadRolloutConfig(cfgPath); err == nil {
		t.Fatalf("expected invalid rollout strategy error")
	}
}

func TestEvaluateReadinessPass(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 25, 4, 0, 0, 0, time.UTC)
	tmp := t.TempDir()

	contractsPath := filepath.Join(tmp, "contracts-report.json")
	gatePath := filepath.Join(tmp, "gate-report.json")
	regressionPath := filepath.Join(tmp, "regression-report.json")

	mustWriteJSON(t, contractsPath, ContractsReport{
		SchemaVersion:  ContractsReportSchemaVersionV1,
		GeneratedAtUTC: now.Add(-1 * time.Hour).Format(time.RFC3339),
		Passed:         true,
		Summary:        validation.FixtureSummary{Total: 12},
	})
	mustWriteJSON(t, gatePath, GateReportArtifact{
		SchemaVersion:  GateReportSchemaVersionV1,
		GeneratedAtUTC: now.Add(-30 * time.Minute).Format(time.RFC3339),
		Thresholds:     ops.DefaultGateThresholds(),
		Report:         ops.GateReport{Samples: 4, ModelRuns: 3, FallbackRuns: 1, Passed: true},
	})
	mustWriteJSON(t, regressionPath, RegressionReport{
		SchemaVersion:  RegressionReportSchemaVersionV1,
		GeneratedAtUTC: now.Add(-10 * time.Minute).Format(time.RFC3339),
		BaselineRef:    "plans/approved.json",
		CandidateRef:   "plans/candidate.json",
	})

	readiness, sources := EvaluateReadiness(ReadinessInput{
		ContractsReportPath:  contractsPath,
		GateReportPath:       gatePath,
		RegressionReportPath: regressionPath,
		MaxArtifactAge:       24 * time.Hour,
		Now:                  now,
	})
	if !readiness.Passed {
		t.Fatalf("expected readiness pass, got %+v", readiness)
	}
	if len(readiness.Checks) != 3 || len(sources) != 3 {
		t.Fatalf("expected three checks/sources, got checks=%d sources=%d", len(readiness.Checks), len(sources))
	}
	if sources["gate_report"].SHA256 == "" {
		t.Fatalf("expected gate report source identity, got %+v", sources["gate_report"])
	}
}

func TestEvaluateReadinessFailClosed(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 25, 4, 0, 0, 0, time.UTC)
	tmp := t.TempDir()

	contractsPath := filepath.Join(tmp, "contracts-report.json")
	gatePath := filepath.Join(tmp, "gate-report.json")
	regressionPath := filepath.Join(tmp, "regression-report.json")

	mustWriteJSON(t, contractsPath, ContractsReport{
		SchemaVersion:  ContractsReportSchemaVersionV1,
		GeneratedAtUTC: now.Add(-48 * time.Hour).Format(time.RFC3339),
		Passed:         true,
	})
	mustWriteJSON(t, gatePath, GateReportArtifact{
		SchemaVersion:  GateReportSchemaVersionV1,
		GeneratedAtUTC: now.Add(-10 * time.Minute).Format(time.RFC3339),
		Report:         ops.GateReport{Samples: 2, FallbackRuns: 2, Violations: []string{"fallback ratio=1.00 exceeds max=0.25"}},
	})
	mustWriteJSON(t, regressionPath, RegressionReport{
		SchemaVersion:  RegressionReportSchemaVersionV1,
		GeneratedAtUTC: now.Add(-10 * time.Minute).Format(time.RFC3339),
		FailingCount:   2,
	})

	readiness, sources := EvaluateReadiness(ReadinessInput{
		ContractsReportPath:  contractsPath,
		GateReportPath:       gatePath,
		RegressionReportPath: regressionPath,
		MaxArtifactAge:       24 * time.Hour,
		Now:                  now,
	})
	if readiness.Passed {
		t.Fatalf("expected readiness failure, got %+v", readiness)
	}
	if len(readiness.Violations) != 3 {
		t.Fatalf("expected three violations, got %+v", readiness.Violations)
	}
	if len(sources) != 0 {
		t.Fatalf("expected no accepted sources on fail-closed readiness, got %+v", sources)
	}
}

func TestEvaluateReadinessRejectsUnexpectedArtifactSchemaVersion(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 25, 4, 0, 0, 0, time.UTC)
	tmp := t.TempDir()

	contractsPath := filepath.Join(tmp, "contracts-report.json")
	gatePath := filepath.Join(tmp, "gate-report.json")
	regressionPath := filepath.Join(tmp, "regression-report.json")

	mustWriteJSON(t, contractsPath, ContractsReport{
		SchemaVersion:  "avlab.tooling.contracts-report.v0",
		GeneratedAtUTC: now.Add(-1 * time.Hour).Format(time.RFC3339),
		Passed:         true,
	})
	mustWriteJSON(t, gatePath, GateReportArtifact{
		SchemaVersion:  GateReportSchemaVersionV1,
		GeneratedAtUTC: now.Add(-30 * time.Minute).Format(time.RFC3339),
		Report:         ops.GateReport{Samples: 1, ModelRuns: 1, Passed: true},
	})
	mustWriteJSON(t, regressionPath, RegressionReport{
		SchemaVersion:  RegressionReportSchemaVersionV1,
		GeneratedAtUTC: now.Add(-10 * time.Minute).Format(time.RFC3339),
	})

	readiness, _ := EvaluateReadiness(ReadinessInput{
		ContractsReportPath:  contractsPath,
		GateReportPath:       gatePath,
		RegressionReportPath: regressionPath,
		MaxArtifactAge:       24 * time.Hour,
		Now:                  now,
	})
	if readiness.Passed {
		t.Fatalf("expected readiness failure on contracts schema version mismatch")
	}
	if len(readiness.Violations) == 0 {
		t.Fatalf("expected readiness violations on schema mismatch")
	}
}

func TestBuildReleaseManifest(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 25, 4, 5, 6, 0, time.UTC)
	cfg := RolloutConfig{
		ShowVersion:     "night-drive-v2",
		Strategy:        "phased",
		RollbackPosture: RollbackPosture{Mode: "manual", Trigger: "operator_gate_regression"},
	}
	readiness := ReadinessResult{Passed: true, Checks: []GateStatus{{Name: "contracts_report", Passed: true}}}
	sources := map[string]ArtifactSource{
		"contracts_report": {Path: "reports/contracts-report.json", SHA256: "abc"},
	}

	manifest, err := BuildReleaseManifest("shows/night-drive.json", cfg, readiness, sources, now)
	if err != nil {
		t.Fatalf("unexpected build manifest error: %v", err)
	}
	if !strings.HasPrefix(manifest.ReleaseID, "show-20260825040506-") {
		t.Fatalf("unexpected release id: %s", manifest.ReleaseID)
	}
	if manifest.PlanRef != "shows/night-drive.json" || manifest.RolloutConfig.ShowVersion != "night-drive-v2" {
		t.Fatalf("unexpected manifest payload: %+v", manifest)
	}
	if manifest.SchemaVersion != ReleaseManifestSchemaVersionV1 {
		t.Fatalf("unexpected release manifest schema_version: %s", manifest.SchemaVersion)
	}

	readiness.Passed = false
	if _, err := BuildReleaseManifest("shows/night-drive.json", cfg, readiness, sources, now); err == nil {
		t.Fatalf("expected readiness failure to reject manifest build")
	}
}

func mustWriteJSON(t *testing.T, path string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("unexpected marshal error: %v", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}
}
