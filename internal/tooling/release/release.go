// Package release gates show bundle publishing. A bundle ships only when
// the contract, health gate and regression reports all pass, are fresh,
// and carry the schema versions this build understands. The manifest it
// produces records exactly which artifacts were consulted.
package release

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/KBLLR/Avatars-Lab-sub000/internal/tooling/ops"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/tooling/regression"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/tooling/validation"
)

const (
	DefaultContractsReportPath  = "reports/contracts-report.json"
	DefaultGateReportPath       = "reports/gate-report.json"
	DefaultRegressionReportPath = "reports/regression-report.json"
	DefaultReleaseManifestPath  = "reports/release-manifest.json"
	defaultClockSkewAllowance   = 5 * time.Minute

	ContractsReportSchemaVersionV1  = "avlab.tooling.contracts-report.v1"
	GateReportSchemaVersionV1       = "avlab.tooling.gate-report.v1"
	RegressionReportSchemaVersionV1 = "avlab.tooling.regression-report.v1"
	ReleaseManifestSchemaVersionV1  = "avlab.tooling.release-manifest.v1"
)

// DefaultMaxArtifactAge bounds how stale a report may be at publish time.
var DefaultMaxArtifactAge = 24 * time.Hour

var allowedRolloutStrategies = map[string]struct{}{
	"immediate": {},
	"phased":    {},
	"canary":    {},
}

var allowedRollbackModes = map[string]struct{}{
	"automatic": {},
	"manual":    {},
}

// RollbackPosture requires explicit rollback intent before publishing.
type RollbackPosture struct {
	Mode    string `json:"mode"`
	Trigger string `json:"trigger"`
}

// RolloutConfig captures how a show bundle reaches venues.
type RolloutConfig struct {
	ShowVersion     string          `json:"show_version"`
	Strategy        string          `json:"strategy"`
	RollbackPosture RollbackPosture `json:"rollback_posture"`
}

// ContractsReport is the published contract fixture artifact. The report
// commands write it; the readiness check decodes the same shape.
type ContractsReport struct {
	SchemaVersion  string                    `json:"schema_version"`
	GeneratedAtUTC string                    `json:"generated_at_utc"`
	Passed         bool                      `json:"passed"`
	Summary        validation.FixtureSummary `json:"summary"`
}

// GateReportArtifact is the published run health gate artifact.
type GateReportArtifact struct {
	SchemaVersion  string             `json:"schema_version"`
	GeneratedAtUTC string             `json:"generated_at_utc"`
	Thresholds     ops.GateThresholds `json:"thresholds"`
	Report         ops.GateReport     `json:"report"`
}

// RegressionReport is the published plan regression artifact.
type RegressionReport struct {
	SchemaVersion     string                          `json:"schema_version"`
	GeneratedAtUTC    string                          `json:"generated_at_utc"`
	BaselineRef       string                          `json:"baseline_ref"`
	CandidateRef      string                          `json:"candidate_ref"`
	TimingToleranceMS int64                           `json:"timing_tolerance_ms"`
	FailingCount      int                             `json:"failing_count"`
	Divergences       []regression.PlanDivergence     `json:"divergences"`
	Evaluation        regression.DivergenceEvaluation `json:"evaluation"`
}

// ArtifactSource captures source artifact identity in a release manifest.
type ArtifactSource struct {
	Path           string `json:"path"`
	SHA256         string `json:"sha256"`
	GeneratedAtUTC string `json:"generated_at_utc,omitempty"`
}

// GateStatus captures one readiness gate check result.
type GateStatus struct {
	Name           string `json:"name"`
	Path           string `json:"path"`
	Passed         bool   `json:"passed"`
	Reason         string `json:"reason,omitempty"`
	GeneratedAtUTC string `json:"generated_at_utc,omitempty"`
	AgeMS          int64  `json:"age_ms,omitempty"`
}

// ReadinessResult captures release readiness gate status.
type ReadinessResult struct {
	Passed           bool         `json:"passed"`
	MaxArtifactAgeMS int64        `json:"max_artifact_age_ms"`
	Checks           []GateStatus `json:"checks"`
	Violations       []string     `json:"violations,omitempty"`
}

// ReadinessInput names the artifacts consulted by the readiness check.
type ReadinessInput struct {
	ContractsReportPath  string
	GateReportPath       string
	RegressionReportPath string
	MaxArtifactAge       time.Duration
	Now                  time.Time
}

// ReleaseManifest is the deterministic publish record handed to venues.
type ReleaseManifest struct {
	SchemaVersion   string                    `json:"schema_version"`
	ReleaseID       string                    `json:"release_id"`
	GeneratedAtUTC  string                    `json:"generated_at_utc"`
	PlanRef         string                    `json:"plan_ref"`
	RolloutConfig   RolloutConfig             `json:"rollout_config"`
	Readiness       ReadinessResult           `json:"readiness"`
	SourceArtifacts map[string]ArtifactSource `json:"source_artifacts"`
}

// LoadRolloutConfig loads and validates rollout configuration from JSON.
func LoadRolloutConfig(path string) (RolloutConfig, ArtifactSource, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return RolloutConfig{}, ArtifactSource{}, fmt.Errorf("rollout config path is required")
	}
	raw, err := os.ReadFile(trimmed)
	if err != nil {
		return RolloutConfig{}, ArtifactSource{}, fmt.Errorf("read rollout config %s: %w", trimmed, err)
	}
	cfg := RolloutConfig{}
	if err := strictUnmarshal(raw, &cfg); err != nil {
		return RolloutConfig{}, ArtifactSource{}, fmt.Errorf("decode rollout config %s: %w", trimmed, err)
	}
	if err := ValidateRolloutConfig(cfg); err != nil {
		return RolloutConfig{}, ArtifactSource{}, err
	}
	return cfg, ArtifactSource{
		Path:   trimmed,
		SHA256: sha256Hex(raw),
	}, nil
}

// ValidateRolloutConfig checks the rollout strategy and rollback posture.
func ValidateRolloutConfig(cfg RolloutConfig) error {
	cfg.ShowVersion = strings.TrimSpace(cfg.ShowVersion)
	cfg.Strategy = strings.ToLower(strings.TrimSpace(cfg.Strategy))
	cfg.RollbackPosture.Mode = strings.ToLower(strings.TrimSpace(cfg.RollbackPosture.Mode))
	cfg.RollbackPosture.Trigger = strings.TrimSpace(cfg.RollbackPosture.Trigger)

	if cfg.ShowVersion == "" {
		return fmt.Errorf("rollout config show_version is required")
	}
	if _, ok := allowedRolloutStrategies[cfg.Strategy]; !ok {
		return fmt.Errorf("rollout config strategy must be one of immediate|phased|canary")
	}
	if _, ok := allowedRollbackModes[cfg.RollbackPosture.Mode]; !ok {
		return fmt.Errorf("rollout config rollback_posture.mode must be one of automatic|manual")
	}
	if cfg.RollbackPosture.Trigger == "" {
		return fmt.Errorf("rollout config rollback_posture.trigger is required")
	}
	return nil
}

// EvaluateReadiness evaluates publish readiness from existing report
// artifacts. Sources carries the identity of every accepted artifact so
// the manifest can pin them.
func EvaluateReadiness(in ReadinessInput) (ReadinessResult, map[string]ArtifactSource) {
	in = normalizeReadinessInput(in)
	result := ReadinessResult{
		Passed:           true,
		MaxArtifactAgeMS: in.MaxArtifactAge.Milliseconds(),
		Checks:           make([]GateStatus, 0, 3),
		Violations:       make([]string, 0),
	}
	sources := make(map[string]ArtifactSource, 3)

	contractsStatus, contractsSource := evaluateContractsCheck(in.ContractsReportPath, in.Now, in.MaxArtifactAge)
	result.Checks = append(result.Checks, contractsStatus)
	if contractsStatus.Passed {
		sources["contracts_report"] = contractsSource
	} else {
		result.Passed = false
		result.Violations = append(result.Violations, fmt.Sprintf("contracts_report: %s", contractsStatus.Reason))
	}

	gateStatus, gateSource := evaluateGateCheck(in.GateReportPath, in.Now, in.MaxArtifactAge)
	result.Checks = append(result.Checks, gateStatus)
	if gateStatus.Passed {
		sources["gate_report"] = gateSource
	} else {
		result.Passed = false
		result.Violations = append(result.Violations, fmt.Sprintf("gate_report: %s", gateStatus.Reason))
	}

	regressionStatus, regressionSource := evaluateRegressionCheck(in.RegressionReportPath, in.Now, in.MaxArtifactAge)
	result.Checks = append(result.Checks, regressionStatus)
	if regressionStatus.Passed {
		sources["regression_report"] = regressionSource
	} else {
		result.Passed = false
		result.Violations = append(result.Violations, fmt.Sprintf("regression_report: %s", regressionStatus.Reason))
	}

	if len(result.Violations) == 0 {
		result.Violations = nil
	}
	return result, sources
}

// BuildReleaseManifest builds a deterministic release manifest from
// validated inputs. It refuses to build when readiness failed.
func BuildReleaseManifest(
	planRef string,
	cfg RolloutConfig,
	readiness ReadinessResult,
	sources map[string]ArtifactSource,
	now time.Time,
) (ReleaseManifest, error) {
	trimmedPlanRef := strings.TrimSpace(planRef)
	if trimmedPlanRef == "" {
		return ReleaseManifest{}, fmt.Errorf("plan_ref is required")
	}
	if err := ValidateRolloutConfig(cfg); err != nil {
		return ReleaseManifest{}, err
	}
	if !readiness.Passed {
		return ReleaseManifest{}, fmt.Errorf("release readiness failed: %v", readiness.Violations)
	}
	if now.IsZero() {
		now = time.Now().UTC()
	} else {
		now = now.UTC()
	}

	seed := strings.Join([]string{
		trimmedPlanRef,
		cfg.ShowVersion,
		cfg.Strategy,
		cfg.RollbackPosture.Mode,
		cfg.RollbackPosture.Trigger,
	}, "|")
	releaseID := fmt.Sprintf("show-%s-%s", now.Format("20060102150405"), shortHash(seed, 10))

	normalizedSources := make(map[string]ArtifactSource, len(sources))
	for key, source := range sources {
		k := strings.TrimSpace(key)
		if k == "" {
			continue
		}
		source.Path = strings.TrimSpace(source.Path)
		source.SHA256 = strings.TrimSpace(source.SHA256)
		source.GeneratedAtUTC = strings.TrimSpace(source.GeneratedAtUTC)
		normalizedSources[k] = source
	}

	return ReleaseManifest{
		SchemaVersion:   ReleaseManifestSchemaVersionV1,
		ReleaseID:       releaseID,
		GeneratedAtUTC:  now.Format(time.RFC3339),
		PlanRef:         trimmedPlanRef,
		RolloutConfig:   cfg,
		Readiness:       readiness,
		SourceArtifacts: normalizedSources,
	}, nil
}

func normalizeReadinessInput(in ReadinessInput) ReadinessInput {
	if strings.TrimSpace(in.ContractsReportPath) == "" {
		in.ContractsReportPath = DefaultContractsReportPath
	}
	if strings.TrimSpace(in.GateReportPath) == "" {
		in.GateReportPath = DefaultGateReportPath
	}
	if strings.TrimSpace(in.RegressionReportPath) == "" {
		in.RegressionReportPath = DefaultRegressionReportPath
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	} else {
		in.Now = in.Now.UTC()
	}
	if in.MaxArtifactAge <= 0 {
		in.MaxArtifactAge = DefaultMaxArtifactAge
	}
	return in
}

func evaluateContractsCheck(path string, now time.Time, maxAge time.Duration) (GateStatus, ArtifactSource) {
	status := GateStatus{Name: "contracts_report", Path: path, Passed: false}
	raw, source, err := readArtifact(path)
	if err != nil {
		status.Reason = err.Error()
		return status, ArtifactSource{}
	}

	artifact := ContractsReport{}
	if err := strictUnmarshal(raw, &artifact); err != nil {
		status.Reason = fmt.Sprintf("decode contracts report: %v", err)
		return status, ArtifactSource{}
	}
	if err := requireSchemaVersion("contracts report", artifact.SchemaVersion, ContractsReportSchemaVersionV1); err != nil {
		status.Reason = err.Error()
		return status, ArtifactSource{}
	}
	status.GeneratedAtUTC = artifact.GeneratedAtUTC
	generatedAt, freshnessErr := validateFreshness(artifact.GeneratedAtUTC, now, maxAge)
	if freshnessErr != nil {
		status.Reason = freshnessErr.Error()
		return status, ArtifactSource{}
	}
	status.AgeMS = now.Sub(generatedAt).Milliseconds()
	if !artifact.Passed {
		status.Reason = "contracts report indicates failed fixtures"
		return status, ArtifactSource{}
	}

	status.Passed = true
	source.GeneratedAtUTC = artifact.GeneratedAtUTC
	return status, source
}

func evaluateGateCheck(path string, now time.Time, maxAge time.Duration) (GateStatus, ArtifactSource) {
	status := GateStatus{Name: "gate_report", Path: path, Passed: false}
	raw, source, err := readArtifact(path)
	if err != nil {
		status.Reason = err.Error()
		return status, ArtifactSource{}
	}

	artifact := GateReportArtifact{}
	if err := strictUnmarshal(raw, &artifact); err != nil {
		status.Reason = fmt.Sprintf("decode gate report: %v", err)
		return status, ArtifactSource{}
	}
	if err := requireSchemaVersion("gate report", artifact.SchemaVersion, GateReportSchemaVersionV1); err != nil {
		status.Reason = err.Error()
		return status, ArtifactSource{}
	}
	status.GeneratedAtUTC = artifact.GeneratedAtUTC
	generatedAt, freshnessErr := validateFreshness(artifact.GeneratedAtUTC, now, maxAge)
	if freshnessErr != nil {
		status.Reason = freshnessErr.Error()
		return status, ArtifactSource{}
	}
	status.AgeMS = now.Sub(generatedAt).Milliseconds()
	if !artifact.Report.Passed {
		status.Reason = "gate report indicates failing health gates"
		return status, ArtifactSource{}
	}

	status.Passed = true
	source.GeneratedAtUTC = artifact.GeneratedAtUTC
	return status, source
}

func evaluateRegressionCheck(path string, now time.Time, maxAge time.Duration) (GateStatus, ArtifactSource) {
	status := GateStatus{Name: "regression_report", Path: path, Passed: false}
	raw, source, err := readArtifact(path)
	if err != nil {
		status.Reason = err.Error()
		return status, ArtifactSource{}
	}

	artifact := RegressionReport{}
	if err := strictUnmarshal(raw, &artifact); err != nil {
		status.Reason = fmt.Sprintf("decode regression report: %v", err)
		return status, ArtifactSource{}
	}
	if err := requireSchemaVersion("regression report", artifact.SchemaVersion, RegressionReportSchemaVersionV1); err != nil {
		status.Reason = err.Error()
		return status, ArtifactSource{}
	}
	status.GeneratedAtUTC = artifact.GeneratedAtUTC
	generatedAt, freshnessErr := validateFreshness(artifact.GeneratedAtUTC, now, maxAge)
	if freshnessErr != nil {
		status.Reason = freshnessErr.Error()
		return status, ArtifactSource{}
	}
	status.AgeMS = now.Sub(generatedAt).Milliseconds()
	if artifact.FailingCount > 0 {
		status.Reason = fmt.Sprintf("regression report has failing_count=%d", artifact.FailingCount)
		return status, ArtifactSource{}
	}

	status.Passed = true
	source.GeneratedAtUTC = artifact.GeneratedAtUTC
	return status, source
}

func readArtifact(path string) ([]byte, ArtifactSource, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, ArtifactSource{}, fmt.Errorf("artifact path is required")
	}
	raw, err := os.ReadFile(trimmed)
	if err != nil {
		return nil, ArtifactSource{}, fmt.Errorf("read artifact %s: %w", trimmed, err)
	}
	return raw, ArtifactSource{Path: trimmed, SHA256: sha256Hex(raw)}, nil
}

func validateFreshness(generatedAtUTC string, now time.Time, maxAge time.Duration) (time.Time, error) {
	trimmed := strings.TrimSpace(generatedAtUTC)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("generated_at_utc is required")
	}
	parsed, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse generated_at_utc: %w", err)
	}
	if parsed.After(now.Add(defaultClockSkewAllowance)) {
		return time.Time{}, fmt.Errorf("generated_at_utc is in the future")
	}
	if now.Sub(parsed) > maxAge {
		return time.Time{}, fmt.Errorf("artifact is stale (older than %s)", maxAge)
	}
	return parsed, nil
}

func requireSchemaVersion(artifactName string, actual string, expected string) error {
	if strings.TrimSpace(actual) != expected {
		return fmt.Errorf("%s schema_version must equal %q", artifactName, expected)
	}
	return nil
}

func strictUnmarshal(raw []byte, target any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return err
	}
	var extra any
	if err := dec.Decode(&extra); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	return fmt.Errorf("unexpected trailing JSON payload")
}

func sha256Hex(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func shortHash(raw string, length int) string {
	if length < 1 {
		length = 8
	}
	sum := sha256.Sum256([]byte(raw))
	full := hex.EncodeToString(sum[:])
	if length > len(full) {
		length = len(full)
	}
	return full[:length]
}
