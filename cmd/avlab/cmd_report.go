package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/KBLLR/Avatars-Lab-sub000/internal/tooling/ops"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/tooling/regression"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/tooling/release"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/tooling/validation"
)

var (
	reportContractsSchemaDir string
	reportContractsFixtures  string
	reportContractsOut       string

	reportGatesRuns string
	reportGatesOut  string

	reportRegressionBaseline  string
	reportRegressionCandidate string
	reportRegressionPolicy    string
	reportRegressionTolerance int64
	reportRegressionOut       string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Write publish gate reports",
	Long: `Report commands evaluate one publish gate each and write a JSON
artifact plus a markdown summary next to it. The release command
consumes the JSON artifacts, so keep them in one reports directory.`,
}

var reportContractsCmd = &cobra.Command{
	Use:   "contracts",
	Short: "Validate contract fixtures and write the contracts report",
	RunE:  runReportContracts,
}

var reportGatesCmd = &cobra.Command{
	Use:   "gates",
	Short: "Evaluate run health gates and write the gate report",
	Example: `  avlab report gates --runs runs.json
  avlab report gates --runs runs.json --out reports/gate-report.json`,
	RunE: runReportGates,
}

var reportRegressionCmd = &cobra.Command{
	Use:   "regression",
	Short: "Compare a regenerated plan against its baseline",
	Example: `  avlab report regression --baseline approved.json --candidate regenerated.json
  avlab report regression --baseline approved.json --candidate regenerated.json --policy policy.json`,
	RunE: runReportRegression,
}

func init() {
	reportContractsCmd.Flags().StringVar(&reportContractsSchemaDir, "schema-dir", "docs", "directory holding the JSON schemas")
	reportContractsCmd.Flags().StringVar(&reportContractsFixtures, "fixtures", filepath.Join("test", "contract", "fixtures"), "contract fixture root")
	reportContractsCmd.Flags().StringVar(&reportContractsOut, "out", release.DefaultContractsReportPath, "contracts report output path")

	reportGatesCmd.Flags().StringVar(&reportGatesRuns, "runs", "", "recorded run samples JSON (required)")
	reportGatesCmd.Flags().StringVar(&reportGatesOut, "out", release.DefaultGateReportPath, "gate report output path")
	_ = reportGatesCmd.MarkFlagRequired("runs")

	reportRegressionCmd.Flags().StringVar(&reportRegressionBaseline, "baseline", "", "approved baseline plan (required)")
	reportRegressionCmd.Flags().StringVar(&reportRegressionCandidate, "candidate", "", "regenerated candidate plan (required)")
	reportRegressionCmd.Flags().StringVar(&reportRegressionPolicy, "policy", "", "divergence policy JSON, overrides --tolerance")
	reportRegressionCmd.Flags().Int64Var(&reportRegressionTolerance, "tolerance", 250, "timing tolerance in milliseconds")
	reportRegressionCmd.Flags().StringVar(&reportRegressionOut, "out", release.DefaultRegressionReportPath, "regression report output path")
	_ = reportRegressionCmd.MarkFlagRequired("baseline")
	_ = reportRegressionCmd.MarkFlagRequired("candidate")

	reportCmd.AddCommand(reportContractsCmd)
	reportCmd.AddCommand(reportGatesCmd)
	reportCmd.AddCommand(reportRegressionCmd)
	rootCmd.AddCommand(reportCmd)
}

func runReportContracts(cmd *cobra.Command, args []string) error {
	summary, err := validation.ValidateFixtures(reportContractsSchemaDir, reportContractsFixtures)
	if err != nil {
		return fmt.Errorf("contract validation did not run: %w", err)
	}

	artifact := release.ContractsReport{
		SchemaVersion:  release.ContractsReportSchemaVersionV1,
		GeneratedAtUTC: time.Now().UTC().Format(time.RFC3339),
		Passed:         summary.Failed == 0,
		Summary:        summary,
	}
	metrics := []string{
		fmt.Sprintf("Fixtures: %d", summary.Total),
		fmt.Sprintf("Failed: %d", summary.Failed),
	}
	if err := writeReportArtifact(reportContractsOut, "Contract Fixtures Report", artifact.GeneratedAtUTC, artifact, metrics, summary.Failures, artifact.Passed); err != nil {
		return err
	}
	if !artifact.Passed {
		return fmt.Errorf("%d contract fixture(s) failed", summary.Failed)
	}
	return nil
}

func runReportGates(cmd *cobra.Command, args []string) error {
	samples, err := ops.ReadRunSamples(reportGatesRuns)
	if err != nil {
		return err
	}

	thresholds := ops.DefaultGateThresholds()
	report := ops.EvaluateGates(samples, thresholds)
	artifact := release.GateReportArtifact{
		SchemaVersion:  release.GateReportSchemaVersionV1,
		GeneratedAtUTC: time.Now().UTC().Format(time.RFC3339),
		Thresholds:     thresholds,
		Report:         report,
	}
	metrics := []string{
		fmt.Sprintf("Runs: %d", report.Samples),
		fmt.Sprintf("Model runs: %d", report.ModelRuns),
		fmt.Sprintf("Fallback runs: %d", report.FallbackRuns),
		fmt.Sprintf("Fallback ratio: %.2f", report.FallbackRatio),
		fmt.Sprintf("Fired ratio: %.2f", report.FiredRatio),
		fmt.Sprintf("Action error ratio: %.2f", report.ActionErrorRatio),
		fmt.Sprintf("Dropped progress events: %d", report.DroppedEvents),
	}
	if report.PlanLatencyP95MS != nil {
		metrics = append(metrics, fmt.Sprintf("Plan latency p95: %d ms", *report.PlanLatencyP95MS))
	}
	if err := writeReportArtifact(reportGatesOut, "Run Health Gates Report", artifact.GeneratedAtUTC, artifact, metrics, report.Violations, report.Passed); err != nil {
		return err
	}
	if !report.Passed {
		return fmt.Errorf("health gates failed: %v", report.Violations)
	}
	return nil
}

func runReportRegression(cmd *cobra.Command, args []string) error {
	baseline, err := validation.ValidatePlanFile(reportRegressionBaseline, "strict")
	if err != nil {
		return fmt.Errorf("baseline plan: %w", err)
	}
	candidate, err := validation.ValidatePlanFile(reportRegressionCandidate, "strict")
	if err != nil {
		return fmt.Errorf("candidate plan: %w", err)
	}

	policy := regression.DivergencePolicy{TimingToleranceMS: reportRegressionTolerance}
	if reportRegressionPolicy != "" {
		policy, err = regression.ReadPolicy(reportRegressionPolicy)
		if err != nil {
			return err
		}
	}

	divergences := regression.Compare(*baseline, *candidate)
	evaluation := regression.EvaluateDivergences(divergences, policy)
	artifact := release.RegressionReport{
		SchemaVersion:     release.RegressionReportSchemaVersionV1,
		GeneratedAtUTC:    time.Now().UTC().Format(time.RFC3339),
		BaselineRef:       reportRegressionBaseline,
		CandidateRef:      reportRegressionCandidate,
		TimingToleranceMS: policy.TimingToleranceMS,
		FailingCount:      len(evaluation.Failing),
		Divergences:       divergences,
		Evaluation:        evaluation,
	}
	metrics := []string{
		fmt.Sprintf("Baseline: %s", reportRegressionBaseline),
		fmt.Sprintf("Candidate: %s", reportRegressionCandidate),
		fmt.Sprintf("Timing tolerance: %d ms", policy.TimingToleranceMS),
		fmt.Sprintf("Divergences: %d", len(divergences)),
		fmt.Sprintf("Unexplained: %d", len(evaluation.Unexplained)),
		fmt.Sprintf("Missing expected: %d", len(evaluation.MissingExpected)),
	}
	failures := make([]string, 0, len(evaluation.Failing))
	for _, d := range evaluation.Failing {
		failures = append(failures, fmt.Sprintf("%s %s: %s", d.Class, d.Scope, d.Message))
	}
	passed := len(evaluation.Failing) == 0
	if err := writeReportArtifact(reportRegressionOut, "Plan Regression Report", artifact.GeneratedAtUTC, artifact, metrics, failures, passed); err != nil {
		return err
	}
	if !passed {
		return fmt.Errorf("plan regression failed: %d forbidden divergence(s)", len(evaluation.Failing))
	}
	return nil
}

// writeReportArtifact writes the JSON artifact and a markdown summary
// whose path swaps the extension for .md.
func writeReportArtifact(path, title, generatedAt string, artifact any, metrics, failures []string, passed bool) error {
	if err := writeJSONFile(path, artifact); err != nil {
		return err
	}
	summaryPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".md"
	summary := renderReportSummary(title, generatedAt, metrics, failures, passed)
	if err := os.WriteFile(summaryPath, []byte(summary), 0o644); err != nil {
		return fmt.Errorf("write summary %s: %w", summaryPath, err)
	}
	fmt.Printf("report written: %s\n", path)
	fmt.Printf("summary written: %s\n", summaryPath)
	return nil
}

func renderReportSummary(title, generatedAt string, metrics, failures []string, passed bool) string {
	lines := []string{"# " + title, "", "Generated at (UTC): " + generatedAt}
	lines = append(lines, metrics...)
	if passed {
		lines = append(lines, "", "Status: PASS")
	} else {
		lines = append(lines, "", "Status: FAIL", "## Violations")
		for _, failure := range failures {
			lines = append(lines, "- "+failure)
		}
	}
	return strings.Join(lines, "\n") + "\n"
}
