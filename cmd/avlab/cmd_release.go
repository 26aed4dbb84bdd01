package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/KBLLR/Avatars-Lab-sub000/internal/tooling/release"
)

var (
	releasePlanRef    string
	releaseRollout    string
	releaseReportsDir string
	releaseOut        string
	releaseMaxAge     time.Duration
)

var releaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Check publish readiness and write a release manifest",
	Long: `Release checks the contracts, gate and regression reports written by
the report commands. When all three pass and are fresh it writes a
manifest pinning the exact artifacts the bundle was published against.`,
	Example: `  avlab release --plan shows/night-drive.json --rollout rollout.json
  avlab release --plan shows/night-drive.json --rollout rollout.json --reports-dir reports`,
	RunE: runRelease,
}

func init() {
	releaseCmd.Flags().StringVar(&releasePlanRef, "plan", "", "approved plan the bundle ships (required)")
	releaseCmd.Flags().StringVar(&releaseRollout, "rollout", "", "rollout config JSON (required)")
	releaseCmd.Flags().StringVar(&releaseReportsDir, "reports-dir", "reports", "directory holding the report artifacts")
	releaseCmd.Flags().StringVar(&releaseOut, "out", release.DefaultReleaseManifestPath, "release manifest output path")
	releaseCmd.Flags().DurationVar(&releaseMaxAge, "max-age", 0, "maximum report age, 0 for the 24h default")
	_ = releaseCmd.MarkFlagRequired("plan")
	_ = releaseCmd.MarkFlagRequired("rollout")
	rootCmd.AddCommand(releaseCmd)
}

func runRelease(cmd *cobra.Command, args []string) error {
	cfg, rolloutSource, err := release.LoadRolloutConfig(releaseRollout)
	if err != nil {
		return err
	}

	readiness, sources := release.EvaluateReadiness(release.ReadinessInput{
		ContractsReportPath:  filepath.Join(releaseReportsDir, "contracts-report.json"),
		GateReportPath:       filepath.Join(releaseReportsDir, "gate-report.json"),
		RegressionReportPath: filepath.Join(releaseReportsDir, "regression-report.json"),
		MaxArtifactAge:       releaseMaxAge,
	})
	for _, check := range readiness.Checks {
		status := "ok"
		if !check.Passed {
			status = "FAIL: " + check.Reason
		}
		fmt.Printf("  %-18s %s\n", check.Name, status)
	}
	if !readiness.Passed {
		return fmt.Errorf("release readiness failed: %v", readiness.Violations)
	}

	sources["rollout_config"] = rolloutSource
	manifest, err := release.BuildReleaseManifest(releasePlanRef, cfg, readiness, sources, time.Now().UTC())
	if err != nil {
		return err
	}
	if err := writeJSONFile(releaseOut, manifest); err != nil {
		return err
	}
	fmt.Printf("release manifest written: %s (release_id=%s)\n", releaseOut, manifest.ReleaseID)
	return nil
}
