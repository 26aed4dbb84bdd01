package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/KBLLR/Avatars-Lab-sub000/internal/tooling/validation"
)

var (
	validateMode      string
	validateSchemaDir string

	contractsSchemaDir string
	contractsFixtures  string
)

// validateCmd checks a plan file against the typed contract and,
// optionally, the published JSON schema.
var validateCmd = &cobra.Command{
	Use:   "validate [plan.json]",
	Short: "Validate a performance plan file",
	Long: `Checks a plan file against the typed plan contract. Strict mode
rejects unknown fields so typos surface before playback; relaxed mode
tolerates extra fields from newer tools. Pass --schema-dir to also
check the file against the published JSON schema.

Example:
  avlab validate plan.json
  avlab validate plan.json --mode relaxed --schema-dir docs`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

// validateContractsCmd runs the fixture suite that keeps the typed
// validators and the published schemas in agreement.
var validateContractsCmd = &cobra.Command{
	Use:   "contracts",
	Short: "Run the contract fixture suite",
	Long: `Validates every fixture under the contract tree: files under valid/
must pass both the typed validator and the JSON schema, files under
invalid/ must fail both. A disagreement means the contract drifted.`,
	RunE: runValidateContracts,
}

func init() {
	validateCmd.Flags().StringVar(&validateMode, "mode", "strict", "Validation mode: strict or relaxed")
	validateCmd.Flags().StringVar(&validateSchemaDir, "schema-dir", "", "Also validate against the JSON schema in this directory")
	validateContractsCmd.Flags().StringVar(&contractsSchemaDir, "schema-dir", "docs", "Directory holding the published JSON schemas")
	validateContractsCmd.Flags().StringVar(&contractsFixtures, "fixtures", filepath.Join("test", "contract", "fixtures"), "Contract fixture root")
	validateCmd.AddCommand(validateContractsCmd)
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	mode, err := validation.ParseMode(validateMode)
	if err != nil {
		return err
	}

	path := args[0]
	p, err := validation.ValidatePlanFile(path, mode)
	if err != nil {
		return err
	}

	if validateSchemaDir != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read plan file: %w", err)
		}
		schemaPath := filepath.Join(validateSchemaDir, "PerformancePlan.schema.json")
		if err := validation.ValidatePlanAgainstSchema(raw, schemaPath); err != nil {
			return err
		}
	}

	fmt.Printf("plan %s: ok (title=%q, sections=%d, duration=%dms)\n",
		path, p.Title, len(p.Sections), p.DurationMS())
	return nil
}

func runValidateContracts(cmd *cobra.Command, args []string) error {
	summary, err := validation.ValidateFixtures(contractsSchemaDir, contractsFixtures)
	if err != nil {
		return err
	}
	fmt.Println(validation.RenderSummary(summary))
	if summary.Failed > 0 {
		return fmt.Errorf("%d contract fixture(s) failed", summary.Failed)
	}
	return nil
}
