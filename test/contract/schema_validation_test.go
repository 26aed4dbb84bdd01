package contract_test

import (
	"path/filepath"
	"testing"

	"github.com/KBLLR/Avatars-Lab-sub000/internal/tooling/validation"
)

func TestContractFixturesMatchSchema(t *testing.T) {
	t.Parallel()

	schemaDir := filepath.Join("..", "..", "docs")
	fixtureRoot := filepath.Join("fixtures")

	summary, err := validation.ValidateFixtures(schemaDir, fixtureRoot)
	if err != nil {
		t.Fatalf("schema validation execution failed: %v", err)
	}
	if summary.Total == 0 {
		t.Fatalf("expected non-zero fixture count")
	}
	if summary.Failed != 0 {
		t.Fatalf("expected zero schema mismatches, got %d\n%s", summary.Failed, validation.RenderSummary(summary))
	}
}
