package contract_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/KBLLR/Avatars-Lab-sub000/api/plan"
	"github.com/KBLLR/Avatars-Lab-sub000/api/progress"
)

type validatorFn func([]byte) error

func TestContractFixtures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		baseDir   string
		validator validatorFn
	}{
		{name: "merged_plan", baseDir: "fixtures/merged_plan", validator: validateMergedPlan},
		{name: "progress_event", baseDir: "fixtures/progress_event", validator: validateProgressEvent},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name+"_valid", func(t *testing.T) {
			t.Parallel()
			runFixtures(t, filepath.Join(tc.baseDir, "valid"), true, tc.validator)
		})

		t.Run(tc.name+"_invalid", func(t *testing.T) {
			t.Parallel()
			runFixtures(t, filepath.Join(tc.baseDir, "invalid"), false, tc.validator)
		})
	}
}

func runFixtures(t *testing.T, dir string, shouldPass bool, validator validatorFn) {
	t.Helper()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read fixtures dir %s: %v", dir, err)
	}
	if len(entries) == 0 {
		t.Fatalf("no fixtures in %s", dir)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		name := name
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			raw, readErr := os.ReadFile(filepath.Join(dir, name))
			if readErr != nil {
				t.Fatalf("read fixture: %v", readErr)
			}
			vErr := validator(raw)
			if shouldPass && vErr != nil {
				t.Fatalf("expected valid fixture, got error: %v", vErr)
			}
			if !shouldPass && vErr == nil {
				t.Fatalf("expected invalid fixture to fail validation")
			}
		})
	}
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
