package review

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/KBLLR/Avatars-Lab-sub000/api/plan"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func writePlanFile(t *testing.T, path string, p plan.MergedPlan) {
	t.Helper()
	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal plan: %v", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write plan: %v", err)
	}
}

func TestWatcherReloadsExternalEdits(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.json")

	p := reviewPlan("First Cut")
	d, err := NewDraft(&p)
	if err != nil {
		t.Fatalf("NewDraft: %v", err)
	}
	if err := d.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := d.Approve(); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	w, err := Watch(path, d, nil)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer w.Close()

	writePlanFile(t, path, reviewPlan("Second Cut"))

	waitFor(t, func() bool { return d.Plan().Title == "Second Cut" })
	if _, ok := d.Approved(); ok {
		t.Fatal("external edit must void approval")
	}
	if !d.Dirty() {
		t.Fatal("external edit must mark the draft dirty")
	}
	if got := w.Stats().Reloads; got < 1 {
		t.Fatalf("reloads = %d, want >= 1", got)
	}
}

func TestWatcherRejectsInvalidContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.json")

	p := reviewPlan("First Cut")
	d, err := NewDraft(&p)
	if err != nil {
		t.Fatalf("NewDraft: %v", err)
	}
	if err := d.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	w, err := Watch(path, d, nil)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("{broken"), 0o644); err != nil {
		t.Fatalf("write broken file: %v", err)
	}
	waitFor(t, func() bool { return w.Stats().Rejected >= 1 })

	if got := d.Plan().Title; got != "First Cut" {
		t.Fatalf("title = %q, rejected content must not replace the draft", got)
	}

	overlapping := reviewPlan("Broken Cut")
	overlapping.Sections[1].StartMS = 2000
	writePlanFile(t, path, overlapping)
	waitFor(t, func() bool { return w.Stats().Rejected >= 2 })

	if got := d.Plan().Title; got != "First Cut" {
		t.Fatalf("title = %q, invalid plan must not replace the draft", got)
	}
}
