// Package review holds generated plans for human sign-off. A Draft wraps
// one proposed plan; reviewers adjust sections, approve the result, and
// hand the approved copy to the compiler. Any edit after approval voids
// it, so a stale sign-off can never reach playback.
package review

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/KBLLR/Avatars-Lab-sub000/api/plan"
)

// Draft is a plan under review. All methods are safe for concurrent use.
type Draft struct {
	mu       sync.Mutex
	plan     plan.MergedPlan
	approved bool
	dirty    bool
	revision int64
}

// NewDraft starts a review over a copy of the proposed plan.
func NewDraft(p *plan.MergedPlan) (*Draft, error) {
	if p == nil {
		return nil, fmt.Errorf("plan is required")
	}
	return &Draft{plan: p.Clone()}, nil
}

// LoadDraft reads a plan file and starts a review over it. The plan must
// already be valid; partial hand-written files are rejected.
func LoadDraft(path string) (*Draft, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	var p plan.MergedPlan
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("plan %s: %w", path, err)
	}
	return NewDraft(&p)
}

// Plan returns a snapshot of the current draft content.
func (d *Draft) Plan() plan.MergedPlan {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.plan.Clone()
}

// Revision counts accepted edits, including replacements.
func (d *Draft) Revision() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.revision
}

// Dirty reports whether the draft changed since creation or the last
// approval.
func (d *Draft) Dirty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dirty
}

// Replace swaps the entire draft content, voiding any prior approval.
func (d *Draft) Replace(p *plan.MergedPlan) error {
	if p == nil {
		return fmt.Errorf("plan is required")
	}
	clone := p.Clone()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.plan = clone
	d.touch()
	return nil
}

// SetRole changes one section's role.
func (d *Draft) SetRole(section int, role plan.Role) error {
	if !plan.ValidRole(role) {
		return fmt.Errorf("invalid role %q", role)
	}
	return d.editSection(section, func(s *plan.PlanSection) { s.Role = role })
}

// SetMood changes one section's mood. An empty mood clears it, leaving
// the compiler default.
func (d *Draft) SetMood(section int, mood plan.Mood) error {
	if mood != "" && !plan.ValidMood(mood) {
		return fmt.Errorf("invalid mood %q", mood)
	}
	return d.editSection(section, func(s *plan.PlanSection) { s.Mood = mood })
}

// SetCamera changes one section's camera view. An empty view clears it.
func (d *Draft) SetCamera(section int, view plan.View) error {
	if view != "" && !plan.ValidView(view) {
		return fmt.Errorf("invalid camera %q", view)
	}
	return d.editSection(section, func(s *plan.PlanSection) { s.Camera = view })
}

// SetLight changes one section's lighting preset. An empty preset clears
// it.
func (d *Draft) SetLight(section int, light plan.Light) error {
	if light != "" && !plan.ValidLight(light) {
		return fmt.Errorf("invalid light %q", light)
	}
	return d.editSection(section, func(s *plan.PlanSection) { s.Light = light })
}

// UpdateActionArgs replaces the arguments of one section action. The
// edited action must stay valid; otherwise the draft is left untouched.
func (d *Draft) UpdateActionArgs(section, action int, args map[string]any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if section < 0 || section >= len(d.plan.Sections) {
		return fmt.Errorf("section %d out of range", section)
	}
	s := &d.plan.Sections[section]
	if action < 0 || action >= len(s.Actions) {
		return fmt.Errorf("action %d out of range in section %d", action, section)
	}

	edited := s.Actions[action]
	edited.Args = make(map[string]any, len(args))
	for k, v := range args {
		edited.Args[k] = v
	}
	if err := edited.Validate(); err != nil {
		return fmt.Errorf("edited action: %w", err)
	}
	s.Actions[action] = edited
	d.touch()
	return nil
}

// Approve validates the draft and marks it approved. A failed validation
// leaves the draft unapproved.
func (d *Draft) Approve() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.plan.Validate(); err != nil {
		return fmt.Errorf("draft not approvable: %w", err)
	}
	d.approved = true
	d.dirty = false
	return nil
}

// Approved returns the approved plan copy and whether the approval still
// stands.
func (d *Draft) Approved() (plan.MergedPlan, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.approved {
		return plan.MergedPlan{}, false
	}
	return d.plan.Clone(), true
}

// Save writes the draft content as indented JSON, the format Watch
// reloads.
func (d *Draft) Save(path string) error {
	snapshot := d.Plan()
	raw, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	return os.WriteFile(path, append(raw, '\n'), 0o644)
}

func (d *Draft) editSection(section int, apply func(*plan.PlanSection)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if section < 0 || section >= len(d.plan.Sections) {
		return fmt.Errorf("section %d out of range", section)
	}
	apply(&d.plan.Sections[section])
	d.touch()
	return nil
}

// touch records an accepted edit. Callers hold d.mu.
func (d *Draft) touch() {
	d.dirty = true
	d.approved = false
	d.revision++
}
