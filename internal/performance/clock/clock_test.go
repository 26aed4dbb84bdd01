package clock

import "testing"

func TestAdvanceAccumulatesPosition(t *testing.T) {
	t.Parallel()

	p, err := NewPlayback(0)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if _, err := p.Advance(16); err != nil {
		t.Fatalf("advance: %v", err)
	}
	pos, err := p.Advance(34)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if pos != 50 {
		t.Fatalf("position=%d, want 50", pos)
	}
	if p.NowMS() != 50 {
		t.Fatalf("now=%d, want 50", p.NowMS())
	}
}

func TestAdvanceRejectsNegativeDelta(t *testing.T) {
	t.Parallel()

	p, err := NewPlayback(100)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := p.Advance(-1); err == nil {
		t.Fatalf("expected negative delta to fail")
	}
	if p.NowMS() != 100 {
		t.Fatalf("position moved on rejected advance: %d", p.NowMS())
	}
}

func TestObserveRebasesOnExcessSkew(t *testing.T) {
	t.Parallel()

	p, err := NewPlayback(1000)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	within, err := p.Observe(1030, 50)
	if err != nil {
		t.Fatalf("observe within tolerance: %v", err)
	}
	if within.Rebased {
		t.Fatalf("expected no rebase under tolerance, got %+v", within)
	}
	if within.SkewMS != 30 || within.PositionMS != 1000 {
		t.Fatalf("unexpected observation: %+v", within)
	}

	rebased, err := p.Observe(1200, 50)
	if err != nil {
		t.Fatalf("observe with skew: %v", err)
	}
	if !rebased.Rebased || rebased.PositionMS != 1200 || rebased.SkewMS != 200 {
		t.Fatalf("expected rebase to reported position, got %+v", rebased)
	}
	if p.NowMS() != 1200 {
		t.Fatalf("clock not rebased: %d", p.NowMS())
	}
	if p.Rebases() != 1 {
		t.Fatalf("rebases=%d, want 1", p.Rebases())
	}

	// Playback continues from the rebased position.
	pos, err := p.Advance(100)
	if err != nil {
		t.Fatalf("advance after rebase: %v", err)
	}
	if pos != 1300 {
		t.Fatalf("position=%d after rebase+advance, want 1300", pos)
	}
}

func TestObserveRejectsInvalidInputs(t *testing.T) {
	t.Parallel()

	p, err := NewPlayback(0)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := p.Observe(-1, 10); err == nil {
		t.Fatalf("expected negative report to fail")
	}
	if _, err := p.Observe(10, -1); err == nil {
		t.Fatalf("expected negative tolerance to fail")
	}
	if _, err := NewPlayback(-5); err == nil {
		t.Fatalf("expected negative start to fail")
	}
}
