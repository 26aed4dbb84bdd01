package avatar

import "testing"

func TestSpeechValidateChecksTrackParity(t *testing.T) {
	t.Parallel()

	good := Speech{
		Words:           []string{"hello", "world"},
		WordStartsMS:    []int64{0, 400},
		WordDurationsMS: []int64{350, 420},
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("valid speech rejected: %v", err)
	}

	bad := good
	bad.WordStartsMS = bad.WordStartsMS[:1]
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected parity error for truncated word starts")
	}

	visemes := good
	visemes.Visemes = []string{"sil", "aa"}
	visemes.VisemeStartsMS = []int64{0, 100}
	if err := visemes.Validate(); err == nil {
		t.Fatalf("expected parity error for missing viseme durations")
	}
}

func TestSpeakRequestValidateChecksMarkerOrder(t *testing.T) {
	t.Parallel()

	noop := func() {}
	req := SpeakRequest{
		Markers:       []func(){noop, noop, noop},
		MarkerTimesMS: []int64{0, 500, 500},
	}
	if err := req.Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}

	req.MarkerTimesMS = []int64{0, 500, 400}
	if err := req.Validate(); err == nil {
		t.Fatalf("expected ordering error for regressing marker times")
	}

	req.MarkerTimesMS = []int64{0, 500}
	if err := req.Validate(); err == nil {
		t.Fatalf("expected parity error for marker tracks")
	}
}
