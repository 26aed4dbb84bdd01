package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/KBLLR/Avatars-Lab-sub000/api/transcript"
)

// tiled builds n sections covering [0, n*4000) with no pauses between them.
func tiled(n int) []transcript.InputSection {
	out := make([]transcript.InputSection, n)
	for i := range out {
		out[i] = transcript.InputSection{
			StartMS: int64(i) * 4000,
			EndMS:   int64(i+1) * 4000,
			Text:    fmt.Sprintf("section %d", i),
		}
	}
	return out
}

// paused builds sections with a long pause after every groupSize sections.
func paused(n, groupSize int) []transcript.InputSection {
	out := make([]transcript.InputSection, n)
	var cursor int64
	for i := range out {
		out[i] = transcript.InputSection{
			StartMS: cursor,
			EndMS:   cursor + 3000,
			Text:    fmt.Sprintf("section %d", i),
		}
		cursor += 3000
		if (i+1)%groupSize == 0 {
			cursor += 2000
		} else {
			cursor += 200
		}
	}
	return out
}

func flatten(chunks [][]transcript.InputSection) []transcript.InputSection {
	var out []transcript.InputSection
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

func TestChunkSingleWhenSmall(t *testing.T) {
	t.Parallel()

	sections := tiled(8)
	chunks := Chunk(sections, Defaults())
	if len(chunks) != 1 {
		t.Fatalf("expected one chunk for 8 sections, got %d", len(chunks))
	}
	if diff := cmp.Diff(sections, chunks[0]); diff != "" {
		t.Fatalf("chunk differs from input (-want +got):\n%s", diff)
	}
}

func TestChunkConcatenationLossless(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		sections []transcript.InputSection
	}{
		{"tiled_20", tiled(20)},
		{"tiled_9", tiled(9)},
		{"paused_18_by_4", paused(18, 4)},
		{"paused_25_by_5", paused(25, 5)},
		{"paused_30_by_2", paused(30, 2)},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			chunks := Chunk(tc.sections, Defaults())
			if diff := cmp.Diff(tc.sections, flatten(chunks)); diff != "" {
				t.Fatalf("concatenation differs from input (-want +got):\n%s", diff)
			}
			for i, c := range chunks {
				if len(c) == 0 {
					t.Fatalf("chunk %d is empty", i)
				}
				if len(c) > Defaults().MaxPerChunk {
					t.Fatalf("chunk %d has %d sections, above max", i, len(c))
				}
			}
		})
	}
}

func TestChunkPrefersNaturalBreaks(t *testing.T) {
	t.Parallel()

	// Pauses after every 4th section: chunks should land on those breaks.
	sections := paused(16, 4)
	chunks := Chunk(sections, Defaults())
	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks at pause boundaries, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) != 4 {
			t.Fatalf("chunk %d has %d sections, want 4", i, len(c))
		}
	}
}

func TestChunkEvenSplitWithoutBreaks(t *testing.T) {
	t.Parallel()

	// Tiled sections have no pauses, so even splitting applies: 20 sections
	// at max 8 become three chunks sized 7/7/6.
	chunks := Chunk(tiled(20), Defaults())
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	sizes := []int{len(chunks[0]), len(chunks[1]), len(chunks[2])}
	if sizes[0] != 7 || sizes[1] != 7 || sizes[2] != 6 {
		t.Fatalf("unexpected chunk sizes: %v", sizes)
	}
}

func TestChunkSkipsUndersizedBreaks(t *testing.T) {
	t.Parallel()

	// Pauses after every 2nd section with MinPerChunk 3: the first break
	// would create a 2-section chunk and must be skipped; the next break
	// (4 sections) qualifies.
	sections := paused(12, 2)
	chunks := Chunk(sections, Defaults())
	if diff := cmp.Diff(sections, flatten(chunks)); diff != "" {
		t.Fatalf("concatenation differs (-want +got):\n%s", diff)
	}
	if len(chunks[0]) < Defaults().MinPerChunk {
		t.Fatalf("first chunk has %d sections, below min", len(chunks[0]))
	}
}

func TestShouldChunk(t *testing.T) {
	t.Parallel()

	if ShouldChunk(tiled(10), 10) {
		t.Fatalf("10 sections at threshold 10 should not chunk")
	}
	if !ShouldChunk(tiled(11), 10) {
		t.Fatalf("11 sections at threshold 10 should chunk")
	}
	if !ShouldChunk(tiled(11), 0) {
		t.Fatalf("threshold 0 should fall back to default 10")
	}

	long := []transcript.InputSection{{
		StartMS: 0,
		EndMS:   5000,
		Text:    strings.Repeat("la ", 1200),
	}}
	if !ShouldChunk(long, 10) {
		t.Fatalf("3600 chars of text should chunk regardless of count")
	}

	short := []transcript.InputSection{{StartMS: 0, EndMS: 5000, Text: "short"}}
	if ShouldChunk(short, 10) {
		t.Fatalf("single short section should not chunk")
	}
}
