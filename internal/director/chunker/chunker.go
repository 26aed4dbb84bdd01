// Package chunker batches input sections for the director pipeline.
// Concatenating the returned chunks in order always reproduces the input
// exactly; nothing is dropped, reordered, or duplicated.
package chunker

import (
	"github.com/KBLLR/Avatars-Lab-sub000/api/transcript"
)

// Options tunes the batching behavior.
type Options struct {
	MaxPerChunk         int
	MinPerChunk         int
	PreferNaturalBreaks bool
}

const (
	defaultMaxPerChunk = 8
	defaultMinPerChunk = 3

	// naturalBreakGapMS marks a pause between consecutive sections long
	// enough to prefer as a chunk boundary.
	naturalBreakGapMS = 1000

	defaultChunkThreshold = 10
	maxCombinedTextChars  = 3000
)

// Defaults returns the standard batching options.
func Defaults() Options {
	return Options{MaxPerChunk: defaultMaxPerChunk, MinPerChunk: defaultMinPerChunk, PreferNaturalBreaks: true}
}

func (o Options) withDefaults() Options {
	if o.MaxPerChunk <= 0 {
		o.MaxPerChunk = defaultMaxPerChunk
	}
	if o.MinPerChunk <= 0 {
		o.MinPerChunk = defaultMinPerChunk
	}
	if o.MinPerChunk > o.MaxPerChunk {
		o.MinPerChunk = o.MaxPerChunk
	}
	return o
}

// ShouldChunk reports whether the section list is big enough to batch:
// more sections than threshold, or combined text past the character budget.
// A threshold <= 0 uses the default of 10.
func ShouldChunk(sections []transcript.InputSection, threshold int) bool {
	if threshold <= 0 {
		threshold = defaultChunkThreshold
	}
	if len(sections) > threshold {
		return true
	}
	total := 0
	for _, s := range sections {
		total += len(s.Text)
	}
	return total > maxCombinedTextChars
}

// Chunk splits sections into batches of at most MaxPerChunk. When
// PreferNaturalBreaks is set, pauses longer than 1000ms between consecutive
// sections are preferred boundaries; breaks that would produce an over- or
// undersized chunk are skipped. Without usable natural breaks the input is
// split evenly.
func Chunk(sections []transcript.InputSection, opts Options) [][]transcript.InputSection {
	if len(sections) == 0 {
		return nil
	}
	opts = opts.withDefaults()
	if len(sections) <= opts.MaxPerChunk {
		return [][]transcript.InputSection{sections}
	}

	if opts.PreferNaturalBreaks {
		if chunks := chunkAtBreaks(sections, opts); chunks != nil {
			return chunks
		}
	}
	return splitEvenly(sections, opts.MaxPerChunk)
}

// chunkAtBreaks walks pause boundaries, emitting a chunk whenever the
// accumulated run fits [MinPerChunk, MaxPerChunk]. Returns nil when no
// break produced a valid chunk.
func chunkAtBreaks(sections []transcript.InputSection, opts Options) [][]transcript.InputSection {
	var chunks [][]transcript.InputSection
	start := 0
	for i := 0; i < len(sections)-1; i++ {
		if sections[i+1].StartMS-sections[i].EndMS <= naturalBreakGapMS {
			continue
		}
		size := i + 1 - start
		if size < opts.MinPerChunk || size > opts.MaxPerChunk {
			continue
		}
		chunks = append(chunks, sections[start:i+1])
		start = i + 1
	}
	if len(chunks) == 0 {
		return nil
	}
	if start < len(sections) {
		tail := sections[start:]
		if len(tail) > opts.MaxPerChunk {
			chunks = append(chunks, splitEvenly(tail, opts.MaxPerChunk)...)
		} else {
			chunks = append(chunks, tail)
		}
	}
	return chunks
}

// splitEvenly divides sections into the fewest chunks of at most max each,
// with sizes differing by at most one.
func splitEvenly(sections []transcript.InputSection, max int) [][]transcript.InputSection {
	count := (len(sections) + max - 1) / max
	base := len(sections) / count
	extra := len(sections) % count

	chunks := make([][]transcript.InputSection, 0, count)
	start := 0
	for i := 0; i < count; i++ {
		size := base
		if i < extra {
			size++
		}
		chunks = append(chunks, sections[start:start+size])
		start += size
	}
	return chunks
}
