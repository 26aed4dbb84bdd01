// Package segmenter derives performance sections from word timings. Section
// boundaries are the timing authority for the whole pipeline: every
// downstream stage inherits its spans from here.
package segmenter

import (
	"strings"

	"github.com/KBLLR/Avatars-Lab-sub000/api/transcript"
)

// Options tunes the split heuristics.
type Options struct {
	// MaxGapMS splits when the silence between adjacent words exceeds it.
	MaxGapMS int64
	// MaxSectionMS splits before a word that would stretch the section past it.
	MaxSectionMS int64
}

const (
	defaultMaxGapMS     = 1300
	defaultMaxSectionMS = 16000
)

func (o Options) withDefaults() Options {
	if o.MaxGapMS <= 0 {
		o.MaxGapMS = defaultMaxGapMS
	}
	if o.MaxSectionMS <= 0 {
		o.MaxSectionMS = defaultMaxSectionMS
	}
	return o
}

// Segment splits words into sections tiling [0, durationMS) exactly: the
// first section starts at 0, each end meets the next start, the last ends at
// durationMS. Split points land on the start of the word that opens the next
// section. Empty input yields one whole-duration section.
func Segment(words []transcript.WordTiming, durationMS int64, opts Options) []transcript.InputSection {
	if durationMS <= 0 {
		return nil
	}
	opts = opts.withDefaults()
	if len(words) == 0 {
		return []transcript.InputSection{{StartMS: 0, EndMS: durationMS}}
	}

	var (
		sections     []transcript.InputSection
		sectionStart int64
		texts        []string
	)
	for i, w := range words {
		if len(texts) > 0 {
			prev := words[i-1]
			gap := w.StartMS - prev.EndMS()
			span := w.EndMS() - sectionStart
			if gap > opts.MaxGapMS || span > opts.MaxSectionMS {
				boundary := w.StartMS
				if boundary > sectionStart && boundary < durationMS {
					sections = append(sections, transcript.InputSection{
						StartMS: sectionStart,
						EndMS:   boundary,
						Text:    strings.Join(texts, " "),
					})
					sectionStart = boundary
					texts = texts[:0]
				}
			}
		}
		texts = append(texts, w.Word)
	}
	sections = append(sections, transcript.InputSection{
		StartMS: sectionStart,
		EndMS:   durationMS,
		Text:    strings.Join(texts, " "),
	})
	return sections
}
