// Package transcript defines the word-timing input contract consumed by the
// director pipeline. Transcripts arrive from an upstream recognizer; this
// package only validates shape, it never produces timings.
package transcript

import (
	"fmt"
	"strings"
)

// WordTiming is one transcribed word with its absolute position in the
// performance, in milliseconds from performance start.
type WordTiming struct {
	Word       string `json:"word"`
	StartMS    int64  `json:"start_ms"`
	DurationMS int64  `json:"duration_ms"`
}

func (w WordTiming) Validate() error {
	if strings.TrimSpace(w.Word) == "" {
		return fmt.Errorf("word is required")
	}
	if w.StartMS < 0 {
		return fmt.Errorf("start_ms must be >= 0")
	}
	if w.DurationMS < 0 {
		return fmt.Errorf("duration_ms must be >= 0")
	}
	return nil
}

// EndMS is the word's exclusive end position.
func (w WordTiming) EndMS() int64 {
	return w.StartMS + w.DurationMS
}

// InputSection is one contiguous span of the performance with its spoken
// text. Sections produced by segmentation tile [0, duration) exactly.
type InputSection struct {
	StartMS int64  `json:"start_ms"`
	EndMS   int64  `json:"end_ms"`
	Text    string `json:"text"`
}

func (s InputSection) Validate() error {
	if s.StartMS < 0 {
		return fmt.Errorf("start_ms must be >= 0")
	}
	if s.EndMS <= s.StartMS {
		return fmt.Errorf("end_ms must be > start_ms")
	}
	return nil
}

// DurationMS is the section's span length.
func (s InputSection) DurationMS() int64 {
	return s.EndMS - s.StartMS
}

// ValidateSections checks a section sequence against the tiling contract:
// ascending, non-overlapping, first at 0, each end meeting the next start,
// last ending at durationMS.
func ValidateSections(sections []InputSection, durationMS int64) error {
	if durationMS <= 0 {
		return fmt.Errorf("duration_ms must be > 0")
	}
	if len(sections) == 0 {
		return fmt.Errorf("at least one section is required")
	}
	for i, s := range sections {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("section %d: %w", i, err)
		}
	}
	if sections[0].StartMS != 0 {
		return fmt.Errorf("first section must start at 0, got %d", sections[0].StartMS)
	}
	for i := 1; i < len(sections); i++ {
		if sections[i].StartMS != sections[i-1].EndMS {
			return fmt.Errorf("section %d starts at %d, expected %d", i, sections[i].StartMS, sections[i-1].EndMS)
		}
	}
	if last := sections[len(sections)-1]; last.EndMS != durationMS {
		return fmt.Errorf("last section ends at %d, expected %d", last.EndMS, durationMS)
	}
	return nil
}

// Document is the transcript file consumed by the CLI: the full word list
// plus the authoritative performance duration.
type Document struct {
	DurationMS int64        `json:"duration_ms"`
	Words      []WordTiming `json:"words"`
}

func (d Document) Validate() error {
	if d.DurationMS <= 0 {
		return fmt.Errorf("duration_ms must be > 0")
	}
	var prevStart int64 = -1
	for i, w := range d.Words {
		if err := w.Validate(); err != nil {
			return fmt.Errorf("word %d: %w", i, err)
		}
		if w.StartMS < prevStart {
			return fmt.Errorf("word %d: start_ms %d out of order", i, w.StartMS)
		}
		if w.EndMS() > d.DurationMS {
			return fmt.Errorf("word %d: ends at %d past duration %d", i, w.EndMS(), d.DurationMS)
		}
		prevStart = w.StartMS
	}
	return nil
}

// Text joins the document's words with single spaces.
func (d Document) Text() string {
	parts := make([]string, 0, len(d.Words))
	for _, w := range d.Words {
		parts = append(parts, w.Word)
	}
	return strings.Join(parts, " ")
}
