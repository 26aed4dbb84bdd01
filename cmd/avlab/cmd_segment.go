package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KBLLR/Avatars-Lab-sub000/internal/director/segmenter"
)

var (
	segmentTranscript   string
	segmentOut          string
	segmentMaxGapMS     int64
	segmentMaxSectionMS int64
)

// segmentCmd splits a transcript into the section layout the director
// will decorate.
var segmentCmd = &cobra.Command{
	Use:   "segment",
	Short: "Split a transcript into performance sections",
	Long: `Derives section boundaries from word timings: a long pause or an
overlong span opens a new section. The sections tile the performance
duration exactly and become the timing skeleton for every later stage.

Example:
  avlab segment --transcript talk.json --out sections.json`,
	RunE: runSegment,
}

func init() {
	segmentCmd.Flags().StringVar(&segmentTranscript, "transcript", "", "Transcript JSON with word timings (required)")
	segmentCmd.Flags().StringVar(&segmentOut, "out", "", "Output file (default: stdout)")
	segmentCmd.Flags().Int64Var(&segmentMaxGapMS, "max-gap-ms", 0, "Pause length that opens a new section (default 1300)")
	segmentCmd.Flags().Int64Var(&segmentMaxSectionMS, "max-section-ms", 0, "Longest section before a forced split (default 16000)")
	segmentCmd.MarkFlagRequired("transcript")
	rootCmd.AddCommand(segmentCmd)
}

func runSegment(cmd *cobra.Command, args []string) error {
	doc, err := readTranscript(segmentTranscript)
	if err != nil {
		return err
	}

	sections := segmenter.Segment(doc.Words, doc.DurationMS, segmenter.Options{
		MaxGapMS:     segmentMaxGapMS,
		MaxSectionMS: segmentMaxSectionMS,
	})
	logger.Debug("segmented transcript",
		zap.Int("words", len(doc.Words)),
		zap.Int("sections", len(sections)))

	if segmentOut == "" {
		raw, err := json.MarshalIndent(sections, "", "  ")
		if err != nil {
			return fmt.Errorf("encode sections: %w", err)
		}
		fmt.Println(string(raw))
		return nil
	}
	if err := writeJSONFile(segmentOut, sections); err != nil {
		return err
	}
	fmt.Printf("wrote %d sections to %s\n", len(sections), segmentOut)
	return nil
}
