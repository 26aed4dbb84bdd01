// Command avlab drives AI-directed avatar performances from the
// terminal: transcripts in, directed plans out, playback against a
// console stage rig.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/KBLLR/Avatars-Lab-sub000/api/transcript"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/config"
)

var (
	// Global flags
	verbose bool
	cfgPath string
	envFile string

	cfg    config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "avlab",
	Short: "Avatars Lab performance toolchain",
	Long: `avlab turns spoken transcripts into directed avatar performances.

A transcript becomes a section layout (segment), the director cascade
stages the sections into a performance plan (plan), plans are checked
against the published contracts (validate), and an approved plan plays
back against a console stage rig (perform). The report and release
commands gate publishing: they turn recorded runs and plan pairs into
pass/fail artifacts and stamp the release manifest.

Configuration layers built-in defaults, an optional avlab.yaml, and
AVLAB_* environment variables, in that order.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if envFile != "" {
			if err := godotenv.Load(envFile); err != nil {
				return fmt.Errorf("load env file: %w", err)
			}
		} else {
			_ = godotenv.Load()
		}

		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}

		cfg, err = config.Load(cfgPath)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to avlab.yaml (default: built-ins plus AVLAB_* env)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Env file loaded before configuration (default: ./.env if present)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// readTranscript loads and validates a transcript document.
func readTranscript(path string) (transcript.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return transcript.Document{}, fmt.Errorf("read transcript: %w", err)
	}
	var doc transcript.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return transcript.Document{}, fmt.Errorf("decode transcript %s: %w", path, err)
	}
	if err := doc.Validate(); err != nil {
		return transcript.Document{}, fmt.Errorf("transcript %s: %w", path, err)
	}
	return doc, nil
}

// writeJSONFile writes v as indented JSON, creating parent directories.
func writeJSONFile(path string, v any) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return os.WriteFile(path, append(raw, '\n'), 0o644)
}
