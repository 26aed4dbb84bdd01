package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/KBLLR/Avatars-Lab-sub000/api/plan"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/fault"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "avlab.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()

	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadLayersFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
llm:
  base_url: https://llm.example.com/v1
  model: director-large
director:
  max_retries: 5
defaults:
  mood: happy
tts:
  provider: polly
  polly:
    voice_id: Matthew
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.BaseURL != "https://llm.example.com/v1" || cfg.LLM.Model != "director-large" {
		t.Fatalf("llm = %+v", cfg.LLM)
	}
	if cfg.Director.MaxRetries != 5 {
		t.Fatalf("max_retries = %d, want 5", cfg.Director.MaxRetries)
	}
	if cfg.Defaults.Mood != "happy" {
		t.Fatalf("default mood = %q", cfg.Defaults.Mood)
	}
	if cfg.TTS.Provider != "polly" || cfg.TTS.Polly.VoiceID != "Matthew" {
		t.Fatalf("tts = %+v", cfg.TTS)
	}

	// Untouched sections keep their defaults.
	if cfg.Engine.TickMS != 50 {
		t.Fatalf("tick_ms = %d, want default 50", cfg.Engine.TickMS)
	}
	if cfg.Director.MaxPerChunk != 8 {
		t.Fatalf("max_per_chunk = %d, want default 8", cfg.Director.MaxPerChunk)
	}
}

func TestLoadExpandsEnvInFile(t *testing.T) {
	t.Setenv("AVLAB_TEST_SECRET", "k-123")
	path := writeConfig(t, `
llm:
  api_key: $AVLAB_TEST_SECRET
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.APIKey != "k-123" {
		t.Fatalf("api_key = %q, want expanded secret", cfg.LLM.APIKey)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("AVLAB_LLM_MODEL", "env-model")
	t.Setenv("AVLAB_DIRECTOR_SEQUENTIAL_STAGES", "true")
	t.Setenv("AVLAB_ENGINE_TICK_MS", "25")
	path := writeConfig(t, `
llm:
  model: file-model
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Model != "env-model" {
		t.Fatalf("model = %q, env must win over file", cfg.LLM.Model)
	}
	if !cfg.Director.SequentialStages {
		t.Fatal("sequential_stages env override lost")
	}
	if cfg.Engine.TickMS != 25 {
		t.Fatalf("tick_ms = %d, want 25", cfg.Engine.TickMS)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		mut   func(*Config)
		field string
	}{
		{
			name:  "bad mood",
			mut:   func(c *Config) { c.Defaults.Mood = "grumpy" },
			field: "defaults.mood",
		},
		{
			name:  "min over max",
			mut:   func(c *Config) { c.Director.MinPerChunk = 12 },
			field: "director.min_per_chunk",
		},
		{
			name:  "unknown tts provider",
			mut:   func(c *Config) { c.TTS.Provider = "espeak" },
			field: "tts.provider",
		},
		{
			name:  "negative tick",
			mut:   func(c *Config) { c.Engine.TickMS = -1 },
			field: "engine",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := Default()
			tc.mut(&cfg)
			err := cfg.Validate()
			var ce *fault.ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("err = %v, want config error", err)
			}
			if ce.Field != tc.field {
				t.Fatalf("field = %q, want %q", ce.Field, tc.field)
			}
		})
	}
}

func TestOptionAdapters(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.LLM.BaseURL = "https://llm.example.com/v1"
	cfg.LLM.Model = "director-large"
	cfg.LLM.TimeoutMS = 5000
	cfg.Director.StageTimeoutMS = 12000
	cfg.Defaults.Mood = "love"

	lc := cfg.LLMClientConfig()
	if lc.Timeout != 5*time.Second || lc.Model != "director-large" {
		t.Fatalf("llm config = %+v", lc)
	}

	ch := cfg.ChunkerOptions()
	if ch.MaxPerChunk != 8 || ch.MinPerChunk != 3 || !ch.PreferNaturalBreaks {
		t.Fatalf("chunker options = %+v", ch)
	}

	sd := cfg.StageDefaultsValue()
	if sd.Mood != plan.MoodLove || sd.View != plan.ViewFull {
		t.Fatalf("stage defaults = %+v", sd)
	}

	do := cfg.DirectorOptions(nil, nil, nil)
	if do.StageTimeout != 12*time.Second || do.MaxRetries != 2 {
		t.Fatalf("director options = %+v", do)
	}

	fo := cfg.FeedOptions()
	if fo.QueueCapacity != 256 {
		t.Fatalf("feed options = %+v", fo)
	}
}
