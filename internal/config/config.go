// Package config assembles runtime settings for the lab tools. Values
// layer in a fixed order: compiled defaults, then an optional YAML file,
// then AVLAB_* environment variables. Environment references inside the
// YAML file ($VAR) are expanded before parsing.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/KBLLR/Avatars-Lab-sub000/api/plan"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/director"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/director/chunker"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/director/stages"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/fault"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/llm"
	"github.com/KBLLR/Avatars-Lab-sub000/internal/observability/feed"
)

type Config struct {
	LLM      LLMConfig      `yaml:"llm"`
	Director DirectorConfig `yaml:"director"`
	Defaults StageDefaults  `yaml:"defaults"`
	Engine   EngineConfig   `yaml:"engine"`
	Feed     FeedConfig     `yaml:"feed"`
	TTS      TTSConfig      `yaml:"tts"`
}

type LLMConfig struct {
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type DirectorConfig struct {
	ChunkThreshold      int  `yaml:"chunk_threshold"`
	MaxPerChunk         int  `yaml:"max_per_chunk"`
	MinPerChunk         int  `yaml:"min_per_chunk"`
	PreferNaturalBreaks bool `yaml:"prefer_natural_breaks"`
	StageTimeoutMS      int  `yaml:"stage_timeout_ms"`
	MaxRetries          int  `yaml:"max_retries"`
	RetryBackoffMS      int  `yaml:"retry_backoff_ms"`
	SequentialStages    bool `yaml:"sequential_stages"`
}

// StageDefaults is the baseline style applied to sections the passes
// leave unset.
type StageDefaults struct {
	Mood  string `yaml:"mood"`
	View  string `yaml:"view"`
	Light string `yaml:"light"`
}

type EngineConfig struct {
	TickMS          int `yaml:"tick_ms"`
	SkewToleranceMS int `yaml:"skew_tolerance_ms"`
	SpeechQueueSize int `yaml:"speech_queue_size"`
}

type FeedConfig struct {
	// Endpoint receives progress events as JSON POSTs. Empty keeps events
	// in memory only.
	Endpoint       string `yaml:"endpoint"`
	QueueCapacity  int    `yaml:"queue_capacity"`
	MemoryCapacity int    `yaml:"memory_capacity"`
}

type TTSConfig struct {
	// Provider selects the synthesizer: polly, elevenlabs, or none.
	Provider   string           `yaml:"provider"`
	Polly      PollyConfig      `yaml:"polly"`
	ElevenLabs ElevenLabsConfig `yaml:"elevenlabs"`
}

type PollyConfig struct {
	Region  string `yaml:"region"`
	VoiceID string `yaml:"voice_id"`
	Engine  string `yaml:"engine"`
}

type ElevenLabsConfig struct {
	APIKey  string `yaml:"api_key"`
	VoiceID string `yaml:"voice_id"`
	ModelID string `yaml:"model_id"`
}

// Default returns the compiled-in baseline.
func Default() Config {
	ch := chunker.Defaults()
	return Config{
		LLM: LLMConfig{TimeoutMS: 30000},
		Director: DirectorConfig{
			ChunkThreshold:      10,
			MaxPerChunk:         ch.MaxPerChunk,
			MinPerChunk:         ch.MinPerChunk,
			PreferNaturalBreaks: ch.PreferNaturalBreaks,
			StageTimeoutMS:      30000,
			MaxRetries:          2,
			RetryBackoffMS:      500,
		},
		Defaults: StageDefaults{
			Mood:  string(plan.MoodNeutral),
			View:  string(plan.ViewFull),
			Light: string(plan.LightStudio),
		},
		Engine: EngineConfig{
			TickMS:          50,
			SkewToleranceMS: 250,
			SpeechQueueSize: 16,
		},
		Feed: FeedConfig{
			QueueCapacity:  256,
			MemoryCapacity: 512,
		},
		TTS: TTSConfig{
			Provider: "none",
			Polly: PollyConfig{
				Region:  "us-east-1",
				VoiceID: "Joanna",
				Engine:  "neural",
			},
			ElevenLabs: ElevenLabsConfig{
				ModelID: "eleven_multilingual_v2",
			},
		},
	}
}

// Load layers an optional YAML file and the environment over the
// defaults. An empty path skips the file layer.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		expanded := os.ExpandEnv(string(raw))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv builds a config from defaults and environment only.
func FromEnv() (Config, error) {
	return Load("")
}

func (c *Config) applyEnv() {
	envString("AVLAB_LLM_BASE_URL", &c.LLM.BaseURL)
	envString("AVLAB_LLM_MODEL", &c.LLM.Model)
	envString("AVLAB_LLM_API_KEY", &c.LLM.APIKey)
	envInt("AVLAB_LLM_TIMEOUT_MS", &c.LLM.TimeoutMS)

	envInt("AVLAB_DIRECTOR_CHUNK_THRESHOLD", &c.Director.ChunkThreshold)
	envInt("AVLAB_DIRECTOR_MAX_PER_CHUNK", &c.Director.MaxPerChunk)
	envInt("AVLAB_DIRECTOR_MIN_PER_CHUNK", &c.Director.MinPerChunk)
	envBool("AVLAB_DIRECTOR_PREFER_NATURAL_BREAKS", &c.Director.PreferNaturalBreaks)
	envInt("AVLAB_DIRECTOR_STAGE_TIMEOUT_MS", &c.Director.StageTimeoutMS)
	envInt("AVLAB_DIRECTOR_MAX_RETRIES", &c.Director.MaxRetries)
	envInt("AVLAB_DIRECTOR_RETRY_BACKOFF_MS", &c.Director.RetryBackoffMS)
	envBool("AVLAB_DIRECTOR_SEQUENTIAL_STAGES", &c.Director.SequentialStages)

	envString("AVLAB_DEFAULT_MOOD", &c.Defaults.Mood)
	envString("AVLAB_DEFAULT_VIEW", &c.Defaults.View)
	envString("AVLAB_DEFAULT_LIGHT", &c.Defaults.Light)

	envInt("AVLAB_ENGINE_TICK_MS", &c.Engine.TickMS)
	envInt("AVLAB_ENGINE_SKEW_TOLERANCE_MS", &c.Engine.SkewToleranceMS)
	envInt("AVLAB_ENGINE_SPEECH_QUEUE_SIZE", &c.Engine.SpeechQueueSize)

	envString("AVLAB_FEED_ENDPOINT", &c.Feed.Endpoint)
	envInt("AVLAB_FEED_QUEUE_CAPACITY", &c.Feed.QueueCapacity)
	envInt("AVLAB_FEED_MEMORY_CAPACITY", &c.Feed.MemoryCapacity)

	envString("AVLAB_TTS_PROVIDER", &c.TTS.Provider)
	envString("AVLAB_TTS_POLLY_REGION", &c.TTS.Polly.Region)
	envString("AVLAB_TTS_POLLY_VOICE", &c.TTS.Polly.VoiceID)
	envString("AVLAB_TTS_POLLY_ENGINE", &c.TTS.Polly.Engine)
	envString("AVLAB_TTS_ELEVENLABS_API_KEY", &c.TTS.ElevenLabs.APIKey)
	envString("AVLAB_TTS_ELEVENLABS_VOICE_ID", &c.TTS.ElevenLabs.VoiceID)
	envString("AVLAB_TTS_ELEVENLABS_MODEL", &c.TTS.ElevenLabs.ModelID)
}

// Validate checks structural sanity. Whether the LLM endpoint is actually
// reachable or required is decided by the command that needs it.
func (c Config) Validate() error {
	if c.LLM.TimeoutMS < 0 {
		return &fault.ConfigError{Field: "llm.timeout_ms", Detail: "must be >= 0"}
	}
	if c.Director.ChunkThreshold < 0 {
		return &fault.ConfigError{Field: "director.chunk_threshold", Detail: "must be >= 0"}
	}
	if c.Director.MaxPerChunk > 0 && c.Director.MinPerChunk > c.Director.MaxPerChunk {
		return &fault.ConfigError{
			Field:  "director.min_per_chunk",
			Detail: fmt.Sprintf("%d exceeds max_per_chunk %d", c.Director.MinPerChunk, c.Director.MaxPerChunk),
		}
	}
	if c.Director.StageTimeoutMS < 0 || c.Director.RetryBackoffMS < 0 {
		return &fault.ConfigError{Field: "director", Detail: "timeouts must be >= 0"}
	}
	if c.Defaults.Mood != "" && !plan.ValidMood(plan.Mood(c.Defaults.Mood)) {
		return &fault.ConfigError{Field: "defaults.mood", Detail: fmt.Sprintf("unknown mood %q", c.Defaults.Mood)}
	}
	if c.Defaults.View != "" && !plan.ValidView(plan.View(c.Defaults.View)) {
		return &fault.ConfigError{Field: "defaults.view", Detail: fmt.Sprintf("unknown view %q", c.Defaults.View)}
	}
	if c.Defaults.Light != "" && !plan.ValidLight(plan.Light(c.Defaults.Light)) {
		return &fault.ConfigError{Field: "defaults.light", Detail: fmt.Sprintf("unknown light %q", c.Defaults.Light)}
	}
	if c.Engine.TickMS < 0 || c.Engine.SkewToleranceMS < 0 || c.Engine.SpeechQueueSize < 0 {
		return &fault.ConfigError{Field: "engine", Detail: "values must be >= 0"}
	}
	switch strings.ToLower(strings.TrimSpace(c.TTS.Provider)) {
	case "", "none", "polly", "elevenlabs":
	default:
		return &fault.ConfigError{Field: "tts.provider", Detail: fmt.Sprintf("unknown provider %q", c.TTS.Provider)}
	}
	return nil
}

// LLMClientConfig maps the LLM section onto the client's options.
func (c Config) LLMClientConfig() llm.Config {
	return llm.Config{
		BaseURL: c.LLM.BaseURL,
		Model:   c.LLM.Model,
		APIKey:  c.LLM.APIKey,
		Timeout: time.Duration(c.LLM.TimeoutMS) * time.Millisecond,
	}
}

// ChunkerOptions maps the director section onto chunker options.
func (c Config) ChunkerOptions() chunker.Options {
	return chunker.Options{
		MaxPerChunk:         c.Director.MaxPerChunk,
		MinPerChunk:         c.Director.MinPerChunk,
		PreferNaturalBreaks: c.Director.PreferNaturalBreaks,
	}
}

// StageDefaultsValue maps the defaults section onto stage defaults.
func (c Config) StageDefaultsValue() stages.Defaults {
	return stages.Defaults{
		Mood:  plan.Mood(c.Defaults.Mood),
		View:  plan.View(c.Defaults.View),
		Light: plan.Light(c.Defaults.Light),
	}
}

// DirectorOptions bundles the orchestrator options around the supplied
// collaborators.
func (c Config) DirectorOptions(client director.StageClient, log *zap.Logger, f *feed.Feed) director.Options {
	return director.Options{
		Client:           client,
		Logger:           log,
		Feed:             f,
		Chunker:          c.ChunkerOptions(),
		ChunkThreshold:   c.Director.ChunkThreshold,
		StageTimeout:     time.Duration(c.Director.StageTimeoutMS) * time.Millisecond,
		MaxRetries:       c.Director.MaxRetries,
		RetryBackoff:     time.Duration(c.Director.RetryBackoffMS) * time.Millisecond,
		SequentialStages: c.Director.SequentialStages,
	}
}

// FeedOptions maps the feed section onto feed options.
func (c Config) FeedOptions() feed.Options {
	return feed.Options{QueueCapacity: c.Feed.QueueCapacity}
}

func envString(key string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
