// Package elevenlabs synthesizes avatar speech with the ElevenLabs
// with-timestamps endpoint. Character alignment folds into word timings;
// ElevenLabs produces no viseme track, so lip sync falls back to the
// word markers.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/KBLLR/Avatars-Lab-sub000/internal/fault"
	"github.com/KBLLR/Avatars-Lab-sub000/pkg/avatar"
)

const ProviderID = "tts-elevenlabs"

const defaultVoiceID = "EXAVITQu4vr4xnSDxMaL"

type Config struct {
	APIKey   string
	Endpoint string
	VoiceID  string
	ModelID  string
	Timeout  time.Duration
}

// Adapter implements avatar.Synthesizer against the ElevenLabs API.
type Adapter struct {
	cfg  Config
	http *http.Client
}

var _ avatar.Synthesizer = (*Adapter)(nil)

func ConfigFromEnv() Config {
	return Config{
		APIKey:   os.Getenv("AVLAB_TTS_ELEVENLABS_API_KEY"),
		Endpoint: defaultString(os.Getenv("AVLAB_TTS_ELEVENLABS_ENDPOINT"), "https://api.elevenlabs.io"),
		VoiceID:  defaultString(os.Getenv("AVLAB_TTS_ELEVENLABS_VOICE_ID"), defaultVoiceID),
		ModelID:  defaultString(os.Getenv("AVLAB_TTS_ELEVENLABS_MODEL"), "eleven_multilingual_v2"),
		Timeout:  15 * time.Second,
	}
}

func New(cfg Config) (*Adapter, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &fault.ConfigError{Field: "api_key", Detail: "elevenlabs api key is required"}
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = "https://api.elevenlabs.io"
	}
	if strings.TrimSpace(cfg.VoiceID) == "" {
		cfg.VoiceID = defaultVoiceID
	}
	if strings.TrimSpace(cfg.ModelID) == "" {
		cfg.ModelID = "eleven_multilingual_v2"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Adapter{cfg: cfg, http: &http.Client{}}, nil
}

func NewFromEnv() (*Adapter, error) {
	return New(ConfigFromEnv())
}

func (a *Adapter) ProviderID() string {
	return ProviderID
}

type alignmentWire struct {
	Characters                []string  `json:"characters"`
	CharacterStartTimesSecond []float64 `json:"character_start_times_seconds"`
	CharacterEndTimesSecond   []float64 `json:"character_end_times_seconds"`
}

type synthesisWire struct {
	AudioBase64 string        `json:"audio_base64"`
	Alignment   alignmentWire `json:"alignment"`
}

// Synthesize renders text to mp3 with word timings derived from the
// character alignment.
func (a *Adapter) Synthesize(ctx context.Context, text string) (avatar.Speech, error) {
	if strings.TrimSpace(text) == "" {
		return avatar.Speech{}, fmt.Errorf("text is required")
	}

	body, err := json.Marshal(map[string]any{
		"text":     text,
		"model_id": a.cfg.ModelID,
	})
	if err != nil {
		return avatar.Speech{}, err
	}

	endpoint := strings.TrimRight(a.cfg.Endpoint, "/") +
		"/v1/text-to-speech/" + a.cfg.VoiceID + "/with-timestamps"

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return avatar.Speech{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("xi-api-key", a.cfg.APIKey)

	resp, err := a.http.Do(httpReq)
	if err != nil {
		return avatar.Speech{}, normalizeTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return avatar.Speech{}, &fault.NetworkError{
			Op:           "synthesize",
			StatusCode:   resp.StatusCode,
			RetryAfterMS: retryAfterMS(resp.Header.Get("Retry-After")),
		}
	}

	var wire synthesisWire
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return avatar.Speech{}, &fault.ParseError{Stage: "elevenlabs", Detail: "malformed synthesis payload", Err: err}
	}

	audio, err := base64.StdEncoding.DecodeString(wire.AudioBase64)
	if err != nil {
		return avatar.Speech{}, &fault.ParseError{Stage: "elevenlabs", Detail: "malformed audio payload", Err: err}
	}
	if len(audio) == 0 {
		return avatar.Speech{}, &fault.ParseError{Stage: "elevenlabs", Detail: "empty audio payload"}
	}

	al := wire.Alignment
	if len(al.Characters) != len(al.CharacterStartTimesSecond) || len(al.Characters) != len(al.CharacterEndTimesSecond) {
		return avatar.Speech{}, &fault.ParseError{
			Stage:  "elevenlabs",
			Detail: fmt.Sprintf("alignment tracks disagree: %d characters, %d starts, %d ends", len(al.Characters), len(al.CharacterStartTimesSecond), len(al.CharacterEndTimesSecond)),
		}
	}

	speech := avatar.Speech{Audio: audio, Format: "mp3"}
	speech.Words, speech.WordStartsMS, speech.WordDurationsMS = alignWords(al)
	if err := speech.Validate(); err != nil {
		return avatar.Speech{}, fmt.Errorf("elevenlabs speech: %w", err)
	}
	return speech, nil
}

// alignWords folds the character alignment into words split on
// whitespace. A word spans from its first character's start to its last
// character's end.
func alignWords(al alignmentWire) ([]string, []int64, []int64) {
	var words []string
	var startsMS, durationsMS []int64

	var cur strings.Builder
	var curStart, curEnd float64
	flush := func() {
		if cur.Len() == 0 {
			return
		}
		s := int64(math.Round(curStart * 1000))
		d := int64(math.Round(curEnd*1000)) - s
		if d < 1 {
			d = 1
		}
		words = append(words, cur.String())
		startsMS = append(startsMS, s)
		durationsMS = append(durationsMS, d)
		cur.Reset()
	}

	for i, c := range al.Characters {
		if strings.TrimSpace(c) == "" {
			flush()
			continue
		}
		if cur.Len() == 0 {
			curStart = al.CharacterStartTimesSecond[i]
		}
		curEnd = al.CharacterEndTimesSecond[i]
		cur.WriteString(c)
	}
	flush()
	return words, startsMS, durationsMS
}

func normalizeTransport(err error) error {
	if errors.Is(err, context.Canceled) {
		return fault.Cancelled(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &fault.NetworkError{Op: "synthesize", Timeout: true, Err: err}
	}
	return &fault.NetworkError{Op: "synthesize", Err: err}
}

func retryAfterMS(header string) int64 {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && secs > 0 {
		return int64(secs) * 1000
	}
	return 0
}

func defaultString(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
