package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/KBLLR/Avatars-Lab-sub000/internal/fault"
)

func alignmentFixture() synthesisWire {
	return synthesisWire{
		AudioBase64: base64.StdEncoding.EncodeToString([]byte("mp3-bytes")),
		Alignment: alignmentWire{
			Characters:                []string{"h", "i", " ", "y", "o"},
			CharacterStartTimesSecond: []float64{0, 0.08, 0.16, 0.2, 0.3},
			CharacterEndTimesSecond:   []float64{0.08, 0.16, 0.2, 0.3, 0.42},
		},
	}
}

func newTestAdapter(t *testing.T, endpoint string) *Adapter {
	t.Helper()
	adapter, err := New(Config{APIKey: "test-key", Endpoint: endpoint, VoiceID: "voice-1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return adapter
}

func TestSynthesizeAlignsWords(t *testing.T) {
	t.Parallel()

	var gotPath, gotKey string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("xi-api-key")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(alignmentFixture())
	}))
	defer server.Close()

	adapter := newTestAdapter(t, server.URL)
	speech, err := adapter.Synthesize(context.Background(), "hi yo")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if gotPath != "/v1/text-to-speech/voice-1/with-timestamps" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Fatalf("xi-api-key = %q", gotKey)
	}
	if gotBody["text"] != "hi yo" || gotBody["model_id"] != "eleven_multilingual_v2" {
		t.Fatalf("request body = %v", gotBody)
	}

	if string(speech.Audio) != "mp3-bytes" || speech.Format != "mp3" {
		t.Fatalf("audio = %q format = %q", speech.Audio, speech.Format)
	}
	if len(speech.Words) != 2 || speech.Words[0] != "hi" || speech.Words[1] != "yo" {
		t.Fatalf("words = %v", speech.Words)
	}
	if speech.WordStartsMS[0] != 0 || speech.WordStartsMS[1] != 200 {
		t.Fatalf("word starts = %v", speech.WordStartsMS)
	}
	if speech.WordDurationsMS[0] != 160 || speech.WordDurationsMS[1] != 220 {
		t.Fatalf("word durations = %v", speech.WordDurationsMS)
	}
	if len(speech.Visemes) != 0 {
		t.Fatalf("visemes = %v, want none", speech.Visemes)
	}
}

func TestSynthesizeStatusMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		status     int
		retryAfter string
		check      func(t *testing.T, err error)
	}{
		{
			name:       "overload",
			status:     http.StatusTooManyRequests,
			retryAfter: "2",
			check: func(t *testing.T, err error) {
				var ne *fault.NetworkError
				if !errors.As(err, &ne) || ne.StatusCode != 429 {
					t.Fatalf("err = %v, want 429", err)
				}
				if got := fault.RetryAfterMS(err); got != 2000 {
					t.Fatalf("retry after = %d, want 2000", got)
				}
			},
		},
		{
			name:   "auth",
			status: http.StatusUnauthorized,
			check: func(t *testing.T, err error) {
				if fault.Retryable(err) {
					t.Fatalf("err = %v must not be retryable", err)
				}
			},
		},
		{
			name:   "server",
			status: http.StatusServiceUnavailable,
			check: func(t *testing.T, err error) {
				if !fault.Retryable(err) {
					t.Fatalf("err = %v must be retryable", err)
				}
			},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tc.retryAfter != "" {
					w.Header().Set("Retry-After", tc.retryAfter)
				}
				w.WriteHeader(tc.status)
				fmt.Fprint(w, "upstream unhappy")
			}))
			defer server.Close()

			adapter := newTestAdapter(t, server.URL)
			_, err := adapter.Synthesize(context.Background(), "hello")
			if err == nil {
				t.Fatal("expected an error")
			}
			tc.check(t, err)
		})
	}
}

func TestSynthesizeRejectsBadPayloads(t *testing.T) {
	t.Parallel()

	misaligned := alignmentFixture()
	misaligned.Alignment.CharacterEndTimesSecond = misaligned.Alignment.CharacterEndTimesSecond[:3]

	badAudio := alignmentFixture()
	badAudio.AudioBase64 = "not base64!"

	tests := []struct {
		name string
		body synthesisWire
	}{
		{name: "misaligned tracks", body: misaligned},
		{name: "bad audio", body: badAudio},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(tc.body)
			}))
			defer server.Close()

			adapter := newTestAdapter(t, server.URL)
			_, err := adapter.Synthesize(context.Background(), "hello")
			var pe *fault.ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("err = %v, want parse error", err)
			}
		})
	}
}

func TestSynthesizeCancelled(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(alignmentFixture())
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	adapter := newTestAdapter(t, server.URL)
	_, err := adapter.Synthesize(ctx, "hello")
	if !fault.IsCancellation(err) {
		t.Fatalf("err = %v, want cancellation", err)
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	var ce *fault.ConfigError
	if !errors.As(err, &ce) || ce.Field != "api_key" {
		t.Fatalf("err = %v, want api_key config error", err)
	}
}
