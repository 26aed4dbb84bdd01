package contract_test

import (
	"context"
	"testing"

	"github.com/KBLLR/Avatars-Lab-sub000/pkg/avatar"
	ttselevenlabs "github.com/KBLLR/Avatars-Lab-sub000/providers/tts/elevenlabs"
	ttspolly "github.com/KBLLR/Avatars-Lab-sub000/providers/tts/polly"
)

// namedSynthesizer is the surface every TTS provider exposes.
type namedSynthesizer interface {
	avatar.Synthesizer
	ProviderID() string
}

func TestSynthesizerAdapterContract(t *testing.T) {
	t.Parallel()

	adapters := buildSynthesizersForContract(t)
	if len(adapters) < 2 {
		t.Fatalf("expected every TTS provider adapter, got %d", len(adapters))
	}

	seen := map[string]bool{}
	for _, adapter := range adapters {
		adapter := adapter
		id := adapter.ProviderID()
		if id == "" {
			t.Fatal("provider id must be non-empty")
		}
		if seen[id] {
			t.Fatalf("duplicate provider id %s", id)
		}
		seen[id] = true

		t.Run(id, func(t *testing.T) {
			t.Parallel()

			// Blank text must fail before any network work.
			if _, err := adapter.Synthesize(context.Background(), ""); err == nil {
				t.Fatal("expected error for empty text")
			}
			if _, err := adapter.Synthesize(context.Background(), "   \t  "); err == nil {
				t.Fatal("expected error for whitespace-only text")
			}
		})
	}
}

func TestSynthesizerEnvConstructors(t *testing.T) {
	t.Setenv("AVLAB_TTS_ELEVENLABS_API_KEY", "contract-key")
	t.Setenv("AVLAB_TTS_POLLY_REGION", "eu-west-1")

	pollyAdapter, err := ttspolly.NewFromEnv()
	if err != nil {
		t.Fatalf("polly from env: %v", err)
	}
	if pollyAdapter.ProviderID() != ttspolly.ProviderID {
		t.Fatalf("polly provider id = %s", pollyAdapter.ProviderID())
	}

	elevenAdapter, err := ttselevenlabs.NewFromEnv()
	if err != nil {
		t.Fatalf("elevenlabs from env: %v", err)
	}
	if elevenAdapter.ProviderID() != ttselevenlabs.ProviderID {
		t.Fatalf("elevenlabs provider id = %s", elevenAdapter.ProviderID())
	}
}

func buildSynthesizersForContract(t *testing.T) []namedSynthesizer {
	t.Helper()

	pollyAdapter, err := ttspolly.New(ttspolly.Config{Region: "us-east-1"})
	if err != nil {
		t.Fatalf("build polly adapter: %v", err)
	}
	elevenAdapter, err := ttselevenlabs.New(ttselevenlabs.Config{APIKey: "contract-key"})
	if err != nil {
		t.Fatalf("build elevenlabs adapter: %v", err)
	}
	return []namedSynthesizer{pollyAdapter, elevenAdapter}
}
