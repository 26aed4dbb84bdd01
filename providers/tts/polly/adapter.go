// Package polly synthesizes avatar speech with Amazon Polly. Every
// synthesis makes two calls: one for mp3 audio and one for word and
// viseme speech marks, which become the lip-sync tracks.
package polly

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"

	"github.com/KBLLR/Avatars-Lab-sub000/internal/fault"
	"github.com/KBLLR/Avatars-Lab-sub000/pkg/avatar"
)

const ProviderID = "tts-amazon-polly"

// Final marks carry no end time; close them with a fixed tail.
const (
	wordTailMS   = 300
	visemeTailMS = 120
)

type synthClient interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

type Config struct {
	Region  string
	VoiceID string
	Engine  string
	Timeout time.Duration
}

// Adapter implements avatar.Synthesizer on top of Amazon Polly.
type Adapter struct {
	mu     sync.Mutex
	client synthClient
	cfg    Config
}

var _ avatar.Synthesizer = (*Adapter)(nil)

func ConfigFromEnv() Config {
	return Config{
		Region:  defaultString(os.Getenv("AVLAB_TTS_POLLY_REGION"), defaultString(os.Getenv("AWS_REGION"), "us-east-1")),
		VoiceID: defaultString(os.Getenv("AVLAB_TTS_POLLY_VOICE"), "Joanna"),
		Engine:  defaultString(os.Getenv("AVLAB_TTS_POLLY_ENGINE"), "neural"),
		Timeout: 15 * time.Second,
	}
}

func New(cfg Config) (*Adapter, error) {
	return NewWithClient(cfg, nil)
}

func NewWithClient(cfg Config, client synthClient) (*Adapter, error) {
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-east-1"
	}
	if strings.TrimSpace(cfg.VoiceID) == "" {
		cfg.VoiceID = "Joanna"
	}
	if strings.TrimSpace(cfg.Engine) == "" {
		cfg.Engine = "neural"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Adapter{client: client, cfg: cfg}, nil
}

func NewFromEnv() (*Adapter, error) {
	return New(ConfigFromEnv())
}

func (a *Adapter) ProviderID() string {
	return ProviderID
}

// Synthesize renders text to mp3 plus aligned word and viseme tracks.
func (a *Adapter) Synthesize(ctx context.Context, text string) (avatar.Speech, error) {
	if strings.TrimSpace(text) == "" {
		return avatar.Speech{}, fmt.Errorf("text is required")
	}
	client, err := a.resolveClient()
	if err != nil {
		return avatar.Speech{}, err
	}

	engine := pollytypes.EngineStandard
	if strings.EqualFold(a.cfg.Engine, "neural") {
		engine = pollytypes.EngineNeural
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	audio, err := a.fetchAudio(ctx, client, engine, text)
	if err != nil {
		return avatar.Speech{}, err
	}
	marks, err := a.fetchMarks(ctx, client, engine, text)
	if err != nil {
		return avatar.Speech{}, err
	}

	speech := assembleSpeech(audio, marks)
	if err := speech.Validate(); err != nil {
		return avatar.Speech{}, fmt.Errorf("polly speech: %w", err)
	}
	return speech, nil
}

func (a *Adapter) fetchAudio(ctx context.Context, client synthClient, engine pollytypes.Engine, text string) ([]byte, error) {
	output, err := client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Engine:       engine,
		OutputFormat: pollytypes.OutputFormatMp3,
		Text:         &text,
		TextType:     pollytypes.TextTypeText,
		VoiceId:      pollytypes.VoiceId(a.cfg.VoiceID),
	})
	if err != nil {
		return nil, normalizeError("synthesize audio", err)
	}
	if output == nil || output.AudioStream == nil {
		return nil, &fault.NetworkError{Op: "synthesize audio", Err: errors.New("empty audio stream")}
	}
	defer output.AudioStream.Close()

	audio, err := io.ReadAll(output.AudioStream)
	if err != nil {
		return nil, normalizeError("read audio", err)
	}
	if len(audio) == 0 {
		return nil, &fault.NetworkError{Op: "read audio", Err: errors.New("empty audio stream")}
	}
	return audio, nil
}

func (a *Adapter) fetchMarks(ctx context.Context, client synthClient, engine pollytypes.Engine, text string) ([]speechMark, error) {
	output, err := client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Engine:          engine,
		OutputFormat:    pollytypes.OutputFormatJson,
		SpeechMarkTypes: []pollytypes.SpeechMarkType{pollytypes.SpeechMarkTypeWord, pollytypes.SpeechMarkTypeViseme},
		Text:            &text,
		TextType:        pollytypes.TextTypeText,
		VoiceId:         pollytypes.VoiceId(a.cfg.VoiceID),
	})
	if err != nil {
		return nil, normalizeError("synthesize marks", err)
	}
	if output == nil || output.AudioStream == nil {
		return nil, &fault.NetworkError{Op: "synthesize marks", Err: errors.New("empty mark stream")}
	}
	defer output.AudioStream.Close()
	return parseMarks(output.AudioStream)
}

// speechMark is one line of Polly's NDJSON speech-mark output.
type speechMark struct {
	TimeMS int64  `json:"time"`
	Type   string `json:"type"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Value  string `json:"value"`
}

func parseMarks(r io.Reader) ([]speechMark, error) {
	var out []speechMark
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var m speechMark
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			return nil, &fault.ParseError{Stage: "polly marks", Detail: "malformed speech mark line", Err: err}
		}
		out = append(out, m)
	}
	if err := sc.Err(); err != nil {
		return nil, normalizeError("read marks", err)
	}
	return out, nil
}

func assembleSpeech(audio []byte, marks []speechMark) avatar.Speech {
	speech := avatar.Speech{Audio: audio, Format: "mp3"}

	var wordTimes, visemeTimes []int64
	for _, m := range marks {
		switch m.Type {
		case "word":
			speech.Words = append(speech.Words, m.Value)
			wordTimes = append(wordTimes, m.TimeMS)
		case "viseme":
			speech.Visemes = append(speech.Visemes, mapViseme(m.Value))
			visemeTimes = append(visemeTimes, m.TimeMS)
		}
	}
	speech.WordStartsMS = wordTimes
	speech.WordDurationsMS = closeDurations(wordTimes, wordTailMS)
	speech.VisemeStartsMS = visemeTimes
	speech.VisemeDurationsMS = closeDurations(visemeTimes, visemeTailMS)
	return speech
}

// closeDurations derives per-mark durations from successive start times.
// The last mark gets the tail.
func closeDurations(starts []int64, tailMS int64) []int64 {
	if len(starts) == 0 {
		return nil
	}
	out := make([]int64, len(starts))
	for i := range starts {
		if i == len(starts)-1 {
			out[i] = tailMS
			continue
		}
		d := starts[i+1] - starts[i]
		if d < 1 {
			d = 1
		}
		out[i] = d
	}
	return out
}

// visemeMap translates Polly viseme codes to the Oculus ids the avatar
// runtime blends. Polly has no nasal viseme; nn never appears here.
var visemeMap = map[string]string{
	"p":   "PP",
	"f":   "FF",
	"T":   "TH",
	"t":   "DD",
	"S":   "CH",
	"s":   "SS",
	"r":   "RR",
	"k":   "kk",
	"i":   "I",
	"e":   "E",
	"E":   "E",
	"a":   "aa",
	"o":   "O",
	"O":   "O",
	"u":   "U",
	"@":   "E",
	"sil": "sil",
}

func mapViseme(code string) string {
	if v, ok := visemeMap[code]; ok {
		return v
	}
	return "sil"
}

func normalizeError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fault.Cancelled(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &fault.NetworkError{Op: op, Timeout: true, Err: err}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "TooManyRequestsException":
			return &fault.NetworkError{Op: op, StatusCode: 429, RetryAfterMS: 500, Err: err}
		case "InvalidSsmlException", "TextLengthExceededException", "LexiconNotFoundException", "MarksNotSupportedForFormatException", "InvalidSampleRateException":
			return &fault.NetworkError{Op: op, StatusCode: 400, Err: err}
		default:
			return &fault.NetworkError{Op: op, StatusCode: 500, Err: err}
		}
	}
	return &fault.NetworkError{Op: op, Err: err}
}

func defaultString(v string, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func (a *Adapter) resolveClient() (synthClient, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		return a.client, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(a.cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	a.client = polly.NewFromConfig(awsCfg)
	return a.client, nil
}

// NewTestAudioStream creates an in-memory stream for adapter tests.
func NewTestAudioStream(payload string) io.ReadCloser {
	return io.NopCloser(bytes.NewReader([]byte(payload)))
}
