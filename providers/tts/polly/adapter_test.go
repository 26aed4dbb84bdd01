package polly

import (
	"context"
	"errors"
	"testing"

	pollysdk "github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"

	"github.com/KBLLR/Avatars-Lab-sub000/internal/fault"
)

const markFixture = `{"time":0,"type":"viseme","value":"p"}
{"time":5,"type":"word","start":0,"end":5,"value":"hello"}
{"time":120,"type":"viseme","value":"E"}
{"time":300,"type":"word","start":6,"end":11,"value":"world"}
{"time":420,"type":"viseme","value":"sil"}
`

type fakePollyClient struct {
	audio    string
	marks    string
	audioErr error
	marksErr error
	formats  []pollytypes.OutputFormat
	markReqs []pollytypes.SpeechMarkType
}

func (f *fakePollyClient) SynthesizeSpeech(ctx context.Context, params *pollysdk.SynthesizeSpeechInput, optFns ...func(*pollysdk.Options)) (*pollysdk.SynthesizeSpeechOutput, error) {
	f.formats = append(f.formats, params.OutputFormat)
	switch params.OutputFormat {
	case pollytypes.OutputFormatJson:
		f.markReqs = params.SpeechMarkTypes
		if f.marksErr != nil {
			return nil, f.marksErr
		}
		return &pollysdk.SynthesizeSpeechOutput{AudioStream: NewTestAudioStream(f.marks)}, nil
	default:
		if f.audioErr != nil {
			return nil, f.audioErr
		}
		return &pollysdk.SynthesizeSpeechOutput{AudioStream: NewTestAudioStream(f.audio)}, nil
	}
}

type fakeAPIError struct {
	code string
	msg  string
}

func (e fakeAPIError) Error() string                 { return e.code + ": " + e.msg }
func (e fakeAPIError) ErrorCode() string             { return e.code }
func (e fakeAPIError) ErrorMessage() string          { return e.msg }
func (e fakeAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultServer }

var _ smithy.APIError = fakeAPIError{}

func TestSynthesizeBuildsAlignedTracks(t *testing.T) {
	t.Parallel()

	client := &fakePollyClient{audio: "mp3-bytes", marks: markFixture}
	adapter, err := NewWithClient(Config{}, client)
	if err != nil {
		t.Fatalf("NewWithClient: %v", err)
	}

	speech, err := adapter.Synthesize(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if speech.Format != "mp3" || string(speech.Audio) != "mp3-bytes" {
		t.Fatalf("audio = %q format = %q", speech.Audio, speech.Format)
	}

	wantWords := []string{"hello", "world"}
	if len(speech.Words) != 2 || speech.Words[0] != wantWords[0] || speech.Words[1] != wantWords[1] {
		t.Fatalf("words = %v, want %v", speech.Words, wantWords)
	}
	if speech.WordStartsMS[0] != 5 || speech.WordStartsMS[1] != 300 {
		t.Fatalf("word starts = %v", speech.WordStartsMS)
	}
	if speech.WordDurationsMS[0] != 295 || speech.WordDurationsMS[1] != wordTailMS {
		t.Fatalf("word durations = %v", speech.WordDurationsMS)
	}

	wantVisemes := []string{"PP", "E", "sil"}
	for i, v := range wantVisemes {
		if speech.Visemes[i] != v {
			t.Fatalf("visemes = %v, want %v", speech.Visemes, wantVisemes)
		}
	}
	if speech.VisemeDurationsMS[0] != 120 || speech.VisemeDurationsMS[2] != visemeTailMS {
		t.Fatalf("viseme durations = %v", speech.VisemeDurationsMS)
	}

	if len(client.formats) != 2 || client.formats[0] != pollytypes.OutputFormatMp3 || client.formats[1] != pollytypes.OutputFormatJson {
		t.Fatalf("call formats = %v", client.formats)
	}
	if len(client.markReqs) != 2 {
		t.Fatalf("mark types = %v, want word and viseme", client.markReqs)
	}
}

func TestSynthesizeErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		err   error
		check func(t *testing.T, err error)
	}{
		{
			name: "timeout",
			err:  context.DeadlineExceeded,
			check: func(t *testing.T, err error) {
				var ne *fault.NetworkError
				if !errors.As(err, &ne) || !ne.Timeout {
					t.Fatalf("err = %v, want timeout network error", err)
				}
				if !fault.Retryable(err) {
					t.Fatal("timeout must be retryable")
				}
			},
		},
		{
			name: "overload",
			err:  fakeAPIError{code: "TooManyRequestsException", msg: "rate"},
			check: func(t *testing.T, err error) {
				var ne *fault.NetworkError
				if !errors.As(err, &ne) || ne.StatusCode != 429 {
					t.Fatalf("err = %v, want 429 network error", err)
				}
				if got := fault.RetryAfterMS(err); got != 500 {
					t.Fatalf("retry after = %d, want 500", got)
				}
			},
		},
		{
			name: "client error",
			err:  fakeAPIError{code: "TextLengthExceededException", msg: "too long"},
			check: func(t *testing.T, err error) {
				var ne *fault.NetworkError
				if !errors.As(err, &ne) || ne.StatusCode != 400 {
					t.Fatalf("err = %v, want 400 network error", err)
				}
				if fault.Retryable(err) {
					t.Fatal("client error must not be retryable")
				}
			},
		},
		{
			name: "transport",
			err:  errors.New("tcp reset"),
			check: func(t *testing.T, err error) {
				if !fault.Retryable(err) {
					t.Fatalf("err = %v, want retryable transport error", err)
				}
			},
		},
		{
			name: "cancelled",
			err:  context.Canceled,
			check: func(t *testing.T, err error) {
				if !fault.IsCancellation(err) {
					t.Fatalf("err = %v, want cancellation", err)
				}
			},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			adapter, err := NewWithClient(Config{}, &fakePollyClient{audioErr: tc.err})
			if err != nil {
				t.Fatalf("NewWithClient: %v", err)
			}
			_, err = adapter.Synthesize(context.Background(), "hello")
			if err == nil {
				t.Fatal("expected an error")
			}
			tc.check(t, err)
		})
	}
}

func TestSynthesizeRejectsEmptyText(t *testing.T) {
	t.Parallel()

	adapter, err := NewWithClient(Config{}, &fakePollyClient{})
	if err != nil {
		t.Fatalf("NewWithClient: %v", err)
	}
	if _, err := adapter.Synthesize(context.Background(), "   "); err == nil {
		t.Fatal("expected error for blank text")
	}
}

func TestSynthesizeRejectsMalformedMarks(t *testing.T) {
	t.Parallel()

	adapter, err := NewWithClient(Config{}, &fakePollyClient{audio: "mp3", marks: "{broken"})
	if err != nil {
		t.Fatalf("NewWithClient: %v", err)
	}
	_, err = adapter.Synthesize(context.Background(), "hello")
	var pe *fault.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want parse error", err)
	}
}

func TestMapVisemeDefaultsToSilence(t *testing.T) {
	t.Parallel()

	if got := mapViseme("zz"); got != "sil" {
		t.Fatalf("mapViseme(zz) = %q, want sil", got)
	}
	if got := mapViseme("p"); got != "PP" {
		t.Fatalf("mapViseme(p) = %q, want PP", got)
	}
}
