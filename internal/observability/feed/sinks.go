package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/KBLLR/Avatars-Lab-sub000/api/progress"
)

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(context.Context, progress.Event) error

func (fn SinkFunc) Export(ctx context.Context, ev progress.Event) error {
	return fn(ctx, ev)
}

// CallbackSink forwards events to fn on the feed's export goroutine. The
// function runs off the caller's hot path but still inside the feed's
// export budget, so it must not block.
func CallbackSink(fn func(progress.Event)) Sink {
	return SinkFunc(func(_ context.Context, ev progress.Event) error {
		fn(ev)
		return nil
	})
}

// MemorySink retains the most recent events up to a fixed capacity. Used by
// tests and the CLI's run summaries.
type MemorySink struct {
	mu       sync.Mutex
	capacity int
	events   []progress.Event
	evicted  uint64
}

// NewMemorySink creates a bounded in-memory sink. Capacity below 1 defaults
// to 512.
func NewMemorySink(capacity int) *MemorySink {
	if capacity < 1 {
		capacity = 512
	}
	return &MemorySink{capacity: capacity}
}

func (s *MemorySink) Export(_ context.Context, ev progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) >= s.capacity {
		s.events = s.events[1:]
		s.evicted++
	}
	s.events = append(s.events, ev)
	return nil
}

// Events returns a snapshot of retained events in arrival order.
func (s *MemorySink) Events() []progress.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]progress.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Evicted reports how many events were pushed out by the capacity bound.
func (s *MemorySink) Evicted() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evicted
}

// HTTPSinkConfig defines progress export over HTTP.
type HTTPSinkConfig struct {
	Endpoint string
	Client   *http.Client
}

// HTTPSink posts each event as JSON to a webhook-style endpoint, typically
// a review UI following a run.
type HTTPSink struct {
	endpoint string
	client   *http.Client
}

// NewHTTPSink validates the endpoint and creates the sink.
func NewHTTPSink(cfg HTTPSinkConfig) (*HTTPSink, error) {
	raw := strings.TrimSpace(cfg.Endpoint)
	if raw == "" {
		return nil, fmt.Errorf("progress endpoint is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse progress endpoint: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("progress endpoint must include scheme and host")
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPSink{endpoint: parsed.String(), client: client}, nil
}

func (s *HTTPSink) Export(ctx context.Context, ev progress.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal progress event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build progress request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("progress export request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("progress export status %d", resp.StatusCode)
	}
	return nil
}
