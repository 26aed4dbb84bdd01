// Package llm is a chat-completion HTTP client with incremental SSE
// streaming. It is the only network seam of the director pipeline; every
// failure is normalized into the fault taxonomy before it reaches callers.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/KBLLR/Avatars-Lab-sub000/internal/fault"
)

// Config configures the chat-completion endpoint.
type Config struct {
	BaseURL    string
	Model      string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

const (
	envBaseURL   = "AVLAB_LLM_BASE_URL"
	envModel     = "AVLAB_LLM_MODEL"
	envAPIKey    = "AVLAB_LLM_API_KEY"
	envTimeoutMS = "AVLAB_LLM_TIMEOUT_MS"

	defaultTimeout = 30 * time.Second
	errorBodyLimit = 8192
)

// ConfigFromEnv builds a Config from AVLAB_LLM_* variables.
func ConfigFromEnv() Config {
	cfg := Config{
		BaseURL: strings.TrimSpace(os.Getenv(envBaseURL)),
		Model:   strings.TrimSpace(os.Getenv(envModel)),
		APIKey:  strings.TrimSpace(os.Getenv(envAPIKey)),
		Timeout: defaultTimeout,
	}
	if raw := strings.TrimSpace(os.Getenv(envTimeoutMS)); raw != "" {
		if ms, err := strconv.Atoi(raw); err == nil && ms > 0 {
			cfg.Timeout = time.Duration(ms) * time.Millisecond
		}
	}
	return cfg
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	return c
}

// Client calls one chat-completion endpoint.
type Client struct {
	cfg Config
}

// New validates the configuration and constructs a client. A missing base
// URL or model is a configuration error surfaced here, before any request.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, &fault.ConfigError{Field: "llm.base_url", Detail: "is required"}
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, &fault.ConfigError{Field: "llm.model", Detail: "is required"}
	}
	return &Client{cfg: cfg.withDefaults()}, nil
}

// Model reports the configured model id.
func (c *Client) Model() string { return c.cfg.Model }

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Tool declares a callable function with a JSON schema for its arguments.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Request is one completion call.
type Request struct {
	Messages    []Message
	Tools       []Tool
	ToolChoice  string
	Temperature *float64
	MaxTokens   int
}

// ToolCall is one function invocation requested by the model, with its
// raw JSON argument payload.
type ToolCall struct {
	Name      string
	Arguments string
}

// Response is the assembled completion.
type Response struct {
	Content      string
	Reasoning    string
	ToolCalls    []ToolCall
	FinishReason string
}

// Delta is one streamed increment.
type Delta struct {
	Content   string
	Reasoning string
}

type wireTool struct {
	Type     string `json:"type"`
	Function Tool   `json:"function"`
}

type wireRequest struct {
	Model       string     `json:"model"`
	Messages    []Message  `json:"messages"`
	Tools       []wireTool `json:"tools,omitempty"`
	ToolChoice  any        `json:"tool_choice,omitempty"`
	Temperature *float64   `json:"temperature,omitempty"`
	MaxTokens   int        `json:"max_tokens,omitempty"`
	Stream      bool       `json:"stream,omitempty"`
}

type wireToolCall struct {
	Index    int `json:"index"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireMessage struct {
	Content          string         `json:"content"`
	ReasoningContent string         `json:"reasoning_content"`
	ToolCalls        []wireToolCall `json:"tool_calls"`
}

type wireChoice struct {
	Message      wireMessage `json:"message"`
	Delta        wireMessage `json:"delta"`
	FinishReason string      `json:"finish_reason"`
}

type wireResponse struct {
	Choices []wireChoice `json:"choices"`
}

func assembleToolCalls(in []wireToolCall) []ToolCall {
	if len(in) == 0 {
		return nil
	}
	out := make([]ToolCall, 0, len(in))
	for _, tc := range in {
		out = append(out, ToolCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments})
	}
	return out
}

func (c *Client) buildWire(req Request, stream bool) wireRequest {
	wire := wireRequest{
		Model:       c.cfg.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      stream,
	}
	for _, t := range req.Tools {
		wire.Tools = append(wire.Tools, wireTool{Type: "function", Function: t})
	}
	if req.ToolChoice != "" {
		wire.ToolChoice = map[string]any{
			"type":     "function",
			"function": map[string]string{"name": req.ToolChoice},
		}
	}
	return wire
}

func (c *Client) post(ctx context.Context, op string, wire wireRequest) (*http.Response, error) {
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if wire.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, normalizeTransport(op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, normalizeStatus(op, resp)
	}
	return resp, nil
}

// Complete performs one unary completion call.
func (c *Client) Complete(ctx context.Context, req Request) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.post(ctx, "complete", c.buildWire(req, false))
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Response{}, normalizeTransport("complete", ctxErr)
		}
		return Response{}, &fault.ParseError{Stage: "complete", Detail: "malformed response body", Err: err}
	}
	if len(wire.Choices) == 0 {
		return Response{}, &fault.ParseError{Stage: "complete", Detail: "response has no choices"}
	}

	choice := wire.Choices[0]
	out := Response{
		Content:      choice.Message.Content,
		Reasoning:    choice.Message.ReasoningContent,
		FinishReason: choice.FinishReason,
	}
	out.ToolCalls = assembleToolCalls(choice.Message.ToolCalls)
	return out, nil
}

// Stream performs a streaming completion, invoking onDelta for every
// increment, and returns the fully assembled response. onDelta may be nil.
func (c *Client) Stream(ctx context.Context, req Request, onDelta func(Delta)) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.post(ctx, "stream", c.buildWire(req, true))
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	var (
		content   strings.Builder
		reasoning strings.Builder
		finish    string
		calls     = map[int]*ToolCall{}
	)

	err = parseSSE(resp.Body, func(ev sseEvent) error {
		data := strings.TrimSpace(ev.Data)
		if data == "" || data == "[DONE]" {
			return nil
		}
		var chunk wireResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return &fault.ParseError{Stage: "stream", Detail: "malformed stream chunk", Err: err}
		}
		for _, choice := range chunk.Choices {
			if choice.FinishReason != "" {
				finish = choice.FinishReason
			}
			d := choice.Delta
			if d.Content != "" {
				content.WriteString(d.Content)
			}
			if d.ReasoningContent != "" {
				reasoning.WriteString(d.ReasoningContent)
			}
			for _, tc := range d.ToolCalls {
				call := calls[tc.Index]
				if call == nil {
					call = &ToolCall{}
					calls[tc.Index] = call
				}
				if tc.Function.Name != "" {
					call.Name = tc.Function.Name
				}
				call.Arguments += tc.Function.Arguments
			}
			if (d.Content != "" || d.ReasoningContent != "") && onDelta != nil {
				onDelta(Delta{Content: d.Content, Reasoning: d.ReasoningContent})
			}
		}
		return nil
	})
	if err != nil {
		var pe *fault.ParseError
		if errors.As(err, &pe) {
			return Response{}, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Response{}, normalizeTransport("stream", ctxErr)
		}
		return Response{}, normalizeTransport("stream", err)
	}

	out := Response{
		Content:      content.String(),
		Reasoning:    reasoning.String(),
		FinishReason: finish,
	}
	indexes := make([]int, 0, len(calls))
	for i := range calls {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	for _, i := range indexes {
		out.ToolCalls = append(out.ToolCalls, *calls[i])
	}
	return out, nil
}
