// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package anthropic implements the Anthropic-style adapter over the messages
// API. There is no image generation path.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"resty.dev/v3"

	"github.com/jeranaias/sheetmate/internal/content"
	"github.com/jeranaias/sheetmate/internal/llm"
	"github.com/jeranaias/sheetmate/internal/model"
	"github.com/jeranaias/sheetmate/internal/provider"
)

const (
	// DefaultBaseURL is the public API root.
	DefaultBaseURL = "https://api.anthropic.com/v1"

	// DefaultVersion is sent as the anthropic-version header.
	DefaultVersion = "2023-06-01"

	// DefaultMaxTokens bounds every completion; the API requires a value.
	DefaultMaxTokens = 4096

	// ProbeModel is the cheapest model used to test a key.
	ProbeModel = "claude-3-haiku-20240307"
)

// Adapter talks to the messages API.
type Adapter struct {
	client    *resty.Client
	baseURL   string
	version   string
	maxTokens int
	log       zerolog.Logger
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithBaseURL overrides DefaultBaseURL.
func WithBaseURL(url string) Option {
	return func(a *Adapter) {
		if url != "" {
			a.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithVersion overrides DefaultVersion.
func WithVersion(v string) Option {
	return func(a *Adapter) {
		if v != "" {
			a.version = v
		}
	}
}

// WithMaxTokens overrides DefaultMaxTokens.
func WithMaxTokens(n int) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.maxTokens = n
		}
	}
}

// New creates an adapter sending through client.
func New(client *resty.Client, log zerolog.Logger, opts ...Option) *Adapter {
	a := &Adapter{
		client:    client,
		baseURL:   DefaultBaseURL,
		version:   DefaultVersion,
		maxTokens: DefaultMaxTokens,
		log:       log,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Provider implements llm.Adapter.
func (a *Adapter) Provider() provider.ID {
	return provider.Claude
}

// =============================================================================
// WIRE TYPES
// =============================================================================

// Message is one entry of the messages list.
type Message struct {
	Role    string                   `json:"role"`
	Content content.AnthropicContent `json:"content"`
}

// Request is the messages API request body.
type Request struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
	Stream    bool      `json:"stream,omitempty"`
}

type response struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type streamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// BuildMessages maps history roles onto user/assistant and appends the new
// user message. The system prompt travels separately.
func BuildMessages(req llm.ChatRequest) []Message {
	msgs := make([]Message, 0, len(req.History)+1)
	for _, m := range req.History {
		role := "user"
		if m.Role == model.RoleAssistant {
			role = "assistant"
		}
		msgs = append(msgs, Message{Role: role, Content: content.EncodeAnthropic(m.Text, m.Attachments)})
	}
	return append(msgs, Message{Role: "user", Content: content.EncodeAnthropic(req.Text, req.Attachments)})
}

func (a *Adapter) request(ctx context.Context, apiKey string) *resty.Request {
	return a.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("x-api-key", apiKey).
		SetHeader("anthropic-version", a.version)
}

func (a *Adapter) send(ctx context.Context, apiKey string, body Request, out any) error {
	r := a.request(ctx, apiKey).SetBody(body)
	return llm.SendJSON(provider.Claude, r, http.MethodPost, llm.JoinURL(a.baseURL, "/messages"), out)
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// StreamChat implements llm.Adapter.
func (a *Adapter) StreamChat(ctx context.Context, req llm.ChatRequest, onDelta llm.DeltaFunc) (string, error) {
	body := Request{
		Model:     req.Model,
		MaxTokens: a.maxTokens,
		System:    req.System,
		Messages:  BuildMessages(req),
		Stream:    true,
	}

	open := func(ctx context.Context) (io.ReadCloser, error) {
		r := a.request(ctx, req.APIKey).
			SetHeader("Accept", "text/event-stream").
			SetHeader("Accept-Encoding", "identity").
			SetBody(body)
		return llm.Send(provider.Claude, r, http.MethodPost, llm.JoinURL(a.baseURL, "/messages"))
	}

	text, stats, err := llm.RunStream(ctx, open, ParseFrame, onDelta, req.Observer)
	a.log.Debug().
		Str("provider", string(provider.Claude)).
		Str("model", req.Model).
		Str("state", stats.State.String()).
		Int("chunks", stats.Chunks).
		Int("skipped", stats.SkippedChunks).
		Dur("ttft", stats.TTFT).
		Msg("stream finished")
	return text, err
}

// ParseFrame reads one messages-API event. Only content_block_delta carries
// text; message_stop ends the stream; an error event fails it.
func ParseFrame(_ string, data []byte) (llm.Frame, error) {
	var ev streamEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return llm.Frame{}, fmt.Errorf("%w: %v", llm.ErrMalformedChunk, err)
	}
	switch ev.Type {
	case "content_block_delta":
		return llm.Frame{Text: ev.Delta.Text}, nil
	case "message_stop":
		return llm.Frame{Done: true}, nil
	case "error":
		return llm.Frame{}, &llm.UpstreamError{
			Provider: provider.Claude,
			Type:     ev.Error.Type,
			Message:  ev.Error.Message,
		}
	default:
		return llm.Frame{}, nil
	}
}

// =============================================================================
// STRUCTURED OUTPUT
// =============================================================================

// GenerateStructured implements llm.Adapter. The messages API has no JSON
// mode, so the reply text is returned for the caller to parse.
func (a *Adapter) GenerateStructured(ctx context.Context, req llm.StructuredRequest) (string, error) {
	body := Request{
		Model:     req.Model,
		MaxTokens: a.maxTokens,
		System:    req.System,
		Messages:  []Message{{Role: "user", Content: content.EncodeAnthropic(req.Text, nil)}},
	}
	var resp response
	if err := a.send(ctx, req.APIKey, body, &resp); err != nil {
		return "", err
	}
	if len(resp.Content) == 0 {
		return "", fmt.Errorf("%w: content[0].text", llm.ErrMissingField)
	}
	return resp.Content[0].Text, nil
}

// =============================================================================
// PROBES
// =============================================================================

// TestKey implements llm.Prober with a one-token completion.
func (a *Adapter) TestKey(ctx context.Context, apiKey string) error {
	return a.Ping(ctx, apiKey, ProbeModel)
}

// Ping implements llm.Prober.
func (a *Adapter) Ping(ctx context.Context, apiKey, modelID string) error {
	prompt := llm.ProbePrompt
	maxTokens := 10
	if modelID == ProbeModel {
		prompt, maxTokens = "Hi", 1
	}
	body := Request{
		Model:     modelID,
		MaxTokens: maxTokens,
		Messages:  []Message{{Role: "user", Content: content.EncodeAnthropic(prompt, nil)}},
	}
	return a.send(ctx, apiKey, body, nil)
}
