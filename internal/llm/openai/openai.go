// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package openai implements the OpenAI-style adapter: chat completions over
// SSE, JSON response format for structured output, image generation and a
// models-list key probe.
package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"resty.dev/v3"

	"github.com/jeranaias/sheetmate/internal/content"
	"github.com/jeranaias/sheetmate/internal/llm"
	"github.com/jeranaias/sheetmate/internal/model"
	"github.com/jeranaias/sheetmate/internal/provider"
)

const (
	// DefaultBaseURL is the public API root.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultImageSize is requested for every generated image.
	DefaultImageSize = openai.CreateImageSize1024x1024

	probeMaxTokens = 16
)

// Adapter talks to an OpenAI-compatible endpoint.
type Adapter struct {
	client  *resty.Client
	baseURL string
	log     zerolog.Logger
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

// New creates an adapter sending through client.
func New(client *resty.Client, log zerolog.Logger, opts ...Option) *Adapter {
	a := &Adapter{client: client, baseURL: DefaultBaseURL, log: log}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Provider implements llm.Adapter.
func (a *Adapter) Provider() provider.ID {
	return provider.OpenAI
}

func (a *Adapter) request(ctx context.Context, apiKey string) *resty.Request {
	return a.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "Bearer "+apiKey)
}

// =============================================================================
// MESSAGE BUILDING
// =============================================================================

// BuildMessages returns the wire messages for req: system first, history in
// order, then the new user message. Roles pass through unchanged.
func BuildMessages(req llm.ChatRequest) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.History {
		msgs = append(msgs, encode(roleFor(m.Role), m.Text, m.Attachments))
	}
	return append(msgs, encode(openai.ChatMessageRoleUser, req.Text, req.Attachments))
}

func encode(role, text string, files []content.Attachment) openai.ChatCompletionMessage {
	msg := openai.ChatCompletionMessage{Role: role}
	content.EncodeOpenAI(text, files).Apply(&msg)
	return msg
}

func roleFor(r model.Role) string {
	if r == model.RoleAssistant {
		return openai.ChatMessageRoleAssistant
	}
	return openai.ChatMessageRoleUser
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// StreamChat implements llm.Adapter.
func (a *Adapter) StreamChat(ctx context.Context, req llm.ChatRequest, onDelta llm.DeltaFunc) (string, error) {
	body := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: BuildMessages(req),
		Stream:   true,
	}

	open := func(ctx context.Context) (io.ReadCloser, error) {
		r := a.request(ctx, req.APIKey).
			SetHeader("Accept", "text/event-stream").
			SetHeader("Accept-Encoding", "identity").
			SetBody(body)
		return llm.Send(provider.OpenAI, r, http.MethodPost, llm.JoinURL(a.baseURL, "/chat/completions"))
	}

	text, stats, err := llm.RunStream(ctx, open, ParseFrame, onDelta, req.Observer)
	a.log.Debug().
		Str("provider", string(provider.OpenAI)).
		Str("model", req.Model).
		Str("state", stats.State.String()).
		Int("chunks", stats.Chunks).
		Int("skipped", stats.SkippedChunks).
		Dur("ttft", stats.TTFT).
		Msg("stream finished")
	return text, err
}

// ParseFrame extracts choices[0].delta.content from one stream frame.
func ParseFrame(_ string, data []byte) (llm.Frame, error) {
	var chunk openai.ChatCompletionStreamResponse
	if err := json.Unmarshal(data, &chunk); err != nil {
		return llm.Frame{}, fmt.Errorf("%w: %v", llm.ErrMalformedChunk, err)
	}
	if len(chunk.Choices) == 0 {
		return llm.Frame{}, nil
	}
	return llm.Frame{Text: chunk.Choices[0].Delta.Content}, nil
}

// =============================================================================
// STRUCTURED OUTPUT
// =============================================================================

// GenerateStructured implements llm.Adapter using the json_object response
// format.
func (a *Adapter) GenerateStructured(ctx context.Context, req llm.StructuredRequest) (string, error) {
	body := openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.Text},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	var resp openai.ChatCompletionResponse
	r := a.request(ctx, req.APIKey).SetBody(body)
	if err := llm.SendJSON(provider.OpenAI, r, http.MethodPost, llm.JoinURL(a.baseURL, "/chat/completions"), &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: choices[0].message.content", llm.ErrMissingField)
	}
	return resp.Choices[0].Message.Content, nil
}

// =============================================================================
// IMAGES
// =============================================================================

// GenerateImage implements llm.ImageGenerator. dall-e models are asked for
// b64_json explicitly; gpt-image models always return it.
func (a *Adapter) GenerateImage(ctx context.Context, req llm.ImageRequest) (*llm.Image, error) {
	body := openai.ImageRequest{
		Prompt: req.Prompt,
		Model:  req.Model,
		N:      1,
		Size:   DefaultImageSize,
	}
	if strings.HasPrefix(req.Model, "dall-e") {
		body.ResponseFormat = openai.CreateImageResponseFormatB64JSON
	}

	var resp openai.ImageResponse
	r := a.request(ctx, req.APIKey).SetBody(body)
	if err := llm.SendJSON(provider.OpenAI, r, http.MethodPost, llm.JoinURL(a.baseURL, "/images/generations"), &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, llm.ErrNoImage
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return &llm.Image{MimeType: mimetype.Detect(data).String(), Data: data}, nil
}

// =============================================================================
// PROBES
// =============================================================================

// TestKey implements llm.Prober by listing models.
func (a *Adapter) TestKey(ctx context.Context, apiKey string) error {
	var models openai.ModelsList
	return llm.SendJSON(provider.OpenAI, a.request(ctx, apiKey), http.MethodGet, llm.JoinURL(a.baseURL, "/models"), &models)
}

// Ping implements llm.Prober. Reasoning models take max_completion_tokens
// instead of max_tokens.
func (a *Adapter) Ping(ctx context.Context, apiKey, modelID string) error {
	body := openai.ChatCompletionRequest{
		Model: modelID,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: llm.ProbePrompt},
		},
	}
	if provider.UsesMaxCompletionTokens(modelID) {
		body.MaxCompletionTokens = probeMaxTokens
	} else {
		body.MaxTokens = probeMaxTokens
	}
	r := a.request(ctx, apiKey).SetBody(body)
	return llm.SendJSON(provider.OpenAI, r, http.MethodPost, llm.JoinURL(a.baseURL, "/chat/completions"), nil)
}
