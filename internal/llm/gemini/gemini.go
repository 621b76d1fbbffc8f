// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gemini implements the Gemini-style adapter over generateContent
// and streamGenerateContent. The key travels as a query parameter.
package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"resty.dev/v3"

	"github.com/jeranaias/sheetmate/internal/content"
	"github.com/jeranaias/sheetmate/internal/llm"
	"github.com/jeranaias/sheetmate/internal/model"
	"github.com/jeranaias/sheetmate/internal/provider"
)

// DefaultBaseURL is the public API root.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Adapter talks to the Gemini REST API.
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
	return provider.Gemini
}

// =============================================================================
// WIRE TYPES
// =============================================================================

// Content is one entry of contents (or the system instruction).
type Content struct {
	Role  string               `json:"role,omitempty"`
	Parts []content.GeminiPart `json:"parts"`
}

// GenerationConfig carries output constraints.
type GenerationConfig struct {
	ResponseMimeType   string   `json:"responseMimeType,omitempty"`
	ResponseModalities []string `json:"responseModalities,omitempty"`
	MaxOutputTokens    int      `json:"maxOutputTokens,omitempty"`
}

// Request is the generateContent request body.
type Request struct {
	SystemInstruction *Content          `json:"systemInstruction,omitempty"`
	Contents          []Content         `json:"contents"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
}

// inlineData accepts both the camelCase the API returns and the snake_case
// it documents.
type inlineData struct {
	MimeType      string `json:"mimeType"`
	MimeTypeSnake string `json:"mime_type"`
	Data          string `json:"data"`
}

func (d *inlineData) mime() string {
	if d.MimeType != "" {
		return d.MimeType
	}
	return d.MimeTypeSnake
}

type responsePart struct {
	Text            string      `json:"text"`
	InlineData      *inlineData `json:"inlineData"`
	InlineDataSnake *inlineData `json:"inline_data"`
}

func (p responsePart) inline() *inlineData {
	if p.InlineData != nil {
		return p.InlineData
	}
	return p.InlineDataSnake
}

type response struct {
	Candidates []struct {
		Content struct {
			Parts []responsePart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// firstText returns candidates[0].content.parts[0].text.
func (r *response) firstText() (string, bool) {
	if len(r.Candidates) == 0 || len(r.Candidates[0].Content.Parts) == 0 {
		return "", false
	}
	return r.Candidates[0].Content.Parts[0].Text, true
}

// BuildContents maps assistant to "model" and wraps every message as a parts
// list, ending with the new user message.
func BuildContents(req llm.ChatRequest) []Content {
	contents := make([]Content, 0, len(req.History)+1)
	for _, m := range req.History {
		role := "user"
		if m.Role == model.RoleAssistant {
			role = "model"
		}
		contents = append(contents, Content{Role: role, Parts: content.EncodeGemini(m.Text, m.Attachments)})
	}
	return append(contents, Content{Role: "user", Parts: content.EncodeGemini(req.Text, req.Attachments)})
}

func systemInstruction(system string) *Content {
	if system == "" {
		return nil
	}
	return &Content{Parts: []content.GeminiPart{{Text: system}}}
}

func (a *Adapter) modelURL(modelID, method string) string {
	return llm.JoinURL(a.baseURL, "/models/"+url.PathEscape(modelID)+":"+method)
}

func (a *Adapter) request(ctx context.Context, apiKey string) *resty.Request {
	return a.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetQueryParam("key", apiKey)
}

func (a *Adapter) generate(ctx context.Context, apiKey, modelID string, body Request) (*response, error) {
	var resp response
	r := a.request(ctx, apiKey).SetBody(body)
	if err := llm.SendJSON(provider.Gemini, r, http.MethodPost, a.modelURL(modelID, "generateContent"), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// StreamChat implements llm.Adapter.
func (a *Adapter) StreamChat(ctx context.Context, req llm.ChatRequest, onDelta llm.DeltaFunc) (string, error) {
	body := Request{
		SystemInstruction: systemInstruction(req.System),
		Contents:          BuildContents(req),
	}

	open := func(ctx context.Context) (io.ReadCloser, error) {
		r := a.request(ctx, req.APIKey).
			SetQueryParam("alt", "sse").
			SetHeader("Accept", "text/event-stream").
			SetHeader("Accept-Encoding", "identity").
			SetBody(body)
		return llm.Send(provider.Gemini, r, http.MethodPost, a.modelURL(req.Model, "streamGenerateContent"))
	}

	text, stats, err := llm.RunStream(ctx, open, ParseFrame, onDelta, req.Observer)
	a.log.Debug().
		Str("provider", string(provider.Gemini)).
		Str("model", req.Model).
		Str("state", stats.State.String()).
		Int("chunks", stats.Chunks).
		Int("skipped", stats.SkippedChunks).
		Dur("ttft", stats.TTFT).
		Msg("stream finished")
	return text, err
}

// ParseFrame extracts candidates[0].content.parts[0].text from one frame.
func ParseFrame(_ string, data []byte) (llm.Frame, error) {
	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		return llm.Frame{}, fmt.Errorf("%w: %v", llm.ErrMalformedChunk, err)
	}
	text, _ := resp.firstText()
	return llm.Frame{Text: text}, nil
}

// =============================================================================
// STRUCTURED OUTPUT
// =============================================================================

// GenerateStructured implements llm.Adapter with responseMimeType JSON.
func (a *Adapter) GenerateStructured(ctx context.Context, req llm.StructuredRequest) (string, error) {
	body := Request{
		SystemInstruction: systemInstruction(req.System),
		Contents:          []Content{{Role: "user", Parts: content.EncodeGemini(req.Text, nil)}},
		GenerationConfig:  &GenerationConfig{ResponseMimeType: "application/json"},
	}
	resp, err := a.generate(ctx, req.APIKey, req.Model, body)
	if err != nil {
		return "", err
	}
	text, ok := resp.firstText()
	if !ok {
		return "", fmt.Errorf("%w: candidates[0].content.parts[0].text", llm.ErrMissingField)
	}
	return text, nil
}

// =============================================================================
// IMAGES
// =============================================================================

// GenerateImage implements llm.ImageGenerator. The first inline-data part of
// the first candidate is returned; a reply without one yields llm.ErrNoImage.
func (a *Adapter) GenerateImage(ctx context.Context, req llm.ImageRequest) (*llm.Image, error) {
	body := Request{
		Contents:         []Content{{Role: "user", Parts: content.EncodeGemini(req.Prompt, nil)}},
		GenerationConfig: &GenerationConfig{ResponseModalities: []string{"TEXT", "IMAGE"}},
	}
	resp, err := a.generate(ctx, req.APIKey, req.Model, body)
	if err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 {
		return nil, llm.ErrNoImage
	}

	for _, part := range resp.Candidates[0].Content.Parts {
		inline := part.inline()
		if inline == nil || inline.Data == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(inline.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode image: %w", err)
		}
		return &llm.Image{MimeType: inline.mime(), Data: data}, nil
	}
	return nil, llm.ErrNoImage
}

// =============================================================================
// PROBES
// =============================================================================

// TestKey implements llm.Prober by listing models.
func (a *Adapter) TestKey(ctx context.Context, apiKey string) error {
	return llm.SendJSON(provider.Gemini, a.request(ctx, apiKey), http.MethodGet, llm.JoinURL(a.baseURL, "/models"), nil)
}

// Ping implements llm.Prober.
func (a *Adapter) Ping(ctx context.Context, apiKey, modelID string) error {
	body := Request{
		Contents:         []Content{{Role: "user", Parts: content.EncodeGemini(llm.ProbePrompt, nil)}},
		GenerationConfig: &GenerationConfig{MaxOutputTokens: 10},
	}
	_, err := a.generate(ctx, apiKey, modelID, body)
	return err
}
