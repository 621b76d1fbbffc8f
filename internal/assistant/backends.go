// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package assistant

import (
	"errors"

	"github.com/rs/zerolog"
	"resty.dev/v3"

	"github.com/jeranaias/sheetmate/internal/llm"
	"github.com/jeranaias/sheetmate/internal/llm/anthropic"
	"github.com/jeranaias/sheetmate/internal/llm/gemini"
	"github.com/jeranaias/sheetmate/internal/llm/openai"
	"github.com/jeranaias/sheetmate/internal/provider"
)

// Backends holds one implementation per provider variant. A nil field
// makes that variant unavailable.
type Backends struct {
	OpenAI      llm.Adapter
	OpenAIImage llm.ImageGenerator
	Claude      llm.Adapter
	Gemini      llm.Adapter
	GeminiImage llm.ImageGenerator

	clients []*resty.Client
}

// BackendOptions configures the HTTP adapters built by NewBackends.
type BackendOptions struct {
	OpenAIBaseURL    string
	AnthropicBaseURL string
	AnthropicVersion string
	MaxTokens        int
	GeminiBaseURL    string
}

// NewBackends builds the three HTTP adapters, one resty client each.
func NewBackends(opts BackendOptions, log zerolog.Logger) Backends {
	var oaOpts []openai.Option
	if opts.OpenAIBaseURL != "" {
		oaOpts = append(oaOpts, openai.WithBaseURL(opts.OpenAIBaseURL))
	}
	var anOpts []anthropic.Option
	if opts.AnthropicBaseURL != "" {
		anOpts = append(anOpts, anthropic.WithBaseURL(opts.AnthropicBaseURL))
	}
	if opts.AnthropicVersion != "" {
		anOpts = append(anOpts, anthropic.WithVersion(opts.AnthropicVersion))
	}
	if opts.MaxTokens > 0 {
		anOpts = append(anOpts, anthropic.WithMaxTokens(opts.MaxTokens))
	}
	var gmOpts []gemini.Option
	if opts.GeminiBaseURL != "" {
		gmOpts = append(gmOpts, gemini.WithBaseURL(opts.GeminiBaseURL))
	}

	oaClient := llm.NewHTTPClient(string(provider.OpenAI), log)
	anClient := llm.NewHTTPClient(string(provider.Claude), log)
	gmClient := llm.NewHTTPClient(string(provider.Gemini), log)

	oa := openai.New(oaClient, log, oaOpts...)
	gm := gemini.New(gmClient, log, gmOpts...)
	return Backends{
		OpenAI:      oa,
		OpenAIImage: oa,
		Claude:      anthropic.New(anClient, log, anOpts...),
		Gemini:      gm,
		GeminiImage: gm,
		clients:     []*resty.Client{oaClient, anClient, gmClient},
	}
}

// Prober returns the key prober for the base provider of id.
func (b Backends) Prober(id provider.ID) (llm.Prober, bool) {
	var a llm.Adapter
	switch id.Base() {
	case provider.OpenAI:
		a = b.OpenAI
	case provider.Claude:
		a = b.Claude
	case provider.Gemini:
		a = b.Gemini
	}
	p, ok := a.(llm.Prober)
	return p, ok
}

// Close releases the HTTP clients created by NewBackends.
func (b Backends) Close() error {
	var errs []error
	for _, c := range b.clients {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
