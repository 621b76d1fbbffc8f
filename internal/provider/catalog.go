// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import "strings"

// =============================================================================
// MODEL CATALOG
// =============================================================================

// ModelInfo describes one selectable model.
type ModelInfo struct {
	// ID is the model identifier sent to the upstream API
	ID string `json:"id"`

	// Provider is the selection provider (image models use the -image alias)
	Provider ID `json:"provider"`

	// Name is the display name
	Name string `json:"name"`

	// Image marks image-generation models
	Image bool `json:"image"`
}

// Selection returns the "provider:model" pair for this model.
func (m ModelInfo) Selection() Selection {
	return Selection{Provider: m.Provider, Model: m.ID}
}

var catalog = []ModelInfo{
	// OpenAI
	{ID: "gpt-5.1", Provider: OpenAI, Name: "GPT-5.1"},
	{ID: "gpt-5", Provider: OpenAI, Name: "GPT-5"},
	{ID: "gpt-5-mini", Provider: OpenAI, Name: "GPT-5 mini"},
	{ID: "gpt-5-nano", Provider: OpenAI, Name: "GPT-5 nano"},
	{ID: "gpt-4.1", Provider: OpenAI, Name: "GPT-4.1"},
	{ID: "gpt-4o", Provider: OpenAI, Name: "GPT-4o"},
	{ID: "gpt-4o-mini", Provider: OpenAI, Name: "GPT-4o mini"},
	{ID: "gpt-4-turbo", Provider: OpenAI, Name: "GPT-4 Turbo"},

	// Anthropic
	{ID: "claude-sonnet-4-5-20250929", Provider: Claude, Name: "Claude Sonnet 4.5"},
	{ID: "claude-haiku-4-5-20251001", Provider: Claude, Name: "Claude Haiku 4.5"},
	{ID: "claude-opus-4-5-20251101", Provider: Claude, Name: "Claude Opus 4.5"},

	// Google
	{ID: "gemini-3-pro-preview", Provider: Gemini, Name: "Gemini 3 Pro (preview)"},
	{ID: "gemini-2.5-pro", Provider: Gemini, Name: "Gemini 2.5 Pro"},
	{ID: "gemini-2.5-flash", Provider: Gemini, Name: "Gemini 2.5 Flash"},
	{ID: "gemini-2.5-flash-lite", Provider: Gemini, Name: "Gemini 2.5 Flash-Lite"},
	{ID: "gemini-2.0-flash", Provider: Gemini, Name: "Gemini 2.0 Flash"},

	// Image generation
	{ID: "gpt-image-1", Provider: OpenAIImage, Name: "GPT Image 1", Image: true},
	{ID: "gemini-3-pro-image-preview", Provider: GeminiImage, Name: "Gemini 3 Pro Image (preview)", Image: true},
}

// Catalog returns a copy of every known model.
func Catalog() []ModelInfo {
	out := make([]ModelInfo, len(catalog))
	copy(out, catalog)
	return out
}

// ModelsFor returns the catalog entries whose selection provider is id.
func ModelsFor(id ID) []ModelInfo {
	var out []ModelInfo
	for _, m := range catalog {
		if m.Provider == id {
			out = append(out, m)
		}
	}
	return out
}

// ChatModels returns every non-image catalog entry.
func ChatModels() []ModelInfo {
	var out []ModelInfo
	for _, m := range catalog {
		if !m.Image {
			out = append(out, m)
		}
	}
	return out
}

// Lookup finds a model by id.
func Lookup(modelID string) (ModelInfo, bool) {
	for _, m := range catalog {
		if m.ID == modelID {
			return m, true
		}
	}
	return ModelInfo{}, false
}

// DefaultSelection is used when neither config nor caller picks a model.
func DefaultSelection() Selection {
	return Selection{Provider: OpenAI, Model: "gpt-4o"}
}

// UsesMaxCompletionTokens reports whether an OpenAI model rejects the
// legacy max_tokens parameter.
func UsesMaxCompletionTokens(model string) bool {
	return strings.HasPrefix(model, "gpt-5") ||
		strings.HasPrefix(model, "o3") ||
		strings.HasPrefix(model, "o4")
}
