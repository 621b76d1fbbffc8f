// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider defines the closed set of LLM providers sheetmate can talk
// to, the "provider:model" selection format, and the model catalog.
//
// The two image variants (openai-image, gemini-image) are presentation
// aliases: credentials and capabilities resolve through their base provider,
// but dispatch routes them to image generation instead of chat.
package provider

import (
	"errors"
	"fmt"
	"strings"
)

// ID identifies a provider as chosen by the caller.
type ID string

const (
	OpenAI      ID = "openai"
	Claude      ID = "claude"
	Gemini      ID = "gemini"
	OpenAIImage ID = "openai-image"
	GeminiImage ID = "gemini-image"
)

// ErrUnknownProvider is returned for any id outside the closed set.
var ErrUnknownProvider = errors.New("unknown provider")

// All returns every provider id, chat providers first.
func All() []ID {
	return []ID{OpenAI, Claude, Gemini, OpenAIImage, GeminiImage}
}

// Bases returns the providers that own credentials.
func Bases() []ID {
	return []ID{OpenAI, Claude, Gemini}
}

// Parse validates a raw id against the closed set.
func Parse(raw string) (ID, error) {
	id := ID(strings.TrimSpace(raw))
	if !id.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, raw)
	}
	return id, nil
}

// Normalize maps image aliases onto their base provider and returns any
// other value unchanged.
func Normalize(raw string) string {
	switch ID(raw) {
	case OpenAIImage:
		return string(OpenAI)
	case GeminiImage:
		return string(Gemini)
	default:
		return raw
	}
}

// Valid reports whether id is a member of the closed set.
func (id ID) Valid() bool {
	switch id {
	case OpenAI, Claude, Gemini, OpenAIImage, GeminiImage:
		return true
	}
	return false
}

// Base returns the credential-owning provider for id.
func (id ID) Base() ID {
	return ID(Normalize(string(id)))
}

// IsImage reports whether id routes to image generation.
func (id ID) IsImage() bool {
	return id == OpenAIImage || id == GeminiImage
}

// SettingsKey is the persistent store key holding the saved API key.
func (id ID) SettingsKey() string {
	return string(id.Base()) + "_api_key"
}

// DisplayName returns a human-readable vendor name.
func (id ID) DisplayName() string {
	switch id {
	case OpenAI:
		return "OpenAI"
	case OpenAIImage:
		return "OpenAI (image)"
	case Claude:
		return "Anthropic Claude"
	case Gemini:
		return "Google Gemini"
	case GeminiImage:
		return "Google Gemini (image)"
	}
	return string(id)
}

func (id ID) String() string {
	return string(id)
}
