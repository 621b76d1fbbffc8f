// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"

	"github.com/jeranaias/sheetmate/internal/content"
	"github.com/jeranaias/sheetmate/internal/model"
	"github.com/jeranaias/sheetmate/internal/provider"
)

// =============================================================================
// REQUESTS
// =============================================================================

// ChatRequest is one streamed chat turn. History holds the prior messages in
// order; Text and Attachments form the new user message.
type ChatRequest struct {
	APIKey      string
	Model       string
	System      string
	Text        string
	Attachments []content.Attachment
	History     []model.Message

	// Observer is optional.
	Observer *Observer
}

// StructuredRequest is a single JSON-constrained completion.
type StructuredRequest struct {
	APIKey string
	Model  string
	System string
	Text   string
}

// ImageRequest asks for one generated image.
type ImageRequest struct {
	APIKey string
	Model  string
	Prompt string
}

// Image is a generated image.
type Image struct {
	MimeType string
	Data     []byte
}

// DeltaFunc receives each non-empty text increment in arrival order.
type DeltaFunc func(text string)

// =============================================================================
// INTERFACES
// =============================================================================

// Adapter wraps one provider's chat protocol.
type Adapter interface {
	Provider() provider.ID
	StreamChat(ctx context.Context, req ChatRequest, onDelta DeltaFunc) (string, error)
	GenerateStructured(ctx context.Context, req StructuredRequest) (string, error)
}

// ImageGenerator is implemented by adapters with an image path.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req ImageRequest) (*Image, error)
}

// Prober is implemented by adapters that can check a key and a model.
type Prober interface {
	// TestKey makes the cheapest authenticated call the provider offers.
	TestKey(ctx context.Context, apiKey string) error
	// Ping asks model for a minimal completion.
	Ping(ctx context.Context, apiKey, model string) error
}

// ProbePrompt is the minimal completion used by Ping.
const ProbePrompt = `Say "Hello" in one word.`
