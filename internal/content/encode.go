// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package content

import (
	"encoding/json"

	"github.com/sashabaranov/go-openai"
)

// =============================================================================
// OPENAI
// =============================================================================

// OpenAIContent is either plain text (Parts == nil) or a list of parts.
type OpenAIContent struct {
	Text  string
	Parts []openai.ChatMessagePart
}

// IsPlain reports whether the content is a bare string.
func (c OpenAIContent) IsPlain() bool {
	return c.Parts == nil
}

// MarshalJSON renders a string or an array, matching the chat completions
// content field.
func (c OpenAIContent) MarshalJSON() ([]byte, error) {
	if c.IsPlain() {
		return json.Marshal(c.Text)
	}
	return json.Marshal(c.Parts)
}

// Apply sets the content on a chat completion message.
func (c OpenAIContent) Apply(msg *openai.ChatCompletionMessage) {
	if c.IsPlain() {
		msg.Content = c.Text
		msg.MultiContent = nil
		return
	}
	msg.Content = ""
	msg.MultiContent = c.Parts
}

// EncodeOpenAI builds OpenAI chat content. The text block leads; only image
// attachments follow.
func EncodeOpenAI(text string, files []Attachment) OpenAIContent {
	if len(files) == 0 {
		return OpenAIContent{Text: text}
	}

	parts := []openai.ChatMessagePart{{
		Type: openai.ChatMessagePartTypeText,
		Text: text,
	}}
	for _, f := range files {
		if !f.IsImage() {
			continue
		}
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: f.DataURI()},
		})
	}
	return OpenAIContent{Text: text, Parts: parts}
}

// =============================================================================
// ANTHROPIC
// =============================================================================

// AnthropicSource is an inline base64 payload.
type AnthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// AnthropicBlock is one messages-API content block.
type AnthropicBlock struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *AnthropicSource `json:"source,omitempty"`
}

// AnthropicContent is either plain text (Blocks == nil) or a block list.
type AnthropicContent struct {
	Text   string
	Blocks []AnthropicBlock
}

// IsPlain reports whether the content is a bare string.
func (c AnthropicContent) IsPlain() bool {
	return c.Blocks == nil
}

// MarshalJSON renders a string or an array.
func (c AnthropicContent) MarshalJSON() ([]byte, error) {
	if c.IsPlain() {
		return json.Marshal(c.Text)
	}
	return json.Marshal(c.Blocks)
}

// EncodeAnthropic builds Anthropic message content. Attachment blocks come
// first and the text block is last.
func EncodeAnthropic(text string, files []Attachment) AnthropicContent {
	if len(files) == 0 {
		return AnthropicContent{Text: text}
	}

	blocks := make([]AnthropicBlock, 0, len(files)+1)
	for _, f := range files {
		var blockType string
		switch {
		case f.IsImage():
			blockType = "image"
		case f.IsPDF():
			blockType = "document"
		default:
			continue
		}
		blocks = append(blocks, AnthropicBlock{
			Type: blockType,
			Source: &AnthropicSource{
				Type:      "base64",
				MediaType: f.MimeType,
				Data:      f.Data,
			},
		})
	}
	blocks = append(blocks, AnthropicBlock{Type: "text", Text: text})
	return AnthropicContent{Text: text, Blocks: blocks}
}

// =============================================================================
// GEMINI
// =============================================================================

// GeminiInlineData is an inline base64 payload.
type GeminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

// GeminiPart is either a text part or an inline_data part.
type GeminiPart struct {
	Text       string
	InlineData *GeminiInlineData
}

// MarshalJSON emits exactly one of "text" or "inline_data".
func (p GeminiPart) MarshalJSON() ([]byte, error) {
	if p.InlineData != nil {
		return json.Marshal(struct {
			InlineData *GeminiInlineData `json:"inline_data"`
		}{p.InlineData})
	}
	return json.Marshal(struct {
		Text string `json:"text"`
	}{p.Text})
}

// EncodeGemini builds a Gemini parts list. The result is never a bare
// string: with no attachments it is a one-element list holding the text.
func EncodeGemini(text string, files []Attachment) []GeminiPart {
	parts := make([]GeminiPart, 0, len(files)+1)
	for _, f := range files {
		if !f.IsImage() && !f.IsPDF() {
			continue
		}
		parts = append(parts, GeminiPart{
			InlineData: &GeminiInlineData{MimeType: f.MimeType, Data: f.Data},
		})
	}
	return append(parts, GeminiPart{Text: text})
}
