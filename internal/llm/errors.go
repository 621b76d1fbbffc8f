// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jeranaias/sheetmate/internal/provider"
	"github.com/jeranaias/sheetmate/internal/util"
)

// Error variables shared by the adapters.
var (
	// ErrMalformedChunk marks a stream frame that could not be decoded. It
	// is counted, never returned.
	ErrMalformedChunk = errors.New("malformed stream chunk")

	// ErrMissingField is returned when a response lacks the field that
	// carries the reply.
	ErrMissingField = errors.New("response missing expected field")

	// ErrAborted is returned when the caller cancels a call in flight.
	ErrAborted = errors.New("request aborted")

	// ErrImageUnsupported is returned for providers without an image path.
	ErrImageUnsupported = errors.New("provider does not support image generation")

	// ErrNoImage is returned when an image response carries no image data.
	ErrNoImage = errors.New("no image in response")
)

// UpstreamError is a non-2xx reply from a provider, or an error event inside
// a stream (Status 0). Message is the provider's own message and is empty
// when none could be extracted.
type UpstreamError struct {
	Provider provider.ID
	Status   int
	Type     string
	Message  string
	Body     string // truncated raw body when Message is empty
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Body
	}
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if msg == "" {
		msg = "request failed"
	}
	status := ""
	if e.Status != 0 {
		status = fmt.Sprintf(" (HTTP %d)", e.Status)
	}
	if e.Type != "" {
		return fmt.Sprintf("%s error [%s]%s: %s", e.Provider, e.Type, status, msg)
	}
	return fmt.Sprintf("%s error%s: %s", e.Provider, status, msg)
}

// Unauthorized reports whether the provider rejected the key.
func (e *UpstreamError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

// apiErrorResponse covers the error envelopes of all three providers:
//
//	openai:    {"error": {"message", "type", "code"}}
//	anthropic: {"type": "error", "error": {"type", "message"}}
//	gemini:    {"error": {"code", "message", "status"}}
type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Status  string `json:"status"`
	} `json:"error"`
}

// ParseUpstreamError converts an error response body.
func ParseUpstreamError(p provider.ID, status int, body []byte) *UpstreamError {
	upErr := &UpstreamError{Provider: p, Status: status}

	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil {
		upErr.Message = apiErr.Error.Message
		upErr.Type = apiErr.Error.Type
		if upErr.Type == "" {
			upErr.Type = apiErr.Error.Status
		}
	}
	if upErr.Message != "" {
		return upErr
	}

	if text := strings.TrimSpace(string(body)); text != "" {
		upErr.Body = util.TruncateRunes(util.SingleLine(text), 200)
	}
	return upErr
}

// UpstreamMessage returns the provider's message for err, or "" when err is
// not an *UpstreamError or carries none.
func UpstreamMessage(err error) string {
	var upErr *UpstreamError
	if errors.As(err, &upErr) {
		return upErr.Message
	}
	return ""
}

// StreamError is a stream failure after some text was delivered.
type StreamError struct {
	Partial string // Content received before error
	Err     error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream error (partial content received: %d chars): %v", len([]rune(e.Partial)), e.Err)
	}
	return fmt.Sprintf("stream error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *StreamError) Unwrap() error {
	return e.Err
}
