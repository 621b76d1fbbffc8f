// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/sheetmate/internal/provider"
)

// textParser decodes {"t": "..."} frames and treats {"end": true} as done.
func textParser(_ string, data []byte) (Frame, error) {
	var v struct {
		T   string `json:"t"`
		End bool   `json:"end"`
		Err string `json:"err"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedChunk, err)
	}
	if v.Err != "" {
		return Frame{}, errors.New(v.Err)
	}
	return Frame{Text: v.T, Done: v.End}, nil
}

func openString(s string) OpenFunc {
	return func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(s)), nil
	}
}

// =============================================================================
// SSE READER TESTS
// =============================================================================

func TestSSEReader_Frames(t *testing.T) {
	input := "event: content_block_delta\n" +
		"data: {\"a\":1}\n\n" +
		": keep-alive\n" +
		"data:{\"b\":2}\r\n" +
		"data: {\"c\":3}\n" +
		"id: 7\n"
	r := NewSSEReader(strings.NewReader(input))

	ev, data, err := r.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, "content_block_delta", ev)
	assert.JSONEq(t, `{"a":1}`, string(data))

	ev, data, err = r.ReadEvent()
	require.NoError(t, err)
	assert.Empty(t, ev, "blank line resets the event name")
	assert.JSONEq(t, `{"b":2}`, string(data))

	_, data, err = r.ReadEvent()
	require.NoError(t, err)
	assert.JSONEq(t, `{"c":3}`, string(data))

	_, _, err = r.ReadEvent()
	assert.ErrorIs(t, err, io.EOF)
}

// =============================================================================
// RUN STREAM TESTS
// =============================================================================

func TestRunStream_ConcatenatesAndStopsAtDone(t *testing.T) {
	body := "data: {\"t\":\"Hel\"}\n" +
		"data: {\"t\":\"lo\"}\n" +
		"data: [DONE]\n" +
		"data: {\"t\":\"ignored\"}\n"

	var deltas []string
	var states []StreamState
	var final StreamStats
	obs := &Observer{
		OnState: func(s StreamState) { states = append(states, s) },
		OnDone:  func(s StreamStats) { final = s },
	}

	text, stats, err := RunStream(context.Background(), openString(body), textParser,
		func(d string) { deltas = append(deltas, d) }, obs)
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)
	assert.Equal(t, []string{"Hel", "lo"}, deltas)
	assert.Equal(t, []StreamState{StateConnecting, StateStreaming, StateCompleted}, states)
	assert.Equal(t, StateCompleted, stats.State)
	assert.Equal(t, 2, stats.Chunks)
	assert.Equal(t, stats.Chunks, final.Chunks)
}

func TestRunStream_SkipsMalformed(t *testing.T) {
	body := "data: {\"t\":\"a\"}\n" +
		"data: {not json\n" +
		"data: {\"t\":\"b\"}\n"

	text, stats, err := RunStream(context.Background(), openString(body), textParser, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "ab", text)
	assert.Equal(t, 1, stats.SkippedChunks)
}

func TestRunStream_ParserDone(t *testing.T) {
	body := "data: {\"t\":\"x\"}\ndata: {\"end\":true}\ndata: {\"t\":\"y\"}\n"
	text, _, err := RunStream(context.Background(), openString(body), textParser, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "x", text)
}

func TestRunStream_OpenFailure(t *testing.T) {
	upErr := &UpstreamError{Provider: provider.OpenAI, Status: 401, Message: "bad key"}
	open := func(context.Context) (io.ReadCloser, error) { return nil, upErr }

	var states []StreamState
	_, stats, err := RunStream(context.Background(), open, textParser, nil,
		&Observer{OnState: func(s StreamState) { states = append(states, s) }})

	var got *UpstreamError
	require.True(t, errors.As(err, &got))
	assert.Equal(t, "bad key", got.Message)
	assert.Equal(t, StateFailed, stats.State)
	assert.Equal(t, []StreamState{StateConnecting, StateFailed}, states)
}

func TestRunStream_FatalFrameKeepsPartial(t *testing.T) {
	body := "data: {\"t\":\"part\"}\ndata: {\"err\":\"overloaded\"}\n"
	text, stats, err := RunStream(context.Background(), openString(body), textParser, nil, nil)

	var serr *StreamError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "part", serr.Partial)
	assert.Equal(t, "part", text)
	assert.Equal(t, StateFailed, stats.State)
}

func TestRunStream_Abort(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pr, pw := io.Pipe()
	open := func(context.Context) (io.ReadCloser, error) { return pr, nil }

	go func() {
		_, _ = pw.Write([]byte("data: {\"t\":\"first\"}\n"))
		cancel()
		_ = pw.CloseWithError(context.Canceled)
	}()

	text, stats, err := RunStream(ctx, open, textParser, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAborted)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateAborted, stats.State)
	assert.Equal(t, "first", text)
}

func TestStreamState_String(t *testing.T) {
	assert.Equal(t, "aborted", StateAborted.String())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateStreaming.Terminal())
}

// =============================================================================
// ERROR TESTS
// =============================================================================

func TestParseUpstreamError(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
		typ     string
	}{
		{"openai", `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`, "Incorrect API key provided", "invalid_request_error"},
		{"anthropic", `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`, "invalid x-api-key", "authentication_error"},
		{"gemini", `{"error":{"code":400,"message":"API key not valid.","status":"INVALID_ARGUMENT"}}`, "API key not valid.", "INVALID_ARGUMENT"},
		{"empty envelope", `{}`, "", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := ParseUpstreamError(provider.OpenAI, 401, []byte(tc.body))
			assert.Equal(t, tc.message, e.Message)
			assert.Equal(t, tc.typ, e.Type)
			assert.True(t, e.Unauthorized())
			assert.Equal(t, tc.message, UpstreamMessage(fmt.Errorf("wrapped: %w", e)))
		})
	}

	e := ParseUpstreamError(provider.Gemini, 502, []byte("Bad gateway\n"))
	assert.Empty(t, e.Message)
	assert.Equal(t, "Bad gateway", e.Body)
	assert.Contains(t, e.Error(), "HTTP 502")

	e = ParseUpstreamError(provider.Claude, 500, nil)
	assert.Contains(t, e.Error(), "Internal Server Error")

	// JSON without the error envelope keeps the raw body.
	e = ParseUpstreamError(provider.OpenAI, 502, []byte(`{"detail":"upstream model unavailable"}`))
	assert.Empty(t, e.Message)
	assert.Equal(t, `{"detail":"upstream model unavailable"}`, e.Body)
	assert.Contains(t, e.Error(), "upstream model unavailable")
}

func TestUpstreamError_StreamEventHasNoStatus(t *testing.T) {
	e := &UpstreamError{Provider: provider.Claude, Type: "overloaded_error", Message: "Overloaded"}
	assert.Equal(t, "claude error [overloaded_error]: Overloaded", e.Error())

	e = &UpstreamError{Provider: provider.OpenAI, Status: 429, Message: "slow down"}
	assert.Equal(t, "openai error (HTTP 429): slow down", e.Error())
}

// =============================================================================
// HTTP TESTS
// =============================================================================

func TestSendJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte(`{"value":"x"}`))
		default:
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
		}
	}))
	defer srv.Close()

	client := NewHTTPClient("test", zerolog.Nop())
	defer client.Close()
	ctx := WithRequestID(context.Background(), "req-1")

	var out struct{ Value string }
	require.NoError(t, SendJSON(provider.OpenAI, client.R().SetContext(ctx), http.MethodGet, srv.URL+"/ok", &out))
	assert.Equal(t, "x", out.Value)

	err := SendJSON(provider.OpenAI, client.R().SetContext(ctx), http.MethodGet, srv.URL+"/limited", &out)
	var upErr *UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, http.StatusTooManyRequests, upErr.Status)
	assert.Equal(t, "slow down", upErr.Message)
}

func TestJoinURL(t *testing.T) {
	assert.Equal(t, "http://x/v1/models", JoinURL("http://x/v1/", "/models"))
	assert.Equal(t, "http://x/v1/models", JoinURL("http://x/v1", "models"))
}
