// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/sheetmate/internal/content"
	"github.com/jeranaias/sheetmate/internal/llm"
	"github.com/jeranaias/sheetmate/internal/model"
)

type capture struct {
	path    string
	key     string
	version string
	body    map[string]any
}

func newServer(t *testing.T, c *capture, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.path = r.URL.Path
		c.key = r.Header.Get("x-api-key")
		c.version = r.Header.Get("anthropic-version")
		c.body = nil
		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &c.body))
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return New(llm.NewHTTPClient("anthropic-test", zerolog.Nop()), zerolog.Nop(), WithBaseURL(srv.URL+"/v1"))
}

func TestStreamChat_SingleDelta(t *testing.T) {
	var c capture
	a := newServer(t, &c, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "event: message_start\n"+
			`data: {"type":"message_start","message":{"id":"m1"}}`+"\n\n"+
			"event: content_block_delta\n"+
			`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hi"}}`+"\n\n"+
			"event: message_stop\n"+
			`data: {"type":"message_stop"}`+"\n\n")
	})

	text, err := a.StreamChat(context.Background(), llm.ChatRequest{
		APIKey: "sk-ant", Model: "claude-haiku-4-5-20251001", System: "Selected Cell Address: A1", Text: "hello",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Hi", text)

	assert.Equal(t, "/v1/messages", c.path)
	assert.Equal(t, "sk-ant", c.key)
	assert.Equal(t, DefaultVersion, c.version)
	assert.Equal(t, "Selected Cell Address: A1", c.body["system"])
	assert.Equal(t, true, c.body["stream"])
	assert.EqualValues(t, DefaultMaxTokens, c.body["max_tokens"])
	assert.Equal(t, []any{map[string]any{"role": "user", "content": "hello"}}, c.body["messages"])
}

func TestStreamChat_ErrorEvent(t *testing.T) {
	var c capture
	a := newServer(t, &c, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w,
			`data: {"type":"content_block_delta","delta":{"text":"par"}}`+"\n"+
				`data: {"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`+"\n")
	})

	_, err := a.StreamChat(context.Background(), llm.ChatRequest{APIKey: "k", Model: "m", Text: "x"}, nil)
	var serr *llm.StreamError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "par", serr.Partial)
	assert.Equal(t, "Overloaded", llm.UpstreamMessage(err))
	assert.NotContains(t, err.Error(), "HTTP 0")
	assert.Contains(t, err.Error(), "[overloaded_error]: Overloaded")
}

func TestParseFrame_OnlyContentBlockDelta(t *testing.T) {
	f, err := ParseFrame("", []byte(`{"type":"content_block_start","content_block":{"type":"text","text":"ignored"}}`))
	require.NoError(t, err)
	assert.Empty(t, f.Text)

	f, err = ParseFrame("", []byte(`{"type":"ping"}`))
	require.NoError(t, err)
	assert.False(t, f.Done)

	_, err = ParseFrame("", []byte(`garbage`))
	assert.ErrorIs(t, err, llm.ErrMalformedChunk)
}

func TestBuildMessages(t *testing.T) {
	png := content.Attachment{Name: "a.png", MimeType: "image/png", Data: "AA=="}
	msgs := BuildMessages(llm.ChatRequest{
		Text:        "what is this",
		Attachments: []content.Attachment{png},
		History:     []model.Message{model.NewUserMessage("q", nil), model.NewAssistantMessage("a")},
	})
	require.Len(t, msgs, 3)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "assistant", msgs[1].Role)
	require.Len(t, msgs[2].Content.Blocks, 2)
	assert.Equal(t, "image", msgs[2].Content.Blocks[0].Type)
	assert.Equal(t, "text", msgs[2].Content.Blocks[1].Type)
}

func TestGenerateStructured(t *testing.T) {
	var c capture
	a := newServer(t, &c, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"content":[{"type":"text","text":"{\"description\":\"d\"}"}]}`)
	})
	out, err := a.GenerateStructured(context.Background(), llm.StructuredRequest{APIKey: "k", Model: "m", System: "s", Text: "t"})
	require.NoError(t, err)
	assert.Equal(t, `{"description":"d"}`, out)
	assert.Nil(t, c.body["stream"])
	assert.Equal(t, "s", c.body["system"])
}

func TestGenerateStructured_Empty(t *testing.T) {
	var c capture
	a := newServer(t, &c, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"content":[]}`)
	})
	_, err := a.GenerateStructured(context.Background(), llm.StructuredRequest{APIKey: "k", Model: "m"})
	assert.ErrorIs(t, err, llm.ErrMissingField)
}

func TestTestKey(t *testing.T) {
	var c capture
	a := newServer(t, &c, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "good" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"content":[{"type":"text","text":"Hi"}]}`)
	})

	require.NoError(t, a.TestKey(context.Background(), "good"))
	assert.Equal(t, ProbeModel, c.body["model"])
	assert.EqualValues(t, 1, c.body["max_tokens"])
	assert.Equal(t, []any{map[string]any{"role": "user", "content": "Hi"}}, c.body["messages"])

	err := a.TestKey(context.Background(), "bad")
	assert.Equal(t, "invalid x-api-key", llm.UpstreamMessage(err))
}
