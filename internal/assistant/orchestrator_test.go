// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/sheetmate/internal/content"
	"github.com/jeranaias/sheetmate/internal/credential"
	"github.com/jeranaias/sheetmate/internal/host"
	"github.com/jeranaias/sheetmate/internal/llm"
	"github.com/jeranaias/sheetmate/internal/model"
	"github.com/jeranaias/sheetmate/internal/provider"
	"github.com/jeranaias/sheetmate/internal/session"
	"github.com/jeranaias/sheetmate/internal/settings"
)

// =============================================================================
// FAKES
// =============================================================================

type fakeAdapter struct {
	id         provider.ID
	deltas     []string
	err        error
	structured string
	image      *llm.Image

	mu    sync.Mutex
	calls int
	chat  llm.ChatRequest
	gen   llm.StructuredRequest
	block chan struct{}
}

func (f *fakeAdapter) Provider() provider.ID { return f.id }

func (f *fakeAdapter) StreamChat(ctx context.Context, req llm.ChatRequest, onDelta llm.DeltaFunc) (string, error) {
	f.mu.Lock()
	f.calls++
	f.chat = req
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	var out string
	for _, d := range f.deltas {
		if onDelta != nil {
			onDelta(d)
		}
		out += d
	}
	if f.err != nil {
		if out != "" {
			return out, &llm.StreamError{Partial: out, Err: f.err}
		}
		return "", f.err
	}
	return out, nil
}

func (f *fakeAdapter) GenerateStructured(ctx context.Context, req llm.StructuredRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.gen = req
	return f.structured, f.err
}

func (f *fakeAdapter) GenerateImage(ctx context.Context, req llm.ImageRequest) (*llm.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.image, nil
}

func (f *fakeAdapter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingHost struct {
	sel   host.Selection
	err   error
	codes []string
}

func (h *recordingHost) Selection() host.Selection                      { return h.sel }
func (h *recordingHost) OnSelectionChanged(func(host.Selection)) func() { return func() {} }
func (h *recordingHost) RunScript(_ context.Context, code string) error {
	h.codes = append(h.codes, code)
	return h.err
}

func newResolver(env credential.EnvKeys) *credential.Resolver {
	return credential.NewResolver(env, settings.NewMemoryStore(), zerolog.Nop())
}

func newSession(h host.Host, sel provider.Selection) *session.Session {
	return session.New("test-session", h, sel)
}

var claudeSel = provider.Selection{Provider: provider.Claude, Model: "claude-haiku-4-5-20251001"}

// =============================================================================
// SEND MESSAGE
// =============================================================================

func TestSendMessage_CommitsAfterStream(t *testing.T) {
	fake := &fakeAdapter{id: provider.Claude, deltas: []string{"Hel", "lo"}}
	o := New(Backends{Claude: fake}, newResolver(credential.EnvKeys{Anthropic: "k"}), DefaultConfig(), zerolog.Nop())
	h := &recordingHost{sel: host.Selection{Address: "Sheet1!A1", Text: "42"}}
	s := newSession(h, claudeSel)

	var got []string
	reply, err := o.SendMessage(context.Background(), s, "hi", func(d string) { got = append(got, d) })
	require.NoError(t, err)

	assert.Equal(t, "Hello", reply.Text)
	assert.Equal(t, credential.SourceEnv, reply.Source)
	assert.Equal(t, []string{"Hel", "lo"}, got)
	assert.Equal(t, "k", fake.chat.APIKey)
	assert.Contains(t, fake.chat.System, "Selected Cell Address: Sheet1!A1, Selected Cell Value: 42")

	msgs := s.Conversation().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, "hi", msgs[0].Text)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Hello", msgs[1].Text)
	assert.False(t, s.Busy())
}

func TestSendMessage_PassesPriorHistory(t *testing.T) {
	fake := &fakeAdapter{id: provider.Claude, deltas: []string{"second"}}
	o := New(Backends{Claude: fake}, newResolver(credential.EnvKeys{Anthropic: "k"}), DefaultConfig(), zerolog.Nop())
	s := newSession(&recordingHost{}, claudeSel)
	s.Conversation().Append(model.NewUserMessage("q1", nil), model.NewAssistantMessage("a1"))

	_, err := o.SendMessage(context.Background(), s, "q2", nil)
	require.NoError(t, err)

	require.Len(t, fake.chat.History, 2)
	assert.Equal(t, "q1", fake.chat.History[0].Text)
	assert.Equal(t, "q2", fake.chat.Text)
	assert.Equal(t, 4, s.Conversation().Len())
}

func TestSendMessage_MissingKeyFailsFast(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	backends := NewBackends(BackendOptions{
		OpenAIBaseURL:    srv.URL,
		AnthropicBaseURL: srv.URL,
		GeminiBaseURL:    srv.URL,
	}, zerolog.Nop())
	defer backends.Close()
	o := New(backends, newResolver(credential.EnvKeys{}), DefaultConfig(), zerolog.Nop())

	for _, id := range provider.All() {
		t.Run(string(id), func(t *testing.T) {
			s := newSession(&recordingHost{}, provider.Selection{Provider: id, Model: "m"})
			require.NoError(t, s.Pending().Add(content.Attachment{Name: "a.png", MimeType: "image/png", Data: "AA=="}))

			_, err := o.SendMessage(context.Background(), s, "hello", nil)
			require.ErrorIs(t, err, credential.ErrCredentialMissing)
			assert.Equal(t, 1, s.Pending().Len(), "nothing was dispatched")
			assert.Equal(t, 0, s.Conversation().Len())
		})
	}
	assert.Equal(t, int32(0), hits.Load())
}

func TestSendMessage_InputKeyUsed(t *testing.T) {
	fake := &fakeAdapter{id: provider.Gemini, deltas: []string{"ok"}}
	o := New(Backends{Gemini: fake}, newResolver(credential.EnvKeys{}), DefaultConfig(), zerolog.Nop())
	s := newSession(&recordingHost{}, provider.Selection{Provider: provider.Gemini, Model: "gemini-2.5-flash"})
	s.SetInputKey("typed")

	reply, err := o.SendMessage(context.Background(), s, "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, credential.SourceInput, reply.Source)
	assert.Equal(t, "typed", fake.chat.APIKey)
}

func TestSendMessage_UnknownProvider(t *testing.T) {
	fake := &fakeAdapter{id: provider.OpenAI}
	o := New(Backends{OpenAI: fake}, newResolver(credential.EnvKeys{OpenAI: "k"}), DefaultConfig(), zerolog.Nop())
	s := newSession(&recordingHost{}, provider.Selection{Provider: "mistral", Model: "m"})

	_, err := o.SendMessage(context.Background(), s, "hello", nil)
	require.ErrorIs(t, err, provider.ErrUnknownProvider)
	assert.Equal(t, 0, fake.callCount())
}

func TestSendMessage_BackendUnavailable(t *testing.T) {
	o := New(Backends{}, newResolver(credential.EnvKeys{Gemini: "k"}), DefaultConfig(), zerolog.Nop())
	s := newSession(&recordingHost{}, provider.Selection{Provider: provider.Gemini, Model: "m"})

	_, err := o.SendMessage(context.Background(), s, "hello", nil)
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestSendMessage_Empty(t *testing.T) {
	o := New(Backends{}, newResolver(credential.EnvKeys{}), DefaultConfig(), zerolog.Nop())
	_, err := o.SendMessage(context.Background(), newSession(&recordingHost{}, claudeSel), "   ", nil)
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestSendMessage_FailureLeavesHistoryAndConsumesAttachments(t *testing.T) {
	upstream := &llm.UpstreamError{Provider: provider.Claude, Status: 500, Message: "overloaded"}
	fake := &fakeAdapter{id: provider.Claude, deltas: []string{"par"}, err: upstream}
	o := New(Backends{Claude: fake}, newResolver(credential.EnvKeys{Anthropic: "k"}), DefaultConfig(), zerolog.Nop())
	s := newSession(&recordingHost{}, claudeSel)
	require.NoError(t, s.Pending().Add(content.Attachment{Name: "a.png", MimeType: "image/png", Data: "AA=="}))

	_, err := o.SendMessage(context.Background(), s, "hello", nil)
	require.Error(t, err)

	var se *llm.StreamError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "par", se.Partial)
	var ue *llm.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "overloaded", ue.Message)

	assert.Equal(t, 0, s.Conversation().Len())
	assert.Equal(t, 0, s.Pending().Len(), "attachments are consumed at dispatch")
	assert.Len(t, fake.chat.Attachments, 1)
	assert.False(t, s.Busy())
}

func TestSendMessage_RejectsOverlap(t *testing.T) {
	fake := &fakeAdapter{id: provider.Claude, deltas: []string{"x"}, block: make(chan struct{})}
	o := New(Backends{Claude: fake}, newResolver(credential.EnvKeys{Anthropic: "k"}), DefaultConfig(), zerolog.Nop())
	s := newSession(&recordingHost{}, claudeSel)

	done := make(chan error, 1)
	go func() {
		_, err := o.SendMessage(context.Background(), s, "first", nil)
		done <- err
	}()
	require.Eventually(t, func() bool { return fake.callCount() == 1 }, timeout, tick)

	_, err := o.SendMessage(context.Background(), s, "second", nil)
	assert.ErrorIs(t, err, ErrBusy)

	close(fake.block)
	require.NoError(t, <-done)
	assert.Equal(t, 2, s.Conversation().Len())
}

// Given an env key for claude and an empty history, "hello" reaches the
// messages endpoint as a single plain user message with the rendered system
// prompt, and one content_block_delta commits both turns.
func TestSendMessage_ClaudeEndToEnd(t *testing.T) {
	var body map[string]any
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		headers = r.Header.Clone()
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(raw, &body))

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: message_start\ndata: {\"type\":\"message_start\"}\n\n")
		fmt.Fprint(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"Hi\"}}\n\n")
		fmt.Fprint(w, "event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n")
	}))
	defer srv.Close()

	backends := NewBackends(BackendOptions{AnthropicBaseURL: srv.URL}, zerolog.Nop())
	defer backends.Close()
	o := New(backends, newResolver(credential.EnvKeys{Anthropic: "env-key"}), DefaultConfig(), zerolog.Nop())
	s := newSession(&recordingHost{sel: host.Selection{Address: "B2", Text: "売上"}}, claudeSel)

	reply, err := o.SendMessage(context.Background(), s, "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, "Hi", reply.Text)

	assert.Equal(t, "env-key", headers.Get("x-api-key"))
	assert.NotEmpty(t, headers.Get("anthropic-version"))
	assert.Equal(t, claudeSel.Model, body["model"])
	assert.Equal(t, true, body["stream"])
	assert.Contains(t, body["system"], "Selected Cell Address: B2, Selected Cell Value: 売上")
	assert.Equal(t, []any{map[string]any{"role": "user", "content": "hello"}}, body["messages"])

	msgs := s.Conversation().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, "hello", msgs[0].Text)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Hi", msgs[1].Text)
}

// =============================================================================
// IMAGES
// =============================================================================

func TestSendMessage_ImageSelectionRoutesToImage(t *testing.T) {
	png := &llm.Image{MimeType: "image/png", Data: []byte{1, 2, 3}}
	fake := &fakeAdapter{id: provider.Gemini, image: png}
	o := New(Backends{GeminiImage: fake}, newResolver(credential.EnvKeys{Gemini: "k"}), DefaultConfig(), zerolog.Nop())
	s := newSession(&recordingHost{}, provider.Selection{Provider: provider.GeminiImage, Model: "gemini-3-pro-image-preview"})

	reply, err := o.SendMessage(context.Background(), s, "a cat", nil)
	require.NoError(t, err)
	assert.Same(t, png, reply.Image)
	assert.Equal(t, "[image generated: image/png, 3 bytes]", reply.Text)

	last, ok := s.Conversation().Last()
	require.True(t, ok)
	assert.Equal(t, reply.Text, last.Text)
}

func TestGenerateImage(t *testing.T) {
	png := &llm.Image{MimeType: "image/png", Data: []byte{9}}
	fake := &fakeAdapter{id: provider.OpenAI, image: png}
	o := New(Backends{OpenAI: fake, OpenAIImage: fake, Claude: fake}, newResolver(credential.EnvKeys{OpenAI: "k", Anthropic: "k"}), DefaultConfig(), zerolog.Nop())

	s := newSession(&recordingHost{}, provider.Selection{Provider: provider.OpenAIImage, Model: "gpt-image-1"})
	img, err := o.GenerateImage(context.Background(), s, "a cat")
	require.NoError(t, err)
	assert.Same(t, png, img)
	assert.Equal(t, 0, s.Conversation().Len())

	s = newSession(&recordingHost{}, claudeSel)
	_, err = o.GenerateImage(context.Background(), s, "a cat")
	assert.ErrorIs(t, err, llm.ErrImageUnsupported)
}

// =============================================================================
// GENERATE AND RUN
// =============================================================================

func TestGenerateAndRun_ExecutesCode(t *testing.T) {
	fake := &fakeAdapter{id: provider.OpenAI, structured: `{"description":"sum A1 and B1","excel_code":"await run()"}`}
	o := New(Backends{OpenAI: fake}, newResolver(credential.EnvKeys{OpenAI: "k"}), DefaultConfig(), zerolog.Nop())
	h := &recordingHost{sel: host.Selection{Address: "A1", Text: "1"}}
	s := newSession(h, provider.DefaultSelection())

	res, err := o.GenerateAndRun(context.Background(), s, "add them")
	require.NoError(t, err)
	assert.True(t, res.Executed)
	assert.Equal(t, "sum A1 and B1", res.Description)
	assert.Equal(t, []string{"await run()"}, h.codes)
	assert.Contains(t, fake.gen.System, "excel_code")
	assert.Contains(t, fake.gen.System, "Selected Cell Address: A1, Selected Cell Value: 1")
	assert.Equal(t, 0, s.Conversation().Len())
}

func TestGenerateAndRun_MissingCode(t *testing.T) {
	for _, raw := range []string{
		`{"description":"nothing to do"}`,
		`{"description":"blank","excel_code":"  "}`,
	} {
		fake := &fakeAdapter{id: provider.OpenAI, structured: raw}
		o := New(Backends{OpenAI: fake}, newResolver(credential.EnvKeys{OpenAI: "k"}), DefaultConfig(), zerolog.Nop())
		h := &recordingHost{}
		s := newSession(h, provider.DefaultSelection())

		res, err := o.GenerateAndRun(context.Background(), s, "do it")
		require.ErrorIs(t, err, ErrNoCodeProduced)
		assert.Equal(t, NoCodeDescription, res.Description)
		assert.False(t, res.Executed)
		assert.Empty(t, h.codes, "host is not called")
	}
}

func TestGenerateAndRun_HostFailureKeepsHistory(t *testing.T) {
	fake := &fakeAdapter{id: provider.Claude, structured: "```json\n{\"description\":\"d\",\"excel_code\":\"boom()\"}\n```"}
	o := New(Backends{Claude: fake}, newResolver(credential.EnvKeys{Anthropic: "k"}), DefaultConfig(), zerolog.Nop())
	h := &recordingHost{err: &host.ExecutionError{Message: "InvalidArgument"}}
	s := newSession(h, claudeSel)
	s.Conversation().Append(model.NewUserMessage("q", nil), model.NewAssistantMessage("a"))

	res, err := o.GenerateAndRun(context.Background(), s, "break it")
	var ee *host.ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "boom()", res.Code)
	assert.False(t, res.Executed)
	assert.Equal(t, 2, s.Conversation().Len())
}

func TestGenerateAndRun_UpstreamFailure(t *testing.T) {
	fake := &fakeAdapter{id: provider.OpenAI, err: errors.New("connection reset")}
	o := New(Backends{OpenAI: fake}, newResolver(credential.EnvKeys{OpenAI: "k"}), DefaultConfig(), zerolog.Nop())
	h := &recordingHost{}

	_, err := o.GenerateAndRun(context.Background(), newSession(h, provider.DefaultSelection()), "x")
	assert.Error(t, err)
	assert.Empty(t, h.codes)
}

func TestGenerateAndRun_ImageModel(t *testing.T) {
	fake := &fakeAdapter{id: provider.OpenAI}
	o := New(Backends{OpenAIImage: fake}, newResolver(credential.EnvKeys{OpenAI: "k"}), DefaultConfig(), zerolog.Nop())
	s := newSession(&recordingHost{}, provider.Selection{Provider: provider.OpenAIImage, Model: "gpt-image-1"})

	_, err := o.GenerateAndRun(context.Background(), s, "x")
	assert.ErrorIs(t, err, ErrNoChatPath)
}

func TestGenerateAndRun_BridgeHost(t *testing.T) {
	fake := &fakeAdapter{id: provider.OpenAI, structured: `{"description":"d","excel_code":"go()"}`}
	o := New(Backends{OpenAI: fake}, newResolver(credential.EnvKeys{OpenAI: "k"}), DefaultConfig(), zerolog.Nop())
	bridge := host.NewBridge()
	s := newSession(bridge, provider.DefaultSelection())

	go func() {
		script, err := bridge.Next(context.Background())
		if err != nil {
			return
		}
		_ = bridge.Resolve(script.ID, host.Result{Success: true})
	}()

	res, err := o.GenerateAndRun(context.Background(), s, "x")
	require.NoError(t, err)
	assert.True(t, res.Executed)
}

// =============================================================================
// PARSING
// =============================================================================

func TestParseScript(t *testing.T) {
	s, err := ParseScript("  {\"description\":\"d\",\"excel_code\":\"c\"}  ")
	require.NoError(t, err)
	assert.Equal(t, Script{Description: "d", Code: "c"}, s)

	s, err = ParseScript("```\n{\"description\":\"d\",\"excel_code\":\"c\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, "c", s.Code)

	_, err = ParseScript("Sure! Here is the code")
	assert.ErrorIs(t, err, llm.ErrMissingField)
}

func TestBackends_Prober(t *testing.T) {
	b := NewBackends(BackendOptions{}, zerolog.Nop())
	defer b.Close()
	for _, id := range provider.All() {
		_, ok := b.Prober(id)
		assert.True(t, ok, id)
	}
	_, ok := Backends{}.Prober(provider.Claude)
	assert.False(t, ok)
}

const (
	timeout = time.Second
	tick    = 5 * time.Millisecond
)
