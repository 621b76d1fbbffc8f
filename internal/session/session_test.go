// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/sheetmate/internal/content"
	"github.com/jeranaias/sheetmate/internal/host"
	"github.com/jeranaias/sheetmate/internal/model"
	"github.com/jeranaias/sheetmate/internal/provider"
)

// =============================================================================
// SESSION TESTS
// =============================================================================

func TestSession_State(t *testing.T) {
	sel := provider.Selection{Provider: provider.Claude, Model: "claude-haiku-4-5-20251001"}
	s := New("s1", host.NewBridge(), sel)

	assert.Equal(t, "s1", s.ID())
	assert.Equal(t, sel, s.Model())
	_, ok := s.Bridge()
	assert.True(t, ok)

	s.SetInputKey("typed")
	assert.Equal(t, "typed", s.InputKey())

	next := provider.Selection{Provider: provider.Gemini, Model: "gemini-2.5-flash"}
	s.SetModel(next)
	assert.Equal(t, next, s.Model())
}

func TestSession_Reset(t *testing.T) {
	s := New("s1", host.NewStatic(host.Selection{}, nil), provider.DefaultSelection())
	s.Conversation().Append(model.NewUserMessage("q", nil))
	require.NoError(t, s.Pending().Add(content.Attachment{Name: "a", MimeType: "image/png"}))
	old := s.Conversation()

	s.Reset()
	assert.Equal(t, 0, s.Conversation().Len())
	assert.Equal(t, 0, s.Pending().Len())
	assert.Equal(t, 1, old.Len(), "the previous conversation is not edited")
	_, ok := s.Bridge()
	assert.False(t, ok)
}

func TestSession_InFlightGuard(t *testing.T) {
	s := New("s1", host.NewBridge(), provider.DefaultSelection())

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.TryBegin() {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.True(t, s.Busy())
	s.End()
	assert.False(t, s.Busy())
	assert.True(t, s.TryBegin())
}

func TestSession_GetStatus(t *testing.T) {
	s := New("s1", host.NewBridge(), provider.DefaultSelection())
	s.Conversation().Append(model.NewUserMessage("q", nil), model.NewAssistantMessage("a"))
	st := s.GetStatus()
	assert.Equal(t, "s1", st.SessionID)
	assert.Equal(t, 2, st.Messages)
	assert.Equal(t, "openai:gpt-4o", st.Model)
	assert.False(t, st.Busy)
}

// =============================================================================
// MANAGER TESTS
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 2*time.Hour, cfg.IdleTimeout)
	assert.Equal(t, provider.DefaultSelection(), cfg.DefaultModel)
}

func TestManager_GetOrCreate(t *testing.T) {
	m := NewManager(Config{})

	s, created := m.GetOrCreate("")
	assert.True(t, created)
	assert.NotEmpty(t, s.ID())

	again, created := m.GetOrCreate(s.ID())
	assert.False(t, created)
	assert.Same(t, s, again)

	named, created := m.GetOrCreate("pane-1")
	assert.True(t, created)
	assert.Equal(t, "pane-1", named.ID())
	assert.Equal(t, 2, m.Len())

	m.Delete("pane-1")
	_, ok := m.Get("pane-1")
	assert.False(t, ok)
}

func TestManager_SessionsAreIndependent(t *testing.T) {
	m := NewManager(Config{})
	a, _ := m.GetOrCreate("a")
	b, _ := m.GetOrCreate("b")
	a.Conversation().Append(model.NewUserMessage("only a", nil))
	a.SetInputKey("ka")

	assert.Equal(t, 0, b.Conversation().Len())
	assert.Empty(t, b.InputKey())
}

func TestManager_Sweep(t *testing.T) {
	m := NewManager(Config{IdleTimeout: 10 * time.Millisecond})
	var expired []string
	m.SetExpireCallback(func(s *Session) { expired = append(expired, s.ID()) })

	idle, _ := m.GetOrCreate("idle")
	busy, _ := m.GetOrCreate("busy")
	require.True(t, busy.TryBegin())
	_ = idle

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, m.Sweep())
	assert.Equal(t, []string{"idle"}, expired)
	_, ok := m.Get("busy")
	assert.True(t, ok)
}

func TestManager_Run(t *testing.T) {
	m := NewManager(Config{IdleTimeout: time.Millisecond, SweepInterval: 5 * time.Millisecond})
	m.GetOrCreate("x")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { m.Run(ctx); close(done) }()

	assert.Eventually(t, func() bool { return m.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45s", FormatDuration(45*time.Second))
	assert.Equal(t, "2m", FormatDuration(2*time.Minute))
	assert.Equal(t, "2m 5s", FormatDuration(125*time.Second))
}
