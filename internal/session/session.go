// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jeranaias/sheetmate/internal/content"
	"github.com/jeranaias/sheetmate/internal/host"
	"github.com/jeranaias/sheetmate/internal/model"
	"github.com/jeranaias/sheetmate/internal/provider"
)

// =============================================================================
// SESSION
// =============================================================================

// Session is the state of one assistant panel.
type Session struct {
	id        string
	startTime time.Time
	host      host.Host
	pending   content.Pending
	busy      atomic.Bool

	mu           sync.RWMutex
	conv         *model.Conversation
	selection    provider.Selection
	inputKey     string
	lastActivity time.Time
}

// New creates a session bound to h using sel as the initial model.
func New(id string, h host.Host, sel provider.Selection) *Session {
	now := time.Now()
	return &Session{
		id:           id,
		startTime:    now,
		host:         h,
		conv:         model.NewConversation(),
		selection:    sel,
		lastActivity: now,
	}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Host returns the host collaborator.
func (s *Session) Host() host.Host {
	return s.host
}

// Bridge returns the host as a *host.Bridge when it is one.
func (s *Session) Bridge() (*host.Bridge, bool) {
	b, ok := s.host.(*host.Bridge)
	return b, ok
}

// Conversation returns the current history.
func (s *Session) Conversation() *model.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conv
}

// Reset starts a new, empty conversation. Pending attachments are dropped.
func (s *Session) Reset() {
	s.mu.Lock()
	s.conv = model.NewConversation()
	s.lastActivity = time.Now()
	s.mu.Unlock()
	s.pending.Clear()
}

// Pending returns the attachments waiting for the next message.
func (s *Session) Pending() *content.Pending {
	return &s.pending
}

// Model returns the selected provider and model.
func (s *Session) Model() provider.Selection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selection
}

// SetModel changes the selected provider and model.
func (s *Session) SetModel(sel provider.Selection) {
	s.mu.Lock()
	s.selection = sel
	s.mu.Unlock()
}

// InputKey returns the ambient key typed into the panel.
func (s *Session) InputKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inputKey
}

// SetInputKey replaces the ambient key.
func (s *Session) SetInputKey(key string) {
	s.mu.Lock()
	s.inputKey = key
	s.mu.Unlock()
}

// =============================================================================
// IN-FLIGHT GUARD
// =============================================================================

// TryBegin claims the session for one operation. It returns false while
// another operation holds it.
func (s *Session) TryBegin() bool {
	if !s.busy.CompareAndSwap(false, true) {
		return false
	}
	s.RecordActivity()
	return true
}

// End releases the claim taken by TryBegin.
func (s *Session) End() {
	s.RecordActivity()
	s.busy.Store(false)
}

// Busy reports whether an operation is in flight.
func (s *Session) Busy() bool {
	return s.busy.Load()
}

// =============================================================================
// ACTIVITY TRACKING
// =============================================================================

// RecordActivity updates the last activity timestamp.
func (s *Session) RecordActivity() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// IdleTime returns how long since last activity.
func (s *Session) IdleTime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.lastActivity)
}

// Status is a point-in-time summary of a session.
type Status struct {
	SessionID   string        `json:"session_id"`
	StartTime   time.Time     `json:"start_time"`
	IdleTime    time.Duration `json:"idle_ns"`
	Messages    int           `json:"messages"`
	Attachments int           `json:"attachments"`
	Model       string        `json:"model"`
	Busy        bool          `json:"busy"`
}

// GetStatus returns the current session status.
func (s *Session) GetStatus() Status {
	s.mu.RLock()
	conv := s.conv
	sel := s.selection
	idle := time.Since(s.lastActivity)
	s.mu.RUnlock()

	return Status{
		SessionID:   s.id,
		StartTime:   s.startTime,
		IdleTime:    idle,
		Messages:    conv.Len(),
		Attachments: s.pending.Len(),
		Model:       sel.String(),
		Busy:        s.Busy(),
	}
}
