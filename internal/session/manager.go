// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/sheetmate/internal/host"
	"github.com/jeranaias/sheetmate/internal/provider"
)

// =============================================================================
// SESSION MANAGER
// =============================================================================

// Config holds configuration for the session manager.
type Config struct {
	// IdleTimeout expires sessions without activity (default: 2 hours).
	IdleTimeout time.Duration

	// SweepInterval is how often Run looks for expired sessions.
	SweepInterval time.Duration

	// DefaultModel is the selection new sessions start with.
	DefaultModel provider.Selection
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		IdleTimeout:   2 * time.Hour,
		SweepInterval: time.Minute,
		DefaultModel:  provider.DefaultSelection(),
	}
}

// Manager keeps sessions keyed by id. Every session it creates is backed by
// a host.Bridge.
type Manager struct {
	mu       sync.RWMutex
	cfg      Config
	sessions map[string]*Session
	onExpire func(*Session)
}

// NewManager creates an empty manager.
func NewManager(cfg Config) *Manager {
	def := DefaultConfig()
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.DefaultModel.IsZero() {
		cfg.DefaultModel = def.DefaultModel
	}
	return &Manager{cfg: cfg, sessions: make(map[string]*Session)}
}

// SetExpireCallback registers fn to run for each expired session.
func (m *Manager) SetExpireCallback(fn func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = fn
}

// Get returns the session with id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// GetOrCreate returns the session with id, creating it when missing. An
// empty id always creates a session with a fresh uuid.
func (m *Manager) GetOrCreate(id string) (*Session, bool) {
	if id != "" {
		if s, ok := m.Get(id); ok {
			s.RecordActivity()
			return s, false
		}
	} else {
		id = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s, false
	}
	s := New(id, host.NewBridge(), m.cfg.DefaultModel)
	m.sessions[id] = s
	return s, true
}

// Delete removes the session with id.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep removes sessions idle for longer than IdleTimeout. Busy sessions are
// kept. It returns the number removed.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if s.Busy() || s.IdleTime() < m.cfg.IdleTimeout {
			continue
		}
		delete(m.sessions, id)
		expired = append(expired, s)
	}
	onExpire := m.onExpire
	m.mu.Unlock()

	if onExpire != nil {
		for _, s := range expired {
			onExpire(s)
		}
	}
	return len(expired)
}

// Run sweeps every SweepInterval until ctx ends.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// FormatDuration returns a human-readable duration string.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	if secs == 0 {
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%dm %ds", mins, secs)
}
