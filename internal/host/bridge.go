// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package host

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// scriptQueueSize bounds scripts waiting for the pane to pick them up.
const scriptQueueSize = 16

// Script is a unit of work delivered to the task pane.
type Script struct {
	ID   string `json:"id"`
	Code string `json:"code"`
}

// Result is the task pane's report for one script.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Bridge is a Host whose other side is the browser task pane. The pane
// pushes selection changes with SetSelection, receives scripts from Next
// and reports outcomes with Resolve.
type Bridge struct {
	mu        sync.RWMutex
	selection Selection
	listeners map[int]func(Selection)
	nextID    int

	scripts chan Script

	pendingMu sync.Mutex
	pending   map[string]chan Result
}

// NewBridge creates an idle bridge.
func NewBridge() *Bridge {
	return &Bridge{
		listeners: make(map[int]func(Selection)),
		scripts:   make(chan Script, scriptQueueSize),
		pending:   make(map[string]chan Result),
	}
}

// Selection implements Host.
func (b *Bridge) Selection() Selection {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.selection
}

// OnSelectionChanged implements Host.
func (b *Bridge) OnSelectionChanged(fn func(Selection)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}

// SetSelection records a selection change and notifies listeners.
func (b *Bridge) SetSelection(sel Selection) {
	b.mu.Lock()
	b.selection = sel
	fns := make([]func(Selection), 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(sel)
	}
}

// Next blocks until a script is ready for the pane or ctx ends. Scripts
// whose RunScript call already returned are dropped, so a pane connecting
// late never runs work that was reported as failed.
func (b *Bridge) Next(ctx context.Context) (Script, error) {
	for {
		select {
		case script := <-b.scripts:
			b.pendingMu.Lock()
			_, live := b.pending[script.ID]
			b.pendingMu.Unlock()
			if live {
				return script, nil
			}
		case <-ctx.Done():
			return Script{}, ctx.Err()
		}
	}
}

// RunScript implements Host. It queues code for the pane and blocks until
// the pane resolves it or ctx ends.
func (b *Bridge) RunScript(ctx context.Context, code string) error {
	script := Script{ID: uuid.NewString(), Code: code}
	done := make(chan Result, 1)

	b.pendingMu.Lock()
	b.pending[script.ID] = done
	b.pendingMu.Unlock()
	defer func() {
		b.pendingMu.Lock()
		delete(b.pending, script.ID)
		b.pendingMu.Unlock()
	}()

	select {
	case b.scripts <- script:
	case <-ctx.Done():
		return &ExecutionError{ScriptID: script.ID, Message: "task pane did not accept the script", Err: ctx.Err()}
	}

	select {
	case res := <-done:
		if !res.Success {
			return &ExecutionError{ScriptID: script.ID, Message: res.Error}
		}
		return nil
	case <-ctx.Done():
		return &ExecutionError{ScriptID: script.ID, Message: "no result from task pane", Err: ctx.Err()}
	}
}

// Resolve delivers the pane's result for script id.
func (b *Bridge) Resolve(id string, res Result) error {
	b.pendingMu.Lock()
	done, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
	}
	b.pendingMu.Unlock()

	if !ok {
		return ErrUnknownScript
	}
	done <- res
	return nil
}

// Pending returns the number of scripts awaiting a result.
func (b *Bridge) Pending() int {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	return len(b.pending)
}
