// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package content

import "sync"

// MaxPending caps the number of files waiting for the next message.
const MaxPending = 10

// Pending holds attachments chosen for the next outgoing message. Each
// attachment is consumed by exactly one Take.
type Pending struct {
	mu    sync.Mutex
	files []Attachment
}

// Add queues a file. It fails with ErrTooManyAttachments at MaxPending.
func (p *Pending) Add(a Attachment) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.files) >= MaxPending {
		return ErrTooManyAttachments
	}
	p.files = append(p.files, a)
	return nil
}

// List returns a copy of the queued files.
func (p *Pending) List() []Attachment {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Attachment, len(p.files))
	copy(out, p.files)
	return out
}

// Take returns the queued files and empties the list.
func (p *Pending) Take() []Attachment {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.files
	p.files = nil
	return out
}

// Clear drops every queued file.
func (p *Pending) Clear() {
	p.mu.Lock()
	p.files = nil
	p.mu.Unlock()
}

// Len returns the number of queued files.
func (p *Pending) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.files)
}
