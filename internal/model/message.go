// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/sheetmate/internal/content"
	"github.com/jeranaias/sheetmate/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message. System prompts are never stored
// in history, so only two roles exist.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is one entry of a conversation.
type Message struct {
	ID          string               `json:"id"`
	Role        Role                 `json:"role"`
	Text        string               `json:"text"`
	Attachments []content.Attachment `json:"attachments,omitempty"`
	Timestamp   time.Time            `json:"timestamp"`
}

// NewMessage creates a message with a generated ID.
func NewMessage(role Role, text string, attachments []content.Attachment) Message {
	return Message{
		ID:          uuid.NewString(),
		Role:        role,
		Text:        text,
		Attachments: attachments,
		Timestamp:   time.Now(),
	}
}

// NewUserMessage creates a user message carrying attachments.
func NewUserMessage(text string, attachments []content.Attachment) Message {
	return NewMessage(RoleUser, text, attachments)
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(text string) Message {
	return NewMessage(RoleAssistant, text, nil)
}

// Preview returns a single-line, width-limited preview of the text.
func (m Message) Preview(maxWidth int) string {
	return util.TruncateWidth(util.SingleLine(m.Text), maxWidth)
}

// IsEmpty reports whether the message has neither text nor attachments.
func (m Message) IsEmpty() bool {
	return m.Text == "" && len(m.Attachments) == 0
}

// =============================================================================
// STATISTICS TYPE
// =============================================================================

// Statistics holds timing for one streamed generation.
type Statistics struct {
	StartTime      time.Time
	FirstTokenTime time.Time
	EndTime        time.Time

	Chunks int

	TTFT          time.Duration
	TotalDuration time.Duration
}

// NewStatistics creates Statistics with the start time set.
func NewStatistics() *Statistics {
	return &Statistics{StartTime: time.Now()}
}

// RecordChunk counts a text increment and stamps the first one.
func (s *Statistics) RecordChunk() {
	s.Chunks++
	if s.FirstTokenTime.IsZero() {
		s.FirstTokenTime = time.Now()
		s.TTFT = s.FirstTokenTime.Sub(s.StartTime)
	}
}

// Finalize stamps the end time.
func (s *Statistics) Finalize() {
	s.EndTime = time.Now()
	s.TotalDuration = s.EndTime.Sub(s.StartTime)
}

// Format returns e.g. "2.5s | 42 chunks | TTFT 234ms".
func (s *Statistics) Format() string {
	return fmt.Sprintf("%s | %d chunks | TTFT %dms",
		formatDuration(s.TotalDuration), s.Chunks, s.TTFT.Milliseconds())
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
