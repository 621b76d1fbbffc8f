// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/sheetmate/internal/content"
)

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestNewMessage(t *testing.T) {
	att := []content.Attachment{{Name: "a.png", MimeType: "image/png", Data: "AA=="}}
	m := NewUserMessage("hello", att)

	assert.NotEmpty(t, m.ID)
	assert.Equal(t, RoleUser, m.Role)
	assert.Equal(t, "hello", m.Text)
	assert.Len(t, m.Attachments, 1)
	assert.False(t, m.Timestamp.IsZero())

	other := NewAssistantMessage("Hi")
	assert.NotEqual(t, m.ID, other.ID)
	assert.Equal(t, RoleAssistant, other.Role)
	assert.Nil(t, other.Attachments)
}

func TestMessage_Preview(t *testing.T) {
	m := NewAssistantMessage("line one\nline two " + strings.Repeat("x", 50))
	p := m.Preview(20)
	assert.NotContains(t, p, "\n")
	assert.LessOrEqual(t, len([]rune(p)), 20)
}

func TestMessage_IsEmpty(t *testing.T) {
	assert.True(t, Message{}.IsEmpty())
	assert.False(t, NewAssistantMessage("x").IsEmpty())
}

func TestRole_DisplayName(t *testing.T) {
	assert.Equal(t, "You", RoleUser.DisplayName())
	assert.Equal(t, "Assistant", RoleAssistant.DisplayName())
	assert.Equal(t, "tool", Role("tool").DisplayName())
}

// =============================================================================
// CONVERSATION TESTS
// =============================================================================

func TestConversation_AppendKeepsOrder(t *testing.T) {
	c := NewConversation()
	assert.Equal(t, 0, c.Len())
	_, ok := c.Last()
	assert.False(t, ok)

	c.Append(NewUserMessage("q1", nil), NewAssistantMessage("a1"))
	c.Append(NewUserMessage("q2", nil), NewAssistantMessage("a2"))
	c.Append()

	msgs := c.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, []string{"q1", "a1", "q2", "a2"},
		[]string{msgs[0].Text, msgs[1].Text, msgs[2].Text, msgs[3].Text})

	last, ok := c.Last()
	require.True(t, ok)
	assert.Equal(t, "a2", last.Text)

	lastUser, ok := c.LastOf(RoleUser)
	require.True(t, ok)
	assert.Equal(t, "q2", lastUser.Text)
}

func TestConversation_MessagesIsCopy(t *testing.T) {
	c := NewConversation()
	c.Append(NewUserMessage("q", nil))
	msgs := c.Messages()
	msgs[0].Text = "mutated"
	got, _ := c.Last()
	assert.Equal(t, "q", got.Text)
}

func TestConversation_ConcurrentAppendIsPairwise(t *testing.T) {
	c := NewConversation()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Append(NewUserMessage("q", nil), NewAssistantMessage("a"))
		}()
	}
	wg.Wait()

	msgs := c.Messages()
	require.Len(t, msgs, 100)
	for i := 0; i < len(msgs); i += 2 {
		assert.Equal(t, RoleUser, msgs[i].Role)
		assert.Equal(t, RoleAssistant, msgs[i+1].Role)
	}
}

func TestConversation_Snapshot(t *testing.T) {
	c := NewConversation()
	c.Append(NewUserMessage("q", nil))
	snap := c.Snapshot()
	assert.Equal(t, c.ID, snap.ID)
	assert.Len(t, snap.Messages, 1)
	assert.False(t, snap.UpdatedAt.Before(snap.CreatedAt))
}

// =============================================================================
// STATISTICS TESTS
// =============================================================================

func TestStatistics(t *testing.T) {
	s := NewStatistics()
	time.Sleep(2 * time.Millisecond)
	s.RecordChunk()
	ttft := s.TTFT
	s.RecordChunk()
	s.Finalize()

	assert.Equal(t, 2, s.Chunks)
	assert.Equal(t, ttft, s.TTFT, "TTFT is fixed by the first chunk")
	assert.GreaterOrEqual(t, s.TotalDuration, s.TTFT)
	assert.Contains(t, s.Format(), "2 chunks")
}
