// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// Messages are stored provider-agnostic: a role, the text the user typed or
// the model produced, and any attachments sent with it. Each provider adapter
// encodes them into its own wire shape only when a request is built.
//
// # Key Types
//
//   - Conversation: append-only, ordered message history for one session
//   - Message: single message with role, text, attachments and timestamp
//   - Statistics: timing for one streamed generation
//
// # Usage
//
//	conv := model.NewConversation()
//	conv.Append(
//	    model.NewUserMessage("hello", nil),
//	    model.NewAssistantMessage("Hi"),
//	)
package model
