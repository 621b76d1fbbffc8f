// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package llm defines the contract shared by the provider adapters and the
// plumbing they have in common.
//
// # Operations
//
// Every adapter implements Adapter:
//
//   - StreamChat sends a conversation and delivers text increments as they
//     arrive, returning the concatenated reply when the stream ends
//   - GenerateStructured makes one non-streaming call constrained to JSON
//
// OpenAI and Gemini additionally implement ImageGenerator. All three
// implement Prober for key checks.
//
// # Streaming
//
// RunStream drives one streamed response through the state machine
//
//	idle -> connecting -> streaming -> completed | failed | aborted
//
// using a provider-specific FrameParser. Frames that fail to decode are
// skipped and counted; they never end the stream. Nothing is retried.
//
// # Errors
//
// Non-2xx responses become *UpstreamError carrying the provider's message
// when one can be extracted. Failures after text has been delivered are
// wrapped in *StreamError so callers can show the partial reply.
package llm
