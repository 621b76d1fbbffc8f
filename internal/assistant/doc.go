// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package assistant is the conversation orchestrator.
//
// An Orchestrator owns no state of its own. Each operation receives the
// session.Session it acts on, resolves a credential for the session's model
// selection, renders the system prompt from the host's current selection and
// dispatches to the provider backend chosen by an exhaustive switch over
// provider.ID.
//
// # Operations
//
//   - SendMessage: streamed chat; history is committed only after the stream
//     completes (image selections route to GenerateImage)
//   - GenerateAndRun: JSON script generation followed by host execution
//   - GenerateImage: image generation for openai-image and gemini-image
//
// Credential and provider failures are reported before any network call.
// Overlapping operations on one session fail with ErrBusy.
package assistant
