// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes the assistant to the spreadsheet task pane over HTTP.
//
// Every /api route runs inside a panel session chosen by the X-Session-ID
// header. A request without the header starts a new session and the
// response carries its ID.
//
// # Endpoints
//
//   - GET    /health                     - Liveness and session count
//   - GET    /api/session                - Session status
//   - PUT    /api/session/key            - Set the per-session input key
//   - POST   /api/chat                   - Send a message (text/event-stream)
//   - POST   /api/generate               - Generate a script and run it in the pane
//   - POST   /api/image                  - Generate an image
//   - GET    /api/attachments            - List pending attachments
//   - POST   /api/attachments            - Upload an attachment (multipart "file")
//   - DELETE /api/attachments            - Drop pending attachments
//   - GET    /api/history                - Conversation history
//   - DELETE /api/history                - Start a new conversation
//   - GET    /api/keys                   - Key status per provider
//   - PUT    /api/keys/:provider         - Save a key
//   - DELETE /api/keys/:provider         - Delete a saved key
//   - POST   /api/keys/:provider/test    - Test a key
//   - POST   /api/keys/:provider/restore - Copy the saved key into the input key
//   - GET    /api/models                 - Model catalog and current selection
//   - PUT    /api/model                  - Select a model
//   - GET    /api/selection              - Current cell selection
//   - POST   /api/selection              - Report a selection change
//   - GET    /api/scripts                - Scripts for the pane (text/event-stream)
//   - POST   /api/scripts/:id/result     - Report a script outcome
//
// # Chat Stream
//
// POST /api/chat answers with "delta" events carrying {"text"} and ends with
// either "done" or "error". Failures detected before the first delta are
// plain JSON errors with a matching status code instead.
//
// # Errors
//
// Error bodies are {"error", "code"} with an optional "upstream_status"
// when a provider rejected the call.
package server
