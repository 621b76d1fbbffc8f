// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package content holds user attachments and the per-provider encoders that
// turn a message text plus its attachments into each vendor's content shape.
//
// The three encoders differ on purpose and the differences are part of each
// vendor's wire contract:
//
//   - EncodeOpenAI: plain string without attachments; otherwise the text
//     block comes FIRST, followed by one image_url block per image. PDFs and
//     other non-image files are dropped.
//   - EncodeAnthropic: plain string without attachments; otherwise one image
//     or document block per attachment with the text block LAST.
//   - EncodeGemini: always a list of parts, even with no attachments, with
//     the text part last.
package content
