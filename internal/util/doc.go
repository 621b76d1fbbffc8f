// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across sheetmate packages.
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe truncation with ellipsis
//   - TruncateWidth: display-width truncation (CJK aware)
//   - SingleLine: collapse whitespace for log previews
//
// File Operations:
//   - AtomicWriteFile: crash-safe file writing with fsync
//
// # Usage
//
//	// Preview a Japanese cell value in a log line
//	preview := util.TruncateWidth(util.SingleLine(value), 40)
//
//	// Write the settings file atomically
//	err := util.AtomicWriteFile(path, data, 0600)
package util
