// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for sheetmate.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (SHEETMATE_*)
//   - ~/.sheetmate/config.toml
//   - ~/.sheetmate/config.json
//   - Built-in defaults
//
// Provider API keys are not configuration. They come from OPENAI_API_KEY,
// ANTHROPIC_API_KEY and GEMINI_API_KEY, or from the settings store.
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	timeout := cfg.RequestTimeout()
package config
