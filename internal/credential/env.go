// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package credential

import (
	"fmt"

	"github.com/caarlos0/env/v10"

	"github.com/jeranaias/sheetmate/internal/provider"
)

// EnvKeys is the deploy-time key table. Values come from the process
// environment and take priority over every other layer.
type EnvKeys struct {
	OpenAI    string `env:"OPENAI_API_KEY"`
	Anthropic string `env:"ANTHROPIC_API_KEY"`
	Gemini    string `env:"GEMINI_API_KEY"`
}

// LoadEnvKeys reads EnvKeys from the environment.
func LoadEnvKeys() (EnvKeys, error) {
	var keys EnvKeys
	if err := env.Parse(&keys); err != nil {
		return EnvKeys{}, fmt.Errorf("failed to parse provider keys from environment: %w", err)
	}
	return keys, nil
}

// For returns the key for id after normalization. Unknown ids yield "".
func (k EnvKeys) For(id provider.ID) string {
	switch id.Base() {
	case provider.OpenAI:
		return k.OpenAI
	case provider.Claude:
		return k.Anthropic
	case provider.Gemini:
		return k.Gemini
	}
	return ""
}
