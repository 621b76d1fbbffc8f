// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// app.go - Component wiring shared by every command.
package cli

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jeranaias/sheetmate/internal/assistant"
	"github.com/jeranaias/sheetmate/internal/config"
	"github.com/jeranaias/sheetmate/internal/credential"
	"github.com/jeranaias/sheetmate/internal/logging"
	"github.com/jeranaias/sheetmate/internal/probe"
	"github.com/jeranaias/sheetmate/internal/provider"
	"github.com/jeranaias/sheetmate/internal/settings"
)

// App holds the components built from configuration.
type App struct {
	Config      *config.Config
	Log         zerolog.Logger
	Store       settings.Store
	Credentials *credential.Resolver
	Backends    assistant.Backends
	Assistant   *assistant.Orchestrator
	Probe       *probe.Probe
}

// LoadConfig loads the config file named by --config, or the default one.
func LoadConfig(args Args) (*config.Config, error) {
	if args.ConfigPath != "" {
		return config.LoadFromPath(args.ConfigPath)
	}
	return config.Load()
}

// NewApp loads configuration and wires the store, resolver, adapters and
// orchestrator. One-shot commands log warnings only unless --verbose.
func NewApp(args Args, cmd Command) (*App, error) {
	cfg, err := LoadConfig(args)
	if err != nil {
		return nil, err
	}

	level := cfg.Logging.Level
	switch {
	case args.Verbose:
		level = "debug"
	case cmd != CmdServe:
		level = "warn"
	}
	log, err := logging.New(level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	store, err := settings.Open(settings.Options{
		Kind:         cfg.Settings.Store,
		Path:         cfg.Settings.Path,
		FallbackPath: cfg.Settings.FallbackPath,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings store: %w", err)
	}

	envKeys, err := credential.LoadEnvKeys()
	if err != nil {
		store.Close()
		return nil, err
	}
	creds := credential.NewResolver(envKeys, store, log)

	backends := assistant.NewBackends(assistant.BackendOptions{
		OpenAIBaseURL:    cfg.Providers.OpenAI.BaseURL,
		AnthropicBaseURL: cfg.Providers.Anthropic.BaseURL,
		AnthropicVersion: cfg.Providers.Anthropic.Version,
		MaxTokens:        cfg.Providers.Anthropic.MaxTokens,
		GeminiBaseURL:    cfg.Providers.Gemini.BaseURL,
	}, log)

	orch := assistant.New(backends, creds, assistant.Config{
		RequestTimeout: cfg.RequestTimeout(),
		ScriptTimeout:  cfg.ScriptTimeout(),
		Language:       cfg.Model.Language,
	}, log)

	return &App{
		Config:      cfg,
		Log:         log,
		Store:       store,
		Credentials: creds,
		Backends:    backends,
		Assistant:   orch,
		Probe:       probe.New(backends, cfg.ProbeTimeout(), log),
	}, nil
}

// Selection returns the --model selection, or the configured default.
func (a *App) Selection(flag string) (provider.Selection, error) {
	if flag == "" {
		return a.Config.DefaultSelection(), nil
	}
	return provider.ParseSelection(flag)
}

// Close releases HTTP clients and the settings store.
func (a *App) Close() error {
	return errors.Join(a.Backends.Close(), a.Store.Close())
}
