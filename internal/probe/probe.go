// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package probe checks API keys and model availability with the cheapest
// call each provider offers. Probes never touch conversation history or the
// credential store.
package probe

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/sheetmate/internal/credential"
	"github.com/jeranaias/sheetmate/internal/llm"
	"github.com/jeranaias/sheetmate/internal/provider"
)

// DefaultTimeout bounds a single probe call.
const DefaultTimeout = 15 * time.Second

// DefaultConcurrency is how many models CheckModels pings at once.
const DefaultConcurrency = 4

// invalidKey is reported when the provider rejects a key without a message.
const invalidKey = "Invalid API key"

// Source returns the prober for a provider.
type Source interface {
	Prober(id provider.ID) (llm.Prober, bool)
}

// Result is the outcome of a key test.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ModelResult is the outcome of one model ping.
type ModelResult struct {
	Provider provider.ID `json:"provider"`
	Model    string      `json:"model"`
	Success  bool        `json:"success"`
	Error    string      `json:"error,omitempty"`
	Code     int         `json:"code,omitempty"`
}

// Probe runs key and model checks.
type Probe struct {
	src     Source
	timeout time.Duration
	log     zerolog.Logger
}

// New creates a probe. A zero timeout uses DefaultTimeout.
func New(src Source, timeout time.Duration, log zerolog.Logger) *Probe {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Probe{src: src, timeout: timeout, log: log}
}

// TestKey validates key against the provider named by raw.
func (p *Probe) TestKey(ctx context.Context, raw, key string) Result {
	id, err := provider.Parse(raw)
	if err != nil {
		return Result{Error: "Unknown provider: " + raw}
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return Result{Error: credential.ErrEmptyKey.Error()}
	}
	pr, ok := p.src.Prober(id)
	if !ok {
		return Result{Error: "Unknown provider: " + raw}
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = pr.TestKey(ctx, key)
	p.log.Debug().
		Str("provider", string(id.Base())).
		Str("key", credential.Fingerprint(key)).
		Bool("ok", err == nil).
		Msg("key test")
	if err != nil {
		return Result{Error: describe(err)}
	}
	return Result{Success: true}
}

func describe(err error) string {
	var upErr *llm.UpstreamError
	if errors.As(err, &upErr) {
		if upErr.Message != "" {
			return upErr.Message
		}
		return invalidKey
	}
	return err.Error()
}

// CheckModels pings every chat model whose base provider has a key in keys.
// Results are ordered as in the catalog. A concurrency below one uses
// DefaultConcurrency.
func (p *Probe) CheckModels(ctx context.Context, keys map[provider.ID]string, concurrency int) []ModelResult {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}

	var models []provider.ModelInfo
	for _, m := range provider.ChatModels() {
		if strings.TrimSpace(keys[m.Provider.Base()]) != "" {
			models = append(models, m)
		}
	}

	results := make([]ModelResult, len(models))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, m := range models {
		i, m := i, m // per-iteration copies (pre-Go 1.22 loop semantics)
		g.Go(func() error {
			results[i] = p.ping(gctx, m, keys[m.Provider.Base()])
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (p *Probe) ping(ctx context.Context, m provider.ModelInfo, key string) ModelResult {
	res := ModelResult{Provider: m.Provider, Model: m.ID}
	pr, ok := p.src.Prober(m.Provider)
	if !ok {
		res.Error = "Unknown provider: " + string(m.Provider)
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := pr.Ping(ctx, strings.TrimSpace(key), m.ID)
	if err == nil {
		res.Success = true
		return res
	}
	var upErr *llm.UpstreamError
	if errors.As(err, &upErr) {
		res.Code = upErr.Status
	}
	res.Error = describe(err)
	p.log.Debug().Str("model", m.ID).Int("code", res.Code).Str("error", res.Error).Msg("model unavailable")
	return res
}
