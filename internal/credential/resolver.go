// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package credential decides which API key each provider call uses.
//
// Resolution order is fixed and the first non-empty key wins:
//
//	env   -> deploy-time table (EnvKeys)
//	saved -> persistent per-user settings store, key "{provider}_api_key"
//	input -> the caller's ambient input value
//	none  -> no key
package credential

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jeranaias/sheetmate/internal/provider"
	"github.com/jeranaias/sheetmate/internal/settings"
)

// Source tags where a key was found.
type Source string

const (
	SourceEnv   Source = "env"
	SourceSaved Source = "saved"
	SourceInput Source = "input"
	SourceNone  Source = "none"
)

// ErrCredentialMissing is returned when no layer yields a key.
var ErrCredentialMissing = errors.New("no API key configured")

// ErrEmptyKey rejects saving a blank key.
var ErrEmptyKey = errors.New("API key is empty")

// Credential is the active key for one provider.
type Credential struct {
	Provider provider.ID
	Key      string
	Source   Source
}

// Present reports whether a key was found.
func (c Credential) Present() bool {
	return c.Source != SourceNone && c.Key != ""
}

// KeyStatus summarizes the persistent layers for one provider.
type KeyStatus struct {
	HasEnv   bool   `json:"has_env"`
	HasSaved bool   `json:"has_saved"`
	Saved    string `json:"fingerprint,omitempty"`
}

// Resolver implements the resolution policy over an env table and a store.
type Resolver struct {
	env   EnvKeys
	store settings.Store
	log   zerolog.Logger
}

// NewResolver creates a resolver.
func NewResolver(env EnvKeys, store settings.Store, log zerolog.Logger) *Resolver {
	return &Resolver{env: env, store: store, log: log}
}

// Resolve returns the active key for raw. A store read failure is logged and
// treated as "not saved" so the input layer can still serve.
func (r *Resolver) Resolve(ctx context.Context, raw, input string) (Credential, error) {
	id, err := provider.Parse(raw)
	if err != nil {
		return Credential{}, err
	}
	base := id.Base()

	if key := strings.TrimSpace(r.env.For(base)); key != "" {
		return Credential{Provider: base, Key: key, Source: SourceEnv}, nil
	}

	if key, ok := r.saved(ctx, base); ok {
		return Credential{Provider: base, Key: key, Source: SourceSaved}, nil
	}

	if key := strings.TrimSpace(input); key != "" {
		return Credential{Provider: base, Key: key, Source: SourceInput}, nil
	}

	return Credential{Provider: base, Source: SourceNone}, nil
}

// Require resolves raw and fails with ErrCredentialMissing when no layer has
// a key.
func (r *Resolver) Require(ctx context.Context, raw, input string) (Credential, error) {
	cred, err := r.Resolve(ctx, raw, input)
	if err != nil {
		return Credential{}, err
	}
	if !cred.Present() {
		return Credential{}, fmt.Errorf("%w for %s", ErrCredentialMissing, cred.Provider.DisplayName())
	}
	return cred, nil
}

func (r *Resolver) saved(ctx context.Context, base provider.ID) (string, bool) {
	if r.store == nil {
		return "", false
	}
	value, found, err := r.store.Get(ctx, base.SettingsKey())
	if err != nil {
		r.log.Warn().Err(err).Str("provider", string(base)).Msg("saved key lookup failed")
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, found && value != ""
}

// Save stores key as the saved key for raw. Saving the same key twice is a
// no-op in effect. Store failures are returned, never swallowed.
func (r *Resolver) Save(ctx context.Context, raw, key string) error {
	id, err := provider.Parse(raw)
	if err != nil {
		return err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrEmptyKey
	}
	if r.store == nil {
		return &settings.WriteError{Op: "set", Key: id.SettingsKey(), Store: "none", Err: settings.ErrUnavailable}
	}
	if err := r.store.Set(ctx, id.SettingsKey(), key); err != nil {
		return err
	}
	r.log.Info().Str("provider", string(id.Base())).Str("key_fp", Fingerprint(key)).Msg("API key saved")
	return nil
}

// Delete removes the saved key for raw. Deleting an absent key succeeds.
func (r *Resolver) Delete(ctx context.Context, raw string) error {
	id, err := provider.Parse(raw)
	if err != nil {
		return err
	}
	if r.store == nil {
		return &settings.WriteError{Op: "delete", Key: id.SettingsKey(), Store: "none", Err: settings.ErrUnavailable}
	}
	if err := r.store.Delete(ctx, id.SettingsKey()); err != nil {
		return err
	}
	r.log.Info().Str("provider", string(id.Base())).Msg("API key deleted")
	return nil
}

// HasEnv reports whether the deploy-time table has a key for id.
func (r *Resolver) HasEnv(id provider.ID) bool {
	return strings.TrimSpace(r.env.For(id)) != ""
}

// HasSaved reports whether the store has a key for id.
func (r *Resolver) HasSaved(ctx context.Context, id provider.ID) bool {
	_, ok := r.saved(ctx, id.Base())
	return ok
}

// Status reports the env and saved layers for every base provider.
func (r *Resolver) Status(ctx context.Context) map[provider.ID]KeyStatus {
	out := make(map[provider.ID]KeyStatus, len(provider.Bases()))
	for _, id := range provider.Bases() {
		st := KeyStatus{HasEnv: r.HasEnv(id)}
		if key, ok := r.saved(ctx, id); ok {
			st.HasSaved = true
			st.Saved = Fingerprint(key)
		}
		out[id] = st
	}
	return out
}

// RestoreToInput returns the saved key for raw so the caller can place it
// in its input value.
func (r *Resolver) RestoreToInput(ctx context.Context, raw string) (string, bool, error) {
	id, err := provider.Parse(raw)
	if err != nil {
		return "", false, err
	}
	key, ok := r.saved(ctx, id.Base())
	return key, ok, nil
}

// Fingerprint returns a short identifier for key that is safe to log.
func Fingerprint(key string) string {
	if key == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:4])
}
