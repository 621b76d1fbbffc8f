// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package settings

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// Fallback routes every operation to the primary store and retries against
// the local store when the primary reports ErrUnavailable. A nil primary
// means the local store is used unconditionally.
type Fallback struct {
	primary Store
	local   Store
	log     zerolog.Logger
}

// NewFallback combines a primary and a local store.
func NewFallback(primary, local Store, log zerolog.Logger) *Fallback {
	return &Fallback{primary: primary, local: local, log: log}
}

// Get reads the primary store, or the local store when the primary is unavailable.
func (f *Fallback) Get(ctx context.Context, key string) (string, bool, error) {
	if f.primary != nil {
		v, ok, err := f.primary.Get(ctx, key)
		if !errors.Is(err, ErrUnavailable) {
			return v, ok, err
		}
		f.log.Warn().Str("key", key).Msg("primary settings store unavailable, reading local store")
	}
	return f.local.Get(ctx, key)
}

// Set writes the primary store, or the local store when the primary is unavailable.
func (f *Fallback) Set(ctx context.Context, key, value string) error {
	if f.primary != nil {
		err := f.primary.Set(ctx, key, value)
		if !errors.Is(err, ErrUnavailable) {
			return err
		}
		f.log.Warn().Str("key", key).Msg("primary settings store unavailable, writing local store")
	}
	return f.local.Set(ctx, key, value)
}

// Delete removes key from the primary store, or the local one when the primary is unavailable.
func (f *Fallback) Delete(ctx context.Context, key string) error {
	if f.primary != nil {
		err := f.primary.Delete(ctx, key)
		if !errors.Is(err, ErrUnavailable) {
			return err
		}
		f.log.Warn().Str("key", key).Msg("primary settings store unavailable, deleting from local store")
	}
	return f.local.Delete(ctx, key)
}

// Close closes both stores and returns the first error.
func (f *Fallback) Close() error {
	var first error
	if f.primary != nil {
		first = f.primary.Close()
	}
	if err := f.local.Close(); err != nil && first == nil {
		first = err
	}
	return first
}
