// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package settings provides the persistent per-user key/value stores that
// back saved API keys.
//
// The primary store is a SQLite database shared by every sheetmate process
// for the user. When it cannot be opened or used, operations fall back to a
// JSON file next to it.
package settings

import (
	"context"
	"errors"
	"fmt"
)

// =============================================================================
// STORE INTERFACE
// =============================================================================

// Store is a string key/value store. Get reports found=false for missing
// keys. Set and Delete are idempotent and surface every write failure as a
// *WriteError.
type Store interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// ErrUnavailable marks a store that cannot serve requests at all. Fallback
// reacts to it by switching to the local store.
var ErrUnavailable = errors.New("settings store unavailable")

// WriteError reports a failed Set or Delete.
type WriteError struct {
	Op    string // "set" or "delete"
	Key   string
	Store string
	Err   error
}

// Error implements the error interface.
func (e *WriteError) Error() string {
	return fmt.Sprintf("settings %s %q failed (%s): %v", e.Op, e.Key, e.Store, e.Err)
}

// Unwrap returns the underlying error.
func (e *WriteError) Unwrap() error {
	return e.Err
}
