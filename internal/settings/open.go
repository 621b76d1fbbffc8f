// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package settings

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Store kinds accepted by Open.
const (
	KindSQLite = "sqlite"
	KindFile   = "file"
	KindMemory = "memory"
)

// Options selects and locates the settings store.
type Options struct {
	Kind         string // sqlite, file or memory
	Path         string // SQLite database path
	FallbackPath string // JSON file used by "file" and as the sqlite fallback
}

// Open builds the configured store. For "sqlite" a database that cannot be
// opened is logged and replaced by the JSON fallback file instead of failing.
func Open(opts Options, log zerolog.Logger) (Store, error) {
	switch opts.Kind {
	case KindMemory:
		return NewMemoryStore(), nil

	case KindFile:
		return OpenFileStore(opts.FallbackPath, log)

	case KindSQLite, "":
		local, err := OpenFileStore(opts.FallbackPath, log)
		if err != nil {
			return nil, err
		}
		primary, err := OpenSQLite(opts.Path)
		if err != nil {
			log.Warn().Err(err).Str("path", opts.Path).Msg("settings database unavailable, using local file")
			return NewFallback(nil, local, log), nil
		}
		return NewFallback(primary, local, log), nil

	default:
		return nil, fmt.Errorf("unknown settings store kind %q", opts.Kind)
	}
}

// WatchLocal runs FileStore.Watch for the JSON file behind store, if any.
// It returns immediately when the store has no file component.
func WatchLocal(ctx context.Context, store Store) error {
	switch s := store.(type) {
	case *FileStore:
		return s.Watch(ctx)
	case *Fallback:
		if fs, ok := s.local.(*FileStore); ok {
			return fs.Watch(ctx)
		}
	}
	return nil
}
