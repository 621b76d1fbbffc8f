// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/jeranaias/sheetmate/internal/util"
)

// FileStore persists values as a JSON object in a single file written with
// 0600 permissions. Every write replaces the file atomically.
type FileStore struct {
	path string
	log  zerolog.Logger

	mu     sync.RWMutex
	values map[string]string
}

// OpenFileStore loads path if it exists. A missing file is an empty store.
func OpenFileStore(path string, log zerolog.Logger) (*FileStore, error) {
	fs := &FileStore{path: path, log: log, values: make(map[string]string)}
	if err := fs.reload(); err != nil {
		return nil, err
	}
	return fs, nil
}

// Path returns the backing file.
func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) reload() error {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		f.mu.Lock()
		f.values = make(map[string]string)
		f.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read settings file: %w", err)
	}

	values := make(map[string]string)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &values); err != nil {
			return fmt.Errorf("failed to decode settings file %s: %w", f.path, err)
		}
	}

	f.mu.Lock()
	f.values = values
	f.mu.Unlock()
	return nil
}

// Get implements Store.
func (f *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.values[key]
	return v, ok, nil
}

// Set implements Store. The file is rewritten atomically.
func (f *FileStore) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	next := cloneMap(f.values)
	next[key] = value
	if err := f.persist(next); err != nil {
		return &WriteError{Op: "set", Key: key, Store: "file", Err: err}
	}
	f.values = next
	return nil
}

// Delete implements Store.
func (f *FileStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.values[key]; !ok {
		return nil
	}
	next := cloneMap(f.values)
	delete(next, key)
	if err := f.persist(next); err != nil {
		return &WriteError{Op: "delete", Key: key, Store: "file", Err: err}
	}
	f.values = next
	return nil
}

// Close implements Store.
func (f *FileStore) Close() error { return nil }

func (f *FileStore) persist(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}
	return util.AtomicWriteFile(f.path, data, 0600)
}

// Watch reloads the store whenever another process rewrites the file. It
// watches the parent directory because atomic writes replace the inode. Watch
// returns when ctx is done.
func (f *FileStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	const debounce = 100 * time.Millisecond
	var timer *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(f.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case <-reload:
			if err := f.reload(); err != nil {
				f.log.Warn().Err(err).Str("path", f.path).Msg("settings reload failed")
				continue
			}
			f.log.Debug().Str("path", f.path).Msg("settings reloaded")

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.log.Warn().Err(err).Msg("settings watcher error")
		}
	}
}

func cloneMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
