// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package host is the spreadsheet side of sheetmate: where the current
// selection comes from and where generated scripts run.
//
// Bridge serves the browser task pane over HTTP. Static serves the CLI,
// where the selection is given on the command line and scripts are shown
// (and optionally written to a file) instead of executed.
package host

import (
	"context"
	"errors"
	"fmt"
)

// Selection is the user's current cell selection as the host reports it.
type Selection struct {
	Address string `json:"address"`
	Text    string `json:"text"`
}

// IsZero reports whether nothing has been selected yet.
func (s Selection) IsZero() bool {
	return s.Address == "" && s.Text == ""
}

// Host is the collaborator the orchestrator needs from the spreadsheet.
type Host interface {
	Selection() Selection
	// OnSelectionChanged registers fn and returns a function removing it.
	OnSelectionChanged(fn func(Selection)) (unsubscribe func())
	// RunScript executes code against the live document.
	RunScript(ctx context.Context, code string) error
}

// ErrUnknownScript is returned when a result names no pending script.
var ErrUnknownScript = errors.New("unknown script id")

// ExecutionError is a script the host failed to run.
type ExecutionError struct {
	ScriptID string
	Message  string
	Err      error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("script execution failed: %s: %v", e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("script execution failed: %v", e.Err)
	default:
		return fmt.Sprintf("script execution failed: %s", e.Message)
	}
}

// Unwrap returns the underlying error.
func (e *ExecutionError) Unwrap() error {
	return e.Err
}
