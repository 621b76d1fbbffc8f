// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package host

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// BRIDGE TESTS
// =============================================================================

func TestBridge_Selection(t *testing.T) {
	b := NewBridge()
	assert.True(t, b.Selection().IsZero())

	var seen []Selection
	unsubscribe := b.OnSelectionChanged(func(s Selection) { seen = append(seen, s) })

	b.SetSelection(Selection{Address: "A1", Text: "10"})
	unsubscribe()
	b.SetSelection(Selection{Address: "B2", Text: "20"})

	assert.Equal(t, Selection{Address: "B2", Text: "20"}, b.Selection())
	assert.Equal(t, []Selection{{Address: "A1", Text: "10"}}, seen)
}

func TestBridge_RunScriptSuccess(t *testing.T) {
	b := NewBridge()
	errc := make(chan error, 1)
	go func() { errc <- b.RunScript(context.Background(), "await Excel.run(...)") }()

	script, err := b.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "await Excel.run(...)", script.Code)
	assert.NotEmpty(t, script.ID)
	assert.Eventually(t, func() bool { return b.Pending() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, b.Resolve(script.ID, Result{Success: true}))
	require.NoError(t, <-errc)
	assert.Equal(t, 0, b.Pending())
	assert.ErrorIs(t, b.Resolve(script.ID, Result{}), ErrUnknownScript)
}

func TestBridge_RunScriptFailure(t *testing.T) {
	b := NewBridge()
	errc := make(chan error, 1)
	go func() { errc <- b.RunScript(context.Background(), "bad()") }()

	script, err := b.Next(context.Background())
	require.NoError(t, err)
	require.NoError(t, b.Resolve(script.ID, Result{Success: false, Error: "InvalidArgument"}))

	var execErr *ExecutionError
	require.True(t, errors.As(<-errc, &execErr))
	assert.Equal(t, "InvalidArgument", execErr.Message)
	assert.Equal(t, script.ID, execErr.ScriptID)
}

func TestBridge_RunScriptTimeout(t *testing.T) {
	b := NewBridge()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := b.RunScript(ctx, "x()")
	var execErr *ExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, b.Pending())
}

func TestBridge_TimedOutScriptIsNotDelivered(t *testing.T) {
	b := NewBridge()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := b.RunScript(ctx, "deleteAllRows()")
	require.Error(t, err)

	// A pane connecting afterwards gets the next live script only.
	errc := make(chan error, 1)
	go func() { errc <- b.RunScript(context.Background(), "live()") }()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	script, err := b.Next(waitCtx)
	require.NoError(t, err)
	assert.Equal(t, "live()", script.Code)

	require.NoError(t, b.Resolve(script.ID, Result{Success: true}))
	require.NoError(t, <-errc)
}

func TestBridge_NextHonoursContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := NewBridge().Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResolve_UnknownID(t *testing.T) {
	assert.ErrorIs(t, NewBridge().Resolve("nope", Result{Success: true}), ErrUnknownScript)
}

// =============================================================================
// STATIC TESTS
// =============================================================================

func TestStatic_RunScript(t *testing.T) {
	var out bytes.Buffer
	path := filepath.Join(t.TempDir(), "script.js")
	s := NewStatic(Selection{Address: "C1"}, &out)
	s.OutPath = path

	require.NoError(t, s.RunScript(context.Background(), "console.log(1);"))
	assert.Contains(t, out.String(), "console.log(1);")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "console.log(1);", string(data))
	assert.Equal(t, "C1", s.Selection().Address)
}

func TestStatic_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewStatic(Selection{}, &bytes.Buffer{}).RunScript(ctx, "x")
	var execErr *ExecutionError
	assert.True(t, errors.As(err, &execErr))
}

func TestHighlight(t *testing.T) {
	code := "const a = 1;"
	out := Highlight(code, "javascript")
	assert.Contains(t, out, "\x1b[")
	assert.Contains(t, Highlight(code, "no-such-language"), "a")
}
