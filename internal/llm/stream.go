// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jeranaias/sheetmate/internal/model"
)

// STREAMING: best-effort SSE decoding, no retries

// =============================================================================
// STREAMING CONSTANTS
// =============================================================================

const (
	scannerInitialBuffer = 12 * 1024        // 12KB
	scannerMaxBuffer     = 10 * 1024 * 1024 // 10MB

	// DoneMarker is the OpenAI-style end-of-stream sentinel.
	DoneMarker = "[DONE]"
)

// =============================================================================
// STATE MACHINE
// =============================================================================

// StreamState is the lifecycle of one streamed call.
type StreamState int

const (
	StateIdle StreamState = iota
	StateConnecting
	StateStreaming
	StateCompleted
	StateFailed
	StateAborted
)

// String returns the state name.
func (s StreamState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("StreamState(%d)", int(s))
	}
}

// Terminal reports whether s ends the call.
func (s StreamState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateAborted
}

// StreamStats describes one finished stream.
type StreamStats struct {
	model.Statistics
	SkippedChunks int
	State         StreamState
}

// Observer receives state transitions and the final statistics. Both
// callbacks are optional and run on the streaming goroutine.
type Observer struct {
	OnState func(StreamState)
	OnDone  func(StreamStats)
}

func (o *Observer) state(s StreamState) {
	if o != nil && o.OnState != nil {
		o.OnState(s)
	}
}

func (o *Observer) done(stats StreamStats) {
	if o != nil && o.OnDone != nil {
		o.OnDone(stats)
	}
}

// =============================================================================
// SSE READER
// =============================================================================

// SSEReader splits a streaming body into frames. Providers send one JSON
// document per data: line, so each data: line is its own frame and carries
// the most recent event: name. Blank lines reset the event name.
type SSEReader struct {
	scanner   *bufio.Scanner
	eventType string
}

// NewSSEReader creates a new SSE reader from an io.Reader.
func NewSSEReader(r io.Reader) *SSEReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, scannerInitialBuffer), scannerMaxBuffer)
	return &SSEReader{scanner: scanner}
}

// ReadEvent returns the next frame's event name and data. It returns io.EOF
// when the body ends.
func (s *SSEReader) ReadEvent() (string, []byte, error) {
	for s.scanner.Scan() {
		line := bytes.TrimRight(s.scanner.Bytes(), "\r")

		if len(line) == 0 {
			s.eventType = ""
			continue
		}

		if rest, ok := bytes.CutPrefix(line, []byte("event:")); ok {
			s.eventType = string(bytes.TrimSpace(rest))
			continue
		}
		if rest, ok := bytes.CutPrefix(line, []byte("data:")); ok {
			data := bytes.TrimSpace(rest)
			out := make([]byte, len(data))
			copy(out, data)
			return s.eventType, out, nil
		}
		// id:, retry: and ":" comments are ignored.
	}
	if err := s.scanner.Err(); err != nil {
		return "", nil, err
	}
	return "", nil, io.EOF
}

// =============================================================================
// STREAM DRIVER
// =============================================================================

// Frame is the decoded content of one stream frame.
type Frame struct {
	Text string
	Done bool
}

// FrameParser decodes one frame. It returns ErrMalformedChunk (possibly
// wrapped) for frames that should be skipped; any other error fails the
// stream.
type FrameParser func(event string, data []byte) (Frame, error)

// OpenFunc starts the upstream request and returns its open body.
type OpenFunc func(ctx context.Context) (io.ReadCloser, error)

// RunStream drives one streamed call. onDelta sees every non-empty
// increment. The returned text is the concatenation of all increments. On
// failure after some text arrived the error is a *StreamError holding it;
// cancellation yields an error wrapping ErrAborted.
func RunStream(ctx context.Context, open OpenFunc, parse FrameParser, onDelta DeltaFunc, obs *Observer) (string, StreamStats, error) {
	stats := StreamStats{Statistics: *model.NewStatistics(), State: StateIdle}
	var text strings.Builder

	finish := func(state StreamState, err error) (string, StreamStats, error) {
		stats.State = state
		stats.Finalize()
		obs.state(state)
		obs.done(stats)
		if err != nil && text.Len() > 0 {
			err = &StreamError{Partial: text.String(), Err: err}
		}
		return text.String(), stats, err
	}

	fail := func(err error) (string, StreamStats, error) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return finish(StateAborted, fmt.Errorf("%w: %w", ErrAborted, ctxErr))
		}
		return finish(StateFailed, err)
	}

	obs.state(StateConnecting)
	body, err := open(ctx)
	if err != nil {
		return fail(err)
	}
	defer body.Close()

	obs.state(StateStreaming)
	reader := NewSSEReader(body)

	for {
		select {
		case <-ctx.Done():
			return fail(ctx.Err())
		default:
		}

		event, data, err := reader.ReadEvent()
		if errors.Is(err, io.EOF) {
			return finish(StateCompleted, nil)
		}
		if err != nil {
			return fail(fmt.Errorf("failed to read stream: %w", err))
		}

		if string(data) == DoneMarker {
			return finish(StateCompleted, nil)
		}

		frame, err := parse(event, data)
		if err != nil {
			if errors.Is(err, ErrMalformedChunk) {
				stats.SkippedChunks++
				continue
			}
			return fail(err)
		}

		if frame.Text != "" {
			stats.RecordChunk()
			text.WriteString(frame.Text)
			if onDelta != nil {
				onDelta(frame.Text)
			}
		}
		if frame.Done {
			return finish(StateCompleted, nil)
		}
	}
}
