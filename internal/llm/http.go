// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"resty.dev/v3"

	"github.com/jeranaias/sheetmate/internal/provider"
)

// MaxResponseSize is the maximum allowed non-streaming response body size.
const MaxResponseSize = 10 * 1024 * 1024 // 10MB limit

type requestIDKey struct{}
type startedAtKey struct{}

// WithRequestID tags ctx so adapter log lines carry id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// NewHTTPClient returns a resty client that logs every upstream call at debug
// level. Bodies, headers and query strings are never logged because they
// carry API keys. No client timeout is set; callers bound each call with a
// context deadline so long streams are not cut off.
func NewHTTPClient(name string, log zerolog.Logger) *resty.Client {
	client := resty.New()
	client.SetHeader("User-Agent", "sheetmate")
	client.AddRequestMiddleware(func(c *resty.Client, r *resty.Request) error {
		r.SetContext(context.WithValue(r.Context(), startedAtKey{}, time.Now()))
		return nil
	})
	client.AddResponseMiddleware(func(c *resty.Client, r *resty.Response) error {
		ctx := r.Request.Context()
		startTime, _ := ctx.Value(startedAtKey{}).(time.Time)
		requestID, _ := ctx.Value(requestIDKey{}).(string)

		event := log.Debug().
			Str("client", name).
			Str("request_id", requestID).
			Int("status", r.StatusCode()).
			Dur("latency", time.Since(startTime))
		if raw := r.Request.RawRequest; raw != nil {
			event = event.Str("method", raw.Method).Str("path", raw.URL.Path)
		}
		event.Msg("HTTP client request")
		return nil
	})
	return client
}

// Send executes r and returns the open body of a 2xx response. Any other
// status is read and returned as *UpstreamError.
func Send(p provider.ID, r *resty.Request, method, endpoint string) (io.ReadCloser, error) {
	resp, err := r.SetDoNotParseResponse(true).Execute(method, endpoint)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", p, redactURLError(err))
	}
	if resp.RawResponse == nil || resp.RawResponse.Body == nil {
		return nil, fmt.Errorf("%s request failed: empty response body", p)
	}

	body := resp.RawResponse.Body
	if resp.IsError() {
		defer body.Close()
		data, _ := readResponse(body)
		return nil, ParseUpstreamError(p, resp.StatusCode(), data)
	}
	return body, nil
}

// redactURLError rebuilds a transport error without the request's query
// string, since Gemini carries the API key there. Wrappers around the
// *url.Error are dropped because their messages already embed the URL.
func redactURLError(err error) error {
	var uerr *url.Error
	if !errors.As(err, &uerr) {
		return err
	}
	base, _, _ := strings.Cut(uerr.URL, "?")
	return &url.Error{Op: uerr.Op, URL: base, Err: uerr.Err}
}

// SendJSON executes r and decodes a 2xx JSON response into out. out may be
// nil when only the status matters.
func SendJSON(p provider.ID, r *resty.Request, method, endpoint string, out any) error {
	body, err := Send(p, r, method, endpoint)
	if err != nil {
		return err
	}
	defer body.Close()

	data, err := readResponse(body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", p, err)
	}
	return nil
}

// readResponse reads the response body with size limits to prevent memory
// exhaustion.
func readResponse(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(body) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// JoinURL appends path to base with exactly one slash between them.
func JoinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
