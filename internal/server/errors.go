// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jeranaias/sheetmate/internal/assistant"
	"github.com/jeranaias/sheetmate/internal/content"
	"github.com/jeranaias/sheetmate/internal/credential"
	"github.com/jeranaias/sheetmate/internal/host"
	"github.com/jeranaias/sheetmate/internal/llm"
	"github.com/jeranaias/sheetmate/internal/provider"
	"github.com/jeranaias/sheetmate/internal/settings"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error          string `json:"error"`
	Code           string `json:"code"`
	UpstreamStatus int    `json:"upstream_status,omitempty"`
}

func abortError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: msg, Code: code})
}

// classify maps the error taxonomy onto an HTTP status and a stable code.
func classify(err error) (int, ErrorResponse) {
	resp := ErrorResponse{Error: err.Error()}

	var upErr *llm.UpstreamError
	var writeErr *settings.WriteError
	var execErr *host.ExecutionError
	var maxBytes *http.MaxBytesError

	switch {
	case errors.Is(err, credential.ErrCredentialMissing):
		resp.Code = "credential_missing"
		return http.StatusPreconditionFailed, resp
	case errors.Is(err, provider.ErrUnknownProvider):
		resp.Code = "unknown_provider"
		return http.StatusBadRequest, resp
	case errors.Is(err, provider.ErrInvalidSelection):
		resp.Code = "invalid_selection"
		return http.StatusBadRequest, resp
	case errors.Is(err, assistant.ErrBusy):
		resp.Code = "busy"
		return http.StatusConflict, resp
	case errors.Is(err, assistant.ErrEmptyMessage), errors.Is(err, credential.ErrEmptyKey):
		resp.Code = "empty"
		return http.StatusBadRequest, resp
	case errors.Is(err, assistant.ErrNoChatPath), errors.Is(err, llm.ErrImageUnsupported):
		resp.Code = "unsupported"
		return http.StatusBadRequest, resp
	case errors.Is(err, assistant.ErrBackendUnavailable):
		resp.Code = "backend_unavailable"
		return http.StatusServiceUnavailable, resp
	case errors.Is(err, content.ErrAttachmentTooLarge), errors.As(err, &maxBytes):
		resp.Code = "too_large"
		return http.StatusRequestEntityTooLarge, resp
	case errors.Is(err, content.ErrTooManyAttachments):
		resp.Code = "too_many_attachments"
		return http.StatusConflict, resp
	case errors.Is(err, host.ErrUnknownScript):
		resp.Code = "unknown_script"
		return http.StatusNotFound, resp
	case errors.As(err, &upErr):
		resp.Code = "upstream_error"
		resp.UpstreamStatus = upErr.Status
		return http.StatusBadGateway, resp
	case errors.Is(err, llm.ErrNoImage), errors.Is(err, llm.ErrMissingField):
		resp.Code = "bad_upstream_reply"
		return http.StatusBadGateway, resp
	case errors.Is(err, context.DeadlineExceeded):
		resp.Code = "timeout"
		return http.StatusGatewayTimeout, resp
	case errors.Is(err, llm.ErrAborted), errors.Is(err, context.Canceled):
		resp.Code = "aborted"
		return 499, resp
	case errors.As(err, &writeErr):
		resp.Code = "storage_write_failed"
		return http.StatusInternalServerError, resp
	case errors.As(err, &execErr):
		resp.Code = "execution_failed"
		return http.StatusUnprocessableEntity, resp
	}
	resp.Code = "internal"
	return http.StatusInternalServerError, resp
}

func respondError(c *gin.Context, err error) {
	status, resp := classify(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, resp)
}
