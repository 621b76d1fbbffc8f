// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// json_output.go - JSON output for scripting and CI use.
package cli

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/jeranaias/sheetmate/internal/credential"
	"github.com/jeranaias/sheetmate/internal/probe"
	"github.com/jeranaias/sheetmate/internal/provider"
)

// JSONResponse is the envelope of every --json response.
type JSONResponse struct {
	// Success indicates whether the command completed successfully
	Success bool `json:"success"`

	// Data contains the command-specific response data
	Data interface{} `json:"data"`

	// Error contains the error message if Success is false, null otherwise
	Error *string `json:"error"`

	// Timestamp is the RFC3339 time the response was generated
	Timestamp string `json:"timestamp"`

	// Command is the command that was executed
	Command string `json:"command,omitempty"`
}

// NewJSONResponse creates a new successful JSON response.
func NewJSONResponse(command string, data interface{}) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// NewJSONErrorResponse creates a new error JSON response.
func NewJSONErrorResponse(command string, err error) *JSONResponse {
	errStr := err.Error()
	return &JSONResponse{
		Success:   false,
		Error:     &errStr,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// Print outputs the JSON response to stdout.
func (r *JSONResponse) Print() error {
	return r.Write(os.Stdout)
}

// Write outputs the indented JSON response to w.
func (r *JSONResponse) Write(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}

// =============================================================================
// COMMAND-SPECIFIC DATA STRUCTURES
// =============================================================================

// AskData is the JSON form of "ask".
type AskData struct {
	Model       string            `json:"model"`
	Source      credential.Source `json:"key_source"`
	Answer      string            `json:"answer"`
	Attachments int               `json:"attachments"`
	DurationMs  int64             `json:"duration_ms"`
}

// RunData is the JSON form of "run".
type RunData struct {
	Model       string `json:"model"`
	Description string `json:"description"`
	Code        string `json:"code"`
	Written     string `json:"written,omitempty"`
}

// ImageData is the JSON form of "image".
type ImageData struct {
	Model    string `json:"model"`
	MimeType string `json:"mime_type"`
	Bytes    int    `json:"bytes"`
	Path     string `json:"path"`
}

// KeysData is the JSON form of "keys".
type KeysData struct {
	Providers map[provider.ID]credential.KeyStatus `json:"providers"`
}

// KeyTestData is the JSON form of "keys test".
type KeyTestData struct {
	Provider provider.ID  `json:"provider"`
	Source   string       `json:"key_source"`
	Result   probe.Result `json:"result"`
}

// ModelsData is the JSON form of "models".
type ModelsData struct {
	Default string               `json:"default"`
	Models  []provider.ModelInfo `json:"models"`
}
