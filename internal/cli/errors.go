// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error display and exit codes for sheetmate commands.
//
// Command handlers return errors and never exit; main maps them to an exit
// code with GetExitCode.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jeranaias/sheetmate/internal/assistant"
	"github.com/jeranaias/sheetmate/internal/config"
	"github.com/jeranaias/sheetmate/internal/credential"
	"github.com/jeranaias/sheetmate/internal/host"
	"github.com/jeranaias/sheetmate/internal/llm"
	"github.com/jeranaias/sheetmate/internal/provider"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitAuthError indicates a missing or rejected API key
	ExitAuthError = 4
	// ExitNetworkError indicates an upstream provider failure
	ExitNetworkError = 5
	// ExitExecutionError indicates a generated script failed to run
	ExitExecutionError = 6
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
	// ExitInterrupted indicates the user cancelled the operation
	ExitInterrupted = 130
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// UsageError is a malformed command line.
type UsageError struct {
	Reason  string
	Example string
}

func (e *UsageError) Error() string {
	if e.Example != "" {
		return fmt.Sprintf("%s\nExample: %s", e.Reason, e.Example)
	}
	return e.Reason
}

// ErrMissingArgument creates a UsageError for a missing argument.
func ErrMissingArgument(argName, example string) error {
	return &UsageError{Reason: "missing required argument: " + argName, Example: example}
}

// =============================================================================
// EXIT CODE MAPPING
// =============================================================================

// GetExitCode determines the appropriate exit code for an error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usageErr *UsageError
	var cfgErrs config.ValidateErrors
	var cfgErr config.ValidationError
	var upErr *llm.UpstreamError
	var execErr *host.ExecutionError

	switch {
	case errors.As(err, &usageErr),
		errors.Is(err, provider.ErrInvalidSelection),
		errors.Is(err, provider.ErrUnknownProvider),
		errors.Is(err, assistant.ErrEmptyMessage),
		errors.Is(err, credential.ErrEmptyKey):
		return ExitUsageError
	case errors.As(err, &cfgErrs), errors.As(err, &cfgErr):
		return ExitConfigError
	case errors.Is(err, credential.ErrCredentialMissing):
		return ExitAuthError
	case errors.As(err, &upErr):
		if upErr.Status == 401 || upErr.Status == 403 {
			return ExitAuthError
		}
		return ExitNetworkError
	case errors.As(err, &execErr), errors.Is(err, assistant.ErrNoCodeProduced):
		return ExitExecutionError
	case errors.Is(err, context.DeadlineExceeded):
		return ExitTimeoutError
	case errors.Is(err, context.Canceled), errors.Is(err, llm.ErrAborted):
		return ExitInterrupted
	}
	return ExitGeneralError
}

// =============================================================================
// ERROR DISPLAY
// =============================================================================

// DisplayError writes err to stderr, or as a JSON response to stdout in
// JSON mode.
func DisplayError(cmd Command, err error, jsonMode bool) {
	displayError(os.Stdout, os.Stderr, cmd, err, jsonMode)
}

func displayError(stdout, stderr io.Writer, cmd Command, err error, jsonMode bool) {
	if err == nil {
		return
	}
	if jsonMode {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(NewJSONErrorResponse(cmd.String(), err))
		return
	}
	fmt.Fprintf(stderr, "%s %s\n", ErrorStyle.Render("[ERROR]"), err.Error())
	if hint := errorHint(err); hint != "" {
		fmt.Fprintf(stderr, "%s\n", DimStyle.Render(hint))
	}
}

// errorHint suggests a next step for common failures.
func errorHint(err error) string {
	var upErr *llm.UpstreamError
	switch {
	case errors.Is(err, credential.ErrCredentialMissing):
		return `Set the provider's *_API_KEY variable, run "sheetmate keys set PROVIDER", or pass --key.`
	case errors.Is(err, provider.ErrInvalidSelection), errors.Is(err, provider.ErrUnknownProvider):
		return `Run "sheetmate models" to list valid selections.`
	case errors.As(err, &upErr) && (upErr.Status == 401 || upErr.Status == 403):
		return `The provider rejected the key. Check it with "sheetmate keys test PROVIDER".`
	}
	return ""
}
