// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jeranaias/sheetmate/internal/llm"
	"github.com/jeranaias/sheetmate/internal/prompt"
	"github.com/jeranaias/sheetmate/internal/session"
)

// NoCodeDescription is reported when the model returns no script.
const NoCodeDescription = "Excel JavaScript APIコードが生成されませんでした。"

// ErrNoCodeProduced is returned when the structured reply has no excel_code.
var ErrNoCodeProduced = errors.New("no code produced")

// Script is the parsed structured reply.
type Script struct {
	Description string `json:"description"`
	Code        string `json:"excel_code"`
}

// RunResult is the outcome of GenerateAndRun.
type RunResult struct {
	Description string `json:"description"`
	Code        string `json:"code"`
	Executed    bool   `json:"executed"`
}

// ParseScript decodes a structured reply. Markdown code fences around the
// JSON are removed first. A missing or blank excel_code yields
// ErrNoCodeProduced together with the NoCodeDescription.
func ParseScript(raw string) (Script, error) {
	var s Script
	if err := json.Unmarshal([]byte(stripFences(raw)), &s); err != nil {
		return Script{}, fmt.Errorf("%w: reply is not JSON: %v", llm.ErrMissingField, err)
	}
	if strings.TrimSpace(s.Code) == "" {
		return Script{Description: NoCodeDescription}, ErrNoCodeProduced
	}
	return s, nil
}

func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

// GenerateAndRun asks the session's model for an automation script and
// hands it to the session's host. The host is only called when a non-empty
// script was produced. History is never modified.
//
// On a host failure the returned result still carries the description and
// code, and the error is a *host.ExecutionError.
func (o *Orchestrator) GenerateAndRun(ctx context.Context, s *session.Session, text string) (RunResult, error) {
	if strings.TrimSpace(text) == "" {
		return RunResult{}, ErrEmptyMessage
	}

	sel, r, cred, release, err := o.prepare(ctx, s)
	if err != nil {
		return RunResult{}, err
	}
	defer release()

	if r.chat == nil {
		return RunResult{}, fmt.Errorf("%w: %s", ErrNoChatPath, sel)
	}

	system, err := prompt.Code(o.promptData(s))
	if err != nil {
		return RunResult{}, err
	}

	callCtx, cancel := o.callContext(ctx, s)
	raw, err := r.chat.GenerateStructured(callCtx, llm.StructuredRequest{
		APIKey: cred.Key,
		Model:  sel.Model,
		System: system,
		Text:   text,
	})
	cancel()
	if err != nil {
		o.log.Warn().Err(err).Str("session", s.ID()).Str("selection", sel.String()).Msg("script generation failed")
		return RunResult{}, err
	}

	script, err := ParseScript(raw)
	if err != nil {
		return RunResult{Description: script.Description}, err
	}
	res := RunResult{Description: script.Description, Code: script.Code}

	runCtx := ctx
	if o.cfg.ScriptTimeout > 0 {
		var cancelRun context.CancelFunc
		runCtx, cancelRun = context.WithTimeout(ctx, o.cfg.ScriptTimeout)
		defer cancelRun()
	}
	if err := s.Host().RunScript(runCtx, script.Code); err != nil {
		o.log.Warn().Err(err).Str("session", s.ID()).Msg("script execution failed")
		return res, err
	}
	res.Executed = true

	o.log.Info().
		Str("session", s.ID()).
		Str("selection", sel.String()).
		Int("code_bytes", len(script.Code)).
		Msg("script executed")
	return res, nil
}
