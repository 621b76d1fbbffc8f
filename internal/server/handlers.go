// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jeranaias/sheetmate/internal/assistant"
	"github.com/jeranaias/sheetmate/internal/content"
	"github.com/jeranaias/sheetmate/internal/credential"
	"github.com/jeranaias/sheetmate/internal/host"
	"github.com/jeranaias/sheetmate/internal/llm"
	"github.com/jeranaias/sheetmate/internal/model"
	"github.com/jeranaias/sheetmate/internal/provider"
	"github.com/jeranaias/sheetmate/internal/session"
)

// scriptHeartbeat is the keep-alive interval of the script stream.
var scriptHeartbeat = 15 * time.Second

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			respondError(c, err)
			return false
		}
		abortError(c, http.StatusBadRequest, "bad_request", err.Error())
		return false
	}
	return true
}

// =============================================================================
// SESSION
// =============================================================================

type sessionStatus struct {
	session.Status
	InputKeySet bool `json:"input_key_set"`
}

func (s *Server) handleSessionStatus(c *gin.Context) {
	sess := sessionFrom(c)
	c.JSON(http.StatusOK, sessionStatus{Status: sess.GetStatus(), InputKeySet: sess.InputKey() != ""})
}

type keyRequest struct {
	Key string `json:"key"`
}

func (s *Server) handleSetInputKey(c *gin.Context) {
	var req keyRequest
	if !bindJSON(c, &req) {
		return
	}
	sessionFrom(c).SetInputKey(strings.TrimSpace(req.Key))
	c.Status(http.StatusNoContent)
}

// =============================================================================
// CHAT
// =============================================================================

type chatRequest struct {
	Text      string          `json:"text"`
	Selection *host.Selection `json:"selection,omitempty"`
}

type imagePayload struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type doneEvent struct {
	Text        string             `json:"text"`
	Selection   provider.Selection `json:"selection"`
	Source      credential.Source  `json:"source"`
	Attachments int                `json:"attachments"`
	Image       *imagePayload      `json:"image,omitempty"`
}

type errorEvent struct {
	ErrorResponse
	Partial string `json:"partial,omitempty"`
}

func toImagePayload(img *llm.Image) *imagePayload {
	if img == nil {
		return nil
	}
	return &imagePayload{MimeType: img.MimeType, Data: base64.StdEncoding.EncodeToString(img.Data)}
}

// applySelection forwards a selection sent along with a request to the
// session's bridge.
func applySelection(sess *session.Session, sel *host.Selection) {
	if sel == nil {
		return
	}
	if b, ok := sess.Bridge(); ok {
		b.SetSelection(*sel)
	}
}

func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if !bindJSON(c, &req) {
		return
	}
	sess := sessionFrom(c)
	applySelection(sess, req.Selection)

	w := newSSEWriter(c)
	reply, err := s.deps.Orchestrator.SendMessage(c.Request.Context(), sess, req.Text, func(text string) {
		_ = w.send("delta", gin.H{"text": text})
	})
	if err != nil {
		if !w.started {
			respondError(c, err)
			return
		}
		_ = c.Error(err)
		_, resp := classify(err)
		ev := errorEvent{ErrorResponse: resp}
		var se *llm.StreamError
		if errors.As(err, &se) {
			ev.Partial = se.Partial
		}
		_ = w.send("error", ev)
		return
	}

	_ = w.send("done", doneEvent{
		Text:        reply.Text,
		Selection:   reply.Selection,
		Source:      reply.Source,
		Attachments: reply.Attachments,
		Image:       toImagePayload(reply.Image),
	})
}

type generateResponse struct {
	assistant.RunResult
	Error string `json:"error,omitempty"`
}

func (s *Server) handleGenerate(c *gin.Context) {
	var req chatRequest
	if !bindJSON(c, &req) {
		return
	}
	sess := sessionFrom(c)
	applySelection(sess, req.Selection)

	res, err := s.deps.Orchestrator.GenerateAndRun(c.Request.Context(), sess, req.Text)
	var execErr *host.ExecutionError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, generateResponse{RunResult: res})
	case errors.Is(err, assistant.ErrNoCodeProduced), errors.As(err, &execErr):
		_ = c.Error(err)
		c.JSON(http.StatusOK, generateResponse{RunResult: res, Error: err.Error()})
	default:
		respondError(c, err)
	}
}

type imageRequest struct {
	Prompt string `json:"prompt"`
}

func (s *Server) handleImage(c *gin.Context) {
	var req imageRequest
	if !bindJSON(c, &req) {
		return
	}
	img, err := s.deps.Orchestrator.GenerateImage(c.Request.Context(), sessionFrom(c), req.Prompt)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toImagePayload(img))
}

// =============================================================================
// ATTACHMENTS AND HISTORY
// =============================================================================

type attachmentView struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     int    `json:"size"`
}

func viewAttachments(atts []content.Attachment) []attachmentView {
	out := make([]attachmentView, 0, len(atts))
	for _, a := range atts {
		out = append(out, attachmentView{Name: a.Name, MimeType: a.MimeType, Size: a.Size()})
	}
	return out
}

func (s *Server) handleListAttachments(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"attachments": viewAttachments(sessionFrom(c).Pending().List())})
}

func (s *Server) handleAddAttachment(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			respondError(c, err)
			return
		}
		abortError(c, http.StatusBadRequest, "bad_request", "multipart field 'file' is required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer f.Close()

	att, err := content.FromReader(fh.Filename, f, fh.Header.Get("Content-Type"))
	if err != nil {
		respondError(c, err)
		return
	}
	sess := sessionFrom(c)
	if err := sess.Pending().Add(att); err != nil {
		respondError(c, err)
		return
	}
	sess.RecordActivity()
	c.JSON(http.StatusCreated, gin.H{"attachments": viewAttachments(sess.Pending().List())})
}

func (s *Server) handleClearAttachments(c *gin.Context) {
	sessionFrom(c).Pending().Clear()
	c.Status(http.StatusNoContent)
}

type historyMessage struct {
	ID          string           `json:"id"`
	Role        model.Role       `json:"role"`
	Text        string           `json:"text"`
	Attachments []attachmentView `json:"attachments,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
}

type historyResponse struct {
	ID        string           `json:"id"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
	Messages  []historyMessage `json:"messages"`
}

func (s *Server) handleHistory(c *gin.Context) {
	snap := sessionFrom(c).Conversation().Snapshot()
	resp := historyResponse{ID: snap.ID, CreatedAt: snap.CreatedAt, UpdatedAt: snap.UpdatedAt, Messages: []historyMessage{}}
	for _, m := range snap.Messages {
		hm := historyMessage{ID: m.ID, Role: m.Role, Text: m.Text, Timestamp: m.Timestamp}
		if len(m.Attachments) > 0 {
			hm.Attachments = viewAttachments(m.Attachments)
		}
		resp.Messages = append(resp.Messages, hm)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleResetHistory(c *gin.Context) {
	sess := sessionFrom(c)
	if sess.Busy() {
		respondError(c, assistant.ErrBusy)
		return
	}
	sess.Reset()
	c.Status(http.StatusNoContent)
}

// =============================================================================
// KEYS
// =============================================================================

func (s *Server) handleKeyStatus(c *gin.Context) {
	sess := sessionFrom(c)
	c.JSON(http.StatusOK, gin.H{
		"providers":     s.deps.Credentials.Status(c.Request.Context()),
		"input_key_set": sess.InputKey() != "",
	})
}

func (s *Server) handleSaveKey(c *gin.Context) {
	var req keyRequest
	if !bindJSON(c, &req) {
		return
	}
	raw := c.Param("provider")
	if err := s.deps.Credentials.Save(c.Request.Context(), raw, req.Key); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"provider":    provider.Normalize(raw),
		"fingerprint": credential.Fingerprint(strings.TrimSpace(req.Key)),
	})
}

func (s *Server) handleDeleteKey(c *gin.Context) {
	if err := s.deps.Credentials.Delete(c.Request.Context(), c.Param("provider")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleTestKey probes the key in the body, or the key the session would
// resolve when the body has none.
func (s *Server) handleTestKey(c *gin.Context) {
	var req keyRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	raw := c.Param("provider")
	key := strings.TrimSpace(req.Key)
	if key == "" {
		if cred, err := s.deps.Credentials.Resolve(c.Request.Context(), raw, sessionFrom(c).InputKey()); err == nil {
			key = cred.Key
		}
	}
	c.JSON(http.StatusOK, s.deps.Probe.TestKey(c.Request.Context(), raw, key))
}

func (s *Server) handleRestoreKey(c *gin.Context) {
	key, ok, err := s.deps.Credentials.RestoreToInput(c.Request.Context(), c.Param("provider"))
	if err != nil {
		respondError(c, err)
		return
	}
	if ok {
		sessionFrom(c).SetInputKey(key)
	}
	c.JSON(http.StatusOK, gin.H{"restored": ok})
}

// =============================================================================
// MODELS
// =============================================================================

func (s *Server) handleModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"models":   provider.Catalog(),
		"selected": sessionFrom(c).Model(),
	})
}

type modelRequest struct {
	Selection string `json:"selection"`
}

func (s *Server) handleSetModel(c *gin.Context) {
	var req modelRequest
	if !bindJSON(c, &req) {
		return
	}
	sel, err := provider.ParseSelection(req.Selection)
	if err != nil {
		respondError(c, err)
		return
	}
	sessionFrom(c).SetModel(sel)
	c.JSON(http.StatusOK, sel)
}

// =============================================================================
// HOST BRIDGE
// =============================================================================

func (s *Server) bridge(c *gin.Context) (*host.Bridge, bool) {
	b, ok := sessionFrom(c).Bridge()
	if !ok {
		abortError(c, http.StatusConflict, "no_bridge", "session has no task pane bridge")
	}
	return b, ok
}

func (s *Server) handleGetSelection(c *gin.Context) {
	c.JSON(http.StatusOK, sessionFrom(c).Host().Selection())
}

func (s *Server) handleSetSelection(c *gin.Context) {
	var sel host.Selection
	if !bindJSON(c, &sel) {
		return
	}
	b, ok := s.bridge(c)
	if !ok {
		return
	}
	b.SetSelection(sel)
	c.Status(http.StatusNoContent)
}

// handleScripts streams scripts for the pane to execute until the client
// disconnects.
func (s *Server) handleScripts(c *gin.Context) {
	b, ok := s.bridge(c)
	if !ok {
		return
	}

	w := newSSEWriter(c)
	if err := w.comment("connected"); err != nil {
		return
	}

	ctx := c.Request.Context()
	for {
		waitCtx, cancel := context.WithTimeout(ctx, scriptHeartbeat)
		script, err := b.Next(waitCtx)
		cancel()

		switch {
		case err == nil:
			if err := w.send("script", script); err != nil {
				s.log.Warn().Err(err).Str("script", script.ID).Msg("failed to deliver script")
				_ = b.Resolve(script.ID, host.Result{Error: "task pane disconnected"})
				return
			}
		case ctx.Err() != nil:
			return
		default:
			if err := w.comment("ping"); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleScriptResult(c *gin.Context) {
	var res host.Result
	if !bindJSON(c, &res) {
		return
	}
	b, ok := s.bridge(c)
	if !ok {
		return
	}
	if err := b.Resolve(c.Param("id"), res); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
