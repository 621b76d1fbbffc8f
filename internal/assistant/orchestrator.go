// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeranaias/sheetmate/internal/credential"
	"github.com/jeranaias/sheetmate/internal/llm"
	"github.com/jeranaias/sheetmate/internal/model"
	"github.com/jeranaias/sheetmate/internal/prompt"
	"github.com/jeranaias/sheetmate/internal/provider"
	"github.com/jeranaias/sheetmate/internal/session"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrBusy is returned when the session already has an operation in flight.
	ErrBusy = errors.New("another request is in progress for this session")

	// ErrEmptyMessage is returned for a send with no text and no attachments.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrBackendUnavailable is returned when no backend is configured for a
	// provider in the closed set.
	ErrBackendUnavailable = errors.New("provider backend not configured")

	// ErrNoChatPath is returned when a chat operation targets an image model.
	ErrNoChatPath = errors.New("selected model has no chat path")
)

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Config tunes the orchestrator.
type Config struct {
	// RequestTimeout bounds each adapter call. Zero disables it.
	RequestTimeout time.Duration

	// ScriptTimeout bounds host script execution. Zero disables it.
	ScriptTimeout time.Duration

	// Language is the reply language passed to the prompts.
	Language string
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		RequestTimeout: 120 * time.Second,
		ScriptTimeout:  60 * time.Second,
		Language:       prompt.DefaultLanguage,
	}
}

// Orchestrator dispatches session operations to provider backends.
type Orchestrator struct {
	backends Backends
	creds    *credential.Resolver
	cfg      Config
	log      zerolog.Logger
}

// New creates an orchestrator.
func New(backends Backends, creds *credential.Resolver, cfg Config, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{backends: backends, creds: creds, cfg: cfg, log: log}
}

// Reply is the outcome of SendMessage.
type Reply struct {
	Selection   provider.Selection
	Source      credential.Source
	Text        string
	Image       *llm.Image
	Attachments int
}

// route is the backend pair one provider id dispatches to.
type route struct {
	chat  llm.Adapter
	image llm.ImageGenerator
}

// route maps every member of the closed provider set to its backend.
func (o *Orchestrator) route(id provider.ID) (route, error) {
	var r route
	switch id {
	case provider.OpenAI:
		r.chat = o.backends.OpenAI
	case provider.Claude:
		r.chat = o.backends.Claude
	case provider.Gemini:
		r.chat = o.backends.Gemini
	case provider.OpenAIImage:
		r.image = o.backends.OpenAIImage
	case provider.GeminiImage:
		r.image = o.backends.GeminiImage
	default:
		return route{}, fmt.Errorf("%w: %q", provider.ErrUnknownProvider, id)
	}
	if r.chat == nil && r.image == nil {
		return route{}, fmt.Errorf("%w: %s", ErrBackendUnavailable, id)
	}
	return r, nil
}

// prepare claims the session and performs every check that must pass
// before a network call. The returned release func must be called.
func (o *Orchestrator) prepare(ctx context.Context, s *session.Session) (provider.Selection, route, credential.Credential, func(), error) {
	if !s.TryBegin() {
		return provider.Selection{}, route{}, credential.Credential{}, nil, ErrBusy
	}
	release := s.End

	sel := s.Model()
	r, err := o.route(sel.Provider)
	if err != nil {
		release()
		return sel, route{}, credential.Credential{}, nil, err
	}
	cred, err := o.creds.Require(ctx, string(sel.Provider), s.InputKey())
	if err != nil {
		release()
		return sel, route{}, credential.Credential{}, nil, err
	}
	return sel, r, cred, release, nil
}

func (o *Orchestrator) callContext(ctx context.Context, s *session.Session) (context.Context, context.CancelFunc) {
	ctx = llm.WithRequestID(ctx, s.ID())
	if o.cfg.RequestTimeout > 0 {
		return context.WithTimeout(ctx, o.cfg.RequestTimeout)
	}
	return context.WithCancel(ctx)
}

func (o *Orchestrator) promptData(s *session.Session) prompt.Data {
	sel := s.Host().Selection()
	return prompt.Data{Address: sel.Address, Value: sel.Text, Language: o.cfg.Language}
}

// =============================================================================
// CHAT
// =============================================================================

// SendMessage streams a reply to text from the session's selected model.
// Pending attachments are consumed when the request is dispatched, whether
// or not it succeeds. The user and assistant messages are appended to the
// session history together, only after the stream completes. A failure after
// some text arrived returns *llm.StreamError carrying that text.
func (o *Orchestrator) SendMessage(ctx context.Context, s *session.Session, text string, onDelta llm.DeltaFunc) (Reply, error) {
	if strings.TrimSpace(text) == "" && s.Pending().Len() == 0 {
		return Reply{}, ErrEmptyMessage
	}

	sel, r, cred, release, err := o.prepare(ctx, s)
	if err != nil {
		return Reply{}, err
	}
	defer release()

	if r.chat == nil {
		return o.sendImage(ctx, s, sel, r, cred, text)
	}

	system, err := prompt.Chat(o.promptData(s))
	if err != nil {
		return Reply{}, err
	}

	conv := s.Conversation()
	history := conv.Messages()
	files := s.Pending().Take()

	callCtx, cancel := o.callContext(ctx, s)
	defer cancel()

	start := time.Now()
	o.log.Debug().
		Str("session", s.ID()).
		Str("selection", sel.String()).
		Str("source", string(cred.Source)).
		Int("history", len(history)).
		Int("attachments", len(files)).
		Msg("sending message")

	reply, err := r.chat.StreamChat(callCtx, llm.ChatRequest{
		APIKey:      cred.Key,
		Model:       sel.Model,
		System:      system,
		Text:        text,
		Attachments: files,
		History:     history,
	}, onDelta)
	if err != nil {
		o.log.Warn().Err(err).Str("session", s.ID()).Str("selection", sel.String()).Msg("send failed")
		return Reply{}, err
	}

	conv.Append(model.NewUserMessage(text, files), model.NewAssistantMessage(reply))
	o.log.Info().
		Str("session", s.ID()).
		Str("selection", sel.String()).
		Dur("duration", time.Since(start)).
		Msg("message complete")

	return Reply{
		Selection:   sel,
		Source:      cred.Source,
		Text:        reply,
		Attachments: len(files),
	}, nil
}

// =============================================================================
// IMAGES
// =============================================================================

// GenerateImage asks the session's image model for one image. It does not
// touch history.
func (o *Orchestrator) GenerateImage(ctx context.Context, s *session.Session, promptText string) (*llm.Image, error) {
	if strings.TrimSpace(promptText) == "" {
		return nil, ErrEmptyMessage
	}
	sel, r, cred, release, err := o.prepare(ctx, s)
	if err != nil {
		return nil, err
	}
	defer release()

	if r.image == nil {
		return nil, fmt.Errorf("%w: %s", llm.ErrImageUnsupported, sel)
	}
	return o.image(ctx, s, sel, r, cred, promptText)
}

func (o *Orchestrator) sendImage(ctx context.Context, s *session.Session, sel provider.Selection, r route, cred credential.Credential, text string) (Reply, error) {
	conv := s.Conversation()
	files := s.Pending().Take()

	img, err := o.image(ctx, s, sel, r, cred, text)
	if err != nil {
		return Reply{}, err
	}

	note := fmt.Sprintf("[image generated: %s, %d bytes]", img.MimeType, len(img.Data))
	conv.Append(model.NewUserMessage(text, files), model.NewAssistantMessage(note))
	return Reply{
		Selection:   sel,
		Source:      cred.Source,
		Text:        note,
		Image:       img,
		Attachments: len(files),
	}, nil
}

func (o *Orchestrator) image(ctx context.Context, s *session.Session, sel provider.Selection, r route, cred credential.Credential, promptText string) (*llm.Image, error) {
	callCtx, cancel := o.callContext(ctx, s)
	defer cancel()

	img, err := r.image.GenerateImage(callCtx, llm.ImageRequest{
		APIKey: cred.Key,
		Model:  sel.Model,
		Prompt: promptText,
	})
	if err != nil {
		o.log.Warn().Err(err).Str("session", s.ID()).Str("selection", sel.String()).Msg("image generation failed")
		return nil, err
	}
	o.log.Info().
		Str("session", s.ID()).
		Str("selection", sel.String()).
		Str("mime", img.MimeType).
		Int("bytes", len(img.Data)).
		Msg("image generated")
	return img, nil
}
