// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/jeranaias/sheetmate/internal/assistant"
	"github.com/jeranaias/sheetmate/internal/credential"
	"github.com/jeranaias/sheetmate/internal/probe"
	"github.com/jeranaias/sheetmate/internal/session"
)

// Config configures the HTTP server.
type Config struct {
	// Addr is the listen address
	Addr string

	// AllowedOrigins is the CORS allowlist
	AllowedOrigins []string

	// AuthToken, when set, is required as a bearer token on /api routes
	AuthToken string

	// MaxBodyBytes caps request bodies
	MaxBodyBytes int64

	// Version is reported by /health
	Version string
}

// Deps are the components the handlers drive.
type Deps struct {
	Sessions     *session.Manager
	Orchestrator *assistant.Orchestrator
	Credentials  *credential.Resolver
	Probe        *probe.Probe
}

// Server is the task pane HTTP API.
type Server struct {
	cfg       Config
	deps      Deps
	log       zerolog.Logger
	engine    *gin.Engine
	http      *http.Server
	startTime time.Time
}

// New creates a server and registers its routes.
func New(cfg Config, deps Deps, log zerolog.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		deps:      deps,
		log:       log,
		engine:    gin.New(),
		startTime: time.Now(),
	}
	s.setupRoutes()
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler returns the router. Used by tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) setupRoutes() {
	r := s.engine
	r.Use(Recovery(s.log), RequestLogger(s.log), SecurityHeaders(), CORS(DefaultCORSConfig(s.cfg.AllowedOrigins)))

	r.GET("/health", s.handleHealth)

	api := r.Group("/api", Auth(s.cfg.AuthToken), BodyLimit(s.cfg.MaxBodyBytes), Sessions(s.deps.Sessions))
	{
		api.GET("/session", s.handleSessionStatus)
		api.PUT("/session/key", s.handleSetInputKey)

		api.POST("/chat", s.handleChat)
		api.POST("/generate", s.handleGenerate)
		api.POST("/image", s.handleImage)

		api.GET("/attachments", s.handleListAttachments)
		api.POST("/attachments", s.handleAddAttachment)
		api.DELETE("/attachments", s.handleClearAttachments)

		api.GET("/history", s.handleHistory)
		api.DELETE("/history", s.handleResetHistory)

		api.GET("/keys", s.handleKeyStatus)
		api.PUT("/keys/:provider", s.handleSaveKey)
		api.DELETE("/keys/:provider", s.handleDeleteKey)
		api.POST("/keys/:provider/test", s.handleTestKey)
		api.POST("/keys/:provider/restore", s.handleRestoreKey)

		api.GET("/models", s.handleModels)
		api.PUT("/model", s.handleSetModel)

		api.GET("/selection", s.handleGetSelection)
		api.POST("/selection", s.handleSetSelection)
		api.GET("/scripts", s.handleScripts)
		api.POST("/scripts/:id/result", s.handleScriptResult)
	}
}

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.cfg.Addr).Msg("sheetmate server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down server")
	return s.http.Shutdown(ctx)
}

type healthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	Sessions int    `json:"sessions"`
	Uptime   string `json:"uptime"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{
		Status:   "ok",
		Version:  s.cfg.Version,
		Sessions: s.deps.Sessions.Len(),
		Uptime:   session.FormatDuration(time.Since(s.startTime)),
	})
}
