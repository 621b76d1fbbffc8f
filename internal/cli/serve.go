// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// serve.go - The task pane API server.
//
// Command: serve
// Short:   Run the HTTP API the spreadsheet task pane talks to
//
// Examples:
//   sheetmate serve
//   sheetmate serve --addr 127.0.0.1:4000
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jeranaias/sheetmate/internal/server"
	"github.com/jeranaias/sheetmate/internal/session"
	"github.com/jeranaias/sheetmate/internal/settings"
)

const shutdownTimeout = 10 * time.Second

// HandleServe runs the server until SIGINT or SIGTERM.
func HandleServe(ctx context.Context, args Args) error {
	app, err := NewApp(args, CmdServe)
	if err != nil {
		return err
	}
	defer app.Close()

	cfg := app.Config
	if args.Addr != "" {
		cfg.Server.Addr = args.Addr
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := settings.WatchLocal(ctx, app.Store); err != nil {
			app.Log.Warn().Err(err).Msg("saved key file watcher stopped")
		}
	}()

	sessions := session.NewManager(session.Config{
		IdleTimeout:  cfg.IdleTimeout(),
		DefaultModel: cfg.DefaultSelection(),
	})
	sessions.SetExpireCallback(func(s *session.Session) {
		app.Log.Debug().Str("session", s.ID()).Msg("session expired")
	})
	go sessions.Run(ctx)

	if !args.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := server.New(server.Config{
		Addr:           cfg.Server.Addr,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AuthToken:      cfg.Server.AuthToken,
		MaxBodyBytes:   int64(cfg.Server.MaxBodyMB) << 20,
		Version:        Version,
	}, server.Deps{
		Sessions:     sessions,
		Orchestrator: app.Assistant,
		Credentials:  app.Credentials,
		Probe:        app.Probe,
	}, app.Log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
