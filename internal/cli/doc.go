// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and execution for sheetmate.
//
// The default command runs the HTTP backend for the spreadsheet task pane.
// The other commands run the same assistant from a terminal, with the
// selection given by --cell and --value instead of a live workbook.
//
// # Key Types
//
//   - Command: Enumeration of all available CLI commands
//   - Args: Parsed command-line arguments with global and command-specific flags
//   - App: Store, resolver, adapters and orchestrator built from configuration
//   - JSONResponse: Envelope of every --json response
//
// # Usage
//
//	cmd, args := cli.Parse()
//	switch cmd {
//	case cli.CmdAsk:
//	    err = cli.HandleAsk(ctx, args)
//	// ... other commands
//	}
//	if err != nil {
//	    cli.DisplayError(cmd, err, args.JSON)
//	    os.Exit(cli.GetExitCode(err))
//	}
//
// # Commands Overview
//
//   - serve: Task pane backend (default)
//   - ask: Ask about a cell and stream the answer
//   - run: Generate an Excel JavaScript script
//   - image: Generate an image
//   - keys: Manage and test provider API keys
//   - models: List selectable models
//   - config: View and modify configuration
//
// All commands support --json for scripting.
package cli
