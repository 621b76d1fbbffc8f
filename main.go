// sheetmate - An AI assistant backend for spreadsheet task panes.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"os"

	"github.com/jeranaias/sheetmate/internal/cli"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	// Sync version info with cli package
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse()
	ctx := context.Background()

	var err error
	switch cmd {
	case cli.CmdServe:
		err = cli.HandleServe(ctx, args)
	case cli.CmdAsk:
		err = cli.HandleAsk(ctx, args)
	case cli.CmdRun:
		err = cli.HandleRun(ctx, args)
	case cli.CmdImage:
		err = cli.HandleImage(ctx, args)
	case cli.CmdKeys:
		err = cli.HandleKeys(ctx, args)
	case cli.CmdModels:
		err = cli.HandleModels(ctx, args)
	case cli.CmdConfig:
		err = cli.HandleConfig(ctx, args)
	case cli.CmdVersion:
		err = cli.HandleVersion(args)
	default:
		cli.PrintUsage()
		if len(args.Rest) > 0 {
			os.Exit(cli.ExitUsageError)
		}
		return
	}

	if err != nil {
		cli.DisplayError(cmd, err, args.JSON)
		os.Exit(cli.GetExitCode(err))
	}
}
