// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// models.go - Model catalog listing.
//
// Command: models
// Short:   List every selectable model; the default is marked with *
//
// "models check" pings every chat model that has a key, like "keys check".
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/jeranaias/sheetmate/internal/provider"
	"github.com/jeranaias/sheetmate/internal/util"
)

// HandleModels handles the "models" command.
func HandleModels(ctx context.Context, args Args) error {
	if args.Subcommand == "check" {
		return runWithApp(ctx, args, CmdModels, func(ctx context.Context, app *App) error {
			return keysCheck(ctx, app, args, os.Stdout)
		})
	}
	cfg, err := LoadConfig(args)
	if err != nil {
		return err
	}
	return listModels(cfg.DefaultSelection(), args, os.Stdout)
}

func listModels(def provider.Selection, args Args, out io.Writer) error {
	models := provider.Catalog()
	if args.JSON {
		return NewJSONResponse(CmdModels.String(), ModelsData{Default: def.String(), Models: models}).Write(out)
	}

	fmt.Fprintln(out, TitleStyle.Render("Models"))
	var last provider.ID
	for _, m := range models {
		if m.Provider != last {
			fmt.Fprintln(out, SectionStyle.Render(m.Provider.DisplayName()))
			last = m.Provider
		}
		sel := m.Selection()
		marker := "  "
		line := RenderLabel(util.TruncateWidth(sel.String(), 44), 46) + DimStyle.Render(m.Name)
		if sel == def {
			marker = HighlightStyle.Render("* ")
		}
		fmt.Fprintln(out, marker+line)
	}
	return nil
}
