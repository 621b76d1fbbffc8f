// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - Config command implementation.
//
// Command: config [subcommand]
// Short:   View and modify configuration
//
// Subcommands:
//   show (default)      Display the effective configuration
//   get <key>           Display one value
//   set <key> <value>   Set a value and save the config file
//   keys                List settable keys
//   path                Show configuration file path
//
// Examples:
//   sheetmate config
//   sheetmate config get model.default
//   sheetmate config set model.default claude:claude-sonnet-4-5-20250929
//   sheetmate config set server.allowed_origins https://localhost:3000,https://pane.example.com
//   sheetmate config set settings.store file
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jeranaias/sheetmate/internal/config"
)

// HandleConfig handles the "config" command.
func HandleConfig(ctx context.Context, args Args) error {
	return runConfig(args, os.Stdout)
}

func runConfig(args Args, out io.Writer) error {
	switch args.Subcommand {
	case "", "show":
		cfg, err := LoadConfig(args)
		if err != nil {
			return err
		}
		if args.JSON {
			masked := cfg.Clone()
			if masked.Server.AuthToken != "" {
				masked.Server.AuthToken = "********"
			}
			return NewJSONResponse(CmdConfig.String(), masked).Write(out)
		}
		return showConfig(cfg, out)

	case "get":
		if args.ConfigKey == "" {
			return ErrMissingArgument("key", "sheetmate config get model.default")
		}
		cfg, err := LoadConfig(args)
		if err != nil {
			return err
		}
		v, err := cfg.Get(args.ConfigKey)
		if err != nil {
			return &UsageError{Reason: err.Error(), Example: "sheetmate config keys"}
		}
		if args.JSON {
			return NewJSONResponse(CmdConfig.String(), map[string]any{args.ConfigKey: v}).Write(out)
		}
		fmt.Fprintln(out, formatValue(args.ConfigKey, v))
		return nil

	case "set":
		return setConfig(args, out)

	case "keys":
		for _, k := range config.GetAllKeys() {
			fmt.Fprintln(out, k)
		}
		return nil

	case "path":
		path, err := configFilePath(args)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, path)
		return nil

	default:
		return &UsageError{Reason: "unknown config subcommand: " + args.Subcommand, Example: "sheetmate config show"}
	}
}

// configFilePath is --config, the existing JSON file when only that exists,
// or the default TOML path.
func configFilePath(args Args) (string, error) {
	if args.ConfigPath != "" {
		return args.ConfigPath, nil
	}
	tomlPath, err := config.ConfigPathTOML()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(tomlPath); err == nil {
		return tomlPath, nil
	}
	if jsonPath, err := config.ConfigPathJSON(); err == nil {
		if _, err := os.Stat(jsonPath); err == nil {
			return jsonPath, nil
		}
	}
	return tomlPath, nil
}

// setConfig edits the file contents only, so environment overrides are
// never written back.
func setConfig(args Args, out io.Writer) error {
	if args.ConfigKey == "" || args.ConfigVal == "" {
		return ErrMissingArgument("key and value", "sheetmate config set model.language en")
	}
	path, err := configFilePath(args)
	if err != nil {
		return err
	}

	cfg := config.Default()
	if _, err := os.Stat(path); err == nil {
		if strings.HasSuffix(path, ".json") {
			err = config.LoadJSON(cfg, path)
		} else {
			err = config.LoadTOML(cfg, path)
		}
		if err != nil {
			return err
		}
	}

	if err := cfg.Set(args.ConfigKey, args.ConfigVal); err != nil {
		return &UsageError{Reason: err.Error(), Example: "sheetmate config keys"}
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	if strings.HasSuffix(path, ".json") {
		err = config.SaveJSON(cfg, path)
	} else {
		err = config.SaveTOML(cfg, path)
	}
	if err != nil {
		return err
	}

	v, _ := cfg.Get(args.ConfigKey)
	if args.JSON {
		return NewJSONResponse(CmdConfig.String(), map[string]any{args.ConfigKey: v, "path": path}).Write(out)
	}
	fmt.Fprintf(out, "%s %s = %s\n", RenderStatus("ok"), args.ConfigKey, formatValue(args.ConfigKey, v))
	return nil
}

func formatValue(key string, v any) string {
	if key == "server.auth_token" {
		if s, _ := v.(string); s != "" {
			return "********"
		}
	}
	if list, ok := v.([]string); ok {
		return strings.Join(list, ",")
	}
	return fmt.Sprint(v)
}

func showConfig(cfg *config.Config, out io.Writer) error {
	path, _ := config.ConfigPathTOML()
	fmt.Fprintln(out, TitleStyle.Render("Configuration"))
	fmt.Fprintln(out, DimStyle.Render(path))

	section := ""
	for _, key := range config.GetAllKeys() {
		head, _, _ := strings.Cut(key, ".")
		if head != section {
			fmt.Fprintln(out, SectionStyle.Render(head))
			section = head
		}
		v, err := cfg.Get(key)
		if err != nil {
			continue
		}
		fmt.Fprintf(out, "  %s%s\n", RenderLabel(strings.TrimPrefix(key, head+"."), 28), ValueStyle.Render(formatValue(key, v)))
	}
	return nil
}
