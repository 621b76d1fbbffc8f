// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// keys.go - API key management.
//
// Command: keys [subcommand]
// Short:   Manage provider API keys
//
// Subcommands:
//   status (default)     Show where each provider's key comes from
//   set PROVIDER         Save a key (prompted without echo, or read from stdin)
//   delete PROVIDER      Delete a saved key
//   test PROVIDER        Test --key, or the key that would be used
//   check                Ping every chat model that has a key
//
// Examples:
//   sheetmate keys
//   sheetmate keys set claude
//   echo "$KEY" | sheetmate keys set openai
//   sheetmate keys test gemini --key AIza...
//   sheetmate keys check --json
//
// Keys from OPENAI_API_KEY, ANTHROPIC_API_KEY and GEMINI_API_KEY take
// priority over saved keys.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jeranaias/sheetmate/internal/credential"
	"github.com/jeranaias/sheetmate/internal/probe"
	"github.com/jeranaias/sheetmate/internal/provider"
)

// HandleKeys handles the "keys" command.
func HandleKeys(ctx context.Context, args Args) error {
	return runWithApp(ctx, args, CmdKeys, func(ctx context.Context, app *App) error {
		return runKeys(ctx, app, args, os.Stdout)
	})
}

func runKeys(ctx context.Context, app *App, args Args, out io.Writer) error {
	switch args.Subcommand {
	case "", "status", "list":
		return keysStatus(ctx, app, args, out)
	case "set", "save":
		return keysSet(ctx, app, args, out)
	case "delete", "rm":
		return keysDelete(ctx, app, args, out)
	case "test":
		return keysTest(ctx, app, args, out)
	case "check":
		return keysCheck(ctx, app, args, out)
	default:
		return &UsageError{Reason: "unknown keys subcommand: " + args.Subcommand, Example: "sheetmate keys set claude"}
	}
}

func requireProvider(args Args, example string) (provider.ID, error) {
	if args.Provider == "" {
		return "", ErrMissingArgument("provider", example)
	}
	id, err := provider.Parse(args.Provider)
	if err != nil {
		return "", err
	}
	return id.Base(), nil
}

func keysStatus(ctx context.Context, app *App, args Args, out io.Writer) error {
	status := app.Credentials.Status(ctx)
	if args.JSON {
		return NewJSONResponse(CmdKeys.String(), KeysData{Providers: status}).Write(out)
	}

	fmt.Fprintln(out, TitleStyle.Render("API Keys"))
	for _, id := range provider.Bases() {
		st := status[id]
		var detail string
		switch {
		case st.HasEnv && st.HasSaved:
			detail = "environment (saved key " + st.Saved + " is shadowed)"
		case st.HasEnv:
			detail = "environment"
		case st.HasSaved:
			detail = "saved " + st.Saved
		default:
			detail = DimStyle.Render("not set")
		}
		tag := "ok"
		if !st.HasEnv && !st.HasSaved {
			tag = "warn"
		}
		fmt.Fprintf(out, "%s %s%s\n", RenderStatus(tag), RenderLabel(id.DisplayName()), ValueStyle.Render(detail))
	}
	return nil
}

func keysSet(ctx context.Context, app *App, args Args, out io.Writer) error {
	id, err := requireProvider(args, "sheetmate keys set claude")
	if err != nil {
		return err
	}

	key := strings.TrimSpace(args.Key)
	if key == "" {
		if key, err = ReadSecret(fmt.Sprintf("%s API key: ", id.DisplayName())); err != nil {
			return err
		}
	}
	if err := app.Credentials.Save(ctx, string(id), key); err != nil {
		return err
	}

	if args.JSON {
		return NewJSONResponse(CmdKeys.String(), map[string]string{
			"provider":    string(id),
			"fingerprint": credential.Fingerprint(key),
		}).Write(out)
	}
	fmt.Fprintf(out, "%s saved %s key %s\n", RenderStatus("ok"), id.DisplayName(), credential.Fingerprint(key))
	if app.Credentials.HasEnv(id) {
		fmt.Fprintln(out, WarningStyle.Render("The environment key for this provider takes priority over the saved key."))
	}
	return nil
}

func keysDelete(ctx context.Context, app *App, args Args, out io.Writer) error {
	id, err := requireProvider(args, "sheetmate keys delete claude")
	if err != nil {
		return err
	}
	if err := app.Credentials.Delete(ctx, string(id)); err != nil {
		return err
	}
	if args.JSON {
		return NewJSONResponse(CmdKeys.String(), map[string]string{"provider": string(id), "deleted": "true"}).Write(out)
	}
	fmt.Fprintf(out, "%s deleted saved %s key\n", RenderStatus("ok"), id.DisplayName())
	return nil
}

// ErrKeyRejected is returned by "keys test" when the probe fails.
var ErrKeyRejected = errors.New("key test failed")

func keysTest(ctx context.Context, app *App, args Args, out io.Writer) error {
	id, err := requireProvider(args, "sheetmate keys test claude")
	if err != nil {
		return err
	}

	key, source := strings.TrimSpace(args.Key), string(credential.SourceInput)
	if key == "" {
		cred, err := app.Credentials.Resolve(ctx, string(id), "")
		if err != nil {
			return err
		}
		key, source = cred.Key, string(cred.Source)
	}

	res := app.Probe.TestKey(ctx, string(id), key)
	if args.JSON {
		if werr := NewJSONResponse(CmdKeys.String(), KeyTestData{Provider: id, Source: source, Result: res}).Write(out); werr != nil {
			return werr
		}
	} else if res.Success {
		fmt.Fprintf(out, "%s %s key (%s) is valid\n", RenderStatus("ok"), id.DisplayName(), source)
	} else {
		fmt.Fprintf(out, "%s %s key (%s): %s\n", RenderStatus("fail"), id.DisplayName(), source, res.Error)
	}

	if !res.Success {
		return fmt.Errorf("%w: %s", ErrKeyRejected, res.Error)
	}
	return nil
}

func keysCheck(ctx context.Context, app *App, args Args, out io.Writer) error {
	keys := make(map[provider.ID]string)
	for _, id := range provider.Bases() {
		cred, err := app.Credentials.Resolve(ctx, string(id), "")
		if err == nil && cred.Present() {
			keys[id] = cred.Key
		}
	}
	if len(keys) == 0 {
		return fmt.Errorf("%w: no provider has a key", credential.ErrCredentialMissing)
	}

	results := app.Probe.CheckModels(ctx, keys, probe.DefaultConcurrency)
	if args.JSON {
		return NewJSONResponse(CmdKeys.String(), results).Write(out)
	}

	fmt.Fprintln(out, TitleStyle.Render("Model Check"))
	failed := 0
	for _, r := range results {
		label := RenderLabel(r.Provider.String()+":"+r.Model, 44)
		if r.Success {
			fmt.Fprintf(out, "%s %s\n", RenderStatus("ok"), label)
			continue
		}
		failed++
		fmt.Fprintf(out, "%s %s%s\n", RenderStatus("fail"), label, DimStyle.Render(r.Error))
	}
	fmt.Fprintf(out, "\n%d/%d models reachable\n", len(results)-failed, len(results))
	return nil
}
