// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One-shot prompt commands: ask, run and image.
//
// Command: ask "question" [flags]
// Short:   Ask about a cell and stream the answer
//
// Command: run "instruction" [flags]
// Short:   Generate an Excel JavaScript script for the instruction
//
// Command: image "prompt" [flags]
// Short:   Generate an image
//
// Examples:
//   sheetmate ask "What does this formula do?" --cell Sheet1!C2 --value "=SUMIF(A:A,\"x\",B:B)"
//   sheetmate ask "Summarize this invoice" -f invoice.pdf -m claude:claude-sonnet-4-5-20250929
//   sheetmate run "Make the header row bold" --cell Sheet1!A1:F1 -o bold.js
//   sheetmate image "A bar chart icon" -o icon.png
//
// The command line has no workbook, so the selection comes from --cell and
// --value and generated scripts are printed (and written with --out)
// instead of executed.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/gabriel-vasile/mimetype"

	"github.com/jeranaias/sheetmate/internal/assistant"
	"github.com/jeranaias/sheetmate/internal/content"
	"github.com/jeranaias/sheetmate/internal/host"
	"github.com/jeranaias/sheetmate/internal/llm"
	"github.com/jeranaias/sheetmate/internal/provider"
	"github.com/jeranaias/sheetmate/internal/session"
	"github.com/jeranaias/sheetmate/internal/util"
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// renderMarkdown renders a reply for the terminal. The raw text is returned
// when the renderer cannot be built or fails.
func renderMarkdown(text string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(GetTerminalWidth()-4),
	)
	if err != nil {
		return text
	}
	out, err := r.Render(text)
	if err != nil {
		return text
	}
	return out
}

// =============================================================================
// SHARED SETUP
// =============================================================================

// promptSession builds a one-off session around a static host printing to out.
func (a *App) promptSession(args Args, sel provider.Selection, out io.Writer) (*session.Session, *host.Static) {
	st := host.NewStatic(host.Selection{Address: args.Cell, Text: args.Value}, out)
	s := session.New("cli", st, sel)
	s.SetInputKey(strings.TrimSpace(args.Key))
	return s, st
}

func runWithApp(ctx context.Context, args Args, cmd Command, fn func(context.Context, *App) error) error {
	app, err := NewApp(args, cmd)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(ctx, app)
}

// =============================================================================
// ASK
// =============================================================================

// HandleAsk handles the "ask" command.
func HandleAsk(ctx context.Context, args Args) error {
	return runWithApp(ctx, args, CmdAsk, func(ctx context.Context, app *App) error {
		return runAsk(ctx, app, args, os.Stdout, os.Stderr)
	})
}

func runAsk(ctx context.Context, app *App, args Args, stdout, stderr io.Writer) error {
	if strings.TrimSpace(args.Query) == "" && len(args.Files) == 0 {
		return ErrMissingArgument("question", `sheetmate ask "What does this formula do?" --cell A1 --value "=SUM(B:B)"`)
	}
	sel, err := app.Selection(args.Model)
	if err != nil {
		return err
	}
	s, _ := app.promptSession(args, sel, stdout)

	for _, path := range args.Files {
		att, err := content.ReadFile(path)
		if err != nil {
			return err
		}
		if err := s.Pending().Add(att); err != nil {
			return err
		}
	}

	render := !args.Plain && !args.JSON && IsStdoutTTY()
	stream := !render && !args.JSON
	wrote := false

	start := time.Now()
	reply, err := app.Assistant.SendMessage(ctx, s, args.Query, func(delta string) {
		if stream {
			fmt.Fprint(stdout, delta)
			wrote = true
		}
	})
	if err != nil {
		if wrote {
			fmt.Fprintln(stdout)
		}
		var se *llm.StreamError
		if errors.As(err, &se) && render && se.Partial != "" {
			fmt.Fprint(stdout, renderMarkdown(se.Partial))
		}
		return err
	}
	elapsed := time.Since(start)

	var imagePath string
	if reply.Image != nil {
		if imagePath, err = saveImage(reply.Image, args.Out); err != nil {
			return err
		}
	}

	switch {
	case args.JSON:
		return NewJSONResponse(CmdAsk.String(), AskData{
			Model:       reply.Selection.String(),
			Source:      reply.Source,
			Answer:      reply.Text,
			Attachments: reply.Attachments,
			DurationMs:  elapsed.Milliseconds(),
		}).Write(stdout)
	case render:
		fmt.Fprint(stdout, renderMarkdown(reply.Text))
	case wrote:
		fmt.Fprintln(stdout)
	default:
		fmt.Fprintln(stdout, reply.Text)
	}

	if !args.Quiet {
		meta := fmt.Sprintf("%s | key: %s | %s", reply.Selection, reply.Source, session.FormatDuration(elapsed))
		if imagePath != "" {
			meta += " | saved " + imagePath
		}
		fmt.Fprintln(stderr, DimStyle.Render(meta))
	}
	return nil
}

// =============================================================================
// RUN
// =============================================================================

// HandleRun handles the "run" command.
func HandleRun(ctx context.Context, args Args) error {
	return runWithApp(ctx, args, CmdRun, func(ctx context.Context, app *App) error {
		return runScript(ctx, app, args, os.Stdout)
	})
}

func runScript(ctx context.Context, app *App, args Args, stdout io.Writer) error {
	if strings.TrimSpace(args.Query) == "" {
		return ErrMissingArgument("instruction", `sheetmate run "Make the header row bold" --cell Sheet1!A1:F1`)
	}
	sel, err := app.Selection(args.Model)
	if err != nil {
		return err
	}

	scriptOut := stdout
	if args.JSON {
		scriptOut = io.Discard
	}
	s, st := app.promptSession(args, sel, scriptOut)
	st.Highlight = !args.Plain && !args.JSON && ColorsEnabled()
	st.OutPath = args.Out

	if !args.JSON && !args.Quiet {
		fmt.Fprintln(stdout, TitleStyle.Render("Generated script"))
	}
	res, err := app.Assistant.GenerateAndRun(ctx, s, args.Query)
	if err != nil && !errors.Is(err, assistant.ErrNoCodeProduced) {
		return err
	}

	if args.JSON {
		data := RunData{Model: sel.String(), Description: res.Description, Code: res.Code}
		if res.Executed {
			data.Written = args.Out
		}
		if werr := NewJSONResponse(CmdRun.String(), data).Write(stdout); werr != nil {
			return werr
		}
		return err
	}

	fmt.Fprintln(stdout, RenderSeparator())
	fmt.Fprintln(stdout, ValueStyle.Render(res.Description))
	if res.Executed && args.Out != "" {
		fmt.Fprintf(stdout, "%s %s\n", RenderStatus("ok"), "written to "+args.Out)
	}
	return err
}

// =============================================================================
// IMAGE
// =============================================================================

// HandleImage handles the "image" command.
func HandleImage(ctx context.Context, args Args) error {
	return runWithApp(ctx, args, CmdImage, func(ctx context.Context, app *App) error {
		return runImage(ctx, app, args, os.Stdout)
	})
}

// imageSelection maps a chat selection to the image model of the same
// provider, falling back to OpenAI for providers without one.
func imageSelection(sel provider.Selection) provider.Selection {
	if sel.Provider.IsImage() {
		return sel
	}
	want := provider.OpenAIImage
	if sel.Provider.Base() == provider.Gemini {
		want = provider.GeminiImage
	}
	models := provider.ModelsFor(want)
	if len(models) == 0 {
		return sel
	}
	return models[0].Selection()
}

func runImage(ctx context.Context, app *App, args Args, stdout io.Writer) error {
	if strings.TrimSpace(args.Query) == "" {
		return ErrMissingArgument("prompt", `sheetmate image "A bar chart icon" -o icon.png`)
	}
	sel, err := app.Selection(args.Model)
	if err != nil {
		return err
	}
	if args.Model == "" {
		sel = imageSelection(sel)
	}

	s, _ := app.promptSession(args, sel, io.Discard)
	img, err := app.Assistant.GenerateImage(ctx, s, args.Query)
	if err != nil {
		return err
	}
	path, err := saveImage(img, args.Out)
	if err != nil {
		return err
	}

	if args.JSON {
		return NewJSONResponse(CmdImage.String(), ImageData{
			Model:    sel.String(),
			MimeType: img.MimeType,
			Bytes:    len(img.Data),
			Path:     path,
		}).Write(stdout)
	}
	fmt.Fprintf(stdout, "%s %s (%s, %d bytes)\n", RenderStatus("ok"), path, img.MimeType, len(img.Data))
	return nil
}

// saveImage writes img to path, or to a timestamped file in the working
// directory when path is empty.
func saveImage(img *llm.Image, path string) (string, error) {
	if path == "" {
		ext := ".png"
		if m := mimetype.Lookup(img.MimeType); m != nil && m.Extension() != "" {
			ext = m.Extension()
		}
		path = "sheetmate-" + time.Now().Format("20060102-150405") + ext
	}
	if err := util.AtomicWriteFile(path, img.Data, 0644); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}
	return path, nil
}
