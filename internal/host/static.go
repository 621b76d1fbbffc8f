// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package host

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"

	"github.com/jeranaias/sheetmate/internal/util"
)

// Static is a Host for the command line. The selection is fixed at
// construction. RunScript prints the script and writes it to OutPath when
// one is set; nothing is executed.
type Static struct {
	sel       Selection
	out       io.Writer
	OutPath   string
	Highlight bool
}

// NewStatic creates a CLI host printing scripts to out.
func NewStatic(sel Selection, out io.Writer) *Static {
	return &Static{sel: sel, out: out}
}

// Selection implements Host.
func (s *Static) Selection() Selection {
	return s.sel
}

// OnSelectionChanged implements Host. The selection never changes.
func (s *Static) OnSelectionChanged(func(Selection)) func() {
	return func() {}
}

// RunScript implements Host.
func (s *Static) RunScript(ctx context.Context, code string) error {
	if err := ctx.Err(); err != nil {
		return &ExecutionError{Err: err}
	}

	shown := code
	if s.Highlight {
		shown = Highlight(code, "javascript")
	}
	if _, err := fmt.Fprintln(s.out, shown); err != nil {
		return &ExecutionError{Message: "failed to print script", Err: err}
	}

	if s.OutPath != "" {
		if err := util.AtomicWriteFile(s.OutPath, []byte(code), 0644); err != nil {
			return &ExecutionError{Message: "failed to write " + s.OutPath, Err: err}
		}
	}
	return nil
}

// Highlight renders code for a 256-colour terminal. Unknown languages are
// detected from the code; on any failure the code is returned unchanged.
func Highlight(code, language string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := chromaStyles.Get("monokai")
	if style == nil {
		style = chromaStyles.Fallback
	}

	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}

	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	return buf.String()
}
