// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing and dispatch for sheetmate.
package cli

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdServe Command = iota
	CmdAsk
	CmdRun
	CmdImage
	CmdKeys
	CmdModels
	CmdConfig
	CmdVersion
	CmdHelp
)

// String returns the command name used in JSON output.
func (c Command) String() string {
	switch c {
	case CmdServe:
		return "serve"
	case CmdAsk:
		return "ask"
	case CmdRun:
		return "run"
	case CmdImage:
		return "image"
	case CmdKeys:
		return "keys"
	case CmdModels:
		return "models"
	case CmdConfig:
		return "config"
	case CmdVersion:
		return "version"
	default:
		return "help"
	}
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Quiet      bool
	Verbose    bool
	JSON       bool
	Model      string
	ConfigPath string

	// Prompt commands
	Query string
	Files []string
	Cell  string
	Value string
	Key   string
	Out   string
	Plain bool

	// serve
	Addr string

	// keys and config
	Subcommand string
	Provider   string
	ConfigKey  string
	ConfigVal  string

	// Positional args left after flag parsing
	Rest []string
}

const usageText = `sheetmate - AI assistant for spreadsheets

Usage:
  sheetmate serve                  Run the task pane API server (default)
  sheetmate ask "question"         Ask about a cell and stream the answer
  sheetmate run "instruction"      Generate an Excel JavaScript script
  sheetmate image "prompt"         Generate an image
  sheetmate keys [subcommand]      Manage provider API keys
  sheetmate models                 List available models
  sheetmate models check           Ping every model that has a key
  sheetmate config [subcommand]    View and modify configuration
  sheetmate version                Show version information

Global Flags:
  -m, --model PROVIDER:MODEL       Model to use (e.g. claude:claude-sonnet-4-5)
  -c, --config PATH                Config file (default ~/.sheetmate/config.toml)
  -q, --quiet                      Minimal output
  -v, --verbose                    Debug logging
      --json                       JSON output

Prompt Flags (ask, run, image):
      --cell ADDRESS               Selected cell address (e.g. Sheet1!A1)
      --value TEXT                 Selected cell value
  -f, --file PATH                  Attach a file (repeatable, ask only)
  -k, --key KEY                    API key for this run only
  -o, --out PATH                   Write the script or image to PATH
      --plain                      Do not render markdown

Serve Flags:
      --addr HOST:PORT             Listen address

Keys:
  sheetmate keys                   Show key status per provider
  sheetmate keys set PROVIDER      Save a key (prompted, or read from stdin)
  sheetmate keys delete PROVIDER   Delete a saved key
  sheetmate keys test PROVIDER     Test the active key
  sheetmate keys check             Ping every model that has a key

Config:
  sheetmate config show            Show configuration
  sheetmate config get KEY         Show one value (dot notation)
  sheetmate config set KEY VALUE   Set and save a value
  sheetmate config keys            List settable keys
  sheetmate config path            Show config file location

Environment:
  OPENAI_API_KEY, ANTHROPIC_API_KEY, GEMINI_API_KEY
                                   Deploy-time keys (take priority over saved keys)
  SHEETMATE_*                      Config overrides (see "sheetmate config keys")
`

// PrintUsage prints the help text.
func PrintUsage() {
	fmt.Print(usageText)
}

// PrintVersion prints version information.
func PrintVersion() {
	fmt.Printf("sheetmate %s\n", Version)
	fmt.Printf("  Commit: %s\n", GitCommit)
	fmt.Printf("  Built:  %s\n", BuildDate)
	fmt.Printf("  Go:     %s\n", runtime.Version())
}

// VersionData is the JSON form of "version".
type VersionData struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// HandleVersion handles the "version" command.
func HandleVersion(args Args) error {
	if args.JSON {
		return NewJSONResponse("version", VersionData{
			Version:   Version,
			GitCommit: GitCommit,
			BuildDate: BuildDate,
			GoVersion: runtime.Version(),
		}).Print()
	}
	PrintVersion()
	return nil
}

// =============================================================================
// PARSING
// =============================================================================

// Parse parses os.Args.
func Parse() (Command, Args) {
	return ParseArgs(os.Args[1:])
}

// ParseArgs parses a command line without the program name.
func ParseArgs(argv []string) (Command, Args) {
	remaining, args := parseFlags(argv)
	if len(remaining) == 0 {
		return CmdServe, args
	}

	cmd, rest := remaining[0], remaining[1:]
	args.Rest = rest

	switch cmd {
	case "serve", "server":
		return CmdServe, args
	case "ask", "a":
		args.Query = strings.Join(rest, " ")
		return CmdAsk, args
	case "run", "r":
		args.Query = strings.Join(rest, " ")
		return CmdRun, args
	case "image", "img":
		args.Query = strings.Join(rest, " ")
		return CmdImage, args
	case "keys", "key":
		parseSubcommand(&args, rest)
		if len(rest) > 1 {
			args.Provider = rest[1]
		}
		return CmdKeys, args
	case "models":
		parseSubcommand(&args, rest)
		return CmdModels, args
	case "config":
		parseSubcommand(&args, rest)
		if len(rest) > 1 {
			args.ConfigKey = rest[1]
		}
		if len(rest) > 2 {
			args.ConfigVal = strings.Join(rest[2:], " ")
		}
		return CmdConfig, args
	case "version", "--version":
		return CmdVersion, args
	case "help", "-h", "--help":
		return CmdHelp, args
	default:
		args.Rest = remaining
		return CmdHelp, args
	}
}

func parseSubcommand(args *Args, rest []string) {
	if len(rest) > 0 {
		args.Subcommand = rest[0]
	}
}

// flagValue returns the value of a "--name value" or "--name=value" flag.
func flagValue(argv []string, i int, names ...string) (string, int, bool) {
	arg := argv[i]
	for _, name := range names {
		if arg == name {
			if i+1 < len(argv) {
				return argv[i+1], i + 1, true
			}
			return "", i, true
		}
		if v, ok := strings.CutPrefix(arg, name+"="); ok {
			return v, i, true
		}
	}
	return "", i, false
}

// parseFlags extracts flags from anywhere on the command line and returns
// the positional arguments in order.
func parseFlags(argv []string) ([]string, Args) {
	var remaining []string
	var args Args

	for i := 0; i < len(argv); i++ {
		arg := argv[i]

		switch arg {
		case "-q", "--quiet":
			args.Quiet = true
			continue
		case "-v", "--verbose":
			args.Verbose = true
			continue
		case "--json":
			args.JSON = true
			continue
		case "--plain":
			args.Plain = true
			continue
		case "--":
			remaining = append(remaining, argv[i+1:]...)
			return remaining, args
		}

		stringFlags := []struct {
			names []string
			dst   *string
		}{
			{[]string{"-m", "--model"}, &args.Model},
			{[]string{"-c", "--config"}, &args.ConfigPath},
			{[]string{"--cell"}, &args.Cell},
			{[]string{"--value"}, &args.Value},
			{[]string{"-k", "--key"}, &args.Key},
			{[]string{"-o", "--out"}, &args.Out},
			{[]string{"--addr"}, &args.Addr},
		}
		matched := false
		for _, f := range stringFlags {
			if v, next, ok := flagValue(argv, i, f.names...); ok {
				*f.dst = v
				i = next
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		if v, next, ok := flagValue(argv, i, "-f", "--file"); ok {
			if v != "" {
				args.Files = append(args.Files, v)
			}
			i = next
			continue
		}

		remaining = append(remaining, arg)
	}
	return remaining, args
}
