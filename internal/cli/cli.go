// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Command parsing and dispatch for the meei CLI.

package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/Jeffrey0117/meei"
	"github.com/Jeffrey0117/meei/internal/logging"
)

// Version information (can be overridden at build time)
var (
	Version   = meei.Version
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdHelp Command = iota
	CmdInit
	CmdConfig
	CmdAsk
	CmdChat
	CmdUsage
	CmdProviders
	CmdVersion
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Home    string
	JSON    bool
	Verbose bool

	// Call options (ask, chat, usage --provider)
	Provider string
	Model    string
	System   string
	Stream   bool

	// init
	Force bool

	// ask
	Query string

	// config
	Subcommand string
	ConfigKey  string
	ConfigVal  string

	// usage
	Days   int
	Recent int
	Daily  bool
}

const usageText = `meei - one CLI for DeepSeek, OpenAI, Gemini, Qwen, Grok and Groq

Usage:
  meei init [--force]                  Create the encrypted key store
  meei config set <key> <value>        Store a setting (e.g. deepseek.api_key)
  meei config get <key>                Print a setting
  meei config delete <key>             Remove a setting
  meei config list                     List providers with stored settings
  meei config show <provider>          Show a provider's settings (keys masked)
  meei ask [flags] <prompt>            Ask one question (reads stdin if no prompt)
  meei chat [flags]                    Interactive chat
  meei usage [flags]                   Usage and cost report
  meei providers                       List providers and key status
  meei version                         Show version

Ask / chat flags:
  -p, --provider ID    Provider (default: deepseek or default_provider)
  -m, --model NAME     Model id or alias (e.g. r1, 4o, flash)
  -s, --system TEXT    System prompt
  --stream             Print the answer as it arrives (ask)

Usage flags:
  --days N             Window in days (default: 30)
  --provider ID        Only this provider
  --recent N           Also list the N most recent calls
  --daily              Also show per-day totals

Global flags:
  --home DIR           Data directory (default: $MEEI_HOME or ~/.meei)
  --json               JSON output
  -v, --verbose        Debug logging on stderr

Examples:
  meei init
  meei config set deepseek.api_key sk-...
  meei ask "What is SSE?"
  meei ask -p gemini -m flash --stream "Write a haiku about Go"
  git diff | meei ask -s "Review this patch"
  meei usage --days 7 --recent 10

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "meei version %s\n", Version)
	fmt.Fprintf(w, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Build date: %s\n", BuildDate)
}

// =============================================================================
// PARSING
// =============================================================================

// Parse parses command-line arguments (without the program name).
func Parse(argv []string) (Command, Args, error) {
	remaining, args := parseGlobalFlags(argv)

	if len(remaining) == 0 {
		return CmdHelp, args, nil
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]

	switch cmd {
	case "init":
		p := NewArgParser(remaining, "force", "f")
		args.Force = p.BoolFlag("force", "f")
		return CmdInit, args, nil

	case "config", "cfg":
		p := NewArgParser(remaining)
		args.Subcommand = strings.ToLower(p.Positional(0))
		args.ConfigKey = p.Positional(1)
		args.ConfigVal = strings.Join(p.PositionalFrom(2), " ")
		return CmdConfig, args, nil

	case "ask":
		p := NewArgParser(remaining, "stream")
		applyCallFlags(&args, p)
		args.Stream = p.BoolFlag("stream")
		args.Query = strings.Join(p.PositionalFrom(0), " ")
		return CmdAsk, args, nil

	case "chat":
		p := NewArgParser(remaining)
		applyCallFlags(&args, p)
		return CmdChat, args, nil

	case "usage", "stats":
		p := NewArgParser(remaining, "daily")
		args.Provider = p.Flag("provider", "p")
		args.Daily = p.BoolFlag("daily")
		args.Days = 30
		if v := p.Flag("days", "d"); v != "" {
			n, err := ParseIntWithValidation(v, "days")
			if err != nil {
				return CmdUsage, args, err
			}
			args.Days = n
		}
		if v := p.Flag("recent", "n"); v != "" {
			n, err := ParseIntWithValidation(v, "recent")
			if err != nil {
				return CmdUsage, args, err
			}
			args.Recent = n
		}
		return CmdUsage, args, nil

	case "providers", "pv":
		return CmdProviders, args, nil

	case "version", "--version":
		return CmdVersion, args, nil

	case "help", "-h", "--help":
		return CmdHelp, args, nil

	default:
		return CmdHelp, args, &ValidationError{
			Field:   "command",
			Value:   cmd,
			Reason:  "unknown command",
			Example: "meei help",
		}
	}
}

func applyCallFlags(args *Args, p *ArgParser) {
	args.Provider = p.Flag("provider", "p", "pv")
	args.Model = p.Flag("model", "m")
	args.System = p.Flag("system", "s")
}

// parseGlobalFlags extracts global flags from args and returns remaining args.
func parseGlobalFlags(argv []string) ([]string, Args) {
	var remaining []string
	var args Args

	for i := 0; i < len(argv); i++ {
		arg := argv[i]
		switch {
		case arg == "--json":
			args.JSON = true
		case arg == "-v" || arg == "--verbose":
			args.Verbose = true
		case arg == "--home" && i+1 < len(argv):
			i++
			args.Home = argv[i]
		case strings.HasPrefix(arg, "--home="):
			args.Home = strings.TrimPrefix(arg, "--home=")
		default:
			remaining = append(remaining, arg)
		}
	}
	return remaining, args
}

// =============================================================================
// ENVIRONMENT
// =============================================================================

// Env carries the process streams and the client factory, so commands can
// run against buffers in tests.
type Env struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Open builds the SDK client; nil means meei.Open.
	Open func(args Args) (*meei.Client, error)

	in *bufio.Reader
}

// DefaultEnv uses the real process streams.
func DefaultEnv() *Env {
	return &Env{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
}

func (e *Env) open(args Args) (*meei.Client, error) {
	if e.Open != nil {
		return e.Open(args)
	}
	var opts []meei.OpenOption
	if args.Home != "" {
		opts = append(opts, meei.WithHome(args.Home))
	}
	if args.Verbose {
		opts = append(opts, meei.WithLogger(logging.New("debug", logging.FormatText, e.Stderr)))
	}
	return meei.Open(opts...)
}

// =============================================================================
// DISPATCH
// =============================================================================

// Run executes one command and returns the process exit code.
func Run(env *Env, argv []string) int {
	cmd, args, err := Parse(argv)
	if err == nil {
		err = execute(env, cmd, args)
	}
	if err != nil {
		DisplayError(env.Stderr, err, args.JSON)
		return GetExitCode(err)
	}
	return ExitSuccess
}

func execute(env *Env, cmd Command, args Args) error {
	switch cmd {
	case CmdInit:
		return HandleInit(env, args)
	case CmdConfig:
		return HandleConfig(env, args)
	case CmdAsk:
		return HandleAsk(env, args)
	case CmdChat:
		return HandleChat(env, args)
	case CmdUsage:
		return HandleUsage(env, args)
	case CmdProviders:
		return HandleProviders(env, args)
	case CmdVersion:
		return HandleVersion(env, args)
	default:
		PrintUsage(env.Stdout)
		return nil
	}
}

// HandleVersion handles the "version" command.
func HandleVersion(env *Env, args Args) error {
	if args.JSON {
		return NewJSONResponse("version", VersionData{
			Version:   Version,
			GitCommit: GitCommit,
			BuildDate: BuildDate,
			GoVersion: runtime.Version(),
		}).Print(env.Stdout)
	}
	PrintVersion(env.Stdout)
	return nil
}
