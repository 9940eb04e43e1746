// meei - one command line for DeepSeek, OpenAI, Gemini, Qwen, Grok and Groq.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"fmt"
	"os"

	"github.com/Jeffrey0117/meei"
	"github.com/Jeffrey0117/meei/internal/cli"
)

// Version information (set at build time)
var (
	Version   = meei.Version
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	// Keys in ./.env fill in variables the shell has not set
	if err := meei.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	os.Exit(cli.Run(cli.DefaultEnv(), os.Args[1:]))
}
