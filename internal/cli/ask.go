// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - Single question command.
//
// Command: ask [flags] [prompt]
//
// Sends one prompt to a provider and prints the answer. With no prompt
// argument the prompt is read from stdin, so output of other tools can be
// piped in.
//
// Examples:
//   meei ask "What is the capital of France?"
//   meei ask -p openai -m 4o-mini "Summarize RFC 9110"
//   meei ask --stream -p gemini "Write a haiku"
//   cat main.go | meei ask -s "Review this code"

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"

	"github.com/Jeffrey0117/meei"
)

const markdownWrap = 80

// newMarkdownRenderer returns nil when glamour cannot build a renderer; the
// caller then prints raw text.
func newMarkdownRenderer() *glamour.TermRenderer {
	width := GetTerminalWidth()
	if width <= 0 || width > markdownWrap {
		width = markdownWrap
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	return r
}

// renderMarkdown renders content for a terminal, falling back to the raw text.
func renderMarkdown(content string) string {
	r := newMarkdownRenderer()
	if r == nil {
		return content
	}
	out, err := r.Render(content)
	if err != nil {
		return content
	}
	return out
}

// callOptions converts CLI flags to per-call options.
func callOptions(args Args) []meei.Option {
	var opts []meei.Option
	if args.Model != "" {
		opts = append(opts, meei.WithModel(args.Model))
	}
	if args.System != "" {
		opts = append(opts, meei.WithSystem(args.System))
	}
	return opts
}

// interruptContext is cancelled by Ctrl+C so in-flight requests stop cleanly.
func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// HandleAsk handles the "ask" command.
func HandleAsk(env *Env, args Args) error {
	prompt := strings.TrimSpace(args.Query)
	if prompt == "" && !env.stdinIsTerminal() {
		piped, err := env.readAll()
		if err != nil {
			return err
		}
		prompt = piped
	}
	if prompt == "" {
		return ErrMissingArgument("prompt", `meei ask "What is SSE?"`)
	}

	client, err := env.open(args)
	if err != nil {
		return err
	}
	defer client.Close()

	name := args.Provider
	if name == "" {
		name = client.DefaultProvider()
	}
	provider, err := client.Provider(name)
	if err != nil {
		return err
	}

	ctx, cancel := interruptContext()
	defer cancel()

	opts := callOptions(args)
	start := time.Now()

	if args.Stream && !args.JSON {
		return streamAnswer(ctx, env, client, provider.Name(), prompt, opts)
	}

	answer, err := client.Ask(ctx, provider.Name(), prompt, opts...)
	if err != nil {
		return err
	}

	if args.JSON {
		return NewJSONResponse("ask", AskData{
			Provider:   provider.Name(),
			Model:      provider.ResolveModel(args.Model),
			Response:   answer,
			DurationMs: time.Since(start).Milliseconds(),
		}).Print(env.Stdout)
	}

	if env.stdoutIsTerminal() {
		fmt.Fprint(env.Stdout, renderMarkdown(answer))
		return nil
	}
	fmt.Fprintln(env.Stdout, answer)
	return nil
}

// streamAnswer prints fragments as they arrive.
func streamAnswer(ctx context.Context, env *Env, client *meei.Client, provider, prompt string, opts []meei.Option) error {
	stream, err := client.AskStream(ctx, provider, prompt, opts...)
	if err != nil {
		return err
	}
	defer stream.Close()

	for stream.Next() {
		fmt.Fprint(env.Stdout, stream.Text())
	}
	fmt.Fprintln(env.Stdout)
	return stream.Err()
}
