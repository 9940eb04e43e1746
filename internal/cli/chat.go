// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive multi-turn chat.
//
// Command: chat [flags]
//
// The conversation is kept in memory for the session and sent in full with
// every turn. Input history is saved to <home>/chat_history.
//
// Slash commands:
//   /provider NAME   Switch provider (keeps the conversation)
//   /model NAME      Switch model
//   /system TEXT     Set the system prompt
//   /clear           Forget the conversation
//   /help            Show commands
//   /exit, /quit     Leave

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/Jeffrey0117/meei"
)

const chatHelp = `Commands:
  /provider NAME   switch provider
  /model NAME      switch model
  /system TEXT     set the system prompt
  /clear           forget the conversation
  /exit            leave`

// =============================================================================
// INPUT
// =============================================================================

// lineReader reads one line of user input.
type lineReader interface {
	Prompt(prompt string) (string, error)
	Close() error
}

// historyReader provides line editing and history on a terminal.
type historyReader struct {
	line        *liner.State
	historyFile string
}

func newHistoryReader(home string) *historyReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	r := &historyReader{line: line, historyFile: filepath.Join(home, "chat_history")}
	if f, err := os.Open(r.historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	return r
}

func (r *historyReader) Prompt(prompt string) (string, error) {
	input, err := r.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		r.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history with owner-only permissions and restores the terminal.
func (r *historyReader) Close() error {
	if err := os.MkdirAll(filepath.Dir(r.historyFile), 0700); err == nil {
		if f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			r.line.WriteHistory(f)
			f.Close()
		}
	}
	return r.line.Close()
}

// plainReader reads lines from piped input.
type plainReader struct {
	env *Env
}

func (r plainReader) Prompt(prompt string) (string, error) {
	fmt.Fprint(r.env.Stdout, PromptStyle.Render(prompt))
	line, err := r.env.reader().ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", io.EOF
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (plainReader) Close() error { return nil }

// =============================================================================
// SESSION
// =============================================================================

// chatSession is the state of one interactive chat.
type chatSession struct {
	env      *Env
	client   *meei.Client
	provider string
	model    string
	system   string
	messages []meei.Message
}

// HandleChat handles the "chat" command.
func HandleChat(env *Env, args Args) error {
	client, err := env.open(args)
	if err != nil {
		return err
	}
	defer client.Close()

	name := args.Provider
	if name == "" {
		name = client.DefaultProvider()
	}
	p, err := client.Provider(name)
	if err != nil {
		return err
	}

	session := &chatSession{
		env:      env,
		client:   client,
		provider: p.Name(),
		model:    args.Model,
		system:   args.System,
	}

	var in lineReader = plainReader{env: env}
	if env.stdinIsTerminal() {
		in = newHistoryReader(client.Config().Home)
	}
	defer in.Close()

	ctx, cancel := interruptContext()
	defer cancel()

	fmt.Fprintf(env.Stdout, "%s %s\n", TitleStyle.Render("meei chat"), DimStyle.Render("("+session.label()+", /help for commands)"))

	for {
		input, err := in.Prompt("> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(env.Stdout)
				return nil
			}
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if strings.HasPrefix(input, "/") {
			if !session.command(input) {
				return nil
			}
			continue
		}
		if err := session.turn(ctx, input); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			DisplayError(env.Stderr, err, false)
		}
	}
}

func (s *chatSession) label() string {
	if s.model == "" {
		return s.provider
	}
	return s.provider + "/" + s.model
}

// command runs a slash command and reports whether the session continues.
func (s *chatSession) command(input string) bool {
	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "/exit", "/quit", "/q":
		return false
	case "/clear":
		s.messages = nil
		fmt.Fprintln(s.env.Stdout, DimStyle.Render("Conversation cleared."))
	case "/provider":
		p, err := s.client.Provider(arg)
		if err != nil {
			DisplayError(s.env.Stderr, err, false)
			return true
		}
		s.provider = p.Name()
		s.model = ""
		fmt.Fprintln(s.env.Stdout, DimStyle.Render("Provider: "+s.provider))
	case "/model":
		s.model = arg
		fmt.Fprintln(s.env.Stdout, DimStyle.Render("Model: "+s.label()))
	case "/system":
		s.system = arg
		fmt.Fprintln(s.env.Stdout, DimStyle.Render("System prompt updated."))
	case "/help", "/?":
		fmt.Fprintln(s.env.Stdout, chatHelp)
	default:
		fmt.Fprintf(s.env.Stderr, "%s unknown command %s (try /help)\n", WarningStyle.Render("[!]"), name)
	}
	return true
}

// turn sends the conversation plus input and streams the reply. The user
// message is only kept when the call succeeds.
func (s *chatSession) turn(ctx context.Context, input string) error {
	messages := append(append([]meei.Message(nil), s.messages...), meei.NewUserMessage(input))

	var opts []meei.Option
	if s.model != "" {
		opts = append(opts, meei.WithModel(s.model))
	}
	if s.system != "" {
		opts = append(opts, meei.WithSystem(s.system))
	}

	stream, err := s.client.ConverseStream(ctx, s.provider, messages, opts...)
	if err != nil {
		return err
	}
	defer stream.Close()

	for stream.Next() {
		fmt.Fprint(s.env.Stdout, stream.Text())
	}
	fmt.Fprintln(s.env.Stdout)
	if err := stream.Err(); err != nil {
		return err
	}

	s.messages = append(messages, meei.NewAssistantMessage(stream.Content()))
	return nil
}
