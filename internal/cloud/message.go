// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

// =============================================================================
// MESSAGES
// =============================================================================

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// Completion is a parsed vendor response.
type Completion struct {
	Content      string
	InputTokens  int
	OutputTokens int
	Model        string
}

// Result is delivered by the async variants.
type Result struct {
	Text string
	Err  error
}

// Price is USD per 1000 tokens.
type Price struct {
	Input  float64
	Output float64
}

// =============================================================================
// CALL OPTIONS
// =============================================================================

// Params are the per-call generation settings. Nil pointers mean "let the
// vendor decide" and are left out of the request.
type Params struct {
	Model       string
	System      string
	Temperature *float64
	MaxTokens   *int
}

// Option sets one field of Params.
type Option func(*Params)

// WithModel selects a model by full id or alias.
func WithModel(model string) Option {
	return func(p *Params) { p.Model = model }
}

// WithSystem sets the system prompt.
func WithSystem(system string) Option {
	return func(p *Params) { p.System = system }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(p *Params) { p.Temperature = &t }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(p *Params) { p.MaxTokens = &n }
}

// NewParams applies opts to an empty Params.
func NewParams(opts ...Option) Params {
	var p Params
	for _, opt := range opts {
		if opt != nil {
			opt(&p)
		}
	}
	return p
}

// withSystem prepends a system message unless the conversation already
// starts with one.
func withSystem(messages []Message, system string) []Message {
	if system == "" || (len(messages) > 0 && messages[0].Role == RoleSystem) {
		return messages
	}
	out := make([]Message, 0, len(messages)+1)
	out = append(out, NewSystemMessage(system))
	return append(out, messages...)
}

// lastContent is what the usage ledger stores as the prompt.
func lastContent(messages []Message) string {
	if len(messages) == 0 {
		return ""
	}
	return messages[len(messages)-1].Content
}
