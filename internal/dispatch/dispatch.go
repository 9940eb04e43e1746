// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package dispatch picks a vendor adapter by name and forwards calls to it.
//
// Adapters are created on first use and reused for the life of the
// Dispatcher, so their HTTP connection pools are shared across calls.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Jeffrey0117/meei/internal/cloud"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrUnknownProvider is matched by every UnknownProviderError.
var ErrUnknownProvider = errors.New("unknown provider")

// UnknownProviderError names the rejected id and the valid ones.
type UnknownProviderError struct {
	Name  string
	Valid []string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("%s %q, valid providers: %s", ErrUnknownProvider, e.Name, strings.Join(e.Valid, ", "))
}

func (e *UnknownProviderError) Is(target error) bool {
	return target == ErrUnknownProvider
}

// =============================================================================
// DISPATCHER
// =============================================================================

// DefaultProvider is used when neither the caller nor the config names one.
const DefaultProvider = cloud.IDDeepSeek

// aliases maps alternate names onto provider ids.
var aliases = map[string]string{
	"chatgpt": cloud.IDOpenAI,
}

// Dispatcher resolves provider names to lazily-built adapters. It is safe
// for concurrent use.
type Dispatcher struct {
	mu              sync.Mutex
	instances       map[string]cloud.Provider
	deps            cloud.Deps
	defaultProvider string
}

// New creates a Dispatcher. An empty defaultProvider means DefaultProvider.
func New(deps cloud.Deps, defaultProvider string) *Dispatcher {
	if defaultProvider == "" {
		defaultProvider = DefaultProvider
	}
	return &Dispatcher{
		instances:       make(map[string]cloud.Provider),
		deps:            deps,
		defaultProvider: defaultProvider,
	}
}

// Default returns the provider used for empty names.
func (d *Dispatcher) Default() string {
	return d.defaultProvider
}

// Canonical lowercases name and applies aliases. Empty means the default.
func (d *Dispatcher) Canonical(name string) string {
	id := strings.ToLower(strings.TrimSpace(name))
	if id == "" {
		id = strings.ToLower(d.defaultProvider)
	}
	if target, ok := aliases[id]; ok {
		return target
	}
	return id
}

// Provider returns the adapter for name, creating it on first use.
func (d *Dispatcher) Provider(name string) (cloud.Provider, error) {
	id := d.Canonical(name)

	d.mu.Lock()
	defer d.mu.Unlock()

	if p, ok := d.instances[id]; ok {
		return p, nil
	}
	p, ok := cloud.New(id, d.deps)
	if !ok {
		return nil, &UnknownProviderError{Name: name, Valid: cloud.IDs()}
	}
	d.instances[id] = p
	return p, nil
}

// Providers lists every accepted name: the provider ids and their aliases,
// sorted.
func (d *Dispatcher) Providers() []string {
	names := cloud.IDs()
	for alias := range aliases {
		names = append(names, alias)
	}
	sort.Strings(names)
	return names
}

// =============================================================================
// FORWARDING
// =============================================================================

// Ask sends one prompt to the named provider.
func (d *Dispatcher) Ask(ctx context.Context, provider, prompt string, opts ...cloud.Option) (string, error) {
	p, err := d.Provider(provider)
	if err != nil {
		return "", err
	}
	return p.Chat(ctx, prompt, opts...)
}

// AskStream streams the answer to one prompt.
func (d *Dispatcher) AskStream(ctx context.Context, provider, prompt string, opts ...cloud.Option) (*cloud.Stream, error) {
	p, err := d.Provider(provider)
	if err != nil {
		return nil, err
	}
	return p.ChatStream(ctx, prompt, opts...)
}

// AskAsync runs Ask on a goroutine. The channel always receives one Result.
func (d *Dispatcher) AskAsync(ctx context.Context, provider, prompt string, opts ...cloud.Option) <-chan cloud.Result {
	p, err := d.Provider(provider)
	if err != nil {
		return failed(err)
	}
	return p.ChatAsync(ctx, prompt, opts...)
}

// Converse sends a conversation to the named provider.
func (d *Dispatcher) Converse(ctx context.Context, provider string, messages []cloud.Message, opts ...cloud.Option) (string, error) {
	p, err := d.Provider(provider)
	if err != nil {
		return "", err
	}
	return p.Converse(ctx, messages, opts...)
}

// ConverseStream streams the answer to a conversation.
func (d *Dispatcher) ConverseStream(ctx context.Context, provider string, messages []cloud.Message, opts ...cloud.Option) (*cloud.Stream, error) {
	p, err := d.Provider(provider)
	if err != nil {
		return nil, err
	}
	return p.ConverseStream(ctx, messages, opts...)
}

// ConverseAsync runs Converse on a goroutine.
func (d *Dispatcher) ConverseAsync(ctx context.Context, provider string, messages []cloud.Message, opts ...cloud.Option) <-chan cloud.Result {
	p, err := d.Provider(provider)
	if err != nil {
		return failed(err)
	}
	return p.ConverseAsync(ctx, messages, opts...)
}

func failed(err error) <-chan cloud.Result {
	out := make(chan cloud.Result, 1)
	out <- cloud.Result{Err: err}
	close(out)
	return out
}
