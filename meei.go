// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package meei is a single client for several chat-completion vendors.
//
// One call shape reaches DeepSeek, OpenAI, Gemini, Qwen, Grok and Groq. API
// keys live in an encrypted local store, and every call is appended to a
// local SQLite usage ledger with tokens, cost and latency.
//
//	client, err := meei.Open()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	answer, err := client.Ask(ctx, "gemini", "Explain SSE in one line", meei.WithModel("flash"))
//
// An empty provider name selects the configured default (deepseek unless
// default_provider says otherwise).
package meei

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/Jeffrey0117/meei/internal/cloud"
	"github.com/Jeffrey0117/meei/internal/config"
	"github.com/Jeffrey0117/meei/internal/dispatch"
	"github.com/Jeffrey0117/meei/internal/logging"
	"github.com/Jeffrey0117/meei/internal/security"
	"github.com/Jeffrey0117/meei/internal/telemetry"
	"github.com/joho/godotenv"
)

// Version is the SDK version reported by the CLI.
const Version = "0.1.0"

// =============================================================================
// RE-EXPORTS
// =============================================================================

type (
	Message     = cloud.Message
	Stream      = cloud.Stream
	Result      = cloud.Result
	Option      = cloud.Option
	Provider    = cloud.Provider
	Config      = config.Config
	Summary     = telemetry.Summary
	UsageRecord = telemetry.UsageRecord
	DailyUsage  = telemetry.DailyUsage

	APIError             = cloud.APIError
	AuthenticationError  = cloud.AuthenticationError
	RateLimitError       = cloud.RateLimitError
	TimeoutError         = cloud.TimeoutError
	UnknownProviderError = dispatch.UnknownProviderError
)

var (
	WithModel       = cloud.WithModel
	WithSystem      = cloud.WithSystem
	WithTemperature = cloud.WithTemperature
	WithMaxTokens   = cloud.WithMaxTokens

	NewUserMessage      = cloud.NewUserMessage
	NewAssistantMessage = cloud.NewAssistantMessage
	NewSystemMessage    = cloud.NewSystemMessage
)

var (
	ErrProvider        = cloud.ErrProvider
	ErrAuthentication  = cloud.ErrAuthentication
	ErrRateLimit       = cloud.ErrRateLimit
	ErrAPI             = cloud.ErrAPI
	ErrTimeout         = cloud.ErrTimeout
	ErrUnknownProvider = dispatch.ErrUnknownProvider
	ErrConfiguration   = config.ErrConfiguration
	ErrInvalidKey      = config.ErrInvalidKey
	ErrNotInitialized  = security.ErrNotInitialized
	ErrIntegrity       = security.ErrIntegrity
	ErrDatabase        = telemetry.ErrDatabaseError
)

// =============================================================================
// OPTIONS
// =============================================================================

type openOptions struct {
	home       string
	cfg        *config.Config
	logger     *slog.Logger
	httpClient *http.Client
	lookupEnv  func(string) (string, bool)
}

// OpenOption configures Open.
type OpenOption func(*openOptions)

// WithHome sets the data directory instead of MEEI_HOME or ~/.meei.
func WithHome(dir string) OpenOption {
	return func(o *openOptions) { o.home = dir }
}

// WithConfig uses cfg as is; meei.toml is not read.
func WithConfig(cfg *Config) OpenOption {
	return func(o *openOptions) { o.cfg = cfg }
}

// WithLogger replaces the logger built from log_level and log_format.
func WithLogger(logger *slog.Logger) OpenOption {
	return func(o *openOptions) { o.logger = logger }
}

// WithHTTPClient supplies the transport used for vendor calls.
func WithHTTPClient(c *http.Client) OpenOption {
	return func(o *openOptions) { o.httpClient = c }
}

// WithLookupEnv replaces os.LookupEnv for API key fallback.
func WithLookupEnv(fn func(string) (string, bool)) OpenOption {
	return func(o *openOptions) { o.lookupEnv = fn }
}

// =============================================================================
// CLIENT
// =============================================================================

// Client ties the credential store, settings, usage ledger and vendor
// adapters together. It is safe for concurrent use.
type Client struct {
	cfg        *config.Config
	logger     *slog.Logger
	creds      *security.CredentialStore
	settings   *config.Settings
	ledger     *telemetry.Ledger
	dispatcher *dispatch.Dispatcher
}

// Open loads configuration and opens the usage ledger.
func Open(opts ...OpenOption) (*Client, error) {
	var o openOptions
	for _, opt := range opts {
		opt(&o)
	}

	cfg := o.cfg
	if cfg == nil {
		var err error
		if cfg, err = config.Load(o.home); err != nil {
			return nil, err
		}
	} else if cfg.Home == "" {
		home, err := config.HomeDir()
		if err != nil {
			return nil, err
		}
		cfg.Home = home
	}

	logger := o.logger
	if logger == nil {
		logger = logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	}

	ledger, err := telemetry.Open(cfg.DBPath, telemetry.WithPromptLimit(cfg.PromptMaxChars))
	if err != nil {
		return nil, fmt.Errorf("failed to open usage ledger: %w", err)
	}

	creds := security.NewCredentialStore(cfg.Home)
	settings := config.NewSettings(creds, cfg.Home)

	deps := cloud.Deps{
		Settings:   settings,
		Usage:      ledger,
		Logger:     logger,
		HTTPClient: o.httpClient,
		Timeout:    cfg.Timeout(),
		LookupEnv:  o.lookupEnv,
	}

	logger.Debug("meei client opened", "home", cfg.Home, "db", cfg.DBPath, "default_provider", cfg.DefaultProvider)

	return &Client{
		cfg:        cfg,
		logger:     logger,
		creds:      creds,
		settings:   settings,
		ledger:     ledger,
		dispatcher: dispatch.New(deps, cfg.DefaultProvider),
	}, nil
}

// Close releases the usage ledger.
func (c *Client) Close() error {
	return c.ledger.Close()
}

// Config returns the runtime configuration in effect.
func (c *Client) Config() *Config { return c.cfg }

// Logger returns the client's logger.
func (c *Client) Logger() *slog.Logger { return c.logger }

// Credentials returns the credential store.
func (c *Client) Credentials() *security.CredentialStore { return c.creds }

// Settings returns the encrypted settings store.
func (c *Client) Settings() *config.Settings { return c.settings }

// Usage returns the usage ledger.
func (c *Client) Usage() *telemetry.Ledger { return c.ledger }

// Provider returns the adapter for name. Names are case-insensitive and
// "chatgpt" means openai.
func (c *Client) Provider(name string) (Provider, error) {
	return c.dispatcher.Provider(name)
}

// Providers lists every accepted provider name.
func (c *Client) Providers() []string {
	return c.dispatcher.Providers()
}

// DefaultProvider returns the provider used for empty names.
func (c *Client) DefaultProvider() string {
	return c.dispatcher.Default()
}

// Ask sends one prompt and returns the answer.
func (c *Client) Ask(ctx context.Context, provider, prompt string, opts ...Option) (string, error) {
	return c.dispatcher.Ask(ctx, provider, prompt, opts...)
}

// AskStream streams the answer to one prompt.
func (c *Client) AskStream(ctx context.Context, provider, prompt string, opts ...Option) (*Stream, error) {
	return c.dispatcher.AskStream(ctx, provider, prompt, opts...)
}

// AskAsync runs Ask in the background.
func (c *Client) AskAsync(ctx context.Context, provider, prompt string, opts ...Option) <-chan Result {
	return c.dispatcher.AskAsync(ctx, provider, prompt, opts...)
}

// Converse sends a multi-turn conversation.
func (c *Client) Converse(ctx context.Context, provider string, messages []Message, opts ...Option) (string, error) {
	return c.dispatcher.Converse(ctx, provider, messages, opts...)
}

// ConverseStream streams the answer to a conversation.
func (c *Client) ConverseStream(ctx context.Context, provider string, messages []Message, opts ...Option) (*Stream, error) {
	return c.dispatcher.ConverseStream(ctx, provider, messages, opts...)
}

// ConverseAsync runs Converse in the background.
func (c *Client) ConverseAsync(ctx context.Context, provider string, messages []Message, opts ...Option) <-chan Result {
	return c.dispatcher.ConverseAsync(ctx, provider, messages, opts...)
}

// =============================================================================
// DOTENV
// =============================================================================

// LoadDotEnv loads KEY=value files into the process environment. Variables
// that are already set win. With no paths it loads ./.env; missing files are
// skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}
