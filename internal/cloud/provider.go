// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Jeffrey0117/meei/internal/logging"
	"github.com/Jeffrey0117/meei/internal/security"
	"github.com/Jeffrey0117/meei/internal/telemetry"
	"github.com/google/uuid"
)

// =============================================================================
// PROVIDER CONTRACT
// =============================================================================

// Provider is the contract every vendor adapter satisfies.
type Provider interface {
	// Name returns the provider id, e.g. "deepseek".
	Name() string
	DefaultModel() string
	DefaultBaseURL() string
	Profile() Profile

	// ResolveModel maps an alias to a full model id. Empty means the
	// default model; unknown names pass through unchanged.
	ResolveModel(name string) string

	// BuildRequest returns the vendor request body for messages.
	BuildRequest(messages []Message, model string, p Params, stream bool) any

	// ParseResponse extracts content, token counts and model from a 2xx
	// body. Malformed bodies yield empty content and zero counts.
	ParseResponse(body []byte, requestedModel string) Completion

	// CalculateCost prices a call in USD using the model's per-1K pair, or
	// the provider default when the model is unknown.
	CalculateCost(inputTokens, outputTokens int, model string) float64

	// HasAPIKey reports whether a key can be resolved without a network call.
	HasAPIKey() bool

	Converse(ctx context.Context, messages []Message, opts ...Option) (string, error)
	ConverseStream(ctx context.Context, messages []Message, opts ...Option) (*Stream, error)
	ConverseAsync(ctx context.Context, messages []Message, opts ...Option) <-chan Result

	Chat(ctx context.Context, prompt string, opts ...Option) (string, error)
	ChatStream(ctx context.Context, prompt string, opts ...Option) (*Stream, error)
	ChatAsync(ctx context.Context, prompt string, opts ...Option) <-chan Result
}

// Profile is the static description of one vendor. Its maps are shared and
// must be treated as read-only.
type Profile struct {
	ID           string
	DisplayName  string
	DefaultModel string
	BaseURL      string
	// EnvVar is the fallback environment variable, empty when the vendor
	// has none.
	EnvVar       string
	DefaultPrice Price
	Aliases      map[string]string
	Prices       map[string]Price

	dialect dialect
}

// SettingsReader is the part of the settings store adapters read from.
// *config.Settings satisfies it.
type SettingsReader interface {
	GetString(key, def string) (string, error)
}

// UsageRecorder persists one usage row per call. *telemetry.Ledger
// satisfies it.
type UsageRecorder interface {
	Record(ctx context.Context, rec telemetry.UsageRecord) error
}

// Deps are the collaborators shared by every adapter. All fields are
// optional.
type Deps struct {
	Settings   SettingsReader
	Usage      UsageRecorder
	Logger     *slog.Logger
	HTTPClient *http.Client
	Timeout    time.Duration
	LookupEnv  func(string) (string, bool)
}

// =============================================================================
// ADAPTER
// =============================================================================

// Adapter implements Provider for a Profile. The vendor types embed it.
type Adapter struct {
	profile      Profile
	settings     SettingsReader
	usage        UsageRecorder
	logger       *slog.Logger
	client       *http.Client
	streamClient *http.Client
	timeout      time.Duration
	lookupEnv    func(string) (string, bool)
	now          func() time.Time
}

func newAdapter(profile Profile, deps Deps) *Adapter {
	if deps.Timeout <= 0 {
		deps.Timeout = DefaultTimeout
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	if deps.LookupEnv == nil {
		deps.LookupEnv = os.LookupEnv
	}
	client, streamClient := newHTTPClients(deps.HTTPClient, deps.Timeout)

	return &Adapter{
		profile:      profile,
		settings:     deps.Settings,
		usage:        deps.Usage,
		logger:       deps.Logger.With("provider", profile.ID),
		client:       client,
		streamClient: streamClient,
		timeout:      deps.Timeout,
		lookupEnv:    deps.LookupEnv,
		now:          time.Now,
	}
}

// Name returns the provider id.
func (a *Adapter) Name() string { return a.profile.ID }

// DefaultModel returns the model used when none is requested.
func (a *Adapter) DefaultModel() string { return a.profile.DefaultModel }

// DefaultBaseURL returns the vendor endpoint used without a base_url setting.
func (a *Adapter) DefaultBaseURL() string { return a.profile.BaseURL }

// Profile returns the static vendor description.
func (a *Adapter) Profile() Profile { return a.profile }

// ResolveModel maps aliases to full model ids.
func (a *Adapter) ResolveModel(name string) string {
	if name == "" {
		return a.profile.DefaultModel
	}
	if full, ok := a.profile.Aliases[name]; ok {
		return full
	}
	return name
}

// BuildRequest returns the vendor request body.
func (a *Adapter) BuildRequest(messages []Message, model string, p Params, stream bool) any {
	return a.profile.dialect.buildRequest(messages, model, p, stream)
}

// ParseResponse parses a successful response body.
func (a *Adapter) ParseResponse(body []byte, requestedModel string) Completion {
	comp := a.profile.dialect.parseResponse(body)
	if comp.Model == "" {
		comp.Model = requestedModel
	}
	return comp
}

// CalculateCost prices a call; prices are per 1000 tokens.
func (a *Adapter) CalculateCost(inputTokens, outputTokens int, model string) float64 {
	price, ok := a.profile.Prices[a.ResolveModel(model)]
	if !ok {
		price = a.profile.DefaultPrice
	}
	return (float64(inputTokens)*price.Input + float64(outputTokens)*price.Output) / 1000
}

// HasAPIKey reports whether a key is available from settings or the
// environment.
func (a *Adapter) HasAPIKey() bool {
	_, err := a.resolveAPIKey()
	return err == nil
}

// =============================================================================
// CALLS
// =============================================================================

// Chat sends a single user prompt.
func (a *Adapter) Chat(ctx context.Context, prompt string, opts ...Option) (string, error) {
	return a.Converse(ctx, []Message{NewUserMessage(prompt)}, opts...)
}

// ChatStream streams the answer to a single user prompt.
func (a *Adapter) ChatStream(ctx context.Context, prompt string, opts ...Option) (*Stream, error) {
	return a.ConverseStream(ctx, []Message{NewUserMessage(prompt)}, opts...)
}

// ChatAsync runs Chat on a goroutine.
func (a *Adapter) ChatAsync(ctx context.Context, prompt string, opts ...Option) <-chan Result {
	return a.ConverseAsync(ctx, []Message{NewUserMessage(prompt)}, opts...)
}

// ConverseAsync runs Converse on a goroutine. The channel receives exactly
// one Result and is then closed.
func (a *Adapter) ConverseAsync(ctx context.Context, messages []Message, opts ...Option) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		text, err := a.Converse(ctx, messages, opts...)
		out <- Result{Text: text, Err: err}
	}()
	return out
}

// Converse sends a conversation and returns the full answer. Exactly one
// usage record is written once the request has been sent.
func (a *Adapter) Converse(ctx context.Context, messages []Message, opts ...Option) (string, error) {
	c, err := a.prepare(messages, opts, false)
	if err != nil {
		return "", err
	}

	start := a.now()
	comp, err := a.send(ctx, c)
	a.record(ctx, c, comp, a.now().Sub(start), err)
	if err != nil {
		return "", err
	}
	return comp.Content, nil
}

// ConverseStream sends a conversation and returns a lazy fragment iterator.
// Usage is recorded when the stream ends or is closed.
func (a *Adapter) ConverseStream(ctx context.Context, messages []Message, opts ...Option) (*Stream, error) {
	c, err := a.prepare(messages, opts, true)
	if err != nil {
		return nil, err
	}

	start := a.now()
	sctx, cancel := context.WithCancel(ctx)
	wd := newWatchdog(a.timeout, cancel)

	fail := func(err error) (*Stream, error) {
		wd.stop()
		cancel()
		a.record(ctx, c, Completion{}, a.now().Sub(start), err)
		return nil, err
	}

	req, err := a.newRequest(sctx, c)
	if err != nil {
		return fail(err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := a.streamClient.Do(req)
	if err != nil {
		if wd.expired() {
			return fail(&TimeoutError{Provider: a.profile.ID, Err: err})
		}
		return fail(classifyTransportError(a.profile.ID, err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := readResponse(resp)
		resp.Body.Close()
		return fail(handleErrorResponse(a.profile.ID, resp.StatusCode, body))
	}
	wd.reset()

	return &Stream{
		ctx:      ctx,
		provider: a.profile.ID,
		reader:   NewSSEReader(resp.Body),
		body:     resp.Body,
		cancel:   cancel,
		watchdog: wd,
		dialect:  a.profile.dialect,
		finish: func(usage Completion, err error) {
			a.record(ctx, c, usage, a.now().Sub(start), err)
		},
	}, nil
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

// call is one resolved request.
type call struct {
	requestID string
	apiKey    string
	baseURL   string
	model     string
	stream    bool
	body      []byte
	prompt    string
}

// prepare resolves credentials, endpoint and model. It fails before any
// network activity when no key is available.
func (a *Adapter) prepare(messages []Message, opts []Option, stream bool) (*call, error) {
	p := NewParams(opts...)

	apiKey, err := a.resolveAPIKey()
	if err != nil {
		return nil, err
	}
	baseURL, err := a.resolveBaseURL()
	if err != nil {
		return nil, err
	}

	model := a.ResolveModel(p.Model)
	messages = withSystem(messages, p.System)

	body, err := json.Marshal(a.profile.dialect.buildRequest(messages, model, p, stream))
	if err != nil {
		return nil, fmt.Errorf("[%s] failed to marshal request: %w", a.profile.ID, err)
	}

	return &call{
		requestID: uuid.NewString(),
		apiKey:    apiKey,
		baseURL:   baseURL,
		model:     model,
		stream:    stream,
		body:      body,
		prompt:    lastContent(messages),
	}, nil
}

// resolveAPIKey tries the settings store, then the environment. A settings
// store that was never initialized counts as empty.
func (a *Adapter) resolveAPIKey() (string, error) {
	settingsKey := a.profile.ID + ".api_key"

	if a.settings != nil {
		key, err := a.settings.GetString(settingsKey, "")
		if err != nil && !errors.Is(err, security.ErrNotInitialized) {
			return "", fmt.Errorf("[%s] failed to read %s: %w", a.profile.ID, settingsKey, err)
		}
		if key != "" {
			return key, nil
		}
	}

	if a.profile.EnvVar != "" {
		if key, ok := a.lookupEnv(a.profile.EnvVar); ok && strings.TrimSpace(key) != "" {
			return strings.TrimSpace(key), nil
		}
		return "", &AuthenticationError{
			Provider: a.profile.ID,
			Message: fmt.Sprintf("no API key: set %s or run 'meei config set %s <key>'",
				a.profile.EnvVar, settingsKey),
		}
	}
	return "", &AuthenticationError{
		Provider: a.profile.ID,
		Message:  fmt.Sprintf("no API key: run 'meei config set %s <key>'", settingsKey),
	}
}

func (a *Adapter) resolveBaseURL() (string, error) {
	base := a.profile.BaseURL
	if a.settings != nil {
		override, err := a.settings.GetString(a.profile.ID+".base_url", "")
		if err != nil && !errors.Is(err, security.ErrNotInitialized) {
			return "", fmt.Errorf("[%s] failed to read base_url: %w", a.profile.ID, err)
		}
		if override != "" {
			base = override
		}
	}
	return strings.TrimRight(base, "/"), nil
}

func (a *Adapter) newRequest(ctx context.Context, c *call) (*http.Request, error) {
	endpoint := a.profile.dialect.endpoint(c.baseURL, c.model, c.apiKey, c.stream)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(c.body))
	if err != nil {
		return nil, fmt.Errorf("[%s] failed to create request: %w", a.profile.ID, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	a.profile.dialect.authorize(req, c.apiKey)
	return req, nil
}

func (a *Adapter) send(ctx context.Context, c *call) (Completion, error) {
	req, err := a.newRequest(ctx, c)
	if err != nil {
		return Completion{}, err
	}

	a.logger.Debug("sending request", "model", c.model, "request_id", c.requestID, "key_fp", keyFingerprint(c.apiKey))

	resp, err := a.client.Do(req)
	if err != nil {
		return Completion{}, classifyTransportError(a.profile.ID, err)
	}
	defer resp.Body.Close()

	body, err := readResponse(resp)
	if err != nil {
		return Completion{}, classifyTransportError(a.profile.ID, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Completion{}, handleErrorResponse(a.profile.ID, resp.StatusCode, body)
	}
	return a.ParseResponse(body, c.model), nil
}

// record writes the usage row. Failures are logged and never returned.
func (a *Adapter) record(ctx context.Context, c *call, comp Completion, latency time.Duration, callErr error) {
	model := comp.Model
	if model == "" {
		model = c.model
	}

	// Price by the reported model when it is in the table, else by the
	// requested one
	priceModel := c.model
	if _, ok := a.profile.Prices[model]; ok {
		priceModel = model
	}

	rec := telemetry.UsageRecord{
		RequestID:    c.requestID,
		Provider:     a.profile.ID,
		Model:        model,
		Type:         telemetry.TypeChat,
		InputTokens:  comp.InputTokens,
		OutputTokens: comp.OutputTokens,
		Cost:         a.CalculateCost(comp.InputTokens, comp.OutputTokens, priceModel),
		Success:      callErr == nil,
		LatencyMs:    latency.Milliseconds(),
		Prompt:       c.prompt,
	}
	if callErr != nil {
		rec.Error = callErr.Error()
		a.logger.Info("request failed", "model", model, "request_id", c.requestID, "latency_ms", rec.LatencyMs, "err", callErr)
	} else {
		a.logger.Debug("request completed", "model", model, "request_id", c.requestID, "latency_ms", rec.LatencyMs,
			"input_tokens", rec.InputTokens, "output_tokens", rec.OutputTokens, "cost", rec.Cost)
	}

	if a.usage == nil {
		return
	}
	// The row is written even if the caller's context is already done
	if err := a.usage.Record(context.WithoutCancel(ctx), rec); err != nil {
		a.logger.Warn("failed to record usage", "request_id", c.requestID, "err", err)
	}
}
