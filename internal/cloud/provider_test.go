// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Jeffrey0117/meei/internal/security"
	"github.com/Jeffrey0117/meei/internal/telemetry"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// FAKES
// =============================================================================

type fakeSettings struct {
	values map[string]string
	err    error
}

func (f *fakeSettings) GetString(key, def string) (string, error) {
	if f.err != nil {
		return def, f.err
	}
	if v, ok := f.values[key]; ok {
		return v, nil
	}
	return def, nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []telemetry.UsageRecord
	err     error
}

func (f *fakeRecorder) Record(_ context.Context, rec telemetry.UsageRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return f.err
}

func (f *fakeRecorder) all() []telemetry.UsageRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]telemetry.UsageRecord(nil), f.records...)
}

func noEnv(string) (string, bool) { return "", false }

// testDeps points provider id at server with the given key.
func testDeps(id, baseURL, apiKey string) (Deps, *fakeRecorder) {
	values := map[string]string{id + ".base_url": baseURL}
	if apiKey != "" {
		values[id+".api_key"] = apiKey
	}
	rec := &fakeRecorder{}
	return Deps{
		Settings:  &fakeSettings{values: values},
		Usage:     rec,
		LookupEnv: noEnv,
		Timeout:   5 * time.Second,
	}, rec
}

const deepSeekReply = `{
	"id": "chatcmpl-1",
	"model": "deepseek-chat",
	"choices": [{
		"index": 0,
		"message": {"role": "assistant", "content": "Hello!"},
		"finish_reason": "stop"
	}],
	"usage": {"prompt_tokens": 5, "completion_tokens": 2, "total_tokens": 7}
}`

// =============================================================================
// STATIC TABLE TESTS
// =============================================================================

func TestResolveModel(t *testing.T) {
	tests := []struct {
		provider Provider
		in       string
		want     string
	}{
		{NewDeepSeek(Deps{}), "r1", "deepseek-reasoner"},
		{NewDeepSeek(Deps{}), "", "deepseek-chat"},
		{NewDeepSeek(Deps{}), "my-custom-model", "my-custom-model"},
		{NewOpenAI(Deps{}), "4o", "gpt-4o"},
		{NewOpenAI(Deps{}), "turbo", "gpt-3.5-turbo"},
		{NewGemini(Deps{}), "pro", "gemini-1.5-pro"},
		{NewQwen(Deps{}), "coder", "qwen-coder-turbo"},
		{NewGrok(Deps{}), "mini", "grok-2-mini"},
		{NewGroq(Deps{}), "llama8b", "llama-3.1-8b-instant"},
	}
	for _, tt := range tests {
		t.Run(tt.provider.Name()+"/"+tt.in, func(t *testing.T) {
			require.Equal(t, tt.want, tt.provider.ResolveModel(tt.in))
		})
	}
}

func TestCalculateCost(t *testing.T) {
	ds := NewDeepSeek(Deps{})
	require.InDelta(t, (5*0.00014+2*0.00028)/1000, ds.CalculateCost(5, 2, "deepseek-chat"), 1e-15)
	require.InDelta(t, (1000*0.00055+1000*0.00219)/1000, ds.CalculateCost(1000, 1000, "r1"), 1e-12)

	// Unknown models fall back to the provider default price
	require.InDelta(t, ds.CalculateCost(100, 100, "deepseek-chat"), ds.CalculateCost(100, 100, "unknown"), 1e-15)

	require.Zero(t, NewGemini(Deps{}).CalculateCost(1000, 1000, "flash"))
	require.Zero(t, ds.CalculateCost(0, 0, "deepseek-chat"))
}

func TestProfilesAreComplete(t *testing.T) {
	for _, id := range IDs() {
		p, ok := New(id, Deps{})
		require.True(t, ok, id)
		require.Equal(t, id, p.Name())
		require.NotEmpty(t, p.DefaultBaseURL())
		require.Contains(t, p.Profile().Prices, p.DefaultModel(), "default model of %s must be priced", id)
		require.Equal(t, EnvVars[id], p.Profile().EnvVar)
		for alias, full := range p.Profile().Aliases {
			require.Contains(t, p.Profile().Prices, full, "%s alias %q", id, alias)
		}
	}
}

func TestRegistry(t *testing.T) {
	require.Equal(t, []string{"deepseek", "gemini", "grok", "groq", "openai", "qwen"}, IDs())

	_, ok := New("nope", Deps{})
	require.False(t, ok)

	_, hasGrok := EnvVars[IDGrok]
	require.False(t, hasGrok)
	require.Len(t, EnvVars, 5)
}

// =============================================================================
// REQUEST / RESPONSE SHAPE TESTS
// =============================================================================

func TestBuildRequest_OpenAICompatible(t *testing.T) {
	p := NewOpenAI(Deps{})
	msgs := []Message{NewSystemMessage("be brief"), NewUserMessage("hi")}

	raw, err := json.Marshal(p.BuildRequest(msgs, "gpt-4o", NewParams(), false))
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	require.Equal(t, "gpt-4o", body["model"])
	require.Len(t, body["messages"], 2)
	require.NotContains(t, body, "temperature")
	require.NotContains(t, body, "max_tokens")
	require.NotContains(t, body, "stream")

	raw, err = json.Marshal(p.BuildRequest(msgs, "gpt-4o", NewParams(WithTemperature(0), WithMaxTokens(64)), true))
	require.NoError(t, err)
	body = nil
	require.NoError(t, json.Unmarshal(raw, &body))
	require.Equal(t, 0.0, body["temperature"])
	require.Equal(t, 64.0, body["max_tokens"])
	require.Equal(t, true, body["stream"])
}

func TestParseResponse_Graceful(t *testing.T) {
	p := NewDeepSeek(Deps{})

	comp := p.ParseResponse([]byte(deepSeekReply), "deepseek-chat")
	require.Equal(t, Completion{Content: "Hello!", InputTokens: 5, OutputTokens: 2, Model: "deepseek-chat"}, comp)

	// No usage block and no model
	comp = p.ParseResponse([]byte(`{"choices":[{"message":{"content":"ok"}}]}`), "deepseek-coder")
	require.Equal(t, Completion{Content: "ok", Model: "deepseek-coder"}, comp)

	// Trailing comma is repaired
	comp = p.ParseResponse([]byte(`{"choices":[{"message":{"content":"fixed"}}],}`), "deepseek-chat")
	require.Equal(t, "fixed", comp.Content)

	for _, body := range []string{"", "{}", `{"choices":[]}`, "<html>oops</html>"} {
		comp = p.ParseResponse([]byte(body), "deepseek-chat")
		require.Empty(t, comp.Content, body)
		require.Zero(t, comp.InputTokens, body)
		require.Zero(t, comp.OutputTokens, body)
	}
}

// =============================================================================
// CALL TESTS
// =============================================================================

func TestChat_DeepSeek(t *testing.T) {
	var got struct {
		auth  string
		path  string
		agent string
		body  ChatRequest
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.auth = r.Header.Get("Authorization")
		got.path = r.URL.Path
		got.agent = r.Header.Get("User-Agent")
		_ = json.NewDecoder(r.Body).Decode(&got.body)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, deepSeekReply)
	}))
	defer server.Close()

	deps, rec := testDeps(IDDeepSeek, server.URL, "sk-test")
	answer, err := NewDeepSeek(deps).Chat(context.Background(), "Hi", WithSystem("be nice"))
	require.NoError(t, err)
	require.Equal(t, "Hello!", answer)

	require.Equal(t, "Bearer sk-test", got.auth)
	require.Equal(t, "/chat/completions", got.path)
	require.Equal(t, UserAgent, got.agent)
	require.Equal(t, "deepseek-chat", got.body.Model)
	require.Equal(t, []Message{NewSystemMessage("be nice"), NewUserMessage("Hi")}, got.body.Messages)

	records := rec.all()
	require.Len(t, records, 1)
	r := records[0]
	require.Equal(t, "deepseek", r.Provider)
	require.Equal(t, "deepseek-chat", r.Model)
	require.Equal(t, telemetry.TypeChat, r.Type)
	require.Equal(t, 5, r.InputTokens)
	require.Equal(t, 2, r.OutputTokens)
	require.InDelta(t, (5*0.00014+2*0.00028)/1000, r.Cost, 1e-15)
	require.True(t, r.Success)
	require.Equal(t, "Hi", r.Prompt)
	require.NotEmpty(t, r.RequestID)
	require.Empty(t, r.Error)
}

func TestChat_KeepsLeadingSystemMessage(t *testing.T) {
	var body ChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		io.WriteString(w, deepSeekReply)
	}))
	defer server.Close()

	deps, _ := testDeps(IDDeepSeek, server.URL, "sk-test")
	msgs := []Message{NewSystemMessage("original"), NewUserMessage("q")}
	_, err := NewDeepSeek(deps).Converse(context.Background(), msgs, WithSystem("ignored"))
	require.NoError(t, err)
	require.Equal(t, msgs, body.Messages)
}

func TestChat_MissingKeyMakesNoRequest(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	for _, id := range IDs() {
		t.Run(id, func(t *testing.T) {
			deps, rec := testDeps(id, server.URL, "")
			p, _ := New(id, deps)
			require.False(t, p.HasAPIKey())

			_, err := p.Chat(context.Background(), "hi")
			require.ErrorIs(t, err, ErrAuthentication)
			require.ErrorIs(t, err, ErrProvider)
			var authErr *AuthenticationError
			require.ErrorAs(t, err, &authErr)
			require.Equal(t, id, authErr.Provider)
			require.Empty(t, rec.all())
		})
	}
	require.Zero(t, hits.Load())
}

func TestChat_KeyResolutionOrder(t *testing.T) {
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		io.WriteString(w, deepSeekReply)
	}))
	defer server.Close()

	env := func(key string) (string, bool) {
		if key == "OPENAI_API_KEY" {
			return "env-key", true
		}
		return "", false
	}

	// Settings win over the environment
	deps, _ := testDeps(IDOpenAI, server.URL, "settings-key")
	deps.LookupEnv = env
	_, err := NewOpenAI(deps).Chat(context.Background(), "hi")
	require.NoError(t, err)
	require.Equal(t, "Bearer settings-key", auth)

	// Environment is the fallback
	deps, _ = testDeps(IDOpenAI, server.URL, "")
	deps.LookupEnv = env
	_, err = NewOpenAI(deps).Chat(context.Background(), "hi")
	require.NoError(t, err)
	require.Equal(t, "Bearer env-key", auth)
}

func TestChat_UninitializedSettingsCountAsEmpty(t *testing.T) {
	deps := Deps{
		Settings: &fakeSettings{err: fmt.Errorf("wrapped: %w", security.ErrNotInitialized)},
		LookupEnv: func(key string) (string, bool) {
			return "from-env", key == "DEEPSEEK_API_KEY"
		},
	}
	require.True(t, NewDeepSeek(deps).HasAPIKey())

	// Grok has no environment fallback
	require.False(t, NewGrok(deps).HasAPIKey())
}

func TestChat_SettingsReadErrorIsReturned(t *testing.T) {
	deps := Deps{Settings: &fakeSettings{err: errors.New("disk on fire")}, LookupEnv: noEnv}
	_, err := NewQwen(deps).Chat(context.Background(), "hi")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrAuthentication)
}

func TestChat_HTTPErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantIs  error
		wantMsg string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, ErrAuthentication, ""},
		{"rate limited", http.StatusTooManyRequests, ``, ErrRateLimit, ""},
		{"envelope", http.StatusInternalServerError, `{"error":{"message":"model overloaded","code":"overloaded"}}`, ErrAPI, "model overloaded"},
		{"raw body", http.StatusBadGateway, "  upstream down \n", ErrAPI, "upstream down"},
		{"redirect", http.StatusNotModified, ``, ErrAPI, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			deps, rec := testDeps(IDGroq, server.URL, "gsk-test")
			_, err := NewGroq(deps).Chat(context.Background(), "hi")
			require.ErrorIs(t, err, tt.wantIs)
			require.ErrorIs(t, err, ErrProvider)

			if tt.wantIs == ErrAPI {
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				require.Equal(t, tt.status, apiErr.StatusCode)
				require.Equal(t, tt.wantMsg, apiErr.Message)
			}

			records := rec.all()
			require.Len(t, records, 1)
			require.False(t, records[0].Success)
			require.Equal(t, err.Error(), records[0].Error)
			require.Zero(t, records[0].Cost)
		})
	}
}

// stallingServer never answers. The handler drains the body so the server
// notices the client going away, and release frees it before Close.
func stallingServer(t *testing.T) *httptest.Server {
	t.Helper()
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(func() {
		close(release)
		server.Close()
	})
	return server
}

func TestChat_Timeout(t *testing.T) {
	server := stallingServer(t)

	deps, rec := testDeps(IDOpenAI, server.URL, "sk-test")
	deps.Timeout = 50 * time.Millisecond
	_, err := NewOpenAI(deps).Chat(context.Background(), "hi")
	require.ErrorIs(t, err, ErrTimeout)

	records := rec.all()
	require.Len(t, records, 1)
	require.False(t, records[0].Success)
}

func TestChat_CallerCancellation(t *testing.T) {
	server := stallingServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	deps, _ := testDeps(IDOpenAI, server.URL, "sk-test")
	_, err := NewOpenAI(deps).Chat(ctx, "hi")
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, ErrTimeout)
}

func TestChat_RecordFailureIsSwallowed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, deepSeekReply)
	}))
	defer server.Close()

	deps, rec := testDeps(IDDeepSeek, server.URL, "sk-test")
	rec.err = errors.New("database is locked")
	answer, err := NewDeepSeek(deps).Chat(context.Background(), "hi")
	require.NoError(t, err)
	require.Equal(t, "Hello!", answer)
	require.Len(t, rec.all(), 1)
}

func TestChat_PricesByRequestedModelWhenReportedIsUnknown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"model":"gpt-4o-2024-08-06","choices":[{"message":{"content":"x"}}],
			"usage":{"prompt_tokens":1000,"completion_tokens":1000}}`)
	}))
	defer server.Close()

	deps, rec := testDeps(IDOpenAI, server.URL, "sk-test")
	_, err := NewOpenAI(deps).Chat(context.Background(), "hi", WithModel("4o"))
	require.NoError(t, err)

	r := rec.all()[0]
	require.Equal(t, "gpt-4o-2024-08-06", r.Model)
	require.InDelta(t, 0.0025+0.01, r.Cost, 1e-12)
}

func TestChatAsync(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, deepSeekReply)
	}))
	defer server.Close()

	deps, _ := testDeps(IDDeepSeek, server.URL, "sk-test")
	p := NewDeepSeek(deps)

	results := make([]<-chan Result, 5)
	for i := range results {
		results[i] = p.ChatAsync(context.Background(), fmt.Sprintf("q%d", i))
	}
	for _, ch := range results {
		res := <-ch
		require.NoError(t, res.Err)
		require.Equal(t, "Hello!", res.Text)
		_, open := <-ch
		require.False(t, open)
	}

	// Errors are delivered, not panicked
	deps.Settings = &fakeSettings{}
	res := <-NewDeepSeek(deps).ChatAsync(context.Background(), "hi")
	require.ErrorIs(t, res.Err, ErrAuthentication)
}

func TestDefaultBaseURLWithoutOverride(t *testing.T) {
	deps := Deps{Settings: &fakeSettings{values: map[string]string{}}, LookupEnv: noEnv}
	a := NewQwen(deps).Adapter
	base, err := a.resolveBaseURL()
	require.NoError(t, err)
	require.Equal(t, qwenProfile.BaseURL, base)

	deps.Settings = &fakeSettings{values: map[string]string{"qwen.base_url": "http://localhost:9999/v1/"}}
	base, err = NewQwen(deps).resolveBaseURL()
	require.NoError(t, err)
	require.Equal(t, "http://localhost:9999/v1", base)
}
