// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Jeffrey0117/meei"
	"github.com/Jeffrey0117/meei/internal/logging"
	"github.com/stretchr/testify/require"
)

const testPassphrase = "correct horse battery staple"

const chatReply = `{"model":"deepseek-chat","choices":[{"message":{"role":"assistant","content":"Hello!"}}],
	"usage":{"prompt_tokens":5,"completion_tokens":2}}`

// testEnv returns an Env whose client lives in home and never reads
// process environment variables for API keys.
func testEnv(home, stdin string) (*Env, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	env := &Env{
		Stdin:  strings.NewReader(stdin),
		Stdout: &stdout,
		Stderr: &stderr,
		Open: func(Args) (*meei.Client, error) {
			return meei.Open(
				meei.WithHome(home),
				meei.WithLogger(logging.Discard()),
				meei.WithLookupEnv(func(string) (string, bool) { return "", false }),
			)
		},
	}
	return env, &stdout, &stderr
}

func clearMeeiEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"MEEI_HOME", "MEEI_DEFAULT_PROVIDER", "MEEI_TIMEOUT", "MEEI_LOG_LEVEL", "MEEI_LOG_FORMAT", "MEEI_DB_PATH"} {
		t.Setenv(k, "")
	}
}

// run executes argv in home and returns the exit code and both streams.
func run(home, stdin string, argv ...string) (int, string, string) {
	env, stdout, stderr := testEnv(home, stdin)
	code := Run(env, argv)
	return code, stdout.String(), stderr.String()
}

// initHome creates a key store in a fresh directory.
func initHome(t *testing.T) string {
	t.Helper()
	clearMeeiEnv(t)
	home := t.TempDir()
	code, _, stderr := run(home, testPassphrase+"\n"+testPassphrase+"\n", "init")
	require.Equal(t, ExitSuccess, code, stderr)
	return home
}

func decodeData(t *testing.T, out string, data any) {
	t.Helper()
	var resp struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.True(t, resp.Success)
	require.NoError(t, json.Unmarshal(resp.Data, data))
}

func TestRun_Init(t *testing.T) {
	home := initHome(t)

	t.Run("second init needs force", func(t *testing.T) {
		code, _, stderr := run(home, testPassphrase+"\n"+testPassphrase+"\n", "init")
		require.Equal(t, ExitConfigError, code)
		require.Contains(t, stderr, "--force")
	})

	t.Run("force replaces the key", func(t *testing.T) {
		code, stdout, _ := run(home, "another passphrase\nanother passphrase\n", "init", "--force")
		require.Equal(t, ExitSuccess, code)
		require.Contains(t, stdout, home)
	})
}

func TestRun_InitRejectsBadPassphrase(t *testing.T) {
	clearMeeiEnv(t)

	code, _, stderr := run(t.TempDir(), testPassphrase+"\nsomething else\n", "init")
	require.Equal(t, ExitUsageError, code)
	require.Contains(t, stderr, "do not match")

	code, _, _ = run(t.TempDir(), "short\nshort\n", "init")
	require.Equal(t, ExitUsageError, code)

	code, _, _ = run(t.TempDir(), "", "init")
	require.Equal(t, ExitUsageError, code)
}

func TestRun_Config(t *testing.T) {
	home := initHome(t)

	code, _, stderr := run(home, "", "config", "set", "deepseek.api_key", "sk-abcdef123456")
	require.Equal(t, ExitSuccess, code, stderr)
	code, _, _ = run(home, "", "config", "set", "deepseek.model", "deepseek-reasoner")
	require.Equal(t, ExitSuccess, code)

	code, stdout, _ := run(home, "", "config", "get", "deepseek.model")
	require.Equal(t, ExitSuccess, code)
	require.Equal(t, "deepseek-reasoner\n", stdout)

	code, stdout, _ = run(home, "", "--json", "config", "show", "deepseek")
	require.Equal(t, ExitSuccess, code)
	var shown map[string]string
	decodeData(t, stdout, &shown)
	require.Equal(t, "sk-a*******3456", shown["api_key"])
	require.Equal(t, "deepseek-reasoner", shown["model"])

	code, stdout, _ = run(home, "", "config", "list")
	require.Equal(t, ExitSuccess, code)
	require.Equal(t, "deepseek\n", stdout)

	code, _, _ = run(home, "", "config", "delete", "deepseek.model")
	require.Equal(t, ExitSuccess, code)
	code, _, _ = run(home, "", "config", "get", "deepseek.model")
	require.Equal(t, ExitNotFoundError, code)
	code, _, _ = run(home, "", "config", "delete", "deepseek.model")
	require.Equal(t, ExitNotFoundError, code)
}

func TestRun_ConfigErrors(t *testing.T) {
	clearMeeiEnv(t)
	home := t.TempDir()

	code, _, stderr := run(home, "", "config", "set", "deepseek.api_key", "sk-x")
	require.Equal(t, ExitConfigError, code)
	require.Contains(t, stderr, "meei init")

	code, _, _ = run(home, "", "config")
	require.Equal(t, ExitUsageError, code)

	code, _, _ = run(home, "", "config", "rename", "a", "b")
	require.Equal(t, ExitUsageError, code)

	home = initHome(t)
	code, _, _ = run(home, "", "config", "set", "deepseek..api_key", "x")
	require.Equal(t, ExitConfigError, code)
}

// chatServer answers every request with chatReply and keeps the decoded
// request bodies.
type chatServer struct {
	*httptest.Server
	mu     sync.Mutex
	bodies []map[string]any
}

func newChatServer(t *testing.T, stream bool) *chatServer {
	t.Helper()
	s := &chatServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		s.mu.Lock()
		s.bodies = append(s.bodies, body)
		s.mu.Unlock()

		if !stream {
			io.WriteString(w, chatReply)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, `data: {"choices":[{"delta":{"content":"Hel"}}]}`+"\n\n")
		io.WriteString(w, `data: {"choices":[{"delta":{"content":"lo!"}}]}`+"\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *chatServer) requests() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.bodies...)
}

func configureDeepSeek(t *testing.T, home, baseURL string) {
	t.Helper()
	code, _, stderr := run(home, "", "config", "set", "deepseek.api_key", "sk-test")
	require.Equal(t, ExitSuccess, code, stderr)
	code, _, stderr = run(home, "", "config", "set", "deepseek.base_url", baseURL)
	require.Equal(t, ExitSuccess, code, stderr)
}

func TestRun_AskAndUsage(t *testing.T) {
	server := newChatServer(t, false)
	home := initHome(t)
	configureDeepSeek(t, home, server.URL)

	code, stdout, stderr := run(home, "", "ask", "-s", "be brief", "Hi", "there")
	require.Equal(t, ExitSuccess, code, stderr)
	require.Equal(t, "Hello!\n", stdout)

	reqs := server.requests()
	require.Len(t, reqs, 1)
	messages := reqs[0]["messages"].([]any)
	require.Len(t, messages, 2)
	require.Equal(t, "be brief", messages[0].(map[string]any)["content"])
	require.Equal(t, "Hi there", messages[1].(map[string]any)["content"])

	code, stdout, _ = run(home, "", "--json", "usage", "--recent", "5", "--daily")
	require.Equal(t, ExitSuccess, code)
	var usage struct {
		Summary struct {
			TotalRequests int                        `json:"total_requests"`
			Providers     map[string]json.RawMessage `json:"providers"`
		} `json:"summary"`
		Recent []meei.UsageRecord `json:"recent"`
		Daily  []meei.DailyUsage  `json:"daily"`
	}
	decodeData(t, stdout, &usage)
	require.Equal(t, 1, usage.Summary.TotalRequests)
	require.Contains(t, usage.Summary.Providers, "deepseek")
	require.Len(t, usage.Recent, 1)
	require.Equal(t, "Hi there", usage.Recent[0].Prompt)
	require.Equal(t, 7, usage.Recent[0].TotalTokens)
	require.Len(t, usage.Daily, 1)

	code, stdout, _ = run(home, "", "usage", "--recent", "1")
	require.Equal(t, ExitSuccess, code)
	require.Contains(t, stdout, "deepseek")
	require.Contains(t, stdout, "Hi there")
}

func TestRun_AskReadsPipedPrompt(t *testing.T) {
	server := newChatServer(t, true)
	home := initHome(t)
	configureDeepSeek(t, home, server.URL)

	code, stdout, stderr := run(home, "diff --git a/x b/x\n", "ask", "--stream")
	require.Equal(t, ExitSuccess, code, stderr)
	require.Equal(t, "Hello!\n", stdout)

	reqs := server.requests()
	require.Len(t, reqs, 1)
	require.Equal(t, true, reqs[0]["stream"])
	messages := reqs[0]["messages"].([]any)
	require.Equal(t, "diff --git a/x b/x", messages[len(messages)-1].(map[string]any)["content"])
}

func TestRun_AskJSON(t *testing.T) {
	server := newChatServer(t, false)
	home := initHome(t)
	configureDeepSeek(t, home, server.URL)

	code, stdout, _ := run(home, "", "--json", "ask", "-m", "r1", "Hi")
	require.Equal(t, ExitSuccess, code)
	var data AskData
	decodeData(t, stdout, &data)
	require.Equal(t, "deepseek", data.Provider)
	require.Equal(t, "deepseek-reasoner", data.Model)
	require.Equal(t, "Hello!", data.Response)
}

func TestRun_AskErrors(t *testing.T) {
	clearMeeiEnv(t)
	home := t.TempDir()

	code, _, stderr := run(home, "", "ask", "-p", "openai", "Hi")
	require.Equal(t, ExitAuthError, code)
	require.Contains(t, stderr, "OPENAI_API_KEY")

	code, _, _ = run(home, "", "ask", "-p", "mistral", "Hi")
	require.Equal(t, ExitUsageError, code)

	code, _, _ = run(home, "", "ask")
	require.Equal(t, ExitUsageError, code)

	code, stdout, _ := run(home, "", "--json", "ask", "-p", "mistral", "Hi")
	require.Equal(t, ExitUsageError, code)
	require.Empty(t, stdout)
}

func TestRun_Providers(t *testing.T) {
	clearMeeiEnv(t)
	home := t.TempDir()

	code, stdout, _ := run(home, "", "--json", "providers")
	require.Equal(t, ExitSuccess, code)

	var infos []ProviderInfo
	decodeData(t, stdout, &infos)
	require.Len(t, infos, 6)

	byID := map[string]ProviderInfo{}
	for _, info := range infos {
		byID[info.ID] = info
		require.False(t, info.HasKey, info.ID)
	}
	require.True(t, byID["deepseek"].Default)
	require.Equal(t, "DEEPSEEK_API_KEY", byID["deepseek"].EnvVar)
	require.Empty(t, byID["grok"].EnvVar)

	code, stdout, _ = run(home, "", "providers")
	require.Equal(t, ExitSuccess, code)
	require.Contains(t, stdout, "settings only")
}

func TestRun_Chat(t *testing.T) {
	server := newChatServer(t, true)
	home := initHome(t)
	configureDeepSeek(t, home, server.URL)

	input := strings.Join([]string{"first", "second", "/clear", "third", "/model r1", "/nope", "/exit", "never sent"}, "\n") + "\n"
	code, stdout, stderr := run(home, input, "chat")
	require.Equal(t, ExitSuccess, code, stderr)
	require.Equal(t, 3, strings.Count(stdout, "Hello!"))
	require.Contains(t, stderr, "unknown command /nope")

	reqs := server.requests()
	require.Len(t, reqs, 3)
	counts := make([]int, len(reqs))
	for i, r := range reqs {
		counts[i] = len(r["messages"].([]any))
	}
	require.Equal(t, []int{1, 3, 1}, counts, fmt.Sprint(reqs))
}

func TestRun_ChatEndsOnEOF(t *testing.T) {
	clearMeeiEnv(t)
	code, _, _ := run(t.TempDir(), "", "chat")
	require.Equal(t, ExitSuccess, code)
}

func TestRun_HelpAndVersion(t *testing.T) {
	code, stdout, _ := run(t.TempDir(), "")
	require.Equal(t, ExitSuccess, code)
	require.Contains(t, stdout, "meei config set")

	code, stdout, _ = run(t.TempDir(), "", "--json", "version")
	require.Equal(t, ExitSuccess, code)
	var v VersionData
	decodeData(t, stdout, &v)
	require.Equal(t, Version, v.Version)

	code, _, stderr := run(t.TempDir(), "", "bogus")
	require.Equal(t, ExitUsageError, code)
	require.Contains(t, stderr, "unknown command")
}
