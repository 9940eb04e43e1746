// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"net/http"
	"net/url"
	"strings"
)

// =============================================================================
// GEMINI
// =============================================================================

var geminiProfile = Profile{
	ID:           IDGemini,
	DisplayName:  "Google Gemini",
	DefaultModel: "gemini-2.0-flash",
	BaseURL:      "https://generativelanguage.googleapis.com/v1beta",
	EnvVar:       EnvVars[IDGemini],
	DefaultPrice: Price{Input: 0, Output: 0},
	Aliases: map[string]string{
		"pro":   "gemini-1.5-pro",
		"flash": "gemini-2.0-flash",
		"2.0":   "gemini-2.0-flash",
		"1.5":   "gemini-1.5-flash",
		"1.0":   "gemini-1.0-pro",
	},
	Prices: map[string]Price{
		"gemini-2.0-flash": {Input: 0, Output: 0},
		"gemini-1.5-pro":   {Input: 0.00125, Output: 0.005},
		"gemini-1.5-flash": {Input: 0.000075, Output: 0.0003},
		"gemini-1.0-pro":   {Input: 0.0005, Output: 0.0015},
	},
	dialect: geminiDialect{},
}

// Gemini talks to the Google Generative Language API. The key travels in the
// query string rather than a header.
type Gemini struct {
	*Adapter
}

// NewGemini creates a Gemini adapter.
func NewGemini(deps Deps) *Gemini {
	return &Gemini{Adapter: newAdapter(geminiProfile, deps)}
}

// =============================================================================
// GEMINI WIRE FORMAT
// =============================================================================

// GeminiPart is one text part.
type GeminiPart struct {
	Text string `json:"text"`
}

// GeminiContent is one turn; Role is "user" or "model".
type GeminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []GeminiPart `json:"parts"`
}

// GeminiGenerationConfig carries the optional sampling settings.
type GeminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
}

// GeminiRequest is the generateContent request body.
type GeminiRequest struct {
	Contents          []GeminiContent         `json:"contents"`
	SystemInstruction *GeminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *GeminiGenerationConfig `json:"generationConfig,omitempty"`
}

// GeminiResponse is the generateContent response body, also used for each
// streamed chunk.
type GeminiResponse struct {
	Candidates []struct {
		Content      GeminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
}

type geminiDialect struct{}

func (geminiDialect) endpoint(baseURL, model, apiKey string, stream bool) string {
	q := url.Values{}
	method := "generateContent"
	if stream {
		method = "streamGenerateContent"
		q.Set("alt", "sse")
	}
	q.Set("key", apiKey)
	return baseURL + "/models/" + url.PathEscape(model) + ":" + method + "?" + q.Encode()
}

// authorize is a no-op: the key is in the URL.
func (geminiDialect) authorize(*http.Request, string) {}

func (geminiDialect) buildRequest(messages []Message, _ string, p Params, _ bool) any {
	req := GeminiRequest{Contents: make([]GeminiContent, 0, len(messages))}

	var system []GeminiPart
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			system = append(system, GeminiPart{Text: msg.Content})
		case RoleAssistant:
			req.Contents = append(req.Contents, GeminiContent{Role: "model", Parts: []GeminiPart{{Text: msg.Content}}})
		default:
			req.Contents = append(req.Contents, GeminiContent{Role: "user", Parts: []GeminiPart{{Text: msg.Content}}})
		}
	}
	if len(system) > 0 {
		req.SystemInstruction = &GeminiContent{Parts: system}
	}
	if p.Temperature != nil || p.MaxTokens != nil {
		req.GenerationConfig = &GeminiGenerationConfig{
			Temperature:     p.Temperature,
			MaxOutputTokens: p.MaxTokens,
		}
	}
	return req
}

func (geminiDialect) parseResponse(body []byte) Completion {
	comp, _ := parseGemini(body)
	return comp
}

func (geminiDialect) parseChunk(data []byte) (Completion, bool) {
	return parseGemini(data)
}

// Gemini streams end at EOF; there is no sentinel.
func (geminiDialect) isDone([]byte) bool {
	return false
}

func parseGemini(data []byte) (Completion, bool) {
	var resp GeminiResponse
	if err := decodeLenient(data, &resp); err != nil {
		return Completion{}, false
	}

	comp := Completion{
		InputTokens:  resp.UsageMetadata.PromptTokenCount,
		OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
		Model:        resp.ModelVersion,
	}
	if len(resp.Candidates) > 0 {
		var sb strings.Builder
		for _, part := range resp.Candidates[0].Content.Parts {
			sb.WriteString(part.Text)
		}
		comp.Content = sb.String()
	}
	return comp, true
}
