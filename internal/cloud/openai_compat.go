// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bytes"
	"net/http"
)

// =============================================================================
// OPENAI-COMPATIBLE WIRE FORMAT
// =============================================================================

// ChatRequest is the OpenAI-compatible request body used by DeepSeek,
// OpenAI, Qwen, Grok and Groq.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

// ChatResponse is the OpenAI-compatible response body. Streaming chunks use
// the same shape with Delta instead of Message.
type ChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int     `json:"index"`
		Message      Message `json:"message"`
		Delta        Message `json:"delta"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

var doneMarker = []byte("[DONE]")

type openAIDialect struct{}

func (openAIDialect) endpoint(baseURL, _, _ string, _ bool) string {
	return baseURL + "/chat/completions"
}

func (openAIDialect) authorize(req *http.Request, apiKey string) {
	req.Header.Set("Authorization", "Bearer "+apiKey)
}

func (openAIDialect) buildRequest(messages []Message, model string, p Params, stream bool) any {
	return ChatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
		Stream:      stream,
	}
}

func (openAIDialect) parseResponse(body []byte) Completion {
	var resp ChatResponse
	if err := decodeLenient(body, &resp); err != nil {
		return Completion{}
	}
	comp := Completion{Model: resp.Model}
	if len(resp.Choices) > 0 {
		comp.Content = resp.Choices[0].Message.Content
	}
	if resp.Usage != nil {
		comp.InputTokens = resp.Usage.PromptTokens
		comp.OutputTokens = resp.Usage.CompletionTokens
	}
	return comp
}

func (openAIDialect) parseChunk(data []byte) (Completion, bool) {
	var chunk ChatResponse
	if err := decodeLenient(data, &chunk); err != nil {
		return Completion{}, false
	}
	comp := Completion{Model: chunk.Model}
	if len(chunk.Choices) > 0 {
		comp.Content = chunk.Choices[0].Delta.Content
	}
	// Some vendors attach usage to the final chunk
	if chunk.Usage != nil {
		comp.InputTokens = chunk.Usage.PromptTokens
		comp.OutputTokens = chunk.Usage.CompletionTokens
	}
	return comp, true
}

func (openAIDialect) isDone(data []byte) bool {
	return bytes.Equal(bytes.TrimSpace(data), doneMarker)
}
