// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

var groqProfile = Profile{
	ID:           IDGroq,
	DisplayName:  "Groq",
	DefaultModel: "llama-3.3-70b-versatile",
	BaseURL:      "https://api.groq.com/openai/v1",
	EnvVar:       EnvVars[IDGroq],
	DefaultPrice: Price{Input: 0.00059, Output: 0.00079},
	Aliases: map[string]string{
		"llama":    "llama-3.3-70b-versatile",
		"llama70b": "llama-3.3-70b-versatile",
		"llama8b":  "llama-3.1-8b-instant",
		"mixtral":  "mixtral-8x7b-32768",
		"gemma":    "gemma2-9b-it",
	},
	Prices: map[string]Price{
		"llama-3.3-70b-versatile": {Input: 0.00059, Output: 0.00079},
		"llama-3.1-8b-instant":    {Input: 0.00005, Output: 0.00008},
		"mixtral-8x7b-32768":      {Input: 0.00024, Output: 0.00024},
		"gemma2-9b-it":            {Input: 0.0002, Output: 0.0002},
	},
	dialect: openAIDialect{},
}

// Groq talks to the Groq OpenAI-compatible API.
type Groq struct {
	*Adapter
}

// NewGroq creates a Groq adapter.
func NewGroq(deps Deps) *Groq {
	return &Groq{Adapter: newAdapter(groqProfile, deps)}
}
