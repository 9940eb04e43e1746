// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

var openAIProfile = Profile{
	ID:           IDOpenAI,
	DisplayName:  "OpenAI",
	DefaultModel: "gpt-4o-mini",
	BaseURL:      "https://api.openai.com/v1",
	EnvVar:       EnvVars[IDOpenAI],
	DefaultPrice: Price{Input: 0.00015, Output: 0.0006},
	Aliases: map[string]string{
		"4o":      "gpt-4o",
		"4o-mini": "gpt-4o-mini",
		"4-turbo": "gpt-4-turbo",
		"3.5":     "gpt-3.5-turbo",
		"turbo":   "gpt-3.5-turbo",
	},
	Prices: map[string]Price{
		"gpt-4o":        {Input: 0.0025, Output: 0.01},
		"gpt-4o-mini":   {Input: 0.00015, Output: 0.0006},
		"gpt-4-turbo":   {Input: 0.01, Output: 0.03},
		"gpt-3.5-turbo": {Input: 0.0005, Output: 0.0015},
	},
	dialect: openAIDialect{},
}

// OpenAI talks to the OpenAI chat completions API.
type OpenAI struct {
	*Adapter
}

// NewOpenAI creates an OpenAI adapter.
func NewOpenAI(deps Deps) *OpenAI {
	return &OpenAI{Adapter: newAdapter(openAIProfile, deps)}
}
