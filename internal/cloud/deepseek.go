// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

var deepSeekProfile = Profile{
	ID:           IDDeepSeek,
	DisplayName:  "DeepSeek",
	DefaultModel: "deepseek-chat",
	BaseURL:      "https://api.deepseek.com",
	EnvVar:       EnvVars[IDDeepSeek],
	DefaultPrice: Price{Input: 0.00014, Output: 0.00028},
	Aliases: map[string]string{
		"chat":     "deepseek-chat",
		"coder":    "deepseek-coder",
		"reasoner": "deepseek-reasoner",
		"r1":       "deepseek-reasoner",
	},
	Prices: map[string]Price{
		"deepseek-chat":     {Input: 0.00014, Output: 0.00028},
		"deepseek-coder":    {Input: 0.00014, Output: 0.00028},
		"deepseek-reasoner": {Input: 0.00055, Output: 0.00219},
	},
	dialect: openAIDialect{},
}

// DeepSeek talks to the DeepSeek chat completions API.
type DeepSeek struct {
	*Adapter
}

// NewDeepSeek creates a DeepSeek adapter.
func NewDeepSeek(deps Deps) *DeepSeek {
	return &DeepSeek{Adapter: newAdapter(deepSeekProfile, deps)}
}
