// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

var qwenProfile = Profile{
	ID:           IDQwen,
	DisplayName:  "Alibaba Qwen",
	DefaultModel: "qwen-turbo",
	// DashScope international endpoint, OpenAI-compatible mode
	BaseURL:      "https://dashscope-intl.aliyuncs.com/compatible-mode/v1",
	EnvVar:       EnvVars[IDQwen],
	DefaultPrice: Price{Input: 0.000042, Output: 0.000083},
	Aliases: map[string]string{
		"turbo": "qwen-turbo",
		"plus":  "qwen-plus",
		"max":   "qwen-max",
		"long":  "qwen-long",
		"coder": "qwen-coder-turbo",
	},
	Prices: map[string]Price{
		"qwen-turbo":       {Input: 0.000042, Output: 0.000083},
		"qwen-plus":        {Input: 0.00011, Output: 0.00028},
		"qwen-max":         {Input: 0.0028, Output: 0.0083},
		"qwen-long":        {Input: 0.00007, Output: 0.00028},
		"qwen-coder-turbo": {Input: 0.00028, Output: 0.00083},
	},
	dialect: openAIDialect{},
}

// Qwen talks to Alibaba DashScope in OpenAI-compatible mode.
type Qwen struct {
	*Adapter
}

// NewQwen creates a Qwen adapter.
func NewQwen(deps Deps) *Qwen {
	return &Qwen{Adapter: newAdapter(qwenProfile, deps)}
}
