// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

// Grok has no environment variable; its key is read from settings only.
var grokProfile = Profile{
	ID:           IDGrok,
	DisplayName:  "xAI Grok",
	DefaultModel: "grok-2",
	BaseURL:      "https://api.x.ai/v1",
	DefaultPrice: Price{Input: 0.002, Output: 0.01},
	Aliases: map[string]string{
		"2":    "grok-2",
		"mini": "grok-2-mini",
		"beta": "grok-beta",
	},
	Prices: map[string]Price{
		"grok-2":      {Input: 0.002, Output: 0.01},
		"grok-2-mini": {Input: 0.0002, Output: 0.001},
		"grok-beta":   {Input: 0.002, Output: 0.01},
	},
	dialect: openAIDialect{},
}

// Grok talks to the xAI API.
type Grok struct {
	*Adapter
}

// NewGrok creates a Grok adapter.
func NewGrok(deps Deps) *Grok {
	return &Grok{Adapter: newAdapter(grokProfile, deps)}
}
