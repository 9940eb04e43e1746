// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import "sort"

// Provider ids.
const (
	IDDeepSeek = "deepseek"
	IDOpenAI   = "openai"
	IDGemini   = "gemini"
	IDQwen     = "qwen"
	IDGrok     = "grok"
	IDGroq     = "groq"
)

// EnvVars is the fixed environment-variable fallback table. Grok has no entry.
var EnvVars = map[string]string{
	IDDeepSeek: "DEEPSEEK_API_KEY",
	IDOpenAI:   "OPENAI_API_KEY",
	IDGemini:   "GEMINI_API_KEY",
	IDQwen:     "QWEN_API_KEY",
	IDGroq:     "GROQ_API_KEY",
}

var constructors = map[string]func(Deps) Provider{
	IDDeepSeek: func(d Deps) Provider { return NewDeepSeek(d) },
	IDOpenAI:   func(d Deps) Provider { return NewOpenAI(d) },
	IDGemini:   func(d Deps) Provider { return NewGemini(d) },
	IDQwen:     func(d Deps) Provider { return NewQwen(d) },
	IDGrok:     func(d Deps) Provider { return NewGrok(d) },
	IDGroq:     func(d Deps) Provider { return NewGroq(d) },
}

// New constructs the adapter for id. ok is false for unknown ids.
func New(id string, deps Deps) (p Provider, ok bool) {
	ctor, ok := constructors[id]
	if !ok {
		return nil, false
	}
	return ctor(deps), true
}

// IDs returns every provider id in alphabetical order.
func IDs() []string {
	ids := make([]string, 0, len(constructors))
	for id := range constructors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
