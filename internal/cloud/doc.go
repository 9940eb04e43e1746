// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud implements one adapter per chat vendor behind a single
// Provider contract.
//
// DeepSeek, OpenAI, Qwen, Grok and Groq share the OpenAI-compatible chat
// completions format; Gemini has its own. Every adapter resolves its API key
// from the settings store first and the vendor's environment variable second,
// maps HTTP failures onto typed errors, and writes one usage record per call
// that reached the network.
//
// # Usage
//
//	p := cloud.NewDeepSeek(cloud.Deps{Settings: settings, Usage: ledger})
//	answer, err := p.Chat(ctx, "Hello", cloud.WithModel("r1"))
//	if errors.Is(err, cloud.ErrAuthentication) {
//	    // no key configured
//	}
//
// # Errors
//
//   - AuthenticationError: key missing locally, or HTTP 401
//   - RateLimitError: HTTP 429, never retried
//   - APIError: any other non-2xx status
//   - TimeoutError: the transport deadline passed
//
// All of them match ErrProvider via errors.Is.
//
// # Security
//
// API keys are never logged; debug logs carry a short SHA-256 fingerprint.
// All requests use TLS 1.2+.
package cloud
