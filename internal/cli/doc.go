// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the meei command line.
//
// Run parses argv, executes one command against a meei.Client and maps any
// error to an exit code. All input and output goes through an Env, so the
// commands can be driven from tests with in-memory buffers.
//
// # Commands
//
//   - init: create the encrypted key store
//   - config: manage encrypted settings (set, get, delete, list, show)
//   - ask: one prompt, optionally streamed or read from stdin
//   - chat: interactive conversation with input history
//   - usage: usage and cost report from the local ledger
//   - providers: supported vendors and key status
//   - version
//
// # Exit Codes
//
//	0  success
//	1  general error
//	2  usage error (bad flags, unknown provider)
//	3  configuration error (missing key store, unreadable settings)
//	4  authentication error
//	5  network or provider error
//	7  not found
//	8  timeout
package cli
