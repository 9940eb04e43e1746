// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the meei packages.
//
// # Key Functions
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe truncation without an ellipsis
//   - NormalizeAndTruncate: NFC normalization followed by rune truncation
//   - FitWidth: display-width aware truncation and padding for tables
//   - MaskSecret: shows only the edges of an API key
//
// File Operations:
//   - AtomicWriteFile: Crash-safe file writing with fsync
//   - AtomicWriteFileWithDir: same, with explicit directory permissions
//
// # Usage
//
//	// Persist an encrypted settings document
//	err := util.AtomicWriteFileWithDir(path, data, 0600, 0700)
//
//	// Store at most 500 characters of a prompt
//	stored := util.NormalizeAndTruncate(prompt, 500)
package util
