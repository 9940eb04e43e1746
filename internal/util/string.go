// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/text/unicode/norm"
)

// UNICODE: Rune-aware truncation preserves multi-byte characters.

// TruncateRunes truncates s to at most maxRunes characters without
// appending an ellipsis.
func TruncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes])
}

// NormalizeAndTruncate converts s to NFC before truncating it, so a
// decomposed accent is never split from its base letter and the same visible
// text always stores the same prefix.
func NormalizeAndTruncate(s string, maxRunes int) string {
	return TruncateRunes(norm.NFC.String(s), maxRunes)
}

// FitWidth truncates or pads s to exactly width display columns.
// Double-width characters (CJK, emoji) count as two columns.
func FitWidth(s string, width int) string {
	if width <= 0 {
		return ""
	}
	s = strings.ReplaceAll(s, "\n", " ")
	if runewidth.StringWidth(s) > width {
		s = runewidth.Truncate(s, width, "…")
	}
	return runewidth.FillRight(s, width)
}

// StringWidth returns the display width of s.
func StringWidth(s string) int {
	return runewidth.StringWidth(s)
}

// MaskSecret hides all but the first and last four characters of a secret.
// Short secrets are fully masked.
func MaskSecret(s string) string {
	runes := []rune(s)
	if len(runes) <= 8 {
		return strings.Repeat("*", len(runes))
	}
	return string(runes[:4]) + strings.Repeat("*", len(runes)-8) + string(runes[len(runes)-4:])
}
