// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry implements the meei usage ledger: a local SQLite table
// with one row per chat call and the aggregate queries behind `meei usage`.
//
// # Key Types
//
//   - Ledger: append-only store backed by modernc.org/sqlite
//   - UsageRecord: one call with tokens, cost, latency and outcome
//   - Summary / ProviderSummary: per-provider totals over a window
//   - DailyUsage: one calendar day (UTC) of totals
//
// # Usage
//
//	ledger, err := telemetry.Open(filepath.Join(home, "meei.db"))
//	if err != nil {
//	    return err
//	}
//	defer ledger.Close()
//
//	err = ledger.Record(ctx, telemetry.UsageRecord{
//	    Provider:     "deepseek",
//	    Model:        "deepseek-chat",
//	    InputTokens:  5,
//	    OutputTokens: 2,
//	    Cost:         0.00000126,
//	    Success:      true,
//	})
//
//	summary, err := ledger.Summary(ctx, 30, "")
//
// # Privacy
//
// The ledger is local-only and never transmitted. Only the first
// characters of each prompt are kept (500 by default).
package telemetry
