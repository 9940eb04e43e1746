// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

// TimestampLayout is fixed-width UTC so that string order is time order.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// Schema creates the usage table and its indexes.
const Schema = `
CREATE TABLE IF NOT EXISTS usage (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    request_id TEXT,
    timestamp TEXT NOT NULL,        -- TimestampLayout, UTC
    provider TEXT NOT NULL,
    model TEXT,
    type TEXT NOT NULL,             -- chat
    input_tokens INTEGER DEFAULT 0,
    output_tokens INTEGER DEFAULT 0,
    total_tokens INTEGER DEFAULT 0,
    cost REAL DEFAULT 0,            -- USD
    success INTEGER DEFAULT 1,
    latency_ms INTEGER DEFAULT 0,
    prompt TEXT,
    error TEXT
);

CREATE INDEX IF NOT EXISTS idx_timestamp ON usage(timestamp);
CREATE INDEX IF NOT EXISTS idx_provider ON usage(provider);
`

// Columns added after the first release. Databases created before them are
// migrated on open.
const (
	selectColumns   = `SELECT name FROM pragma_table_info('usage')`
	addRequestIDCol = `ALTER TABLE usage ADD COLUMN request_id TEXT`
)

const insertUsage = `
INSERT INTO usage (request_id, timestamp, provider, model, type,
    input_tokens, output_tokens, total_tokens, cost, success, latency_ms, prompt, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const selectRecent = `
SELECT id, COALESCE(request_id, ''), timestamp, provider, COALESCE(model, ''), type,
    input_tokens, output_tokens, total_tokens, cost, success, latency_ms,
    COALESCE(prompt, ''), COALESCE(error, '')
FROM usage
ORDER BY timestamp DESC, id DESC
LIMIT ?`

const selectSummary = `
SELECT provider,
    COUNT(*),
    COALESCE(SUM(total_tokens), 0),
    COALESCE(SUM(cost), 0.0),
    COALESCE(AVG(latency_ms), 0.0),
    COALESCE(SUM(success), 0)
FROM usage
WHERE timestamp > ?`

const selectDaily = `
SELECT DATE(timestamp) AS day,
    COUNT(*),
    COALESCE(SUM(total_tokens), 0),
    COALESCE(SUM(cost), 0.0)
FROM usage
WHERE timestamp > ?
GROUP BY day
ORDER BY day DESC`
