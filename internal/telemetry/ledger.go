// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Jeffrey0117/meei/internal/util"
	"github.com/google/uuid"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrDatabaseError wraps every SQLite failure.
	ErrDatabaseError = errors.New("usage ledger database error")
)

// =============================================================================
// TYPES
// =============================================================================

// TypeChat is the only call type recorded today.
const TypeChat = "chat"

// DefaultPromptMaxChars is how much of a prompt is kept per record.
const DefaultPromptMaxChars = 500

// UsageRecord is one row of the usage table.
type UsageRecord struct {
	ID           int64     `json:"id"`
	RequestID    string    `json:"request_id"`
	Timestamp    time.Time `json:"timestamp"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	Type         string    `json:"type"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	TotalTokens  int       `json:"total_tokens"`
	Cost         float64   `json:"cost"` // USD
	Success      bool      `json:"success"`
	LatencyMs    int64     `json:"latency_ms"`
	Prompt       string    `json:"prompt,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// ProviderSummary aggregates one provider's rows within a window.
type ProviderSummary struct {
	TotalRequests int     `json:"total_requests"`
	TotalTokens   int64   `json:"total_tokens"`
	TotalCost     float64 `json:"total_cost"`
	AvgLatencyMs  float64 `json:"avg_latency"`
	SuccessCount  int     `json:"success_count"`
}

// Summary is the result of Ledger.Summary.
type Summary struct {
	Days          int                        `json:"days"`
	Providers     map[string]ProviderSummary `json:"providers"`
	TotalCost     float64                    `json:"total_cost"`
	TotalRequests int                        `json:"total_requests"`
}

// ProviderNames returns the summarized providers in alphabetical order.
func (s *Summary) ProviderNames() []string {
	names := make([]string, 0, len(s.Providers))
	for name := range s.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DailyUsage aggregates one UTC calendar day.
type DailyUsage struct {
	Date     string  `json:"date"` // YYYY-MM-DD
	Requests int     `json:"requests"`
	Tokens   int64   `json:"tokens"`
	Cost     float64 `json:"cost"`
}

// =============================================================================
// LEDGER
// =============================================================================

// Ledger is the append-only usage store. It is safe for concurrent use, and
// several processes may share one database file.
type Ledger struct {
	db             *sql.DB
	path           string
	promptMaxChars int
	now            func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithPromptLimit sets how many characters of each prompt are stored.
func WithPromptLimit(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.promptMaxChars = n
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// Open opens (creating if needed) the ledger database at path.
func Open(path string, opts ...Option) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Pragmas in the DSN apply to every pooled connection
	dsn := "file:" + path +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(FULL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %v", ErrDatabaseError, err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to initialize schema: %v", ErrDatabaseError, err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	l := &Ledger{
		db:             db,
		path:           path,
		promptMaxChars: DefaultPromptMaxChars,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// migrate adds columns missing from databases created by older versions.
func migrate(db *sql.DB) error {
	rows, err := db.Query(selectColumns)
	if err != nil {
		return fmt.Errorf("%w: read columns: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("%w: scan columns: %v", ErrDatabaseError, err)
		}
		columns[name] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: read columns: %v", ErrDatabaseError, err)
	}
	rows.Close()

	if !columns["request_id"] {
		if _, err := db.Exec(addRequestIDCol); err != nil {
			return fmt.Errorf("%w: add request_id: %v", ErrDatabaseError, err)
		}
	}
	return nil
}

// Path returns the database file location.
func (l *Ledger) Path() string {
	return l.path
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Record appends rec in its own transaction. TotalTokens is always recomputed
// from the input and output counts, and the prompt is normalized and
// truncated. A zero Timestamp means now and an empty RequestID gets a new
// UUID.
func (l *Ledger) Record(ctx context.Context, rec UsageRecord) (err error) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = l.now()
	}
	if rec.RequestID == "" {
		rec.RequestID = uuid.NewString()
	}
	if rec.Type == "" {
		rec.Type = TypeChat
	}
	rec.TotalTokens = rec.InputTokens + rec.OutputTokens
	rec.Prompt = util.NormalizeAndTruncate(rec.Prompt, l.promptMaxChars)

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrDatabaseError, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, insertUsage,
		rec.RequestID,
		rec.Timestamp.UTC().Format(TimestampLayout),
		rec.Provider,
		nullString(rec.Model),
		rec.Type,
		rec.InputTokens,
		rec.OutputTokens,
		rec.TotalTokens,
		rec.Cost,
		boolToInt(rec.Success),
		rec.LatencyMs,
		nullString(rec.Prompt),
		nullString(rec.Error),
	)
	if err != nil {
		return fmt.Errorf("%w: insert usage: %v", ErrDatabaseError, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrDatabaseError, err)
	}
	return nil
}

// =============================================================================
// QUERIES
// =============================================================================

// Summary aggregates the rows newer than days ago, optionally limited to one
// provider.
func (l *Ledger) Summary(ctx context.Context, days int, provider string) (*Summary, error) {
	query := selectSummary
	args := []any{l.since(days)}
	if provider != "" {
		query += " AND provider = ?"
		args = append(args, provider)
	}
	query += " GROUP BY provider"

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: summary: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	summary := &Summary{
		Days:      days,
		Providers: make(map[string]ProviderSummary),
	}
	for rows.Next() {
		var name string
		var ps ProviderSummary
		if err := rows.Scan(&name, &ps.TotalRequests, &ps.TotalTokens, &ps.TotalCost, &ps.AvgLatencyMs, &ps.SuccessCount); err != nil {
			return nil, fmt.Errorf("%w: scan summary: %v", ErrDatabaseError, err)
		}
		summary.Providers[name] = ps
		summary.TotalCost += ps.TotalCost
		summary.TotalRequests += ps.TotalRequests
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: summary: %v", ErrDatabaseError, err)
	}
	return summary, nil
}

// Recent returns up to limit records, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]UsageRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := l.db.QueryContext(ctx, selectRecent, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: recent: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	records := make([]UsageRecord, 0, limit)
	for rows.Next() {
		var rec UsageRecord
		var ts string
		var success int
		if err := rows.Scan(&rec.ID, &rec.RequestID, &ts, &rec.Provider, &rec.Model, &rec.Type,
			&rec.InputTokens, &rec.OutputTokens, &rec.TotalTokens, &rec.Cost, &success,
			&rec.LatencyMs, &rec.Prompt, &rec.Error); err != nil {
			return nil, fmt.Errorf("%w: scan usage: %v", ErrDatabaseError, err)
		}
		rec.Success = success != 0
		if rec.Timestamp, err = time.Parse(TimestampLayout, ts); err != nil {
			return nil, fmt.Errorf("%w: bad timestamp %q: %v", ErrDatabaseError, ts, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: recent: %v", ErrDatabaseError, err)
	}
	return records, nil
}

// Daily returns per-day totals for the last days days, newest day first.
func (l *Ledger) Daily(ctx context.Context, days int) ([]DailyUsage, error) {
	rows, err := l.db.QueryContext(ctx, selectDaily, l.since(days))
	if err != nil {
		return nil, fmt.Errorf("%w: daily: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	var out []DailyUsage
	for rows.Next() {
		var d DailyUsage
		if err := rows.Scan(&d.Date, &d.Requests, &d.Tokens, &d.Cost); err != nil {
			return nil, fmt.Errorf("%w: scan daily: %v", ErrDatabaseError, err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: daily: %v", ErrDatabaseError, err)
	}
	return out, nil
}

func (l *Ledger) since(days int) string {
	return l.now().AddDate(0, 0, -days).UTC().Format(TimestampLayout)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
