// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// usage.go - Usage and cost report from the local ledger.
//
// Command: usage [--days N] [--provider ID] [--recent N] [--daily]
//
// Examples:
//   meei usage
//   meei usage --days 7 --provider openai
//   meei usage --recent 20 --daily --json

package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Jeffrey0117/meei"
	"github.com/Jeffrey0117/meei/internal/util"
)

// column is one fixed-width report column.
type column struct {
	title string
	width int
	right bool
}

// HandleUsage handles the "usage" command.
func HandleUsage(env *Env, args Args) error {
	if args.Days < 0 {
		return &ValidationError{Field: "days", Value: fmt.Sprint(args.Days), Reason: "must be zero or positive"}
	}
	if args.Recent < 0 {
		return &ValidationError{Field: "recent", Value: fmt.Sprint(args.Recent), Reason: "must be zero or positive"}
	}

	client, err := env.open(args)
	if err != nil {
		return err
	}
	defer client.Close()

	provider := args.Provider
	if provider != "" {
		p, err := client.Provider(provider)
		if err != nil {
			return err
		}
		provider = p.Name()
	}

	ctx := context.Background()
	ledger := client.Usage()

	data := UsageData{}
	if data.Summary, err = ledger.Summary(ctx, args.Days, provider); err != nil {
		return err
	}
	if args.Recent > 0 {
		if data.Recent, err = ledger.Recent(ctx, args.Recent); err != nil {
			return err
		}
	}
	if args.Daily {
		if data.Daily, err = ledger.Daily(ctx, args.Days); err != nil {
			return err
		}
	}

	if args.JSON {
		return NewJSONResponse("usage", data).Print(env.Stdout)
	}

	printSummary(env.Stdout, data.Summary)
	if len(data.Daily) > 0 {
		printDaily(env.Stdout, data.Daily)
	}
	if len(data.Recent) > 0 {
		printRecent(env.Stdout, data.Recent)
	}
	return nil
}

func printSummary(w io.Writer, s *meei.Summary) {
	fmt.Fprintln(w, TitleStyle.Render(fmt.Sprintf("Usage, last %d days", s.Days)))
	if s.TotalRequests == 0 {
		fmt.Fprintln(w, DimStyle.Render("No requests recorded."))
		return
	}

	cols := []column{
		{"Provider", 10, false},
		{"Requests", 9, true},
		{"Success", 8, true},
		{"Tokens", 10, true},
		{"Cost", 11, true},
		{"Avg ms", 8, true},
	}
	printHeader(w, cols)
	for _, name := range s.ProviderNames() {
		ps := s.Providers[name]
		printRow(w, cols,
			name,
			fmt.Sprint(ps.TotalRequests),
			fmt.Sprint(ps.SuccessCount),
			fmt.Sprint(ps.TotalTokens),
			formatCost(ps.TotalCost),
			fmt.Sprintf("%.0f", ps.AvgLatencyMs),
		)
	}
	fmt.Fprintln(w, RenderSeparator(tableWidth(cols)))
	fmt.Fprintf(w, "%s %d requests, %s\n", LabelStyle.Render("Total:"), s.TotalRequests, CostStyle.Render(formatCost(s.TotalCost)))
}

func printDaily(w io.Writer, days []meei.DailyUsage) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, SectionStyle.Render("Daily (UTC)"))
	cols := []column{
		{"Date", 10, false},
		{"Requests", 9, true},
		{"Tokens", 10, true},
		{"Cost", 11, true},
	}
	printHeader(w, cols)
	for _, d := range days {
		printRow(w, cols, d.Date, fmt.Sprint(d.Requests), fmt.Sprint(d.Tokens), formatCost(d.Cost))
	}
}

func printRecent(w io.Writer, records []meei.UsageRecord) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, SectionStyle.Render("Recent"))

	promptWidth := GetTerminalWidth() - 84
	if promptWidth < 20 {
		promptWidth = 20
	}
	cols := []column{
		{"Time", 16, false},
		{"Provider", 10, false},
		{"Model", 18, false},
		{"Tokens", 7, true},
		{"Cost", 10, true},
		{"", 6, false},
		{"Prompt", promptWidth, false},
	}
	printHeader(w, cols)
	for _, r := range records {
		status := RenderStatus("ok")
		if !r.Success {
			status = RenderStatus("fail")
		}
		printRow(w, cols,
			r.Timestamp.Local().Format("2006-01-02 15:04"),
			r.Provider,
			r.Model,
			fmt.Sprint(r.TotalTokens),
			formatCost(r.Cost),
			status,
			r.Prompt,
		)
	}
}

func printHeader(w io.Writer, cols []column) {
	cells := make([]string, len(cols))
	for i, c := range cols {
		cells[i] = HeaderCellStyle.Render(fit(c.title, c))
	}
	fmt.Fprintln(w, strings.Join(cells, " "))
}

// printRow pads each cell by display width, so CJK prompts stay aligned.
// Cells that already carry styling are passed through as-is.
func printRow(w io.Writer, cols []column, values ...string) {
	cells := make([]string, len(cols))
	for i, c := range cols {
		v := values[i]
		if strings.Contains(v, "\x1b[") {
			cells[i] = v + strings.Repeat(" ", max(0, c.width-lipgloss.Width(v)))
			continue
		}
		cells[i] = fit(v, c)
	}
	fmt.Fprintln(w, strings.TrimRight(strings.Join(cells, " "), " "))
}

func fit(s string, c column) string {
	if c.right && util.StringWidth(s) < c.width {
		return strings.Repeat(" ", c.width-util.StringWidth(s)) + s
	}
	return util.FitWidth(s, c.width)
}

func tableWidth(cols []column) int {
	total := len(cols) - 1
	for _, c := range cols {
		total += c.width
	}
	return total
}

func formatCost(usd float64) string {
	return fmt.Sprintf("$%.6f", usd)
}
