package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/dyike/SchwabAI/config"
	"github.com/dyike/SchwabAI/internal/analysis"
	"github.com/dyike/SchwabAI/internal/execute"
	"github.com/dyike/SchwabAI/internal/models"
	"github.com/dyike/SchwabAI/internal/report"
	"github.com/dyike/SchwabAI/internal/storage"
	"github.com/dyike/SchwabAI/internal/trading"
)

// UI styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Background(lipgloss.Color("#1F2937")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(0, 2)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280")).
			Width(18)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F59E0B")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))

	tableBorderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#3B82F6"))
)

// DisplayBanner shows what the run is about to do.
func DisplayBanner(w io.Writer, cfg *config.Config, brokerName string) {
	mode := "recommend only"
	switch {
	case cfg.EnableAutoTrading && cfg.DryRun:
		mode = "auto trading (dry run)"
	case cfg.EnableAutoTrading:
		mode = "auto trading (LIVE)"
	}
	fmt.Fprintln(w, titleStyle.Render("SchwabAI Portfolio Manager"))
	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("broker: %s | mode: %s | risk tolerance: %d/10", brokerName, mode, cfg.RiskTolerance)))
	fmt.Fprintln(w)
}

func line(label, value string) string {
	return labelStyle.Render(label) + value
}

func riskStyle(level analysis.RiskLevel) lipgloss.Style {
	switch level {
	case analysis.RiskHigh:
		return errorStyle
	case analysis.RiskMedium:
		return warningStyle
	}
	return successStyle
}

// DisplayResult prints the portfolio summary, recommendations and trades.
func DisplayResult(w io.Writer, res *trading.Result) {
	if res == nil || res.Portfolio == nil {
		return
	}
	m := res.Metrics
	summary := []string{
		line("Account value", report.Money(m.AccountValue)),
		line("Cash", fmt.Sprintf("%s (%.1f%%)", report.Money(m.Cash), m.CashPercent)),
		line("Positions", fmt.Sprintf("%d", m.PositionCount)),
		line("Unrealized P/L", fmt.Sprintf("%s (%.2f%%)", report.Money(m.UnrealizedPL), m.UnrealizedPLPercent)),
		line("Diversification", fmt.Sprintf("%.1f/100", m.DiversificationScore)),
		line("Overall risk", riskStyle(res.Risk.Level).Render(fmt.Sprintf("%.1f (%s)", res.Risk.Overall, res.Risk.Level))),
	}
	if res.LLMProvider != "" {
		summary = append(summary, line("AI provider", res.LLMProvider))
	}
	fmt.Fprintln(w, panelStyle.Render(strings.Join(summary, "\n")))

	if a := res.Analysis; a != nil && a.Assessment != "" {
		fmt.Fprintln(w, titleStyle.Render("AI Analysis"))
		fmt.Fprintln(w, a.Assessment)
		for _, item := range a.Attention {
			fmt.Fprintln(w, warningStyle.Render("  ! "+item.Symbol)+" "+item.Reason)
		}
		fmt.Fprintln(w)
	}

	if len(res.Recommendations) > 0 {
		fmt.Fprintln(w, titleStyle.Render("Recommendations"))
		fmt.Fprintln(w, recommendationsTable(res.Recommendations))
	}

	switch {
	case res.Executed:
		fmt.Fprintln(w, titleStyle.Render("Trades"))
		if len(res.Trades) > 0 {
			fmt.Fprintln(w, tradesTable(res.Trades))
		}
		sum := execute.Summarize(res.Trades)
		fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("simulated %d | completed %d | failed %d | rejected %d",
			sum.Simulated, sum.Completed, sum.Failed, sum.Rejected)))
	case len(res.Recommendations) > 0:
		fmt.Fprintln(w, warningStyle.Render("Auto trading is disabled, no orders were placed."))
	}

	if res.ReportPaths != nil {
		fmt.Fprintln(w, successStyle.Render("Report: "+res.ReportPaths.HTML))
	}
}

func recommendationsTable(recs []models.Recommendation) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(tableBorderStyle).
		Headers("Priority", "Symbol", "Action", "Size", "Confidence", "Rationale")
	for _, rec := range recs {
		t.Row(
			fmt.Sprintf("%d", rec.Priority),
			rec.Symbol,
			strings.ToUpper(string(rec.Action)),
			report.SizeOf(rec),
			fmt.Sprintf("%.0f%%", rec.Confidence*100),
			truncateString(rec.Rationale, 60),
		)
	}
	return t.String()
}

func tradesTable(trades []models.TradeResult) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(tableBorderStyle).
		Headers("Symbol", "Order", "Status", "Detail")
	for _, tr := range trades {
		order := "-"
		if tr.Request != nil {
			order = tr.Request.String()
		}
		detail := tr.OrderID
		if tr.Reason != "" {
			detail = tr.Reason
		}
		if tr.Error != "" {
			detail = tr.Error
		}
		t.Row(tr.Recommendation.Symbol, order, statusStyle(tr.Status).Render(string(tr.Status)), truncateString(detail, 50))
	}
	return t.String()
}

func statusStyle(s models.TradeStatus) lipgloss.Style {
	switch s {
	case models.TradeCompleted, models.TradeSimulated:
		return successStyle
	case models.TradeFailed:
		return errorStyle
	}
	return warningStyle
}

// DisplayHistory prints journaled trades, newest first.
func DisplayHistory(w io.Writer, trades []storage.TradeRecord) {
	if len(trades) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No trades recorded yet."))
		return
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(tableBorderStyle).
		Headers("When", "Symbol", "Side", "Qty", "Price", "Status", "Order ID")
	for _, tr := range trades {
		side := string(tr.Side)
		if side == "" {
			side = strings.ToUpper(string(tr.Action))
		}
		t.Row(
			tr.ExecutedAt.Local().Format("2006-01-02 15:04"),
			tr.Symbol,
			side,
			tr.Quantity.String(),
			report.Money(tr.Price),
			statusStyle(tr.Status).Render(string(tr.Status)),
			tr.OrderID,
		)
	}
	fmt.Fprintln(w, t.String())
}

// DisplayReports prints stored report files.
func DisplayReports(w io.Writer, files []ReportFile) {
	if len(files) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No reports found."))
		return
	}
	for _, f := range files {
		fmt.Fprintf(w, "%s  %s  %s\n",
			f.CreatedAt.Format("2006-01-02 15:04"),
			f.Path,
			mutedStyle.Render(formatFileSize(f.Size)))
	}
}

// truncateString truncates a string to the specified length
func truncateString(s string, length int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= length {
		return s
	}
	return string(r[:length-3]) + "..."
}

func formatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
