// Package report renders a run as JSON, Markdown, HTML and styled terminal
// output.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/charmbracelet/glamour"
	"github.com/dyike/SchwabAI/internal/analysis"
	"github.com/dyike/SchwabAI/internal/dataflows"
	"github.com/dyike/SchwabAI/internal/llm"
	"github.com/dyike/SchwabAI/internal/models"
	md "github.com/nao1215/markdown"
	"github.com/shopspring/decimal"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

type Report struct {
	GeneratedAt     time.Time                 `json:"generated_at"`
	RunID           string                    `json:"run_id,omitempty"`
	DryRun          bool                      `json:"dry_run"`
	Portfolio       *models.Portfolio         `json:"portfolio"`
	Metrics         analysis.PortfolioMetrics `json:"metrics"`
	Risk            analysis.RiskReport       `json:"risk"`
	Market          *models.MarketData        `json:"market,omitempty"`
	LLMProvider     string                    `json:"llm_provider,omitempty"`
	Analysis        *llm.Analysis             `json:"analysis,omitempty"`
	Recommendations []models.Recommendation   `json:"recommendations,omitempty"`
	Trades          []models.TradeResult      `json:"trades,omitempty"`
}

// Paths are the files written by Write.
type Paths struct {
	JSON     string
	Markdown string
	HTML     string
}

// Money formats a dollar amount, e.g. $1,234.56.
func Money(d decimal.Decimal) string {
	return money.New(d.Shift(2).Round(0).IntPart(), money.USD).Display()
}

func pct(v float64) string { return fmt.Sprintf("%.2f%%", v) }

// Markdown renders the human-readable report.
func Markdown(r *Report) string {
	var buf bytes.Buffer
	doc := md.NewMarkdown(&buf)

	doc.H1(fmt.Sprintf("Portfolio Analysis Report %s", r.GeneratedAt.Format("2006-01-02 15:04")))
	if r.DryRun {
		doc.PlainText("Mode: dry run, no orders were sent to the broker.")
	}

	p := r.Portfolio
	doc.H2("Portfolio Summary")
	doc.Table(md.TableSet{
		Header: []string{"Account Value", "Invested", "Cash", "Cash %", "Positions", "Unrealized P/L"},
		Rows: [][]string{{
			Money(r.Metrics.AccountValue),
			Money(r.Metrics.InvestedValue),
			Money(r.Metrics.Cash),
			pct(r.Metrics.CashPercent),
			fmt.Sprintf("%d", r.Metrics.PositionCount),
			fmt.Sprintf("%s (%s)", Money(r.Metrics.UnrealizedPL), pct(r.Metrics.UnrealizedPLPercent)),
		}},
	})

	doc.H2("Risk")
	doc.Table(md.TableSet{
		Header: []string{"Overall", "Level", "Diversification", "Concentration", "Sector", "Volatility"},
		Rows: [][]string{{
			fmt.Sprintf("%.1f", r.Risk.Overall),
			string(r.Risk.Level),
			fmt.Sprintf("%.1f", r.Risk.Diversification),
			fmt.Sprintf("%.1f", r.Risk.Concentration),
			fmt.Sprintf("%.1f", r.Risk.Sector),
			volatilityCell(r.Risk),
		}},
	})

	if p != nil && len(p.Positions) > 0 {
		doc.H2("Holdings")
		rows := make([][]string, 0, len(p.Positions))
		for _, pos := range byWeight(p) {
			level := ""
			if pr, ok := r.Risk.Position(pos.Symbol); ok {
				level = fmt.Sprintf("%.0f (%s)", pr.Score, pr.Level)
			}
			rows = append(rows, []string{
				pos.Symbol,
				pos.Quantity.String(),
				Money(pos.CurrentPrice),
				Money(pos.MarketValue),
				pct(p.Weight(pos.Symbol)),
				fmt.Sprintf("%s (%s)", Money(pos.UnrealizedPL()), pct(pos.UnrealizedPLPercent())),
				pos.SectorName(),
				level,
			})
		}
		doc.Table(md.TableSet{
			Header: []string{"Symbol", "Shares", "Price", "Value", "Weight", "Unrealized P/L", "Sector", "Risk"},
			Rows:   rows,
		})
	}

	if len(r.Metrics.SectorAllocation) > 0 {
		doc.H2("Sector Allocation")
		sectors := make([]string, 0, len(r.Metrics.SectorAllocation))
		for s := range r.Metrics.SectorAllocation {
			sectors = append(sectors, s)
		}
		sort.Slice(sectors, func(i, j int) bool {
			a, b := r.Metrics.SectorAllocation[sectors[i]], r.Metrics.SectorAllocation[sectors[j]]
			if a != b {
				return a > b
			}
			return sectors[i] < sectors[j]
		})
		rows := make([][]string, 0, len(sectors))
		for _, s := range sectors {
			rows = append(rows, []string{s, pct(r.Metrics.SectorAllocation[s])})
		}
		doc.Table(md.TableSet{Header: []string{"Sector", "Allocation"}, Rows: rows})
	}

	if r.Market != nil && len(r.Market.Indices) > 0 {
		doc.H2("Market")
		syms := make([]string, 0, len(r.Market.Indices))
		for s := range r.Market.Indices {
			syms = append(syms, s)
		}
		sort.Strings(syms)
		rows := make([][]string, 0, len(syms))
		for _, s := range syms {
			q := r.Market.Indices[s]
			name := dataflows.MarketIndices[s]
			if name == "" {
				name = s
			}
			rows = append(rows, []string{name, q.Price.StringFixed(2), fmt.Sprintf("%+.2f%%", q.ChangePercent)})
		}
		doc.Table(md.TableSet{Header: []string{"Index", "Last", "Change"}, Rows: rows})
	}

	if a := r.Analysis; a != nil {
		title := "AI Analysis"
		if r.LLMProvider != "" {
			title += " (" + r.LLMProvider + ")"
		}
		doc.H2(title)
		if a.Assessment != "" {
			doc.PlainText(a.Assessment)
		}
		bullets := func(heading string, items []string) {
			if len(items) == 0 {
				return
			}
			doc.H3(heading)
			doc.BulletList(items...)
		}
		bullets("Strengths", a.Strengths)
		bullets("Vulnerabilities", a.Vulnerabilities)
		if len(a.Attention) > 0 {
			items := make([]string, 0, len(a.Attention))
			for _, it := range a.Attention {
				items = append(items, it.Symbol+": "+it.Reason)
			}
			bullets("Positions Needing Attention", items)
		}
		bullets("Rebalancing", a.Rebalancing)
		bullets("Cash Deployment", a.CashDeployment)
	}

	if len(r.Recommendations) > 0 {
		doc.H2("Recommendations")
		rows := make([][]string, 0, len(r.Recommendations))
		for _, rec := range r.Recommendations {
			rows = append(rows, []string{
				rec.Symbol,
				strings.ToUpper(string(rec.Action)),
				SizeOf(rec),
				fmt.Sprintf("%d", rec.Priority),
				fmt.Sprintf("%.2f", rec.Confidence),
				rec.Source,
				cell(rec.Rationale),
			})
		}
		doc.Table(md.TableSet{
			Header: []string{"Symbol", "Action", "Size", "Priority", "Confidence", "Source", "Rationale"},
			Rows:   rows,
		})
	}

	if len(r.Trades) > 0 {
		doc.H2("Trades")
		rows := make([][]string, 0, len(r.Trades))
		for _, t := range r.Trades {
			order, detail := "-", t.Reason
			if t.Request != nil {
				order = t.Request.String()
			}
			if t.OrderID != "" {
				detail = "order " + t.OrderID
			}
			if t.Error != "" {
				detail = t.Error
			}
			rows = append(rows, []string{t.Recommendation.Symbol, string(t.Status), order, Money(t.Price), cell(detail)})
		}
		doc.Table(md.TableSet{Header: []string{"Symbol", "Status", "Order", "Price", "Detail"}, Rows: rows})
	}

	return doc.String()
}

func volatilityCell(r analysis.RiskReport) string {
	if !r.HasVolatility {
		return "n/a"
	}
	return fmt.Sprintf("%.1f", r.Volatility)
}

// SizeOf describes how a recommendation is sized, for display.
func SizeOf(rec models.Recommendation) string {
	switch {
	case rec.Action == models.ActionHold:
		return "-"
	case rec.Quantity.IsPositive():
		return rec.Quantity.String() + " shares"
	case rec.Notional.IsPositive():
		return Money(rec.Notional)
	case rec.Percentage > 0:
		return fmt.Sprintf("%.0f%%", rec.Percentage)
	case rec.TargetWeight > 0:
		return "to " + pct(rec.TargetWeight)
	}
	return "default"
}

// cell keeps free text from breaking a table row.
func cell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", "/")
}

func byWeight(p *models.Portfolio) []models.Position {
	out := append([]models.Position(nil), p.Positions...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].MarketValue.GreaterThan(out[j].MarketValue)
	})
	return out
}

// HTML renders markdown as a standalone page.
func HTML(title, markdown string) (string, error) {
	var body bytes.Buffer
	conv := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := conv.Convert([]byte(markdown), &body); err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	var page strings.Builder
	page.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&page, "<title>%s</title>\n", title)
	page.WriteString(`<style>
body { font-family: Arial, sans-serif; margin: 20px; }
table { border-collapse: collapse; width: 100%; margin-bottom: 20px; }
th, td { border: 1px solid #ddd; padding: 8px; text-align: left; }
th { background-color: #f2f2f2; }
</style>
</head>
<body>
`)
	page.Write(body.Bytes())
	page.WriteString("</body>\n</html>\n")
	return page.String(), nil
}

// Terminal renders the report for a dark terminal.
func Terminal(r *Report) (string, error) {
	out, err := glamour.Render(Markdown(r), "dark")
	if err != nil {
		return "", fmt.Errorf("render terminal report: %w", err)
	}
	return out, nil
}

// Write stores the report under dir as report_<timestamp>.{json,md,html}.
func Write(dir string, r *Report) (Paths, error) {
	base := "report_" + r.GeneratedAt.Format("20060102_150405")
	paths := Paths{
		JSON:     filepath.Join(dir, base+".json"),
		Markdown: filepath.Join(dir, base+".md"),
		HTML:     filepath.Join(dir, base+".html"),
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return Paths{}, fmt.Errorf("encode report: %w", err)
	}
	if err := writeFile(dir, base+".json", data); err != nil {
		return Paths{}, err
	}

	markdown := Markdown(r)
	if err := writeFile(dir, base+".md", []byte(markdown)); err != nil {
		return Paths{}, err
	}

	page, err := HTML("Portfolio Analysis Report - "+r.GeneratedAt.Format("2006-01-02"), markdown)
	if err != nil {
		return Paths{}, err
	}
	if err := writeFile(dir, base+".html", []byte(page)); err != nil {
		return Paths{}, err
	}
	return paths, nil
}

func writeFile(dir, name string, content []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("failed to write file %s: %w", path, err)
	}
	slog.Debug("report written", "path", path)
	return nil
}
