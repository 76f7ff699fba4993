package report

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/dyike/SchwabAI/internal/analysis"
	"github.com/dyike/SchwabAI/internal/llm"
	"github.com/dyike/SchwabAI/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *Report {
	p := models.NewPortfolio("acct", []models.Position{
		{
			Symbol:       "AAPL",
			Quantity:     decimal.NewFromInt(10),
			AveragePrice: decimal.NewFromInt(150),
			CurrentPrice: decimal.NewFromInt(200),
			MarketValue:  decimal.NewFromInt(2000),
			Sector:       "Technology",
		},
	}, decimal.NewFromInt(8000))

	md := models.NewMarketData()
	md.Indices["^GSPC"] = models.Quote{Symbol: "^GSPC", Price: decimal.RequireFromString("5100.5"), ChangePercent: 0.42}

	return &Report{
		GeneratedAt: time.Date(2024, 3, 1, 15, 30, 0, 0, time.UTC),
		RunID:       "run-1",
		DryRun:      true,
		Portfolio:   p,
		Metrics:     analysis.Metrics(p),
		Risk:        analysis.Assess(p, nil),
		Market:      md,
		LLMProvider: "openai",
		Analysis: &llm.Analysis{
			Assessment: "Concentrated in one name.",
			Strengths:  []string{"Large cash buffer"},
			Attention:  []llm.AttentionItem{{Symbol: "AAPL", Reason: "20% of the account"}},
		},
		Recommendations: []models.Recommendation{
			{Symbol: "AAPL", Action: models.ActionSell, Quantity: decimal.NewFromInt(5), Priority: 10, Confidence: 1, Source: "engine", Rationale: "Position | too large"},
		},
		Trades: []models.TradeResult{{
			Recommendation: models.Recommendation{Symbol: "AAPL", Action: models.ActionSell},
			Request:        &models.OrderRequest{Symbol: "AAPL", Side: models.SideSell, Quantity: decimal.NewFromInt(5), Type: models.OrderTypeMarket, DryRun: true},
			Status:         models.TradeSimulated,
			Price:          decimal.NewFromInt(200),
		}},
	}
}

func TestMoney(t *testing.T) {
	assert.Equal(t, "$1,234.50", Money(decimal.RequireFromString("1234.5")))
	assert.Equal(t, "$0.00", Money(decimal.Zero))
	assert.Equal(t, "-$42.00", Money(decimal.NewFromInt(-42)))
}

func TestMarkdownSections(t *testing.T) {
	out := Markdown(sampleReport())

	assert.Contains(t, out, "# Portfolio Analysis Report 2024-03-01 15:30")
	assert.Contains(t, out, "dry run")
	for _, h := range []string{"## Portfolio Summary", "## Risk", "## Holdings", "## Sector Allocation", "## Market", "## AI Analysis (openai)", "## Recommendations", "## Trades"} {
		assert.Contains(t, out, h)
	}
	assert.Contains(t, out, "$10,000.00")
	assert.Contains(t, out, "$500.00 (33.33%)")
	assert.Contains(t, out, "S&P 500")
	assert.Contains(t, out, "AAPL: 20% of the account")
	assert.Contains(t, out, "5 shares")
	assert.Contains(t, out, "Position / too large")
	assert.Contains(t, out, "MARKET SELL 5 AAPL")
}

func TestMarkdownSkipsEmptySections(t *testing.T) {
	r := sampleReport()
	r.Analysis = nil
	r.Trades = nil
	r.Market = nil
	out := Markdown(r)
	assert.NotContains(t, out, "AI Analysis")
	assert.NotContains(t, out, "## Trades")
	assert.NotContains(t, out, "## Market")
}

func TestSizeOf(t *testing.T) {
	assert.Equal(t, "-", SizeOf(models.Recommendation{Action: models.ActionHold}))
	assert.Equal(t, "$2,625.00", SizeOf(models.Recommendation{Action: models.ActionBuy, Notional: decimal.NewFromInt(2625)}))
	assert.Equal(t, "25%", SizeOf(models.Recommendation{Action: models.ActionSell, Percentage: 25}))
	assert.Equal(t, "to 5.50%", SizeOf(models.Recommendation{Action: models.ActionBuy, TargetWeight: 5.5}))
	assert.Equal(t, "default", SizeOf(models.Recommendation{Action: models.ActionBuy}))
}

func TestHTMLRendersTables(t *testing.T) {
	page, err := HTML("Report", Markdown(sampleReport()))
	require.NoError(t, err)
	assert.Contains(t, page, "<title>Report</title>")
	assert.Contains(t, page, "<h1")
	assert.Contains(t, page, "<table>")
}

func TestWriteCreatesAllFormats(t *testing.T) {
	dir := t.TempDir() + "/reports"
	paths, err := Write(dir, sampleReport())
	require.NoError(t, err)

	assert.Equal(t, dir+"/report_20240301_153000.json", paths.JSON)
	for _, p := range []string{paths.JSON, paths.Markdown, paths.HTML} {
		info, err := os.Stat(p)
		require.NoError(t, err, p)
		assert.Positive(t, info.Size())
	}

	data, err := os.ReadFile(paths.JSON)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "run-1", decoded["run_id"])
	assert.Equal(t, true, decoded["dry_run"])
}

func TestTerminal(t *testing.T) {
	out, err := Terminal(sampleReport())
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}
