package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/dyike/SchwabAI/internal/models"
)

const portfolioAnalysisTpl = `Analyze the following portfolio and provide insights on its composition, risk, and potential improvements.

{holdings}
{sectors}
{market}
{risk_profile}
Overall Portfolio Metrics:
- Total Account Value: ${account_value}
- Cash Balance: ${cash} ({cash_percent}%)
- Total Unrealized P/L: ${unrealized_pl}

Please analyze this portfolio and provide:

1. Overall portfolio assessment (diversification, sector balance, risk level)
2. Key strengths and vulnerabilities
3. Positions that may need attention (overweight, underperforming, high risk)
4. Recommendations for rebalancing or risk reduction
5. Suggestions for capital deployment (for available cash)

Use these headings: Portfolio Assessment, Strengths, Vulnerabilities, Positions Needing Attention, Rebalancing Recommendations, Cash Deployment.
Focus on a risk-averse approach that prioritizes capital preservation while still seeking reasonable returns.`

const stockAnalysisTpl = `Analyze {symbol} from a risk-averse investor's perspective and provide a comprehensive assessment.

{stock}
{news}
{market}
Please provide the following analysis:

1. Overall risk assessment for {symbol} (low, medium, high)
2. Key strengths and vulnerabilities
3. Potential impact of recent news on stock performance
4. How this stock compares to its sector and the broader market
5. Recommendation (strong buy, buy, hold, sell, strong sell) for a risk-averse investor
6. Specific factors a risk-averse investor should monitor

Focus on long-term stability, risk factors, and capital preservation in your analysis.`

const recommendationsTpl = `Based on the portfolio data and analysis, generate specific trade recommendations to optimize this portfolio with a risk-averse approach.

Portfolio Summary:
- Total Account Value: ${account_value}
- Cash Balance: ${cash} ({cash_percent}%)
- Number of Positions: {position_count}

{allocations}
{sectors}
{analysis}
{risk_profile}
Please generate specific trade recommendations including:

1. Positions to sell (partial or full) with rationale
2. Positions to add or increase with rationale
3. Specific allocation percentages or amounts for each recommendation
4. Order of priority for these trades

Format each recommendation on its own line as:
- ACTION (BUY/SELL/HOLD): SYMBOL, AMOUNT or PERCENTAGE, RATIONALE

Focus on addressing overexposures, reducing concentrated risks, and enhancing diversification while maintaining a risk-averse approach. Limit any single position to {max_position}% of the account.`

// render formats a system message and a user template with eino's FString
// templating and returns them as a Request.
func render(ctx context.Context, userTpl string, vars map[string]any) (Request, error) {
	tpl := prompt.FromMessages(schema.FString,
		schema.SystemMessage("{system_message}"),
		schema.UserMessage(userTpl),
	)
	vars["system_message"] = DefaultSystemPrompt
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return Request{}, fmt.Errorf("format prompt: %w", err)
	}
	if len(msgs) != 2 {
		return Request{}, fmt.Errorf("format prompt: expected 2 messages, got %d", len(msgs))
	}
	return Request{System: msgs[0].Content, Prompt: msgs[1].Content}, nil
}

func byWeight(p *models.Portfolio) []models.Position {
	out := append([]models.Position(nil), p.Positions...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].MarketValue.GreaterThan(out[j].MarketValue)
	})
	return out
}

func holdingsBlock(p *models.Portfolio) string {
	var sb strings.Builder
	sb.WriteString("Portfolio Holdings:\n")
	for _, pos := range byWeight(p) {
		fmt.Fprintf(&sb, "- %s: %s shares, Current Price: $%s, Market Value: $%s, Weight: %.2f%%, Unrealized P/L: $%s (%.2f%%)\n",
			pos.Symbol, pos.Quantity.String(), pos.CurrentPrice.StringFixed(2), pos.MarketValue.StringFixed(2),
			p.Weight(pos.Symbol), pos.UnrealizedPL().StringFixed(2), pos.UnrealizedPLPercent())
	}
	return sb.String()
}

func sectorsBlock(p *models.Portfolio) string {
	exposure := p.SectorExposure()
	names := make([]string, 0, len(exposure))
	for s := range exposure {
		names = append(names, s)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("Sector Allocations:\n")
	for _, s := range names {
		fmt.Fprintf(&sb, "- %s: %.2f%%\n", s, exposure[s])
	}
	return sb.String()
}

func marketBlock(md *models.MarketData) string {
	var sb strings.Builder
	sb.WriteString("Market Data:\n")
	if md == nil || len(md.Indices) == 0 {
		sb.WriteString("- unavailable\n")
		return sb.String()
	}
	names := make([]string, 0, len(md.Indices))
	for n := range md.Indices {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		q := md.Indices[n]
		fmt.Fprintf(&sb, "- %s: %s (%.2f%%)\n", n, q.Price.StringFixed(2), q.ChangePercent)
	}
	return sb.String()
}

func riskBlock(profile models.RiskProfile) string {
	return fmt.Sprintf("Risk Profile:\n- Risk Tolerance: %d/10\n- Max Position Size: %.1f%%\n- Max Sector Exposure: %.1f%%\n- Min Cash Reserve: %.1f%%\n",
		profile.Tolerance, profile.MaxPositionPct, profile.MaxSectorPct, profile.MinCashReservePct)
}

func totalUnrealized(p *models.Portfolio) string {
	sum := p.InvestedValue()
	for _, pos := range p.Positions {
		sum = sum.Sub(pos.CostBasis())
	}
	return sum.StringFixed(2)
}

func PortfolioAnalysisPrompt(ctx context.Context, p *models.Portfolio, md *models.MarketData, profile models.RiskProfile) (Request, error) {
	return render(ctx, portfolioAnalysisTpl, map[string]any{
		"holdings":      holdingsBlock(p),
		"sectors":       sectorsBlock(p),
		"market":        marketBlock(md),
		"risk_profile":  riskBlock(profile),
		"account_value": p.AccountValue.StringFixed(2),
		"cash":          p.Cash.StringFixed(2),
		"cash_percent":  fmt.Sprintf("%.2f", p.CashPercent()),
		"unrealized_pl": totalUnrealized(p),
	})
}

func StockAnalysisPrompt(ctx context.Context, symbol string, p *models.Portfolio, md *models.MarketData) (Request, error) {
	var stock strings.Builder
	fmt.Fprintf(&stock, "Stock Data for %s:\n", symbol)
	if q, ok := md.Quotes[symbol]; ok && md.Available(symbol) {
		fmt.Fprintf(&stock, "- Current Price: $%s (%.2f%% today, via %s)\n", q.Price.StringFixed(2), q.ChangePercent, q.Provider)
	} else {
		stock.WriteString("- Current Price: unavailable\n")
	}
	if bars := md.History[symbol]; len(bars) > 0 {
		lo, hi := bars[0].Low, bars[0].High
		for _, b := range bars[1:] {
			if b.Low.LessThan(lo) {
				lo = b.Low
			}
			if b.High.GreaterThan(hi) {
				hi = b.High
			}
		}
		fmt.Fprintf(&stock, "- %d-Day Range: $%s - $%s\n", len(bars), lo.StringFixed(2), hi.StringFixed(2))
	}
	if pos, ok := p.Position(symbol); ok {
		fmt.Fprintf(&stock, "- Sector: %s\n- Portfolio Weight: %.2f%%\n", pos.SectorName(), p.Weight(symbol))
	}

	var news strings.Builder
	fmt.Fprintf(&news, "Recent News for %s:\n", symbol)
	articles := md.News[symbol]
	if len(articles) == 0 {
		news.WriteString("- none\n")
	}
	for i, a := range articles {
		if i == 10 {
			break
		}
		fmt.Fprintf(&news, "- %s: %s\n", a.Published.Format("2006-01-02"), a.Headline)
		if a.Summary != "" {
			fmt.Fprintf(&news, "  Summary: %s\n", a.Summary)
		}
	}

	return render(ctx, stockAnalysisTpl, map[string]any{
		"symbol": symbol,
		"stock":  stock.String(),
		"news":   news.String(),
		"market": marketBlock(md),
	})
}

func RecommendationsPrompt(ctx context.Context, p *models.Portfolio, analysis Analysis, profile models.RiskProfile) (Request, error) {
	var alloc strings.Builder
	alloc.WriteString("Current Allocations:\n")
	for i, pos := range byWeight(p) {
		if i == 10 {
			break
		}
		fmt.Fprintf(&alloc, "- %s: %.2f%%\n", pos.Symbol, p.Weight(pos.Symbol))
	}

	var an strings.Builder
	an.WriteString("Analysis Summary:\n")
	if analysis.Assessment != "" {
		fmt.Fprintf(&an, "Portfolio Assessment: %s\n", analysis.Assessment)
	}
	if len(analysis.Attention) > 0 {
		an.WriteString("Positions Needing Attention:\n")
		for _, a := range analysis.Attention {
			fmt.Fprintf(&an, "- %s: %s\n", a.Symbol, a.Reason)
		}
	}

	return render(ctx, recommendationsTpl, map[string]any{
		"account_value":  p.AccountValue.StringFixed(2),
		"cash":           p.Cash.StringFixed(2),
		"cash_percent":   fmt.Sprintf("%.2f", p.CashPercent()),
		"position_count": len(p.Positions),
		"allocations":    alloc.String(),
		"sectors":        sectorsBlock(p),
		"analysis":       an.String(),
		"risk_profile":   riskBlock(profile),
		"max_position":   fmt.Sprintf("%.1f", profile.MaxPositionPct),
	})
}
