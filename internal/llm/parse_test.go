package llm

import (
	"testing"

	"github.com/dyike/SchwabAI/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecommendations(t *testing.T) {
	text := `Here are my recommendations:

- SELL: AAPL, 25%, position exceeds the 10% limit
- **BUY**: VTI, $5,000, broad market diversification
1. BUY (new position): BND, 10 shares, add fixed income
* HOLD: MSFT, steady compounder
- ACTION (BUY/SELL): SYMBOL, AMOUNT or PERCENTAGE, RATIONALE
Buy: I would wait for a pullback.
- sell: TSLA, 50% of position, high volatility`

	recs := ParseRecommendations(text)
	require.Len(t, recs, 5)

	assert.Equal(t, "AAPL", recs[0].Symbol)
	assert.Equal(t, models.ActionSell, recs[0].Action)
	assert.Equal(t, 25.0, recs[0].Percentage)
	assert.Equal(t, "position exceeds the 10% limit", recs[0].Rationale)
	assert.Equal(t, "llm", recs[0].Source)
	assert.Equal(t, DefaultLLMConfidence, recs[0].Confidence)

	assert.Equal(t, "VTI", recs[1].Symbol)
	assert.Equal(t, models.ActionBuy, recs[1].Action)
	assert.True(t, decimal.NewFromInt(5000).Equal(recs[1].Notional), recs[1].Notional.String())
	assert.Equal(t, "broad market diversification", recs[1].Rationale)

	assert.Equal(t, "BND", recs[2].Symbol)
	assert.True(t, decimal.NewFromInt(10).Equal(recs[2].Quantity))
	assert.Equal(t, "add fixed income", recs[2].Rationale)

	assert.Equal(t, "MSFT", recs[3].Symbol)
	assert.Equal(t, models.ActionHold, recs[3].Action)
	assert.Equal(t, "steady compounder", recs[3].Rationale)
	assert.True(t, recs[3].Quantity.IsZero())

	assert.Equal(t, "TSLA", recs[4].Symbol)
	assert.Equal(t, 50.0, recs[4].Percentage)
	assert.Equal(t, "high volatility", recs[4].Rationale)
}

func TestParseRecommendationsEmpty(t *testing.T) {
	assert.Empty(t, ParseRecommendations(""))
	assert.Empty(t, ParseRecommendations("The market looks stable; no trades today."))
}

func TestParseAnalysis(t *testing.T) {
	text := `## Portfolio Assessment
The portfolio is concentrated in technology.
Overall risk is moderate.

## Strengths
- Low cost index exposure
- Healthy cash buffer
  that can absorb drawdowns

## Vulnerabilities
- Tech concentration

## Positions Needing Attention
- AAPL: 18% of the account, above the position limit
- **NVDA**: high volatility
- General comment without a symbol

## Rebalancing Recommendations
1. Trim AAPL toward 10%
2. Add bonds

## Cash Deployment
- Deploy half of the excess cash into VTI`

	a := ParseAnalysis(text)
	assert.Equal(t, text, a.Raw)
	assert.Equal(t, "The portfolio is concentrated in technology. Overall risk is moderate.", a.Assessment)
	assert.Equal(t, []string{"Low cost index exposure", "Healthy cash buffer that can absorb drawdowns"}, a.Strengths)
	assert.Equal(t, []string{"Tech concentration"}, a.Vulnerabilities)
	assert.Equal(t, []AttentionItem{
		{Symbol: "AAPL", Reason: "18% of the account, above the position limit"},
		{Symbol: "NVDA", Reason: "high volatility"},
	}, a.Attention)
	assert.Equal(t, []string{"Trim AAPL toward 10%", "Add bonds"}, a.Rebalancing)
	assert.Equal(t, []string{"Deploy half of the excess cash into VTI"}, a.CashDeployment)
}

func TestParseAnalysisInlineHeading(t *testing.T) {
	a := ParseAnalysis("1. Portfolio Assessment: Well diversified.\n2. Strengths: broad ETFs")
	assert.Equal(t, "Well diversified.", a.Assessment)
	assert.Equal(t, []string{"broad ETFs"}, a.Strengths)
}
