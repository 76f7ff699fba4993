package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func holding(symbol, sector string, qty, avg, price float64) Position {
	return Position{
		Symbol:       symbol,
		Quantity:     dec(qty),
		AveragePrice: dec(avg),
		CurrentPrice: dec(price),
		MarketValue:  dec(qty * price),
		Sector:       sector,
	}
}

func samplePortfolio() *Portfolio {
	return NewPortfolio("acct", []Position{
		holding("MSFT", "Technology", 10, 300, 400),
		holding("AAPL", "Technology", 20, 150, 100),
		holding("XOM", "", 10, 100, 100),
	}, dec(3000))
}

func TestPortfolioValuation(t *testing.T) {
	p := samplePortfolio()

	assert.Equal(t, "10000", p.AccountValue.String())
	assert.Equal(t, "7000", p.InvestedValue().String())
	assert.InDelta(t, 40.0, p.Weight("MSFT"), 1e-9)
	assert.InDelta(t, 0.0, p.Weight("NOPE"), 1e-9)
	assert.InDelta(t, 30.0, p.CashPercent(), 1e-9)
	assert.Equal(t, []string{"AAPL", "MSFT", "XOM"}, p.Symbols())
	assert.True(t, p.Held("XOM"))
	assert.False(t, p.Held("NOPE"))
}

func TestPositionPL(t *testing.T) {
	msft := holding("MSFT", "Technology", 10, 300, 400)
	assert.Equal(t, "1000", msft.UnrealizedPL().String())
	assert.InDelta(t, 33.333, msft.UnrealizedPLPercent(), 1e-3)

	free := holding("GIFT", "", 10, 0, 5)
	assert.Zero(t, free.UnrealizedPLPercent())
	assert.Equal(t, UnknownSector, free.SectorName())
}

func TestSectorExposure(t *testing.T) {
	p := samplePortfolio()
	exp := p.SectorExposure()
	assert.InDelta(t, 60.0, exp["Technology"], 1e-9)
	assert.InDelta(t, 10.0, exp[UnknownSector], 1e-9)
	assert.Equal(t, "6000", p.SectorValue("Technology").String())
}

func TestEmptyAccountHasZeroWeights(t *testing.T) {
	p := NewPortfolio("acct", nil, decimal.Zero)
	assert.Zero(t, p.CashPercent())
	assert.Empty(t, p.SectorExposure())
}

func TestWithQuotesRevaluesPositions(t *testing.T) {
	p := samplePortfolio()
	p.FetchedAt = time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	next := p.WithQuotes(map[string]Quote{
		"MSFT": {Symbol: "MSFT", Price: dec(500)},
		"AAPL": {Symbol: "AAPL", Price: decimal.Zero},
	})

	assert.Equal(t, "11000", next.AccountValue.String())
	pos, ok := next.Position("MSFT")
	require.True(t, ok)
	assert.Equal(t, "5000", pos.MarketValue.String())
	aapl, _ := next.Position("AAPL")
	assert.Equal(t, "2000", aapl.MarketValue.String(), "zero quote keeps broker valuation")
	assert.Equal(t, p.FetchedAt, next.FetchedAt)
	assert.Equal(t, "10000", p.AccountValue.String(), "original is untouched")
}

func TestApply(t *testing.T) {
	p := samplePortfolio()

	bought := p.Apply(SideBuy, "AAPL", dec(20), dec(100))
	aapl, _ := bought.Position("AAPL")
	assert.Equal(t, "40", aapl.Quantity.String())
	assert.Equal(t, "125", aapl.AveragePrice.String())
	assert.Equal(t, "1000", bought.Cash.String())
	assert.Equal(t, "10000", bought.AccountValue.String())

	sold := p.Apply(SideSell, "XOM", dec(10), dec(100))
	assert.False(t, sold.Held("XOM"))
	assert.Len(t, sold.Positions, 2)
	assert.Equal(t, "4000", sold.Cash.String())

	opened := p.Apply(SideBuy, "VTI", dec(5), dec(200))
	vti, ok := opened.Position("VTI")
	require.True(t, ok)
	assert.Equal(t, UnknownSector, vti.SectorName())
	assert.InDelta(t, 10.0, opened.Weight("VTI"), 1e-9)
	assert.Equal(t, "2000", opened.Cash.String())

	assert.Len(t, p.Positions, 3, "original is untouched")
	assert.Equal(t, "3000", p.Cash.String())
}

func TestParseAction(t *testing.T) {
	for in, want := range map[string]Action{"BUY": ActionBuy, " sell ": ActionSell, "Hold": ActionHold} {
		got, err := ParseAction(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseAction("short")
	assert.Error(t, err)
}

func TestOrderRequestString(t *testing.T) {
	market := OrderRequest{Symbol: "AAPL", Side: SideBuy, Quantity: dec(3), Type: OrderTypeMarket}
	assert.Equal(t, "MARKET BUY 3 AAPL", market.String())

	limit := OrderRequest{Symbol: "AAPL", Side: SideSell, Quantity: dec(3), Type: OrderTypeLimit, LimitPrice: dec(101.5)}
	assert.Equal(t, "LIMIT SELL 3 AAPL @ 101.50", limit.String())
}
