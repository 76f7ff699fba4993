package validate

import (
	"testing"

	"github.com/dyike/SchwabAI/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func holding(sym, sector string, qty, price float64) models.Position {
	return models.Position{
		Symbol:       sym,
		Quantity:     d(qty),
		AveragePrice: d(price),
		CurrentPrice: d(price),
		MarketValue:  d(qty * price),
		Sector:       sector,
	}
}

var profile = models.RiskProfile{Tolerance: 5, MaxPositionPct: 5, MaxSectorPct: 20, MinCashReservePct: 5, MaxTrades: 5}

// AAPL is 4% of a $10,000 account.
func aaplPortfolio() *models.Portfolio {
	return models.NewPortfolio("acct", []models.Position{
		holding("AAPL", "Technology", 40, 10),
	}, d(9600))
}

func TestBuyAbovePositionLimitRejected(t *testing.T) {
	rec := models.Recommendation{Symbol: "AAPL", Action: models.ActionBuy, TargetWeight: 6}
	dec := Validate(profile, aaplPortfolio(), rec, 0, d(10))

	assert.False(t, dec.Accepted)
	assert.Equal(t, ReasonMaxPosition, dec.Reason)
	assert.True(t, d(20).Equal(dec.Quantity), dec.Quantity.String())
}

func TestSellUnheldRejected(t *testing.T) {
	rec := models.Recommendation{Symbol: "TSLA", Action: models.ActionSell}
	for _, price := range []decimal.Decimal{decimal.Zero, d(250)} {
		dec := Validate(profile, aaplPortfolio(), rec, 0, price)
		assert.False(t, dec.Accepted)
		assert.Equal(t, ReasonNotHeld, dec.Reason)
	}
}

func TestPositionLimitAppliesToSells(t *testing.T) {
	// 20% position, selling 10 of 200 shares still leaves 19%.
	p := models.NewPortfolio("acct", []models.Position{holding("XOM", "Energy", 200, 10)}, d(8000))
	rec := models.Recommendation{Symbol: "XOM", Action: models.ActionSell, Quantity: d(10)}

	dec := Validate(profile, p, rec, 0, d(10))
	assert.False(t, dec.Accepted)
	assert.Equal(t, ReasonMaxPosition, dec.Reason)

	// Selling down to the limit passes.
	rec.Quantity = d(150)
	dec = Validate(profile, p, rec, 0, d(10))
	assert.True(t, dec.Accepted, dec.Reason)
	assert.Equal(t, models.SideSell, dec.Side)
	assert.True(t, d(150).Equal(dec.Quantity))
}

func TestRulesInOrder(t *testing.T) {
	// $10,000 account: MSFT 4%, NVDA 4%, JNJ 4%, 88% cash. Technology is 8%.
	p := models.NewPortfolio("acct", []models.Position{
		holding("MSFT", "Technology", 10, 40),
		holding("NVDA", "Technology", 4, 100),
		holding("JNJ", "Health Care", 4, 100),
	}, d(8800))
	wide := models.RiskProfile{MaxPositionPct: 90, MaxSectorPct: 20, MinCashReservePct: 5, MaxTrades: 2}

	tests := []struct {
		name     string
		profile  models.RiskProfile
		rec      models.Recommendation
		trades   int
		accepted bool
		reason   string
	}{
		{"hold is accepted", wide, models.Recommendation{Symbol: "MSFT", Action: models.ActionHold}, 0, true, ""},
		{"oversell", wide, models.Recommendation{Symbol: "JNJ", Action: models.ActionSell, Quantity: d(5)}, 0, false, ReasonInsufficientShares},
		{"sector limit", wide, models.Recommendation{Symbol: "NVDA", Action: models.ActionBuy, Quantity: d(13)}, 0, false, ReasonMaxSector},
		{"sector within limit", wide, models.Recommendation{Symbol: "NVDA", Action: models.ActionBuy, Quantity: d(12)}, 0, true, ""},
		{"unheld buy skips sector", wide, models.Recommendation{Symbol: "AMD", Action: models.ActionBuy, Quantity: d(30)}, 0, true, ""},
		{"cash reserve", wide, models.Recommendation{Symbol: "VTI", Action: models.ActionBuy, Notional: d(8400)}, 0, false, ReasonMinCash},
		{"cash reserve edge", wide, models.Recommendation{Symbol: "VTI", Action: models.ActionBuy, Notional: d(8300)}, 0, true, ""},
		{"position before cash", profile, models.Recommendation{Symbol: "VTI", Action: models.ActionBuy, Notional: d(9000)}, 0, false, ReasonMaxPosition},
		{"trade limit", wide, models.Recommendation{Symbol: "JNJ", Action: models.ActionSell}, 2, false, ReasonMaxTrades},
		{"sector before trade limit", wide, models.Recommendation{Symbol: "NVDA", Action: models.ActionBuy, Quantity: d(13)}, 2, false, ReasonMaxSector},
		{"sell all", wide, models.Recommendation{Symbol: "JNJ", Action: models.ActionSell}, 1, true, ""},
		{"no price", wide, models.Recommendation{Symbol: "JNJ", Action: models.ActionBuy}, 0, false, ReasonNoPrice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price := d(100)
			if tt.rec.Symbol == "MSFT" {
				price = d(40)
			}
			if tt.name == "no price" {
				price = decimal.Zero
			}
			dec := Validate(tt.profile, p, tt.rec, tt.trades, price)
			assert.Equal(t, tt.accepted, dec.Accepted, dec.Reason)
			assert.Equal(t, tt.reason, dec.Reason)
		})
	}
}

func TestHoldNeverSizesAnOrder(t *testing.T) {
	dec := Validate(profile, aaplPortfolio(), models.Recommendation{Symbol: "AAPL", Action: models.ActionHold, Quantity: d(5)}, 99, d(10))
	assert.True(t, dec.Accepted)
	assert.True(t, dec.Quantity.IsZero())
	assert.Empty(t, dec.Side)
}

func TestValidateIsPure(t *testing.T) {
	p := aaplPortfolio()
	before := *p
	before.Positions = append([]models.Position(nil), p.Positions...)

	recs := []models.Recommendation{
		{Symbol: "AAPL", Action: models.ActionBuy, TargetWeight: 6},
		{Symbol: "AAPL", Action: models.ActionSell, Percentage: 50},
		{Symbol: "TSLA", Action: models.ActionSell},
		{Symbol: "VTI", Action: models.ActionBuy, Quantity: d(3)},
	}
	for _, rec := range recs {
		first := Validate(profile, p, rec, 1, d(10))
		second := Validate(profile, p, rec, 1, d(10))
		assert.Equal(t, first, second)
	}
	assert.Equal(t, before, *p)
}

func TestResolveQuantity(t *testing.T) {
	p := models.NewPortfolio("acct", []models.Position{holding("AAPL", "Technology", 40, 10)}, d(9600))

	tests := []struct {
		name string
		rec  models.Recommendation
		want int64
	}{
		{"explicit", models.Recommendation{Action: models.ActionBuy, Symbol: "AAPL", Quantity: d(7.8)}, 7},
		{"notional", models.Recommendation{Action: models.ActionBuy, Symbol: "AAPL", Notional: d(255)}, 25},
		{"percent of cash", models.Recommendation{Action: models.ActionBuy, Symbol: "AAPL", Percentage: 10}, 96},
		{"percent of position", models.Recommendation{Action: models.ActionSell, Symbol: "AAPL", Percentage: 25}, 10},
		{"target weight buy", models.Recommendation{Action: models.ActionBuy, Symbol: "AAPL", TargetWeight: 5}, 10},
		{"target weight sell", models.Recommendation{Action: models.ActionSell, Symbol: "AAPL", TargetWeight: 1}, 30},
		{"target weight wrong way", models.Recommendation{Action: models.ActionSell, Symbol: "AAPL", TargetWeight: 9}, 0},
		{"default sell", models.Recommendation{Action: models.ActionSell, Symbol: "AAPL"}, 40},
		{"default buy", models.Recommendation{Action: models.ActionBuy, Symbol: "AAPL"}, 48},
		{"capped", models.Recommendation{Action: models.ActionBuy, Symbol: "AAPL", Quantity: d(50000)}, MaxQuantity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveQuantity(p, tt.rec, d(10))
			require.True(t, decimal.NewFromInt(tt.want).Equal(got), "got %s", got)
		})
	}
	assert.True(t, ResolveQuantity(p, models.Recommendation{Action: models.ActionBuy}, decimal.Zero).IsZero())
}
