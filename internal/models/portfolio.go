package models

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

const UnknownSector = "Unknown"

var hundred = decimal.NewFromInt(100)

// Position is a held quantity of one security. Snapshots are never mutated
// after the broker returns them.
type Position struct {
	Symbol       string          `json:"symbol"`
	Quantity     decimal.Decimal `json:"quantity"`
	AveragePrice decimal.Decimal `json:"average_price"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	MarketValue  decimal.Decimal `json:"market_value"`
	AssetType    string          `json:"asset_type"`
	Sector       string          `json:"sector"`
}

func (p Position) CostBasis() decimal.Decimal {
	return p.AveragePrice.Mul(p.Quantity)
}

func (p Position) UnrealizedPL() decimal.Decimal {
	return p.MarketValue.Sub(p.CostBasis())
}

// UnrealizedPLPercent is zero when the cost basis is zero.
func (p Position) UnrealizedPLPercent() float64 {
	cost := p.CostBasis()
	if cost.IsZero() {
		return 0
	}
	return p.UnrealizedPL().Div(cost).Mul(hundred).InexactFloat64()
}

func (p Position) SectorName() string {
	if p.Sector == "" {
		return UnknownSector
	}
	return p.Sector
}

// Portfolio is one account snapshot.
type Portfolio struct {
	AccountID    string          `json:"account_id"`
	Positions    []Position      `json:"positions"`
	Cash         decimal.Decimal `json:"cash"`
	AccountValue decimal.Decimal `json:"account_value"`
	FetchedAt    time.Time       `json:"fetched_at"`
}

// NewPortfolio derives the account value from cash plus position market values.
func NewPortfolio(accountID string, positions []Position, cash decimal.Decimal) *Portfolio {
	p := &Portfolio{
		AccountID: accountID,
		Positions: append([]Position(nil), positions...),
		Cash:      cash,
		FetchedAt: time.Now(),
	}
	p.AccountValue = cash.Add(p.InvestedValue())
	return p
}

func (p *Portfolio) InvestedValue() decimal.Decimal {
	total := decimal.Zero
	for _, pos := range p.Positions {
		total = total.Add(pos.MarketValue)
	}
	return total
}

func (p *Portfolio) Position(symbol string) (Position, bool) {
	for _, pos := range p.Positions {
		if pos.Symbol == symbol {
			return pos, true
		}
	}
	return Position{}, false
}

// Held reports whether the account holds a positive quantity of symbol.
func (p *Portfolio) Held(symbol string) bool {
	pos, ok := p.Position(symbol)
	return ok && pos.Quantity.IsPositive()
}

// Weight is the position value as a percent of the account value.
func (p *Portfolio) Weight(symbol string) float64 {
	pos, ok := p.Position(symbol)
	if !ok {
		return 0
	}
	return p.percentOf(pos.MarketValue)
}

func (p *Portfolio) CashPercent() float64 {
	return p.percentOf(p.Cash)
}

func (p *Portfolio) SectorValue(sector string) decimal.Decimal {
	total := decimal.Zero
	for _, pos := range p.Positions {
		if pos.SectorName() == sector {
			total = total.Add(pos.MarketValue)
		}
	}
	return total
}

// SectorExposure maps each sector to its percent of the account value.
func (p *Portfolio) SectorExposure() map[string]float64 {
	out := make(map[string]float64)
	for _, pos := range p.Positions {
		out[pos.SectorName()] += p.percentOf(pos.MarketValue)
	}
	return out
}

// Symbols returns held symbols sorted alphabetically.
func (p *Portfolio) Symbols() []string {
	out := make([]string, 0, len(p.Positions))
	for _, pos := range p.Positions {
		out = append(out, pos.Symbol)
	}
	sort.Strings(out)
	return out
}

// WithQuotes returns a new snapshot whose positions are revalued at the quoted
// prices. Symbols without a quote keep their broker valuation.
func (p *Portfolio) WithQuotes(quotes map[string]Quote) *Portfolio {
	positions := make([]Position, len(p.Positions))
	for i, pos := range p.Positions {
		if q, ok := quotes[pos.Symbol]; ok && q.Price.IsPositive() {
			pos.CurrentPrice = q.Price
			pos.MarketValue = q.Price.Mul(pos.Quantity)
		}
		positions[i] = pos
	}
	next := NewPortfolio(p.AccountID, positions, p.Cash)
	next.FetchedAt = p.FetchedAt
	return next
}

func (p *Portfolio) percentOf(v decimal.Decimal) float64 {
	if !p.AccountValue.IsPositive() {
		return 0
	}
	return v.Div(p.AccountValue).Mul(hundred).InexactFloat64()
}

// Apply returns the snapshot after a fill of qty shares of symbol at price.
// Bought symbols that were not held start with no sector.
func (p *Portfolio) Apply(side Side, symbol string, qty, price decimal.Decimal) *Portfolio {
	cost := qty.Mul(price)
	cash := p.Cash
	positions := make([]Position, 0, len(p.Positions)+1)
	found := false
	for _, pos := range p.Positions {
		if pos.Symbol != symbol {
			positions = append(positions, pos)
			continue
		}
		found = true
		switch side {
		case SideBuy:
			total := pos.CostBasis().Add(cost)
			pos.Quantity = pos.Quantity.Add(qty)
			pos.AveragePrice = total.Div(pos.Quantity)
		case SideSell:
			pos.Quantity = pos.Quantity.Sub(qty)
		}
		if !pos.Quantity.IsPositive() {
			continue
		}
		pos.CurrentPrice = price
		pos.MarketValue = price.Mul(pos.Quantity)
		positions = append(positions, pos)
	}
	if !found && side == SideBuy {
		positions = append(positions, Position{
			Symbol:       symbol,
			Quantity:     qty,
			AveragePrice: price,
			CurrentPrice: price,
			MarketValue:  cost,
		})
	}
	switch side {
	case SideBuy:
		cash = cash.Sub(cost)
	case SideSell:
		cash = cash.Add(cost)
	}
	next := NewPortfolio(p.AccountID, positions, cash)
	next.FetchedAt = p.FetchedAt
	return next
}
