// Package validate checks proposed trades against the static risk limits.
// Validation is a pure function of its inputs.
package validate

import (
	"github.com/dyike/SchwabAI/internal/models"
	"github.com/shopspring/decimal"
)

// Rejection reasons. The first failing rule determines the reason.
const (
	ReasonNotHeld            = "not held"
	ReasonInsufficientShares = "insufficient shares"
	ReasonNoPrice            = "no price"
	ReasonZeroQuantity       = "zero quantity"
	ReasonMaxPosition        = "max position exceeded"
	ReasonMaxSector          = "max sector exceeded"
	ReasonMinCash            = "min cash reserve"
	ReasonMaxTrades          = "max trades reached"
)

const (
	MinQuantity       = 1
	MaxQuantity       = 10000
	DefaultBuyPercent = 5
)

var hundred = decimal.NewFromInt(100)

// Decision is the validator's verdict. Quantity is the resolved share count
// and is zero for holds and for rejections raised before sizing.
type Decision struct {
	Accepted bool            `json:"accepted"`
	Reason   string          `json:"reason,omitempty"`
	Side     models.Side     `json:"side,omitempty"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

func reject(reason string, qty, price decimal.Decimal) Decision {
	return Decision{Reason: reason, Quantity: qty, Price: price}
}

// Validate applies, in order: (a) sells must be of held shares, (b) the
// resulting position must stay within the max position percent, (c) the
// resulting sector exposure must stay within the max sector percent, (d)
// cash after a buy must stay above the reserve, and (e) the session must
// not have reached its trade limit. Holds are accepted and never size an
// order. Holdings without a sector classification are exempt from (c).
func Validate(profile models.RiskProfile, p *models.Portfolio, rec models.Recommendation, tradesSoFar int, price decimal.Decimal) Decision {
	if rec.Action == models.ActionHold {
		return Decision{Accepted: true, Quantity: decimal.Zero, Price: price}
	}

	held, isHeld := p.Position(rec.Symbol)
	isHeld = isHeld && held.Quantity.IsPositive()

	// (a)
	if rec.Action == models.ActionSell && !isHeld {
		return reject(ReasonNotHeld, decimal.Zero, price)
	}
	if !price.IsPositive() {
		return reject(ReasonNoPrice, decimal.Zero, price)
	}

	qty := ResolveQuantity(p, rec, price)
	if qty.LessThan(decimal.NewFromInt(MinQuantity)) {
		return reject(ReasonZeroQuantity, qty, price)
	}
	if rec.Action == models.ActionSell && qty.GreaterThan(held.Quantity) {
		return reject(ReasonInsufficientShares, qty, price)
	}

	cost := qty.Mul(price)
	existing := decimal.Zero
	if isHeld {
		existing = held.Quantity.Mul(price)
	}
	account := p.AccountValue

	side := models.SideBuy
	resulting := existing.Add(cost)
	if rec.Action == models.ActionSell {
		side = models.SideSell
		resulting = existing.Sub(cost)
	}

	// (b)
	if percent(resulting, account) > profile.MaxPositionPct {
		return reject(ReasonMaxPosition, qty, price)
	}

	if rec.Action == models.ActionBuy {
		// (c)
		if isHeld && held.SectorName() != models.UnknownSector {
			sector := p.SectorValue(held.SectorName()).Sub(held.MarketValue).Add(resulting)
			if percent(sector, account) > profile.MaxSectorPct {
				return reject(ReasonMaxSector, qty, price)
			}
		}
		// (d)
		remaining := p.Cash.Sub(cost)
		if remaining.IsNegative() || percent(remaining, account) < profile.MinCashReservePct {
			return reject(ReasonMinCash, qty, price)
		}
	}

	// (e)
	if tradesSoFar >= profile.MaxTrades {
		return reject(ReasonMaxTrades, qty, price)
	}

	return Decision{Accepted: true, Side: side, Quantity: qty, Price: price}
}

// ResolveQuantity sizes a recommendation in whole shares: an explicit
// quantity, else a dollar notional, else a percentage (of cash for buys, of
// the position for sells), else a target weight, else sell everything or buy
// with five percent of cash. The result is capped at MaxQuantity.
func ResolveQuantity(p *models.Portfolio, rec models.Recommendation, price decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() {
		return decimal.Zero
	}
	held, _ := p.Position(rec.Symbol)

	var qty decimal.Decimal
	switch {
	case rec.Quantity.IsPositive():
		qty = rec.Quantity.Floor()
	case rec.Notional.IsPositive():
		qty = rec.Notional.Div(price).Floor()
	case rec.Percentage > 0:
		pct := decimal.NewFromFloat(rec.Percentage).Div(hundred)
		if rec.Action == models.ActionSell {
			qty = held.Quantity.Mul(pct).Floor()
		} else {
			qty = p.Cash.Mul(pct).Div(price).Floor()
		}
	case rec.TargetWeight > 0:
		target := p.AccountValue.Mul(decimal.NewFromFloat(rec.TargetWeight)).Div(hundred)
		diff := target.Sub(held.Quantity.Mul(price))
		if rec.Action == models.ActionSell {
			diff = diff.Neg()
		}
		if diff.IsPositive() {
			qty = diff.Div(price).Floor()
		}
	default:
		if rec.Action == models.ActionSell {
			qty = held.Quantity.Floor()
		} else {
			qty = p.Cash.Mul(decimal.NewFromInt(DefaultBuyPercent)).Div(hundred).Div(price).Floor()
		}
	}

	if qty.GreaterThan(decimal.NewFromInt(MaxQuantity)) {
		qty = decimal.NewFromInt(MaxQuantity)
	}
	return qty
}

func percent(v, total decimal.Decimal) float64 {
	if !total.IsPositive() {
		return 0
	}
	return v.Div(total).Mul(hundred).InexactFloat64()
}
