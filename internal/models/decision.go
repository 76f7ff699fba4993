package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// ParseAction accepts buy/sell/hold in any case.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return ActionBuy, nil
	case "sell":
		return ActionSell, nil
	case "hold":
		return ActionHold, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// Recommendation is a proposed trade prior to validation. Exactly one of
// Quantity, Notional, Percentage or TargetWeight is normally set; all zero
// means the validator picks a default size.
type Recommendation struct {
	Symbol       string          `json:"symbol"`
	Action       Action          `json:"action"`
	Quantity     decimal.Decimal `json:"quantity"`
	Notional     decimal.Decimal `json:"notional"`
	Percentage   float64         `json:"percentage"`
	TargetWeight float64         `json:"target_weight"`
	Rationale    string          `json:"rationale"`
	Confidence   float64         `json:"confidence"`
	Priority     int             `json:"priority"`
	Source       string          `json:"source"`
}

// RiskProfile is loaded once from configuration and read-only afterwards.
type RiskProfile struct {
	Tolerance         int     `json:"tolerance"`
	MaxPositionPct    float64 `json:"max_position_pct"`
	MaxSectorPct      float64 `json:"max_sector_pct"`
	MinCashReservePct float64 `json:"min_cash_reserve_pct"`
	MaxTrades         int     `json:"max_trades"`
}

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

type OrderRequest struct {
	Symbol     string          `json:"symbol"`
	Side       Side            `json:"side"`
	Quantity   decimal.Decimal `json:"quantity"`
	Type       OrderType       `json:"type"`
	LimitPrice decimal.Decimal `json:"limit_price,omitempty"`
	DryRun     bool            `json:"dry_run"`
}

func (o OrderRequest) String() string {
	s := fmt.Sprintf("%s %s %s %s", o.Type, o.Side, o.Quantity.String(), o.Symbol)
	if o.Type == OrderTypeLimit {
		s += " @ " + o.LimitPrice.StringFixed(2)
	}
	return s
}

type TradeStatus string

const (
	TradeSimulated TradeStatus = "simulated"
	TradeCompleted TradeStatus = "completed"
	TradeFailed    TradeStatus = "failed"
	TradeRejected  TradeStatus = "rejected"
)

// TradeResult records what happened to one recommendation in the executor.
type TradeResult struct {
	Recommendation Recommendation  `json:"recommendation"`
	Request        *OrderRequest   `json:"request,omitempty"`
	Status         TradeStatus     `json:"status"`
	OrderID        string          `json:"order_id,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	Price          decimal.Decimal `json:"price"`
	Err            error           `json:"-"`
	Error          string          `json:"error,omitempty"`
	At             time.Time       `json:"at"`
}
