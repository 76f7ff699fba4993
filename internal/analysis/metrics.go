// Package analysis computes portfolio composition metrics and per-position
// risk scores from a portfolio snapshot and price history.
package analysis

import (
	"math"
	"sort"

	"github.com/dyike/SchwabAI/internal/models"
	"github.com/shopspring/decimal"
)

type Holding struct {
	Symbol string  `json:"symbol"`
	Weight float64 `json:"weight"`
}

// PortfolioMetrics describes composition. Weights are percents of the
// account value; HHI uses fractional weights so it lies in 0..1.
type PortfolioMetrics struct {
	PositionCount        int                `json:"position_count"`
	AccountValue         decimal.Decimal    `json:"account_value"`
	InvestedValue        decimal.Decimal    `json:"invested_value"`
	Cash                 decimal.Decimal    `json:"cash"`
	CashPercent          float64            `json:"cash_percent"`
	AverageWeight        float64            `json:"average_weight"`
	LargestWeight        float64            `json:"largest_weight"`
	SmallestWeight       float64            `json:"smallest_weight"`
	WeightStdDev         float64            `json:"weight_std_dev"`
	HHI                  float64            `json:"hhi"`
	DiversificationScore float64            `json:"diversification_score"`
	SectorAllocation     map[string]float64 `json:"sector_allocation"`
	SectorHHI            float64            `json:"sector_hhi"`
	TopHoldings          []Holding          `json:"top_holdings"`
	UnrealizedPL         decimal.Decimal    `json:"unrealized_pl"`
	UnrealizedPLPercent  float64            `json:"unrealized_pl_percent"`
}

func weights(p *models.Portfolio) []float64 {
	out := make([]float64, 0, len(p.Positions))
	for _, pos := range p.Positions {
		out = append(out, p.Weight(pos.Symbol))
	}
	return out
}

// popStdDev is the population standard deviation.
func popStdDev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return math.Sqrt(ss / float64(len(xs)))
}

func hhi(percents []float64) float64 {
	var h float64
	for _, w := range percents {
		h += (w / 100) * (w / 100)
	}
	return h
}

func Metrics(p *models.Portfolio) PortfolioMetrics {
	m := PortfolioMetrics{
		PositionCount:    len(p.Positions),
		AccountValue:     p.AccountValue,
		InvestedValue:    p.InvestedValue(),
		Cash:             p.Cash,
		CashPercent:      p.CashPercent(),
		SectorAllocation: p.SectorExposure(),
		UnrealizedPL:     decimal.Zero,
	}
	if len(p.Positions) == 0 {
		return m
	}

	ws := weights(p)
	m.LargestWeight, m.SmallestWeight = ws[0], ws[0]
	for _, w := range ws {
		m.AverageWeight += w
		m.LargestWeight = math.Max(m.LargestWeight, w)
		m.SmallestWeight = math.Min(m.SmallestWeight, w)
	}
	m.AverageWeight /= float64(len(ws))
	m.WeightStdDev = popStdDev(ws)
	m.HHI = hhi(ws)
	m.DiversificationScore = 1 - m.HHI

	sectors := make([]float64, 0, len(m.SectorAllocation))
	for _, v := range m.SectorAllocation {
		sectors = append(sectors, v)
	}
	m.SectorHHI = hhi(sectors)

	cost := decimal.Zero
	for _, pos := range p.Positions {
		m.UnrealizedPL = m.UnrealizedPL.Add(pos.UnrealizedPL())
		cost = cost.Add(pos.CostBasis())
		m.TopHoldings = append(m.TopHoldings, Holding{Symbol: pos.Symbol, Weight: p.Weight(pos.Symbol)})
	}
	if cost.IsPositive() {
		m.UnrealizedPLPercent = m.UnrealizedPL.Div(cost).Mul(decimal.NewFromInt(100)).InexactFloat64()
	}
	sort.SliceStable(m.TopHoldings, func(i, j int) bool {
		if m.TopHoldings[i].Weight != m.TopHoldings[j].Weight {
			return m.TopHoldings[i].Weight > m.TopHoldings[j].Weight
		}
		return m.TopHoldings[i].Symbol < m.TopHoldings[j].Symbol
	})
	if len(m.TopHoldings) > 5 {
		m.TopHoldings = m.TopHoldings[:5]
	}
	return m
}
