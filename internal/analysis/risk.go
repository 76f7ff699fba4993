package analysis

import (
	"math"

	"github.com/dyike/SchwabAI/internal/models"
)

const tradingDays = 252

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

func levelOf(score float64) RiskLevel {
	switch {
	case score >= 67:
		return RiskHigh
	case score >= 34:
		return RiskMedium
	}
	return RiskLow
}

// PositionRisk scores one holding on a 0..100 scale, higher is riskier.
// Volatility is annualized and only meaningful when HasVolatility is set.
type PositionRisk struct {
	Symbol        string    `json:"symbol"`
	Weight        float64   `json:"weight"`
	SectorPct     float64   `json:"sector_pct"`
	Volatility    float64   `json:"volatility"`
	HasVolatility bool      `json:"has_volatility"`
	Score         float64   `json:"score"`
	Level         RiskLevel `json:"level"`
}

// RiskReport holds portfolio-level scores, each 0..100.
type RiskReport struct {
	Overall         float64        `json:"overall"`
	Diversification float64        `json:"diversification"`
	Concentration   float64        `json:"concentration"`
	Sector          float64        `json:"sector"`
	Volatility      float64        `json:"volatility"`
	HasVolatility   bool           `json:"has_volatility"`
	Level           RiskLevel      `json:"level"`
	Positions       []PositionRisk `json:"positions"`
}

// Volatility returns the annualized sample standard deviation of daily
// close-to-close returns. At least three bars are required.
func Volatility(bars []models.Bar) (float64, bool) {
	if len(bars) < 3 {
		return 0, false
	}
	returns := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close.InexactFloat64()
		if prev <= 0 {
			continue
		}
		returns = append(returns, bars[i].Close.InexactFloat64()/prev-1)
	}
	if len(returns) < 2 {
		return 0, false
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	var ss float64
	for _, r := range returns {
		ss += (r - mean) * (r - mean)
	}
	return math.Sqrt(ss/float64(len(returns)-1)) * math.Sqrt(tradingDays), true
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// volatilityScore maps 0% to 0, market-like 20% to 50 and 40% or more to 100.
func volatilityScore(vol float64) float64 {
	return clamp(vol/0.4*100, 0, 100)
}

func sizeScore(weight float64) float64 {
	switch {
	case weight > 15:
		return 100
	case weight > 10:
		return 50 + (weight-10)*10
	case weight > 5:
		return (weight - 5) * 10
	}
	return 0
}

func sectorScore(pct float64) float64 {
	if pct > 25 {
		return 50 + (pct-25)*2
	}
	return pct / 25 * 50
}

// normalizedHHI rescales HHI so an equal split scores 0 and a single holding 100.
func normalizedHHI(percents []float64) float64 {
	n := len(percents)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return 100
	}
	minH := 1 / float64(n)
	return clamp((hhi(percents)-minH)/(1-minH)*100, 0, 100)
}

func diversificationRisk(p *models.Portfolio) float64 {
	n := len(p.Positions)
	if n == 0 {
		return 0
	}
	var base float64
	switch {
	case n >= 20:
		base = 0
	case n >= 15:
		base = 20
	case n >= 10:
		base = 40
	case n >= 5:
		base = 60
	default:
		base = 80
	}
	types := make(map[string]struct{})
	for _, pos := range p.Positions {
		types[pos.AssetType] = struct{}{}
	}
	stdFactor := math.Min(popStdDev(weights(p))*2, 20)
	typeFactor := math.Max(0, 20-float64(len(types))*5)
	return math.Min(base+stdFactor+typeFactor, 100)
}

func concentrationRisk(p *models.Portfolio) float64 {
	if len(p.Positions) == 0 {
		return 0
	}
	ws := weights(p)
	score := normalizedHHI(ws)
	for _, w := range ws {
		if w > 10 {
			score += (w - 10) * 2
		}
	}
	return math.Min(score, 100)
}

func sectorRisk(p *models.Portfolio) float64 {
	if len(p.Positions) == 0 {
		return 0
	}
	exposure := p.SectorExposure()
	pcts := make([]float64, 0, len(exposure))
	for _, v := range exposure {
		pcts = append(pcts, v)
	}
	score := normalizedHHI(pcts)
	for _, v := range pcts {
		if v > 25 {
			score += (v - 25) * 3
		}
	}
	return math.Min(score, 100)
}

// Assess scores the portfolio and every position. Positions without enough
// history are scored at a neutral volatility of 50.
func Assess(p *models.Portfolio, history map[string][]models.Bar) RiskReport {
	r := RiskReport{
		Diversification: diversificationRisk(p),
		Concentration:   concentrationRisk(p),
		Sector:          sectorRisk(p),
	}
	exposure := p.SectorExposure()

	var weightedVol, coveredWeight float64
	for _, pos := range p.Positions {
		pr := PositionRisk{
			Symbol:    pos.Symbol,
			Weight:    p.Weight(pos.Symbol),
			SectorPct: exposure[pos.SectorName()],
		}
		volScore := 50.0
		if vol, ok := Volatility(history[pos.Symbol]); ok {
			pr.Volatility, pr.HasVolatility = vol, true
			volScore = volatilityScore(vol)
			weightedVol += pr.Weight / 100 * vol
			coveredWeight += pr.Weight / 100
		}
		pr.Score = math.Min(0.4*sizeScore(pr.Weight)+0.4*volScore+0.2*sectorScore(pr.SectorPct), 100)
		pr.Level = levelOf(pr.Score)
		r.Positions = append(r.Positions, pr)
	}

	if coveredWeight > 0 {
		r.HasVolatility = true
		r.Volatility = volatilityScore(weightedVol / coveredWeight)
		r.Overall = 0.25*r.Diversification + 0.25*r.Concentration + 0.2*r.Sector + 0.3*r.Volatility
	} else {
		r.Overall = 0.35*r.Diversification + 0.35*r.Concentration + 0.3*r.Sector
	}
	r.Level = levelOf(r.Overall)
	return r
}

// Position returns the risk entry for symbol.
func (r RiskReport) Position(symbol string) (PositionRisk, bool) {
	for _, pr := range r.Positions {
		if pr.Symbol == symbol {
			return pr, true
		}
	}
	return PositionRisk{}, false
}
