// Package recommend turns a portfolio snapshot, market data and optional
// LLM suggestions into a ranked list of trade recommendations.
package recommend

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/dyike/SchwabAI/internal/analysis"
	"github.com/dyike/SchwabAI/internal/logging"
	"github.com/dyike/SchwabAI/internal/models"
	"github.com/shopspring/decimal"
)

const (
	SourceEngine = "engine"
	SourceLLM    = "llm"

	RationaleDataUnavailable = "market data unavailable"
)

// Priorities, highest first.
const (
	PriorityOversize  = 10
	PrioritySector    = 9
	PriorityHighRisk  = 8
	PriorityHeuristic = 7
	PriorityRebalance = 6
	PriorityCash      = 5
	PriorityLLM       = 3
)

type Weights struct {
	Diversification float64
	Volatility      float64
	Sentiment       float64
}

var DefaultWeights = Weights{Diversification: 0.5, Volatility: 0.3, Sentiment: 0.2}

type Config struct {
	Weights       Weights
	SellThreshold float64
	BuyThreshold  float64
	// ToleranceShift moves both thresholds per tolerance point above 5.
	ToleranceShift float64
	// CashETF receives excess cash in small portfolios.
	CashETF string
	// ConflictConfidence is the LLM confidence needed to override the heuristic.
	ConflictConfidence float64
}

func DefaultConfig() Config {
	return Config{
		Weights:            DefaultWeights,
		SellThreshold:      0.35,
		BuyThreshold:       -0.35,
		ToleranceShift:     0.03,
		CashETF:            "VTI",
		ConflictConfidence: 0.7,
	}
}

type Option func(*Engine)

func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

type Engine struct {
	cfg    Config
	logger *slog.Logger
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{cfg: DefaultConfig()}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.OrDefault(e.logger)
	return e
}

// CashETF is the symbol the engine may buy with excess cash. Callers include
// it in the market snapshot so it can be priced.
func (e *Engine) CashETF() string { return e.cfg.CashETF }

type Input struct {
	Portfolio  *models.Portfolio
	MarketData *models.MarketData
	Profile    models.RiskProfile
	// LLM holds recommendations parsed from the model; nil when the call failed.
	LLM []models.Recommendation
}

// Generate returns one recommendation per held symbol plus any buys of
// unheld symbols, ordered by priority then symbol. Vendor failures never
// surface as errors: a symbol without market data is held.
func (e *Engine) Generate(ctx context.Context, in Input) []models.Recommendation {
	p, md := in.Portfolio, in.MarketData
	if md == nil {
		md = models.NewMarketData()
	}

	b := newBook()
	anyData := false
	for _, pos := range p.Positions {
		if md.Available(pos.Symbol) {
			anyData = true
			continue
		}
		b.put(models.Recommendation{
			Symbol:    pos.Symbol,
			Action:    models.ActionHold,
			Rationale: RationaleDataUnavailable,
			Source:    SourceEngine,
		})
	}
	if len(p.Positions) > 0 && !anyData {
		e.logger.Warn("no market data for any holding, holding everything")
		return b.sorted()
	}

	risk := analysis.Assess(p, md.History)
	price := func(sym string) decimal.Decimal {
		if q, ok := md.Quotes[sym]; ok && q.Price.IsPositive() {
			return q.Price
		}
		if pos, ok := p.Position(sym); ok {
			return pos.CurrentPrice
		}
		return decimal.Zero
	}

	e.checkPositionSizes(p, in.Profile, price, b)
	e.checkSectors(p, in.Profile, price, b)
	e.checkHighRisk(in.Profile, risk, b)
	e.scoreHoldings(p, md, in.Profile, risk, b)
	e.checkRebalancing(p, b)
	e.checkCash(p, md, in.Profile, b)
	e.mergeLLM(ctx, p, md, in.LLM, b)

	return b.sorted()
}

func ceilShares(value, price decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() {
		return decimal.Zero
	}
	return value.Div(price).Ceil()
}

// checkPositionSizes sells the excess of every position above the limit.
func (e *Engine) checkPositionSizes(p *models.Portfolio, profile models.RiskProfile, price func(string) decimal.Decimal, b *book) {
	limit := p.AccountValue.Mul(decimal.NewFromFloat(profile.MaxPositionPct)).Div(decimal.NewFromInt(100))
	for _, pos := range p.Positions {
		if b.blocked(pos.Symbol) || p.Weight(pos.Symbol) <= profile.MaxPositionPct {
			continue
		}
		px := price(pos.Symbol)
		qty := ceilShares(pos.Quantity.Mul(px).Sub(limit), px)
		if !qty.IsPositive() {
			continue
		}
		if qty.GreaterThan(pos.Quantity) {
			qty = pos.Quantity
		}
		b.offer(models.Recommendation{
			Symbol:     pos.Symbol,
			Action:     models.ActionSell,
			Quantity:   qty,
			Rationale:  fmt.Sprintf("Position is %.1f%% of the account, above the %.1f%% maximum. Reducing to compliance level.", p.Weight(pos.Symbol), profile.MaxPositionPct),
			Confidence: 1,
			Priority:   PriorityOversize,
			Source:     SourceEngine,
		})
	}
}

// checkSectors trims the largest holding of each over-exposed sector, by at
// most half of the position. Unclassified holdings are not a sector.
func (e *Engine) checkSectors(p *models.Portfolio, profile models.RiskProfile, price func(string) decimal.Decimal, b *book) {
	exposure := p.SectorExposure()
	sectors := make([]string, 0, len(exposure))
	for s := range exposure {
		sectors = append(sectors, s)
	}
	sort.Strings(sectors)

	for _, sector := range sectors {
		pct := exposure[sector]
		if sector == models.UnknownSector || pct <= profile.MaxSectorPct {
			continue
		}
		var largest *models.Position
		for i := range p.Positions {
			pos := &p.Positions[i]
			if pos.SectorName() != sector || b.blocked(pos.Symbol) {
				continue
			}
			if largest == nil || pos.MarketValue.GreaterThan(largest.MarketValue) {
				largest = pos
			}
		}
		if largest == nil {
			continue
		}
		excess := p.AccountValue.Mul(decimal.NewFromFloat(pct - profile.MaxSectorPct)).Div(decimal.NewFromInt(100))
		qty := ceilShares(excess, price(largest.Symbol))
		half := largest.Quantity.Div(decimal.NewFromInt(2)).Floor()
		if qty.GreaterThan(half) {
			qty = half
		}
		if !qty.IsPositive() {
			continue
		}
		b.offer(models.Recommendation{
			Symbol:     largest.Symbol,
			Action:     models.ActionSell,
			Quantity:   qty,
			Rationale:  fmt.Sprintf("Sector %s is %.1f%% of the account, above the %.1f%% maximum. Reducing its largest position.", sector, pct, profile.MaxSectorPct),
			Confidence: 0.9,
			Priority:   PrioritySector,
			Source:     SourceEngine,
		})
	}
}

// HighRiskThreshold is the position risk score above which the engine
// reduces a holding; more tolerant profiles accept riskier positions.
func HighRiskThreshold(tolerance int) float64 {
	return 50 + float64(tolerance)*5
}

// checkHighRisk reduces positions whose risk score exceeds what the
// tolerance allows, by the excess in percent capped at half.
func (e *Engine) checkHighRisk(profile models.RiskProfile, risk analysis.RiskReport, b *book) {
	threshold := HighRiskThreshold(profile.Tolerance)
	for _, pr := range risk.Positions {
		if b.blocked(pr.Symbol) || pr.Score <= threshold {
			continue
		}
		reduction := math.Round(math.Min(pr.Score-threshold, 50))
		if reduction <= 0 {
			continue
		}
		b.offer(models.Recommendation{
			Symbol:     pr.Symbol,
			Action:     models.ActionSell,
			Percentage: reduction,
			Rationale:  fmt.Sprintf("Position has a high risk score (%.1f/100). Reducing exposure.", pr.Score),
			Confidence: 0.8,
			Priority:   PriorityHighRisk,
			Source:     SourceEngine,
		})
	}
}

// Score combines the diversification gap, volatility and news sentiment.
// Positive scores favour selling, negative scores favour buying.
func (e *Engine) Score(weight, maxPosition float64, vol float64, hasVol bool, sentiment float64) float64 {
	gap := 0.0
	if maxPosition > 0 {
		gap = clamp((weight-maxPosition)/maxPosition, -1, 1)
	}
	volTerm := 0.0
	if hasVol {
		// Market-level volatility of 20% is neutral.
		volTerm = clamp((vol-0.2)/0.2, -1, 1)
	}
	w := e.cfg.Weights
	return w.Diversification*gap + w.Volatility*volTerm + w.Sentiment*(-clamp(sentiment, -1, 1))
}

func (e *Engine) thresholds(tolerance int) (sell, buy float64) {
	shift := float64(tolerance-5) * e.cfg.ToleranceShift
	return e.cfg.SellThreshold + shift, e.cfg.BuyThreshold + shift
}

func (e *Engine) scoreHoldings(p *models.Portfolio, md *models.MarketData, profile models.RiskProfile, risk analysis.RiskReport, b *book) {
	sellT, buyT := e.thresholds(profile.Tolerance)
	for _, pos := range p.Positions {
		if b.blocked(pos.Symbol) {
			continue
		}
		weight := p.Weight(pos.Symbol)
		pr, _ := risk.Position(pos.Symbol)
		score := e.Score(weight, profile.MaxPositionPct, pr.Volatility, pr.HasVolatility, md.Sentiment[pos.Symbol])
		conf := math.Min(1, math.Abs(score))

		switch {
		case score >= sellT:
			b.offer(models.Recommendation{
				Symbol:     pos.Symbol,
				Action:     models.ActionSell,
				Percentage: math.Round(math.Min(50, score*50)),
				Rationale:  fmt.Sprintf("Weighted score %.2f is above the sell threshold %.2f.", score, sellT),
				Confidence: conf,
				Priority:   PriorityHeuristic,
				Source:     SourceEngine,
			})
		case score <= buyT && weight < profile.MaxPositionPct:
			b.offer(models.Recommendation{
				Symbol:       pos.Symbol,
				Action:       models.ActionBuy,
				TargetWeight: (weight + profile.MaxPositionPct) / 2,
				Rationale:    fmt.Sprintf("Weighted score %.2f is below the buy threshold %.2f.", score, buyT),
				Confidence:   conf,
				Priority:     PriorityHeuristic,
				Source:       SourceEngine,
			})
		default:
			b.offer(models.Recommendation{
				Symbol:     pos.Symbol,
				Action:     models.ActionHold,
				Rationale:  fmt.Sprintf("Weighted score %.2f is within thresholds.", score),
				Confidence: 1 - conf,
				Source:     SourceEngine,
			})
		}
	}
}

// checkRebalancing moves value from the largest to the smallest holding
// when weights are very uneven.
func (e *Engine) checkRebalancing(p *models.Portfolio, b *book) {
	if len(p.Positions) < 3 {
		return
	}
	metrics := analysis.Metrics(p)
	if metrics.WeightStdDev <= 8 {
		return
	}
	var largest, smallest models.Position
	for i, pos := range p.Positions {
		if i == 0 || pos.MarketValue.GreaterThan(largest.MarketValue) {
			largest = pos
		}
		if i == 0 || pos.MarketValue.LessThan(smallest.MarketValue) {
			smallest = pos
		}
	}
	lw, sw := p.Weight(largest.Symbol), p.Weight(smallest.Symbol)
	if sw <= 0 || lw <= 3*sw {
		return
	}
	transfer := math.Round((lw - sw) * 0.2)
	if transfer < 5 {
		return
	}
	notional := p.AccountValue.Mul(decimal.NewFromFloat(transfer)).Div(decimal.NewFromInt(100))
	rationale := fmt.Sprintf("Portfolio weights are uneven (std dev %.1f%%). Rebalancing from largest to smallest position.", metrics.WeightStdDev)
	for _, r := range []models.Recommendation{
		{Symbol: largest.Symbol, Action: models.ActionSell},
		{Symbol: smallest.Symbol, Action: models.ActionBuy},
	} {
		if b.blocked(r.Symbol) {
			continue
		}
		r.Notional = notional
		r.Rationale = rationale
		r.Confidence = 0.6
		r.Priority = PriorityRebalance
		r.Source = SourceEngine
		b.offer(r)
	}
}

// TargetCashPercent is the cash allocation the engine aims for.
func TargetCashPercent(tolerance int) float64 {
	return math.Max(5, 20-float64(tolerance)*1.5)
}

// checkCash deploys half of the cash above target into the broad ETF, or a
// third of it into the smallest holding once the portfolio is large. The
// purchase never takes the position past the max position percent.
func (e *Engine) checkCash(p *models.Portfolio, md *models.MarketData, profile models.RiskProfile, b *book) {
	target := TargetCashPercent(profile.Tolerance)
	cashPct := p.CashPercent()
	if cashPct <= target+10 {
		return
	}
	excess := cashPct - target
	rationale := fmt.Sprintf("Cash allocation (%.1f%%) is above target (%.1f%%).", cashPct, target)

	symbol, share := e.cfg.CashETF, 2.0
	if len(p.Positions) >= 15 {
		symbol = ""
		var smallestWeight float64
		for _, pos := range p.Positions {
			w := p.Weight(pos.Symbol)
			if b.blocked(pos.Symbol) || w >= profile.MaxPositionPct/2 || !md.Available(pos.Symbol) {
				continue
			}
			if symbol == "" || w < smallestWeight {
				symbol, smallestWeight = pos.Symbol, w
			}
		}
		share = 3
	}
	if symbol == "" || b.blocked(symbol) {
		return
	}
	if !md.Available(symbol) {
		e.logger.Info("skipping cash deployment, no quote", "symbol", symbol)
		return
	}
	amount := math.Min(excess/share, profile.MaxPositionPct-p.Weight(symbol))
	if amount <= 0 {
		return
	}
	b.offer(models.Recommendation{
		Symbol:     symbol,
		Action:     models.ActionBuy,
		Notional:   p.AccountValue.Mul(decimal.NewFromFloat(amount)).Div(decimal.NewFromInt(100)).Floor(),
		Rationale:  rationale + " Deploying into a diversified holding.",
		Confidence: 0.7,
		Priority:   PriorityCash,
		Source:     SourceEngine,
	})
}

// mergeLLM folds model suggestions into the book. Agreement raises
// confidence; disagreement replaces the heuristic only for confident
// suggestions and never overrides a limit rule.
func (e *Engine) mergeLLM(ctx context.Context, p *models.Portfolio, md *models.MarketData, recs []models.Recommendation, b *book) {
	for _, rec := range recs {
		if ctx.Err() != nil {
			return
		}
		if !md.Available(rec.Symbol) {
			continue
		}
		rec.Source = SourceLLM
		if rec.Priority == 0 {
			rec.Priority = PriorityLLM
		}

		cur, ok := b.get(rec.Symbol)
		switch {
		case !ok:
			if rec.Action == models.ActionHold || (rec.Action == models.ActionSell && !p.Held(rec.Symbol)) {
				continue
			}
			b.put(rec)
		case cur.Action == rec.Action:
			cur.Confidence = math.Min(1, cur.Confidence+0.2)
			if rec.Rationale != "" {
				cur.Rationale += " LLM agrees: " + rec.Rationale
			}
			b.put(cur)
		case cur.Priority >= PriorityHighRisk:
			e.logger.Debug("LLM suggestion conflicts with a rule, ignored", "symbol", rec.Symbol, "action", rec.Action)
		case rec.Confidence >= e.cfg.ConflictConfidence:
			b.put(rec)
		}
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
