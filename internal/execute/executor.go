// Package execute turns validated recommendations into broker orders.
package execute

import (
	"context"
	"log/slog"
	"time"

	"github.com/dyike/SchwabAI/internal/broker"
	"github.com/dyike/SchwabAI/internal/events"
	"github.com/dyike/SchwabAI/internal/logging"
	"github.com/dyike/SchwabAI/internal/models"
	"github.com/dyike/SchwabAI/internal/storage"
	"github.com/dyike/SchwabAI/internal/validate"
	"github.com/shopspring/decimal"
)

// Executor submits orders one at a time, in the order given. It never
// retries: a failed order is reported and the next recommendation runs.
type Executor struct {
	Broker    broker.Broker
	Journal   storage.Journal
	Publisher events.Publisher
	Logger    *slog.Logger
	// RunID tags journal rows and events.
	RunID string
	// Pause is the wait between live orders.
	Pause time.Duration

	now func() time.Time
}

// Run validates and executes recs against the snapshot p. Each accepted
// order is applied to a working copy of the portfolio so later checks see
// the cash and positions it leaves behind. Holds produce no result. In dry
// run mode the broker is never called.
func (e *Executor) Run(ctx context.Context, recs []models.Recommendation, profile models.RiskProfile,
	p *models.Portfolio, prices map[string]decimal.Decimal, dryRun bool) []models.TradeResult {
	logger := logging.OrDefault(e.Logger)
	now := e.now
	if now == nil {
		now = time.Now
	}

	var results []models.TradeResult
	working := p
	accepted := 0
	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			logger.Warn("execution interrupted", "error", err, "remaining", len(recs)-len(results))
			break
		}
		if rec.Action == models.ActionHold {
			continue
		}

		price := priceOf(rec.Symbol, working, prices)
		d := validate.Validate(profile, working, rec, accepted, price)
		res := models.TradeResult{Recommendation: rec, Price: price, At: now()}

		if !d.Accepted {
			res.Status = models.TradeRejected
			res.Reason = d.Reason
			logger.Info("recommendation rejected", "symbol", rec.Symbol, "action", rec.Action, "reason", d.Reason)
			results = append(results, e.record(ctx, logger, res))
			continue
		}

		order := models.OrderRequest{
			Symbol:   rec.Symbol,
			Side:     d.Side,
			Quantity: d.Quantity,
			Type:     models.OrderTypeMarket,
			DryRun:   dryRun,
		}
		res.Request = &order
		accepted++

		if dryRun {
			res.Status = models.TradeSimulated
			working = working.Apply(order.Side, order.Symbol, order.Quantity, price)
			logger.Info("dry run order", "order", order.String())
			results = append(results, e.record(ctx, logger, res))
			continue
		}

		id, err := e.Broker.PlaceOrder(ctx, order)
		if err != nil {
			res.Status = models.TradeFailed
			res.Err = err
			res.Error = err.Error()
			logger.Error("order failed", "order", order.String(), "error", err)
		} else {
			res.Status = models.TradeCompleted
			res.OrderID = id
			working = working.Apply(order.Side, order.Symbol, order.Quantity, price)
			logger.Info("order placed", "order", order.String(), "order_id", id)
		}
		results = append(results, e.record(ctx, logger, res))

		if e.Pause > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(e.Pause):
			}
		}
	}
	return results
}

// record journals and publishes res. Both are best effort.
func (e *Executor) record(ctx context.Context, logger *slog.Logger, res models.TradeResult) models.TradeResult {
	if e.Journal != nil {
		if err := e.Journal.RecordTrade(ctx, e.RunID, res); err != nil {
			logger.Warn("journal trade failed", "symbol", res.Recommendation.Symbol, "error", err)
		}
	}
	if e.Publisher != nil {
		if err := e.Publisher.PublishTrade(ctx, e.RunID, res); err != nil {
			logger.Warn("publish trade failed", "symbol", res.Recommendation.Symbol, "error", err)
		}
	}
	return res
}

func priceOf(symbol string, p *models.Portfolio, prices map[string]decimal.Decimal) decimal.Decimal {
	if px, ok := prices[symbol]; ok && px.IsPositive() {
		return px
	}
	if pos, ok := p.Position(symbol); ok {
		return pos.CurrentPrice
	}
	return decimal.Zero
}

// Summary counts results by status.
type Summary struct {
	Simulated int
	Completed int
	Failed    int
	Rejected  int
}

func Summarize(results []models.TradeResult) Summary {
	var s Summary
	for _, r := range results {
		switch r.Status {
		case models.TradeSimulated:
			s.Simulated++
		case models.TradeCompleted:
			s.Completed++
		case models.TradeFailed:
			s.Failed++
		case models.TradeRejected:
			s.Rejected++
		}
	}
	return s
}
