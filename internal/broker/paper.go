package broker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/dyike/SchwabAI/internal/models"
	"github.com/shopspring/decimal"
)

// Paper is an in-memory broker that fills market orders at the last known
// price. It starts from a portfolio snapshot and tracks cash and positions.
type Paper struct {
	mu        sync.Mutex
	accountID string
	cash      decimal.Decimal
	positions map[string]models.Position
	prices    map[string]decimal.Decimal
	orders    []models.OrderRequest
	nextID    int
	source    PriceSource
}

// PriceSource quotes symbols the paper account has no price for.
type PriceSource interface {
	Quote(ctx context.Context, symbol string) (models.Quote, error)
}

func NewPaper(seed *models.Portfolio) *Paper {
	p := &Paper{
		accountID: "PAPER",
		positions: make(map[string]models.Position),
		prices:    make(map[string]decimal.Decimal),
		nextID:    1,
	}
	if seed != nil {
		p.accountID = seed.AccountID
		p.cash = seed.Cash
		for _, pos := range seed.Positions {
			p.positions[pos.Symbol] = pos
			if pos.CurrentPrice.IsPositive() {
				p.prices[pos.Symbol] = pos.CurrentPrice
			}
		}
	}
	return p
}

// UsePrices makes unknown symbols fill at src's quote.
func (p *Paper) UsePrices(src PriceSource) *Paper {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.source = src
	return p
}

func (p *Paper) lookupPrice(ctx context.Context, symbol string) {
	p.mu.Lock()
	_, known := p.prices[symbol]
	src := p.source
	p.mu.Unlock()
	if known || src == nil {
		return
	}
	q, err := src.Quote(ctx, symbol)
	if err != nil || !q.Price.IsPositive() {
		return
	}
	p.SetPrice(symbol, q.Price)
}

// SetPrice sets the fill and quote price for symbol.
func (p *Paper) SetPrice(symbol string, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = price
}

func (p *Paper) Portfolio(ctx context.Context) (*models.Portfolio, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	positions := make([]models.Position, 0, len(p.positions))
	for sym, pos := range p.positions {
		if price, ok := p.prices[sym]; ok {
			pos.CurrentPrice = price
			pos.MarketValue = price.Mul(pos.Quantity)
		}
		positions = append(positions, pos)
	}
	return models.NewPortfolio(p.accountID, positions, p.cash), nil
}

func (p *Paper) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	price, ok := p.prices[symbol]
	if !ok {
		return models.Quote{}, fmt.Errorf("paper: no price for %s", symbol)
	}
	return models.Quote{Symbol: symbol, Price: price, Provider: "paper", Timestamp: time.Now()}, nil
}

func (p *Paper) PlaceOrder(ctx context.Context, o models.OrderRequest) (string, error) {
	p.lookupPrice(ctx, o.Symbol)

	p.mu.Lock()
	defer p.mu.Unlock()

	price, ok := p.prices[o.Symbol]
	if !ok {
		return "", fmt.Errorf("paper: no price for %s", o.Symbol)
	}
	if o.Type == models.OrderTypeLimit && o.LimitPrice.IsPositive() {
		price = o.LimitPrice
	}
	if !o.Quantity.IsPositive() {
		return "", fmt.Errorf("paper: quantity must be positive")
	}
	cost := price.Mul(o.Quantity)
	pos := p.positions[o.Symbol]
	pos.Symbol = o.Symbol

	switch o.Side {
	case models.SideBuy:
		if cost.GreaterThan(p.cash) {
			return "", fmt.Errorf("paper: insufficient cash for %s", o)
		}
		total := pos.CostBasis().Add(cost)
		pos.Quantity = pos.Quantity.Add(o.Quantity)
		pos.AveragePrice = total.Div(pos.Quantity)
		p.cash = p.cash.Sub(cost)
	case models.SideSell:
		if o.Quantity.GreaterThan(pos.Quantity) {
			return "", fmt.Errorf("paper: insufficient shares for %s", o)
		}
		pos.Quantity = pos.Quantity.Sub(o.Quantity)
		p.cash = p.cash.Add(cost)
	default:
		return "", fmt.Errorf("paper: unknown side %q", o.Side)
	}

	if pos.Quantity.IsZero() {
		delete(p.positions, o.Symbol)
	} else {
		pos.CurrentPrice = price
		pos.MarketValue = price.Mul(pos.Quantity)
		p.positions[o.Symbol] = pos
	}

	p.orders = append(p.orders, o)
	id := "paper-" + strconv.Itoa(p.nextID)
	p.nextID++
	return id, nil
}

// Orders returns every filled order in submission order.
func (p *Paper) Orders() []models.OrderRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.OrderRequest(nil), p.orders...)
}
