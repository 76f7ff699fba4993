package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/dyike/SchwabAI/internal/logging"
	"github.com/dyike/SchwabAI/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

const DefaultSchwabBaseURL = "https://api.schwabapi.com"

// Schwab implements Broker against the Schwab Trader and Market Data APIs.
type Schwab struct {
	client    *resty.Client
	accountID string
	logger    *slog.Logger

	mu          sync.Mutex
	accountHash string
}

type SchwabOptions struct {
	BaseURL   string
	AccountID string
	Logger    *slog.Logger
}

// NewSchwab wraps an authenticated HTTP client, normally the one returned
// by Authenticator.HTTPClient.
func NewSchwab(httpClient *http.Client, opts SchwabOptions) *Schwab {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultSchwabBaseURL
	}
	client := resty.NewWithClient(httpClient).
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(30*time.Second).
		SetHeader("Accept", "application/json")

	return &Schwab{
		client:    client,
		accountID: opts.AccountID,
		logger:    logging.OrDefault(opts.Logger),
	}
}

type accountNumber struct {
	AccountNumber string `json:"accountNumber"`
	HashValue     string `json:"hashValue"`
}

type schwabAccount struct {
	SecuritiesAccount struct {
		AccountNumber   string           `json:"accountNumber"`
		Positions       []schwabPosition `json:"positions"`
		CurrentBalances struct {
			CashBalance decimal.Decimal `json:"cashBalance"`
		} `json:"currentBalances"`
	} `json:"securitiesAccount"`
}

type schwabPosition struct {
	LongQuantity  decimal.Decimal `json:"longQuantity"`
	ShortQuantity decimal.Decimal `json:"shortQuantity"`
	AveragePrice  decimal.Decimal `json:"averagePrice"`
	MarketValue   decimal.Decimal `json:"marketValue"`
	Instrument    struct {
		Symbol      string `json:"symbol"`
		AssetType   string `json:"assetType"`
		Fundamental *struct {
			Sector string `json:"sector"`
		} `json:"fundamental"`
	} `json:"instrument"`
}

func (p schwabPosition) toModel() models.Position {
	qty := p.LongQuantity.Sub(p.ShortQuantity)
	pos := models.Position{
		Symbol:       p.Instrument.Symbol,
		Quantity:     qty,
		AveragePrice: p.AveragePrice,
		MarketValue:  p.MarketValue,
		AssetType:    p.Instrument.AssetType,
		Sector:       models.UnknownSector,
	}
	if p.Instrument.Fundamental != nil && p.Instrument.Fundamental.Sector != "" {
		pos.Sector = p.Instrument.Fundamental.Sector
	}
	if !qty.IsZero() {
		pos.CurrentPrice = p.MarketValue.Div(qty).Round(4)
	}
	return pos
}

func (s *Schwab) get(ctx context.Context, url string, query map[string]string, out any) error {
	resp, err := s.client.R().SetContext(ctx).SetQueryParams(query).Get(url)
	if err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		return fmt.Errorf("%w: %s", ErrNotAuthenticated, resp.String())
	}
	if resp.IsError() {
		return &APIError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// resolveAccountHash maps the configured account number to the opaque hash
// the trader API expects. Without a configured number the first account is used.
func (s *Schwab) resolveAccountHash(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accountHash != "" {
		return s.accountHash, nil
	}

	var numbers []accountNumber
	if err := s.get(ctx, "/trader/v1/accounts/accountNumbers", nil, &numbers); err != nil {
		return "", err
	}
	if len(numbers) == 0 {
		return "", errors.New("no linked accounts")
	}
	for _, n := range numbers {
		if s.accountID == "" || n.AccountNumber == s.accountID {
			s.accountHash = n.HashValue
			if s.accountID == "" {
				s.accountID = n.AccountNumber
			}
			return s.accountHash, nil
		}
	}
	return "", fmt.Errorf("account %s not linked to this login", s.accountID)
}

func (s *Schwab) Portfolio(ctx context.Context) (*models.Portfolio, error) {
	hash, err := s.resolveAccountHash(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve account: %w", err)
	}

	var acct schwabAccount
	if err := s.get(ctx, "/trader/v1/accounts/"+hash, map[string]string{"fields": "positions"}, &acct); err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}

	sa := acct.SecuritiesAccount
	positions := make([]models.Position, 0, len(sa.Positions))
	for _, p := range sa.Positions {
		if p.Instrument.Symbol == "" {
			continue
		}
		positions = append(positions, p.toModel())
	}

	// AccountValue is cash plus positions; liquidationValue is ignored.
	pf := models.NewPortfolio(s.accountID, positions, sa.CurrentBalances.CashBalance)
	s.logger.Debug("portfolio fetched", "positions", len(positions), "account_value", pf.AccountValue.StringFixed(2))
	return pf, nil
}

type schwabQuote struct {
	Quote struct {
		LastPrice        decimal.Decimal `json:"lastPrice"`
		NetChange        decimal.Decimal `json:"netChange"`
		NetPercentChange float64         `json:"netPercentChange"`
		TotalVolume      int64           `json:"totalVolume"`
		QuoteTime        int64           `json:"quoteTime"`
	} `json:"quote"`
}

func (s *Schwab) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	var body map[string]schwabQuote
	if err := s.get(ctx, "/marketdata/v1/quotes", map[string]string{"symbols": symbol}, &body); err != nil {
		return models.Quote{}, fmt.Errorf("get quote %s: %w", symbol, err)
	}
	q, ok := body[symbol]
	if !ok || !q.Quote.LastPrice.IsPositive() {
		return models.Quote{}, fmt.Errorf("no quote returned for %s", symbol)
	}
	ts := time.Now()
	if q.Quote.QuoteTime > 0 {
		ts = time.UnixMilli(q.Quote.QuoteTime)
	}
	return models.Quote{
		Symbol:        symbol,
		Price:         q.Quote.LastPrice,
		Change:        q.Quote.NetChange,
		ChangePercent: q.Quote.NetPercentChange,
		Volume:        q.Quote.TotalVolume,
		Provider:      "schwab",
		Timestamp:     ts,
	}, nil
}

type orderLeg struct {
	Instruction string `json:"instruction"`
	Quantity    string `json:"quantity"`
	Instrument  struct {
		Symbol    string `json:"symbol"`
		AssetType string `json:"assetType"`
	} `json:"instrument"`
}

type orderBody struct {
	OrderType          string     `json:"orderType"`
	Session            string     `json:"session"`
	Duration           string     `json:"duration"`
	OrderStrategyType  string     `json:"orderStrategyType"`
	Price              string     `json:"price,omitempty"`
	OrderLegCollection []orderLeg `json:"orderLegCollection"`
}

func buildOrderBody(o models.OrderRequest) orderBody {
	leg := orderLeg{
		Instruction: string(o.Side),
		Quantity:    o.Quantity.String(),
	}
	leg.Instrument.Symbol = o.Symbol
	leg.Instrument.AssetType = "EQUITY"

	body := orderBody{
		OrderType:          string(o.Type),
		Session:            "NORMAL",
		Duration:           "DAY",
		OrderStrategyType:  "SINGLE",
		OrderLegCollection: []orderLeg{leg},
	}
	if o.Type == models.OrderTypeLimit {
		body.Price = o.LimitPrice.StringFixed(2)
	}
	return body
}

// PlaceOrder submits a single-leg equity order and returns the order id
// parsed from the Location header.
func (s *Schwab) PlaceOrder(ctx context.Context, order models.OrderRequest) (string, error) {
	if order.DryRun {
		return "", errors.New("refusing to submit a dry-run order")
	}
	hash, err := s.resolveAccountHash(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve account: %w", err)
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(buildOrderBody(order)).
		Post("/trader/v1/accounts/" + hash + "/orders")
	if err != nil {
		return "", fmt.Errorf("place order %s: %w", order, err)
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		return "", fmt.Errorf("%w: %s", ErrNotAuthenticated, resp.String())
	}
	if resp.IsError() {
		return "", &APIError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	orderID := ""
	if loc := resp.Header().Get("Location"); loc != "" {
		orderID = path.Base(loc)
	}
	s.logger.Info("order placed", "symbol", order.Symbol, "side", order.Side, "quantity", order.Quantity.String(), "order_id", orderID)
	return orderID, nil
}
