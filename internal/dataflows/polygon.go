package dataflows

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dyike/SchwabAI/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const polygonName = "polygon"

type PolygonConfig struct {
	APIKey    string
	BaseURL   string
	RateLimit rate.Limit
	Burst     int
	Timeout   time.Duration
}

type PolygonClient struct {
	client  *resty.Client
	apiKey  string
	limiter *rate.Limiter
}

func NewPolygonClient(cfg PolygonConfig) (*PolygonClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Polygon API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.polygon.io"
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = rate.Every(12 * time.Second)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetTimeout(cfg.Timeout)

	return &PolygonClient{
		client:  client,
		apiKey:  cfg.APIKey,
		limiter: rate.NewLimiter(cfg.RateLimit, cfg.Burst),
	}, nil
}

func (pc *PolygonClient) Name() string { return polygonName }

func (pc *PolygonClient) get(ctx context.Context, symbol, path string, out any) error {
	if err := pc.limiter.Wait(ctx); err != nil {
		return NewRateLimitError(polygonName, symbol, err.Error())
	}
	resp, err := pc.client.R().SetContext(ctx).SetQueryParam("apiKey", pc.apiKey).Get(path)
	if err != nil {
		return NewNetworkError(polygonName, symbol, err)
	}
	switch {
	case resp.StatusCode() == 429:
		return NewRateLimitError(polygonName, symbol, "HTTP 429")
	case resp.StatusCode() == 404:
		return NewBadSymbolError(polygonName, symbol, "not found")
	case resp.IsError():
		return NewProviderError(polygonName, symbol, fmt.Sprintf("HTTP %d: %s", resp.StatusCode(), resp.String()), nil)
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return NewProviderError(polygonName, symbol, "invalid JSON", err)
	}
	return nil
}

type polygonAgg struct {
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    float64 `json:"v"`
	Timestamp int64   `json:"t"`
}

type polygonAggs struct {
	Status  string       `json:"status"`
	Results []polygonAgg `json:"results"`
}

func (a polygonAgg) toBar() models.Bar {
	return models.Bar{
		Date:   time.UnixMilli(a.Timestamp),
		Open:   decimal.NewFromFloat(a.Open),
		High:   decimal.NewFromFloat(a.High),
		Low:    decimal.NewFromFloat(a.Low),
		Close:  decimal.NewFromFloat(a.Close),
		Volume: int64(a.Volume),
	}
}

// Quote uses the last trade price and compares it with the previous close.
func (pc *PolygonClient) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	var last struct {
		Status  string `json:"status"`
		Results struct {
			Price     float64 `json:"p"`
			Size      float64 `json:"s"`
			Timestamp int64   `json:"t"`
		} `json:"results"`
	}
	if err := pc.get(ctx, symbol, "/v2/last/trade/"+symbol, &last); err != nil {
		return models.Quote{}, err
	}
	if last.Results.Price == 0 {
		return models.Quote{}, NewBadSymbolError(polygonName, symbol, "no last trade")
	}

	q := models.Quote{
		Symbol:    symbol,
		Price:     decimal.NewFromFloat(last.Results.Price),
		Provider:  polygonName,
		Timestamp: time.Now(),
	}
	if last.Results.Timestamp > 0 {
		q.Timestamp = time.Unix(0, last.Results.Timestamp)
	}

	var prev polygonAggs
	if err := pc.get(ctx, symbol, "/v2/aggs/ticker/"+symbol+"/prev", &prev); err == nil && len(prev.Results) > 0 {
		prevClose := decimal.NewFromFloat(prev.Results[0].Close)
		if prevClose.IsPositive() {
			q.Change = q.Price.Sub(prevClose)
			q.ChangePercent = q.Change.Div(prevClose).Mul(decimal.NewFromInt(100)).InexactFloat64()
		}
		q.Volume = int64(prev.Results[0].Volume)
	}
	return q, nil
}

func (pc *PolygonClient) History(ctx context.Context, symbol string, days int) ([]models.Bar, error) {
	to := time.Now()
	from := to.AddDate(0, 0, -(days*7/5 + 5))

	var aggs polygonAggs
	path := fmt.Sprintf("/v2/aggs/ticker/%s/range/1/day/%s/%s", symbol, from.Format("2006-01-02"), to.Format("2006-01-02"))
	if err := pc.get(ctx, symbol, path, &aggs); err != nil {
		return nil, err
	}
	if len(aggs.Results) == 0 {
		return nil, NewBadSymbolError(polygonName, symbol, "no aggregates")
	}

	bars := make([]models.Bar, 0, len(aggs.Results))
	for _, a := range aggs.Results {
		bars = append(bars, a.toBar())
	}
	return lastN(bars, days), nil
}
