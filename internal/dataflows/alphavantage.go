package dataflows

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dyike/SchwabAI/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const alphaVantageName = "alpha_vantage"

// AlphaVantageConfig holds configuration for the Alpha Vantage client.
// A zero RateLimit means the free-tier limit of five calls per minute.
type AlphaVantageConfig struct {
	APIKey    string
	BaseURL   string
	RateLimit rate.Limit
	Burst     int
	Timeout   time.Duration
}

// AlphaVantageClient handles Alpha Vantage API operations
type AlphaVantageClient struct {
	client  *resty.Client
	apiKey  string
	limiter *rate.Limiter
}

func NewAlphaVantageClient(cfg AlphaVantageConfig) (*AlphaVantageClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Alpha Vantage API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.alphavantage.co"
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

	return &AlphaVantageClient{
		client:  client,
		apiKey:  cfg.APIKey,
		limiter: rate.NewLimiter(cfg.RateLimit, cfg.Burst),
	}, nil
}

func (c *AlphaVantageClient) Name() string { return alphaVantageName }

// query calls one function and returns the decoded body. Throttle notes in
// the body are mapped to rate-limit errors.
func (c *AlphaVantageClient) query(ctx context.Context, symbol string, params map[string]string) (map[string]json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, NewRateLimitError(alphaVantageName, symbol, err.Error())
	}

	params["symbol"] = symbol
	params["apikey"] = c.apiKey
	resp, err := c.client.R().SetContext(ctx).SetQueryParams(params).Get("/query")
	if err != nil {
		return nil, NewNetworkError(alphaVantageName, symbol, err)
	}
	if resp.StatusCode() == 429 {
		return nil, NewRateLimitError(alphaVantageName, symbol, "HTTP 429")
	}
	if resp.IsError() {
		return nil, NewProviderError(alphaVantageName, symbol, fmt.Sprintf("HTTP %d", resp.StatusCode()), nil)
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, NewProviderError(alphaVantageName, symbol, "invalid JSON", err)
	}
	for _, key := range []string{"Note", "Information"} {
		if raw, ok := body[key]; ok {
			var msg string
			_ = json.Unmarshal(raw, &msg)
			return nil, NewRateLimitError(alphaVantageName, symbol, msg)
		}
	}
	if raw, ok := body["Error Message"]; ok {
		var msg string
		_ = json.Unmarshal(raw, &msg)
		return nil, NewBadSymbolError(alphaVantageName, symbol, msg)
	}
	return body, nil
}

func (c *AlphaVantageClient) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	body, err := c.query(ctx, symbol, map[string]string{"function": "GLOBAL_QUOTE"})
	if err != nil {
		return models.Quote{}, err
	}

	var gq map[string]string
	if raw, ok := body["Global Quote"]; ok {
		_ = json.Unmarshal(raw, &gq)
	}
	if len(gq) == 0 || gq["05. price"] == "" {
		return models.Quote{}, NewBadSymbolError(alphaVantageName, symbol, "empty Global Quote")
	}

	price, err := decimal.NewFromString(gq["05. price"])
	if err != nil {
		return models.Quote{}, NewProviderError(alphaVantageName, symbol, "invalid price", err)
	}
	change, _ := decimal.NewFromString(gq["09. change"])
	pct, _ := strconv.ParseFloat(strings.TrimSuffix(gq["10. change percent"], "%"), 64)
	volume, _ := strconv.ParseInt(gq["06. volume"], 10, 64)

	return models.Quote{
		Symbol:        symbol,
		Price:         price,
		Change:        change,
		ChangePercent: pct,
		Volume:        volume,
		Provider:      alphaVantageName,
		Timestamp:     time.Now(),
	}, nil
}

// History returns up to days daily bars, oldest first.
func (c *AlphaVantageClient) History(ctx context.Context, symbol string, days int) ([]models.Bar, error) {
	body, err := c.query(ctx, symbol, map[string]string{"function": "TIME_SERIES_DAILY", "outputsize": "compact"})
	if err != nil {
		return nil, err
	}

	var series map[string]map[string]string
	if raw, ok := body["Time Series (Daily)"]; ok {
		_ = json.Unmarshal(raw, &series)
	}
	if len(series) == 0 {
		return nil, NewBadSymbolError(alphaVantageName, symbol, "empty time series")
	}

	bars := make([]models.Bar, 0, len(series))
	for date, v := range series {
		t, err := time.Parse("2006-01-02", date)
		if err != nil {
			continue
		}
		bar := models.Bar{Date: t}
		bar.Open, _ = decimal.NewFromString(v["1. open"])
		bar.High, _ = decimal.NewFromString(v["2. high"])
		bar.Low, _ = decimal.NewFromString(v["3. low"])
		bar.Close, _ = decimal.NewFromString(v["4. close"])
		bar.Volume, _ = strconv.ParseInt(v["5. volume"], 10, 64)
		bars = append(bars, bar)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return lastN(bars, days), nil
}

func lastN(bars []models.Bar, n int) []models.Bar {
	if n > 0 && len(bars) > n {
		return bars[len(bars)-n:]
	}
	return bars
}
