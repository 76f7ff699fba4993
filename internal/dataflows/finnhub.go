package dataflows

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/dyike/SchwabAI/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

const finnhubName = "finnhub"

type FinnhubConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// FinnhubClient handles Finnhub API operations
type FinnhubClient struct {
	client *resty.Client
	apiKey string
}

// NewFinnhubClient creates a new Finnhub client
func NewFinnhubClient(cfg FinnhubConfig) (*FinnhubClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Finnhub API key not configured")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://finnhub.io/api/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetTimeout(cfg.Timeout)

	return &FinnhubClient{
		client: client,
		apiKey: cfg.APIKey,
	}, nil
}

func (fc *FinnhubClient) Name() string { return finnhubName }

func (fc *FinnhubClient) get(ctx context.Context, symbol, path string, params map[string]string, out any) error {
	params["token"] = fc.apiKey
	resp, err := fc.client.R().SetContext(ctx).SetQueryParams(params).Get(path)
	if err != nil {
		return NewNetworkError(finnhubName, symbol, err)
	}
	switch {
	case resp.StatusCode() == 429:
		return NewRateLimitError(finnhubName, symbol, "HTTP 429")
	case resp.IsError():
		return NewProviderError(finnhubName, symbol, fmt.Sprintf("HTTP %d: %s", resp.StatusCode(), resp.String()), nil)
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return NewProviderError(finnhubName, symbol, "invalid JSON", err)
	}
	return nil
}

type finnhubQuote struct {
	Current       float64 `json:"c"`
	Change        float64 `json:"d"`
	ChangePercent float64 `json:"dp"`
	PrevClose     float64 `json:"pc"`
	Timestamp     int64   `json:"t"`
}

func (fc *FinnhubClient) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	var q finnhubQuote
	if err := fc.get(ctx, symbol, "/quote", map[string]string{"symbol": symbol}, &q); err != nil {
		return models.Quote{}, err
	}
	// Finnhub answers unknown symbols with an all-zero quote.
	if q.Current == 0 {
		return models.Quote{}, NewBadSymbolError(finnhubName, symbol, "zero price")
	}
	ts := time.Now()
	if q.Timestamp > 0 {
		ts = time.Unix(q.Timestamp, 0)
	}
	return models.Quote{
		Symbol:        symbol,
		Price:         decimal.NewFromFloat(q.Current),
		Change:        decimal.NewFromFloat(q.Change),
		ChangePercent: q.ChangePercent,
		Provider:      finnhubName,
		Timestamp:     ts,
	}, nil
}

type finnhubCandles struct {
	Close     []float64 `json:"c"`
	High      []float64 `json:"h"`
	Low       []float64 `json:"l"`
	Open      []float64 `json:"o"`
	Timestamp []int64   `json:"t"`
	Volume    []float64 `json:"v"`
	Status    string    `json:"s"`
}

func (fc *FinnhubClient) History(ctx context.Context, symbol string, days int) ([]models.Bar, error) {
	to := time.Now()
	// Calendar days, padded for weekends and holidays.
	from := to.AddDate(0, 0, -(days*7/5 + 5))

	var c finnhubCandles
	params := map[string]string{
		"symbol":     symbol,
		"resolution": "D",
		"from":       strconv.FormatInt(from.Unix(), 10),
		"to":         strconv.FormatInt(to.Unix(), 10),
	}
	if err := fc.get(ctx, symbol, "/stock/candle", params, &c); err != nil {
		return nil, err
	}
	if c.Status != "ok" {
		return nil, NewBadSymbolError(finnhubName, symbol, "candle status "+c.Status)
	}

	n := len(c.Timestamp)
	if len(c.Close) < n || len(c.Open) < n || len(c.High) < n || len(c.Low) < n || len(c.Volume) < n {
		return nil, NewProviderError(finnhubName, symbol, "ragged candle arrays", nil)
	}
	bars := make([]models.Bar, 0, n)
	for i := 0; i < n; i++ {
		bars = append(bars, models.Bar{
			Date:   time.Unix(c.Timestamp[i], 0),
			Open:   decimal.NewFromFloat(c.Open[i]),
			High:   decimal.NewFromFloat(c.High[i]),
			Low:    decimal.NewFromFloat(c.Low[i]),
			Close:  decimal.NewFromFloat(c.Close[i]),
			Volume: int64(c.Volume[i]),
		})
	}
	return lastN(bars, days), nil
}

// FinnhubNews represents news from Finnhub API
type FinnhubNews struct {
	Category string `json:"category"`
	DateTime int64  `json:"datetime"`
	Headline string `json:"headline"`
	ID       int64  `json:"id"`
	Related  string `json:"related"`
	Source   string `json:"source"`
	Summary  string `json:"summary"`
	URL      string `json:"url"`
}

// News gets news articles for a specific company
func (fc *FinnhubClient) News(ctx context.Context, symbol string, from, to time.Time) ([]models.NewsArticle, error) {
	var items []FinnhubNews
	params := map[string]string{
		"symbol": symbol,
		"from":   from.Format("2006-01-02"),
		"to":     to.Format("2006-01-02"),
	}
	if err := fc.get(ctx, symbol, "/company-news", params, &items); err != nil {
		return nil, err
	}

	articles := make([]models.NewsArticle, 0, len(items))
	for _, it := range items {
		articles = append(articles, models.NewsArticle{
			Symbol:    symbol,
			Headline:  it.Headline,
			Summary:   it.Summary,
			Source:    it.Source,
			URL:       it.URL,
			Published: time.Unix(it.DateTime, 0),
		})
	}
	return articles, nil
}
