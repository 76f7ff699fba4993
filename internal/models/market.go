package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is the latest price of a symbol as reported by one market-data provider.
type Quote struct {
	Symbol        string          `json:"symbol"`
	Price         decimal.Decimal `json:"price"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent float64         `json:"change_percent"`
	Volume        int64           `json:"volume"`
	Provider      string          `json:"provider"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Bar is one daily OHLCV candle.
type Bar struct {
	Date   time.Time       `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

type NewsArticle struct {
	Symbol    string    `json:"symbol"`
	Headline  string    `json:"headline"`
	Summary   string    `json:"summary"`
	Source    string    `json:"source"`
	URL       string    `json:"url"`
	Published time.Time `json:"published"`
}

// MarketData bundles everything fetched for one analysis cycle.
// Symbols listed in Unavailable had no usable quote from any provider.
type MarketData struct {
	Quotes      map[string]Quote         `json:"quotes"`
	History     map[string][]Bar         `json:"history"`
	News        map[string][]NewsArticle `json:"news"`
	Sentiment   map[string]float64       `json:"sentiment"`
	Sectors     map[string]Quote         `json:"sectors"`
	Indices     map[string]Quote         `json:"indices"`
	Unavailable map[string]bool          `json:"unavailable"`
	FetchedAt   time.Time                `json:"fetched_at"`
}

func NewMarketData() *MarketData {
	return &MarketData{
		Quotes:      make(map[string]Quote),
		History:     make(map[string][]Bar),
		News:        make(map[string][]NewsArticle),
		Sentiment:   make(map[string]float64),
		Sectors:     make(map[string]Quote),
		Indices:     make(map[string]Quote),
		Unavailable: make(map[string]bool),
		FetchedAt:   time.Now(),
	}
}

// Available reports whether a quote exists for symbol.
func (m *MarketData) Available(symbol string) bool {
	if m == nil {
		return false
	}
	if m.Unavailable[symbol] {
		return false
	}
	_, ok := m.Quotes[symbol]
	return ok
}

// Prices returns the quoted price per symbol.
func (m *MarketData) Prices() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	if m == nil {
		return out
	}
	for sym, q := range m.Quotes {
		out[sym] = q.Price
	}
	return out
}
