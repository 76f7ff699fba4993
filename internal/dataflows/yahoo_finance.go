package dataflows

import (
	"context"
	"fmt"
	"time"

	"github.com/dyike/SchwabAI/internal/models"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/quote"
	"github.com/shopspring/decimal"
)

const yahooName = "yahoo"

// YahooFinanceClient is the keyless free-tier provider, always last in the chain.
type YahooFinanceClient struct{}

func NewYahooFinanceClient() *YahooFinanceClient {
	return &YahooFinanceClient{}
}

func (yf *YahooFinanceClient) Name() string { return yahooName }

// Quote gets current quote data for a symbol
func (yf *YahooFinanceClient) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	if err := ctx.Err(); err != nil {
		return models.Quote{}, err
	}
	q, err := quote.Get(symbol)
	if err != nil {
		return models.Quote{}, NewNetworkError(yahooName, symbol, err)
	}
	if q == nil || q.RegularMarketPrice == 0 {
		return models.Quote{}, NewBadSymbolError(yahooName, symbol, "no quote")
	}

	ts := time.Now()
	if q.RegularMarketTime > 0 {
		ts = time.Unix(int64(q.RegularMarketTime), 0)
	}
	return models.Quote{
		Symbol:        symbol,
		Price:         decimal.NewFromFloat(q.RegularMarketPrice),
		Change:        decimal.NewFromFloat(q.RegularMarketChange),
		ChangePercent: q.RegularMarketChangePercent,
		Volume:        int64(q.RegularMarketVolume),
		Provider:      yahooName,
		Timestamp:     ts,
	}, nil
}

// History gets daily bars for the last days trading days.
func (yf *YahooFinanceClient) History(ctx context.Context, symbol string, days int) ([]models.Bar, error) {
	end := time.Now()
	start := end.AddDate(0, 0, -(days*7/5 + 5))

	params := &chart.Params{
		Symbol:   symbol,
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: datetime.OneDay,
	}

	iter := chart.Get(params)
	bars := make([]models.Bar, 0, days)
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bar := iter.Bar()
		bars = append(bars, models.Bar{
			Date:   time.Unix(int64(bar.Timestamp), 0),
			Open:   bar.Open,
			High:   bar.High,
			Low:    bar.Low,
			Close:  bar.Close,
			Volume: int64(bar.Volume),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, NewProviderError(yahooName, symbol, fmt.Sprintf("chart for %s", symbol), err)
	}
	if len(bars) == 0 {
		return nil, NewBadSymbolError(yahooName, symbol, "empty chart")
	}
	return lastN(bars, days), nil
}
