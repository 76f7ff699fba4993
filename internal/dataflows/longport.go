package dataflows

import (
	"context"
	"errors"
	"time"

	"github.com/dyike/SchwabAI/internal/models"
	lpconfig "github.com/longportapp/openapi-go/config"
	"github.com/longportapp/openapi-go/quote"
	"github.com/shopspring/decimal"
)

const longportName = "longport"

type LongportConfig struct {
	AppKey      string
	AppSecret   string
	AccessToken string
}

// LongportClient serves quotes from the Longport quote context. US symbols
// are addressed with a ".US" suffix.
type LongportClient struct {
	quoteCtx *quote.QuoteContext
}

func NewLongportClient(cfg LongportConfig) (*LongportClient, error) {
	if cfg.AppKey == "" || cfg.AppSecret == "" || cfg.AccessToken == "" {
		return nil, errors.New("longport API credentials not configured")
	}

	conf, err := lpconfig.New(lpconfig.WithConfigKey(cfg.AppKey, cfg.AppSecret, cfg.AccessToken))
	if err != nil {
		return nil, err
	}

	quoteContext, err := quote.NewFromCfg(conf)
	if err != nil {
		return nil, err
	}

	return &LongportClient{quoteCtx: quoteContext}, nil
}

func (lpc *LongportClient) Name() string { return longportName }

func longportSymbol(symbol string) string {
	return symbol + ".US"
}

func (lpc *LongportClient) sticks(ctx context.Context, symbol string, count int) ([]models.Bar, error) {
	if lpc.quoteCtx == nil {
		return nil, errors.New("quote context is nil")
	}
	sticks, err := lpc.quoteCtx.Candlesticks(ctx, longportSymbol(symbol), quote.PeriodDay, int32(count), quote.AdjustTypeNo)
	if err != nil {
		return nil, NewNetworkError(longportName, symbol, err)
	}

	bars := make([]models.Bar, 0, len(sticks))
	for _, stick := range sticks {
		open, _ := stick.Open.Float64()
		high, _ := stick.High.Float64()
		low, _ := stick.Low.Float64()
		closePrice, _ := stick.Close.Float64()
		bars = append(bars, models.Bar{
			Date:   time.Unix(stick.Timestamp, 0),
			Open:   decimal.NewFromFloat(open),
			High:   decimal.NewFromFloat(high),
			Low:    decimal.NewFromFloat(low),
			Close:  decimal.NewFromFloat(closePrice),
			Volume: stick.Volume,
		})
	}
	return bars, nil
}

// Quote derives the latest price from the two most recent daily candles.
func (lpc *LongportClient) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	bars, err := lpc.sticks(ctx, symbol, 2)
	if err != nil {
		return models.Quote{}, err
	}
	if len(bars) == 0 {
		return models.Quote{}, NewBadSymbolError(longportName, symbol, "no candlesticks")
	}
	last := bars[len(bars)-1]
	q := models.Quote{
		Symbol:    symbol,
		Price:     last.Close,
		Volume:    last.Volume,
		Provider:  longportName,
		Timestamp: last.Date,
	}
	if len(bars) > 1 {
		prev := bars[len(bars)-2].Close
		if prev.IsPositive() {
			q.Change = last.Close.Sub(prev)
			q.ChangePercent = q.Change.Div(prev).Mul(decimal.NewFromInt(100)).InexactFloat64()
		}
	}
	return q, nil
}

func (lpc *LongportClient) History(ctx context.Context, symbol string, days int) ([]models.Bar, error) {
	bars, err := lpc.sticks(ctx, symbol, days)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, NewBadSymbolError(longportName, symbol, "no candlesticks")
	}
	return bars, nil
}
