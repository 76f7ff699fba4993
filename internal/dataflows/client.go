package dataflows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/dyike/SchwabAI/config"
	"github.com/dyike/SchwabAI/internal/logging"
	"github.com/dyike/SchwabAI/internal/models"
)

// SectorETFs maps the SPDR sector funds used as sector benchmarks.
var SectorETFs = map[string]string{
	"XLK":  "Technology",
	"XLV":  "Health Care",
	"XLF":  "Financials",
	"XLY":  "Consumer Discretionary",
	"XLI":  "Industrials",
	"XLE":  "Energy",
	"XLB":  "Materials",
	"XLU":  "Utilities",
	"XLRE": "Real Estate",
	"XLP":  "Consumer Staples",
	"XLC":  "Communication Services",
}

var MarketIndices = map[string]string{
	"^GSPC": "S&P 500",
	"^DJI":  "Dow Jones",
	"^IXIC": "NASDAQ",
	"^RUT":  "Russell 2000",
}

const rateLimitCooldown = time.Minute

// Client queries providers in a fixed order. The first provider that
// answers wins; later providers are not consulted for that request.
type Client struct {
	providers   []Provider
	cache       Cache
	logger      *slog.Logger
	historyDays int
	newsDays    int
	now         func() time.Time

	mu       sync.Mutex
	cooldown map[string]time.Time
}

type ClientOption func(*Client)

func WithCache(c Cache) ClientOption {
	return func(cl *Client) { cl.cache = c }
}

func WithLogger(l *slog.Logger) ClientOption {
	return func(cl *Client) { cl.logger = l }
}

func WithHistoryDays(n int) ClientOption {
	return func(cl *Client) {
		if n > 0 {
			cl.historyDays = n
		}
	}
}

func NewClient(providers []Provider, opts ...ClientOption) *Client {
	c := &Client{
		providers:   providers,
		historyDays: 30,
		newsDays:    7,
		now:         time.Now,
		cooldown:    make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrDefault(c.logger)
	return c
}

// NewClientFromConfig builds the chain alpha_vantage, finnhub, polygon,
// longport, yahoo from whichever keys are configured. Yahoo needs no key and
// is always present.
func NewClientFromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) *Client {
	logger = logging.OrDefault(logger)
	var providers []Provider

	if cfg.AlphaVantageAPIKey != "" {
		if p, err := NewAlphaVantageClient(AlphaVantageConfig{APIKey: cfg.AlphaVantageAPIKey}); err == nil {
			providers = append(providers, p)
		}
	}
	if cfg.FinnhubAPIKey != "" {
		if p, err := NewFinnhubClient(FinnhubConfig{APIKey: cfg.FinnhubAPIKey}); err == nil {
			providers = append(providers, p)
		}
	}
	if cfg.PolygonAPIKey != "" {
		if p, err := NewPolygonClient(PolygonConfig{APIKey: cfg.PolygonAPIKey}); err == nil {
			providers = append(providers, p)
		}
	}
	if cfg.LongportAppKey != "" {
		p, err := NewLongportClient(LongportConfig{
			AppKey:      cfg.LongportAppKey,
			AppSecret:   cfg.LongportAppSecret,
			AccessToken: cfg.LongportAccessToken,
		})
		if err != nil {
			logger.Warn("longport provider disabled", "err", err)
		} else {
			providers = append(providers, p)
		}
	}
	providers = append(providers, NewYahooFinanceClient())

	opts := []ClientOption{WithLogger(logger)}
	if cfg.CacheEnabled {
		ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
		if cfg.RedisAddr != "" {
			rc := NewRedisCache(cfg.RedisAddr, ttl)
			if err := rc.Ping(ctx); err != nil {
				logger.Warn("redis cache unavailable, using file cache", "addr", cfg.RedisAddr, "err", err)
				_ = rc.Close()
				opts = append(opts, WithCache(NewCacheManager(filepath.Join(cfg.DataDir, "cache"), ttl)))
			} else {
				opts = append(opts, WithCache(rc))
			}
		} else {
			opts = append(opts, WithCache(NewCacheManager(filepath.Join(cfg.DataDir, "cache"), ttl)))
		}
	}

	client := NewClient(providers, opts...)
	logger.Debug("market data chain", "providers", client.Providers())
	return client
}

// Providers returns the provider names in fallback order.
func (c *Client) Providers() []string {
	names := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		names = append(names, p.Name())
	}
	return names
}

func (c *Client) coolingDown(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.cooldown[name]
	return ok && c.now().Before(until)
}

func (c *Client) noteError(name string, err error) {
	if !IsRateLimit(err) {
		return
	}
	c.mu.Lock()
	c.cooldown[name] = c.now().Add(rateLimitCooldown)
	c.mu.Unlock()
}

func (c *Client) cacheGet(ctx context.Context, method string, params, out any) bool {
	return c.cache != nil && c.cache.Get(ctx, "chain", method, params, out)
}

func (c *Client) cacheSet(ctx context.Context, method string, params, data any) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Set(ctx, "chain", method, params, data); err != nil {
		c.logger.Debug("cache write failed", "method", method, "err", err)
	}
}

// Quote returns the first successful provider's quote. When every provider
// fails the error wraps ErrDataUnavailable and each provider error.
func (c *Client) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return models.Quote{}, err
	}
	symbol = NormalizeSymbol(symbol)

	var cached models.Quote
	if c.cacheGet(ctx, "quote", symbol, &cached) {
		return cached, nil
	}

	var errs []error
	for _, p := range c.providers {
		if c.coolingDown(p.Name()) {
			continue
		}
		q, err := p.Quote(ctx, symbol)
		if err != nil {
			c.logger.Debug("provider quote failed", "provider", p.Name(), "symbol", symbol, "err", err)
			c.noteError(p.Name(), err)
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		q.Symbol = symbol
		q.Provider = p.Name()
		c.cacheSet(ctx, "quote", symbol, q)
		return q, nil
	}
	return models.Quote{}, fmt.Errorf("%w: quote %s: %w", ErrDataUnavailable, symbol, errors.Join(errs...))
}

func (c *Client) History(ctx context.Context, symbol string, days int) ([]models.Bar, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	symbol = NormalizeSymbol(symbol)
	params := map[string]any{"symbol": symbol, "days": days}

	var cached []models.Bar
	if c.cacheGet(ctx, "history", params, &cached) {
		return cached, nil
	}

	var errs []error
	for _, p := range c.providers {
		if c.coolingDown(p.Name()) {
			continue
		}
		bars, err := p.History(ctx, symbol, days)
		if err != nil {
			c.noteError(p.Name(), err)
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		c.cacheSet(ctx, "history", params, bars)
		return bars, nil
	}
	return nil, fmt.Errorf("%w: history %s: %w", ErrDataUnavailable, symbol, errors.Join(errs...))
}

// News asks news-capable providers in order.
func (c *Client) News(ctx context.Context, symbol string) ([]models.NewsArticle, error) {
	to := c.now()
	from := to.AddDate(0, 0, -c.newsDays)

	var errs []error
	for _, p := range c.providers {
		np, ok := p.(NewsProvider)
		if !ok || c.coolingDown(p.Name()) {
			continue
		}
		articles, err := np.News(ctx, symbol, from, to)
		if err != nil {
			c.noteError(p.Name(), err)
			errs = append(errs, err)
			continue
		}
		return articles, nil
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: no news provider configured", ErrDataUnavailable)
	}
	return nil, fmt.Errorf("%w: news %s: %w", ErrDataUnavailable, symbol, errors.Join(errs...))
}

type SnapshotOptions struct {
	// Overview adds sector ETF and index quotes.
	Overview bool
}

// Snapshot fetches quotes, history and news for every symbol, one request at
// a time. Symbols without a quote are marked unavailable instead of failing
// the whole snapshot.
func (c *Client) Snapshot(ctx context.Context, symbols []string, opts SnapshotOptions) *models.MarketData {
	md := models.NewMarketData()

	for _, sym := range symbols {
		if ctx.Err() != nil {
			md.Unavailable[sym] = true
			continue
		}
		q, err := c.Quote(ctx, sym)
		if err != nil {
			c.logger.Warn("market data unavailable", "symbol", sym, "err", err)
			md.Unavailable[sym] = true
			continue
		}
		md.Quotes[sym] = q

		if bars, err := c.History(ctx, sym, c.historyDays); err == nil {
			md.History[sym] = bars
		} else {
			c.logger.Debug("history unavailable", "symbol", sym, "err", err)
		}

		if articles, err := c.News(ctx, sym); err == nil {
			md.News[sym] = articles
			md.Sentiment[sym] = Sentiment(articles)
		}
	}

	if opts.Overview {
		for etf := range SectorETFs {
			if q, err := c.Quote(ctx, etf); err == nil {
				md.Sectors[etf] = q
			}
		}
		for idx := range MarketIndices {
			if q, err := c.Quote(ctx, idx); err == nil {
				md.Indices[idx] = q
			}
		}
	}
	return md
}
