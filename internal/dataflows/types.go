// Package dataflows fetches quotes, price history and news from market-data
// vendors, falling back from one provider to the next.
package dataflows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dyike/SchwabAI/internal/models"
)

// ErrDataUnavailable is returned when no provider could serve a request.
var ErrDataUnavailable = errors.New("market data unavailable")

// Provider is one market-data vendor.
type Provider interface {
	Name() string
	Quote(ctx context.Context, symbol string) (models.Quote, error)
	History(ctx context.Context, symbol string, days int) ([]models.Bar, error)
}

// NewsProvider is implemented by vendors that also serve company news.
type NewsProvider interface {
	News(ctx context.Context, symbol string, from, to time.Time) ([]models.NewsArticle, error)
}

type ErrorKind string

const (
	KindNetwork   ErrorKind = "network"
	KindRateLimit ErrorKind = "rate_limit"
	KindProvider  ErrorKind = "provider_error"
	KindBadSymbol ErrorKind = "bad_symbol"
)

// QuoteError describes why one provider failed for one symbol.
type QuoteError struct {
	Kind     ErrorKind
	Provider string
	Symbol   string
	Message  string
	Cause    error
}

func (e *QuoteError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s error for %s: %s (%v)", e.Provider, e.Kind, e.Symbol, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s error for %s: %s", e.Provider, e.Kind, e.Symbol, e.Message)
}

func (e *QuoteError) Unwrap() error { return e.Cause }

func NewNetworkError(provider, symbol string, cause error) *QuoteError {
	return &QuoteError{Kind: KindNetwork, Provider: provider, Symbol: symbol, Message: "request failed", Cause: cause}
}

func NewRateLimitError(provider, symbol, message string) *QuoteError {
	return &QuoteError{Kind: KindRateLimit, Provider: provider, Symbol: symbol, Message: message}
}

func NewProviderError(provider, symbol, message string, cause error) *QuoteError {
	return &QuoteError{Kind: KindProvider, Provider: provider, Symbol: symbol, Message: message, Cause: cause}
}

func NewBadSymbolError(provider, symbol, message string) *QuoteError {
	return &QuoteError{Kind: KindBadSymbol, Provider: provider, Symbol: symbol, Message: message}
}

// IsRateLimit reports whether err is a provider rate-limit error.
func IsRateLimit(err error) bool {
	var qe *QuoteError
	return errors.As(err, &qe) && qe.Kind == KindRateLimit
}
