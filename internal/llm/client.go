// Package llm sends prompts to one of several completion providers and
// turns the free-text answers into analysis sections and recommendations.
package llm

import (
	"context"
	"errors"
)

var ErrNoProvider = errors.New("no LLM provider configured")

const (
	DefaultTemperature float32 = 0.2
	DefaultMaxTokens           = 2000
)

// DefaultSystemPrompt frames every request unless the caller overrides it.
const DefaultSystemPrompt = "You are a financial analyst and investment advisor specializing in risk-averse " +
	"portfolio management. You analyze market data, news and portfolio information to provide " +
	"investment recommendations. Focus on capital preservation, risk management and stable returns " +
	"while considering diversification, volatility and fundamental analysis."

type Request struct {
	System      string
	Prompt      string
	Temperature float32
	MaxTokens   int
}

func (r Request) withDefaults() Request {
	if r.System == "" {
		r.System = DefaultSystemPrompt
	}
	if r.Temperature <= 0 {
		r.Temperature = DefaultTemperature
	}
	if r.MaxTokens <= 0 {
		r.MaxTokens = DefaultMaxTokens
	}
	return r
}

// Client is one completion provider.
type Client interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}
