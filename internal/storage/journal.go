// Package storage keeps a journal of trading runs: the recommendations each
// run produced and what happened to every order.
package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/dyike/SchwabAI/internal/models"
	"github.com/shopspring/decimal"
)

const (
	RunRunning = "running"
	RunDone    = "done"
	RunError   = "error"
)

type Run struct {
	ID           string
	AccountID    string
	AccountValue decimal.Decimal
	DryRun       bool
	StartedAt    time.Time
}

// TradeRecord is one journaled executor result.
type TradeRecord struct {
	RunID      string
	Symbol     string
	Action     models.Action
	Side       models.Side
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	Status     models.TradeStatus
	OrderID    string
	Reason     string
	Error      string
	ExecutedAt time.Time
}

// Journal is the persistence seam used by the trading session and executor.
// Implementations must be safe to call from one goroutine at a time.
type Journal interface {
	StartRun(ctx context.Context, run Run) error
	RecordRecommendation(ctx context.Context, runID string, rec models.Recommendation) error
	RecordTrade(ctx context.Context, runID string, res models.TradeResult) error
	FinishRun(ctx context.Context, runID, status string) error
	RecentTrades(ctx context.Context, limit int) ([]TradeRecord, error)
	Close() error
}

// Open returns the journal for driver. An empty driver disables journaling.
func Open(driver, dsn string) (Journal, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "none":
		return Nop{}, nil
	case "sqlite", "sqlite3":
		return OpenSQLite(dsn)
	case "postgres", "postgresql":
		return OpenPostgres(dsn)
	}
	return nil, fmt.Errorf("unknown journal driver %q", driver)
}

// NewRunID returns a sortable, practically unique run identifier.
func NewRunID(now time.Time) string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return now.UTC().Format("20060102T150405") + "-" + hex.EncodeToString(buf)
}

// Nop discards everything.
type Nop struct{}

func (Nop) StartRun(context.Context, Run) error { return nil }
func (Nop) RecordRecommendation(context.Context, string, models.Recommendation) error { return nil }
func (Nop) RecordTrade(context.Context, string, models.TradeResult) error { return nil }
func (Nop) FinishRun(context.Context, string, string) error { return nil }
func (Nop) RecentTrades(context.Context, int) ([]TradeRecord, error) { return nil, nil }
func (Nop) Close() error { return nil }
