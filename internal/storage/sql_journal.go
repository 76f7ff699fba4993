package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dyike/SchwabAI/internal/models"
	"github.com/shopspring/decimal"
)

// sqlJournal holds the queries shared by the SQLite and Postgres stores.
// Queries are written with ? placeholders and rebound per driver.
type sqlJournal struct {
	db     *sql.DB
	rebind func(string) string
	now    func() time.Time
}

func questionMarks(q string) string { return q }

// dollarPlaceholders rewrites ? placeholders as $1, $2, ...
func dollarPlaceholders(q string) string {
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlJournal) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *sqlJournal) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqlJournal) StartRun(ctx context.Context, run Run) error {
	if strings.TrimSpace(run.ID) == "" {
		return fmt.Errorf("run id is required")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = s.now()
	}
	_, err := s.exec(ctx, `
INSERT INTO runs (id, account_id, account_value, dry_run, status, started_at)
VALUES (?, ?, ?, ?, ?, ?)
`, run.ID, run.AccountID, run.AccountValue, run.DryRun, RunRunning, run.StartedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *sqlJournal) RecordRecommendation(ctx context.Context, runID string, rec models.Recommendation) error {
	_, err := s.exec(ctx, `
INSERT INTO recommendations (run_id, symbol, action, quantity, notional, percentage, target_weight, confidence, priority, source, rationale, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, runID, rec.Symbol, string(rec.Action), rec.Quantity, rec.Notional, rec.Percentage, rec.TargetWeight,
		rec.Confidence, rec.Priority, rec.Source, rec.Rationale, s.now())
	if err != nil {
		return fmt.Errorf("insert recommendation: %w", err)
	}
	return nil
}

func (s *sqlJournal) RecordTrade(ctx context.Context, runID string, res models.TradeResult) error {
	var side models.Side
	qty := decimal.Zero
	if res.Request != nil {
		side = res.Request.Side
		qty = res.Request.Quantity
	}
	at := res.At
	if at.IsZero() {
		at = s.now()
	}
	_, err := s.exec(ctx, `
INSERT INTO trades (run_id, symbol, action, side, quantity, price, status, order_id, reason, error_message, executed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, runID, res.Recommendation.Symbol, string(res.Recommendation.Action), string(side), qty, res.Price,
		string(res.Status), res.OrderID, res.Reason, res.Error, at)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

func (s *sqlJournal) FinishRun(ctx context.Context, runID, status string) error {
	if status == "" {
		status = RunDone
	}
	res, err := s.exec(ctx, `
UPDATE runs
SET status = ?, finished_at = ?
WHERE id = ?
`, status, s.now(), runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("finish run: run %s not found", runID)
	}
	return nil
}

// RecentTrades lists the newest journaled trades first.
func (s *sqlJournal) RecentTrades(ctx context.Context, limit int) ([]TradeRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 500 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`
SELECT run_id, symbol, action, side, quantity, price, status, order_id, reason, error_message, executed_at
FROM trades
ORDER BY executed_at DESC, id DESC
LIMIT ?
`), limit)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var (
			rec                  TradeRecord
			action, side, status string
		)
		if err := rows.Scan(&rec.RunID, &rec.Symbol, &action, &side, &rec.Quantity, &rec.Price, &status,
			&rec.OrderID, &rec.Reason, &rec.Error, &rec.ExecutedAt); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		rec.Action = models.Action(action)
		rec.Side = models.Side(side)
		rec.Status = models.TradeStatus(status)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list trades rows: %w", err)
	}
	return out, nil
}
