// Package trading runs one portfolio management session end to end.
package trading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/dyike/SchwabAI/config"
	"github.com/dyike/SchwabAI/internal/analysis"
	"github.com/dyike/SchwabAI/internal/broker"
	"github.com/dyike/SchwabAI/internal/dataflows"
	"github.com/dyike/SchwabAI/internal/events"
	"github.com/dyike/SchwabAI/internal/execute"
	"github.com/dyike/SchwabAI/internal/llm"
	"github.com/dyike/SchwabAI/internal/logging"
	"github.com/dyike/SchwabAI/internal/models"
	"github.com/dyike/SchwabAI/internal/recommend"
	"github.com/dyike/SchwabAI/internal/report"
	"github.com/dyike/SchwabAI/internal/storage"
)

// MarketData is the part of the market-data client a session needs.
type MarketData interface {
	Snapshot(ctx context.Context, symbols []string, opts dataflows.SnapshotOptions) *models.MarketData
}

type Options struct {
	AnalyzeOnly    bool
	GenerateReport bool
}

// Result is everything a session learned and did.
type Result struct {
	RunID           string
	Portfolio       *models.Portfolio
	MarketData      *models.MarketData
	Metrics         analysis.PortfolioMetrics
	Risk            analysis.RiskReport
	LLMProvider     string
	Analysis        *llm.Analysis
	Recommendations []models.Recommendation
	Trades          []models.TradeResult
	// Executed is false when auto trading is disabled or the run was analysis only.
	Executed    bool
	DryRun      bool
	ReportPaths *report.Paths
	// SnapshotPath is where the raw market data was saved, empty when not saved.
	SnapshotPath string
}

// Session wires the pipeline. LLM may be nil, in which case the run relies
// on the engine's heuristics alone. Journal and Publisher default to no-ops.
type Session struct {
	Config    *config.Config
	Broker    broker.Broker
	Market    MarketData
	LLM       llm.Client
	Engine    *recommend.Engine
	Journal   storage.Journal
	Publisher events.Publisher
	Logger    *slog.Logger

	now func() time.Time
}

// Execute runs portfolio, market data, analysis, recommendations and
// execution in that order. Only a failure to read the portfolio is fatal;
// vendor failures degrade the run instead.
func (s *Session) Execute(ctx context.Context, opts Options) (*Result, error) {
	logger := logging.OrDefault(s.Logger)
	now := s.now
	if now == nil {
		now = time.Now
	}
	journal := s.Journal
	if journal == nil {
		journal = storage.Nop{}
	}
	engine := s.Engine
	if engine == nil {
		engine = recommend.NewEngine(recommend.WithLogger(logger))
	}

	started := now()
	res := &Result{RunID: storage.NewRunID(started), DryRun: s.Config.DryRun}
	logger = logger.With("run_id", res.RunID)

	p, err := s.Broker.Portfolio(ctx)
	if err != nil {
		if errors.Is(err, broker.ErrNotAuthenticated) {
			return nil, err
		}
		return nil, fmt.Errorf("fetch portfolio: %w", err)
	}
	logger.Info("portfolio loaded", "positions", len(p.Positions), "account_value", p.AccountValue.StringFixed(2))

	if err := journal.StartRun(ctx, storage.Run{
		ID:           res.RunID,
		AccountID:    p.AccountID,
		AccountValue: p.AccountValue,
		DryRun:       s.Config.DryRun,
		StartedAt:    started,
	}); err != nil {
		logger.Warn("journal start failed", "error", err)
	}
	status := storage.RunError
	defer func() {
		if err := journal.FinishRun(context.WithoutCancel(ctx), res.RunID, status); err != nil {
			logger.Warn("journal finish failed", "error", err)
		}
	}()

	symbols := p.Symbols()
	if etf := engine.CashETF(); etf != "" && !p.Held(etf) {
		symbols = append(symbols, etf)
	}
	md := s.Market.Snapshot(ctx, symbols, dataflows.SnapshotOptions{Overview: true})
	if len(md.Unavailable) > 0 {
		logger.Warn("market data incomplete", "unavailable", len(md.Unavailable), "requested", len(symbols))
	}
	p = p.WithQuotes(md.Quotes)
	res.SnapshotPath = s.saveSnapshot(logger, res.RunID, md)

	res.Portfolio = p
	res.MarketData = md
	res.Metrics = analysis.Metrics(p)
	res.Risk = analysis.Assess(p, md.History)
	logger.Info("risk assessed", "overall", fmt.Sprintf("%.1f", res.Risk.Overall), "level", res.Risk.Level)

	profile := s.Config.RiskProfile()
	if s.LLM != nil {
		res.LLMProvider = s.LLM.Name()
		res.Analysis = s.analyze(ctx, logger, p, md, profile)
	}

	if opts.AnalyzeOnly {
		logger.Info("analysis only, skipping recommendations")
		s.writeReport(logger, res, opts, now())
		status = storage.RunDone
		return res, nil
	}

	var llmRecs []models.Recommendation
	if res.Analysis != nil {
		llmRecs = s.suggest(ctx, logger, p, *res.Analysis, profile)
	}
	res.Recommendations = engine.Generate(ctx, recommend.Input{
		Portfolio:  p,
		MarketData: md,
		Profile:    profile,
		LLM:        llmRecs,
	})
	for _, rec := range res.Recommendations {
		if err := journal.RecordRecommendation(ctx, res.RunID, rec); err != nil {
			logger.Warn("journal recommendation failed", "symbol", rec.Symbol, "error", err)
		}
	}

	if s.Config.EnableAutoTrading {
		exec := &execute.Executor{
			Broker:    s.Broker,
			Journal:   journal,
			Publisher: s.Publisher,
			Logger:    logger,
			RunID:     res.RunID,
		}
		res.Trades = exec.Run(ctx, res.Recommendations, profile, p, md.Prices(), s.Config.DryRun)
		res.Executed = true
		sum := execute.Summarize(res.Trades)
		logger.Info("execution finished",
			"simulated", sum.Simulated, "completed", sum.Completed, "failed", sum.Failed, "rejected", sum.Rejected)
	} else {
		logger.Info("auto trading disabled, recommendations not executed", "count", len(res.Recommendations))
	}

	s.writeReport(logger, res, opts, now())
	status = storage.RunDone
	return res, nil
}

// analyze asks the model for a portfolio analysis. Any failure yields nil.
func (s *Session) analyze(ctx context.Context, logger *slog.Logger, p *models.Portfolio, md *models.MarketData, profile models.RiskProfile) *llm.Analysis {
	req, err := llm.PortfolioAnalysisPrompt(ctx, p, md, profile)
	if err != nil {
		logger.Warn("build analysis prompt failed", "error", err)
		return nil
	}
	text, err := s.LLM.Complete(ctx, req)
	if err != nil {
		logger.Warn("llm analysis failed", "provider", s.LLM.Name(), "error", err)
		return nil
	}
	a := llm.ParseAnalysis(text)
	return &a
}

// suggest asks the model for trade recommendations. Any failure yields none.
func (s *Session) suggest(ctx context.Context, logger *slog.Logger, p *models.Portfolio, a llm.Analysis, profile models.RiskProfile) []models.Recommendation {
	req, err := llm.RecommendationsPrompt(ctx, p, a, profile)
	if err != nil {
		logger.Warn("build recommendations prompt failed", "error", err)
		return nil
	}
	text, err := s.LLM.Complete(ctx, req)
	if err != nil {
		logger.Warn("llm recommendations failed", "provider", s.LLM.Name(), "error", err)
		return nil
	}
	recs := llm.ParseRecommendations(text)
	logger.Info("llm recommendations parsed", "count", len(recs))
	return recs
}

// saveSnapshot keeps the market data a run decided on under the data
// directory so a run can be audited later.
func (s *Session) saveSnapshot(logger *slog.Logger, runID string, md *models.MarketData) string {
	if s.Config.DataDir == "" {
		return ""
	}
	path := filepath.Join(s.Config.DataDir, "snapshots", runID+".json")
	if err := dataflows.SaveDataToFile(md, path); err != nil {
		logger.Warn("market snapshot not saved", "path", path, "error", err)
		return ""
	}
	return path
}

func (s *Session) writeReport(logger *slog.Logger, res *Result, opts Options, at time.Time) {
	if !opts.GenerateReport {
		return
	}
	paths, err := report.Write(s.Config.ReportsDir, Report(res, at))
	if err != nil {
		logger.Error("report generation failed", "error", err)
		return
	}
	res.ReportPaths = &paths
	logger.Info("report written", "path", paths.HTML)
}

// Report converts a session result into a renderable report.
func Report(res *Result, at time.Time) *report.Report {
	return &report.Report{
		GeneratedAt:     at,
		RunID:           res.RunID,
		DryRun:          res.DryRun,
		Portfolio:       res.Portfolio,
		Metrics:         res.Metrics,
		Risk:            res.Risk,
		Market:          res.MarketData,
		LLMProvider:     res.LLMProvider,
		Analysis:        res.Analysis,
		Recommendations: res.Recommendations,
		Trades:          res.Trades,
	}
}
