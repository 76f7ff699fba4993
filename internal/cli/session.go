package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dyike/SchwabAI/config"
	"github.com/dyike/SchwabAI/internal/broker"
	"github.com/dyike/SchwabAI/internal/dataflows"
	"github.com/dyike/SchwabAI/internal/events"
	"github.com/dyike/SchwabAI/internal/llm"
	"github.com/dyike/SchwabAI/internal/models"
	"github.com/dyike/SchwabAI/internal/recommend"
	"github.com/dyike/SchwabAI/internal/report"
	"github.com/dyike/SchwabAI/internal/storage"
	"github.com/dyike/SchwabAI/internal/trading"
)

// paperStartingCash funds a paper account when no seed file is given.
var paperStartingCash = decimal.NewFromInt(100_000)

// validateFor checks cfg for the chosen broker. The paper broker does not
// need Schwab credentials.
func validateFor(cfg *config.Config, brokerName string) error {
	check := *cfg
	if brokerName == brokerPaper {
		check.SchwabAPIKey, check.SchwabAppSecret = brokerPaper, brokerPaper
	}
	return check.Validate()
}

// runSession executes one management run and prints its outcome.
func runSession(ctx context.Context, out io.Writer, opts *rootOptions) error {
	cfg, logger, err := opts.load()
	if err != nil {
		return err
	}
	if opts.dryRun {
		cfg.DryRun = true
	}
	if err := validateFor(cfg, opts.brokerName); err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	market := dataflows.NewClientFromConfig(ctx, cfg, logger)
	brk, err := newBroker(ctx, cfg, opts, market, logger)
	if err != nil {
		return err
	}

	journal := openJournal(cfg, logger)
	defer journal.Close()
	publisher := events.New(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer publisher.Close()

	sess := &trading.Session{
		Config:    cfg,
		Broker:    brk,
		Market:    market,
		LLM:       newLLM(ctx, cfg, logger),
		Engine:    recommend.NewEngine(recommend.WithLogger(logger)),
		Journal:   journal,
		Publisher: publisher,
		Logger:    logger,
	}

	DisplayBanner(out, cfg, opts.brokerName)
	res, err := sess.Execute(ctx, trading.Options{
		AnalyzeOnly:    opts.analyzeOnly,
		GenerateReport: opts.generateReport,
	})
	if err != nil {
		if errors.Is(err, broker.ErrNotAuthenticated) {
			return fmt.Errorf("%w (run `schwabai login`)", err)
		}
		return err
	}

	DisplayResult(out, res)
	if opts.showReport {
		rendered, err := report.Terminal(trading.Report(res, res.Portfolio.FetchedAt))
		if err != nil {
			logger.Warn("render report failed", "error", err)
		} else {
			fmt.Fprint(out, rendered)
		}
	}
	return nil
}

func newBroker(ctx context.Context, cfg *config.Config, opts *rootOptions, prices broker.PriceSource, logger *slog.Logger) (broker.Broker, error) {
	switch strings.ToLower(opts.brokerName) {
	case brokerPaper:
		seed, err := loadPaperSeed(opts.paperSeed)
		if err != nil {
			return nil, err
		}
		logger.Info("using paper broker", "cash", seed.Cash.StringFixed(2), "positions", len(seed.Positions))
		return broker.NewPaper(seed).UsePrices(prices), nil
	case "", brokerSchwab:
		auth := broker.NewAuthenticator(cfg.SchwabAPIKey, cfg.SchwabAppSecret, cfg.SchwabCallbackURL, cfg.SchwabTokenPath, logger)
		httpClient, err := auth.HTTPClient(ctx)
		if err != nil {
			return nil, err
		}
		return broker.NewSchwab(httpClient, broker.SchwabOptions{AccountID: cfg.SchwabAccountID, Logger: logger}), nil
	}
	return nil, fmt.Errorf("unknown broker %q, want schwab or paper", opts.brokerName)
}

// loadPaperSeed reads a portfolio JSON file. An empty path gives an
// all-cash account.
func loadPaperSeed(path string) (*models.Portfolio, error) {
	if path == "" {
		return models.NewPortfolio("PAPER", nil, paperStartingCash), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read paper portfolio: %w", err)
	}
	var p models.Portfolio
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse paper portfolio %s: %w", path, err)
	}
	if p.AccountID == "" {
		p.AccountID = "PAPER"
	}
	return models.NewPortfolio(p.AccountID, p.Positions, p.Cash), nil
}

// newLLM returns nil when no provider can be built; the run then relies on
// the rule engine alone.
func newLLM(ctx context.Context, cfg *config.Config, logger *slog.Logger) llm.Client {
	client, err := llm.New(ctx, cfg, logger)
	if err != nil {
		logger.Warn("LLM unavailable, continuing without AI analysis", "error", err)
		return nil
	}
	return client
}

// journalDSN defaults the SQLite journal into the data directory.
func journalDSN(cfg *config.Config) string {
	if cfg.JournalDSN == "" && strings.HasPrefix(strings.ToLower(cfg.JournalDriver), "sqlite") {
		return filepath.Join(cfg.DataDir, "journal.db")
	}
	return cfg.JournalDSN
}

// openJournal falls back to a no-op journal so a broken database never
// blocks a run.
func openJournal(cfg *config.Config, logger *slog.Logger) storage.Journal {
	j, err := storage.Open(cfg.JournalDriver, journalDSN(cfg))
	if err != nil {
		logger.Warn("trade journal unavailable", "driver", cfg.JournalDriver, "error", err)
		return storage.Nop{}
	}
	return j
}

// runLogin stores a fresh token. Plain http callbacks are served locally,
// anything else is completed by pasting the redirect URL.
func runLogin(ctx context.Context, in io.Reader, out io.Writer, cfg *config.Config, logger *slog.Logger) error {
	if cfg.SchwabAPIKey == "" || cfg.SchwabAppSecret == "" {
		return fmt.Errorf("%w: SCHWAB_API_KEY and SCHWAB_APP_SECRET are required", config.ErrInvalid)
	}
	auth := broker.NewAuthenticator(cfg.SchwabAPIKey, cfg.SchwabAppSecret, cfg.SchwabCallbackURL, cfg.SchwabTokenPath, logger)

	if u, err := url.Parse(cfg.SchwabCallbackURL); err == nil && u.Scheme == "http" {
		err := auth.Login(ctx, func(link string) {
			fmt.Fprintln(out, "Open this URL in your browser to authorize SchwabAI:")
			fmt.Fprintln(out, link)
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(out, successStyle.Render("Login complete, token saved to "+cfg.SchwabTokenPath))
		return nil
	}

	state := broker.NewState()
	fmt.Fprintln(out, "Open this URL in your browser to authorize SchwabAI:")
	fmt.Fprintln(out, auth.AuthURL(state))
	fmt.Fprint(out, "Paste the URL you were redirected to: ")

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read redirect url: %w", err)
	}
	if strings.TrimSpace(line) == "" {
		return errors.New("no redirect url entered")
	}
	if err := auth.ExchangeRedirect(ctx, line, state); err != nil {
		return err
	}
	fmt.Fprintln(out, successStyle.Render("Login complete, token saved to "+cfg.SchwabTokenPath))
	return nil
}
