package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dyike/SchwabAI/config"
	"github.com/dyike/SchwabAI/internal/logging"
)

// Version is overridden at build time with -ldflags.
var Version = "dev"

const (
	brokerSchwab = "schwab"
	brokerPaper  = "paper"
)

// rootOptions carries flag values shared by the subcommands.
type rootOptions struct {
	configPath string
	logLevel   string

	analyzeOnly    bool
	generateReport bool
	dryRun         bool
	showReport     bool
	brokerName     string
	paperSeed      string
}

// load reads the configuration and installs the process logger. The
// --log-level flag wins over LOG_LEVEL.
func (o *rootOptions) load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	level := cfg.LogLevel
	if o.logLevel != "" {
		level = o.logLevel
	}
	logger, err := logging.Setup(os.Stderr, level, cfg.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "schwabai",
		Short: "SchwabAI - AI-assisted portfolio management for Schwab accounts",
		Long: `SchwabAI reads a Schwab brokerage account, scores its risk, asks an LLM for
an opinion and turns rule-based and model recommendations into orders.
Orders are only placed when auto trading is enabled, and never in dry-run mode.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Configuration file path (.yaml, .json or dotenv)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn or error")

	// Run flags
	rootCmd.Flags().BoolVar(&opts.analyzeOnly, "analyze-only", false, "Analyze the portfolio without recommending or trading")
	rootCmd.Flags().BoolVar(&opts.generateReport, "generate-report", false, "Write JSON, Markdown and HTML reports")
	rootCmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Simulate trades even if the configuration disables dry run")
	rootCmd.Flags().BoolVar(&opts.showReport, "show-report", false, "Print the full Markdown report to the terminal")
	rootCmd.Flags().StringVar(&opts.brokerName, "broker", brokerSchwab, "Broker backend: schwab or paper")
	rootCmd.Flags().StringVar(&opts.paperSeed, "paper-portfolio", "", "Portfolio JSON file seeding the paper broker")

	rootCmd.AddCommand(newLoginCmd(opts))
	rootCmd.AddCommand(newConfigCmd(opts))
	rootCmd.AddCommand(newHistoryCmd(opts))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// newVersionCmd creates the version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "schwabai %s\n", Version)
		},
	}
}

// newLoginCmd runs the Schwab OAuth flow and stores the token file.
func newLoginCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authorize SchwabAI against your Schwab account",
		Long: `Opens the Schwab authorization flow. With an http:// callback URL a local
server receives the redirect; otherwise paste the URL the browser landed on.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			return runLogin(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), cfg, logger)
		},
	}
}
