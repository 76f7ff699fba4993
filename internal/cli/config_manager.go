package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dyike/SchwabAI/config"
)

// newConfigCmd creates the config command
func newConfigCmd(opts *rootOptions) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "Inspect, validate, create and watch the SchwabAI configuration",
	}

	var asJSON bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			return showConfig(cmd.OutOrStdout(), cfg, asJSON)
		},
	}
	showCmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of YAML")
	configCmd.AddCommand(showCmd)

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate credentials and risk parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			return validateConfig(cmd.OutOrStdout(), cfg)
		},
	})

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [PATH]",
		Short: "Write a configuration file with default values",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "schwabai.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			return initConfig(cmd.OutOrStdout(), path, force)
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	configCmd.AddCommand(initCmd)

	configCmd.AddCommand(&cobra.Command{
		Use:   "watch",
		Short: "Watch the configuration file and report validated changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.configPath == "" {
				return errors.New("--config is required for watch")
			}
			_, logger, err := opts.load()
			if err != nil {
				return err
			}
			mgr, err := config.NewManager(config.WithConfigPath(opts.configPath), config.WithLogger(logger))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Watching %s (Ctrl+C to stop)\n", mgr.Path())
			ctx := cmd.Context()
			if err := mgr.Watch(ctx, func(cfg config.Config) {
				fmt.Fprintln(out, successStyle.Render("Configuration reloaded"))
				printRiskSettings(out, &cfg)
			}); err != nil {
				return err
			}
			<-ctx.Done()
			return nil
		},
	})

	return configCmd
}

// showConfig prints the redacted configuration.
func showConfig(w io.Writer, cfg *config.Config, asJSON bool) error {
	redacted := cfg.Redacted()
	var (
		data []byte
		err  error
	)
	if asJSON {
		data, err = json.MarshalIndent(&redacted, "", "  ")
		data = append(data, '\n')
	} else {
		data, err = yaml.Marshal(&redacted)
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	fmt.Fprintln(w, titleStyle.Render("SchwabAI configuration"))
	_, err = w.Write(data)
	return err
}

// validateConfig reports every violation and the optional integrations
// that are not configured.
func validateConfig(w io.Writer, cfg *config.Config) error {
	fmt.Fprintln(w, titleStyle.Render("Validating SchwabAI configuration"))

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(w, errorStyle.Render("Configuration is invalid:"))
		fmt.Fprintln(w, err)
		return err
	}

	var warnings []string
	if cfg.AlphaVantageAPIKey == "" && cfg.FinnhubAPIKey == "" && cfg.PolygonAPIKey == "" && cfg.LongportAppKey == "" {
		warnings = append(warnings, "no market data API key, only Yahoo Finance will be used")
	}
	if _, err := os.Stat(cfg.SchwabTokenPath); err != nil {
		warnings = append(warnings, "no Schwab token at "+cfg.SchwabTokenPath+", run `schwabai login`")
	}
	if cfg.EnableAutoTrading && !cfg.DryRun {
		warnings = append(warnings, "auto trading is enabled with dry run off, real orders will be placed")
	}
	for _, msg := range warnings {
		fmt.Fprintln(w, warningStyle.Render("  ! "+msg))
	}

	printRiskSettings(w, cfg)
	fmt.Fprintln(w, successStyle.Render("Configuration is valid"))
	return nil
}

func printRiskSettings(w io.Writer, cfg *config.Config) {
	profile := cfg.RiskProfile()
	fmt.Fprintf(w, "  Risk tolerance:       %d/10\n", profile.Tolerance)
	fmt.Fprintf(w, "  Max position:         %.1f%%\n", profile.MaxPositionPct)
	fmt.Fprintf(w, "  Max sector exposure:  %.1f%%\n", profile.MaxSectorPct)
	fmt.Fprintf(w, "  Min cash reserve:     %.1f%%\n", profile.MinCashReservePct)
	fmt.Fprintf(w, "  Max trades/session:   %d\n", profile.MaxTrades)
	fmt.Fprintf(w, "  Auto trading:         %t (dry run %t)\n", cfg.EnableAutoTrading, cfg.DryRun)
}

// initConfig writes the built-in defaults, without secrets from the
// environment, to path.
func initConfig(w io.Writer, path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists, use --force to overwrite", path)
	}
	if err := config.WriteFile(path, *config.Defaults()); err != nil {
		return err
	}
	fmt.Fprintln(w, successStyle.Render("Wrote "+path))
	return nil
}
