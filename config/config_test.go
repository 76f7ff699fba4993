package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"PROJECT_DIR", "REPORTS_DIR", "DATA_DIR",
	"SCHWAB_API_KEY", "SCHWAB_APP_SECRET", "SCHWAB_CALLBACK_URL", "SCHWAB_TOKEN_PATH", "SCHWAB_ACCOUNT_ID",
	"LLM_PROVIDER", "OPENAI_API_KEY", "OPENAI_MODEL", "OPENAI_BASE_URL", "ANTHROPIC_API_KEY", "ANTHROPIC_MODEL",
	"GEMINI_API_KEY", "GEMINI_MODEL", "DEEPSEEK_API_KEY", "DEEPSEEK_MODEL",
	"ALPHA_VANTAGE_API_KEY", "FINNHUB_API_KEY", "POLYGON_API_KEY",
	"LONGPORT_APP_KEY", "LONGPORT_APP_SECRET", "LONGPORT_ACCESS_TOKEN",
	"RISK_TOLERANCE", "MAX_POSITION_SIZE_PERCENT", "MAX_SECTOR_EXPOSURE_PERCENT",
	"ENABLE_AUTO_TRADING", "DRY_RUN", "MAX_TRADES_PER_SESSION", "MIN_CASH_RESERVE_PERCENT",
	"CACHE_ENABLED", "CACHE_TTL_SECONDS", "REDIS_ADDR", "JOURNAL_DRIVER", "JOURNAL_DSN",
	"KAFKA_BROKERS", "KAFKA_TOPIC", "LOG_LEVEL", "LOG_FORMAT",
}

// clearEnv blanks every recognised variable so the host environment cannot
// leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 5, cfg.RiskTolerance)
	assert.Equal(t, 10.0, cfg.MaxPositionSizePercent)
	assert.Equal(t, 25.0, cfg.MaxSectorExposurePercent)
	assert.Equal(t, 5.0, cfg.MinCashReservePercent)
	assert.Equal(t, 5, cfg.MaxTradesPerSession)
	assert.True(t, cfg.DryRun)
	assert.False(t, cfg.EnableAutoTrading)
	assert.Equal(t, "gpt-4", cfg.OpenAIModel)
}

func TestLoadYAMLThenEnvOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yml")
	content := "schwab_api_key: file-key\nschwab_app_secret: file-secret\nrisk_tolerance: 3\nmax_position_size_percent: 7.5\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("RISK_TOLERANCE", "8")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "file-key", cfg.SchwabAPIKey)
	assert.Equal(t, 8, cfg.RiskTolerance)
	assert.Equal(t, 7.5, cfg.MaxPositionSizePercent)
	assert.Equal(t, 25.0, cfg.MaxSectorExposurePercent)
}

func TestLoadDotenvFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "prod.env")
	content := "SCHWAB_API_KEY=k\nSCHWAB_APP_SECRET=s\nDRY_RUN=false\nKAFKA_BROKERS=a:9092, b:9092\nMIN_CASH_RESERVE_PERCENT=12.5\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.DryRun)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 12.5, cfg.MinCashReservePercent)
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing schwab", func(c *Config) { c.SchwabAPIKey = "" }, true},
		{"no llm key", func(c *Config) { c.OpenAIAPIKey = "" }, true},
		{"gemini only", func(c *Config) { c.OpenAIAPIKey = ""; c.GeminiAPIKey = "g" }, false},
		{"tolerance low", func(c *Config) { c.RiskTolerance = 0 }, true},
		{"tolerance high", func(c *Config) { c.RiskTolerance = 11 }, true},
		{"position zero", func(c *Config) { c.MaxPositionSizePercent = 0 }, true},
		{"position 100", func(c *Config) { c.MaxPositionSizePercent = 100 }, false},
		{"sector over", func(c *Config) { c.MaxSectorExposurePercent = 101 }, true},
		{"cash 100", func(c *Config) { c.MinCashReservePercent = 100 }, true},
		{"negative trades", func(c *Config) { c.MaxTradesPerSession = -1 }, true},
		{"bad journal", func(c *Config) { c.JournalDriver = "mysql" }, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig(t.TempDir())
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalid))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateReportsAllViolations(t *testing.T) {
	cfg := Defaults()
	cfg.RiskTolerance = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SCHWAB_API_KEY")
	assert.Contains(t, err.Error(), "LLM")
	assert.Contains(t, err.Error(), "RISK_TOLERANCE")
}

func TestRiskProfile(t *testing.T) {
	cfg := Defaults()
	p := cfg.RiskProfile()
	assert.Equal(t, 5, p.Tolerance)
	assert.Equal(t, 10.0, p.MaxPositionPct)
	assert.Equal(t, 25.0, p.MaxSectorPct)
	assert.Equal(t, 5.0, p.MinCashReservePct)
	assert.Equal(t, 5, p.MaxTrades)
}

func TestRedacted(t *testing.T) {
	cfg := validConfig(t.TempDir())
	r := cfg.Redacted()
	assert.Equal(t, "****", r.SchwabAppSecret)
	assert.Equal(t, "****", r.OpenAIAPIKey)
	assert.Equal(t, "", r.GeminiAPIKey)
	assert.Equal(t, "secret", cfg.SchwabAppSecret)
}
