package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dyike/SchwabAI/internal/models"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure returned by Validate.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	ProjectDir string `json:"project_dir" yaml:"project_dir"`
	ReportsDir string `json:"reports_dir" yaml:"reports_dir"`
	DataDir    string `json:"data_dir" yaml:"data_dir"`

	// Schwab API
	SchwabAPIKey      string `json:"schwab_api_key" yaml:"schwab_api_key"`
	SchwabAppSecret   string `json:"schwab_app_secret" yaml:"schwab_app_secret"`
	SchwabCallbackURL string `json:"schwab_callback_url" yaml:"schwab_callback_url"`
	SchwabTokenPath   string `json:"schwab_token_path" yaml:"schwab_token_path"`
	SchwabAccountID   string `json:"schwab_account_id" yaml:"schwab_account_id"`

	// LLM providers
	LLMProvider     string `json:"llm_provider" yaml:"llm_provider"`
	OpenAIAPIKey    string `json:"openai_api_key" yaml:"openai_api_key"`
	OpenAIModel     string `json:"openai_model" yaml:"openai_model"`
	OpenAIBaseURL   string `json:"openai_base_url" yaml:"openai_base_url"`
	AnthropicAPIKey string `json:"anthropic_api_key" yaml:"anthropic_api_key"`
	AnthropicModel  string `json:"anthropic_model" yaml:"anthropic_model"`
	GeminiAPIKey    string `json:"gemini_api_key" yaml:"gemini_api_key"`
	GeminiModel     string `json:"gemini_model" yaml:"gemini_model"`
	DeepSeekAPIKey  string `json:"deepseek_api_key" yaml:"deepseek_api_key"`
	DeepSeekModel   string `json:"deepseek_model" yaml:"deepseek_model"`

	// Market data providers
	AlphaVantageAPIKey  string `json:"alpha_vantage_api_key" yaml:"alpha_vantage_api_key"`
	FinnhubAPIKey       string `json:"finnhub_api_key" yaml:"finnhub_api_key"`
	PolygonAPIKey       string `json:"polygon_api_key" yaml:"polygon_api_key"`
	LongportAppKey      string `json:"longport_app_key" yaml:"longport_app_key"`
	LongportAppSecret   string `json:"longport_app_secret" yaml:"longport_app_secret"`
	LongportAccessToken string `json:"longport_access_token" yaml:"longport_access_token"`

	// Risk parameters
	RiskTolerance            int     `json:"risk_tolerance" yaml:"risk_tolerance"`
	MaxPositionSizePercent   float64 `json:"max_position_size_percent" yaml:"max_position_size_percent"`
	MaxSectorExposurePercent float64 `json:"max_sector_exposure_percent" yaml:"max_sector_exposure_percent"`

	// Trading parameters
	EnableAutoTrading     bool    `json:"enable_auto_trading" yaml:"enable_auto_trading"`
	DryRun                bool    `json:"dry_run" yaml:"dry_run"`
	MaxTradesPerSession   int     `json:"max_trades_per_session" yaml:"max_trades_per_session"`
	MinCashReservePercent float64 `json:"min_cash_reserve_percent" yaml:"min_cash_reserve_percent"`

	CacheEnabled    bool   `json:"cache_enabled" yaml:"cache_enabled"`
	CacheTTLSeconds int    `json:"cache_ttl_seconds" yaml:"cache_ttl_seconds"`
	RedisAddr       string `json:"redis_addr" yaml:"redis_addr"`

	JournalDriver string `json:"journal_driver" yaml:"journal_driver"`
	JournalDSN    string `json:"journal_dsn" yaml:"journal_dsn"`

	KafkaBrokers []string `json:"kafka_brokers" yaml:"kafka_brokers"`
	KafkaTopic   string   `json:"kafka_topic" yaml:"kafka_topic"`

	LogLevel  string `json:"log_level" yaml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format"`
}

// Defaults returns the built-in settings without reading .env or the environment.
func Defaults() *Config {
	currentDir, _ := os.Getwd()

	return &Config{
		ProjectDir: currentDir,
		ReportsDir: filepath.Join(currentDir, "reports"),
		DataDir:    filepath.Join(currentDir, "data"),

		SchwabCallbackURL: "https://127.0.0.1:8182",
		SchwabTokenPath:   "token.json",

		OpenAIModel:    "gpt-4",
		AnthropicModel: "claude-3-opus-20240229",
		GeminiModel:    "gemini-pro",
		DeepSeekModel:  "deepseek-chat",

		RiskTolerance:            5,
		MaxPositionSizePercent:   10,
		MaxSectorExposurePercent: 25,

		EnableAutoTrading:     false,
		DryRun:                true,
		MaxTradesPerSession:   5,
		MinCashReservePercent: 5,

		CacheEnabled:    true,
		CacheTTLSeconds: 300,

		KafkaTopic: "trade-events",

		LogLevel:  "info",
		LogFormat: "text",
	}
}

// DefaultConfig returns defaults overridden by .env and the process environment.
func DefaultConfig() *Config {
	cfg := Defaults()

	_ = godotenv.Load()

	cfg.loadFromEnv()

	return cfg
}

// Load reads path (YAML, JSON or dotenv, chosen by extension) over the
// defaults. Environment variables take precedence over file values.
// An empty path behaves like DefaultConfig.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultConfig(), nil
	}

	cfg := Defaults()
	if err := loadConfigFromFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.loadFromEnv()
	return cfg, nil
}

func loadConfigFromFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse yaml config %s: %w", path, err)
		}
	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse json config %s: %w", path, err)
		}
	default:
		vars, err := godotenv.Read(path)
		if err != nil {
			return fmt.Errorf("read env config %s: %w", path, err)
		}
		cfg.apply(func(key string) string { return vars[key] })
	}
	return nil
}

func (c *Config) loadFromEnv() {
	c.apply(os.Getenv)
}

// apply overrides fields whose key lookup yields a non-empty value.
func (c *Config) apply(get func(string) string) {
	str := func(key string, dst *string) {
		if val := get(key); val != "" {
			*dst = val
		}
	}
	boolean := func(key string, dst *bool) {
		if val := get(key); val != "" {
			if v, err := strconv.ParseBool(val); err == nil {
				*dst = v
			}
		}
	}
	integer := func(key string, dst *int) {
		if val := get(key); val != "" {
			if v, err := strconv.Atoi(val); err == nil {
				*dst = v
			}
		}
	}
	float := func(key string, dst *float64) {
		if val := get(key); val != "" {
			if v, err := strconv.ParseFloat(val, 64); err == nil {
				*dst = v
			}
		}
	}

	str("PROJECT_DIR", &c.ProjectDir)
	str("REPORTS_DIR", &c.ReportsDir)
	str("DATA_DIR", &c.DataDir)

	str("SCHWAB_API_KEY", &c.SchwabAPIKey)
	str("SCHWAB_APP_SECRET", &c.SchwabAppSecret)
	str("SCHWAB_CALLBACK_URL", &c.SchwabCallbackURL)
	str("SCHWAB_TOKEN_PATH", &c.SchwabTokenPath)
	str("SCHWAB_ACCOUNT_ID", &c.SchwabAccountID)

	str("LLM_PROVIDER", &c.LLMProvider)
	str("OPENAI_API_KEY", &c.OpenAIAPIKey)
	str("OPENAI_MODEL", &c.OpenAIModel)
	str("OPENAI_BASE_URL", &c.OpenAIBaseURL)
	str("ANTHROPIC_API_KEY", &c.AnthropicAPIKey)
	str("ANTHROPIC_MODEL", &c.AnthropicModel)
	str("GEMINI_API_KEY", &c.GeminiAPIKey)
	str("GEMINI_MODEL", &c.GeminiModel)
	str("DEEPSEEK_API_KEY", &c.DeepSeekAPIKey)
	str("DEEPSEEK_MODEL", &c.DeepSeekModel)

	str("ALPHA_VANTAGE_API_KEY", &c.AlphaVantageAPIKey)
	str("FINNHUB_API_KEY", &c.FinnhubAPIKey)
	str("POLYGON_API_KEY", &c.PolygonAPIKey)
	str("LONGPORT_APP_KEY", &c.LongportAppKey)
	str("LONGPORT_APP_SECRET", &c.LongportAppSecret)
	str("LONGPORT_ACCESS_TOKEN", &c.LongportAccessToken)

	integer("RISK_TOLERANCE", &c.RiskTolerance)
	float("MAX_POSITION_SIZE_PERCENT", &c.MaxPositionSizePercent)
	float("MAX_SECTOR_EXPOSURE_PERCENT", &c.MaxSectorExposurePercent)

	boolean("ENABLE_AUTO_TRADING", &c.EnableAutoTrading)
	boolean("DRY_RUN", &c.DryRun)
	integer("MAX_TRADES_PER_SESSION", &c.MaxTradesPerSession)
	float("MIN_CASH_RESERVE_PERCENT", &c.MinCashReservePercent)

	boolean("CACHE_ENABLED", &c.CacheEnabled)
	integer("CACHE_TTL_SECONDS", &c.CacheTTLSeconds)
	str("REDIS_ADDR", &c.RedisAddr)

	str("JOURNAL_DRIVER", &c.JournalDriver)
	str("JOURNAL_DSN", &c.JournalDSN)

	if val := get("KAFKA_BROKERS"); val != "" {
		c.KafkaBrokers = splitList(val)
	}
	str("KAFKA_TOPIC", &c.KafkaTopic)

	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// HasLLMKey reports whether any LLM provider is configured.
func (c *Config) HasLLMKey() bool {
	return c.OpenAIAPIKey != "" || c.AnthropicAPIKey != "" || c.GeminiAPIKey != "" || c.DeepSeekAPIKey != ""
}

// Validate checks required credentials and numeric ranges. All violations
// are reported together.
func (c *Config) Validate() error {
	var errs []error
	if c.SchwabAPIKey == "" || c.SchwabAppSecret == "" {
		errs = append(errs, errors.New("SCHWAB_API_KEY and SCHWAB_APP_SECRET are required"))
	}
	if !c.HasLLMKey() {
		errs = append(errs, errors.New("at least one LLM API key is required"))
	}
	if c.RiskTolerance < 1 || c.RiskTolerance > 10 {
		errs = append(errs, fmt.Errorf("RISK_TOLERANCE must be between 1 and 10, got %d", c.RiskTolerance))
	}
	if c.MaxPositionSizePercent <= 0 || c.MaxPositionSizePercent > 100 {
		errs = append(errs, fmt.Errorf("MAX_POSITION_SIZE_PERCENT must be in (0, 100], got %g", c.MaxPositionSizePercent))
	}
	if c.MaxSectorExposurePercent <= 0 || c.MaxSectorExposurePercent > 100 {
		errs = append(errs, fmt.Errorf("MAX_SECTOR_EXPOSURE_PERCENT must be in (0, 100], got %g", c.MaxSectorExposurePercent))
	}
	if c.MinCashReservePercent < 0 || c.MinCashReservePercent >= 100 {
		errs = append(errs, fmt.Errorf("MIN_CASH_RESERVE_PERCENT must be in [0, 100), got %g", c.MinCashReservePercent))
	}
	if c.MaxTradesPerSession < 0 {
		errs = append(errs, fmt.Errorf("MAX_TRADES_PER_SESSION must not be negative, got %d", c.MaxTradesPerSession))
	}
	switch c.JournalDriver {
	case "", "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("JOURNAL_DRIVER must be sqlite or postgres, got %q", c.JournalDriver))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

func (c *Config) RiskProfile() models.RiskProfile {
	return models.RiskProfile{
		Tolerance:         c.RiskTolerance,
		MaxPositionPct:    c.MaxPositionSizePercent,
		MaxSectorPct:      c.MaxSectorExposurePercent,
		MinCashReservePct: c.MinCashReservePercent,
		MaxTrades:         c.MaxTradesPerSession,
	}
}

// Redacted returns a copy with secrets masked, for display.
func (c Config) Redacted() Config {
	mask := func(s *string) {
		if *s != "" {
			*s = "****"
		}
	}
	mask(&c.SchwabAPIKey)
	mask(&c.SchwabAppSecret)
	mask(&c.OpenAIAPIKey)
	mask(&c.AnthropicAPIKey)
	mask(&c.GeminiAPIKey)
	mask(&c.DeepSeekAPIKey)
	mask(&c.AlphaVantageAPIKey)
	mask(&c.FinnhubAPIKey)
	mask(&c.PolygonAPIKey)
	mask(&c.LongportAppSecret)
	mask(&c.LongportAccessToken)
	mask(&c.JournalDSN)
	return c
}

func (c *Config) EnsureDirectories() error {
	dirs := []string{c.ProjectDir, c.ReportsDir, c.DataDir}
	if c.SchwabTokenPath != "" {
		dirs = append(dirs, filepath.Dir(c.SchwabTokenPath))
	}
	for _, dir := range dirs {
		path := strings.TrimSpace(dir)
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", path, err)
		}
	}
	return nil
}
