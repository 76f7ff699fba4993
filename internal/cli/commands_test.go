package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/SchwabAI/config"
)

var credentialEnv = []string{
	"SCHWAB_API_KEY", "SCHWAB_APP_SECRET", "SCHWAB_TOKEN_PATH",
	"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY", "DEEPSEEK_API_KEY",
	"LOG_LEVEL", "LOG_FORMAT",
}

func clearCredentials(t *testing.T) {
	t.Helper()
	for _, k := range credentialEnv {
		t.Setenv(k, "")
	}
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeDefaultConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schwabai.yaml")
	_, err := runCLI(t, "config", "init", path)
	require.NoError(t, err)
	return path
}

func TestRootCommandFlags(t *testing.T) {
	root := NewRootCmd()
	for _, name := range []string{"analyze-only", "generate-report", "dry-run", "broker", "paper-portfolio", "show-report"} {
		assert.NotNil(t, root.Flags().Lookup(name), name)
	}
	for _, name := range []string{"config", "log-level"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(name), name)
	}

	var subs []string
	for _, c := range root.Commands() {
		subs = append(subs, c.Name())
	}
	assert.Subset(t, subs, []string{"login", "config", "history", "version"})
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "schwabai dev\n", out)
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	path := writeDefaultConfig(t)
	assert.FileExists(t, path)

	_, err := runCLI(t, "config", "init", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = runCLI(t, "config", "init", "--force", path)
	assert.NoError(t, err)
}

func TestConfigShowMasksSecrets(t *testing.T) {
	clearCredentials(t)
	path := writeDefaultConfig(t)
	t.Setenv("SCHWAB_API_KEY", "topsecret")

	out, err := runCLI(t, "config", "show", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "****")
	assert.NotContains(t, out, "topsecret")

	out, err = runCLI(t, "config", "show", "--json", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, `"schwab_api_key": "****"`)
}

func TestConfigValidate(t *testing.T) {
	clearCredentials(t)
	path := writeDefaultConfig(t)

	_, err := runCLI(t, "config", "validate", "--config", path)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalid)

	t.Setenv("SCHWAB_API_KEY", "key")
	t.Setenv("SCHWAB_APP_SECRET", "secret")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("SCHWAB_TOKEN_PATH", filepath.Join(t.TempDir(), "missing.json"))

	out, err := runCLI(t, "config", "validate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")
	assert.Contains(t, out, "schwabai login")
	assert.Contains(t, out, "Max trades/session:   5")
}

func TestConfigWatchNeedsPath(t *testing.T) {
	_, err := runCLI(t, "config", "watch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--config")
}

func TestValidateForPaperSkipsSchwabCredentials(t *testing.T) {
	cfg := config.Defaults()
	cfg.OpenAIAPIKey = "sk-test"

	assert.ErrorIs(t, validateFor(cfg, brokerSchwab), config.ErrInvalid)
	assert.NoError(t, validateFor(cfg, brokerPaper))
	assert.Empty(t, cfg.SchwabAPIKey, "caller config must stay untouched")
}

func TestLoadPaperSeed(t *testing.T) {
	p, err := loadPaperSeed("")
	require.NoError(t, err)
	assert.Equal(t, "PAPER", p.AccountID)
	assert.True(t, p.Cash.Equal(paperStartingCash))

	path := filepath.Join(t.TempDir(), "seed.json")
	seed := `{"cash":"1000","positions":[{"symbol":"AAPL","quantity":"10","average_price":"100","current_price":"150","market_value":"1500","sector":"Technology"}]}`
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o644))

	p, err = loadPaperSeed(path)
	require.NoError(t, err)
	assert.Equal(t, "PAPER", p.AccountID)
	assert.True(t, p.Held("AAPL"))
	assert.Equal(t, "2500", p.AccountValue.String())

	_, err = loadPaperSeed(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestJournalDSNDefaultsIntoDataDir(t *testing.T) {
	cfg := config.Defaults()
	cfg.DataDir = "/var/lib/schwabai"

	cfg.JournalDriver = "sqlite"
	assert.Equal(t, filepath.Join("/var/lib/schwabai", "journal.db"), journalDSN(cfg))

	cfg.JournalDSN = "custom.db"
	assert.Equal(t, "custom.db", journalDSN(cfg))

	cfg.JournalDriver, cfg.JournalDSN = "postgres", ""
	assert.Empty(t, journalDSN(cfg))
}

func TestManualLogin(t *testing.T) {
	cfg := config.Defaults()
	cfg.SchwabAPIKey, cfg.SchwabAppSecret = "key", "secret"
	cfg.SchwabTokenPath = filepath.Join(t.TempDir(), "token.json")
	ctx := context.Background()

	var out bytes.Buffer
	err := runLogin(ctx, strings.NewReader("https://127.0.0.1:8182/?code=abc&state=forged\n"), &out, cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "state mismatch")
	assert.Contains(t, out.String(), "https://api.schwabapi.com/v1/oauth/authorize")
	assert.Contains(t, out.String(), "client_id=key")

	err = runLogin(ctx, strings.NewReader("\n"), &out, cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no redirect url")

	cfg.SchwabAPIKey = ""
	err = runLogin(ctx, strings.NewReader(""), &out, cfg, nil)
	assert.ErrorIs(t, err, config.ErrInvalid)
	assert.NoFileExists(t, cfg.SchwabTokenPath)
}

func TestUnknownBroker(t *testing.T) {
	cfg := config.Defaults()
	_, err := newBroker(context.Background(), cfg, &rootOptions{brokerName: "etrade"}, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown broker")
}
