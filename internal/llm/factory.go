package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dyike/SchwabAI/config"
	"github.com/dyike/SchwabAI/internal/logging"
)

// providerOrder is the selection order when LLM_PROVIDER is unset.
var providerOrder = []string{"openai", "anthropic", "gemini", "deepseek"}

func hasKey(cfg *config.Config, name string) bool {
	switch name {
	case "openai":
		return cfg.OpenAIAPIKey != ""
	case "anthropic":
		return cfg.AnthropicAPIKey != ""
	case "gemini":
		return cfg.GeminiAPIKey != ""
	case "deepseek":
		return cfg.DeepSeekAPIKey != ""
	}
	return false
}

// Select returns the provider New would build, or "" when none has a key.
func Select(cfg *config.Config) string {
	if p := strings.ToLower(strings.TrimSpace(cfg.LLMProvider)); p != "" && hasKey(cfg, p) {
		return p
	}
	for _, p := range providerOrder {
		if hasKey(cfg, p) {
			return p
		}
	}
	return ""
}

// New builds the preferred provider, or the first of openai, anthropic,
// gemini and deepseek that has a key.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Client, error) {
	logger = logging.OrDefault(logger)

	if p := strings.TrimSpace(cfg.LLMProvider); p != "" && !hasKey(cfg, strings.ToLower(p)) {
		logger.Warn("preferred LLM provider has no key, falling back", "provider", p)
	}

	var (
		client Client
		err    error
	)
	switch name := Select(cfg); name {
	case "openai":
		client, err = NewOpenAI(ctx, OpenAIConfig{APIKey: cfg.OpenAIAPIKey, Model: cfg.OpenAIModel, BaseURL: cfg.OpenAIBaseURL})
	case "anthropic":
		client, err = NewAnthropic(AnthropicConfig{APIKey: cfg.AnthropicAPIKey, Model: cfg.AnthropicModel})
	case "gemini":
		client, err = NewGemini(ctx, GeminiConfig{APIKey: cfg.GeminiAPIKey, Model: cfg.GeminiModel})
	case "deepseek":
		client, err = NewDeepSeek(ctx, DeepSeekConfig{APIKey: cfg.DeepSeekAPIKey, Model: cfg.DeepSeekModel})
	default:
		return nil, ErrNoProvider
	}
	if err != nil {
		return nil, fmt.Errorf("init LLM client: %w", err)
	}
	logger.Info("LLM client ready", "provider", client.Name())
	return client, nil
}
