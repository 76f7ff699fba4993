package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// generator is the part of an eino chat model used here.
type generator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// ChatModelClient adapts an eino chat model to Client.
type ChatModelClient struct {
	name  string
	model generator
}

func newChatModelClient(name string, m generator) *ChatModelClient {
	return &ChatModelClient{name: name, model: m}
}

func (c *ChatModelClient) Name() string { return c.name }

func (c *ChatModelClient) Complete(ctx context.Context, req Request) (string, error) {
	req = req.withDefaults()
	msgs := []*schema.Message{
		schema.SystemMessage(req.System),
		schema.UserMessage(req.Prompt),
	}
	out, err := c.model.Generate(ctx, msgs,
		model.WithTemperature(req.Temperature),
		model.WithMaxTokens(req.MaxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("%s generate: %w", c.name, err)
	}
	if out == nil || strings.TrimSpace(out.Content) == "" {
		return "", fmt.Errorf("%s generate: empty response", c.name)
	}
	return out.Content, nil
}

type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

func NewOpenAI(ctx context.Context, cfg OpenAIConfig) (*ChatModelClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OpenAI API key not configured")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4"
	}
	maxTokens := DefaultMaxTokens
	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL:   cfg.BaseURL,
		APIKey:    cfg.APIKey,
		Model:     cfg.Model,
		MaxTokens: &maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("create openai chat model: %w", err)
	}
	return newChatModelClient("openai", chatModel), nil
}

type DeepSeekConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

func NewDeepSeek(ctx context.Context, cfg DeepSeekConfig) (*ChatModelClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("DeepSeek API key not configured")
	}
	if cfg.Model == "" {
		cfg.Model = "deepseek-chat"
	}
	chatModel, err := deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
		APIKey:    cfg.APIKey,
		BaseURL:   cfg.BaseURL,
		Model:     cfg.Model,
		MaxTokens: DefaultMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("create deepseek chat model: %w", err)
	}
	return newChatModelClient("deepseek", chatModel), nil
}
