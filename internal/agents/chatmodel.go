package agents

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"github.com/verdictlab/verdictgo/internal/config"
)

const defaultMaxTokens = 2048

// NewChatModel builds the inference client for the configured provider.
// Deep selects the reasoning-grade model; quick analysts pass false.
func NewChatModel(ctx context.Context, cfg *config.Config, deep bool) (model.BaseChatModel, error) {
	name := cfg.QuickThinkLLM
	if deep {
		name = cfg.DeepThinkLLM
	}

	switch cfg.LLMProvider {
	case "deepseek", "":
		if cfg.DeepSeekAPIKey == "" {
			return nil, fmt.Errorf("deepseek provider selected but DEEPSEEK_API_KEY is empty")
		}
		return deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
			APIKey:    cfg.DeepSeekAPIKey,
			Model:     name,
			MaxTokens: defaultMaxTokens,
		})
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider selected but OPENAI_API_KEY is empty")
		}
		maxTokens := defaultMaxTokens
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL:   cfg.BackendURL,
			APIKey:    cfg.OpenAIAPIKey,
			Model:     name,
			MaxTokens: &maxTokens,
		})
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}
