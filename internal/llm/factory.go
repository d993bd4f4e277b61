package llm

import (
	"context"
	"fmt"

	"github.com/rahul/webpilot/internal/observability"
	"github.com/rahul/webpilot/pkg/config"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// New builds the Completer for the default enabled provider, wrapped in the
// configured rate limit.
func New(ctx context.Context, cfg *config.Config, llmLog *observability.LLMLog, logger *zap.Logger) (Completer, error) {
	name, p := cfg.GetDefaultProvider()
	if name == "" {
		return nil, fmt.Errorf("no enabled provider found in config")
	}

	var (
		c   Completer
		err error
	)
	switch name {
	case "openai", "openrouter", "azure":
		c, err = newOpenAI(name, p, llmLog, logger)
	case "gemini":
		c, err = NewGemini(ctx, p.APIKey, p.Model, llmLog, logger)
	default:
		return nil, fmt.Errorf("provider %s not supported", name)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("completion provider ready", zap.String("provider", name), zap.String("model", p.Model))
	return NewLimited(c, cfg.Completion.RatePerMinute, cfg.Completion.Burst), nil
}

func newOpenAI(name string, p config.ProviderConfig, llmLog *observability.LLMLog, logger *zap.Logger) (*LangChain, error) {
	if p.APIKey == "" {
		return nil, fmt.Errorf("%s: api_key is required", name)
	}
	opts := []openai.Option{
		openai.WithToken(p.APIKey),
		openai.WithModel(p.Model),
	}
	baseURL := p.BaseURL
	switch name {
	case "azure":
		if baseURL == "" {
			return nil, fmt.Errorf("azure: base_url (endpoint) is required")
		}
		opts = append(opts, openai.WithAPIType(openai.APITypeAzure))
		if p.APIVersion != "" {
			opts = append(opts, openai.WithAPIVersion(p.APIVersion))
		}
	case "openrouter":
		if baseURL == "" {
			baseURL = openRouterBaseURL
		}
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}
	return NewLangChain(model, name, p.Model, llmLog, logger), nil
}
