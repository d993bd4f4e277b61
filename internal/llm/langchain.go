package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/rahul/webpilot/internal/observability"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"
)

// LangChain calls any langchaingo model. The OpenAI family of providers
// (openai, azure, openrouter) all go through this adapter.
type LangChain struct {
	Model    llms.Model
	Provider string
	Name     string
	LLMLog   *observability.LLMLog
	logger   *zap.Logger
}

func NewLangChain(model llms.Model, provider, name string, llmLog *observability.LLMLog, logger *zap.Logger) *LangChain {
	return &LangChain{
		Model:    model,
		Provider: provider,
		Name:     name,
		LLMLog:   llmLog,
		logger:   logger.Named("llm." + provider),
	}
}

func (c *LangChain) Complete(ctx context.Context, req Request) (string, error) {
	parts := []llms.ContentPart{llms.TextPart(req.Prompt)}
	if len(req.Image) > 0 {
		parts = append(parts, llms.ImageURLPart(DataURL(req.Image)))
	}
	messages := []llms.MessageContent{{
		Role:  llms.ChatMessageTypeHuman,
		Parts: parts,
	}}

	opts := []llms.CallOption{
		llms.WithTemperature(req.Temperature),
		llms.WithTopP(req.TopP),
	}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	if req.JSON {
		opts = append(opts, llms.WithJSONMode())
	}

	start := time.Now()
	text, err := c.generate(ctx, messages, opts)
	c.LLMLog.Record(observability.LLMCall{
		Type:     req.Purpose,
		QueryID:  req.QueryID,
		Provider: c.Provider,
		Model:    c.Name,
		Prompt:   req.Prompt,
		HasImage: len(req.Image) > 0,
		Response: text,
		Err:      err,
		Duration: time.Since(start),
	})
	if err != nil {
		c.logger.Warn("completion failed", zap.String("query_id", req.QueryID), zap.Error(err))
		return "", err
	}
	c.logger.Debug("completion done",
		zap.String("query_id", req.QueryID),
		zap.String("purpose", string(req.Purpose)),
		zap.Duration("took", time.Since(start)))
	return text, nil
}

func (c *LangChain) generate(ctx context.Context, messages []llms.MessageContent, opts []llms.CallOption) (string, error) {
	resp, err := c.Model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("%s completion: %w", c.Provider, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Content, nil
}
