package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/rahul/webpilot/internal/observability"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// contentGenerator is the part of *genai.Models the adapter uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini calls the Gemini API through the google genai SDK.
type Gemini struct {
	models contentGenerator
	model  string
	llmLog *observability.LLMLog
	logger *zap.Logger
}

func NewGemini(ctx context.Context, apiKey, model string, llmLog *observability.LLMLog, logger *zap.Logger) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &Gemini{models: client.Models, model: model, llmLog: llmLog, logger: logger.Named("llm.gemini")}, nil
}

func (g *Gemini) Complete(ctx context.Context, req Request) (string, error) {
	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	if len(req.Image) > 0 {
		parts = append(parts, genai.NewPartFromBytes(req.Image, "image/png"))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
		TopP:        genai.Ptr(float32(req.TopP)),
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}

	start := time.Now()
	var text string
	resp, err := g.models.GenerateContent(ctx, g.model, contents, cfg)
	if err == nil {
		text = resp.Text()
		if text == "" {
			err = ErrEmptyResponse
		}
	}
	g.llmLog.Record(observability.LLMCall{
		Type:     req.Purpose,
		QueryID:  req.QueryID,
		Provider: "gemini",
		Model:    g.model,
		Prompt:   req.Prompt,
		HasImage: len(req.Image) > 0,
		Response: text,
		Err:      err,
		Duration: time.Since(start),
	})
	if err != nil {
		g.logger.Warn("completion failed", zap.String("query_id", req.QueryID), zap.Error(err))
		return "", fmt.Errorf("gemini completion: %w", err)
	}
	return text, nil
}
