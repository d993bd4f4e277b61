package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rahul/webpilot/internal/llm"
	"github.com/rahul/webpilot/internal/observability"
	"github.com/rahul/webpilot/internal/store"
	"go.uber.org/zap"
)

// KeyFunc maps a query to its plan cache key.
type KeyFunc func(query string) string

// ExactKey caches plans by the raw query text, without normalization.
func ExactKey(query string) string { return query }

// Planner turns a query into a Plan, consulting the memo first. A cached
// plan is returned as stored, so a bad plan stays cached for that query.
type Planner struct {
	Memo    *store.Memo
	LLM     llm.Completer
	Prompts *PromptManager
	Params  llm.Params
	Key     KeyFunc
	logger  *zap.Logger
}

func NewPlanner(memo *store.Memo, completer llm.Completer, prompts *PromptManager, params llm.Params, logger *zap.Logger) *Planner {
	return &Planner{
		Memo:    memo,
		LLM:     completer,
		Prompts: prompts,
		Params:  params,
		Key:     ExactKey,
		logger:  logger.Named("planner"),
	}
}

func (p *Planner) Resolve(ctx context.Context, query, queryID string) (*Plan, error) {
	key := p.Key(query)
	if cached, ok := p.Memo.Lookup(ctx, store.NamespacePlans, key); ok {
		var plan Plan
		if err := json.Unmarshal(cached, &plan); err == nil {
			p.logger.Info("plan cache hit", zap.String("query_id", queryID), zap.String("cached_query_id", plan.QueryID))
			return &plan, nil
		}
		p.logger.Warn("cached plan unreadable, regenerating", zap.String("query_id", queryID))
	}

	prompt, err := p.Prompts.PlannerPrompt(query)
	if err != nil {
		return nil, err
	}
	text, err := p.LLM.Complete(ctx, llm.Request{
		Purpose: observability.EventTypePlan,
		QueryID: queryID,
		Prompt:  prompt,
		JSON:    true,
		Params:  p.Params,
	})
	if err != nil {
		return nil, fmt.Errorf("plan completion failed: %w", err)
	}

	plan, err := ParsePlan([]byte(text))
	if err != nil {
		p.logger.Error("unparseable plan", zap.String("query_id", queryID), zap.String("response", text))
		return nil, err
	}
	plan.QueryID = queryID
	plan.Query = query

	raw, err := json.Marshal(plan)
	if err != nil {
		return nil, err
	}
	p.Memo.Store(ctx, store.NamespacePlans, key, raw)

	p.logger.Info("plan generated",
		zap.String("query_id", queryID),
		zap.String("goto", plan.Goto),
		zap.Int("steps", len(plan.Steps)),
		zap.Int("vision_only", len(plan.VisionOnly)))
	return plan, nil
}
