package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rahul/webpilot/internal/llm"
	"github.com/rahul/webpilot/internal/observability"
	"github.com/rahul/webpilot/internal/store"
	"go.uber.org/zap"
)

// GroundRequest asks for the actions of one step on one screenshot.
type GroundRequest struct {
	QueryID string
	// Ref addresses the screenshot and is part of the cache key.
	Ref string
	// Image is the screenshot; when nil it is read from Ref.
	Image      []byte
	Step       string
	VisionOnly bool
	// PageText is extra context for vision-only steps. It is not part of
	// the cache key.
	PageText string
}

// ActionKey is the memo key of a grounding result.
func ActionKey(ref, step string) string { return ref + ":" + step }

// Grounder resolves a step against a screenshot into low-level actions.
// Its cache only hits when the same screenshot reference is grounded again
// for the same step, so callers must not count on it.
type Grounder struct {
	Memo    *store.Memo
	LLM     llm.Completer
	Prompts *PromptManager
	Params  llm.Params
	logger  *zap.Logger
}

func NewGrounder(memo *store.Memo, completer llm.Completer, prompts *PromptManager, params llm.Params, logger *zap.Logger) *Grounder {
	return &Grounder{Memo: memo, LLM: completer, Prompts: prompts, Params: params, logger: logger.Named("grounder")}
}

func (g *Grounder) Ground(ctx context.Context, req GroundRequest) ([]Action, error) {
	key := ActionKey(req.Ref, req.Step)
	if cached, ok := g.Memo.Lookup(ctx, store.NamespaceActions, key); ok {
		var actions []Action
		if err := json.Unmarshal(cached, &actions); err == nil {
			g.logger.Debug("grounding cache hit", zap.String("query_id", req.QueryID), zap.String("key", key))
			return g.constrain(req, actions), nil
		}
	}
	g.logger.Debug("grounding cache miss", zap.String("query_id", req.QueryID), zap.String("key", key))

	image := req.Image
	if image == nil {
		var err error
		if image, err = os.ReadFile(req.Ref); err != nil {
			return nil, fmt.Errorf("failed to read screenshot: %w", err)
		}
	}

	var (
		prompt  string
		purpose = observability.EventTypeGrounding
		err     error
	)
	if req.VisionOnly {
		purpose = observability.EventTypeVision
		prompt, err = g.Prompts.VisionOnlyPrompt(req.Step, req.PageText)
	} else {
		prompt, err = g.Prompts.GroundingPrompt(req.Step)
	}
	if err != nil {
		return nil, err
	}

	text, err := g.LLM.Complete(ctx, llm.Request{
		Purpose: purpose,
		QueryID: req.QueryID,
		Prompt:  prompt,
		Image:   image,
		JSON:    true,
		Params:  g.Params,
	})
	if err != nil {
		return nil, fmt.Errorf("grounding completion failed: %w", err)
	}

	actions, err := ParseActions([]byte(text))
	if err != nil {
		g.logger.Error("unparseable actions", zap.String("query_id", req.QueryID), zap.String("response", text))
		return nil, err
	}
	actions = g.constrain(req, actions)

	raw, err := json.Marshal(actions)
	if err != nil {
		return nil, err
	}
	g.Memo.Store(ctx, store.NamespaceActions, key, raw)
	return actions, nil
}

// constrain nulls the interactive fields of vision-only results. Models do
// not always honour the instruction.
func (g *Grounder) constrain(req GroundRequest, actions []Action) []Action {
	if !req.VisionOnly {
		return actions
	}
	for i := range actions {
		if actions[i].TargetIndex != nil || actions[i].InputText != nil {
			g.logger.Warn("interactive fields dropped from vision-only action",
				zap.String("query_id", req.QueryID), zap.Stringer("action", actions[i]))
			actions[i].TargetIndex = nil
			actions[i].InputText = nil
		}
	}
	return actions
}
