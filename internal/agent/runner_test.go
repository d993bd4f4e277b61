package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rahul/webpilot/internal/llm"
	"github.com/rahul/webpilot/internal/notify"
	"github.com/rahul/webpilot/internal/observability"
	"github.com/rahul/webpilot/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func planAnswer(answers map[string]string) func(llm.Request) (string, error) {
	steps := byStep(answers)
	return func(req llm.Request) (string, error) {
		if req.Purpose == observability.EventTypePlan {
			return examplePlan, nil
		}
		return steps(req)
	}
}

func TestRunner_DoneLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.llm.respond = planAnswer(map[string]string{
		"read the page title": `[{"target_index": null, "input_text": null, "extracted_data": "Example Domain"}]`,
	})
	_, err := h.db.Create(ctx, "q1", "go to example.com and read the page title")
	require.NoError(t, err)

	require.NoError(t, h.runner.Run(ctx, "q1"))

	rec, err := h.db.Get(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusDone, rec.Status)
	require.NotNil(t, rec.CompletedAt)

	var result Result
	require.NoError(t, json.Unmarshal(rec.Result, &result))
	assert.Equal(t, StateCompleted, result.State)
	require.Len(t, result.Steps, 1)
	assert.Equal(t, []string{"Example Domain"}, result.Steps[0].Extracted)

	events := h.events.All()
	assert.True(t, strings.HasPrefix(events[0].Message, "Action plan generated for query ID: q1"))
	assert.NotNil(t, events[0].ActionPlan)
	last := events[len(events)-1]
	assert.Equal(t, "Processing complete for query ID: q1", last.Message)
	assert.True(t, last.Done)
	assert.True(t, last.Final())
	assert.False(t, events[len(events)-2].Final(), "the execution's done event must not end the query")

	snap := h.status.Snapshot()
	assert.EqualValues(t, 1, snap.Completed)
	assert.Zero(t, snap.Active)
}

func TestRunner_FailedKeepsPartialResult(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.llm.respond = func(req llm.Request) (string, error) {
		if req.Purpose == observability.EventTypePlan {
			return `{"goto": "https://example.com/form", "action_plan": ["open", "type hello", "press the button"], "vision_only": []}`, nil
		}
		return byStep(map[string]string{
			"type hello":       `[{"target_index": 1, "input_text": "hello", "extracted_data": null}]`,
			"press the button": `[{"target_index": 9, "input_text": null, "extracted_data": null}]`,
		})(req)
	}
	_, err := h.db.Create(ctx, "q1", "type hello and press the button")
	require.NoError(t, err)

	err = h.runner.Run(ctx, "q1")
	require.ErrorIs(t, err, ErrSessionFailure)

	rec, err := h.db.Get(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, rec.Status)
	assert.Contains(t, rec.Error, "resolve")

	var partial Result
	require.NoError(t, json.Unmarshal(rec.Result, &partial))
	assert.Equal(t, StateFailed, partial.State)
	assert.Len(t, partial.Steps, 1)

	assert.Equal(t, 1, h.events.Count(isError))
	assert.Zero(t, h.events.Count(func(ev notify.Event) bool { return ev.Done }))
	assert.EqualValues(t, 1, h.status.Snapshot().Failed)
}

func TestRunner_PlanningFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.llm.respond = func(llm.Request) (string, error) { return "", errors.New("quota exceeded") }
	_, err := h.db.Create(ctx, "q1", "anything")
	require.NoError(t, err)

	err = h.runner.Run(ctx, "q1")
	require.Error(t, err)

	rec, err := h.db.Get(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, rec.Status)
	assert.Contains(t, rec.Error, "quota exceeded")
	assert.Empty(t, rec.Result)

	assert.Equal(t, 1, h.events.Count(isError))
	assert.Zero(t, h.launcher.Launches())
}

func TestRunner_RunPlanSkipsPlanner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.db.Create(ctx, "q1", "replay")
	require.NoError(t, err)

	plan := &Plan{Goto: "https://example.com", Steps: []string{"go to example.com"}}
	require.NoError(t, h.runner.RunPlan(ctx, "q1", plan))

	assert.Empty(t, h.llm.Calls(observability.EventTypePlan))
	rec, err := h.db.Get(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusDone, rec.Status)

	assert.ErrorIs(t, h.runner.RunPlan(ctx, "q1", nil), ErrNoPlan)
}

func TestRunner_UnknownRecord(t *testing.T) {
	h := newHarness(t)
	err := h.runner.Run(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, h.events.All())
}

func TestRunner_CancelledStillTerminal(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	h.llm.respond = func(req llm.Request) (string, error) {
		cancel()
		return "", context.Canceled
	}
	_, err := h.db.Create(ctx, "q1", "anything")
	require.NoError(t, err)

	err = h.runner.Run(ctx, "q1")
	assert.ErrorIs(t, err, context.Canceled)

	rec, err := h.db.Get(context.Background(), "q1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, rec.Status)
}
