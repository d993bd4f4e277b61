package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rahul/webpilot/internal/notify"
	"github.com/rahul/webpilot/internal/observability"
	"github.com/rahul/webpilot/internal/store"
	"go.uber.org/zap"
)

// Runner carries one request record through its lifecycle: pending,
// in_progress, then done or failed. A failed record keeps the steps that
// completed.
type Runner struct {
	Records  *store.RecordStore
	Planner  *Planner
	Executor *Executor
	Notifier notify.Publisher
	Status   *observability.Status
	logger   *zap.Logger
}

func NewRunner(records *store.RecordStore, planner *Planner, executor *Executor, notifier notify.Publisher, status *observability.Status, logger *zap.Logger) *Runner {
	if notifier == nil {
		notifier = notify.Nop
	}
	return &Runner{
		Records:  records,
		Planner:  planner,
		Executor: executor,
		Notifier: notifier,
		Status:   status,
		logger:   logger.Named("runner"),
	}
}

// Run resolves the plan of a stored request and executes it.
func (r *Runner) Run(ctx context.Context, queryID string) error {
	return r.run(ctx, queryID, nil)
}

// RunPlan executes plan for a stored request, skipping plan resolution.
func (r *Runner) RunPlan(ctx context.Context, queryID string, plan *Plan) error {
	if plan == nil {
		return ErrNoPlan
	}
	return r.run(ctx, queryID, plan)
}

func (r *Runner) run(ctx context.Context, queryID string, plan *Plan) (err error) {
	rec, err := r.Records.Get(ctx, queryID)
	if err != nil {
		return err
	}
	if err := r.Records.MarkInProgress(ctx, queryID); err != nil {
		return err
	}

	if r.Status != nil {
		r.Status.Begin(queryID, rec.Query)
		defer func() { r.Status.End(queryID, err) }()
	}
	log := r.logger.With(zap.String("query_id", queryID))
	log.Info("query started", zap.String("query", rec.Query))

	if plan == nil {
		plan, err = r.Planner.Resolve(ctx, rec.Query, queryID)
		if err != nil {
			r.emit(ctx, queryID, notify.Event{Message: fmt.Sprintf("An error occurred: %v", err), Status: notify.StatusError})
			r.fail(ctx, log, queryID, err, nil)
			return err
		}
	}
	r.emit(ctx, queryID, notify.Event{
		Message:    fmt.Sprintf("Action plan generated for query ID: %s", queryID),
		ActionPlan: plan,
	})

	result, err := r.Executor.Run(ctx, queryID, plan)
	if err != nil {
		r.fail(ctx, log, queryID, err, result)
		return err
	}

	r.emit(ctx, queryID, notify.Event{
		Message: fmt.Sprintf("Processing complete for query ID: %s", queryID),
		Status:  notify.StatusComplete,
		Done:    true,
	})
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	if err := r.Records.MarkDone(context.WithoutCancel(ctx), queryID, raw); err != nil {
		log.Error("failed to mark query done", zap.Error(err))
		return err
	}
	log.Info("query done", zap.Int("steps", len(result.Steps)))
	return nil
}

// fail persists the failure. It outlives ctx so a cancelled query still
// reaches its terminal state.
func (r *Runner) fail(ctx context.Context, log *zap.Logger, queryID string, cause error, partial *Result) {
	var raw []byte
	if partial != nil {
		raw, _ = json.Marshal(partial)
	}
	if err := r.Records.MarkFailed(context.WithoutCancel(ctx), queryID, cause.Error(), raw); err != nil {
		log.Error("failed to mark query failed", zap.Error(err))
	}
	log.Error("query failed", zap.Error(cause))
}

func (r *Runner) emit(ctx context.Context, queryID string, ev notify.Event) {
	ev.QueryID = queryID
	r.Notifier.Publish(ctx, ev)
}
