package agent

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/rahul/webpilot/internal/browser"
	"github.com/rahul/webpilot/internal/governance"
	"github.com/rahul/webpilot/internal/notify"
	"go.uber.org/zap"
)

// State is a phase of one plan execution.
type State string

const (
	StateInit            State = "init"
	StateNavigated       State = "navigated"
	StateStepVisionOnly  State = "step_vision_only"
	StateStepInteractive State = "step_interactive"
	StateCompleted       State = "completed"
	StateFailed          State = "failed"
)

const DefaultSettleDelay = 5 * time.Second

// StepResult is what one executed step produced.
type StepResult struct {
	Index       int      `json:"index"`
	Description string   `json:"description"`
	VisionOnly  bool     `json:"vision_only"`
	Screenshot  string   `json:"screenshot"`
	Actions     []Action `json:"actions"`
	Extracted   []string `json:"extracted,omitempty"`
}

// Result is the outcome of an execution. On failure it holds the steps
// that completed before the error.
type Result struct {
	QueryID     string       `json:"query_id"`
	Goto        string       `json:"goto"`
	Goal        string       `json:"goal,omitempty"`
	State       State        `json:"state"`
	Steps       []StepResult `json:"steps"`
	LastActions []Action     `json:"last_actions"`
	Error       string       `json:"error,omitempty"`
}

// Executor drives one plan against one private browser session. Steps run
// strictly in order; the first error aborts the rest of the plan.
type Executor struct {
	Launcher    browser.Launcher
	Indexer     *browser.Indexer
	Grounder    *Grounder
	Policy      governance.PolicyEngine
	Notifier    notify.Publisher
	SettleDelay time.Duration
	// PageText attaches a text digest of the page to vision-only prompts.
	PageText  bool
	TextLimit int
	logger    *zap.Logger
}

func NewExecutor(launcher browser.Launcher, indexer *browser.Indexer, grounder *Grounder, notifier notify.Publisher, logger *zap.Logger) *Executor {
	if notifier == nil {
		notifier = notify.Nop
	}
	return &Executor{
		Launcher:    launcher,
		Indexer:     indexer,
		Grounder:    grounder,
		Notifier:    notifier,
		SettleDelay: DefaultSettleDelay,
		logger:      logger.Named("executor"),
	}
}

type execution struct {
	*Executor
	queryID string
	// refID addresses screenshots and grounding cache entries. It is the
	// plan's own query id, so a replayed cached plan reuses its entries.
	refID  string
	plan   *Plan
	page   browser.Page
	result *Result
	state  State
}

// Run executes plan for queryID. It always releases the browser session
// and, on failure, emits exactly one error event.
func (e *Executor) Run(ctx context.Context, queryID string, plan *Plan) (*Result, error) {
	x := &execution{Executor: e, queryID: queryID, plan: plan, state: StateInit}
	x.result = &Result{QueryID: queryID, State: StateInit, Steps: []StepResult{}}

	if err := x.run(ctx); err != nil {
		x.transition(StateFailed)
		x.result.Error = err.Error()
		e.logger.Error("execution failed", zap.String("query_id", queryID), zap.Error(err))
		x.emit(ctx, notify.Event{Message: fmt.Sprintf("An error occurred: %v", err), Status: notify.StatusError})
		return x.result, err
	}
	return x.result, nil
}

func (x *execution) run(ctx context.Context) error {
	if x.plan == nil {
		return ErrNoPlan
	}
	x.refID = x.plan.QueryID
	if x.refID == "" {
		x.refID = x.queryID
	}
	x.result.Goto, x.result.Goal = x.plan.Goto, x.plan.Goal

	if err := x.checkPolicy(ctx); err != nil {
		return err
	}

	x.emit(ctx, notify.Event{Message: fmt.Sprintf("Executing action plan for query ID: %s", x.queryID)})
	page, err := x.Launcher.Launch(ctx)
	if err != nil {
		if !errors.Is(err, ErrSessionFailure) {
			err = &browser.SessionError{Op: "launch", Err: err}
		}
		return err
	}
	x.page = page
	defer func() {
		if cerr := page.Close(); cerr != nil {
			x.logger.Warn("failed to close browser", zap.String("query_id", x.queryID), zap.Error(cerr))
		}
		x.logger.Debug("browser closed", zap.String("query_id", x.queryID))
	}()
	x.emit(ctx, notify.Event{Message: "Browser launched"})

	if err := page.Navigate(ctx, x.plan.Goto); err != nil {
		return asSessionError("navigate", err)
	}
	x.transition(StateNavigated)
	x.emit(ctx, notify.Event{Message: fmt.Sprintf("Navigated to %s", x.plan.Goto)})

	for i := 1; i < len(x.plan.Steps); i++ {
		step := x.plan.Steps[i]
		x.emit(ctx, notify.Event{Message: fmt.Sprintf("Doing step %d: %s", i, step), Step: i})

		var sr *StepResult
		if x.plan.IsVisionOnly(step) {
			x.transition(StateStepVisionOnly)
			sr, err = x.visionOnlyStep(ctx, i, step)
		} else {
			x.transition(StateStepInteractive)
			sr, err = x.interactiveStep(ctx, i, step)
		}
		if err != nil {
			return fmt.Errorf("step %d %q: %w", i, step, err)
		}
		x.result.Steps = append(x.result.Steps, *sr)
		x.result.LastActions = sr.Actions
	}

	x.transition(StateCompleted)
	x.emit(ctx, notify.Event{Message: "All actions done", Actions: actionsPayload(x.result.LastActions), Done: true})
	return nil
}

func (x *execution) checkPolicy(ctx context.Context) error {
	if x.Policy == nil {
		return nil
	}
	res, err := x.Policy.Evaluate(ctx, governance.Request{QueryID: x.queryID, URL: x.plan.Goto, Steps: x.plan.Steps})
	if err != nil {
		return fmt.Errorf("policy evaluation failed: %w", err)
	}
	if res.Effect == governance.EffectDeny {
		return fmt.Errorf("%w: %s", ErrPolicyDenied, res.Reason)
	}
	return nil
}

func (x *execution) visionOnlyStep(ctx context.Context, i int, step string) (*StepResult, error) {
	capture, err := x.Indexer.CaptureHalted(ctx, x.page, x.refID, i)
	if err != nil {
		return nil, err
	}
	x.emit(ctx, notify.Event{Message: "Screenshot taken for vision only action", Step: i, Image: encodeImage(capture.Image)})

	var pageText string
	if x.PageText {
		if pageText, err = browser.PageText(ctx, x.page, x.TextLimit); err != nil {
			x.logger.Warn("page text unavailable", zap.String("query_id", x.queryID), zap.Error(err))
			pageText = ""
		}
	}

	actions, err := x.Grounder.Ground(ctx, GroundRequest{
		QueryID:    x.queryID,
		Ref:        capture.Ref,
		Image:      capture.Image,
		Step:       step,
		VisionOnly: true,
		PageText:   pageText,
	})
	if err != nil {
		return nil, err
	}
	x.emit(ctx, notify.Event{Message: "Vision only actions generated", Step: i, Actions: actionsPayload(actions)})

	return &StepResult{
		Index:       i,
		Description: step,
		VisionOnly:  true,
		Screenshot:  capture.Ref,
		Actions:     actions,
		Extracted:   ExtractedData(actions),
	}, nil
}

func (x *execution) interactiveStep(ctx context.Context, i int, step string) (*StepResult, error) {
	capture, err := x.Indexer.AnnotateAndCapture(ctx, x.page, x.refID, i, true)
	if err != nil {
		return nil, err
	}
	x.emit(ctx, notify.Event{Message: "Screenshot taken for browser action", Step: i, Image: encodeImage(capture.Image)})

	actions, err := x.Grounder.Ground(ctx, GroundRequest{
		QueryID: x.queryID,
		Ref:     capture.Ref,
		Image:   capture.Image,
		Step:    step,
	})
	if err != nil {
		return nil, err
	}
	x.emit(ctx, notify.Event{Message: "Browser actions generated", Step: i, Actions: actionsPayload(actions)})

	for _, a := range actions {
		if err := x.apply(ctx, capture, a); err != nil {
			return nil, err
		}
	}
	if err := x.settle(ctx); err != nil {
		return nil, err
	}
	x.emit(ctx, notify.Event{Message: fmt.Sprintf("Browser actions done for step %d", i), Step: i, Actions: actionsPayload(actions)})

	return &StepResult{
		Index:       i,
		Description: step,
		Screenshot:  capture.Ref,
		Actions:     actions,
		Extracted:   ExtractedData(actions),
	}, nil
}

// apply performs one action on the element it targets. The element kind
// was fixed when the capture was indexed.
func (x *execution) apply(ctx context.Context, capture *browser.Capture, a Action) error {
	log := x.logger.With(zap.String("query_id", x.queryID), zap.Stringer("action", a))
	if a.TargetIndex == nil {
		if a.InputText != nil {
			log.Warn("input text without a target, ignored")
		}
		return nil
	}

	index := *a.TargetIndex
	box, ok := capture.Box(index)
	if !ok {
		return &browser.SessionError{Op: "resolve", Err: fmt.Errorf("no element with index %d", index)}
	}
	selector := browser.IndexSelector(index)

	switch {
	case box.Kind.Clickable():
		if err := x.page.Click(ctx, selector); err != nil {
			return asSessionError("click", err)
		}
		log.Debug("clicked", zap.Stringer("kind", box.Kind))
	case box.Kind.Fillable():
		if a.InputText == nil {
			log.Warn("no input text for fillable element, skipped", zap.Stringer("kind", box.Kind))
			return nil
		}
		if err := x.page.Fill(ctx, selector, *a.InputText); err != nil {
			return asSessionError("fill", err)
		}
		log.Debug("filled", zap.Stringer("kind", box.Kind))
	default:
		return &browser.SessionError{Op: "resolve", Err: fmt.Errorf("element %d (%s) cannot be acted on", index, box.Tag)}
	}
	return nil
}

func (x *execution) settle(ctx context.Context) error {
	if x.SettleDelay <= 0 {
		return nil
	}
	t := time.NewTimer(x.SettleDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (x *execution) transition(s State) {
	x.logger.Debug("state", zap.String("query_id", x.queryID), zap.String("from", string(x.state)), zap.String("to", string(s)))
	x.state = s
	x.result.State = s
}

func (x *execution) emit(ctx context.Context, ev notify.Event) {
	ev.QueryID = x.queryID
	x.Notifier.Publish(ctx, ev)
}

func asSessionError(op string, err error) error {
	if errors.Is(err, ErrSessionFailure) {
		return err
	}
	return &browser.SessionError{Op: op, Err: err}
}

// actionsPayload keeps the explicit nulls of an empty list on the wire.
func actionsPayload(actions []Action) []Action {
	if actions == nil {
		return []Action{}
	}
	return actions
}

func encodeImage(png []byte) string {
	return base64.StdEncoding.EncodeToString(png)
}
