// Package engine assembles the query pipeline from configuration and runs
// queries on the worker pool.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rahul/webpilot/internal/agent"
	"github.com/rahul/webpilot/internal/browser"
	"github.com/rahul/webpilot/internal/governance"
	"github.com/rahul/webpilot/internal/llm"
	"github.com/rahul/webpilot/internal/notify"
	"github.com/rahul/webpilot/internal/observability"
	"github.com/rahul/webpilot/internal/store"
	"github.com/rahul/webpilot/internal/worker"
	"github.com/rahul/webpilot/pkg/config"
	"go.uber.org/zap"
)

var (
	ErrEmptyQuery = errors.New("query is required")
	// ErrDuplicate means the query id is running or was used before.
	ErrDuplicate = worker.ErrDuplicate
)

// Option customises an Engine before it is assembled.
type Option func(*options)

type options struct {
	launcher  browser.Launcher
	completer llm.Completer
	sinks     []notify.Publisher
}

// WithLauncher replaces the Chrome launcher.
func WithLauncher(l browser.Launcher) Option {
	return func(o *options) { o.launcher = l }
}

// WithCompleter replaces the configured completion provider.
func WithCompleter(c llm.Completer) Option {
	return func(o *options) { o.completer = c }
}

// WithPublisher adds an event sink next to the hub and the log.
func WithPublisher(p notify.Publisher) Option {
	return func(o *options) { o.sinks = append(o.sinks, p) }
}

// Engine owns the database, the memo, the pipeline and the pool.
type Engine struct {
	Records  *store.RecordStore
	Memo     *store.Memo
	Runner   *agent.Runner
	Sweeper  *agent.Sweeper
	Executor *agent.Executor

	db       *sql.DB
	hub      *notify.Hub
	notifier *broadcaster
	status   *observability.Status
	pool     *worker.Pool
	logger   *zap.Logger
}

// New builds an Engine from cfg.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*Engine, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	db, err := store.Open(cfg.Memory.Path)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		Records: store.NewRecordStore(db),
		db:      db,
		hub:     notify.NewHub(logger),
		status:  observability.NewStatus(),
		logger:  logger.Named("engine"),
	}
	if err := e.assemble(ctx, cfg, o, logger); err != nil {
		db.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) assemble(ctx context.Context, cfg *config.Config, o options, logger *zap.Logger) error {
	var backend store.Backend
	switch cfg.Memory.Type {
	case "jsonfile":
		backend = store.NewJSONFileBackend(cfg.Memory.PlanFile, cfg.Memory.ActionFile)
	default:
		backend = store.NewSQLiteBackend(e.db)
	}
	e.Memo = store.NewMemo(backend, logger)

	completer := o.completer
	if completer == nil {
		var err error
		completer, err = llm.New(ctx, cfg, observability.NewLLMLog(cfg.Logger), logger)
		if err != nil {
			return fmt.Errorf("failed to initialize completion provider: %w", err)
		}
	}

	prompts, err := agent.NewPromptManager(cfg.App.PromptsDir)
	if err != nil {
		return err
	}
	params := llm.Params{
		Temperature: cfg.Completion.Temperature,
		MaxTokens:   cfg.Completion.MaxTokens,
		TopP:        cfg.Completion.TopP,
	}

	policy, err := governance.NewPolicyEngine(cfg.Policy)
	if err != nil {
		return err
	}

	launcher := o.launcher
	if launcher == nil {
		launcher = browser.NewChromeLauncher(cfg.Browser, logger)
	}

	e.notifier = &broadcaster{sinks: append(notify.Multi{e.hub, notify.NewLogSink(logger)}, o.sinks...)}

	planner := agent.NewPlanner(e.Memo, completer, prompts, params, logger)
	grounder := agent.NewGrounder(e.Memo, completer, prompts, params, logger)
	indexer := browser.NewIndexer(cfg.Browser.ScreenshotDir, cfg.Browser.IncludeLinks, cfg.Browser.FullPage, logger)

	e.Executor = agent.NewExecutor(launcher, indexer, grounder, e.notifier, logger)
	e.Executor.Policy = policy
	e.Executor.SettleDelay = cfg.Browser.SettleDelay
	e.Executor.PageText = cfg.Browser.PageText
	e.Executor.TextLimit = cfg.Browser.PageTextLimit

	e.Runner = agent.NewRunner(e.Records, planner, e.Executor, e.notifier, e.status, logger)
	e.pool = worker.NewPool(cfg.Engine.Workers, logger)
	e.Sweeper = agent.NewSweeper(e.Records, cfg.Engine.StaleAfter, e.Running, logger)
	return nil
}

// AddPublisher attaches another event sink. Gateways are built after the
// engine, so their sinks arrive late.
func (e *Engine) AddPublisher(p notify.Publisher) {
	e.notifier.add(p)
}

// Submit records query under queryID and runs it in the background.
func (e *Engine) Submit(ctx context.Context, queryID, query string) error {
	return e.submit(ctx, queryID, query, func(ctx context.Context) error {
		return e.Runner.Run(ctx, queryID)
	})
}

// SubmitPlan records query and runs plan for it without plan resolution.
func (e *Engine) SubmitPlan(ctx context.Context, queryID, query string, plan *agent.Plan) error {
	if plan == nil {
		return agent.ErrNoPlan
	}
	return e.submit(ctx, queryID, query, func(ctx context.Context) error {
		return e.Runner.RunPlan(ctx, queryID, plan)
	})
}

func (e *Engine) submit(ctx context.Context, queryID, query string, task worker.Task) error {
	if query == "" {
		return ErrEmptyQuery
	}
	if queryID == "" {
		return errors.New("query id is required")
	}
	if e.Running(queryID) {
		return fmt.Errorf("%w: %s", ErrDuplicate, queryID)
	}
	if err := e.create(ctx, queryID, query); err != nil {
		return err
	}

	if _, err := e.pool.Submit(queryID, task); err != nil {
		if merr := e.Records.MarkFailed(context.WithoutCancel(ctx), queryID, err.Error(), nil); merr != nil {
			e.logger.Error("failed to mark unscheduled query", zap.String("query_id", queryID), zap.Error(merr))
		}
		return err
	}
	e.logger.Info("query submitted", zap.String("query_id", queryID))
	return nil
}

func (e *Engine) create(ctx context.Context, queryID, query string) error {
	if _, err := e.Records.Create(ctx, queryID, query); err != nil {
		if _, gerr := e.Records.Get(ctx, queryID); gerr == nil {
			return fmt.Errorf("%w: %s", ErrDuplicate, queryID)
		}
		return err
	}
	return nil
}

// Execute runs query synchronously and returns its final record. An empty
// queryID gets a fresh one.
func (e *Engine) Execute(ctx context.Context, queryID, query string) (*store.Record, error) {
	return e.execute(ctx, queryID, query, func(id string) error {
		return e.Runner.Run(ctx, id)
	})
}

// ExecutePlan runs plan synchronously. The plan's query text names the record.
func (e *Engine) ExecutePlan(ctx context.Context, queryID string, plan *agent.Plan) (*store.Record, error) {
	if plan == nil {
		return nil, agent.ErrNoPlan
	}
	query := plan.Query
	if query == "" {
		query = plan.Goto
	}
	return e.execute(ctx, queryID, query, func(id string) error {
		return e.Runner.RunPlan(ctx, id, plan)
	})
}

func (e *Engine) execute(ctx context.Context, queryID, query string, run func(string) error) (*store.Record, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if queryID == "" {
		queryID = uuid.NewString()
	}
	if err := e.create(ctx, queryID, query); err != nil {
		return nil, err
	}
	runErr := run(queryID)
	rec, err := e.Records.Get(context.WithoutCancel(ctx), queryID)
	if err != nil {
		return nil, errors.Join(runErr, err)
	}
	return rec, runErr
}

// Cancel stops a running query. It reports whether one was running.
func (e *Engine) Cancel(queryID string) bool {
	ok := e.pool.Cancel(queryID)
	if ok {
		e.logger.Info("query cancelled", zap.String("query_id", queryID))
	}
	return ok
}

// Running reports whether queryID is queued or running in this process.
func (e *Engine) Running(queryID string) bool {
	_, ok := e.pool.Get(queryID)
	return ok
}

// Wait blocks until queryID is no longer running or ctx ends.
func (e *Engine) Wait(ctx context.Context, queryID string) error {
	h, ok := e.pool.Get(queryID)
	if !ok {
		return nil
	}
	select {
	case <-h.Done():
		return h.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) Record(ctx context.Context, queryID string) (*store.Record, error) {
	return e.Records.Get(ctx, queryID)
}

func (e *Engine) List(ctx context.Context, limit int) ([]store.Record, error) {
	return e.Records.List(ctx, limit)
}

// Subscribe streams the JSON events of queryID, or of every query when
// queryID is empty.
func (e *Engine) Subscribe(queryID string) (<-chan []byte, func()) {
	return e.hub.Subscribe(queryID)
}

func (e *Engine) Status() *observability.Status { return e.status }

// Health is the payload of the health endpoint.
type Health struct {
	observability.Snapshot
	Pending     int `json:"pending"`
	Subscribers int `json:"subscribers"`
}

func (e *Engine) Health() Health {
	return Health{Snapshot: e.status.Snapshot(), Pending: e.pool.Pending(), Subscribers: e.hub.Subscribers()}
}

// Close waits for running queries until ctx ends, cancels the rest and
// closes the database.
func (e *Engine) Close(ctx context.Context) error {
	err := e.pool.Shutdown(ctx)
	if cerr := e.db.Close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	e.logger.Info("engine closed")
	return err
}

// broadcaster is a notify.Multi that may grow while queries run.
type broadcaster struct {
	mu    sync.RWMutex
	sinks notify.Multi
}

func (b *broadcaster) add(p notify.Publisher) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(append(notify.Multi(nil), b.sinks...), p)
}

func (b *broadcaster) Publish(ctx context.Context, ev notify.Event) {
	b.mu.RLock()
	sinks := b.sinks
	b.mu.RUnlock()
	sinks.Publish(ctx, ev)
}
