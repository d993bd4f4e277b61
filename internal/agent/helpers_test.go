package agent

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rahul/webpilot/internal/browser"
	"github.com/rahul/webpilot/internal/browser/browsertest"
	"github.com/rahul/webpilot/internal/llm"
	"github.com/rahul/webpilot/internal/notify"
	"github.com/rahul/webpilot/internal/observability"
	"github.com/rahul/webpilot/internal/store"
	"github.com/rahul/webpilot/pkg/config"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// scriptedLLM answers completions from a function and records every request.
type scriptedLLM struct {
	mu      sync.Mutex
	calls   []llm.Request
	respond func(req llm.Request) (string, error)
}

func (s *scriptedLLM) Complete(_ context.Context, req llm.Request) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	s.mu.Unlock()
	return s.respond(req)
}

func (s *scriptedLLM) Calls(purpose observability.EventType) []llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []llm.Request
	for _, c := range s.calls {
		if purpose == "" || c.Purpose == purpose {
			out = append(out, c)
		}
	}
	return out
}

// byStep answers grounding prompts by the first step text they mention.
func byStep(answers map[string]string) func(llm.Request) (string, error) {
	return func(req llm.Request) (string, error) {
		for step, answer := range answers {
			if strings.Contains(req.Prompt, "action: "+step+"\n") {
				return answer, nil
			}
		}
		return `{"actions": []}`, nil
	}
}

type eventLog struct {
	mu     sync.Mutex
	events []notify.Event
}

func (l *eventLog) Publish(_ context.Context, ev notify.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) All() []notify.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]notify.Event(nil), l.events...)
}

func (l *eventLog) Count(match func(notify.Event) bool) int {
	n := 0
	for _, ev := range l.All() {
		if match(ev) {
			n++
		}
	}
	return n
}

func isError(ev notify.Event) bool { return ev.IsError() }

type harness struct {
	db       *store.RecordStore
	memo     *store.Memo
	llm      *scriptedLLM
	page     *browsertest.Page
	launcher *browsertest.Launcher
	events   *eventLog
	planner  *Planner
	grounder *Grounder
	executor *Executor
	runner   *Runner
	status   *observability.Status
}

var sites = map[string]browsertest.Site{
	"https://example.com": {
		HTML:     `<html><head><title>Example Domain</title></head><body><p>This domain is for use in illustrative examples in documents.</p></body></html>`,
		Elements: []browsertest.Element{{Tag: "a"}},
	},
	"https://example.com/form": {Elements: []browsertest.Element{
		{Tag: "input", Type: "text"},
		{Tag: "textarea"},
		{Tag: "input", Type: "submit"},
		{Tag: "a"},
		{Tag: "button"},
	}},
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	db, err := store.Open(filepath.Join(t.TempDir(), "webpilot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	prompts, err := NewPromptManager("")
	require.NoError(t, err)

	h := &harness{
		db:     store.NewRecordStore(db),
		memo:   store.NewMemo(store.NewSQLiteBackend(db), logger),
		llm:    &scriptedLLM{respond: byStep(nil)},
		page:   browsertest.NewPage(sites),
		events: &eventLog{},
		status: observability.NewStatus(),
	}
	h.launcher = &browsertest.Launcher{Page: h.page}
	completer := llm.CompleterFunc(func(ctx context.Context, req llm.Request) (string, error) {
		return h.llm.Complete(ctx, req)
	})
	params := llm.Params{Temperature: 0.3, MaxTokens: 300, TopP: 0.95}

	h.planner = NewPlanner(h.memo, completer, prompts, params, logger)
	h.grounder = NewGrounder(h.memo, completer, prompts, params, logger)
	h.executor = NewExecutor(h.launcher, browser.NewIndexer(t.TempDir(), true, false, logger), h.grounder, h.events, logger)
	h.executor.SettleDelay = 0
	h.runner = NewRunner(h.db, h.planner, h.executor, h.events, h.status, logger)
	return h
}

func denyLocalSchemes() config.PolicyConfig {
	return config.PolicyConfig{DenySchemes: []string{"file", "chrome", "javascript", "data"}}
}
