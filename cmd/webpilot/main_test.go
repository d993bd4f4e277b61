package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rahul/webpilot/internal/browser/browsertest"
	"github.com/rahul/webpilot/internal/engine"
	"github.com/rahul/webpilot/internal/llm"
	"github.com/rahul/webpilot/internal/observability"
	"github.com/rahul/webpilot/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	cfg := "memory:\n  path: " + filepath.Join(dir, "webpilot.db") + "\n" +
		"browser:\n  settle_delay: 0s\n  screenshot_dir: " + filepath.Join(dir, "shots") + "\n" +
		"logger:\n  level: error\n"
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path, dir
}

func execute(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)

	root := newRootCmdWith(a)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLoadPlan(t *testing.T) {
	dir := t.TempDir()

	yamlPlan := filepath.Join(dir, "plan.yaml")
	require.NoError(t, os.WriteFile(yamlPlan, []byte(`goto: https://example.com
action_plan:
  - go to example.com
  - read the page title
vision_only:
  - read the page title
goal: the title
`), 0o644))
	plan, err := loadPlan(yamlPlan)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", plan.Goto)
	assert.Len(t, plan.Steps, 2)
	assert.True(t, plan.IsVisionOnly("read the page title"))

	jsonPlan := filepath.Join(dir, "plan.json")
	require.NoError(t, os.WriteFile(jsonPlan, []byte(`{"goto": "https://example.com", "action_plan": ["go"]}`), 0o644))
	plan, err = loadPlan(jsonPlan)
	require.NoError(t, err)
	assert.Equal(t, []string{}, plan.VisionOnly)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("action_plan: [a]\n"), 0o644))
	_, err = loadPlan(bad)
	assert.Error(t, err)

	_, err = loadPlan(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestCacheCommands(t *testing.T) {
	cfgPath, dir := writeConfig(t)

	db, err := store.Open(filepath.Join(dir, "webpilot.db"))
	require.NoError(t, err)
	memo := store.NewMemo(store.NewSQLiteBackend(db), zaptest.NewLogger(t))
	memo.Store(context.Background(), store.NamespacePlans, "find the weather", []byte(`{"goto":"https://weather.example"}`))
	require.NoError(t, db.Close())

	out, err := execute(t, &app{}, "--config", cfgPath, "cache", "get", "plans", "find the weather")
	require.NoError(t, err)
	assert.Contains(t, out, "weather.example")

	out, err = execute(t, &app{}, "--config", cfgPath, "cache", "clear", "plans")
	require.NoError(t, err)
	assert.Contains(t, out, "cleared plans")

	_, err = execute(t, &app{}, "--config", cfgPath, "cache", "get", "plans", "find the weather")
	assert.Error(t, err)

	_, err = execute(t, &app{}, "--config", cfgPath, "cache", "clear", "screenshots")
	assert.Error(t, err)
}

func TestRunCommand(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	page := browsertest.NewPage(map[string]browsertest.Site{"https://example.com": {Title: "Example Domain"}})
	completer := llm.CompleterFunc(func(_ context.Context, req llm.Request) (string, error) {
		if req.Purpose == observability.EventTypePlan {
			return `{"goto": "https://example.com", "action_plan": ["go to example.com", "read the page title"], "vision_only": ["read the page title"]}`, nil
		}
		return `[{"target_index": null, "input_text": null, "extracted_data": "Example Domain"}]`, nil
	})
	a := &app{engineOpts: []engine.Option{
		engine.WithLauncher(&browsertest.Launcher{Page: page}),
		engine.WithCompleter(completer),
	}}

	out, err := execute(t, a, "--config", cfgPath, "run", "--id", "q1", "go to example.com and read the page title")
	require.NoError(t, err)
	assert.Contains(t, out, "Navigated to https://example.com")
	assert.Contains(t, out, "query q1: done")
	assert.Contains(t, out, "read the page title: Example Domain")
}

func TestExecCommand(t *testing.T) {
	cfgPath, dir := writeConfig(t)
	planPath := filepath.Join(dir, "plan.yaml")
	require.NoError(t, os.WriteFile(planPath, []byte("goto: https://example.com\naction_plan: [open]\n"), 0o644))

	page := browsertest.NewPage(map[string]browsertest.Site{"https://example.com": {Title: "Example Domain"}})
	a := &app{engineOpts: []engine.Option{
		engine.WithLauncher(&browsertest.Launcher{Page: page}),
		engine.WithCompleter(llm.CompleterFunc(func(context.Context, llm.Request) (string, error) {
			t.Fatal("no completion expected")
			return "", nil
		})),
	}}

	out, err := execute(t, a, "--config", cfgPath, "exec", "--plan", planPath, "--id", "p1")
	require.NoError(t, err)
	assert.Contains(t, out, "query p1: done")
	assert.Equal(t, 1, page.Closed())

	_, err = execute(t, a, "--config", cfgPath, "exec")
	assert.Error(t, err, "--plan is required")
}
