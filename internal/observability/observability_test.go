package observability

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rahul/webpilot/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type bufferSyncer struct {
	strings.Builder
}

func (b *bufferSyncer) Sync() error { return nil }

func TestInitialize_ConsoleAndLevel(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	buf := &bufferSyncer{}
	Initialize(config.LoggerConfig{Level: "warn", Format: "console", ServiceName: "webpilot"}, buf)

	logger := GetLogger()
	logger.Info("hidden")
	logger.Warn("visible", zap.String("query_id", "q1"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
	assert.Contains(t, out, "webpilot.")
	assert.Contains(t, out, "q1")
}

func TestInitialize_RunsOnce(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	first := &bufferSyncer{}
	second := &bufferSyncer{}
	Initialize(config.LoggerConfig{Level: "info", Format: "json"}, first)
	Initialize(config.LoggerConfig{Level: "info", Format: "json"}, second)

	GetLogger().Info("hello")
	assert.Contains(t, first.String(), `"msg":"hello"`)
	assert.Empty(t, second.String())
}

func TestGetLogger_Fallback(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)
	assert.NotNil(t, GetLogger())
}

func TestLLMLog_Record(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewLLMLogWithLogger(zap.New(core))

	l.Record(LLMCall{Type: EventTypePlan, QueryID: "q1", Prompt: "p", Response: "{}", Duration: time.Millisecond})
	l.Record(LLMCall{Type: EventTypeGrounding, QueryID: "q1", Err: errors.New("boom")})

	require.Equal(t, 2, logs.Len())
	entries := logs.All()
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "plan", entries[0].ContextMap()["type"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])

	var nilLog *LLMLog
	assert.NotPanics(t, func() { nilLog.Record(LLMCall{}) })
}

func TestStatus_Counters(t *testing.T) {
	s := NewStatus()
	s.Begin("a", "first")
	s.Begin("b", "second")
	s.End("a", nil)
	s.End("b", errors.New("x"))
	s.End("unknown", nil)

	snap := s.Snapshot()
	assert.Equal(t, 0, snap.Active)
	assert.EqualValues(t, 2, snap.Started)
	assert.EqualValues(t, 1, snap.Completed)
	assert.EqualValues(t, 1, snap.Failed)
	assert.Equal(t, "second", snap.LastQuery)
}

func TestStatusLine(t *testing.T) {
	s := NewStatus()
	s.Begin("a", "a very long query that should be truncated somewhere")
	line := StatusLine(s.Snapshot(), 1)
	assert.Contains(t, line, "HEALTHY")
	assert.Contains(t, line, "active 1")
	assert.Contains(t, line, "...")
	assert.Contains(t, line, radarFrames[1])
}
