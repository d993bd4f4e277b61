package observability

import (
	"time"

	"github.com/rahul/webpilot/pkg/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EventType defines the category of a completion log record.
type EventType string

const (
	EventTypePlan      EventType = "plan"
	EventTypeGrounding EventType = "grounding"
	EventTypeVision    EventType = "vision_only"
)

// LLMCall is one completion round trip.
type LLMCall struct {
	Type     EventType
	QueryID  string
	Provider string
	Model    string
	Prompt   string
	HasImage bool
	Response string
	Err      error
	Duration time.Duration
}

// LLMLog appends every completion call to its own rotating JSONL file so
// prompts and raw responses never end up in the main log.
type LLMLog struct {
	logger *zap.Logger
}

// NewLLMLog opens the completion log configured in cfg. An empty
// LLMLogFile yields a log that discards everything.
func NewLLMLog(cfg config.LoggerConfig) *LLMLog {
	if cfg.LLMLogFile == "" {
		return &LLMLog{logger: zap.NewNop()}
	}
	core := zapcore.NewCore(encoder("json"), zapcore.AddSync(rotating(cfg, cfg.LLMLogFile)), zap.DebugLevel)
	return &LLMLog{logger: zap.New(core)}
}

// NewLLMLogWithLogger is used by tests to observe records.
func NewLLMLogWithLogger(logger *zap.Logger) *LLMLog {
	return &LLMLog{logger: logger}
}

// Record writes c. A nil receiver is a no-op.
func (l *LLMLog) Record(c LLMCall) {
	if l == nil {
		return
	}
	fields := []zap.Field{
		zap.String("type", string(c.Type)),
		zap.String("query_id", c.QueryID),
		zap.String("provider", c.Provider),
		zap.String("model", c.Model),
		zap.String("prompt", c.Prompt),
		zap.Bool("image", c.HasImage),
		zap.String("response", c.Response),
		zap.Duration("duration", c.Duration),
	}
	if c.Err != nil {
		l.logger.Error("llm", append(fields, zap.Error(c.Err))...)
		return
	}
	l.logger.Info("llm", fields...)
}

// Sync flushes the underlying file.
func (l *LLMLog) Sync() error {
	if l == nil {
		return nil
	}
	return l.logger.Sync()
}
