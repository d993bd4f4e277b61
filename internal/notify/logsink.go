package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogSink writes every event to the logger. Screenshots are elided.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("events")}
}

func (s *LogSink) Publish(_ context.Context, ev Event) {
	fields := []zap.Field{
		zap.String("query_id", ev.QueryID),
		zap.Bool("done", ev.Done),
		zap.Bool("has_image", ev.Image != ""),
	}
	if ev.Step > 0 {
		fields = append(fields, zap.Int("step", ev.Step))
	}
	if ev.Actions != nil {
		fields = append(fields, zap.Any("actions", ev.Actions))
	}
	if ev.IsError() {
		s.logger.Warn(ev.Message, fields...)
		return
	}
	s.logger.Debug(ev.Message, fields...)
}
