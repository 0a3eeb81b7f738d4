package diagnostics

import (
	"context"
	"log/slog"
)

// LogSink 将诊断记录写入结构化日志。
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink 创建日志 Sink，logger 为 nil 时使用 slog.Default。
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Emit 总是输出完整响应；未解析出内容时额外输出一条告警，附带完整响应便于排查。
func (s *LogSink) Emit(ctx context.Context, record Record) error {
	s.logger.InfoContext(ctx, "provider response",
		slog.String("record_id", record.ID),
		slog.String("model_id", record.ModelID),
		slog.String("shape", record.Shape),
		slog.Int64("latency_ms", record.LatencyMillis),
		slog.String("response", string(record.Response)),
	)
	if !record.Resolved {
		s.logger.WarnContext(ctx, "assistant content unresolved",
			slog.String("record_id", record.ID),
			slog.String("model_id", record.ModelID),
			slog.String("response", string(record.Response)),
		)
	}
	return nil
}
