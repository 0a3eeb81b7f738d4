package diagnostics

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Record 描述一次模型调用的诊断信息。
type Record struct {
	ID            string          `json:"id"`
	ModelID       string          `json:"model_id"`
	Shape         string          `json:"shape"`
	Resolved      bool            `json:"resolved"`
	Content       json.RawMessage `json:"content"`
	Response      json.RawMessage `json:"response"`
	LatencyMillis int64           `json:"latency_ms"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// NewRecord 生成带有唯一 ID 的诊断记录。content 为 nil 表示未能解析出助手内容。
func NewRecord(modelID, shape string, content, response json.RawMessage, latency time.Duration, now time.Time) Record {
	return Record{
		ID:            uuid.NewString(),
		ModelID:       modelID,
		Shape:         shape,
		Resolved:      content != nil,
		Content:       content,
		Response:      response,
		LatencyMillis: latency.Milliseconds(),
		OccurredAt:    now.UTC(),
	}
}

// Sink 接收诊断记录。
type Sink interface {
	Emit(ctx context.Context, record Record) error
}

// SinkFunc 允许使用普通函数实现 Sink。
type SinkFunc func(ctx context.Context, record Record) error

// Emit 调用函数本身。
func (f SinkFunc) Emit(ctx context.Context, record Record) error {
	return f(ctx, record)
}

type discardSink struct{}

func (discardSink) Emit(context.Context, Record) error { return nil }

// Discard 丢弃所有记录。
var Discard Sink = discardSink{}
