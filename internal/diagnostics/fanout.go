package diagnostics

import (
	"context"
	"errors"
	"fmt"
)

type namedSink struct {
	name string
	sink Sink
}

// Fanout 将记录投递给所有已注册的 Sink。
type Fanout struct {
	sinks []namedSink
}

// NewFanout 创建一个空的 Fanout。
func NewFanout() *Fanout {
	return &Fanout{}
}

// Add 注册一个 Sink，nil 会被忽略。
func (f *Fanout) Add(name string, sink Sink) *Fanout {
	if sink != nil {
		f.sinks = append(f.sinks, namedSink{name: name, sink: sink})
	}
	return f
}

// Len 返回已注册的 Sink 数量。
func (f *Fanout) Len() int {
	if f == nil {
		return 0
	}
	return len(f.sinks)
}

// Emit 投递到每个 Sink，单个 Sink 失败不会阻止其他 Sink。
func (f *Fanout) Emit(ctx context.Context, record Record) error {
	if f == nil {
		return nil
	}
	var errs []error
	for _, s := range f.sinks {
		if err := s.sink.Emit(ctx, record); err != nil {
			errs = append(errs, fmt.Errorf("sink %s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}
