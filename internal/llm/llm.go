package llm

import (
	"context"
	"io"
)

// ContentTypeJSON 是调用推理服务时请求与响应使用的内容类型。
const ContentTypeJSON = "application/json"

// InvokeRequest 描述一次模型调用所需的全部参数。
type InvokeRequest struct {
	ModelID          string
	ContentType      string
	Accept           string
	Body             []byte
	GuardrailID      string
	GuardrailVersion string
}

// InvokeResponse 是推理服务返回的原始结果，Body 需要调用方读取并关闭。
type InvokeResponse struct {
	ContentType string
	Body        io.ReadCloser
}

// Invoker 定义了同步调用推理服务的统一接口。
type Invoker interface {
	Invoke(ctx context.Context, req InvokeRequest) (*InvokeResponse, error)
}

// InvokerFunc 允许使用普通函数实现 Invoker。
type InvokerFunc func(ctx context.Context, req InvokeRequest) (*InvokeResponse, error)

// Invoke 调用函数本身。
func (f InvokerFunc) Invoke(ctx context.Context, req InvokeRequest) (*InvokeResponse, error) {
	return f(ctx, req)
}
