package errors

import (
	stdErrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
)

// Code 表示中继服务内的统一错误码。
type Code string

// Severity 描述错误的严重程度，用于日志分级与告警。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Attributes 为错误码提供默认行为。
type Attributes struct {
	Message    string
	Severity   Severity
	Retryable  bool
	Alert      bool
	HTTPStatus int
}

const (
	CodeUnknown               Code = "UNKNOWN"
	CodeConfiguration         Code = "CONFIGURATION"
	CodeUpstreamFailure       Code = "UPSTREAM_FAILURE"
	CodeDecodeFailure         Code = "DECODE_FAILURE"
	CodeSinkFailure           Code = "SINK_FAILURE"
	CodeInitializationFailure Code = "INITIALIZATION_FAILURE"
	CodeTimeout               Code = "TIMEOUT"
)

var registry = map[Code]Attributes{
	CodeUnknown: {
		Message:    "unknown error",
		Severity:   SeverityCritical,
		Alert:      true,
		HTTPStatus: http.StatusInternalServerError,
	},
	CodeConfiguration: {
		Message:    "invalid configuration",
		Severity:   SeverityCritical,
		Alert:      true,
		HTTPStatus: http.StatusInternalServerError,
	},
	CodeUpstreamFailure: {
		Message:    "inference provider call failed",
		Severity:   SeverityWarning,
		Retryable:  true,
		Alert:      true,
		HTTPStatus: http.StatusBadGateway,
	},
	CodeDecodeFailure: {
		Message:    "inference response could not be decoded",
		Severity:   SeverityCritical,
		Alert:      true,
		HTTPStatus: http.StatusBadGateway,
	},
	CodeSinkFailure: {
		Message:    "diagnostic sink failure",
		Severity:   SeverityWarning,
		Retryable:  true,
		HTTPStatus: http.StatusInternalServerError,
	},
	CodeInitializationFailure: {
		Message:    "service not initialized",
		Severity:   SeverityCritical,
		Alert:      true,
		HTTPStatus: http.StatusServiceUnavailable,
	},
	CodeTimeout: {
		Message:    "operation timed out",
		Severity:   SeverityWarning,
		Retryable:  true,
		Alert:      true,
		HTTPStatus: http.StatusGatewayTimeout,
	},
}

// AttributesOf 返回错误码对应的属性。若未注册则返回 UNKNOWN 的属性。
func AttributesOf(code Code) Attributes {
	if attr, ok := registry[code]; ok {
		return attr
	}
	return registry[CodeUnknown]
}

// Error 是中继服务内统一的错误类型。
type Error struct {
	code     Code
	message  string
	cause    error
	metadata map[string]string
}

// Option 定义可选配置。
type Option func(*Error)

// WithMetadata 附加额外信息。
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// New 创建一个新的错误实例。
func New(code Code, message string, opts ...Option) *Error {
	if message == "" {
		message = AttributesOf(code).Message
	}
	e := &Error{code: code, message: message}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Wrap 在已有错误外包裹统一错误类型。
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

// Error 实现 error 接口。
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

// Unwrap 实现 errors.Unwrap。
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is 允许通过 errors.Is 按错误码比较。
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.code == t.code
}

// Code 返回错误码。
func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

// Metadata 返回附加信息的副本。
func (e *Error) Metadata() map[string]string {
	if e == nil || len(e.metadata) == 0 {
		return nil
	}
	clone := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		clone[k] = v
	}
	return clone
}

// Retryable 判断是否可重试。
func (e *Error) Retryable() bool {
	if e == nil {
		return false
	}
	return AttributesOf(e.code).Retryable
}

// Severity 返回错误严重程度。
func (e *Error) Severity() Severity {
	if e == nil {
		return SeverityInfo
	}
	return AttributesOf(e.code).Severity
}

// From 尝试从 error 中解析统一错误类型。
func From(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var target *Error
	if stdErrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf 返回错误对应的错误码。
func CodeOf(err error) Code {
	if e, ok := From(err); ok {
		return e.Code()
	}
	return CodeUnknown
}

// RetryableError 判断任意 error 是否可重试。
func RetryableError(err error) bool {
	if e, ok := From(err); ok {
		return e.Retryable()
	}
	return false
}

// ShouldAlert 判断是否需要触发告警。
func ShouldAlert(err error) bool {
	if err == nil {
		return false
	}
	return AttributesOf(CodeOf(err)).Alert
}

// SeverityOf 返回错误严重程度。
func SeverityOf(err error) Severity {
	if e, ok := From(err); ok {
		return e.Severity()
	}
	return AttributesOf(CodeUnknown).Severity
}

// HTTPStatusOf 返回错误码建议映射的 HTTP 状态码。
func HTTPStatusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return AttributesOf(CodeOf(err)).HTTPStatus
}

// LogAttrs 把错误码、严重程度、告警标记与附加信息展开为结构化日志字段。
func LogAttrs(err error) []any {
	attrs := []any{
		slog.String("code", string(CodeOf(err))),
		slog.String("severity", string(SeverityOf(err))),
		slog.Bool("retryable", RetryableError(err)),
		slog.Bool("alert", ShouldAlert(err)),
	}
	if e, ok := From(err); ok {
		meta := e.Metadata()
		keys := make([]string, 0, len(meta))
		for k := range meta {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			attrs = append(attrs, slog.String(k, meta[k]))
		}
	}
	return append(attrs, slog.Any("error", err))
}
