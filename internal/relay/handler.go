package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"PromptBridge/internal/diagnostics"
	apperrors "PromptBridge/internal/errors"
	"PromptBridge/internal/llm"
	"PromptBridge/internal/observability/metrics"
	"PromptBridge/pkg/logger"
)

// 固定的错误响应文案。
const (
	MessagePromptRequired = "prompt is required"
	MessageInvalidBody    = "request body must be a JSON object"
	MessageInvalidModelID = "BEDROCK_MODEL_ID must hold an inference profile ARN (arn:aws:bedrock:<region>:<account>:inference-profile/<id>)"
)

// Config 是进程启动时确定的只读配置。
type Config struct {
	ModelID string
}

// Result 是返回给传输层的规范化结果。
type Result struct {
	StatusCode int
	Body       []byte
}

// Option 用于定制 Handler。
type Option func(*Handler)

// WithSink 设置诊断输出，默认写入诊断日志。
func WithSink(sink diagnostics.Sink) Option {
	return func(h *Handler) {
		if sink != nil {
			h.sink = sink
		}
	}
}

// WithGuardrail 启用 Bedrock Guardrail，id 为空时不生效。
func WithGuardrail(id, version string) Option {
	return func(h *Handler) {
		h.guardrailID = strings.TrimSpace(id)
		h.guardrailVersion = strings.TrimSpace(version)
		if h.guardrailID != "" && h.guardrailVersion == "" {
			h.guardrailVersion = "DRAFT"
		}
	}
}

// WithLogger 替换默认日志。
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithClock 替换时钟，用于测试延迟统计。
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// Handler 处理单次提示词请求，构造后不可变，可被并发调用。
type Handler struct {
	modelID          string
	invoker          llm.Invoker
	sink             diagnostics.Sink
	guardrailID      string
	guardrailVersion string
	logger           *slog.Logger
	now              func() time.Time
}

// New 创建 Handler。
func New(cfg Config, invoker llm.Invoker, opts ...Option) *Handler {
	h := &Handler{
		modelID: cfg.ModelID,
		invoker: invoker,
		logger:  logger.Named("relay"),
		now:     time.Now,
	}
	h.sink = diagnostics.NewLogSink(logger.Diagnostics())
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle 执行 校验 → 构造载荷 → 调用 → 解码 → 提取 → 诊断 → 响应 的流程。
// 调用失败与解码失败以错误返回，不会生成 200 响应。
func (h *Handler) Handle(ctx context.Context, body string) (*Result, error) {
	prompt, err := parsePrompt(body)
	if err != nil {
		return h.fail(http.StatusBadRequest, MessageInvalidBody), nil
	}
	if strings.TrimSpace(prompt) == "" {
		return h.fail(http.StatusBadRequest, MessagePromptRequired), nil
	}

	if !ValidModelID(h.modelID) {
		h.logger.ErrorContext(ctx, "model identifier is not an inference profile ARN",
			slog.String("model_id", h.modelID),
			slog.String("code", string(apperrors.CodeConfiguration)),
		)
		return h.fail(http.StatusInternalServerError, MessageInvalidModelID), nil
	}

	payload, err := h.encodePayload(prompt)
	if err != nil {
		metrics.RequestsTotal.WithLabelValues("error").Inc()
		return nil, apperrors.Wrap(apperrors.CodeUnknown, err, "encode inference payload")
	}

	start := h.now()
	raw, err := h.invoke(ctx, payload)
	if err != nil {
		metrics.RequestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	latency := h.now().Sub(start)
	metrics.ProviderLatency.Observe(latency.Seconds())

	decoded, err := decodeResponse(raw)
	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues(metrics.OutcomeDecodeError).Inc()
		metrics.RequestsTotal.WithLabelValues("error").Inc()
		return nil, apperrors.Wrap(apperrors.CodeDecodeFailure, err, "decode provider response",
			apperrors.WithMetadata("model_id", h.modelID),
		)
	}
	metrics.ProviderRequestsTotal.WithLabelValues(metrics.OutcomeOK).Inc()

	extraction := Extract(decoded)
	metrics.ExtractionsTotal.WithLabelValues(string(extraction.Shape), strconv.FormatBool(extraction.Resolved())).Inc()

	h.observe(ctx, extraction, raw, latency)

	out, err := marshal(struct {
		Response json.RawMessage `json:"response"`
	}{Response: extraction.Content})
	if err != nil {
		metrics.RequestsTotal.WithLabelValues("error").Inc()
		return nil, apperrors.Wrap(apperrors.CodeDecodeFailure, err, "encode relay response")
	}
	metrics.RequestsTotal.WithLabelValues(strconv.Itoa(http.StatusOK)).Inc()
	return &Result{StatusCode: http.StatusOK, Body: out}, nil
}

func (h *Handler) encodePayload(prompt string) ([]byte, error) {
	payload := BuildPayload(prompt)
	if h.guardrailID != "" {
		return marshal(guardedPayload{Input: payload})
	}
	return marshal(payload)
}

// invoke 执行唯一一次调用并完整读取响应体。
func (h *Handler) invoke(ctx context.Context, payload []byte) ([]byte, error) {
	resp, err := h.invoker.Invoke(ctx, llm.InvokeRequest{
		ModelID:          h.modelID,
		ContentType:      llm.ContentTypeJSON,
		Accept:           llm.ContentTypeJSON,
		Body:             payload,
		GuardrailID:      h.guardrailID,
		GuardrailVersion: h.guardrailVersion,
	})
	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues(metrics.OutcomeInvokeError).Inc()
		code := apperrors.CodeUpstreamFailure
		if errors.Is(err, context.DeadlineExceeded) {
			code = apperrors.CodeTimeout
		}
		return nil, apperrors.Wrap(code, err, "invoke inference provider",
			apperrors.WithMetadata("model_id", h.modelID),
		)
	}
	if resp == nil || resp.Body == nil {
		metrics.ProviderRequestsTotal.WithLabelValues(metrics.OutcomeDecodeError).Inc()
		return nil, apperrors.New(apperrors.CodeDecodeFailure, "provider returned no response body",
			apperrors.WithMetadata("model_id", h.modelID),
		)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues(metrics.OutcomeInvokeError).Inc()
		return nil, apperrors.Wrap(apperrors.CodeUpstreamFailure, err, "read provider response body",
			apperrors.WithMetadata("model_id", h.modelID),
		)
	}
	return raw, nil
}

// observe 把诊断记录交给 Sink，Sink 的失败只记录日志，不影响响应。
func (h *Handler) observe(ctx context.Context, extraction Extraction, raw []byte, latency time.Duration) {
	record := diagnostics.NewRecord(h.modelID, string(extraction.Shape), extraction.Content, raw, latency, h.now())
	if err := h.sink.Emit(ctx, record); err != nil {
		metrics.SinkErrorsTotal.Inc()
		h.logger.WarnContext(ctx, "diagnostic sink failed",
			slog.String("record_id", record.ID),
			slog.String("code", string(apperrors.CodeSinkFailure)),
			slog.Any("error", err),
		)
	}
}

func (h *Handler) fail(status int, message string) *Result {
	metrics.RequestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	body, _ := marshal(map[string]string{"error": message})
	return &Result{StatusCode: status, Body: body}
}

// parsePrompt 读取 prompt 字段。空请求体视为 {}；缺失、null 或非字符串的 prompt 视为空串。
func parsePrompt(body string) (string, error) {
	if strings.TrimSpace(body) == "" {
		return "", nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return "", err
	}
	if fields == nil {
		return "", errors.New("request body is null")
	}
	var prompt string
	if raw, ok := fields["prompt"]; ok {
		if err := json.Unmarshal(raw, &prompt); err != nil {
			return "", nil
		}
	}
	return prompt, nil
}

// decodeResponse 要求响应体是合法 UTF-8 编码的 JSON 对象。
func decodeResponse(raw []byte) (map[string]json.RawMessage, error) {
	if !utf8.Valid(raw) {
		return nil, errors.New("provider response is not valid UTF-8")
	}
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("provider response is not a JSON object: %w", err)
	}
	if decoded == nil {
		return nil, errors.New("provider response is not a JSON object")
	}
	return decoded, nil
}
