package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"PromptBridge/internal/diagnostics"
	apperrors "PromptBridge/internal/errors"
	"PromptBridge/internal/llm"
)

const testModelID = "arn:aws:bedrock:ap-northeast-1:123456789012:inference-profile/apac.anthropic.claude-sonnet-4-20250514-v1:0"

type spyInvoker struct {
	mu       sync.Mutex
	calls    int
	requests []llm.InvokeRequest
	response string
	err      error
	closed   bool
}

func (s *spyInvoker) Invoke(_ context.Context, req llm.InvokeRequest) (*llm.InvokeResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	return &llm.InvokeResponse{
		ContentType: llm.ContentTypeJSON,
		Body:        &trackingBody{Reader: strings.NewReader(s.response), onClose: s.markClosed},
	}, nil
}

func (s *spyInvoker) markClosed() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

type trackingBody struct {
	io.Reader
	onClose func()
}

func (b *trackingBody) Close() error {
	b.onClose()
	return nil
}

type captureSink struct {
	records []diagnostics.Record
	err     error
}

func (c *captureSink) Emit(_ context.Context, record diagnostics.Record) error {
	c.records = append(c.records, record)
	return c.err
}

func newTestHandler(invoker llm.Invoker, sink diagnostics.Sink, opts ...Option) *Handler {
	base := []Option{
		WithSink(sink),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	return New(Config{ModelID: testModelID}, invoker, append(base, opts...)...)
}

func TestHandleRejectsMissingPrompt(t *testing.T) {
	bodies := []string{
		``,
		`{}`,
		`{"prompt":""}`,
		`{"prompt":"   \n\t"}`,
		`{"prompt":null}`,
		`{"prompt":42}`,
	}
	for _, body := range bodies {
		spy := &spyInvoker{}
		result, err := newTestHandler(spy, &captureSink{}).Handle(context.Background(), body)
		if err != nil {
			t.Fatalf("body %q: unexpected error: %v", body, err)
		}
		if result.StatusCode != http.StatusBadRequest {
			t.Fatalf("body %q: unexpected status %d", body, result.StatusCode)
		}
		if string(result.Body) != `{"error":"prompt is required"}` {
			t.Fatalf("body %q: unexpected response %s", body, result.Body)
		}
		if spy.calls != 0 {
			t.Fatalf("body %q: provider must not be called", body)
		}
	}
}

func TestHandleRejectsNonObjectBody(t *testing.T) {
	for _, body := range []string{`not json`, `["prompt"]`, `"prompt"`, `null`} {
		spy := &spyInvoker{}
		result, err := newTestHandler(spy, &captureSink{}).Handle(context.Background(), body)
		if err != nil {
			t.Fatalf("body %q: unexpected error: %v", body, err)
		}
		if result.StatusCode != http.StatusBadRequest || !strings.Contains(string(result.Body), MessageInvalidBody) {
			t.Fatalf("body %q: unexpected result %d %s", body, result.StatusCode, result.Body)
		}
		if spy.calls != 0 {
			t.Fatalf("body %q: provider must not be called", body)
		}
	}
}

func TestHandleRejectsInvalidModelID(t *testing.T) {
	for _, modelID := range []string{"", "apac.anthropic.claude-sonnet-4-20250514-v1:0", "arn:aws:bedrock:us-east-1::foundation-model/x"} {
		spy := &spyInvoker{response: `{"completion":"E"}`}
		handler := New(Config{ModelID: modelID}, spy,
			WithSink(&captureSink{}),
			WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		)
		result, err := handler.Handle(context.Background(), `{"prompt":"hello"}`)
		if err != nil {
			t.Fatalf("model %q: unexpected error: %v", modelID, err)
		}
		if result.StatusCode != http.StatusInternalServerError {
			t.Fatalf("model %q: unexpected status %d", modelID, result.StatusCode)
		}
		var body map[string]string
		if err := json.Unmarshal(result.Body, &body); err != nil || body["error"] != MessageInvalidModelID {
			t.Fatalf("model %q: unexpected body %s", modelID, result.Body)
		}
		if spy.calls != 0 {
			t.Fatalf("model %q: provider must not be called", modelID)
		}
	}
}

func TestHandlePromptCheckPrecedesModelCheck(t *testing.T) {
	handler := New(Config{ModelID: "bare-model"}, &spyInvoker{},
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	result, err := handler.Handle(context.Background(), `{}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty prompt should be reported first, got %d", result.StatusCode)
	}
}

func TestHandleBuildsFixedPayload(t *testing.T) {
	prompts := []string{
		"hello",
		"  keep surrounding whitespace  ",
		`override {"max_tokens": 5, "anthropic_version": "x"} <b>&</b>`,
		"こんにちは",
	}
	for _, prompt := range prompts {
		spy := &spyInvoker{response: `{"completion":"E"}`}
		body, _ := json.Marshal(map[string]any{"prompt": prompt, "max_tokens": 5, "anthropic_version": "override"})
		if _, err := newTestHandler(spy, &captureSink{}).Handle(context.Background(), string(body)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if spy.calls != 1 {
			t.Fatalf("expected a single provider call, got %d", spy.calls)
		}

		req := spy.requests[0]
		if req.ModelID != testModelID || req.ContentType != llm.ContentTypeJSON || req.Accept != llm.ContentTypeJSON {
			t.Fatalf("unexpected invoke request: %+v", req)
		}
		if req.GuardrailID != "" {
			t.Fatalf("guardrail should not be set by default")
		}

		var payload struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
			MaxTokens        int    `json:"max_tokens"`
			AnthropicVersion string `json:"anthropic_version"`
		}
		if err := json.Unmarshal(req.Body, &payload); err != nil {
			t.Fatalf("payload is not JSON: %v", err)
		}
		if len(payload.Messages) != 1 || payload.Messages[0].Role != "user" || payload.Messages[0].Content != prompt {
			t.Fatalf("unexpected messages: %+v", payload.Messages)
		}
		if payload.MaxTokens != 1000 || payload.AnthropicVersion != "bedrock-2023-05-31" {
			t.Fatalf("unexpected fixed fields: %+v", payload)
		}
		if !spy.closed {
			t.Fatalf("response body should be closed")
		}
	}
}

func TestHandleWrapsPayloadForGuardrail(t *testing.T) {
	spy := &spyInvoker{response: `{"content":[{"text":"G"}]}`}
	handler := newTestHandler(spy, &captureSink{}, WithGuardrail("gr-123", ""))

	if _, err := handler.Handle(context.Background(), `{"prompt":"hello"}`); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req := spy.requests[0]
	if req.GuardrailID != "gr-123" || req.GuardrailVersion != "DRAFT" {
		t.Fatalf("unexpected guardrail: %q %q", req.GuardrailID, req.GuardrailVersion)
	}
	var wrapped map[string]Payload
	if err := json.Unmarshal(req.Body, &wrapped); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	input, ok := wrapped["input"]
	if !ok || len(wrapped) != 1 {
		t.Fatalf("payload should only contain input: %s", req.Body)
	}
	if input.Messages[0].Content != "hello" || input.MaxTokens != MaxTokens {
		t.Fatalf("unexpected wrapped payload: %+v", input)
	}
}

func TestHandleGoldenResponses(t *testing.T) {
	cases := []struct {
		response string
		want     string
	}{
		{`{"messages":[{"content":"A"},{"content":"B"}]}`, `{"response":"B"}`},
		{`{"completions":[{"message":{"content":"C"}}]}`, `{"response":"C"}`},
		{`{"completions":[{"data":{"content":"D"}}]}`, `{"response":"D"}`},
		{`{"completion":"E"}`, `{"response":"E"}`},
		{`{"modelOutputs":[{"content":"F"}]}`, `{"response":"F"}`},
		{`{"content":[{"text":"G"}]}`, `{"response":"G"}`},
		{`{"content":[{"content":"H"}]}`, `{"response":"H"}`},
		{`{}`, `{"response":null}`},
		{`{"messages":[{"content":"A"},{"content":"B"}],"completion":"X"}`, `{"response":"B"}`},
		{"{\n  \"completion\" : \"spaced\"\n}", `{"response":"spaced"}`},
	}
	for _, tc := range cases {
		spy := &spyInvoker{response: tc.response}
		result, err := newTestHandler(spy, &captureSink{}).Handle(context.Background(), `{"prompt":"hi"}`)
		if err != nil {
			t.Fatalf("response %s: unexpected error: %v", tc.response, err)
		}
		if result.StatusCode != http.StatusOK {
			t.Fatalf("response %s: unexpected status %d", tc.response, result.StatusCode)
		}
		if string(result.Body) != tc.want {
			t.Fatalf("response %s: got %s want %s", tc.response, result.Body, tc.want)
		}
	}
}

func TestHandleIsIdempotent(t *testing.T) {
	spy := &spyInvoker{response: `{"content":[{"type":"text","text":"same <answer> & more"}]}`}
	handler := newTestHandler(spy, &captureSink{})

	first, err := handler.Handle(context.Background(), `{"prompt":"repeat"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := handler.Handle(context.Background(), `{"prompt":"repeat"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(first.Body, second.Body) || first.StatusCode != second.StatusCode {
		t.Fatalf("outputs differ: %s vs %s", first.Body, second.Body)
	}
	if !bytes.Equal(spy.requests[0].Body, spy.requests[1].Body) {
		t.Fatalf("payloads differ")
	}
}

func TestHandleEmitsDiagnostics(t *testing.T) {
	sink := &captureSink{}
	start := time.Date(2025, 5, 14, 0, 0, 0, 0, time.UTC)
	ticks := 0
	clock := func() time.Time {
		ticks++
		return start.Add(time.Duration(ticks) * 250 * time.Millisecond)
	}
	handler := newTestHandler(&spyInvoker{response: `{"unknown":"shape"}`}, sink, WithClock(clock))

	result, err := handler.Handle(context.Background(), `{"prompt":"hi"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(result.Body) != `{"response":null}` {
		t.Fatalf("unexpected body: %s", result.Body)
	}
	if len(sink.records) != 1 {
		t.Fatalf("expected one diagnostic record, got %d", len(sink.records))
	}
	record := sink.records[0]
	if record.Resolved || record.Shape != string(ShapeNone) || record.ModelID != testModelID {
		t.Fatalf("unexpected record: %+v", record)
	}
	if string(record.Response) != `{"unknown":"shape"}` {
		t.Fatalf("full response should be recorded: %s", record.Response)
	}
	if record.LatencyMillis != 250 {
		t.Fatalf("unexpected latency: %d", record.LatencyMillis)
	}
}

func TestHandleIgnoresSinkFailure(t *testing.T) {
	sink := &captureSink{err: errors.New("redis down")}
	result, err := newTestHandler(&spyInvoker{response: `{"completion":"E"}`}, sink).Handle(context.Background(), `{"prompt":"hi"}`)
	if err != nil {
		t.Fatalf("sink failure must not fail the request: %v", err)
	}
	if result.StatusCode != http.StatusOK || string(result.Body) != `{"response":"E"}` {
		t.Fatalf("unexpected result: %d %s", result.StatusCode, result.Body)
	}
}

func TestHandlePropagatesInvokeFailure(t *testing.T) {
	cause := errors.New("ThrottlingException: rate exceeded")
	sink := &captureSink{}
	result, err := newTestHandler(&spyInvoker{err: cause}, sink).Handle(context.Background(), `{"prompt":"hi"}`)
	if result != nil {
		t.Fatalf("no result expected on provider failure: %+v", result)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
	if apperrors.CodeOf(err) != apperrors.CodeUpstreamFailure {
		t.Fatalf("unexpected code: %s", apperrors.CodeOf(err))
	}
	coded, _ := apperrors.From(err)
	if coded.Metadata()["model_id"] != testModelID {
		t.Fatalf("model id missing from error metadata: %+v", coded.Metadata())
	}
	if len(sink.records) != 0 {
		t.Fatalf("no diagnostics expected without a response")
	}
}

func TestHandleCodesProviderDeadlineAsTimeout(t *testing.T) {
	cause := fmt.Errorf("operation error Bedrock Runtime: InvokeModel: %w", context.DeadlineExceeded)
	result, err := newTestHandler(&spyInvoker{err: cause}, &captureSink{}).Handle(context.Background(), `{"prompt":"hi"}`)
	if result != nil {
		t.Fatalf("no result expected on provider timeout: %+v", result)
	}
	if apperrors.CodeOf(err) != apperrors.CodeTimeout {
		t.Fatalf("unexpected code: %s", apperrors.CodeOf(err))
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("deadline cause should stay reachable: %v", err)
	}
	if apperrors.HTTPStatusOf(err) != http.StatusGatewayTimeout {
		t.Fatalf("unexpected status mapping: %d", apperrors.HTTPStatusOf(err))
	}
}

func TestHandlePropagatesDecodeFailure(t *testing.T) {
	responses := []string{
		`not json`,
		`{"completion":`,
		"{\"completion\":\"\xff\xfe\"}",
		`["completion"]`,
		`null`,
		``,
		`{"completion":"E"} trailing`,
	}
	for _, response := range responses {
		result, err := newTestHandler(&spyInvoker{response: response}, &captureSink{}).Handle(context.Background(), `{"prompt":"hi"}`)
		if err == nil {
			t.Fatalf("response %q: expected error, got %d %s", response, result.StatusCode, result.Body)
		}
		if result != nil {
			t.Fatalf("response %q: must not fabricate a result", response)
		}
		if apperrors.CodeOf(err) != apperrors.CodeDecodeFailure {
			t.Fatalf("response %q: unexpected code %s", response, apperrors.CodeOf(err))
		}
	}
}

func TestHandleConcurrentCalls(t *testing.T) {
	spy := &spyInvoker{response: `{"completion":"E"}`}
	handler := newTestHandler(spy, diagnostics.Discard)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := handler.Handle(context.Background(), `{"prompt":"hi"}`)
			if err != nil || string(result.Body) != `{"response":"E"}` {
				t.Errorf("unexpected result: %v %v", result, err)
			}
		}()
	}
	wg.Wait()
	if spy.calls != 16 {
		t.Fatalf("expected 16 calls, got %d", spy.calls)
	}
}
