package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"time"

	"PromptBridge/internal/api"
	"PromptBridge/internal/diagnostics"
	"PromptBridge/internal/llm"
	"PromptBridge/internal/relay"
	"PromptBridge/sdk/go/promptbridge"
)

// main 在本地启动一个使用模拟模型的中继，并通过 SDK 发送提示词。
func main() {
	invoker := llm.InvokerFunc(func(ctx context.Context, req llm.InvokeRequest) (*llm.InvokeResponse, error) {
		return &llm.InvokeResponse{
			ContentType: llm.ContentTypeJSON,
			Body:        io.NopCloser(strings.NewReader(`{"content":[{"type":"text","text":"Hello from the mock model"}]}`)),
		}, nil
	})
	handler := relay.New(relay.Config{
		ModelID: "arn:aws:bedrock:ap-northeast-1:123456789012:inference-profile/apac.anthropic.claude-sonnet-4-20250514-v1:0",
	}, invoker, relay.WithSink(diagnostics.NewLogSink(slog.Default())))

	srv := httptest.NewServer(api.NewServer(":0", handler).Routes())
	defer srv.Close()

	client := promptbridge.NewClient(srv.URL, srv.Client())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	answer, err := client.Prompt(ctx, "Say hello")
	if err != nil {
		panic(err)
	}
	if answer == nil {
		fmt.Println("relay returned no content")
		return
	}
	fmt.Printf("assistant: %s\n", *answer)
}
