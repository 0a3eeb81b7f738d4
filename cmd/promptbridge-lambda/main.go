package main

import (
	"context"
	"log"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/lambda"

	"PromptBridge/internal/apigw"
	"PromptBridge/internal/bootstrap"
	"PromptBridge/internal/config"
)

// main 是 API Gateway 背后的 Lambda 入口。PROMPTBRIDGE_PAYLOAD_FORMAT=1.0 时按 REST API 事件处理。
func main() {
	ctx := context.Background()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	runtime, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}

	adapter := apigw.New(runtime.Handler)
	if strings.TrimSpace(os.Getenv("PROMPTBRIDGE_PAYLOAD_FORMAT")) == "1.0" {
		lambda.Start(adapter.HandleREST)
		return
	}
	lambda.Start(adapter.HandleHTTPAPI)
}
