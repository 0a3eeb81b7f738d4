package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"PromptBridge/internal/config"
	"PromptBridge/internal/llm/bedrock"
)

func isolateAWSEnv(t *testing.T) {
	t.Helper()
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(t.TempDir(), "absent-config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(t.TempDir(), "absent-credentials"))
}

func TestNewInvokerSelectsAuth(t *testing.T) {
	isolateAWSEnv(t)

	sdk, err := NewInvoker(context.Background(), config.BedrockConfig{Invoker: config.InvokerSDK, Region: "ap-northeast-1", TimeoutSeconds: 30})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := sdk.(*bedrock.Client); !ok {
		t.Fatalf("expected bedrock client, got %T", sdk)
	}

	keyed, err := NewInvoker(context.Background(), config.BedrockConfig{Invoker: config.InvokerAPIKey, APIKey: "key", Endpoint: "http://127.0.0.1:4566"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := keyed.(*bedrock.Client); !ok {
		t.Fatalf("api key mode should also use the SDK client, got %T", keyed)
	}

	if _, err := NewInvoker(context.Background(), config.BedrockConfig{Invoker: config.InvokerAPIKey}); err == nil {
		t.Fatalf("expected error without api key")
	}
	if _, err := NewInvoker(context.Background(), config.BedrockConfig{Invoker: "grpc"}); err == nil {
		t.Fatalf("expected error for unknown invoker")
	}
}

func TestLoggerConfig(t *testing.T) {
	cfg := LoggerConfig(config.LoggingConfig{Level: "debug", DiagnosticsFile: "/var/log/promptbridge/diagnostics.log", DiagnosticsMaxMB: 50})
	if !cfg.Diagnostics.Enabled || cfg.Diagnostics.MaxSizeMB != 50 || cfg.Level != "debug" {
		t.Fatalf("unexpected logger config: %+v", cfg)
	}
	if LoggerConfig(config.LoggingConfig{}).Diagnostics.Enabled {
		t.Fatalf("diagnostics file should be disabled by default")
	}
}

func TestNewBuildsRuntime(t *testing.T) {
	isolateAWSEnv(t)
	cfg := &config.Config{
		Bedrock: config.BedrockConfig{
			ModelID:        config.DefaultModelID,
			Invoker:        config.InvokerAPIKey,
			APIKey:         "key",
			Endpoint:       "http://127.0.0.1:4566",
			TimeoutSeconds: 5,
		},
		Diagnostics: config.DiagnosticsConfig{Sinks: []string{config.SinkLog}},
	}
	runtime, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer runtime.Close()
	if runtime.Handler == nil || runtime.Diagnostics == nil {
		t.Fatalf("runtime not fully initialised: %+v", runtime)
	}
}
