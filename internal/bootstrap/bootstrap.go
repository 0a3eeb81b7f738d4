// Package bootstrap wires configuration into a ready relay handler. Both the
// HTTP daemon and the Lambda entrypoint build their runtime through here.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"PromptBridge/internal/config"
	"PromptBridge/internal/diagnostics"
	apperrors "PromptBridge/internal/errors"
	"PromptBridge/internal/llm"
	"PromptBridge/internal/llm/bedrock"
	"PromptBridge/internal/relay"
	"PromptBridge/pkg/logger"
)

// Runtime 持有中继处理器及其依赖的外部资源。
type Runtime struct {
	Handler     *relay.Handler
	Diagnostics *diagnostics.Pipeline
}

// Close 释放诊断输出占用的连接。
func (r *Runtime) Close() error {
	if r == nil {
		return nil
	}
	return r.Diagnostics.Close()
}

// LoggerConfig 将日志配置转换为 logger.Config。
func LoggerConfig(cfg config.LoggingConfig) logger.Config {
	return logger.Config{
		Level:       cfg.Level,
		Format:      cfg.Format,
		OutputPaths: cfg.OutputPaths,
		Diagnostics: logger.DiagnosticsConfig{
			Enabled:   cfg.DiagnosticsFile != "",
			Path:      cfg.DiagnosticsFile,
			MaxSizeMB: cfg.DiagnosticsMaxMB,
		},
	}
}

// New 初始化日志、调用器与诊断输出，并构造中继处理器。
func New(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	if cfg == nil {
		return nil, apperrors.New(apperrors.CodeInitializationFailure, "配置为空")
	}
	if err := logger.Init(LoggerConfig(cfg.Logging)); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInitializationFailure, err, "初始化日志失败")
	}

	invoker, err := NewInvoker(ctx, cfg.Bedrock)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInitializationFailure, err, "初始化模型调用器失败")
	}

	pipeline, err := diagnostics.Build(ctx, cfg.Diagnostics, logger.Diagnostics())
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInitializationFailure, err, "初始化诊断输出失败")
	}

	handler := relay.New(relay.Config{ModelID: cfg.Bedrock.ModelID}, invoker,
		relay.WithSink(pipeline.Sink),
		relay.WithGuardrail(cfg.Bedrock.Guardrail.ID, cfg.Bedrock.Guardrail.Version),
	)

	logger.L().Info("中继已就绪",
		"model_id", cfg.Bedrock.ModelID,
		"invoker", cfg.Bedrock.Invoker,
		"guardrail", cfg.Bedrock.Guardrail.ID != "",
		"diagnostic_sinks", cfg.Diagnostics.Sinks,
	)
	return &Runtime{Handler: handler, Diagnostics: pipeline}, nil
}

// NewInvoker 根据配置选择 SigV4 或 API Key 认证，两种方式都经由 SDK 调用 Bedrock。
func NewInvoker(ctx context.Context, cfg config.BedrockConfig) (llm.Invoker, error) {
	opts := bedrock.Options{Region: cfg.Region, Endpoint: cfg.Endpoint}
	switch cfg.Invoker {
	case "", config.InvokerSDK:
	case config.InvokerAPIKey:
		opts.APIKey = cfg.ResolveAPIKey()
		if opts.APIKey == "" {
			return nil, errors.New("api_key invoker 需要配置 api_key 或 api_key_env")
		}
	default:
		return nil, fmt.Errorf("未知的 invoker: %s", cfg.Invoker)
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithHTTPClient(awshttp.NewBuildableClient().WithTimeout(cfg.Timeout())),
	}
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("加载 AWS 配置失败: %w", err)
	}
	return bedrock.NewFromConfig(awsCfg, opts), nil
}
