package bedrock

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go/auth/bearer"

	"PromptBridge/internal/llm"
)

// ModelInvoker 抽象了 bedrockruntime.Client 的 InvokeModel 能力，便于测试替换。
type ModelInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Client 通过 AWS SDK v2 调用 Bedrock Runtime。
type Client struct {
	runtime ModelInvoker
}

// NewClient 使用已经构造好的运行时客户端创建调用器。
func NewClient(runtime ModelInvoker) (*Client, error) {
	if runtime == nil {
		return nil, errors.New("未提供 Bedrock Runtime 客户端")
	}
	return &Client{runtime: runtime}, nil
}

// Options 描述创建运行时客户端时的覆盖项。
type Options struct {
	// Region 为空时沿用 aws.Config 中的区域。
	Region string
	// Endpoint 覆盖服务地址，用于私有网关或本地模拟服务。
	Endpoint string
	// APIKey 非空时改用 Bedrock API Key 的 Bearer 认证代替 SigV4。
	APIKey string
}

func (o Options) apply(ro *bedrockruntime.Options) {
	if region := strings.TrimSpace(o.Region); region != "" {
		ro.Region = region
	}
	if endpoint := strings.TrimSpace(o.Endpoint); endpoint != "" {
		ro.BaseEndpoint = aws.String(endpoint)
	}
	if key := strings.TrimSpace(o.APIKey); key != "" {
		ro.BearerAuthTokenProvider = bearer.StaticTokenProvider{Token: bearer.Token{Value: key}}
		ro.AuthSchemePreference = []string{"httpBearerAuth"}
	}
}

// NewFromConfig 基于 AWS 配置创建调用器。
func NewFromConfig(cfg aws.Config, opts Options) *Client {
	return &Client{runtime: bedrockruntime.NewFromConfig(cfg, opts.apply)}
}

// Invoke 调用 InvokeModel，重试策略由 SDK 的传输层决定。
func (c *Client) Invoke(ctx context.Context, req llm.InvokeRequest) (*llm.InvokeResponse, error) {
	input := &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(req.ModelID),
		ContentType: aws.String(req.ContentType),
		Accept:      aws.String(req.Accept),
		Body:        req.Body,
	}
	if req.GuardrailID != "" {
		input.GuardrailIdentifier = aws.String(req.GuardrailID)
		input.GuardrailVersion = aws.String(req.GuardrailVersion)
	}

	output, err := c.runtime.InvokeModel(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("调用 Bedrock InvokeModel 失败: %w", err)
	}

	return &llm.InvokeResponse{
		ContentType: aws.ToString(output.ContentType),
		Body:        io.NopCloser(bytes.NewReader(output.Body)),
	}, nil
}
