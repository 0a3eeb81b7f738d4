package apigw

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"

	apperrors "PromptBridge/internal/errors"
	"PromptBridge/internal/relay"
	"PromptBridge/pkg/logger"
)

var jsonHeaders = map[string]string{"Content-Type": "application/json"}

// PromptHandler 处理原始请求体并返回规范化结果。
type PromptHandler interface {
	Handle(ctx context.Context, body string) (*relay.Result, error)
}

// Adapter 把 API Gateway 事件转换为中继调用。
type Adapter struct {
	handler PromptHandler
	logger  *slog.Logger
}

// New 创建适配器。
func New(handler PromptHandler) *Adapter {
	return &Adapter{handler: handler, logger: logger.Named("apigw")}
}

// HandleHTTPAPI 处理 HTTP API（payload format 2.0）事件。中继返回的错误原样交给 Lambda 运行时。
func (a *Adapter) HandleHTTPAPI(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	result, err := a.handle(ctx, req.Body, req.IsBase64Encoded)
	if err != nil {
		return events.APIGatewayV2HTTPResponse{}, err
	}
	return events.APIGatewayV2HTTPResponse{
		StatusCode: result.StatusCode,
		Headers:    jsonHeaders,
		Body:       string(result.Body),
	}, nil
}

// HandleREST 处理 REST API（payload format 1.0）代理集成事件。
func (a *Adapter) HandleREST(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	result, err := a.handle(ctx, req.Body, req.IsBase64Encoded)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	return events.APIGatewayProxyResponse{
		StatusCode: result.StatusCode,
		Headers:    jsonHeaders,
		Body:       string(result.Body),
	}, nil
}

func (a *Adapter) handle(ctx context.Context, body string, base64Encoded bool) (*relay.Result, error) {
	if base64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return &relay.Result{
				StatusCode: http.StatusBadRequest,
				Body:       []byte(`{"error":"` + relay.MessageInvalidBody + `"}`),
			}, nil
		}
		body = string(decoded)
	}

	result, err := a.handler.Handle(ctx, body)
	if err != nil {
		attrs := apperrors.LogAttrs(err)
		if lc, ok := lambdacontext.FromContext(ctx); ok {
			attrs = append(attrs, slog.String("request_id", lc.AwsRequestID))
		}
		a.logger.ErrorContext(ctx, "prompt relay failed", attrs...)
		return nil, err
	}
	return result, nil
}
