package relay

import (
	"bytes"
	"encoding/json"
	"strings"
)

// 请求载荷中的固定字段，调用方无法覆盖。
const (
	MaxTokens        = 1000
	AnthropicVersion = "bedrock-2023-05-31"
	RoleUser         = "user"
)

// Message 是单轮对话中的一条消息。
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Payload 是发送给 Bedrock 的 Anthropic messages 请求体。
type Payload struct {
	Messages         []Message `json:"messages"`
	MaxTokens        int       `json:"max_tokens"`
	AnthropicVersion string    `json:"anthropic_version"`
}

// BuildPayload 构造只包含一条用户消息的请求体。
func BuildPayload(prompt string) Payload {
	return Payload{
		Messages:         []Message{{Role: RoleUser, Content: prompt}},
		MaxTokens:        MaxTokens,
		AnthropicVersion: AnthropicVersion,
	}
}

// guardedPayload 是启用 Guardrail 时要求的外层结构。
type guardedPayload struct {
	Input Payload `json:"input"`
}

// marshal 序列化 v，不转义 HTML 字符，结果不带换行。
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// ValidModelID 判断模型标识是否为推理配置文件 ARN。
func ValidModelID(modelID string) bool {
	return strings.HasPrefix(modelID, "arn:aws") && strings.Contains(modelID, "inference-profile")
}
