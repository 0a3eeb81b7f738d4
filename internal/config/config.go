package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultModelID 是未设置 BEDROCK_MODEL_ID 时使用的模型标识。
const DefaultModelID = "apac.anthropic.claude-sonnet-4-20250514-v1:0"

// Invoker 驱动名称。
const (
	InvokerSDK    = "sdk"
	InvokerAPIKey = "api_key"
)

// Sink 名称。
const (
	SinkLog      = "log"
	SinkMySQL    = "mysql"
	SinkRedis    = "redis"
	SinkRabbitMQ = "rabbitmq"
)

// Config 描述了中继服务启动阶段需要加载的全部配置。
type Config struct {
	Server      ServerConfig      `json:"server" yaml:"server"`
	Bedrock     BedrockConfig     `json:"bedrock" yaml:"bedrock"`
	Diagnostics DiagnosticsConfig `json:"diagnostics" yaml:"diagnostics"`
	Logging     LoggingConfig     `json:"logging" yaml:"logging"`
}

// ServerConfig 控制 HTTP 服务的监听地址等参数。
type ServerConfig struct {
	Address                string `json:"address" yaml:"address"`
	ShutdownTimeoutSeconds int    `json:"shutdown_timeout_seconds" yaml:"shutdown_timeout_seconds"`
}

// ShutdownTimeout 返回优雅退出的等待时间。
func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSeconds) * time.Second
}

// BedrockConfig 描述模型调用方式。
type BedrockConfig struct {
	ModelID        string          `json:"model_id" yaml:"model_id"`
	Region         string          `json:"region" yaml:"region"`
	Invoker        string          `json:"invoker" yaml:"invoker"`
	Endpoint       string          `json:"endpoint" yaml:"endpoint"`
	APIKey         string          `json:"api_key" yaml:"api_key"`
	APIKeyEnv      string          `json:"api_key_env" yaml:"api_key_env"`
	TimeoutSeconds int             `json:"timeout_seconds" yaml:"timeout_seconds"`
	Guardrail      GuardrailConfig `json:"guardrail" yaml:"guardrail"`
}

// Timeout 返回单次调用的超时时间。
func (b BedrockConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSeconds) * time.Second
}

// ResolveAPIKey 优先使用显式配置的 Key，其次读取 APIKeyEnv 指向的环境变量。
func (b BedrockConfig) ResolveAPIKey() string {
	if key := strings.TrimSpace(b.APIKey); key != "" {
		return key
	}
	if b.APIKeyEnv != "" {
		return strings.TrimSpace(os.Getenv(b.APIKeyEnv))
	}
	return ""
}

// GuardrailConfig 描述可选的 Bedrock Guardrail。
type GuardrailConfig struct {
	ID      string `json:"id" yaml:"id"`
	Version string `json:"version" yaml:"version"`
}

// DiagnosticsConfig 选择诊断记录的输出目标。
type DiagnosticsConfig struct {
	Sinks    []string       `json:"sinks" yaml:"sinks"`
	MySQL    MySQLConfig    `json:"mysql" yaml:"mysql"`
	Redis    RedisConfig    `json:"redis" yaml:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq" yaml:"rabbitmq"`
}

// Enabled 判断是否启用了指定的 Sink。
func (d DiagnosticsConfig) Enabled(name string) bool {
	for _, sink := range d.Sinks {
		if strings.EqualFold(strings.TrimSpace(sink), name) {
			return true
		}
	}
	return false
}

// UnknownSinks 返回配置中无法识别的 Sink 名称。
func (d DiagnosticsConfig) UnknownSinks() []string {
	var unknown []string
	for _, sink := range d.Sinks {
		switch strings.ToLower(strings.TrimSpace(sink)) {
		case SinkLog, SinkMySQL, SinkRedis, SinkRabbitMQ:
		default:
			unknown = append(unknown, sink)
		}
	}
	return unknown
}

// MySQLConfig 描述诊断记录表所在的 MySQL。
type MySQLConfig struct {
	DSN                    string `json:"dsn" yaml:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds" yaml:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int    `json:"conn_max_idle_time_seconds" yaml:"conn_max_idle_time_seconds"`
}

// RedisConfig 描述诊断列表所在的 Redis。
type RedisConfig struct {
	Address  string `json:"address" yaml:"address"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	Key      string `json:"key" yaml:"key"`
	MaxLen   int64  `json:"max_len" yaml:"max_len"`
}

// RabbitMQConfig 描述诊断消息的投递目标。
type RabbitMQConfig struct {
	URL        string `json:"url" yaml:"url"`
	Exchange   string `json:"exchange" yaml:"exchange"`
	RoutingKey string `json:"routing_key" yaml:"routing_key"`
	Durable    bool   `json:"durable" yaml:"durable"`
}

// LoggingConfig 描述日志输出。
type LoggingConfig struct {
	Level            string   `json:"level" yaml:"level"`
	Format           string   `json:"format" yaml:"format"`
	OutputPaths      []string `json:"output_paths" yaml:"output_paths"`
	DiagnosticsFile  string   `json:"diagnostics_file" yaml:"diagnostics_file"`
	DiagnosticsMaxMB int      `json:"diagnostics_max_mb" yaml:"diagnostics_max_mb"`
}

// Load 解析指定路径的配置文件（.yaml/.yml 使用 YAML，其余按 JSON 解析），
// 然后应用默认值与环境变量覆盖。path 为空时只使用默认值与环境变量。
func Load(path string) (*Config, error) {
	var cfg Config
	baseDir := "."
	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err := decode(path, content, &cfg); err != nil {
			return nil, fmt.Errorf("解析配置失败: %w", err)
		}
		baseDir = filepath.Dir(path)
	}

	cfg.applyEnv(os.LookupEnv)
	cfg.applyDefaults(baseDir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromEnv 仅根据环境变量构造配置，供 Lambda 入口使用。
func FromEnv() (*Config, error) {
	return Load("")
}

func decode(path string, content []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(content, cfg)
	default:
		return json.Unmarshal(content, cfg)
	}
}

// applyEnv 使用环境变量覆盖文件中的配置。
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(key string, target *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*target = strings.TrimSpace(v)
		}
	}

	set("BEDROCK_MODEL_ID", &c.Bedrock.ModelID)
	set("GUARDRAIL_ID", &c.Bedrock.Guardrail.ID)
	set("GUARDRAIL_VERSION", &c.Bedrock.Guardrail.Version)
	set("BEDROCK_INVOKER", &c.Bedrock.Invoker)
	set("BEDROCK_ENDPOINT", &c.Bedrock.Endpoint)
	set("AWS_BEARER_TOKEN_BEDROCK", &c.Bedrock.APIKey)
	set("PROMPTBRIDGE_ADDR", &c.Server.Address)
	set("PROMPTBRIDGE_LOG_LEVEL", &c.Logging.Level)
	if c.Bedrock.Region == "" {
		set("AWS_REGION", &c.Bedrock.Region)
	}
	if v, ok := lookup("PROMPTBRIDGE_DIAGNOSTIC_SINKS"); ok && strings.TrimSpace(v) != "" {
		c.Diagnostics.Sinks = splitList(v)
	}
	if v, ok := lookup("BEDROCK_TIMEOUT_SECONDS"); ok {
		if seconds, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && seconds > 0 {
			c.Bedrock.TimeoutSeconds = seconds
		}
	}
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		c.Server.ShutdownTimeoutSeconds = 5
	}

	if c.Bedrock.ModelID == "" {
		c.Bedrock.ModelID = DefaultModelID
	}
	if c.Bedrock.Invoker == "" {
		c.Bedrock.Invoker = InvokerSDK
	}
	c.Bedrock.Invoker = strings.ToLower(c.Bedrock.Invoker)
	if c.Bedrock.TimeoutSeconds <= 0 {
		c.Bedrock.TimeoutSeconds = 60
	}
	if c.Bedrock.Guardrail.ID != "" && c.Bedrock.Guardrail.Version == "" {
		c.Bedrock.Guardrail.Version = "DRAFT"
	}

	if len(c.Diagnostics.Sinks) == 0 {
		c.Diagnostics.Sinks = []string{SinkLog}
	}

	if c.Logging.DiagnosticsFile != "" && !filepath.IsAbs(c.Logging.DiagnosticsFile) {
		c.Logging.DiagnosticsFile = filepath.Join(baseDir, c.Logging.DiagnosticsFile)
	}
}

// Validate 检查互相依赖的配置项。模型标识的格式校验发生在每次请求时。
func (c *Config) Validate() error {
	switch c.Bedrock.Invoker {
	case InvokerSDK:
	case InvokerAPIKey:
		if c.Bedrock.ResolveAPIKey() == "" {
			return errors.New("api_key invoker 需要配置 api_key、api_key_env 或 AWS_BEARER_TOKEN_BEDROCK")
		}
	default:
		return fmt.Errorf("未知的 invoker: %s", c.Bedrock.Invoker)
	}

	d := c.Diagnostics
	if unknown := d.UnknownSinks(); len(unknown) > 0 {
		return fmt.Errorf("未知的诊断输出: %s", strings.Join(unknown, ","))
	}
	if d.Enabled(SinkMySQL) && strings.TrimSpace(d.MySQL.DSN) == "" {
		return errors.New("mysql 诊断输出需要配置 dsn")
	}
	if d.Enabled(SinkRedis) && strings.TrimSpace(d.Redis.Address) == "" {
		return errors.New("redis 诊断输出需要配置 address")
	}
	if d.Enabled(SinkRabbitMQ) && strings.TrimSpace(d.RabbitMQ.URL) == "" {
		return errors.New("rabbitmq 诊断输出需要配置 url")
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
