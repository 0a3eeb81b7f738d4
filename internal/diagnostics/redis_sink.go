package diagnostics

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultRedisKey    = "promptbridge:diagnostics"
	defaultRedisMaxLen = 1000
)

// Pipeliner 是 go-redis 客户端的事务管道能力。
type Pipeliner interface {
	TxPipelined(ctx context.Context, fn func(goredis.Pipeliner) error) ([]goredis.Cmder, error)
}

// RedisSink 将诊断记录推入定长的 Redis 列表，最新记录位于表头。
type RedisSink struct {
	client Pipeliner
	key    string
	maxLen int64
}

// NewRedisSink 创建 Redis Sink。
func NewRedisSink(client Pipeliner, key string, maxLen int64) *RedisSink {
	if key == "" {
		key = defaultRedisKey
	}
	if maxLen <= 0 {
		maxLen = defaultRedisMaxLen
	}
	return &RedisSink{client: client, key: key, maxLen: maxLen}
}

// Emit 以 LPUSH + LTRIM 的方式写入记录。
func (s *RedisSink) Emit(ctx context.Context, record Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("序列化诊断记录失败: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.LPush(ctx, s.key, payload)
		pipe.LTrim(ctx, s.key, 0, s.maxLen-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("Redis 写入诊断记录失败: %w", err)
	}
	return nil
}
