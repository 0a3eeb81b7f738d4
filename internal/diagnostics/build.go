package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"PromptBridge/internal/config"
	"PromptBridge/internal/storage/mysql"
	redisstore "PromptBridge/internal/storage/redis"
)

// Pipeline 是按配置组装好的诊断输出。
type Pipeline struct {
	Sink Sink
	// Store 在启用 mysql 输出时非空，可用于查询历史记录。
	Store   *mysql.DiagnosticRepository
	closers []io.Closer
}

// Close 按创建的逆序释放外部连接。
func (p *Pipeline) Close() error {
	if p == nil {
		return nil
	}
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	return errors.Join(errs...)
}

// Build 根据配置组装诊断输出，重复的 Sink 名称只生效一次。任何一个 Sink 初始化失败时，已创建的连接会被立即释放。
func Build(ctx context.Context, cfg config.DiagnosticsConfig, logger *slog.Logger) (*Pipeline, error) {
	p := &Pipeline{}
	fanout := NewFanout()

	if unknown := cfg.UnknownSinks(); len(unknown) > 0 {
		return nil, fmt.Errorf("未知的诊断输出: %s", strings.Join(unknown, ","))
	}

	if cfg.Enabled(config.SinkLog) {
		fanout.Add(config.SinkLog, NewLogSink(logger))
	}
	if cfg.Enabled(config.SinkMySQL) {
		repo, err := mysql.NewDiagnosticRepository(ctx, mysql.Config{
			DSN:             cfg.MySQL.DSN,
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.MySQL.ConnMaxLifetimeSeconds) * time.Second,
			ConnMaxIdleTime: time.Duration(cfg.MySQL.ConnMaxIdleTimeSeconds) * time.Second,
		})
		if err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("初始化 MySQL 诊断输出失败: %w", err)
		}
		p.closers = append(p.closers, repo)
		p.Store = repo
		fanout.Add(config.SinkMySQL, NewMySQLSink(repo))
	}
	if cfg.Enabled(config.SinkRedis) {
		client, err := redisstore.NewClient(ctx, redisstore.Config{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("初始化 Redis 诊断输出失败: %w", err)
		}
		p.closers = append(p.closers, client)
		fanout.Add(config.SinkRedis, NewRedisSink(client, cfg.Redis.Key, cfg.Redis.MaxLen))
	}
	if cfg.Enabled(config.SinkRabbitMQ) {
		sink, err := DialRabbitMQ(RabbitMQConfig{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			Durable:    cfg.RabbitMQ.Durable,
		})
		if err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("初始化 RabbitMQ 诊断输出失败: %w", err)
		}
		p.closers = append(p.closers, sink)
		fanout.Add(config.SinkRabbitMQ, sink)
	}

	p.Sink = fanout
	if fanout.Len() == 0 {
		p.Sink = Discard
	}
	return p, nil
}
