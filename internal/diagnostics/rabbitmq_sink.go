package diagnostics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const defaultRabbitMQQueue = "promptbridge.diagnostics"

// Publisher 是 amqp.Channel 的发布能力。
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// RabbitMQConfig 描述 RabbitMQ Sink 的连接参数。
type RabbitMQConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
	Durable    bool
}

// RabbitMQSink 将诊断记录以 JSON 消息发布到 RabbitMQ。
type RabbitMQSink struct {
	publisher  Publisher
	exchange   string
	routingKey string
	conn       *amqp.Connection
	ch         *amqp.Channel
}

// NewRabbitMQSink 使用现有的发布者创建 Sink。
func NewRabbitMQSink(publisher Publisher, exchange, routingKey string) *RabbitMQSink {
	if routingKey == "" {
		routingKey = defaultRabbitMQQueue
	}
	return &RabbitMQSink{publisher: publisher, exchange: exchange, routingKey: routingKey}
}

// DialRabbitMQ 建立连接；未指定 exchange 时声明与路由键同名的队列，使用默认交换机投递。
func DialRabbitMQ(cfg RabbitMQConfig) (*RabbitMQSink, error) {
	if cfg.URL == "" {
		return nil, errors.New("RabbitMQ URL 不能为空")
	}
	routingKey := cfg.RoutingKey
	if routingKey == "" {
		routingKey = defaultRabbitMQQueue
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("连接 RabbitMQ 失败: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("创建 RabbitMQ channel 失败: %w", err)
	}
	if cfg.Exchange == "" {
		if _, err := ch.QueueDeclare(routingKey, cfg.Durable, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("声明 RabbitMQ 队列失败: %w", err)
		}
	}
	sink := NewRabbitMQSink(ch, cfg.Exchange, routingKey)
	sink.conn = conn
	sink.ch = ch
	return sink, nil
}

// Emit 发布一条持久化消息。
func (s *RabbitMQSink) Emit(ctx context.Context, record Record) error {
	if s == nil || s.publisher == nil {
		return errors.New("RabbitMQ Sink 未初始化")
	}
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("序列化诊断记录失败: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    record.ID,
		Timestamp:    record.OccurredAt,
		Type:         record.Shape,
		Body:         body,
	}
	if err := s.publisher.PublishWithContext(ctx, s.exchange, s.routingKey, false, false, msg); err != nil {
		return fmt.Errorf("RabbitMQ 发布诊断记录失败: %w", err)
	}
	return nil
}

// Close 关闭 RabbitMQ 连接。
func (s *RabbitMQSink) Close() error {
	if s == nil {
		return nil
	}
	if s.ch != nil {
		_ = s.ch.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
