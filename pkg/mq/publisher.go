package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"admitcoach/scheduler/config"
)

// Publisher 预约状态事件发布者（topic exchange，路由键 booking.<status>）
type Publisher struct {
	mu       sync.Mutex // amqp.Channel 不支持并发发布
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	logger   *zap.Logger
}

// NewPublisher 建立连接并声明持久化 topic exchange
func NewPublisher(cfg *config.RabbitMQConfig, logger *zap.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("连接 RabbitMQ 失败: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("打开 channel 失败: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("声明 exchange 失败: %w", err)
	}

	logger.Info("RabbitMQ 连接成功", zap.String("exchange", cfg.Exchange))
	return &Publisher{conn: conn, ch: ch, exchange: cfg.Exchange, logger: logger}, nil
}

// Publish 以 JSON 发布事件，消息持久化
func (p *Publisher) Publish(ctx context.Context, routingKey string, payload interface{}) error {
	body, err := encode(payload)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	}); err != nil {
		return fmt.Errorf("发布事件 %s 失败: %w", routingKey, err)
	}

	p.logger.Debug("事件已发布", zap.String("routing_key", routingKey), zap.Int("bytes", len(body)))
	return nil
}

// Close 关闭 channel 与连接
func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

func encode(payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("序列化事件失败: %w", err)
	}
	return body, nil
}
