package mq

import (
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"
)

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	Enabled bool     `toml:"enabled"`
	Brokers []string `toml:"brokers"`

	// TopicPrefix prefixes change event topics: <prefix>.<collection>.<op>.
	TopicPrefix string `toml:"topic_prefix"`

	// RetryMax bounds producer retries. Zero keeps the default of 3.
	RetryMax int `toml:"retry_max"`
}

// Validate 验证配置
func (c *KafkaConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.Brokers) == 0 {
		return fmt.Errorf("brokers is required when kafka is enabled")
	}
	if c.RetryMax < 0 {
		return fmt.Errorf("retry_max must not be negative")
	}
	return nil
}

// saramaConfig builds the producer settings for c.
func (c *KafkaConfig) saramaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	if c.RetryMax > 0 {
		cfg.Producer.Retry.Max = c.RetryMax
	}
	return cfg
}

// KafkaProducer Kafka 生产者
type KafkaProducer struct {
	logger *slog.Logger
	client sarama.SyncProducer
}

// 确保 KafkaProducer 实现 MessageQueue 接口
var _ MessageQueue = (*KafkaProducer)(nil)

// NewKafkaProducer 创建 Kafka 生产者
// Returns nil when kafka is disabled; a nil producer publishes nothing.
func NewKafkaProducer(config KafkaConfig) (*KafkaProducer, error) {
	if !config.Enabled {
		return nil, nil
	}

	client, err := sarama.NewSyncProducer(config.Brokers, config.saramaConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	return NewKafkaProducerFromClient(client), nil
}

// NewKafkaProducerFromClient wraps an existing sync producer.
func NewKafkaProducerFromClient(client sarama.SyncProducer) *KafkaProducer {
	return &KafkaProducer{
		logger: slog.Default().With("module", "kafka-producer"),
		client: client,
	}
}

// Publish 发布消息
func (p *KafkaProducer) Publish(topic string, message []byte) error {
	if p == nil {
		return nil
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(message),
	}

	partition, offset, err := p.client.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	p.logger.Debug("message sent",
		"topic", topic,
		"partition", partition,
		"offset", offset,
	)

	return nil
}

// Close 关闭生产者
func (p *KafkaProducer) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}

// Subscribe 订阅（Producer 不支持，仅用于满足 MessageQueue 接口）
func (p *KafkaProducer) Subscribe(topic string, handler func(message []byte) error) error {
	return fmt.Errorf("kafka producer does not support subscribe")
}
