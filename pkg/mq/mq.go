package mq

// MessageQueue 消息队列接口
// The docstore publishes one message per successful Set, Update and Delete;
// Publish must not block on consumers. Subscribe is only served by
// in-process queues, Kafka producers refuse it.
type MessageQueue interface {
	// Publish sends message to topic. A failed publish is logged by the
	// caller, the mutation it describes is not rolled back.
	Publish(topic string, message []byte) error

	// Subscribe registers handler for every later message on topic.
	Subscribe(topic string, handler func(message []byte) error) error

	Close() error
}
