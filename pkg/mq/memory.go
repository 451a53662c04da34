package mq

import "sync"

// InMemoryQueue 内存消息队列（用于测试和简单场景）
type InMemoryQueue struct {
	mu       sync.RWMutex
	handlers map[string][]func([]byte) error
	messages map[string][][]byte
}

// 确保 InMemoryQueue 实现 MessageQueue 接口
var _ MessageQueue = (*InMemoryQueue)(nil)

// NewInMemoryQueue 创建内存消息队列
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		handlers: make(map[string][]func([]byte) error),
		messages: make(map[string][][]byte),
	}
}

// Publish records the message and hands it to every subscriber of topic
// synchronously. The first handler error is returned.
func (q *InMemoryQueue) Publish(topic string, message []byte) error {
	msg := append([]byte(nil), message...)

	q.mu.Lock()
	q.messages[topic] = append(q.messages[topic], msg)
	handlers := append([]func([]byte) error(nil), q.handlers[topic]...)
	q.mu.Unlock()

	for _, handler := range handlers {
		if err := handler(msg); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe 订阅 topic
func (q *InMemoryQueue) Subscribe(topic string, handler func([]byte) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Close 关闭
func (q *InMemoryQueue) Close() error {
	return nil
}

// GetMessages 获取指定 topic 的所有消息（用于测试）
func (q *InMemoryQueue) GetMessages(topic string) [][]byte {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return append([][]byte(nil), q.messages[topic]...)
}

// Topics lists every topic that has received at least one message.
func (q *InMemoryQueue) Topics() []string {
	q.mu.RLock()
	defer q.mu.RUnlock()

	topics := make([]string, 0, len(q.messages))
	for topic := range q.messages {
		topics = append(topics, topic)
	}
	return topics
}
