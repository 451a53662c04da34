package docstore

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Zereker/docstore/pkg/log"
	"github.com/Zereker/docstore/pkg/mq"
)

// Change operations carried by ChangeEvent.Op.
const (
	OpSet    = "set"
	OpUpdate = "update"
	OpDelete = "delete"
)

// DefaultTopicPrefix prefixes change event topics when none is configured.
const DefaultTopicPrefix = "docstore"

// ChangeEvent describes one successful mutation.
type ChangeEvent struct {
	ID        string    `json:"id"`
	Op        string    `json:"op"`
	Namespace string    `json:"namespace"`
	Key       string    `json:"key"`
	Record    Record    `json:"record,omitempty"`
	Time      time.Time `json:"time"`
}

// Notifier publishes change events to a message queue on topics of the form
// "<prefix>.<namespace>.<op>". A nil Notifier publishes nothing.
type Notifier struct {
	logger *slog.Logger
	queue  mq.MessageQueue
	prefix string
}

// NewNotifier creates a Notifier on queue.
func NewNotifier(queue mq.MessageQueue, prefix string) *Notifier {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return &Notifier{
		logger: log.Logger("docstore.events"),
		queue:  queue,
		prefix: prefix,
	}
}

// Topic returns the topic used for op events in namespace.
func (n *Notifier) Topic(namespace, op string) string {
	return n.prefix + "." + namespace + "." + op
}

// notify publishes the event. Failures are logged; the mutation has
// already happened and is not rolled back.
func (n *Notifier) notify(namespace, op, key string, rec Record) {
	if n == nil || n.queue == nil {
		return
	}

	ev := ChangeEvent{
		ID:        uuid.New().String(),
		Op:        op,
		Namespace: namespace,
		Key:       key,
		Record:    rec,
		Time:      time.Now().UTC(),
	}

	data, err := json.Marshal(ev)
	if err != nil {
		n.logger.Error("failed to encode change event", "key", key, "op", op, "error", err)
		return
	}

	topic := n.Topic(namespace, op)
	if err := n.queue.Publish(topic, data); err != nil {
		n.logger.Error("failed to publish change event", "topic", topic, "key", key, "error", err)
	}
}
