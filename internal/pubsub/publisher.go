package pubsub

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"nros/internal/bus"
	"nros/internal/logging"
)

// Publisher emits topic messages from a node connection.
type Publisher struct {
	conn *bus.Conn
}

// NewPublisher returns a Publisher bound to the given connection.
func NewPublisher(conn *bus.Conn) *Publisher {
	return &Publisher{conn: conn}
}

// Publish emits payload on the topic and returns the assigned message id.
// Payloads are opaque bytes; JSON is the convention between nROS nodes.
func (p *Publisher) Publish(topic string, payload []byte) (string, error) {
	if topic == "" {
		return "", fmt.Errorf("topic name must not be empty")
	}
	id := uuid.NewString()
	if err := p.conn.Raw().Emit(bus.RootPath, TopicSignal, topic, id, payload); err != nil {
		return "", fmt.Errorf("publish on %s: %w", topic, err)
	}
	logging.TopicDebug("published %s id=%s (%d bytes)", topic, id, len(payload))
	return id, nil
}

// PublishJSON marshals v and publishes it on the topic.
func (p *Publisher) PublishJSON(topic string, v interface{}) (string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode message for %s: %w", topic, err)
	}
	return p.Publish(topic, payload)
}
