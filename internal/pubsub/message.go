// Package pubsub implements the nROS communication primitives on top of the
// bus: topics are D-Bus signals carrying opaque payloads, services are D-Bus
// methods answered by the node that exports them.
package pubsub

import (
	"time"

	"github.com/godbus/dbus/v5"

	"nros/internal/bus"
)

// topicMember is the signal member used for all topic traffic.
const topicMember = "Message"

// TopicSignal is the fully qualified signal name topic messages ride on.
const TopicSignal = bus.TopicInterface + "." + topicMember

// Message is a single topic message as seen by a subscriber.
type Message struct {
	Topic   string
	ID      string // publisher-assigned message id
	Sender  string // unique bus name of the publisher
	Payload []byte
	At      time.Time
}

// fromSignal decodes a raw D-Bus signal into a Message. The second return is
// false for signals that are not nROS topic traffic.
func fromSignal(sig *dbus.Signal) (Message, bool) {
	if sig == nil || sig.Name != TopicSignal || len(sig.Body) != 3 {
		return Message{}, false
	}
	topic, ok := sig.Body[0].(string)
	if !ok {
		return Message{}, false
	}
	id, ok := sig.Body[1].(string)
	if !ok {
		return Message{}, false
	}
	payload, ok := sig.Body[2].([]byte)
	if !ok {
		return Message{}, false
	}
	return Message{
		Topic:   topic,
		ID:      id,
		Sender:  sig.Sender,
		Payload: payload,
		At:      time.Now(),
	}, true
}
