package pubsub

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"

	"nros/internal/bus"
	"nros/internal/logging"
)

// Handler receives topic messages. It runs on the subscriber's dispatch
// goroutine: long-running work should be handed off so signal delivery from
// the bus is not held up.
type Handler func(Message)

// SubscribeOptions narrow what a Subscriber receives.
type SubscribeOptions struct {
	// Topic filters on the topic name. Empty subscribes to all topics.
	Topic string

	// Sender filters on the publishing node (node name, not unique name).
	Sender string

	// Buffer is the signal channel depth (default 128).
	Buffer int
}

// Subscriber delivers topic messages to a handler until closed.
type Subscriber struct {
	conn    *bus.Conn
	opts    []dbus.MatchOption
	ch      chan *dbus.Signal
	wg      sync.WaitGroup
	closeMu sync.Mutex
	closed  bool
}

// Subscribe registers a match rule for topic traffic and starts delivering
// messages to the handler.
func Subscribe(conn *bus.Conn, opts SubscribeOptions, handler Handler) (*Subscriber, error) {
	if handler == nil {
		return nil, fmt.Errorf("subscribe: handler must not be nil")
	}
	match := []dbus.MatchOption{
		dbus.WithMatchInterface(bus.TopicInterface),
		dbus.WithMatchMember(topicMember),
	}
	if opts.Topic != "" {
		// Topic name is the first signal argument
		match = append(match, dbus.WithMatchArg(0, opts.Topic))
	}
	if opts.Sender != "" {
		match = append(match, dbus.WithMatchSender(bus.BusName(opts.Sender)))
	}
	if err := conn.Raw().AddMatchSignal(match...); err != nil {
		return nil, fmt.Errorf("add topic match: %w", err)
	}

	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 128
	}

	s := &Subscriber{
		conn: conn,
		opts: match,
		ch:   make(chan *dbus.Signal, buffer),
	}
	conn.Raw().Signal(s.ch)

	s.wg.Add(1)
	go s.dispatch(handler, opts.Topic)

	logging.Topic("subscribed topic=%q sender=%q", opts.Topic, opts.Sender)
	return s, nil
}

// dispatch runs until the signal channel is closed, so buffered messages are
// still delivered after Close stops the bus feed.
func (s *Subscriber) dispatch(handler Handler, topic string) {
	defer s.wg.Done()
	for sig := range s.ch {
		msg, ok := fromSignal(sig)
		if !ok {
			continue
		}
		// The match rule already filters by topic, but the signal
		// channel is shared per connection so re-check here.
		if topic != "" && msg.Topic != topic {
			continue
		}
		handler(msg)
	}
}

// Close removes the match rule, drains what is already buffered, and stops
// delivery. Safe to call repeatedly.
func (s *Subscriber) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	// Unregister first: once the bus no longer writes to the channel it can
	// be closed, and dispatch drains the remainder before exiting.
	s.conn.Raw().RemoveSignal(s.ch)
	err := s.conn.Raw().RemoveMatchSignal(s.opts...)
	close(s.ch)
	s.wg.Wait()
	return err
}
