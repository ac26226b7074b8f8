package record

import (
	"context"
	"sync/atomic"
	"time"

	"nros/internal/bus"
	"nros/internal/logging"
	"nros/internal/pubsub"
)

// Recorder subscribes to topics and appends everything it sees to a bag.
type Recorder struct {
	bag   *Bag
	subs  []*pubsub.Subscriber
	count atomic.Int64
}

// NewRecorder starts recording the given topics into the bag. An empty topic
// list records everything on the bus.
func NewRecorder(conn *bus.Conn, bag *Bag, topics ...string) (*Recorder, error) {
	r := &Recorder{bag: bag}

	handler := func(msg pubsub.Message) {
		if err := r.bag.Append(msg); err == nil {
			r.count.Add(1)
		}
	}

	if len(topics) == 0 {
		topics = []string{""}
	}
	for _, topic := range topics {
		sub, err := pubsub.Subscribe(conn, pubsub.SubscribeOptions{Topic: topic}, handler)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.subs = append(r.subs, sub)
	}
	logging.Record("recording %d topic filter(s) into %s", len(topics), bag.Path())
	return r, nil
}

// Count returns how many messages have been captured so far.
func (r *Recorder) Count() int64 { return r.count.Load() }

// Close stops all subscriptions. The bag stays open.
func (r *Recorder) Close() error {
	var first error
	for _, sub := range r.subs {
		if err := sub.Close(); err != nil && first == nil {
			first = err
		}
	}
	r.subs = nil
	return first
}

// PlayOptions control bag playback.
type PlayOptions struct {
	// Immediate replays as fast as possible instead of preserving the
	// captured inter-message gaps.
	Immediate bool

	// Rate scales the captured gaps (2.0 plays twice as fast). Zero or
	// negative means 1.0.
	Rate float64
}

// replayDelay computes how long to wait before the next message.
func replayDelay(prev, next time.Time, opts PlayOptions) time.Duration {
	if opts.Immediate || prev.IsZero() {
		return 0
	}
	gap := next.Sub(prev)
	if gap <= 0 {
		return 0
	}
	rate := opts.Rate
	if rate <= 0 {
		rate = 1.0
	}
	return time.Duration(float64(gap) / rate)
}

// Play republishes the content of a bag onto the bus. Returns the number of
// messages published.
func Play(ctx context.Context, conn *bus.Conn, bag *Bag, opts PlayOptions) (int, error) {
	pub := pubsub.NewPublisher(conn)
	published := 0
	var prev time.Time

	err := bag.Messages(func(msg pubsub.Message) error {
		if delay := replayDelay(prev, msg.At, opts); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		} else if ctx.Err() != nil {
			return ctx.Err()
		}
		prev = msg.At

		if _, err := pub.Publish(msg.Topic, msg.Payload); err != nil {
			return err
		}
		published++
		return nil
	})
	logging.Record("played %d message(s) from %s", published, bag.Path())
	return published, err
}
