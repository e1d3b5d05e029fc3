package realtime

import (
	"context"
	"sync"
	"time"

	"crm-platform/internal/metrics"
)

const defaultBuffer = 256

// Broker is the in-process change channel.
//
// Ordering: Publish enqueues to every subscriber of a topic under one lock, so
// all subscribers observe the same per-topic order. Publish never blocks: a
// subscriber whose buffer is full is evicted and must resubscribe and re-fetch.
type Broker struct {
	mu     sync.Mutex
	topics map[string]map[*subscriber]struct{}
	seq    map[string]uint64
	buffer int
	clock  func() time.Time
}

type subscriber struct {
	ch     chan ChangeEvent
	closed bool
}

func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Broker{
		topics: map[string]map[*subscriber]struct{}{},
		seq:    map[string]uint64{},
		buffer: buffer,
		clock:  time.Now,
	}
}

func (b *Broker) Publish(ctx context.Context, ev ChangeEvent) error {
	if err := ev.validate(); err != nil {
		return err
	}

	b.mu.Lock()
	b.seq[ev.Topic]++
	ev.Seq = b.seq[ev.Topic]
	if ev.At.IsZero() {
		ev.At = b.clock().UTC()
	}
	for s := range b.topics[ev.Topic] {
		select {
		case s.ch <- ev:
		default:
			b.removeLocked(ev.Topic, s)
			metrics.RealtimeEvicted.Inc()
		}
	}
	b.mu.Unlock()

	metrics.RealtimePublished.WithLabelValues(ev.Table, string(ev.Type)).Inc()
	return nil
}

func (b *Broker) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	if topic == "" {
		return nil, ErrInvalidEvent
	}
	s := &subscriber{ch: make(chan ChangeEvent, b.buffer)}

	b.mu.Lock()
	subs, ok := b.topics[topic]
	if !ok {
		subs = map[*subscriber]struct{}{}
		b.topics[topic] = subs
	}
	subs[s] = struct{}{}
	b.mu.Unlock()

	sub := newSubscription(topic, s.ch, func() {
		b.mu.Lock()
		b.removeLocked(topic, s)
		b.mu.Unlock()
	})
	sub.attach(ctx)
	return sub, nil
}

// Subscribers returns the live subscriber count of a topic.
func (b *Broker) Subscribers(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[topic])
}

func (b *Broker) removeLocked(topic string, s *subscriber) {
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
	if subs, ok := b.topics[topic]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(b.topics, topic)
		}
	}
}
