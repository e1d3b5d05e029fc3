package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"crm-platform/internal/metrics"
)

// Envelope on the wire: "<seq>|<event json>".
var publishScript = redis.NewScript(`
-- KEYS[1] = per-topic sequence key
-- ARGV[1] = channel
-- ARGV[2] = event json (seq not set)
--
-- Sequence assignment and publish are one step, so the order subscribers
-- see matches seq order across every publishing process.
local seq = redis.call('INCR', KEYS[1])
redis.call('PUBLISH', ARGV[1], seq .. '|' .. ARGV[2])
return seq
`)

// RedisBroker fans change events out across API processes via Redis pub/sub.
// Delivery to a slow local subscriber is dropped the same way Broker drops it.
type RedisBroker struct {
	rdb    *redis.Client
	prefix string
	buffer int
	log    *slog.Logger
	clock  func() time.Time
}

func NewRedisBroker(rdb *redis.Client, prefix string, buffer int, log *slog.Logger) *RedisBroker {
	if prefix == "" {
		prefix = "crm:rt:"
	}
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if log == nil {
		log = slog.Default()
	}
	return &RedisBroker{rdb: rdb, prefix: prefix, buffer: buffer, log: log, clock: time.Now}
}

func (b *RedisBroker) channel(topic string) string { return b.prefix + "ch:" + topic }
func (b *RedisBroker) seqKey(topic string) string  { return b.prefix + "seq:" + topic }

func (b *RedisBroker) Publish(ctx context.Context, ev ChangeEvent) error {
	if b.rdb == nil {
		return errors.New("realtime: redis client is nil")
	}
	if err := ev.validate(); err != nil {
		return err
	}
	if ev.At.IsZero() {
		ev.At = b.clock().UTC()
	}
	ev.Seq = 0
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("realtime: marshal event: %w", err)
	}
	if err := publishScript.Run(ctx, b.rdb, []string{b.seqKey(ev.Topic)}, b.channel(ev.Topic), string(payload)).Err(); err != nil {
		return fmt.Errorf("realtime: publish: %w", err)
	}
	metrics.RealtimePublished.WithLabelValues(ev.Table, string(ev.Type)).Inc()
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	if b.rdb == nil {
		return nil, errors.New("realtime: redis client is nil")
	}
	if topic == "" {
		return nil, ErrInvalidEvent
	}

	ps := b.rdb.Subscribe(ctx, b.channel(topic))
	// Wait for the subscribe confirmation so no event published after return is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("realtime: subscribe: %w", err)
	}

	out := make(chan ChangeEvent, b.buffer)
	done := make(chan struct{})
	var closeOnce sync.Once
	stopAll := func() {
		closeOnce.Do(func() {
			close(done)
			_ = ps.Close()
		})
	}

	go func() {
		defer close(out)
		msgs := ps.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				ev, err := decodeEnvelope(msg.Payload)
				if err != nil {
					b.log.Warn("realtime: bad envelope", "topic", topic, "err", err)
					continue
				}
				select {
				case out <- ev:
				default:
					metrics.RealtimeEvicted.Inc()
					b.log.Warn("realtime: subscriber evicted", "topic", topic, "seq", ev.Seq)
					go stopAll()
					return
				}
			}
		}
	}()

	sub := newSubscription(topic, out, stopAll)
	sub.attach(ctx)
	return sub, nil
}

func decodeEnvelope(payload string) (ChangeEvent, error) {
	seqStr, body, ok := strings.Cut(payload, "|")
	if !ok {
		return ChangeEvent{}, errors.New("missing sequence separator")
	}
	seq, err := strconv.ParseUint(seqStr, 10, 64)
	if err != nil {
		return ChangeEvent{}, fmt.Errorf("bad sequence: %w", err)
	}
	var ev ChangeEvent
	if err := json.Unmarshal([]byte(body), &ev); err != nil {
		return ChangeEvent{}, err
	}
	ev.Seq = seq
	return ev, nil
}
