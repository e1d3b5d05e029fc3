package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// EventType mirrors the row-level change kinds.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

const (
	TableCards   = "pipeline_cards"
	TableColumns = "pipeline_columns"
)

// ChangeEvent is one row change on a topic. Old is set for UPDATE when the
// previous row is known, and for DELETE.
type ChangeEvent struct {
	Type  EventType       `json:"event_type"`
	Table string          `json:"table"`
	Topic string          `json:"topic"`
	New   json.RawMessage `json:"new_row,omitempty"`
	Old   json.RawMessage `json:"old_row,omitempty"`

	// Seq increases by one per event within a topic.
	Seq uint64    `json:"seq"`
	At  time.Time `json:"at"`
}

// PipelineTopic is the single ordered channel carrying a pipeline's cards and columns.
func PipelineTopic(pipelineID string) string {
	return "pipeline:" + pipelineID
}

var ErrInvalidEvent = errors.New("realtime: invalid event")

// NewChangeEvent marshals the rows of a change. nil rows are omitted.
func NewChangeEvent(typ EventType, table, topic string, newRow, oldRow any) (ChangeEvent, error) {
	ev := ChangeEvent{Type: typ, Table: table, Topic: topic}
	if newRow != nil {
		b, err := json.Marshal(newRow)
		if err != nil {
			return ChangeEvent{}, fmt.Errorf("realtime: marshal new row: %w", err)
		}
		ev.New = b
	}
	if oldRow != nil {
		b, err := json.Marshal(oldRow)
		if err != nil {
			return ChangeEvent{}, fmt.Errorf("realtime: marshal old row: %w", err)
		}
		ev.Old = b
	}
	return ev, ev.validate()
}

func (ev ChangeEvent) validate() error {
	if ev.Topic == "" || ev.Table == "" {
		return ErrInvalidEvent
	}
	switch ev.Type {
	case EventInsert, EventUpdate:
		if len(ev.New) == 0 {
			return ErrInvalidEvent
		}
	case EventDelete:
		if len(ev.Old) == 0 {
			return ErrInvalidEvent
		}
	default:
		return ErrInvalidEvent
	}
	return nil
}

type Publisher interface {
	Publish(ctx context.Context, ev ChangeEvent) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (*Subscription, error)
}

// Subscription delivers a topic's events in publish order on C.
// C is closed after Close, when the subscribe ctx ends, or when the
// subscriber is evicted for falling behind. There is no replay.
type Subscription struct {
	C     <-chan ChangeEvent
	Topic string

	once    sync.Once
	closeFn func()

	mu   sync.Mutex
	stop func() bool
}

func newSubscription(topic string, c <-chan ChangeEvent, closeFn func()) *Subscription {
	return &Subscription{C: c, Topic: topic, closeFn: closeFn}
}

// attach closes the subscription when ctx ends.
func (s *Subscription) attach(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stop = context.AfterFunc(ctx, s.Close)
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		stop := s.stop
		s.mu.Unlock()
		if stop != nil {
			stop()
		}
		s.closeFn()
	})
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ChangeEvent) error { return nil }
