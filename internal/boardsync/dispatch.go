package boardsync

import (
	"encoding/json"
	"errors"
	"fmt"

	"crm-platform/internal/pipeline"
	"crm-platform/internal/realtime"
)

var ErrUnknownEvent = errors.New("boardsync: unknown event")

// CardChange describes an UPDATE. Previous is nil when the old row was not
// delivered, in which case ColumnChanged is always false.
type CardChange struct {
	Previous      *pipeline.Card
	ColumnChanged bool
}

// Handlers receive typed pipeline changes. Nil handlers are skipped.
type Handlers struct {
	OnCardInsert func(card pipeline.Card)
	OnCardUpdate func(card pipeline.Card, change CardChange)
	OnCardDelete func(card pipeline.Card)

	OnColumnInsert func(col pipeline.Column)
	OnColumnUpdate func(col pipeline.Column)
	OnColumnDelete func(col pipeline.Column)

	// OnResync fires when the stream ends without unsubscribe (the subscriber
	// fell behind). Local state must be re-fetched; there is no replay.
	// It runs on the delivery goroutine, so it must not unsubscribe inline.
	OnResync func()
}

// Dispatch routes one change event to the matching handler.
func Dispatch(ev realtime.ChangeEvent, h Handlers) error {
	switch ev.Table {
	case realtime.TableCards:
		return dispatchCard(ev, h)
	case realtime.TableColumns:
		return dispatchColumn(ev, h)
	default:
		return fmt.Errorf("%w: table %q", ErrUnknownEvent, ev.Table)
	}
}

func dispatchCard(ev realtime.ChangeEvent, h Handlers) error {
	switch ev.Type {
	case realtime.EventInsert:
		var c pipeline.Card
		if err := json.Unmarshal(ev.New, &c); err != nil {
			return fmt.Errorf("decode card: %w", err)
		}
		if h.OnCardInsert != nil {
			h.OnCardInsert(c)
		}
	case realtime.EventUpdate:
		var c pipeline.Card
		if err := json.Unmarshal(ev.New, &c); err != nil {
			return fmt.Errorf("decode card: %w", err)
		}
		var change CardChange
		if len(ev.Old) > 0 {
			var prev pipeline.Card
			if err := json.Unmarshal(ev.Old, &prev); err != nil {
				return fmt.Errorf("decode previous card: %w", err)
			}
			change.Previous = &prev
			change.ColumnChanged = prev.ColumnID != "" && prev.ColumnID != c.ColumnID
		}
		if h.OnCardUpdate != nil {
			h.OnCardUpdate(c, change)
		}
	case realtime.EventDelete:
		var c pipeline.Card
		if err := json.Unmarshal(ev.Old, &c); err != nil {
			return fmt.Errorf("decode card: %w", err)
		}
		if h.OnCardDelete != nil {
			h.OnCardDelete(c)
		}
	default:
		return fmt.Errorf("%w: type %q", ErrUnknownEvent, ev.Type)
	}
	return nil
}

func dispatchColumn(ev realtime.ChangeEvent, h Handlers) error {
	raw := ev.New
	if ev.Type == realtime.EventDelete {
		raw = ev.Old
	}
	var col pipeline.Column
	if err := json.Unmarshal(raw, &col); err != nil {
		return fmt.Errorf("decode column: %w", err)
	}
	var fn func(pipeline.Column)
	switch ev.Type {
	case realtime.EventInsert:
		fn = h.OnColumnInsert
	case realtime.EventUpdate:
		fn = h.OnColumnUpdate
	case realtime.EventDelete:
		fn = h.OnColumnDelete
	default:
		return fmt.Errorf("%w: type %q", ErrUnknownEvent, ev.Type)
	}
	if fn != nil {
		fn(col)
	}
	return nil
}
