package boardsync

import (
	"sort"
	"sync"

	"crm-platform/internal/pipeline"
)

// Board is a local copy of one pipeline kept current by change events.
type Board struct {
	mu         sync.RWMutex
	pipelineID string
	cards      []pipeline.Card
	columns    []pipeline.Column

	onMove func(card pipeline.Card, fromColumnID string)
}

func NewBoard(pipelineID string, cards []pipeline.Card, columns []pipeline.Column) *Board {
	b := &Board{pipelineID: pipelineID}
	b.Reset(cards, columns)
	return b
}

// OnMove registers a callback for cards that changed column.
func (b *Board) OnMove(fn func(card pipeline.Card, fromColumnID string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onMove = fn
}

// Reset replaces the state after a (re)fetch.
func (b *Board) Reset(cards []pipeline.Card, columns []pipeline.Column) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cards = append([]pipeline.Card(nil), cards...)
	b.columns = append([]pipeline.Column(nil), columns...)
}

func (b *Board) PipelineID() string { return b.pipelineID }

func (b *Board) Cards() []pipeline.Card {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]pipeline.Card(nil), b.cards...)
}

// Columns returns columns by order_position.
func (b *Board) Columns() []pipeline.Column {
	b.mu.RLock()
	out := append([]pipeline.Column(nil), b.columns...)
	b.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrderPosition < out[j].OrderPosition })
	return out
}

func (b *Board) Card(id string) (pipeline.Card, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, c := range b.cards {
		if c.ID == id {
			return c, true
		}
	}
	return pipeline.Card{}, false
}

// CardsIn returns the cards currently in a column.
func (b *Board) CardsIn(columnID string) []pipeline.Card {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []pipeline.Card
	for _, c := range b.cards {
		if c.ColumnID == columnID {
			out = append(out, c)
		}
	}
	return out
}

// Handlers applies events to the board: insert appends, update replaces by
// id, delete removes by id.
func (b *Board) Handlers() Handlers {
	return Handlers{
		OnCardInsert: func(c pipeline.Card) {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.cards = upsert(b.cards, c, func(x pipeline.Card) string { return x.ID })
		},
		OnCardUpdate: func(c pipeline.Card, change CardChange) {
			b.mu.Lock()
			b.cards = upsert(b.cards, c, func(x pipeline.Card) string { return x.ID })
			onMove := b.onMove
			b.mu.Unlock()
			if change.ColumnChanged && onMove != nil {
				onMove(c, change.Previous.ColumnID)
			}
		},
		OnCardDelete: func(c pipeline.Card) {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.cards = remove(b.cards, c.ID, func(x pipeline.Card) string { return x.ID })
		},
		OnColumnInsert: func(col pipeline.Column) {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.columns = upsert(b.columns, col, func(x pipeline.Column) string { return x.ID })
		},
		OnColumnUpdate: func(col pipeline.Column) {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.columns = upsert(b.columns, col, func(x pipeline.Column) string { return x.ID })
		},
		OnColumnDelete: func(col pipeline.Column) {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.columns = remove(b.columns, col.ID, func(x pipeline.Column) string { return x.ID })
		},
	}
}

// upsert replaces in place or appends, so a duplicate INSERT stays harmless.
func upsert[T any](items []T, v T, id func(T) string) []T {
	key := id(v)
	for i := range items {
		if id(items[i]) == key {
			items[i] = v
			return items
		}
	}
	return append(items, v)
}

func remove[T any](items []T, key string, id func(T) string) []T {
	out := items[:0]
	for _, it := range items {
		if id(it) != key {
			out = append(out, it)
		}
	}
	return out
}
