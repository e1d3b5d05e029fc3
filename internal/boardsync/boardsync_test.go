package boardsync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-platform/internal/contacts"
	"crm-platform/internal/conversations"
	"crm-platform/internal/pipeline"
	"crm-platform/internal/realtime"
)

func cardEvent(t *testing.T, typ realtime.EventType, newRow, oldRow *pipeline.Card) realtime.ChangeEvent {
	t.Helper()
	var n, o any
	if newRow != nil {
		n = *newRow
	}
	if oldRow != nil {
		o = *oldRow
	}
	ev, err := realtime.NewChangeEvent(typ, realtime.TableCards, realtime.PipelineTopic("p1"), n, o)
	require.NoError(t, err)
	return ev
}

func TestDispatch_ColumnMoveDetection(t *testing.T) {
	before := pipeline.Card{ID: "c1", PipelineID: "p1", ColumnID: "col-a", Title: "Deal"}

	var got []CardChange
	h := Handlers{OnCardUpdate: func(_ pipeline.Card, ch CardChange) { got = append(got, ch) }}

	moved := before
	moved.ColumnID = "col-b"
	require.NoError(t, Dispatch(cardEvent(t, realtime.EventUpdate, &moved, &before), h))

	retitled := before
	retitled.Title = "Deal v2"
	require.NoError(t, Dispatch(cardEvent(t, realtime.EventUpdate, &retitled, &before), h))

	require.NoError(t, Dispatch(cardEvent(t, realtime.EventUpdate, &moved, nil), h))

	require.Len(t, got, 3)
	assert.True(t, got[0].ColumnChanged)
	assert.Equal(t, "col-a", got[0].Previous.ColumnID)
	assert.False(t, got[1].ColumnChanged)
	require.NotNil(t, got[1].Previous)
	assert.False(t, got[2].ColumnChanged)
	assert.Nil(t, got[2].Previous)
}

func TestDispatch_RoutesByTableAndType(t *testing.T) {
	var calls []string
	h := Handlers{
		OnCardInsert:   func(c pipeline.Card) { calls = append(calls, "card+"+c.ID) },
		OnCardDelete:   func(c pipeline.Card) { calls = append(calls, "card-"+c.ID) },
		OnColumnInsert: func(c pipeline.Column) { calls = append(calls, "col+"+c.ID) },
		OnColumnUpdate: func(c pipeline.Column) { calls = append(calls, "col~"+c.ID) },
		OnColumnDelete: func(c pipeline.Column) { calls = append(calls, "col-"+c.ID) },
	}
	card := pipeline.Card{ID: "c1"}
	require.NoError(t, Dispatch(cardEvent(t, realtime.EventInsert, &card, nil), h))
	require.NoError(t, Dispatch(cardEvent(t, realtime.EventDelete, nil, &card), h))

	col := pipeline.Column{ID: "k1", PipelineID: "p1"}
	for _, typ := range []realtime.EventType{realtime.EventInsert, realtime.EventUpdate} {
		ev, err := realtime.NewChangeEvent(typ, realtime.TableColumns, realtime.PipelineTopic("p1"), col, nil)
		require.NoError(t, err)
		require.NoError(t, Dispatch(ev, h))
	}
	ev, err := realtime.NewChangeEvent(realtime.EventDelete, realtime.TableColumns, realtime.PipelineTopic("p1"), nil, col)
	require.NoError(t, err)
	require.NoError(t, Dispatch(ev, h))

	assert.Equal(t, []string{"card+c1", "card-c1", "col+k1", "col~k1", "col-k1"}, calls)

	err = Dispatch(realtime.ChangeEvent{Table: "messages", Type: realtime.EventInsert}, h)
	assert.ErrorIs(t, err, ErrUnknownEvent)
	// Nil handlers are fine.
	require.NoError(t, Dispatch(cardEvent(t, realtime.EventInsert, &card, nil), Handlers{}))
}

func TestBoard_AppliesEvents(t *testing.T) {
	b := NewBoard("p1", []pipeline.Card{{ID: "c1", ColumnID: "a"}}, []pipeline.Column{
		{ID: "b", OrderPosition: 2}, {ID: "a", OrderPosition: 1},
	})
	var moves []string
	b.OnMove(func(c pipeline.Card, from string) { moves = append(moves, c.ID+":"+from+"->"+c.ColumnID) })
	h := b.Handlers()

	h.OnCardInsert(pipeline.Card{ID: "c2", ColumnID: "a"})
	h.OnCardInsert(pipeline.Card{ID: "c2", ColumnID: "a"})
	require.Len(t, b.Cards(), 2)

	prev := pipeline.Card{ID: "c1", ColumnID: "a"}
	h.OnCardUpdate(pipeline.Card{ID: "c1", ColumnID: "b"}, CardChange{Previous: &prev, ColumnChanged: true})
	h.OnCardUpdate(pipeline.Card{ID: "c2", ColumnID: "a", Title: "x"}, CardChange{Previous: &prev})
	c1, ok := b.Card("c1")
	require.True(t, ok)
	assert.Equal(t, "b", c1.ColumnID)
	assert.Equal(t, []string{"c1:a->b"}, moves)
	assert.Len(t, b.CardsIn("a"), 1)

	h.OnCardDelete(pipeline.Card{ID: "c1"})
	_, ok = b.Card("c1")
	assert.False(t, ok)

	h.OnColumnInsert(pipeline.Column{ID: "c", OrderPosition: 0})
	h.OnColumnDelete(pipeline.Column{ID: "b"})
	cols := b.Columns()
	require.Len(t, cols, 2)
	assert.Equal(t, "c", cols[0].ID)
	assert.Equal(t, "a", cols[1].ID)
}

func TestSubscribeToPipeline_EndToEndWithResolver(t *testing.T) {
	broker := realtime.NewBroker(16)
	ws := "ws-1"

	repo := pipeline.NewMemoryRepo()
	repo.PutPipeline(pipeline.Pipeline{ID: "p1", WorkspaceID: ws, Active: true})
	repo.PutColumn(pipeline.Column{ID: "a", PipelineID: "p1", OrderPosition: 1})
	repo.PutColumn(pipeline.Column{ID: "b", PipelineID: "p1", OrderPosition: 2})
	cts := contacts.NewMemoryRepo(contacts.Contact{ID: "ct1", WorkspaceID: ws, Phone: "5511"})
	res := pipeline.NewCardResolver(repo, cts, conversations.NewMemoryRepo(), pipeline.WithPublisher(broker))

	board := NewBoard("p1", nil, nil)
	moved := make(chan string, 1)
	board.OnMove(func(c pipeline.Card, from string) { moved <- from + "->" + c.ColumnID })

	unsubscribe, err := SubscribeToPipeline(context.Background(), broker, "p1", board.Handlers())
	require.NoError(t, err)
	defer unsubscribe()

	ctx := context.Background()
	created, err := res.ResolveOrCreateCard(ctx, pipeline.ResolveRequest{WorkspaceID: ws, ContactID: "ct1"})
	require.NoError(t, err)
	_, err = res.MoveCard(ctx, ws, created.Card.ID, "b")
	require.NoError(t, err)

	select {
	case m := <-moved:
		assert.Equal(t, "a->b", m)
	case <-time.After(time.Second):
		t.Fatal("move not observed")
	}
	c, ok := board.Card(created.Card.ID)
	require.True(t, ok)
	assert.Equal(t, "b", c.ColumnID)
}

func TestSubscribeToPipeline_UnsubscribeStopsDelivery(t *testing.T) {
	broker := realtime.NewBroker(16)
	var (
		mu    sync.Mutex
		count int
	)
	h := Handlers{OnCardInsert: func(pipeline.Card) {
		mu.Lock()
		count++
		mu.Unlock()
	}}
	counted := func() int {
		mu.Lock()
		defer mu.Unlock()
		return count
	}
	unsubscribe, err := SubscribeToPipeline(context.Background(), broker, "p1", h)
	require.NoError(t, err)

	card := pipeline.Card{ID: "c1"}
	require.NoError(t, broker.Publish(context.Background(), cardEvent(t, realtime.EventInsert, &card, nil)))
	require.Eventually(t, func() bool { return counted() == 1 }, time.Second, 5*time.Millisecond)

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 0, broker.Subscribers(realtime.PipelineTopic("p1")))
	require.NoError(t, broker.Publish(context.Background(), cardEvent(t, realtime.EventInsert, &card, nil)))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, counted())

	_, err = SubscribeToPipeline(context.Background(), broker, "", h)
	assert.ErrorIs(t, err, ErrNoPipeline)
}

func TestSubscribeToPipeline_ResyncOnEviction(t *testing.T) {
	broker := realtime.NewBroker(1)
	release := make(chan struct{})
	resync := make(chan struct{})
	h := Handlers{
		OnCardInsert: func(pipeline.Card) { <-release },
		OnResync:     func() { close(resync) },
	}
	unsubscribe, err := SubscribeToPipeline(context.Background(), broker, "p1", h)
	require.NoError(t, err)
	defer unsubscribe()

	card := pipeline.Card{ID: "c1"}
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		require.NoError(t, broker.Publish(ctx, cardEvent(t, realtime.EventInsert, &card, nil)))
	}
	close(release)

	select {
	case <-resync:
	case <-time.After(time.Second):
		t.Fatal("resync not signalled")
	}
}

func TestFollower_ResubscribesOnPipelineChange(t *testing.T) {
	broker := realtime.NewBroker(16)
	var (
		mu   sync.Mutex
		seen []string
	)
	f := NewFollower(broker, func(pipelineID string) Handlers {
		return Handlers{OnCardInsert: func(c pipeline.Card) {
			mu.Lock()
			seen = append(seen, pipelineID+"/"+c.ID)
			mu.Unlock()
		}}
	})
	ctx := context.Background()

	require.NoError(t, f.Follow(ctx, "p1"))
	require.NoError(t, f.Follow(ctx, "p1"))
	assert.Equal(t, 1, broker.Subscribers(realtime.PipelineTopic("p1")))

	require.NoError(t, f.Follow(ctx, "p2"))
	assert.Equal(t, "p2", f.Current())
	assert.Equal(t, 0, broker.Subscribers(realtime.PipelineTopic("p1")))
	assert.Equal(t, 1, broker.Subscribers(realtime.PipelineTopic("p2")))

	for _, p := range []string{"p1", "p2"} {
		ev, err := realtime.NewChangeEvent(realtime.EventInsert, realtime.TableCards, realtime.PipelineTopic(p), pipeline.Card{ID: "x"}, nil)
		require.NoError(t, err)
		require.NoError(t, broker.Publish(ctx, ev))
	}
	snapshot := func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), seen...)
	}
	require.Eventually(t, func() bool { return len(snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"p2/x"}, snapshot())

	f.Stop()
	assert.Equal(t, "", f.Current())
	assert.Equal(t, 0, broker.Subscribers(realtime.PipelineTopic("p2")))
}
