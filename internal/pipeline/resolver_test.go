package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-platform/internal/contacts"
	"crm-platform/internal/conversations"
	"crm-platform/internal/realtime"
)

const ws = "ws-1"

func ptr(s string) *string { return &s }

type recordingPublisher struct {
	mu     sync.Mutex
	events []realtime.ChangeEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, ev realtime.ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Events() []realtime.ChangeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]realtime.ChangeEvent(nil), p.events...)
}

type fixture struct {
	repo  *MemoryRepo
	convs *conversations.MemoryRepo
	pub   *recordingPublisher
	res   *CardResolver
	now   time.Time
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	now := time.Date(2026, 3, 4, 13, 30, 0, 0, time.UTC)
	t0 := now.Add(-48 * time.Hour)

	repo := NewMemoryRepo()
	repo.PutPipeline(Pipeline{ID: "p-old", WorkspaceID: ws, Name: "Vendas", Active: true, CreatedAt: t0})
	repo.PutPipeline(Pipeline{ID: "p-new", WorkspaceID: ws, Name: "Pós-venda", Active: true, CreatedAt: t0.Add(time.Hour)})
	repo.PutPipeline(Pipeline{ID: "p-empty", WorkspaceID: ws, Name: "Sem colunas", Active: true, CreatedAt: t0.Add(2 * time.Hour)})
	repo.PutColumn(Column{ID: "col-2", PipelineID: "p-old", Name: "Negociação", OrderPosition: 2})
	repo.PutColumn(Column{ID: "col-1", PipelineID: "p-old", Name: "Novo", OrderPosition: 1})
	repo.PutColumn(Column{ID: "col-n1", PipelineID: "p-new", Name: "Entrada", OrderPosition: 0})

	cts := contacts.NewMemoryRepo(
		contacts.Contact{ID: "ct1", WorkspaceID: ws, Name: "Maria", Phone: "5511999990000"},
		contacts.Contact{ID: "ct-email", WorkspaceID: ws, Email: "joao@example.com"},
		contacts.Contact{ID: "ct-none", WorkspaceID: ws, Name: "Sem contato"},
	)
	convs := conversations.NewMemoryRepo()
	convs.PutConversation(conversations.Conversation{ID: "conv1", WorkspaceID: ws, ContactID: "ct1", ConnectionID: "cn1",
		Status: conversations.StatusOpen, AssignedUserID: ptr("U1")})
	convs.PutConversation(conversations.Conversation{ID: "conv-unassigned", WorkspaceID: ws, ContactID: "ct1", ConnectionID: "cn1",
		Status: conversations.StatusOpen})

	pub := &recordingPublisher{}
	base := []Option{WithPublisher(pub), WithClock(func() time.Time { return now })}
	res := NewCardResolver(repo, cts, convs, append(base, opts...)...)
	return &fixture{repo: repo, convs: convs, pub: pub, res: res, now: now}
}

func TestResolve_CreatesInFirstColumnOfEarliestPipeline(t *testing.T) {
	f := newFixture(t)
	got, err := f.res.ResolveOrCreateCard(context.Background(), ResolveRequest{
		WorkspaceID: ws, ContactID: "ct1", ConversationID: ptr("conv1"),
	})
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, got.Action)

	c := got.Card
	assert.Equal(t, "p-old", c.PipelineID)
	assert.Equal(t, "col-1", c.ColumnID)
	assert.Equal(t, StatusOpen, c.Status)
	assert.True(t, c.Value.Equal(decimal.Zero))
	assert.Equal(t, "Maria", c.Title)
	assert.Empty(t, c.Tags)
	assert.NotNil(t, c.Tags)
	require.NotNil(t, c.ResponsibleUserID)
	assert.Equal(t, "U1", *c.ResponsibleUserID)
	require.NotNil(t, c.ConversationID)
	assert.Equal(t, "conv1", *c.ConversationID)

	evs := f.pub.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, realtime.EventInsert, evs[0].Type)
	assert.Equal(t, realtime.PipelineTopic("p-old"), evs[0].Topic)
	assert.Empty(t, evs[0].Old)
}

func TestResolve_SecondCallUpdatesSameCard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := ResolveRequest{WorkspaceID: ws, ContactID: "ct1", PipelineID: ptr("p-old")}

	first, err := f.res.ResolveOrCreateCard(ctx, req)
	require.NoError(t, err)
	require.Equal(t, ActionCreated, first.Action)

	req.ConversationID = ptr("conv1")
	second, err := f.res.ResolveOrCreateCard(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, ActionUpdated, second.Action)
	assert.Equal(t, first.Card.ID, second.Card.ID)
	assert.Equal(t, 1, f.repo.OpenCount("p-old", "ct1"))

	assert.Equal(t, "[04/03/2026 10:30] Nova interação - conversa conv1", second.Card.Description)
	assert.Equal(t, "U1", *second.Card.ResponsibleUserID)
	assert.Equal(t, "conv1", *second.Card.ConversationID)

	third, err := f.res.ResolveOrCreateCard(ctx, ResolveRequest{WorkspaceID: ws, ContactID: "ct1", PipelineID: ptr("p-old")})
	require.NoError(t, err)
	assert.Equal(t, ActionUpdated, third.Action)
	assert.Equal(t,
		"[04/03/2026 10:30] Nova interação - conversa conv1\n\n[04/03/2026 10:30] Nova interação",
		third.Card.Description)
	// No conversation given: responsible user and conversation stay.
	assert.Equal(t, "U1", *third.Card.ResponsibleUserID)
	assert.Equal(t, "conv1", *third.Card.ConversationID)

	evs := f.pub.Events()
	require.Len(t, evs, 3)
	assert.Equal(t, realtime.EventUpdate, evs[1].Type)
	var old Card
	require.NoError(t, json.Unmarshal(evs[1].Old, &old))
	assert.Empty(t, old.Description)
}

func TestResolve_UnassignedConversationKeepsResponsible(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.res.ResolveOrCreateCard(ctx, ResolveRequest{WorkspaceID: ws, ContactID: "ct1", ConversationID: ptr("conv1")})
	require.NoError(t, err)

	got, err := f.res.ResolveOrCreateCard(ctx, ResolveRequest{WorkspaceID: ws, ContactID: "ct1", ConversationID: ptr("conv-unassigned")})
	require.NoError(t, err)
	assert.Equal(t, "U1", *got.Card.ResponsibleUserID)
	assert.Equal(t, "conv-unassigned", *got.Card.ConversationID)
}

func TestResolve_OneOpenCardPerPipeline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.res.ResolveOrCreateCard(ctx, ResolveRequest{WorkspaceID: ws, ContactID: "ct1", PipelineID: ptr("p-old")})
	require.NoError(t, err)
	b, err := f.res.ResolveOrCreateCard(ctx, ResolveRequest{WorkspaceID: ws, ContactID: "ct1", PipelineID: ptr("p-new")})
	require.NoError(t, err)

	assert.Equal(t, ActionCreated, a.Action)
	assert.Equal(t, ActionCreated, b.Action)
	assert.NotEqual(t, a.Card.ID, b.Card.ID)
	assert.Equal(t, 1, f.repo.OpenCount("p-old", "ct1"))
	assert.Equal(t, 1, f.repo.OpenCount("p-new", "ct1"))
}

func TestResolve_ContactWithoutIdentifierRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.res.ResolveOrCreateCard(context.Background(), ResolveRequest{WorkspaceID: ws, ContactID: "ct-none"})
	assert.ErrorIs(t, err, ErrInvalidContact)
	assert.Equal(t, 0, f.repo.OpenCount("p-old", "ct-none"))
	assert.Empty(t, f.pub.Events())
}

func TestResolve_EmailOnlyContactUsesEmailTitle(t *testing.T) {
	f := newFixture(t)
	got, err := f.res.ResolveOrCreateCard(context.Background(), ResolveRequest{WorkspaceID: ws, ContactID: "ct-email"})
	require.NoError(t, err)
	assert.Equal(t, "joao@example.com", got.Card.Title)
}

func TestResolve_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.res.ResolveOrCreateCard(ctx, ResolveRequest{WorkspaceID: ws, ContactID: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.res.ResolveOrCreateCard(ctx, ResolveRequest{WorkspaceID: ws, ContactID: "ct1", ConversationID: ptr("nope")})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.res.ResolveOrCreateCard(ctx, ResolveRequest{WorkspaceID: ws, ContactID: "ct1", PipelineID: ptr("nope")})
	assert.ErrorIs(t, err, ErrNoPipeline)

	_, err = f.res.ResolveOrCreateCard(ctx, ResolveRequest{WorkspaceID: ws, ContactID: "ct1", PipelineID: ptr("p-empty")})
	assert.ErrorIs(t, err, ErrNoColumn)

	_, err = f.res.ResolveOrCreateCard(ctx, ResolveRequest{ContactID: "ct1"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestResolve_NoActivePipeline(t *testing.T) {
	repo := NewMemoryRepo()
	repo.PutPipeline(Pipeline{ID: "p", WorkspaceID: ws, Active: false})
	cts := contacts.NewMemoryRepo(contacts.Contact{ID: "ct1", WorkspaceID: ws, Phone: "1"})
	res := NewCardResolver(repo, cts, conversations.NewMemoryRepo())

	_, err := res.ResolveOrCreateCard(context.Background(), ResolveRequest{WorkspaceID: ws, ContactID: "ct1"})
	assert.ErrorIs(t, err, ErrNoPipeline)
}

func TestResolve_ConcurrentCallsCreateOneCard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		ids     = map[string]struct{}{}
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := f.res.ResolveOrCreateCard(ctx, ResolveRequest{WorkspaceID: ws, ContactID: "ct1", PipelineID: ptr("p-old")})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if got.Action == ActionCreated {
				created++
			}
			ids[got.Card.ID] = struct{}{}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Len(t, ids, 1)
	assert.Equal(t, 1, f.repo.OpenCount("p-old", "ct1"))
}

// missingOnceRepo hides the open card from the first lookup, as if another
// process inserted it between the read and the insert.
type missingOnceRepo struct {
	*MemoryRepo
	mu     sync.Mutex
	missed bool
}

func (r *missingOnceRepo) FindOpenCard(ctx context.Context, pipelineID, contactID string) (Card, error) {
	r.mu.Lock()
	miss := !r.missed
	r.missed = true
	r.mu.Unlock()
	if miss {
		return Card{}, ErrNotFound
	}
	return r.MemoryRepo.FindOpenCard(ctx, pipelineID, contactID)
}

func TestResolve_StoreConflictMergesIntoWinner(t *testing.T) {
	f := newFixture(t)
	f.repo.PutCard(Card{ID: "winner", WorkspaceID: ws, PipelineID: "p-old", ColumnID: "col-2", ContactID: "ct1",
		Status: StatusOpen, Title: "Maria", Description: "primeiro contato"})

	repo := &missingOnceRepo{MemoryRepo: f.repo}
	cts := contacts.NewMemoryRepo(contacts.Contact{ID: "ct1", WorkspaceID: ws, Phone: "1"})
	res := NewCardResolver(repo, cts, f.convs, WithClock(func() time.Time { return f.now }))

	got, err := res.ResolveOrCreateCard(context.Background(), ResolveRequest{WorkspaceID: ws, ContactID: "ct1", PipelineID: ptr("p-old")})
	require.NoError(t, err)
	assert.Equal(t, ActionUpdated, got.Action)
	assert.Equal(t, "winner", got.Card.ID)
	assert.Equal(t, "col-2", got.Card.ColumnID)
	assert.Equal(t, "primeiro contato\n\n[04/03/2026 10:30] Nova interação", got.Card.Description)
	assert.Equal(t, 1, f.repo.OpenCount("p-old", "ct1"))
}

func TestMoveCard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.res.ResolveOrCreateCard(ctx, ResolveRequest{WorkspaceID: ws, ContactID: "ct1", PipelineID: ptr("p-old")})
	require.NoError(t, err)

	moved, err := f.res.MoveCard(ctx, ws, created.Card.ID, "col-2")
	require.NoError(t, err)
	assert.Equal(t, "col-2", moved.ColumnID)

	evs := f.pub.Events()
	require.Len(t, evs, 2)
	var old Card
	require.NoError(t, json.Unmarshal(evs[1].Old, &old))
	assert.Equal(t, "col-1", old.ColumnID)

	same, err := f.res.MoveCard(ctx, ws, created.Card.ID, "col-2")
	require.NoError(t, err)
	assert.Equal(t, "col-2", same.ColumnID)
	assert.Len(t, f.pub.Events(), 2)

	_, err = f.res.MoveCard(ctx, ws, created.Card.ID, "col-n1")
	assert.ErrorIs(t, err, ErrNoColumn)

	_, err = f.res.MoveCard(ctx, ws, "missing", "col-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCloseCard_FreesSlotForNewCard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.res.ResolveOrCreateCard(ctx, ResolveRequest{WorkspaceID: ws, ContactID: "ct1", PipelineID: ptr("p-old")})
	require.NoError(t, err)

	closed, err := f.res.CloseCard(ctx, ws, first.Card.ID, StatusWon)
	require.NoError(t, err)
	assert.Equal(t, StatusWon, closed.Status)

	_, err = f.res.CloseCard(ctx, ws, first.Card.ID, StatusLost)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.res.CloseCard(ctx, ws, first.Card.ID, StatusOpen)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	next, err := f.res.ResolveOrCreateCard(ctx, ResolveRequest{WorkspaceID: ws, ContactID: "ct1", PipelineID: ptr("p-old")})
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, next.Action)
	assert.NotEqual(t, first.Card.ID, next.Card.ID)
}

func TestSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	t0 := f.now
	f.repo.PutCard(Card{ID: "a", WorkspaceID: ws, PipelineID: "p-old", ColumnID: "col-1", ContactID: "x1", Status: StatusOpen, Value: decimal.RequireFromString("100.50"), CreatedAt: t0})
	f.repo.PutCard(Card{ID: "b", WorkspaceID: ws, PipelineID: "p-old", ColumnID: "col-2", ContactID: "x2", Status: StatusOpen, Value: decimal.RequireFromString("20"), CreatedAt: t0})
	f.repo.PutCard(Card{ID: "c", WorkspaceID: ws, PipelineID: "p-old", ColumnID: "col-2", ContactID: "x3", Status: StatusWon, Value: decimal.RequireFromString("300"), CreatedAt: t0})
	f.repo.PutCard(Card{ID: "d", WorkspaceID: ws, PipelineID: "p-old", ColumnID: "col-1", ContactID: "x4", Status: StatusLost, Value: decimal.RequireFromString("5.25"), CreatedAt: t0})

	s, err := f.res.Summary(ctx, ws, "p-old")
	require.NoError(t, err)
	assert.Equal(t, 2, s.OpenCards)
	assert.Equal(t, "120.5", s.OpenValue.String())
	assert.Equal(t, 1, s.WonCards)
	assert.Equal(t, "300", s.WonValue.String())
	assert.Equal(t, 1, s.LostCards)
	assert.Equal(t, "5.25", s.LostValue.String())

	require.Len(t, s.Columns, 2)
	assert.Equal(t, "col-1", s.Columns[0].ColumnID)
	assert.Equal(t, 1, s.Columns[0].OpenCards)
	assert.Equal(t, "100.5", s.Columns[0].OpenValue.String())
	assert.Equal(t, 1, s.Columns[1].OpenCards)

	_, err = f.res.Summary(ctx, "other", "p-old")
	assert.ErrorIs(t, err, ErrNotFound)
}
