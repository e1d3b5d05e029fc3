package conversations

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-platform/internal/history"
)

const ws = "ws-1"

func ptr(s string) *string { return &s }

type fixture struct {
	repo *MemoryRepo
	hist *history.MemoryRepo
	svc  *Service
	now  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)
	repo := NewMemoryRepo()
	repo.PutQueue(Queue{ID: "q-agent", WorkspaceID: ws, Name: "Vendas", AIAgentID: ptr("A1")})
	repo.PutQueue(Queue{ID: "q-plain", WorkspaceID: ws, Name: "Suporte"})
	repo.PutConversation(Conversation{ID: "c1", WorkspaceID: ws, ContactID: "ct1", ConnectionID: "cn1", Status: StatusOpen})

	hist := history.NewMemoryRepo()
	rec := history.NewRecorder(hist).WithClock(func() time.Time { return now })
	svc := NewService(repo, rec).WithClock(func() time.Time { return now })
	return &fixture{repo: repo, hist: hist, svc: svc, now: now}
}

func TestPatchAssignment_EmptyPatchWritesNoHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	got, err := f.svc.PatchAssignment(ctx, ws, "c1", AssignmentPatch{}, PatchOptions{})
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ID)
	assert.Empty(t, f.hist.Assignments())
}

func TestPatchAssignment_SameValuesWriteNoHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.repo.PutConversation(Conversation{ID: "c1", WorkspaceID: ws, ContactID: "ct1", ConnectionID: "cn1",
		Status: StatusOpen, QueueID: ptr("q-plain"), AssignedUserID: ptr("U1")})

	_, err := f.svc.PatchAssignment(ctx, ws, "c1", AssignmentPatch{
		QueueID:        Value("q-plain"),
		AssignedUserID: Value("U1"),
	}, PatchOptions{ChangedBy: "admin"})
	require.NoError(t, err)
	assert.Empty(t, f.hist.Assignments())
}

func TestPatchAssignment_AssignThenTransfer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.svc.PatchAssignment(ctx, ws, "c1", AssignmentPatch{AssignedUserID: Value("U1")}, PatchOptions{ChangedBy: "admin"})
	require.NoError(t, err)
	require.NotNil(t, c.AssignedUserID)
	assert.Equal(t, "U1", *c.AssignedUserID)
	require.NotNil(t, c.AssignedAt)
	assert.Equal(t, f.now, *c.AssignedAt)

	_, err = f.svc.PatchAssignment(ctx, ws, "c1", AssignmentPatch{AssignedUserID: Value("U2")}, PatchOptions{ChangedBy: "admin"})
	require.NoError(t, err)

	rows := f.hist.Assignments()
	require.Len(t, rows, 2)
	assert.Equal(t, history.ActionAssign, rows[0].Action)
	assert.Nil(t, rows[0].FromUserID)
	assert.Equal(t, "U1", *rows[0].ToUserID)
	assert.Equal(t, "admin", rows[0].ChangedBy)

	assert.Equal(t, history.ActionTransfer, rows[1].Action)
	assert.Equal(t, "U1", *rows[1].FromUserID)
	assert.Equal(t, "U2", *rows[1].ToUserID)
}

func TestPatchAssignment_NullClearsUserAndLeavesQueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.repo.PutConversation(Conversation{ID: "c1", WorkspaceID: ws, ContactID: "ct1", ConnectionID: "cn1",
		Status: StatusOpen, QueueID: ptr("q-plain"), AssignedUserID: ptr("U1")})

	c, err := f.svc.PatchAssignment(ctx, ws, "c1", AssignmentPatch{AssignedUserID: Null()}, PatchOptions{})
	require.NoError(t, err)
	assert.Nil(t, c.AssignedUserID)
	require.NotNil(t, c.QueueID)
	assert.Equal(t, "q-plain", *c.QueueID)

	rows := f.hist.Assignments()
	require.Len(t, rows, 1)
	assert.Equal(t, history.ActionTransfer, rows[0].Action)
	assert.Nil(t, rows[0].ToUserID)
}

func TestPatchAssignment_QueueAgentCascade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.svc.PatchAssignment(ctx, ws, "c1", AssignmentPatch{QueueID: Value("q-agent")}, PatchOptions{})
	require.NoError(t, err)
	require.NotNil(t, c.AgentActiveID)
	assert.Equal(t, "A1", *c.AgentActiveID)
	assert.True(t, c.AgentActive)

	c, err = f.svc.PatchAssignment(ctx, ws, "c1", AssignmentPatch{QueueID: Value("q-plain")}, PatchOptions{})
	require.NoError(t, err)
	assert.Nil(t, c.AgentActiveID)
	assert.False(t, c.AgentActive)

	rows := f.hist.Assignments()
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.Equal(t, history.ActionQueueTransfer, r.Action)
	}
	assert.Nil(t, rows[0].FromQueueID)
	assert.Equal(t, "q-agent", *rows[1].FromQueueID)

	agents := f.hist.Agents()
	require.Len(t, agents, 2)
	assert.Equal(t, history.AgentActivated, agents[0].Action)
	assert.Equal(t, "A1", *agents[0].AgentID)
	assert.Equal(t, history.AgentDeactivated, agents[1].Action)
	assert.Equal(t, "A1", *agents[1].AgentID)
}

func TestPatchAssignment_ClearingQueueDeactivatesAgent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.repo.PutConversation(Conversation{ID: "c1", WorkspaceID: ws, ContactID: "ct1", ConnectionID: "cn1",
		Status: StatusOpen, QueueID: ptr("q-agent"), AgentActiveID: ptr("A1"), AgentActive: true})

	c, err := f.svc.PatchAssignment(ctx, ws, "c1", AssignmentPatch{QueueID: Null()}, PatchOptions{})
	require.NoError(t, err)
	assert.Nil(t, c.QueueID)
	assert.Nil(t, c.AgentActiveID)
	assert.False(t, c.AgentActive)
}

func TestPatchAssignment_ForceHistoryOnNoChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.repo.PutConversation(Conversation{ID: "c1", WorkspaceID: ws, ContactID: "ct1", ConnectionID: "cn1",
		Status: StatusOpen, AssignedUserID: ptr("U1")})

	_, err := f.svc.PatchAssignment(ctx, ws, "c1", AssignmentPatch{AssignedUserID: Value("U1")}, PatchOptions{ForceHistory: true})
	require.NoError(t, err)
	rows := f.hist.Assignments()
	require.Len(t, rows, 1)
	assert.Equal(t, history.ActionTransfer, rows[0].Action)
}

func TestPatchAssignment_HistoryFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.hist.FailAssignment = func(e history.Entry) error {
		if e.Action == history.ActionAssign {
			return errors.New("insert failed")
		}
		return nil
	}

	c, err := f.svc.PatchAssignment(ctx, ws, "c1", AssignmentPatch{
		QueueID:        Value("q-plain"),
		AssignedUserID: Value("U1"),
	}, PatchOptions{})
	require.NoError(t, err)
	assert.Equal(t, "U1", *c.AssignedUserID)
	assert.Equal(t, "q-plain", *c.QueueID)

	stored, err := f.repo.Get(ctx, ws, "c1")
	require.NoError(t, err)
	assert.Equal(t, "U1", *stored.AssignedUserID)

	rows := f.hist.Assignments()
	require.Len(t, rows, 1)
	assert.Equal(t, history.ActionQueueTransfer, rows[0].Action)
}

func TestPatchAssignment_LastWriterWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.PatchAssignment(ctx, ws, "c1", AssignmentPatch{AssignedUserID: Value("U1")}, PatchOptions{ChangedBy: "a"})
	require.NoError(t, err)
	_, err = f.svc.PatchAssignment(ctx, ws, "c1", AssignmentPatch{AssignedUserID: Value("U2")}, PatchOptions{ChangedBy: "b"})
	require.NoError(t, err)

	c, err := f.repo.Get(ctx, ws, "c1")
	require.NoError(t, err)
	assert.Equal(t, "U2", *c.AssignedUserID)
}

func TestPatchAssignment_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.PatchAssignment(ctx, ws, "missing", AssignmentPatch{AssignedUserID: Value("U1")}, PatchOptions{})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.PatchAssignment(ctx, "other-ws", "c1", AssignmentPatch{}, PatchOptions{})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.PatchAssignment(ctx, ws, "c1", AssignmentPatch{QueueID: Value("nope")}, PatchOptions{})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.PatchAssignment(ctx, "", "c1", AssignmentPatch{}, PatchOptions{})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Empty(t, f.hist.Assignments())
}

func TestAssignmentPatch_JSONDistinguishesAbsentAndNull(t *testing.T) {
	var p AssignmentPatch
	require.NoError(t, json.Unmarshal([]byte(`{"assigned_user_id": null}`), &p))
	assert.False(t, p.QueueID.Set)
	assert.True(t, p.AssignedUserID.Set)
	assert.Nil(t, p.AssignedUserID.Value)

	p = AssignmentPatch{}
	require.NoError(t, json.Unmarshal([]byte(`{"queue_id": "q1"}`), &p))
	assert.True(t, p.QueueID.Set)
	assert.Equal(t, "q1", *p.QueueID.Value)
	assert.False(t, p.AssignedUserID.Set)

	p = AssignmentPatch{}
	require.NoError(t, json.Unmarshal([]byte(`{}`), &p))
	assert.True(t, p.IsEmpty())

	assert.Error(t, json.Unmarshal([]byte(`{"queue_id": 12}`), &p))
}

func TestFindOrCreateOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	existing, created, err := f.svc.FindOrCreateOpen(ctx, ws, "ct1", "cn1", nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "c1", existing.ID)

	c, created, err := f.svc.FindOrCreateOpen(ctx, ws, "ct2", "cn1", ptr("q-agent"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, StatusOpen, c.Status)
	assert.Equal(t, "q-agent", *c.QueueID)
	assert.True(t, c.AgentActive)
	assert.Equal(t, "A1", *c.AgentActiveID)

	again, created, err := f.svc.FindOrCreateOpen(ctx, ws, "ct2", "cn1", ptr("q-agent"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, c.ID, again.ID)
}
