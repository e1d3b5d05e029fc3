package distribution

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-platform/internal/cache"
	"crm-platform/internal/conversations"
	"crm-platform/internal/history"
)

const ws = "ws-1"

func ptr(s string) *string { return &s }

func setup(t *testing.T) (*conversations.MemoryRepo, *cache.UserDirectory) {
	t.Helper()
	repo := conversations.NewMemoryRepo()
	members := []conversations.QueueMember{{UserID: "u1"}, {UserID: "u2"}, {UserID: "u-off"}, {UserID: "u3"}}
	repo.PutQueue(conversations.Queue{ID: "q-rr", WorkspaceID: ws, DistributionType: conversations.DistributionSequential, Members: members})
	repo.PutQueue(conversations.Queue{ID: "q-rand", WorkspaceID: ws, DistributionType: conversations.DistributionRandom,
		Members: []conversations.QueueMember{{UserID: "u1", Weight: 0}, {UserID: "u2", Weight: 0}, {UserID: "u-off", Weight: 100}}})
	repo.PutQueue(conversations.Queue{ID: "q-manual", WorkspaceID: ws, DistributionType: conversations.DistributionNone, Members: members})
	repo.PutQueue(conversations.Queue{ID: "q-empty", WorkspaceID: ws, DistributionType: conversations.DistributionSequential})

	users := cache.NewStaticUserLoader(
		cache.User{ID: "u1", WorkspaceID: ws, Active: true},
		cache.User{ID: "u2", WorkspaceID: ws, Active: true},
		cache.User{ID: "u3", WorkspaceID: ws, Active: true},
		cache.User{ID: "u-off", WorkspaceID: ws, Active: false},
	)
	return repo, cache.NewUserDirectory(users, 0, nil)
}

func conv(id, queue string) conversations.Conversation {
	c := conversations.Conversation{ID: id, WorkspaceID: ws, ContactID: "ct-" + id, ConnectionID: "cn", Status: conversations.StatusOpen}
	if queue != "" {
		c.QueueID = ptr(queue)
	}
	return c
}

func TestDecide_RoundRobinSkipsInactive(t *testing.T) {
	repo, users := setup(t)
	e := NewEngine(repo, users, NewMemoryCounter(), rand.New(rand.NewSource(1)))
	ctx := context.Background()

	var got []string
	for i := 0; i < 4; i++ {
		d, err := e.Decide(ctx, conv("c", "q-rr"))
		require.NoError(t, err)
		require.Equal(t, ActionAssign, d.Action)
		got = append(got, d.UserID)
	}
	assert.Equal(t, []string{"u1", "u2", "u3", "u1"}, got)
}

func TestDecide_WeightedRandomNeverPicksInactive(t *testing.T) {
	repo, users := setup(t)
	e := NewEngine(repo, users, nil, rand.New(rand.NewSource(42)))
	ctx := context.Background()

	seen := map[string]int{}
	for i := 0; i < 200; i++ {
		d, err := e.Decide(ctx, conv("c", "q-rand"))
		require.NoError(t, err)
		seen[d.UserID]++
	}
	assert.Zero(t, seen["u-off"])
	assert.Positive(t, seen["u1"])
	assert.Positive(t, seen["u2"])
}

func TestDecide_Skips(t *testing.T) {
	repo, users := setup(t)
	e := NewEngine(repo, users, nil, nil)
	ctx := context.Background()

	assigned := conv("c", "q-rr")
	assigned.AssignedUserID = ptr("u9")
	cases := map[string]conversations.Conversation{
		"already_assigned":       assigned,
		"no_queue":               conv("c", ""),
		"queue_not_distributing": conv("c", "q-manual"),
		"no_eligible_member":     conv("c", "q-empty"),
	}
	for reason, c := range cases {
		d, err := e.Decide(ctx, c)
		require.NoError(t, err, reason)
		assert.Equal(t, ActionSkip, d.Action, reason)
		assert.Equal(t, reason, d.Reason)
	}

	_, err := e.Decide(ctx, conv("c", "missing"))
	assert.ErrorIs(t, err, conversations.ErrNotFound)
}

func TestDistribute_AssignsThroughPatch(t *testing.T) {
	repo, users := setup(t)
	c := conv("c1", "q-rr")
	repo.PutConversation(c)
	hist := history.NewMemoryRepo()
	svc := conversations.NewService(repo, history.NewRecorder(hist))

	d := NewDistributor(NewEngine(repo, users, NewMemoryCounter(), nil), svc)
	dec, updated, err := d.Distribute(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, ActionAssign, dec.Action)
	require.NotNil(t, updated.AssignedUserID)
	assert.Equal(t, "u1", *updated.AssignedUserID)

	rows := hist.Assignments()
	require.Len(t, rows, 1)
	assert.Equal(t, history.ActionAssign, rows[0].Action)
	assert.Empty(t, rows[0].ChangedBy)

	dec, _, err = d.Distribute(context.Background(), updated)
	require.NoError(t, err)
	assert.Equal(t, ActionSkip, dec.Action)
}
