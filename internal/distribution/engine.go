package distribution

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"crm-platform/internal/conversations"
	"crm-platform/pkg/logger"
)

type QueueReader interface {
	GetQueue(ctx context.Context, workspaceID, id string) (conversations.Queue, error)
}

// UserStatus reports whether a member may receive conversations.
type UserStatus interface {
	IsActive(ctx context.Context, workspaceID, userID string) (bool, error)
}

type Assigner interface {
	PatchAssignment(ctx context.Context, workspaceID, conversationID string, patch conversations.AssignmentPatch, opts conversations.PatchOptions) (conversations.Conversation, error)
}

// Engine picks a queue member for an unassigned conversation.
//
// Rules:
//  1. Already assigned or not in a queue: skip.
//  2. Queue with nao_distribuir: skip.
//  3. Inactive members are never picked.
//  4. sequencial: round robin over eligible members.
//  5. aleatoria: weighted random over eligible members.
//
// Decide has no side effects beyond advancing the round-robin counter.
type Engine struct {
	Queues  QueueReader
	Users   UserStatus
	Counter Counter

	mu  sync.Mutex
	RNG *rand.Rand
}

func NewEngine(queues QueueReader, users UserStatus, counter Counter, rng *rand.Rand) *Engine {
	if counter == nil {
		counter = NewMemoryCounter()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Engine{Queues: queues, Users: users, Counter: counter, RNG: rng}
}

func (e *Engine) Decide(ctx context.Context, conv conversations.Conversation) (Decision, error) {
	if conv.WorkspaceID == "" || conv.ID == "" {
		return Decision{}, errors.New("distribution: conversation required")
	}
	d := Decision{WorkspaceID: conv.WorkspaceID, ConversationID: conv.ID, Action: ActionSkip}
	if conv.AssignedUserID != nil {
		d.Reason = "already_assigned"
		return d, nil
	}
	if conv.QueueID == nil {
		d.Reason = "no_queue"
		return d, nil
	}
	d.QueueID = *conv.QueueID

	q, err := e.Queues.GetQueue(ctx, conv.WorkspaceID, *conv.QueueID)
	if err != nil {
		return Decision{}, fmt.Errorf("load queue: %w", err)
	}

	switch q.DistributionType {
	case conversations.DistributionSequential, conversations.DistributionRandom:
	default:
		d.Reason = "queue_not_distributing"
		return d, nil
	}

	eligible, err := e.eligible(ctx, conv.WorkspaceID, q.Members)
	if err != nil {
		return Decision{}, err
	}
	if len(eligible) == 0 {
		d.Reason = "no_eligible_member"
		return d, nil
	}

	var user string
	if q.DistributionType == conversations.DistributionSequential {
		n, err := e.Counter.Next(ctx, q.ID)
		if err != nil {
			return Decision{}, fmt.Errorf("round robin counter: %w", err)
		}
		user = eligible[int((n-1)%int64(len(eligible)))].UserID
	} else {
		user = e.pickWeighted(eligible)
	}

	d.Action = ActionAssign
	d.UserID = user
	d.Reason = string(q.DistributionType)
	return d, nil
}

func (e *Engine) eligible(ctx context.Context, workspaceID string, members []conversations.QueueMember) ([]conversations.QueueMember, error) {
	out := make([]conversations.QueueMember, 0, len(members))
	for _, m := range members {
		if m.UserID == "" {
			continue
		}
		if e.Users != nil {
			ok, err := e.Users.IsActive(ctx, workspaceID, m.UserID)
			if err != nil {
				return nil, fmt.Errorf("user status: %w", err)
			}
			if !ok {
				continue
			}
		}
		out = append(out, m)
	}
	return out, nil
}

func weight(m conversations.QueueMember) int {
	if m.Weight <= 0 {
		return 1
	}
	return m.Weight
}

func (e *Engine) pickWeighted(members []conversations.QueueMember) string {
	var total int
	for _, m := range members {
		total += weight(m)
	}
	e.mu.Lock()
	r := e.RNG.Intn(total)
	e.mu.Unlock()

	var acc int
	for _, m := range members {
		acc += weight(m)
		if r < acc {
			return m.UserID
		}
	}
	return members[len(members)-1].UserID
}

// Distributor applies engine decisions through the assignment service, so
// distribution writes the same history rows as a manual assignment.
type Distributor struct {
	Engine   *Engine
	Assigner Assigner
}

func NewDistributor(engine *Engine, assigner Assigner) *Distributor {
	return &Distributor{Engine: engine, Assigner: assigner}
}

func (d *Distributor) Distribute(ctx context.Context, conv conversations.Conversation) (Decision, conversations.Conversation, error) {
	dec, err := d.Engine.Decide(ctx, conv)
	if err != nil {
		return Decision{}, conv, err
	}
	if dec.Action != ActionAssign {
		logger.From(ctx).Debug("distribution skipped", "conversation_id", conv.ID, "reason", dec.Reason)
		return dec, conv, nil
	}
	updated, err := d.Assigner.PatchAssignment(ctx, conv.WorkspaceID, conv.ID,
		conversations.AssignmentPatch{AssignedUserID: conversations.Value(dec.UserID)},
		conversations.PatchOptions{})
	if err != nil {
		return Decision{}, conv, err
	}
	logger.From(ctx).Info("conversation distributed",
		"conversation_id", conv.ID, "queue_id", dec.QueueID, "user_id", dec.UserID, "reason", dec.Reason)
	return dec, updated, nil
}
