package conversations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crm-platform/internal/history"
	"crm-platform/internal/metrics"
	"crm-platform/pkg/logger"
)

type Service struct {
	repo    Repository
	history *history.Recorder
	clock   func() time.Time
}

// NewService wires the conversation store with the history recorder.
// A nil recorder disables history rows.
func NewService(repo Repository, rec *history.Recorder) *Service {
	return &Service{repo: repo, history: rec, clock: time.Now}
}

func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

func (s *Service) Get(ctx context.Context, workspaceID, id string) (Conversation, error) {
	return s.repo.Get(ctx, workspaceID, id)
}

type PatchOptions struct {
	// ForceHistory records a row for every patched key even when the value did not change.
	ForceHistory bool
	// ChangedBy is stamped on history rows; empty for system actions.
	ChangedBy string
}

// PatchAssignment applies a partial queue/user patch in a single update.
//
// Setting a queue activates its AI agent (or deactivates any agent when the
// queue has none); clearing the queue deactivates the agent. History rows are
// written after the update, each independently and best-effort. Concurrent
// patches are last-writer-wins.
func (s *Service) PatchAssignment(ctx context.Context, workspaceID, conversationID string, patch AssignmentPatch, opts PatchOptions) (Conversation, error) {
	if workspaceID == "" || conversationID == "" {
		return Conversation{}, ErrInvalidArgument
	}
	patch.QueueID = patch.QueueID.Normalized()
	patch.AssignedUserID = patch.AssignedUserID.Normalized()

	prev, err := s.repo.Get(ctx, workspaceID, conversationID)
	if err != nil {
		metrics.AssignmentPatches.WithLabelValues("failed").Inc()
		return Conversation{}, fmt.Errorf("load conversation: %w", err)
	}

	now := s.clock().UTC()
	upd := AssignmentUpdate{UpdatedAt: now}

	if patch.QueueID.Set {
		upd.SetQueue = true
		upd.QueueID = cloneRef(patch.QueueID.Value)
		upd.SetAgent = true
		if patch.QueueID.Value != nil {
			q, err := s.repo.GetQueue(ctx, workspaceID, *patch.QueueID.Value)
			if err != nil {
				metrics.AssignmentPatches.WithLabelValues("failed").Inc()
				return Conversation{}, fmt.Errorf("load queue: %w", err)
			}
			if q.AIAgentID != nil && *q.AIAgentID != "" {
				upd.AgentActiveID = cloneRef(q.AIAgentID)
				upd.AgentActive = true
			}
		}
	}
	if patch.AssignedUserID.Set {
		upd.SetUser = true
		upd.AssignedUserID = cloneRef(patch.AssignedUserID.Value)
		if upd.AssignedUserID != nil {
			t := now
			upd.AssignedAt = &t
		}
	}

	if upd.empty() {
		metrics.AssignmentPatches.WithLabelValues("noop").Inc()
		return prev, nil
	}

	cur, err := s.repo.ApplyAssignment(ctx, workspaceID, conversationID, upd)
	if err != nil {
		metrics.AssignmentPatches.WithLabelValues("failed").Inc()
		return Conversation{}, fmt.Errorf("update conversation: %w", err)
	}

	var box history.Outbox
	s.queueHistory(&box, prev, cur, upd, opts, now)
	if errs := box.Flush(ctx); len(errs) > 0 {
		logger.From(ctx).Warn("assignment history incomplete",
			"conversation_id", conversationID,
			"err", errors.Join(errs...),
		)
	}

	metrics.AssignmentPatches.WithLabelValues("ok").Inc()
	return cur, nil
}

func (s *Service) queueHistory(box *history.Outbox, prev, cur Conversation, upd AssignmentUpdate, opts PatchOptions, now time.Time) {
	if s.history == nil {
		return
	}
	if upd.SetQueue && (opts.ForceHistory || !sameRef(prev.QueueID, cur.QueueID)) {
		e := history.Entry{
			WorkspaceID:    cur.WorkspaceID,
			ConversationID: cur.ID,
			Action:         history.ActionQueueTransfer,
			FromQueueID:    cloneRef(prev.QueueID),
			ToQueueID:      cloneRef(cur.QueueID),
			ChangedBy:      opts.ChangedBy,
			ChangedAt:      now,
		}
		box.Add(history.KindQueueAssignment, func(ctx context.Context) error {
			return s.history.RecordAssignment(ctx, e)
		})
	}
	if upd.SetUser && (opts.ForceHistory || !sameRef(prev.AssignedUserID, cur.AssignedUserID)) {
		action := history.ActionTransfer
		if prev.AssignedUserID == nil {
			action = history.ActionAssign
		}
		e := history.Entry{
			WorkspaceID:    cur.WorkspaceID,
			ConversationID: cur.ID,
			Action:         action,
			FromUserID:     cloneRef(prev.AssignedUserID),
			ToUserID:       cloneRef(cur.AssignedUserID),
			ChangedBy:      opts.ChangedBy,
			ChangedAt:      now,
		}
		box.Add(history.KindUserAssignment, func(ctx context.Context) error {
			return s.history.RecordAssignment(ctx, e)
		})
	}
	if upd.SetAgent && (prev.AgentActive != cur.AgentActive || !sameRef(prev.AgentActiveID, cur.AgentActiveID)) {
		e := history.AgentEntry{
			WorkspaceID:    cur.WorkspaceID,
			ConversationID: cur.ID,
			Action:         history.AgentDeactivated,
			AgentID:        cloneRef(prev.AgentActiveID),
			ChangedBy:      opts.ChangedBy,
			ChangedAt:      now,
		}
		if cur.AgentActive {
			e.Action = history.AgentActivated
			e.AgentID = cloneRef(cur.AgentActiveID)
		}
		box.Add(history.KindAgent, func(ctx context.Context) error {
			return s.history.RecordAgent(ctx, e)
		})
	}
}

// FindOrCreateOpen returns the open conversation of (contact, connection),
// creating it in queueID when there is none. A new conversation in a queue
// with an AI agent starts with that agent active.
func (s *Service) FindOrCreateOpen(ctx context.Context, workspaceID, contactID, connectionID string, queueID *string) (Conversation, bool, error) {
	if workspaceID == "" || contactID == "" || connectionID == "" {
		return Conversation{}, false, ErrInvalidArgument
	}
	c, err := s.repo.FindOpen(ctx, workspaceID, contactID, connectionID)
	if err == nil {
		return c, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Conversation{}, false, err
	}

	c = Conversation{
		WorkspaceID:  workspaceID,
		ContactID:    contactID,
		ConnectionID: connectionID,
		QueueID:      cloneRef(queueID),
	}
	if queueID != nil {
		q, err := s.repo.GetQueue(ctx, workspaceID, *queueID)
		switch {
		case err == nil:
			if q.AIAgentID != nil && *q.AIAgentID != "" {
				c.AgentActiveID = cloneRef(q.AIAgentID)
				c.AgentActive = true
			}
		case errors.Is(err, ErrNotFound):
			logger.From(ctx).Warn("default queue missing", "queue_id", *queueID)
			c.QueueID = nil
		default:
			return Conversation{}, false, err
		}
	}
	return s.repo.Create(ctx, c)
}
