package history

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository persists history rows. Append-only: there is no update or delete.
type Repository interface {
	AppendAssignment(ctx context.Context, e Entry) error
	AppendAgent(ctx context.Context, e AgentEntry) error
}

// Recorder validates and stamps history rows before appending them.
type Recorder struct {
	repo  Repository
	clock func() time.Time
}

func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo, clock: time.Now}
}

// WithClock replaces the time source.
func (r *Recorder) WithClock(clock func() time.Time) *Recorder {
	r.clock = clock
	return r
}

var ErrInvalidEntry = errors.New("history: invalid entry")

func (r *Recorder) RecordAssignment(ctx context.Context, e Entry) error {
	if r.repo == nil {
		return errors.New("history: repository not configured")
	}
	if e.WorkspaceID == "" || e.ConversationID == "" {
		return ErrInvalidEntry
	}
	switch e.Action {
	case ActionAssign, ActionTransfer, ActionQueueTransfer:
	default:
		return ErrInvalidEntry
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.ChangedAt.IsZero() {
		e.ChangedAt = r.clock().UTC()
	}
	return r.repo.AppendAssignment(ctx, e)
}

func (r *Recorder) RecordAgent(ctx context.Context, e AgentEntry) error {
	if r.repo == nil {
		return errors.New("history: repository not configured")
	}
	if e.WorkspaceID == "" || e.ConversationID == "" {
		return ErrInvalidEntry
	}
	if e.Action != AgentActivated && e.Action != AgentDeactivated {
		return ErrInvalidEntry
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.ChangedAt.IsZero() {
		e.ChangedAt = r.clock().UTC()
	}
	return r.repo.AppendAgent(ctx, e)
}
