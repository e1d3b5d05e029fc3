package conversations

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("conversations: not found")
	ErrInvalidArgument = errors.New("conversations: invalid argument")
)

// AssignmentUpdate is the resolved column set written in one UPDATE.
type AssignmentUpdate struct {
	SetQueue bool
	QueueID  *string

	SetAgent      bool
	AgentActiveID *string
	AgentActive   bool

	SetUser        bool
	AssignedUserID *string
	AssignedAt     *time.Time

	UpdatedAt time.Time
}

func (u AssignmentUpdate) empty() bool {
	return !u.SetQueue && !u.SetAgent && !u.SetUser
}

// Repository is workspace-scoped except LookupConnection, which serves
// provider webhooks that only know the connection id.
type Repository interface {
	Get(ctx context.Context, workspaceID, id string) (Conversation, error)
	FindOpen(ctx context.Context, workspaceID, contactID, connectionID string) (Conversation, error)
	// Create inserts an open conversation. If an open one already exists for
	// (contact, connection) it returns that one with created=false.
	Create(ctx context.Context, c Conversation) (Conversation, bool, error)
	ApplyAssignment(ctx context.Context, workspaceID, id string, u AssignmentUpdate) (Conversation, error)

	GetQueue(ctx context.Context, workspaceID, id string) (Queue, error)
	GetConnection(ctx context.Context, workspaceID, id string) (Connection, error)
	LookupConnection(ctx context.Context, id string) (Connection, error)
}
