package conversations

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is an in-memory Repository for tests and local runs.
type MemoryRepo struct {
	mu          sync.Mutex
	convs       map[string]Conversation
	queues      map[string]Queue
	connections map[string]Connection
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		convs:       map[string]Conversation{},
		queues:      map[string]Queue{},
		connections: map[string]Connection{},
	}
}

func (r *MemoryRepo) PutConversation(c Conversation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.convs[c.ID] = c
}

func (r *MemoryRepo) PutQueue(q Queue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queues[q.ID] = q
}

func (r *MemoryRepo) PutConnection(c Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections[c.ID] = c
}

func (r *MemoryRepo) Get(ctx context.Context, workspaceID, id string) (Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[id]
	if !ok || c.WorkspaceID != workspaceID {
		return Conversation{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepo) FindOpen(ctx context.Context, workspaceID, contactID, connectionID string) (Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.findOpenLocked(workspaceID, contactID, connectionID); ok {
		return c, nil
	}
	return Conversation{}, ErrNotFound
}

func (r *MemoryRepo) findOpenLocked(workspaceID, contactID, connectionID string) (Conversation, bool) {
	for _, c := range r.convs {
		if c.WorkspaceID == workspaceID && c.ContactID == contactID &&
			c.ConnectionID == connectionID && c.Status == StatusOpen {
			return c, true
		}
	}
	return Conversation{}, false
}

func (r *MemoryRepo) Create(ctx context.Context, c Conversation) (Conversation, bool, error) {
	if c.WorkspaceID == "" || c.ContactID == "" || c.ConnectionID == "" {
		return Conversation{}, false, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.findOpenLocked(c.WorkspaceID, c.ContactID, c.ConnectionID); ok {
		return existing, false, nil
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.Status = StatusOpen
	c.CreatedAt = now
	c.UpdatedAt = now
	r.convs[c.ID] = c
	return c, true, nil
}

func (r *MemoryRepo) ApplyAssignment(ctx context.Context, workspaceID, id string, u AssignmentUpdate) (Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[id]
	if !ok || c.WorkspaceID != workspaceID {
		return Conversation{}, ErrNotFound
	}
	if u.SetQueue {
		c.QueueID = cloneRef(u.QueueID)
	}
	if u.SetAgent {
		c.AgentActiveID = cloneRef(u.AgentActiveID)
		c.AgentActive = u.AgentActive
	}
	if u.SetUser {
		c.AssignedUserID = cloneRef(u.AssignedUserID)
		if u.AssignedAt != nil {
			t := *u.AssignedAt
			c.AssignedAt = &t
		}
	}
	c.UpdatedAt = u.UpdatedAt
	r.convs[id] = c
	return c, nil
}

func (r *MemoryRepo) GetQueue(ctx context.Context, workspaceID, id string) (Queue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queues[id]
	if !ok || q.WorkspaceID != workspaceID {
		return Queue{}, ErrNotFound
	}
	return q, nil
}

func (r *MemoryRepo) GetConnection(ctx context.Context, workspaceID, id string) (Connection, error) {
	c, err := r.LookupConnection(ctx, id)
	if err != nil || c.WorkspaceID != workspaceID {
		return Connection{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepo) LookupConnection(ctx context.Context, id string) (Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.connections[id]
	if !ok {
		return Connection{}, ErrNotFound
	}
	return c, nil
}
