package contacts

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is an in-memory Repository for tests and local runs.
type MemoryRepo struct {
	mu   sync.Mutex
	byID map[string]Contact
}

func NewMemoryRepo(seed ...Contact) *MemoryRepo {
	r := &MemoryRepo{byID: map[string]Contact{}}
	for _, c := range seed {
		r.byID[c.ID] = c
	}
	return r
}

func (r *MemoryRepo) Get(ctx context.Context, workspaceID, id string) (Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok || c.WorkspaceID != workspaceID {
		return Contact{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepo) FindByPhone(ctx context.Context, workspaceID, phone string) (Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.byID {
		if c.WorkspaceID == workspaceID && c.Phone == phone && phone != "" {
			return c, nil
		}
	}
	return Contact{}, ErrNotFound
}

func (r *MemoryRepo) Create(ctx context.Context, c Contact) (Contact, error) {
	if c.WorkspaceID == "" {
		return Contact{}, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	r.byID[c.ID] = c
	return c, nil
}
