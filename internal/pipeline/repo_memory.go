package pipeline

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryRepo is an in-memory Repository for tests and local runs.
// CreateCard enforces the one-open-card rule like the database index does.
type MemoryRepo struct {
	mu        sync.Mutex
	pipelines map[string]Pipeline
	columns   map[string]Column
	cards     map[string]Card
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		pipelines: map[string]Pipeline{},
		columns:   map[string]Column{},
		cards:     map[string]Card{},
	}
}

func (r *MemoryRepo) PutPipeline(p Pipeline) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pipelines[p.ID] = p
}

func (r *MemoryRepo) PutColumn(c Column) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.columns[c.ID] = c
}

func (r *MemoryRepo) PutCard(c Card) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cards[c.ID] = c.clone()
}

func (r *MemoryRepo) GetPipeline(ctx context.Context, workspaceID, id string) (Pipeline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pipelines[id]
	if !ok || p.WorkspaceID != workspaceID {
		return Pipeline{}, ErrNotFound
	}
	return p, nil
}

func (r *MemoryRepo) FirstActivePipeline(ctx context.Context, workspaceID string) (Pipeline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var (
		best  Pipeline
		found bool
	)
	for _, p := range r.pipelines {
		if p.WorkspaceID != workspaceID || !p.Active {
			continue
		}
		if !found || p.CreatedAt.Before(best.CreatedAt) || (p.CreatedAt.Equal(best.CreatedAt) && p.ID < best.ID) {
			best, found = p, true
		}
	}
	if !found {
		return Pipeline{}, ErrNotFound
	}
	return best, nil
}

func (r *MemoryRepo) ListColumns(ctx context.Context, pipelineID string) ([]Column, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Column
	for _, c := range r.columns {
		if c.PipelineID == pipelineID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrderPosition != out[j].OrderPosition {
			return out[i].OrderPosition < out[j].OrderPosition
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryRepo) GetColumn(ctx context.Context, pipelineID, columnID string) (Column, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.columns[columnID]
	if !ok || c.PipelineID != pipelineID {
		return Column{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepo) FindOpenCard(ctx context.Context, pipelineID, contactID string) (Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.openCardLocked(pipelineID, contactID); ok {
		return c.clone(), nil
	}
	return Card{}, ErrNotFound
}

func (r *MemoryRepo) openCardLocked(pipelineID, contactID string) (Card, bool) {
	for _, c := range r.cards {
		if c.PipelineID == pipelineID && c.ContactID == contactID && c.Status == StatusOpen {
			return c, true
		}
	}
	return Card{}, false
}

func (r *MemoryRepo) GetCard(ctx context.Context, workspaceID, id string) (Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cards[id]
	if !ok || c.WorkspaceID != workspaceID {
		return Card{}, ErrNotFound
	}
	return c.clone(), nil
}

func (r *MemoryRepo) ListCards(ctx context.Context, pipelineID string) ([]Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Card
	for _, c := range r.cards {
		if c.PipelineID == pipelineID {
			out = append(out, c.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) CreateCard(ctx context.Context, c Card) (Card, error) {
	if c.PipelineID == "" || c.ContactID == "" || c.ColumnID == "" {
		return Card{}, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.Status == StatusOpen {
		if _, exists := r.openCardLocked(c.PipelineID, c.ContactID); exists {
			return Card{}, ErrOpenCardExists
		}
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c = c.clone()
	r.cards[c.ID] = c
	return c.clone(), nil
}

func (r *MemoryRepo) UpdateCard(ctx context.Context, c Card) (Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.cards[c.ID]
	if !ok || prev.WorkspaceID != c.WorkspaceID {
		return Card{}, ErrNotFound
	}
	if c.Status == StatusOpen && prev.Status != StatusOpen {
		if _, exists := r.openCardLocked(c.PipelineID, c.ContactID); exists {
			return Card{}, ErrOpenCardExists
		}
	}
	c = c.clone()
	r.cards[c.ID] = c
	return c.clone(), nil
}

// OpenCount counts open cards of (pipeline, contact).
func (r *MemoryRepo) OpenCount(pipelineID, contactID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.cards {
		if c.PipelineID == pipelineID && c.ContactID == contactID && c.Status == StatusOpen {
			n++
		}
	}
	return n
}
