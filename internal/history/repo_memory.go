package history

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory append-only repository for tests and local runs.
// FailAssignment / FailAgent inject write failures.
type MemoryRepo struct {
	mu          sync.Mutex
	assignments []Entry
	agents      []AgentEntry

	FailAssignment func(Entry) error
	FailAgent      func(AgentEntry) error
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) AppendAssignment(ctx context.Context, e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailAssignment != nil {
		if err := r.FailAssignment(e); err != nil {
			return err
		}
	}
	r.assignments = append(r.assignments, e)
	return nil
}

func (r *MemoryRepo) AppendAgent(ctx context.Context, e AgentEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailAgent != nil {
		if err := r.FailAgent(e); err != nil {
			return err
		}
	}
	r.agents = append(r.agents, e)
	return nil
}

func (r *MemoryRepo) Assignments() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.assignments))
	copy(out, r.assignments)
	return out
}

func (r *MemoryRepo) Agents() []AgentEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]AgentEntry, len(r.agents))
	copy(out, r.agents)
	return out
}
