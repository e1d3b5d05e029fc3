package audit

import (
	"context"
	"errors"
	"sync"
)

// MemoryRepo is an in-memory append-only repository for tests and local runs.
type MemoryRepo struct {
	mu     sync.Mutex
	events []Event
	fail   bool
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

// FailAppends makes every subsequent Append return an error.
func (r *MemoryRepo) FailAppends(v bool) {
	r.mu.Lock()
	r.fail = v
	r.mu.Unlock()
}

func (r *MemoryRepo) Append(ctx context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("audit: store unavailable")
	}
	r.events = append(r.events, e)
	return nil
}

func (r *MemoryRepo) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
