package tags

import (
	"context"
	"sort"
	"sync"
)

type link struct{ owner, tag string }

// MemoryRepo is an in-memory Repository. FailContactTag injects propagation failures.
type MemoryRepo struct {
	mu          sync.Mutex
	tags        map[string]Tag
	convTags    map[link]struct{}
	contactTags map[link]struct{}

	FailContactTag func(contactID, tagID string) error
}

func NewMemoryRepo(seed ...Tag) *MemoryRepo {
	r := &MemoryRepo{
		tags:        map[string]Tag{},
		convTags:    map[link]struct{}{},
		contactTags: map[link]struct{}{},
	}
	for _, t := range seed {
		r.tags[t.ID] = t
	}
	return r
}

func (r *MemoryRepo) GetTag(ctx context.Context, workspaceID, id string) (Tag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tags[id]
	if !ok || t.WorkspaceID != workspaceID {
		return Tag{}, ErrNotFound
	}
	return t, nil
}

func (r *MemoryRepo) AddConversationTag(ctx context.Context, workspaceID, conversationID, tagID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return addLink(r.convTags, link{conversationID, tagID}), nil
}

func (r *MemoryRepo) RemoveConversationTag(ctx context.Context, workspaceID, conversationID, tagID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := link{conversationID, tagID}
	if _, ok := r.convTags[k]; !ok {
		return false, nil
	}
	delete(r.convTags, k)
	return true, nil
}

func (r *MemoryRepo) ListConversationTags(ctx context.Context, workspaceID, conversationID string) ([]Tag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listLocked(r.convTags, workspaceID, conversationID), nil
}

func (r *MemoryRepo) AddContactTag(ctx context.Context, workspaceID, contactID, tagID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailContactTag != nil {
		if err := r.FailContactTag(contactID, tagID); err != nil {
			return false, err
		}
	}
	return addLink(r.contactTags, link{contactID, tagID}), nil
}

func (r *MemoryRepo) ListContactTags(ctx context.Context, workspaceID, contactID string) ([]Tag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listLocked(r.contactTags, workspaceID, contactID), nil
}

func addLink(m map[link]struct{}, k link) bool {
	if _, ok := m[k]; ok {
		return false
	}
	m[k] = struct{}{}
	return true
}

func (r *MemoryRepo) listLocked(m map[link]struct{}, workspaceID, owner string) []Tag {
	var out []Tag
	for k := range m {
		if k.owner != owner {
			continue
		}
		if t, ok := r.tags[k.tag]; ok && t.WorkspaceID == workspaceID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
