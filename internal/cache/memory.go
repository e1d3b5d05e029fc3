package cache

import (
	"context"
	"sync"
	"sync/atomic"
)

// StaticUserLoader serves fixed users, for tests and local runs.
type StaticUserLoader struct {
	mu    sync.Mutex
	users map[string][]User
	calls atomic.Int64
}

func NewStaticUserLoader(users ...User) *StaticUserLoader {
	l := &StaticUserLoader{users: map[string][]User{}}
	for _, u := range users {
		l.users[u.WorkspaceID] = append(l.users[u.WorkspaceID], u)
	}
	return l
}

func (l *StaticUserLoader) Put(u User) {
	l.mu.Lock()
	defer l.mu.Unlock()
	list := l.users[u.WorkspaceID]
	for i := range list {
		if list[i].ID == u.ID {
			list[i] = u
			return
		}
	}
	l.users[u.WorkspaceID] = append(list, u)
}

func (l *StaticUserLoader) ListWorkspaceUsers(ctx context.Context, workspaceID string) ([]User, error) {
	l.calls.Add(1)
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]User(nil), l.users[workspaceID]...), nil
}

// Calls counts loads.
func (l *StaticUserLoader) Calls() int64 { return l.calls.Load() }
