package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
)

// User is a workspace member as seen by assignment and distribution.
type User struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	Name        string `json:"name"`
	Email       string `json:"email,omitempty"`
	Role        string `json:"role"`
	Active      bool   `json:"active"`
}

var ErrInvalidArgument = errors.New("cache: invalid argument")

type UserLoader interface {
	ListWorkspaceUsers(ctx context.Context, workspaceID string) ([]User, error)
}

// UserDirectory caches workspace users per workspace. Build one per process
// and pass it to whoever needs it. Concurrent misses share one load.
type UserDirectory struct {
	loader UserLoader
	ttl    time.Duration
	cache  *Cache[[]User]
	group  singleflight.Group
}

func NewUserDirectory(loader UserLoader, ttl time.Duration, clock func() time.Time) *UserDirectory {
	return &UserDirectory{loader: loader, ttl: ttl, cache: New[[]User](0, clock)}
}

func (d *UserDirectory) List(ctx context.Context, workspaceID string) ([]User, error) {
	if workspaceID == "" {
		return nil, ErrInvalidArgument
	}
	if users, ok := d.cache.Get(workspaceID); ok {
		return users, nil
	}
	v, err, _ := d.group.Do(workspaceID, func() (any, error) {
		users, err := d.loader.ListWorkspaceUsers(ctx, workspaceID)
		if err != nil {
			return nil, fmt.Errorf("load workspace users: %w", err)
		}
		d.cache.Set(workspaceID, users, d.ttl)
		return users, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]User), nil
}

func (d *UserDirectory) Get(ctx context.Context, workspaceID, userID string) (User, bool, error) {
	users, err := d.List(ctx, workspaceID)
	if err != nil {
		return User{}, false, err
	}
	for _, u := range users {
		if u.ID == userID {
			return u, true, nil
		}
	}
	return User{}, false, nil
}

// IsActive is false for unknown users.
func (d *UserDirectory) IsActive(ctx context.Context, workspaceID, userID string) (bool, error) {
	u, ok, err := d.Get(ctx, workspaceID, userID)
	if err != nil {
		return false, err
	}
	return ok && u.Active, nil
}

func (d *UserDirectory) Invalidate(workspaceID string) {
	d.cache.Invalidate(workspaceID)
}

// Subscribe is called with the workspace id whenever its user list is reloaded or dropped.
func (d *UserDirectory) Subscribe(fn func(workspaceID string)) func() {
	return d.cache.Subscribe(func(ev Event[[]User]) { fn(ev.Key) })
}
