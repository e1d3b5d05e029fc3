package contacts

import (
	"context"
	"errors"
)

var (
	ErrNotFound        = errors.New("contacts: not found")
	ErrInvalidArgument = errors.New("contacts: invalid argument")
)

// Repository is workspace-scoped: every lookup filters by workspace_id.
type Repository interface {
	Get(ctx context.Context, workspaceID, id string) (Contact, error)
	FindByPhone(ctx context.Context, workspaceID, phone string) (Contact, error)
	Create(ctx context.Context, c Contact) (Contact, error)
}
