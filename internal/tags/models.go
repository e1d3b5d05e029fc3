package tags

import (
	"context"
	"errors"
)

// Tag is a workspace label attached to conversations and contacts.
type Tag struct {
	ID          string `json:"id" db:"id"`
	WorkspaceID string `json:"workspace_id" db:"workspace_id"`
	Name        string `json:"name" db:"name"`
	Color       string `json:"color,omitempty" db:"color"`
}

var (
	ErrNotFound        = errors.New("tags: not found")
	ErrInvalidArgument = errors.New("tags: invalid argument")
)

// Repository stores tags and their conversation/contact links.
// Add and Remove are idempotent and report whether anything changed.
type Repository interface {
	GetTag(ctx context.Context, workspaceID, id string) (Tag, error)

	AddConversationTag(ctx context.Context, workspaceID, conversationID, tagID string) (bool, error)
	RemoveConversationTag(ctx context.Context, workspaceID, conversationID, tagID string) (bool, error)
	ListConversationTags(ctx context.Context, workspaceID, conversationID string) ([]Tag, error)

	AddContactTag(ctx context.Context, workspaceID, contactID, tagID string) (bool, error)
	ListContactTags(ctx context.Context, workspaceID, contactID string) ([]Tag, error)
}
