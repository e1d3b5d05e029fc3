package pipeline

import (
	"context"
	"errors"
)

var (
	ErrNotFound          = errors.New("pipeline: not found")
	ErrInvalidArgument   = errors.New("pipeline: invalid argument")
	ErrInvalidContact    = errors.New("pipeline: contact has no phone or email")
	ErrNoPipeline        = errors.New("pipeline: no pipeline available")
	ErrNoColumn          = errors.New("pipeline: pipeline has no column")
	ErrInvalidTransition = errors.New("pipeline: invalid status transition")

	// ErrOpenCardExists is returned by CreateCard when the (contact, pipeline)
	// pair already has an open card.
	ErrOpenCardExists = errors.New("pipeline: open card already exists")
)

// Repository is the card store. Pipeline-scoped reads trust a pipeline id
// already resolved against the workspace.
type Repository interface {
	GetPipeline(ctx context.Context, workspaceID, id string) (Pipeline, error)
	// FirstActivePipeline returns the earliest created active pipeline.
	FirstActivePipeline(ctx context.Context, workspaceID string) (Pipeline, error)
	// ListColumns returns columns by ascending order_position.
	ListColumns(ctx context.Context, pipelineID string) ([]Column, error)
	GetColumn(ctx context.Context, pipelineID, columnID string) (Column, error)

	FindOpenCard(ctx context.Context, pipelineID, contactID string) (Card, error)
	GetCard(ctx context.Context, workspaceID, id string) (Card, error)
	ListCards(ctx context.Context, pipelineID string) ([]Card, error)
	CreateCard(ctx context.Context, c Card) (Card, error)
	UpdateCard(ctx context.Context, c Card) (Card, error)
}
