package pipeline

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pipeline is a kanban board of a workspace.
type Pipeline struct {
	ID          string    `json:"id" db:"id"`
	WorkspaceID string    `json:"workspace_id" db:"workspace_id"`
	Name        string    `json:"name" db:"name"`
	Active      bool      `json:"is_active" db:"is_active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type Column struct {
	ID            string    `json:"id" db:"id"`
	PipelineID    string    `json:"pipeline_id" db:"pipeline_id"`
	Name          string    `json:"name" db:"name"`
	Color         string    `json:"color,omitempty" db:"color"`
	OrderPosition int       `json:"order_position" db:"order_position"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

type Status string

const (
	StatusOpen Status = "aberto"
	StatusWon  Status = "ganho"
	StatusLost Status = "perdido"
)

func (s Status) Closed() bool { return s == StatusWon || s == StatusLost }

// Card is a deal on a pipeline board.
//
// Invariants:
// - At most one card with status aberto per (contact_id, pipeline_id).
// - Cards are closed by status, never deleted here.
type Card struct {
	ID                string          `json:"id" db:"id"`
	WorkspaceID       string          `json:"workspace_id" db:"workspace_id"`
	PipelineID        string          `json:"pipeline_id" db:"pipeline_id"`
	ColumnID          string          `json:"column_id" db:"column_id"`
	ContactID         string          `json:"contact_id" db:"contact_id"`
	ConversationID    *string         `json:"conversation_id" db:"conversation_id"`
	ResponsibleUserID *string         `json:"responsible_user_id" db:"responsible_user_id"`
	Status            Status          `json:"status" db:"status"`
	Value             decimal.Decimal `json:"value" db:"value"`
	Title             string          `json:"title" db:"title"`
	Description       string          `json:"description" db:"description"`
	Tags              []string        `json:"tags" db:"tags"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
)

type ResolveRequest struct {
	WorkspaceID    string  `json:"workspace_id"`
	ContactID      string  `json:"contact_id" binding:"required"`
	ConversationID *string `json:"conversation_id,omitempty"`
	PipelineID     *string `json:"pipeline_id,omitempty"`
}

type Resolution struct {
	Card   Card   `json:"card"`
	Action Action `json:"action"`
}

// ColumnSummary aggregates the open cards of one column.
type ColumnSummary struct {
	ColumnID  string          `json:"column_id"`
	Name      string          `json:"name"`
	OpenCards int             `json:"open_cards"`
	OpenValue decimal.Decimal `json:"open_value"`
}

type BoardSummary struct {
	PipelineID string          `json:"pipeline_id"`
	Columns    []ColumnSummary `json:"columns"`

	OpenCards int             `json:"open_cards"`
	OpenValue decimal.Decimal `json:"open_value"`
	WonCards  int             `json:"won_cards"`
	WonValue  decimal.Decimal `json:"won_value"`
	LostCards int             `json:"lost_cards"`
	LostValue decimal.Decimal `json:"lost_value"`
}

func cloneRef(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func (c Card) clone() Card {
	out := c
	out.ConversationID = cloneRef(c.ConversationID)
	out.ResponsibleUserID = cloneRef(c.ResponsibleUserID)
	out.Tags = append([]string(nil), c.Tags...)
	if out.Tags == nil {
		out.Tags = []string{}
	}
	return out
}
