package conversations

import "time"

type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Conversation is one WhatsApp thread between a contact and a connection.
// It has at most one queue and one assigned user at a time.
type Conversation struct {
	ID           string `json:"id" db:"id"`
	WorkspaceID  string `json:"workspace_id" db:"workspace_id"`
	ContactID    string `json:"contact_id" db:"contact_id"`
	ConnectionID string `json:"connection_id" db:"connection_id"`
	Status       Status `json:"status" db:"status"`

	QueueID        *string    `json:"queue_id" db:"queue_id"`
	AssignedUserID *string    `json:"assigned_user_id" db:"assigned_user_id"`
	AssignedAt     *time.Time `json:"assigned_at,omitempty" db:"assigned_at"`

	AgentActiveID *string `json:"agent_active_id" db:"agent_active_id"`
	AgentActive   bool    `json:"agente_ativo" db:"agente_ativo"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type DistributionType string

const (
	DistributionSequential DistributionType = "sequencial"
	DistributionRandom     DistributionType = "aleatoria"
	DistributionNone       DistributionType = "nao_distribuir"
)

// Queue routes conversations to a set of users, optionally with an AI agent.
type Queue struct {
	ID               string           `json:"id" db:"id"`
	WorkspaceID      string           `json:"workspace_id" db:"workspace_id"`
	Name             string           `json:"name" db:"name"`
	AIAgentID        *string          `json:"ai_agent_id,omitempty" db:"ai_agent_id"`
	DistributionType DistributionType `json:"distribution_type" db:"distribution_type"`
	Members          []QueueMember    `json:"members"`
}

// QueueMember weight only matters for random distribution; <= 0 counts as 1.
type QueueMember struct {
	UserID string `json:"user_id" db:"user_id"`
	Weight int    `json:"weight" db:"weight"`
}

// Connection is a WhatsApp instance of a workspace.
type Connection struct {
	ID                string  `json:"id" db:"id"`
	WorkspaceID       string  `json:"workspace_id" db:"workspace_id"`
	Name              string  `json:"name" db:"name"`
	DefaultQueueID    *string `json:"default_queue_id,omitempty" db:"default_queue_id"`
	DefaultPipelineID *string `json:"default_pipeline_id,omitempty" db:"default_pipeline_id"`
}

func sameRef(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func cloneRef(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
