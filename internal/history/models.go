package history

import "time"

// Entry is one row of conversation_assignments.
//
// Invariants:
// - Entries are never updated or deleted.
// - An entry exists only for a real transition (or a forced record).
// - Writes are best-effort; the conversation update never depends on them.
type Entry struct {
	ID             string `json:"id" db:"id"`
	WorkspaceID    string `json:"workspace_id" db:"workspace_id"`
	ConversationID string `json:"conversation_id" db:"conversation_id"`

	Action Action `json:"action" db:"action"`

	FromUserID  *string `json:"from_assigned_user_id,omitempty" db:"from_assigned_user_id"`
	ToUserID    *string `json:"to_assigned_user_id,omitempty" db:"to_assigned_user_id"`
	FromQueueID *string `json:"from_queue_id,omitempty" db:"from_queue_id"`
	ToQueueID   *string `json:"to_queue_id,omitempty" db:"to_queue_id"`

	// ChangedBy is the acting user; empty for system actions (distribution, webhooks).
	ChangedBy string    `json:"changed_by,omitempty" db:"changed_by"`
	ChangedAt time.Time `json:"changed_at" db:"changed_at"`
}

type Action string

const (
	ActionAssign        Action = "assign"
	ActionTransfer      Action = "transfer"
	ActionQueueTransfer Action = "queue_transfer"
)

// AgentEntry records AI agent activation changes on a conversation.
type AgentEntry struct {
	ID             string      `json:"id" db:"id"`
	WorkspaceID    string      `json:"workspace_id" db:"workspace_id"`
	ConversationID string      `json:"conversation_id" db:"conversation_id"`
	AgentID        *string     `json:"agent_id,omitempty" db:"agent_id"`
	Action         AgentAction `json:"action" db:"action"`
	ChangedBy      string      `json:"changed_by,omitempty" db:"changed_by"`
	ChangedAt      time.Time   `json:"changed_at" db:"changed_at"`
}

type AgentAction string

const (
	AgentActivated   AgentAction = "activated"
	AgentDeactivated AgentAction = "deactivated"
)
