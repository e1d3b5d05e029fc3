package distribution

// Decision is the outcome of distributing one conversation.
// Reason is for logs and metrics only.
type Decision struct {
	WorkspaceID    string `json:"workspace_id"`
	ConversationID string `json:"conversation_id"`
	QueueID        string `json:"queue_id,omitempty"`

	Action Action `json:"action"`
	UserID string `json:"user_id,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type Action string

const (
	ActionAssign Action = "assign"
	ActionSkip   Action = "skip"
)
