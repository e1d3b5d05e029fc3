package audit

import "time"

// Event is an append-only record of a dashboard mutation.
//
// Invariants:
// - Events are never updated or deleted.
// - workspace_id is required.
// - Writes are best-effort; a failed append never fails the mutation it describes.
type Event struct {
	ID          string    `json:"id" db:"id"`
	WorkspaceID string    `json:"workspace_id" db:"workspace_id"`
	Type        EventType `json:"type" db:"type"`

	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`
	// IPAddress is the client IP as resolved by gin.
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	CardID         string `json:"card_id,omitempty" db:"card_id"`
	ConversationID string `json:"conversation_id,omitempty" db:"conversation_id"`

	Message string `json:"message,omitempty" db:"message"`
	// Metadata is a JSON object with the request details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventCardResolved       EventType = "card_resolved"
	EventCardMoved          EventType = "card_moved"
	EventCardClosed         EventType = "card_closed"
	EventAssignmentPatched  EventType = "assignment_patched"
	EventConversationTagged EventType = "conversation_tagged"
	EventConversationUntag  EventType = "conversation_untagged"
)

// Actor identifies who made a change and from where.
type Actor struct {
	UserID string
	Role   string
	IP     string
}
