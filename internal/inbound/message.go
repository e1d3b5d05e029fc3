package inbound

import (
	"strings"
	"time"

	"crm-platform/internal/contacts"
)

// WebhookPayload is the provider-agnostic message shape the webhook accepts.
// Provider adapters translate their own formats into it before posting.
type WebhookPayload struct {
	MessageID string `json:"message_id"`
	Phone     string `json:"phone"`
	Name      string `json:"name"`
	Text      string `json:"text"`
	FromMe    bool   `json:"from_me"`
	// Timestamp is unix seconds; zero means "now".
	Timestamp int64 `json:"timestamp"`
}

// Message is a normalized inbound WhatsApp message.
type Message struct {
	ConnectionID      string    `json:"connection_id" validate:"required"`
	ProviderMessageID string    `json:"provider_message_id" validate:"required,max=128"`
	Phone             string    `json:"phone" validate:"required,numeric,min=8,max=20"`
	Name              string    `json:"name" validate:"max=200"`
	Text              string    `json:"text" validate:"max=65536"`
	FromMe            bool      `json:"from_me"`
	OccurredAt        time.Time `json:"occurred_at" validate:"required"`
}

func (p WebhookPayload) ToMessage(connectionID string, now time.Time) Message {
	at := now.UTC()
	if p.Timestamp > 0 {
		at = time.Unix(p.Timestamp, 0).UTC()
	}
	return Message{
		ConnectionID:      connectionID,
		ProviderMessageID: strings.TrimSpace(p.MessageID),
		Phone:             contacts.NormalizePhone(p.Phone),
		Name:              strings.TrimSpace(p.Name),
		Text:              p.Text,
		FromMe:            p.FromMe,
		OccurredAt:        at,
	}
}
