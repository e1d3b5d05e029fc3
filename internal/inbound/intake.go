package inbound

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"crm-platform/internal/cache"
	"crm-platform/internal/contacts"
	"crm-platform/internal/conversations"
	"crm-platform/internal/distribution"
	"crm-platform/internal/metrics"
	"crm-platform/internal/pipeline"
	"crm-platform/pkg/logger"
)

const seenSize = 10_000

var (
	ErrInvalidMessage    = errors.New("inbound: invalid message")
	ErrUnknownConnection = errors.New("inbound: unknown connection")
)

type ConnectionLookup interface {
	LookupConnection(ctx context.Context, id string) (conversations.Connection, error)
}

type ContactStore interface {
	FindByPhone(ctx context.Context, workspaceID, phone string) (contacts.Contact, error)
	Create(ctx context.Context, c contacts.Contact) (contacts.Contact, error)
}

type ConversationOpener interface {
	FindOrCreateOpen(ctx context.Context, workspaceID, contactID, connectionID string, queueID *string) (conversations.Conversation, bool, error)
}

type CardResolver interface {
	ResolveOrCreateCard(ctx context.Context, req pipeline.ResolveRequest) (pipeline.Resolution, error)
}

type Distributor interface {
	Distribute(ctx context.Context, conv conversations.Conversation) (distribution.Decision, conversations.Conversation, error)
}

// Result summarizes what one message did.
type Result struct {
	WorkspaceID         string                 `json:"workspace_id"`
	OccurredAt          time.Time              `json:"occurred_at"`
	ContactID           string                 `json:"contact_id,omitempty"`
	ConversationID      string                 `json:"conversation_id,omitempty"`
	ConversationCreated bool                   `json:"conversation_created"`
	CardID              string                 `json:"card_id,omitempty"`
	CardAction          pipeline.Action        `json:"card_action,omitempty"`
	Distribution        *distribution.Decision `json:"distribution,omitempty"`
	Ignored             string                 `json:"ignored,omitempty"`
}

// Intake turns an inbound message into CRM state:
//  1. find or create the contact by phone
//  2. find or create the open conversation in the connection's default queue
//  3. resolve the card in the connection's default pipeline, if any
//  4. distribute the conversation when it has no assignee
//
// Steps 1 and 2 are primary. Steps 3 and 4 are logged and skipped on failure.
type Intake struct {
	Connections   ConnectionLookup
	Contacts      ContactStore
	Conversations ConversationOpener
	Cards         CardResolver
	Distributor   Distributor

	// Seen drops provider redeliveries of the same message id. Entries
	// leave after SeenTTL or when the cache is full.
	Seen    *cache.Cache[struct{}]
	SeenTTL time.Duration

	validate *validator.Validate
}

func NewIntake(conns ConnectionLookup, cts ContactStore, convs ConversationOpener, cards CardResolver, dist Distributor) *Intake {
	return &Intake{
		Connections:   conns,
		Contacts:      cts,
		Conversations: convs,
		Cards:         cards,
		Distributor:   dist,
		Seen:          cache.New[struct{}](seenSize, nil),
		SeenTTL:       10 * time.Minute,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (in *Intake) Validate(m Message) error {
	if err := in.validate.Struct(m); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return nil
}

func (in *Intake) Handle(ctx context.Context, m Message) (Result, error) {
	res, err := in.handle(ctx, m)
	switch {
	case err != nil:
		metrics.InboundMessages.WithLabelValues("failed").Inc()
	case res.Ignored != "":
		metrics.InboundMessages.WithLabelValues("ignored").Inc()
	default:
		metrics.InboundMessages.WithLabelValues("ok").Inc()
	}
	return res, err
}

func (in *Intake) handle(ctx context.Context, m Message) (Result, error) {
	if err := in.Validate(m); err != nil {
		return Result{}, err
	}

	conn, err := in.Connections.LookupConnection(ctx, m.ConnectionID)
	if err != nil {
		if errors.Is(err, conversations.ErrNotFound) {
			return Result{}, ErrUnknownConnection
		}
		return Result{}, fmt.Errorf("lookup connection: %w", err)
	}
	res := Result{WorkspaceID: conn.WorkspaceID, OccurredAt: m.OccurredAt}
	ctx = logger.Enrich(ctx, "workspace_id", conn.WorkspaceID, "connection_id", conn.ID)
	log := logger.From(ctx)
	log.Debug("inbound message",
		"provider_message_id", m.ProviderMessageID,
		"occurred_at", m.OccurredAt,
		"text_len", len(m.Text),
	)

	if m.FromMe {
		res.Ignored = "from_me"
		return res, nil
	}
	seenKey := conn.ID + ":" + m.ProviderMessageID
	if in.Seen != nil {
		if _, dup := in.Seen.Get(seenKey); dup {
			res.Ignored = "duplicate"
			return res, nil
		}
	}

	contact, err := in.Contacts.FindByPhone(ctx, conn.WorkspaceID, m.Phone)
	if errors.Is(err, contacts.ErrNotFound) {
		contact, err = in.Contacts.Create(ctx, contacts.Contact{WorkspaceID: conn.WorkspaceID, Name: m.Name, Phone: m.Phone})
	}
	if err != nil {
		return Result{}, fmt.Errorf("contact: %w", err)
	}
	res.ContactID = contact.ID

	conv, created, err := in.Conversations.FindOrCreateOpen(ctx, conn.WorkspaceID, contact.ID, conn.ID, conn.DefaultQueueID)
	if err != nil {
		return Result{}, fmt.Errorf("conversation: %w", err)
	}
	res.ConversationID = conv.ID
	res.ConversationCreated = created

	if in.Seen != nil {
		in.Seen.Set(seenKey, struct{}{}, in.SeenTTL)
	}

	if conn.DefaultPipelineID != nil && in.Cards != nil {
		convID := conv.ID
		r, err := in.Cards.ResolveOrCreateCard(ctx, pipeline.ResolveRequest{
			WorkspaceID:    conn.WorkspaceID,
			ContactID:      contact.ID,
			ConversationID: &convID,
			PipelineID:     conn.DefaultPipelineID,
		})
		if err != nil {
			log.Warn("card resolution skipped", "conversation_id", conv.ID, "err", err)
		} else {
			res.CardID = r.Card.ID
			res.CardAction = r.Action
		}
	}

	if in.Distributor != nil && conv.AssignedUserID == nil {
		d, _, err := in.Distributor.Distribute(ctx, conv)
		if err != nil {
			log.Warn("distribution failed", "conversation_id", conv.ID, "err", err)
		} else {
			res.Distribution = &d
		}
	}
	return res, nil
}
