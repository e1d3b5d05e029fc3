package tags

import (
	"context"
	"errors"
	"fmt"

	"crm-platform/internal/conversations"
	"crm-platform/internal/history"
	"crm-platform/pkg/logger"
)

type ConversationReader interface {
	Get(ctx context.Context, workspaceID, id string) (conversations.Conversation, error)
}

type Service struct {
	repo  Repository
	convs ConversationReader
}

func NewService(repo Repository, convs ConversationReader) *Service {
	return &Service{repo: repo, convs: convs}
}

// AddToConversation tags a conversation and then, best-effort, its contact.
// Re-adding an existing tag is a no-op on both sides.
func (s *Service) AddToConversation(ctx context.Context, workspaceID, conversationID, tagID string) (Tag, error) {
	conv, tag, err := s.load(ctx, workspaceID, conversationID, tagID)
	if err != nil {
		return Tag{}, err
	}
	if _, err := s.repo.AddConversationTag(ctx, workspaceID, conversationID, tagID); err != nil {
		return Tag{}, fmt.Errorf("add conversation tag: %w", err)
	}

	var box history.Outbox
	box.Add(history.KindContactTag, func(ctx context.Context) error {
		_, err := s.repo.AddContactTag(ctx, workspaceID, conv.ContactID, tagID)
		return err
	})
	if errs := box.Flush(ctx); len(errs) > 0 {
		logger.From(ctx).Warn("contact tag not propagated",
			"conversation_id", conversationID, "contact_id", conv.ContactID, "tag_id", tagID)
	}
	return tag, nil
}

// RemoveFromConversation unlinks the tag from the conversation only.
func (s *Service) RemoveFromConversation(ctx context.Context, workspaceID, conversationID, tagID string) error {
	if _, _, err := s.load(ctx, workspaceID, conversationID, tagID); err != nil {
		return err
	}
	if _, err := s.repo.RemoveConversationTag(ctx, workspaceID, conversationID, tagID); err != nil {
		return fmt.Errorf("remove conversation tag: %w", err)
	}
	return nil
}

func (s *Service) ListForConversation(ctx context.Context, workspaceID, conversationID string) ([]Tag, error) {
	if workspaceID == "" || conversationID == "" {
		return nil, ErrInvalidArgument
	}
	return s.repo.ListConversationTags(ctx, workspaceID, conversationID)
}

func (s *Service) ListForContact(ctx context.Context, workspaceID, contactID string) ([]Tag, error) {
	if workspaceID == "" || contactID == "" {
		return nil, ErrInvalidArgument
	}
	return s.repo.ListContactTags(ctx, workspaceID, contactID)
}

func (s *Service) load(ctx context.Context, workspaceID, conversationID, tagID string) (conversations.Conversation, Tag, error) {
	if workspaceID == "" || conversationID == "" || tagID == "" {
		return conversations.Conversation{}, Tag{}, ErrInvalidArgument
	}
	conv, err := s.convs.Get(ctx, workspaceID, conversationID)
	if err != nil {
		if errors.Is(err, conversations.ErrNotFound) {
			return conversations.Conversation{}, Tag{}, fmt.Errorf("%w: conversation %s", ErrNotFound, conversationID)
		}
		return conversations.Conversation{}, Tag{}, err
	}
	tag, err := s.repo.GetTag(ctx, workspaceID, tagID)
	if err != nil {
		return conversations.Conversation{}, Tag{}, err
	}
	return conv, tag, nil
}
