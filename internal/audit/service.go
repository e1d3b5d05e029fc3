package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"crm-platform/pkg/logger"
)

// Repository is append-only. There is no Update or Delete.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.WorkspaceID == "" || e.Type == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// Record appends an event for actor and logs instead of returning on failure.
// details is marshaled into Metadata; nil leaves it empty.
func (s *Service) Record(ctx context.Context, workspaceID string, typ EventType, actor Actor, e Event, details any) {
	if s == nil {
		return
	}
	e.WorkspaceID = workspaceID
	e.Type = typ
	e.ActorUserID = actor.UserID
	e.ActorRole = actor.Role
	e.IPAddress = actor.IP
	if details != nil {
		if b, err := json.Marshal(details); err == nil {
			e.Metadata = string(b)
		}
	}
	// The request may already be finished.
	if err := s.Append(context.WithoutCancel(ctx), e); err != nil {
		logger.From(ctx).Warn("audit append failed", "type", typ, "err", err)
	}
}
