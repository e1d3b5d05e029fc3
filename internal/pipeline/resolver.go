package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"crm-platform/internal/contacts"
	"crm-platform/internal/conversations"
	"crm-platform/internal/metrics"
	"crm-platform/internal/realtime"
	"crm-platform/pkg/logger"
)

type ContactReader interface {
	Get(ctx context.Context, workspaceID, id string) (contacts.Contact, error)
}

type ConversationReader interface {
	Get(ctx context.Context, workspaceID, id string) (conversations.Conversation, error)
}

// CardResolver owns every card write: resolution, moves and closing.
// Each write is published on the pipeline's realtime topic.
type CardResolver struct {
	repo     Repository
	contacts ContactReader
	convs    ConversationReader
	locker   Locker
	pub      realtime.Publisher
	clock    func() time.Time
	loc      *time.Location
}

type Option func(*CardResolver)

func WithLocker(l Locker) Option { return func(r *CardResolver) { r.locker = l } }

func WithPublisher(p realtime.Publisher) Option { return func(r *CardResolver) { r.pub = p } }

func WithClock(clock func() time.Time) Option { return func(r *CardResolver) { r.clock = clock } }

// WithLocation sets the zone of interaction note timestamps.
func WithLocation(loc *time.Location) Option { return func(r *CardResolver) { r.loc = loc } }

func NewCardResolver(repo Repository, contactsRepo ContactReader, convs ConversationReader, opts ...Option) *CardResolver {
	r := &CardResolver{
		repo:     repo,
		contacts: contactsRepo,
		convs:    convs,
		locker:   NewKeyedMutex(),
		pub:      realtime.NopPublisher{},
		clock:    time.Now,
		loc:      time.FixedZone("BRT", -3*60*60),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// ResolveOrCreateCard returns the single open card of (contact, pipeline),
// appending an interaction note to it, or creates it in the first column.
func (r *CardResolver) ResolveOrCreateCard(ctx context.Context, req ResolveRequest) (Resolution, error) {
	res, err := r.resolve(ctx, req)
	if err != nil {
		metrics.CardResolutions.WithLabelValues("failed").Inc()
		return Resolution{}, err
	}
	metrics.CardResolutions.WithLabelValues(string(res.Action)).Inc()
	return res, nil
}

func (r *CardResolver) resolve(ctx context.Context, req ResolveRequest) (Resolution, error) {
	if req.WorkspaceID == "" || req.ContactID == "" {
		return Resolution{}, ErrInvalidArgument
	}

	contact, err := r.contacts.Get(ctx, req.WorkspaceID, req.ContactID)
	if err != nil {
		if errors.Is(err, contacts.ErrNotFound) {
			return Resolution{}, fmt.Errorf("%w: contact %s", ErrNotFound, req.ContactID)
		}
		return Resolution{}, fmt.Errorf("load contact: %w", err)
	}
	if contact.Identifier() == "" {
		return Resolution{}, ErrInvalidContact
	}

	p, err := r.targetPipeline(ctx, req.WorkspaceID, req.PipelineID)
	if err != nil {
		return Resolution{}, err
	}

	var assignee *string
	if req.ConversationID != nil && *req.ConversationID != "" {
		conv, err := r.convs.Get(ctx, req.WorkspaceID, *req.ConversationID)
		if err != nil {
			if errors.Is(err, conversations.ErrNotFound) {
				return Resolution{}, fmt.Errorf("%w: conversation %s", ErrNotFound, *req.ConversationID)
			}
			return Resolution{}, fmt.Errorf("load conversation: %w", err)
		}
		assignee = cloneRef(conv.AssignedUserID)
	} else {
		req.ConversationID = nil
	}

	unlock, err := r.locker.Lock(ctx, cardLockKey(p.ID, contact.ID))
	if err != nil {
		return Resolution{}, fmt.Errorf("lock card: %w", err)
	}
	defer unlock()

	existing, err := r.repo.FindOpenCard(ctx, p.ID, contact.ID)
	switch {
	case err == nil:
		card, err := r.merge(ctx, existing, req.ConversationID, assignee)
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{Card: card, Action: ActionUpdated}, nil
	case !errors.Is(err, ErrNotFound):
		return Resolution{}, fmt.Errorf("find open card: %w", err)
	}

	cols, err := r.repo.ListColumns(ctx, p.ID)
	if err != nil {
		return Resolution{}, fmt.Errorf("list columns: %w", err)
	}
	if len(cols) == 0 {
		return Resolution{}, ErrNoColumn
	}

	now := r.clock().UTC()
	card, err := r.repo.CreateCard(ctx, Card{
		WorkspaceID:       req.WorkspaceID,
		PipelineID:        p.ID,
		ColumnID:          cols[0].ID,
		ContactID:         contact.ID,
		ConversationID:    cloneRef(req.ConversationID),
		ResponsibleUserID: assignee,
		Status:            StatusOpen,
		Value:             decimal.Zero,
		Title:             contact.DisplayName(),
		Tags:              []string{},
		CreatedAt:         now,
		UpdatedAt:         now,
	})
	if errors.Is(err, ErrOpenCardExists) {
		// Another process won the insert; its card is now the source of truth.
		metrics.CardResolutionConflicts.Inc()
		logger.From(ctx).Info("open card created concurrently, merging",
			"pipeline_id", p.ID, "contact_id", contact.ID)
		winner, ferr := r.repo.FindOpenCard(ctx, p.ID, contact.ID)
		if ferr != nil {
			return Resolution{}, fmt.Errorf("find open card after conflict: %w", ferr)
		}
		merged, merr := r.merge(ctx, winner, req.ConversationID, assignee)
		if merr != nil {
			return Resolution{}, merr
		}
		return Resolution{Card: merged, Action: ActionUpdated}, nil
	}
	if err != nil {
		return Resolution{}, fmt.Errorf("create card: %w", err)
	}

	r.publish(ctx, realtime.EventInsert, card, nil)
	return Resolution{Card: card, Action: ActionCreated}, nil
}

func (r *CardResolver) targetPipeline(ctx context.Context, workspaceID string, pipelineID *string) (Pipeline, error) {
	var (
		p   Pipeline
		err error
	)
	if pipelineID != nil && *pipelineID != "" {
		p, err = r.repo.GetPipeline(ctx, workspaceID, *pipelineID)
	} else {
		p, err = r.repo.FirstActivePipeline(ctx, workspaceID)
	}
	if errors.Is(err, ErrNotFound) {
		return Pipeline{}, ErrNoPipeline
	}
	if err != nil {
		return Pipeline{}, fmt.Errorf("load pipeline: %w", err)
	}
	return p, nil
}

func (r *CardResolver) merge(ctx context.Context, card Card, conversationID, assignee *string) (Card, error) {
	old := card.clone()
	now := r.clock()

	card.Description = appendNote(card.Description, interactionNote(now.In(r.loc), conversationID))
	if assignee != nil {
		card.ResponsibleUserID = cloneRef(assignee)
	}
	if conversationID != nil {
		card.ConversationID = cloneRef(conversationID)
	}
	card.UpdatedAt = now.UTC()

	updated, err := r.repo.UpdateCard(ctx, card)
	if err != nil {
		return Card{}, fmt.Errorf("update card: %w", err)
	}
	r.publish(ctx, realtime.EventUpdate, updated, &old)
	return updated, nil
}

func interactionNote(at time.Time, conversationID *string) string {
	note := "[" + at.Format("02/01/2006 15:04") + "] Nova interação"
	if conversationID != nil {
		note += " - conversa " + *conversationID
	}
	return note
}

// appendNote keeps prior text and separates notes by a blank line.
func appendNote(description, note string) string {
	prior := strings.TrimRight(description, " \n")
	if prior == "" {
		return note
	}
	return prior + "\n\n" + note
}

// MoveCard places a card in another column of its own pipeline.
func (r *CardResolver) MoveCard(ctx context.Context, workspaceID, cardID, columnID string) (Card, error) {
	if workspaceID == "" || cardID == "" || columnID == "" {
		return Card{}, ErrInvalidArgument
	}
	return r.mutateCard(ctx, workspaceID, cardID, func(card *Card) (bool, error) {
		if card.ColumnID == columnID {
			return false, nil
		}
		if _, err := r.repo.GetColumn(ctx, card.PipelineID, columnID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return false, ErrNoColumn
			}
			return false, err
		}
		card.ColumnID = columnID
		return true, nil
	})
}

// CloseCard moves an open card to ganho or perdido. Closed cards never reopen here.
func (r *CardResolver) CloseCard(ctx context.Context, workspaceID, cardID string, status Status) (Card, error) {
	if workspaceID == "" || cardID == "" || !status.Closed() {
		return Card{}, ErrInvalidArgument
	}
	return r.mutateCard(ctx, workspaceID, cardID, func(card *Card) (bool, error) {
		if card.Status != StatusOpen {
			return false, ErrInvalidTransition
		}
		card.Status = status
		return true, nil
	})
}

// mutateCard re-reads the card under its (pipeline, contact) lock so it never
// interleaves with a resolution of the same pair.
func (r *CardResolver) mutateCard(ctx context.Context, workspaceID, cardID string, fn func(*Card) (bool, error)) (Card, error) {
	card, err := r.repo.GetCard(ctx, workspaceID, cardID)
	if err != nil {
		return Card{}, err
	}
	unlock, err := r.locker.Lock(ctx, cardLockKey(card.PipelineID, card.ContactID))
	if err != nil {
		return Card{}, fmt.Errorf("lock card: %w", err)
	}
	defer unlock()

	card, err = r.repo.GetCard(ctx, workspaceID, cardID)
	if err != nil {
		return Card{}, err
	}
	old := card.clone()
	changed, err := fn(&card)
	if err != nil {
		return Card{}, err
	}
	if !changed {
		return card, nil
	}
	card.UpdatedAt = r.clock().UTC()
	updated, err := r.repo.UpdateCard(ctx, card)
	if err != nil {
		return Card{}, fmt.Errorf("update card: %w", err)
	}
	r.publish(ctx, realtime.EventUpdate, updated, &old)
	return updated, nil
}

// publish is best-effort: the card write already committed.
func (r *CardResolver) publish(ctx context.Context, typ realtime.EventType, card Card, old *Card) {
	var oldRow any
	if old != nil {
		oldRow = *old
	}
	ev, err := realtime.NewChangeEvent(typ, realtime.TableCards, realtime.PipelineTopic(card.PipelineID), card, oldRow)
	if err == nil {
		err = r.pub.Publish(context.WithoutCancel(ctx), ev)
	}
	if err != nil {
		logger.From(ctx).Warn("card change publish failed", "card_id", card.ID, "type", typ, "err", err)
	}
}

// Summary aggregates a board: open cards per column plus won and lost totals.
func (r *CardResolver) Summary(ctx context.Context, workspaceID, pipelineID string) (BoardSummary, error) {
	if workspaceID == "" || pipelineID == "" {
		return BoardSummary{}, ErrInvalidArgument
	}
	if _, err := r.repo.GetPipeline(ctx, workspaceID, pipelineID); err != nil {
		return BoardSummary{}, err
	}
	cols, err := r.repo.ListColumns(ctx, pipelineID)
	if err != nil {
		return BoardSummary{}, err
	}
	cards, err := r.repo.ListCards(ctx, pipelineID)
	if err != nil {
		return BoardSummary{}, err
	}

	out := BoardSummary{
		PipelineID: pipelineID,
		Columns:    make([]ColumnSummary, len(cols)),
		OpenValue:  decimal.Zero,
		WonValue:   decimal.Zero,
		LostValue:  decimal.Zero,
	}
	idx := make(map[string]int, len(cols))
	for i, c := range cols {
		out.Columns[i] = ColumnSummary{ColumnID: c.ID, Name: c.Name, OpenValue: decimal.Zero}
		idx[c.ID] = i
	}
	for _, c := range cards {
		switch c.Status {
		case StatusOpen:
			out.OpenCards++
			out.OpenValue = out.OpenValue.Add(c.Value)
			if i, ok := idx[c.ColumnID]; ok {
				out.Columns[i].OpenCards++
				out.Columns[i].OpenValue = out.Columns[i].OpenValue.Add(c.Value)
			}
		case StatusWon:
			out.WonCards++
			out.WonValue = out.WonValue.Add(c.Value)
		case StatusLost:
			out.LostCards++
			out.LostValue = out.LostValue.Add(c.Value)
		}
	}
	return out, nil
}

// Pipeline returns a pipeline of the workspace.
func (r *CardResolver) Pipeline(ctx context.Context, workspaceID, pipelineID string) (Pipeline, error) {
	if workspaceID == "" || pipelineID == "" {
		return Pipeline{}, ErrInvalidArgument
	}
	return r.repo.GetPipeline(ctx, workspaceID, pipelineID)
}

func (r *CardResolver) Card(ctx context.Context, workspaceID, cardID string) (Card, error) {
	if workspaceID == "" || cardID == "" {
		return Card{}, ErrInvalidArgument
	}
	return r.repo.GetCard(ctx, workspaceID, cardID)
}
