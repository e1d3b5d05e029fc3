package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"crm-platform/internal/audit"
	"crm-platform/internal/pipeline"
	"crm-platform/internal/rbac"
	"crm-platform/internal/realtime"
	"crm-platform/pkg/logger"
)

type resolveCardRequest struct {
	ContactID      string  `json:"contact_id" binding:"required"`
	ConversationID *string `json:"conversation_id"`
	PipelineID     *string `json:"pipeline_id"`
}

func (h Handlers) ResolveCard(c *gin.Context) {
	if h.Cards == nil {
		notConfigured(c, "pipeline")
		return
	}
	id, ok := caller(c)
	if !ok {
		return
	}
	var req resolveCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "contact_id required"})
		return
	}
	res, err := h.Cards.ResolveOrCreateCard(c.Request.Context(), pipeline.ResolveRequest{
		WorkspaceID:    id.WorkspaceID,
		ContactID:      req.ContactID,
		ConversationID: req.ConversationID,
		PipelineID:     req.PipelineID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	h.Audit.Record(c.Request.Context(), id.WorkspaceID, audit.EventCardResolved, actor(c, id),
		audit.Event{CardID: res.Card.ID, Message: string(res.Action)}, req)

	status := http.StatusOK
	if res.Action == pipeline.ActionCreated {
		status = http.StatusCreated
	}
	c.JSON(status, res)
}

type moveCardRequest struct {
	ColumnID string `json:"column_id" binding:"required"`
}

// MoveCard lets admins move any card; users only their own or unowned cards.
func (h Handlers) MoveCard(c *gin.Context) {
	if h.Cards == nil {
		notConfigured(c, "pipeline")
		return
	}
	id, ok := caller(c)
	if !ok {
		return
	}
	var req moveCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "column_id required"})
		return
	}
	cardID := c.Param("card_id")
	ctx := c.Request.Context()

	if !rbac.CanManagePipelines(id.Role) {
		card, err := h.Cards.Card(ctx, id.WorkspaceID, cardID)
		if err != nil {
			writeError(c, err)
			return
		}
		if card.ResponsibleUserID != nil && *card.ResponsibleUserID != id.UserID {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "card belongs to another user"})
			return
		}
	}

	card, err := h.Cards.MoveCard(ctx, id.WorkspaceID, cardID, req.ColumnID)
	if err != nil {
		writeError(c, err)
		return
	}
	h.Audit.Record(ctx, id.WorkspaceID, audit.EventCardMoved, actor(c, id), audit.Event{CardID: card.ID}, req)
	c.JSON(http.StatusOK, card)
}

type closeCardRequest struct {
	Status pipeline.Status `json:"status" binding:"required,oneof=ganho perdido"`
}

func (h Handlers) CloseCard(c *gin.Context) {
	if h.Cards == nil {
		notConfigured(c, "pipeline")
		return
	}
	id, ok := caller(c)
	if !ok {
		return
	}
	var req closeCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "status must be ganho or perdido"})
		return
	}
	card, err := h.Cards.CloseCard(c.Request.Context(), id.WorkspaceID, c.Param("card_id"), req.Status)
	if err != nil {
		writeError(c, err)
		return
	}
	h.Audit.Record(c.Request.Context(), id.WorkspaceID, audit.EventCardClosed, actor(c, id),
		audit.Event{CardID: card.ID, Message: string(card.Status)}, nil)
	c.JSON(http.StatusOK, card)
}

func (h Handlers) PipelineSummary(c *gin.Context) {
	if h.Cards == nil {
		notConfigured(c, "pipeline")
		return
	}
	id, ok := caller(c)
	if !ok {
		return
	}
	sum, err := h.Cards.Summary(c.Request.Context(), id.WorkspaceID, c.Param("pipeline_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// PipelineEvents upgrades to a websocket streaming the board's change events.
func (h Handlers) PipelineEvents(c *gin.Context) {
	if h.Cards == nil || h.Realtime == nil {
		notConfigured(c, "realtime")
		return
	}
	id, ok := caller(c)
	if !ok {
		return
	}
	p, err := h.Cards.Pipeline(c.Request.Context(), id.WorkspaceID, c.Param("pipeline_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	realtime.ServeWS(c, h.Realtime, realtime.PipelineTopic(p.ID), logger.FromGin(c))
}
