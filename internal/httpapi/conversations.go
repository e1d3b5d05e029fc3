package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"crm-platform/internal/audit"
	"crm-platform/internal/conversations"
)

type assignmentRequest struct {
	QueueID        conversations.OptionalString `json:"queue_id"`
	AssignedUserID conversations.OptionalString `json:"assigned_user_id"`
	// ForceHistory writes history rows even when the values did not change.
	ForceHistory bool `json:"force_history"`
}

func (h Handlers) PatchAssignment(c *gin.Context) {
	if h.Conversations == nil {
		notConfigured(c, "conversations")
		return
	}
	id, ok := caller(c)
	if !ok {
		return
	}
	var req assignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	ctx := c.Request.Context()
	req.QueueID = req.QueueID.Normalized()
	req.AssignedUserID = req.AssignedUserID.Normalized()

	if h.Users != nil && req.AssignedUserID.Set && req.AssignedUserID.Value != nil {
		_, found, err := h.Users.Get(ctx, id.WorkspaceID, *req.AssignedUserID.Value)
		if err != nil {
			writeError(c, err)
			return
		}
		if !found {
			c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "assigned user is not a workspace member"})
			return
		}
	}

	patch := conversations.AssignmentPatch{QueueID: req.QueueID, AssignedUserID: req.AssignedUserID}
	conv, err := h.Conversations.PatchAssignment(ctx, id.WorkspaceID, c.Param("conversation_id"), patch,
		conversations.PatchOptions{ForceHistory: req.ForceHistory, ChangedBy: id.UserID})
	if err != nil {
		writeError(c, err)
		return
	}
	h.Audit.Record(ctx, id.WorkspaceID, audit.EventAssignmentPatched, actor(c, id),
		audit.Event{ConversationID: conv.ID}, req)
	c.JSON(http.StatusOK, conv)
}

func (h Handlers) AddConversationTag(c *gin.Context) {
	if h.Tags == nil {
		notConfigured(c, "tags")
		return
	}
	id, ok := caller(c)
	if !ok {
		return
	}
	convID := c.Param("conversation_id")
	tag, err := h.Tags.AddToConversation(c.Request.Context(), id.WorkspaceID, convID, c.Param("tag_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	h.Audit.Record(c.Request.Context(), id.WorkspaceID, audit.EventConversationTagged, actor(c, id),
		audit.Event{ConversationID: convID, Message: tag.Name}, nil)
	c.JSON(http.StatusOK, tag)
}

func (h Handlers) RemoveConversationTag(c *gin.Context) {
	if h.Tags == nil {
		notConfigured(c, "tags")
		return
	}
	id, ok := caller(c)
	if !ok {
		return
	}
	convID := c.Param("conversation_id")
	if err := h.Tags.RemoveFromConversation(c.Request.Context(), id.WorkspaceID, convID, c.Param("tag_id")); err != nil {
		writeError(c, err)
		return
	}
	h.Audit.Record(c.Request.Context(), id.WorkspaceID, audit.EventConversationUntag, actor(c, id),
		audit.Event{ConversationID: convID, Message: c.Param("tag_id")}, nil)
	c.Status(http.StatusNoContent)
}

func (h Handlers) ListConversationTags(c *gin.Context) {
	if h.Tags == nil {
		notConfigured(c, "tags")
		return
	}
	id, ok := caller(c)
	if !ok {
		return
	}
	list, err := h.Tags.ListForConversation(c.Request.Context(), id.WorkspaceID, c.Param("conversation_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": list})
}
