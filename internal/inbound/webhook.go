package inbound

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"crm-platform/pkg/logger"
)

const SecretHeader = "X-Webhook-Secret"

// WebhookHandler receives normalized provider messages for one connection.
// The connection id in the path decides the workspace.
type WebhookHandler struct {
	Intake *Intake
	Secret string
	Now    func() time.Time
}

func (h WebhookHandler) HandleMessage(c *gin.Context) {
	log := logger.FromGin(c)
	if h.Now == nil {
		h.Now = time.Now
	}
	if h.Intake == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "intake not configured"})
		return
	}
	if h.Secret != "" && subtle.ConstantTimeCompare([]byte(c.GetHeader(SecretHeader)), []byte(h.Secret)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook secret"})
		return
	}

	var p WebhookPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	msg := p.ToMessage(c.Param("connection_id"), h.Now())

	res, err := h.Intake.Handle(c.Request.Context(), msg)
	switch {
	case errors.Is(err, ErrInvalidMessage):
		log.Warn("inbound message rejected", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, ErrUnknownConnection):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown connection"})
		return
	case err != nil:
		log.Error("inbound message failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "intake failed, retry later"})
		return
	}
	c.JSON(http.StatusOK, res)
}
