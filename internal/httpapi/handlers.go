package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"crm-platform/internal/audit"
	"crm-platform/internal/auth"
	"crm-platform/internal/cache"
	"crm-platform/internal/conversations"
	"crm-platform/internal/pipeline"
	"crm-platform/internal/rbac"
	"crm-platform/internal/realtime"
	"crm-platform/internal/tags"
	"crm-platform/pkg/logger"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse input, call internal services, return JSON.
type Handlers struct {
	Auth          *auth.Manager
	Cards         *pipeline.CardResolver
	Conversations *conversations.Service
	Tags          *tags.Service
	Users         *cache.UserDirectory
	Realtime      realtime.Subscriber
	Audit         *audit.Service
}

// caller is the authenticated identity of a /v1 request.
func caller(c *gin.Context) (auth.Identity, bool) {
	id, err := auth.IdentityFrom(c.Request.Context())
	if err != nil || id.WorkspaceID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
		return auth.Identity{}, false
	}
	return id, true
}

func actor(c *gin.Context, id auth.Identity) audit.Actor {
	return audit.Actor{UserID: id.UserID, Role: id.Role, IP: c.ClientIP()}
}

// writeError maps domain errors to status codes. Unknown errors are logged
// and reported without detail.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, pipeline.ErrNotFound),
		errors.Is(err, conversations.ErrNotFound),
		errors.Is(err, tags.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, pipeline.ErrInvalidArgument),
		errors.Is(err, pipeline.ErrInvalidContact),
		errors.Is(err, conversations.ErrInvalidArgument),
		errors.Is(err, tags.ErrInvalidArgument),
		errors.Is(err, cache.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, pipeline.ErrNoPipeline),
		errors.Is(err, pipeline.ErrNoColumn):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, pipeline.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, pipeline.ErrLockTimeout):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		logger.FromGin(c).Error("request failed", "err", err)
		c.AbortWithStatusJSON(status, gin.H{"error": "internal error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func notConfigured(c *gin.Context, what string) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": what + " not configured"})
}

// Convenience middleware bundles.

func RequireWorkspaceAndAnyRole(roles ...string) []gin.HandlerFunc {
	return []gin.HandlerFunc{rbac.RequireWorkspace(), rbac.RequireAnyRole(roles...)}
}
