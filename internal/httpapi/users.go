package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"crm-platform/internal/cache"
)

// WorkspaceUsers lists the caller's workspace members from the users cache.
// ?active=true drops deactivated members.
func (h Handlers) WorkspaceUsers(c *gin.Context) {
	if h.Users == nil {
		notConfigured(c, "users")
		return
	}
	id, ok := caller(c)
	if !ok {
		return
	}
	users, err := h.Users.List(c.Request.Context(), id.WorkspaceID)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]cache.User, 0, len(users))
	for _, u := range users {
		if c.Query("active") == "true" && !u.Active {
			continue
		}
		out = append(out, u)
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

// RefreshWorkspaceUsers drops the cached user list so the next read reloads it.
func (h Handlers) RefreshWorkspaceUsers(c *gin.Context) {
	if h.Users == nil {
		notConfigured(c, "users")
		return
	}
	id, ok := caller(c)
	if !ok {
		return
	}
	h.Users.Invalidate(id.WorkspaceID)
	c.Status(http.StatusNoContent)
}
