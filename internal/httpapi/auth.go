package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"crm-platform/internal/auth"
	"crm-platform/internal/rbac"
)

type loginRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	WorkspaceID string `json:"workspace_id" binding:"required"`
	Role        string `json:"role" binding:"required,oneof=master admin user"`
}

// Login issues a token pair without checking credentials.
// Only mounted outside production; real sign-in lives in the identity provider.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		notConfigured(c, "auth")
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, workspace_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), auth.Identity{UserID: req.UserID, WorkspaceID: req.WorkspaceID, Role: req.Role})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Refresh trades a refresh token for a new pair. The role is re-read from the
// workspace user list, so demoted or deactivated users lose access here.
func (h Handlers) Refresh(c *gin.Context) {
	if h.Auth == nil || h.Users == nil {
		notConfigured(c, "auth")
		return
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "refresh_token required"})
		return
	}
	now := time.Now()
	claims, err := h.Auth.Verify(req.RefreshToken, auth.TokenTypeRefresh, now)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	u, ok, err := h.Users.Get(c.Request.Context(), claims.WorkspaceID, claims.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	if !ok || !u.Active {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user inactive"})
		return
	}
	role := u.Role
	if role == "" {
		role = rbac.RoleUser
	}
	pair, err := h.Auth.IssuePair(now, auth.Identity{UserID: u.ID, WorkspaceID: claims.WorkspaceID, Role: role})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (h Handlers) Me(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": id.UserID, "workspace_id": id.WorkspaceID, "role": id.Role})
}
