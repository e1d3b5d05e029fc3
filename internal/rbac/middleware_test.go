package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"crm-platform/internal/auth"

	"github.com/gin-gonic/gin"
)

func serveWithIdentity(t *testing.T, workspaceID, role string, allowed ...string) int {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), "u", workspaceID, role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}, RequireWorkspace(), RequireAnyRole(allowed...), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	return w.Code
}

func TestRequireAnyRole_MasterBypasses(t *testing.T) {
	if code := serveWithIdentity(t, "w", RoleMaster, RoleAdmin); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAnyRole_UserDeniedOnAdminRoute(t *testing.T) {
	if code := serveWithIdentity(t, "w", RoleUser, RoleAdmin); code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestRequireAnyRole_WorkspaceRequired(t *testing.T) {
	if code := serveWithIdentity(t, "", RoleAdmin, RoleAdmin); code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestCanManagePipelines(t *testing.T) {
	if !CanManagePipelines(RoleAdmin) || !CanManagePipelines(RoleMaster) {
		t.Fatalf("admin and master manage pipelines")
	}
	if CanManagePipelines(RoleUser) {
		t.Fatalf("user must not manage pipelines")
	}
}
