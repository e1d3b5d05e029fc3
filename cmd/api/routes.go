package main

import (
	"github.com/gin-gonic/gin"

	"crm-platform/internal/config"
	"crm-platform/internal/httpapi"
	"crm-platform/internal/metrics"
	"crm-platform/internal/rbac"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers delegate to internal modules.
func registerRoutes(r *gin.Engine, cfg config.Config, deps dependencies, authMW gin.HandlerFunc) {
	h := deps.handlers

	// public
	r.GET("/healthz", httpapi.Healthz(deps.health))
	r.GET("/metrics", metrics.Handler())

	// Provider adapters post normalized messages here, guarded by X-Webhook-Secret.
	r.POST("/webhooks/connections/:connection_id/messages", deps.webhook.HandleMessage)

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/refresh", h.Refresh)
		if !cfg.IsProduction() {
			authGroup.POST("/login", h.Login)
		}
	}

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW, rbac.RequireWorkspace())
	{
		v1.GET("/me", h.Me)

		cards := v1.Group("/pipeline-cards")
		{
			cards.POST("/resolve", h.ResolveCard)
			cards.POST("/:card_id/move", h.MoveCard)
			cards.POST("/:card_id/close", append(httpapi.RequireWorkspaceAndAnyRole(rbac.RoleAdmin), h.CloseCard)...)
		}

		pipelines := v1.Group("/pipelines")
		{
			pipelines.GET("/:pipeline_id/summary", h.PipelineSummary)
			pipelines.GET("/:pipeline_id/events", h.PipelineEvents)
		}

		convs := v1.Group("/conversations")
		{
			convs.PATCH("/:conversation_id/assignment", h.PatchAssignment)
			convs.GET("/:conversation_id/tags", h.ListConversationTags)
			convs.POST("/:conversation_id/tags/:tag_id", h.AddConversationTag)
			convs.DELETE("/:conversation_id/tags/:tag_id", h.RemoveConversationTag)
		}

		v1.GET("/workspace-users", h.WorkspaceUsers)
		v1.POST("/workspace-users/refresh", append(httpapi.RequireWorkspaceAndAnyRole(rbac.RoleAdmin), h.RefreshWorkspaceUsers)...)
	}
}
