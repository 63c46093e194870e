package main

import (
	"database/sql"
	"time"

	"loanvoice-platform/internal/httpapi"
	"loanvoice-platform/internal/hub"
	"loanvoice-platform/internal/rbac"
	"loanvoice-platform/pkg/utils"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h *hub.Hub, db *sql.DB, authMW gin.HandlerFunc, api httpapi.Handlers) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if db != nil {
			if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
				c.JSON(503, gin.H{"status": "degraded", "db": "unreachable"})
				return
			}
		}
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Realtime channel. Consoles and the voice agent both attach here.
	// NOTE: agent connections should carry a signed token once the agent
	// backend supports it; today the channel trusts the network boundary.
	r.GET("/ws", func(c *gin.Context) {
		h.HandleWS(c.Writer, c.Request)
	})

	// Token issuance is the only unauthenticated /v1 route.
	r.POST("/v1/auth/login", api.Login)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		// Operator actions: mutate the book or place calls.
		v1.POST("/upload-csv", rbac.RequireAnyRole(rbac.RoleOperator), api.UploadCSV)
		v1.POST("/dispatch-call", rbac.RequireAnyRole(rbac.RoleOperator), api.DispatchCall)

		// Read-only surfaces.
		v1.GET("/transcripts/:phone", rbac.RequireAnyRole(rbac.RoleOperator, rbac.RoleViewer), api.GetTranscript)

		reports := v1.Group("/reports")
		reports.Use(rbac.RequireAnyRole(rbac.RoleOperator, rbac.RoleViewer))
		{
			reports.GET("/borrowers/:phone", api.GetBorrowerReport)
			reports.GET("/campaign", api.GetCampaignReport)
		}
	}
}
