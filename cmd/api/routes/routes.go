package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/DEEPML1818/dsoc/cmd/api/container"
	"github.com/DEEPML1818/dsoc/cmd/api/handlers"
	"github.com/DEEPML1818/dsoc/cmd/api/middleware"
	"github.com/DEEPML1818/dsoc/common/models"
)

// RegisterAuthRoutes registers wallet sign-in routes
func RegisterAuthRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewAuthHandler(c)

	auth := e.Group("/api/auth")
	{
		auth.POST("/nonce", h.Nonce)   // POST /api/auth/nonce
		auth.POST("/verify", h.Verify) // POST /api/auth/verify
	}
}

// RegisterUserRoutes registers user and certifier routes
func RegisterUserRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewUserHandler(c)

	users := e.Group("/api/users")
	{
		users.POST("", h.Register, middleware.RequireAuth())                  // POST /api/users
		users.GET("/:address", h.Get)                                         // GET /api/users/{address}
		users.PATCH("/:address/role", h.UpdateRole, middleware.RequireAuth()) // PATCH /api/users/{address}/role
	}

	certifiers := e.Group("/api/certifiers")
	{
		certifiers.GET("", h.ListCertifiers)                               // GET /api/certifiers
		certifiers.POST("", h.RegisterCertifier, middleware.RequireAuth()) // POST /api/certifiers
		certifiers.GET("/:address", h.GetCertifier)                        // GET /api/certifiers/{address}
	}
}

// RegisterIncidentReportRoutes registers incident report routes
func RegisterIncidentReportRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewIncidentReportHandler(c)

	reports := e.Group("/api/incident-reports")
	{
		reports.GET("", h.List)                                           // GET /api/incident-reports?reporter=0x...
		reports.POST("", h.Create, middleware.RequireAuth())              // POST /api/incident-reports
		reports.GET("/:id", h.Get)                                        // GET /api/incident-reports/{id}
		reports.PATCH("/:id", h.Patch, middleware.RequireAuth())          // PATCH /api/incident-reports/{id}
		reports.POST("/:id/analyze", h.Analyze, middleware.RequireAuth()) // POST /api/incident-reports/{id}/analyze
	}
}

// RegisterTicketRoutes registers the ticket workflow and shortlist routes
func RegisterTicketRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewTicketHandler(c)

	analyst := middleware.RequireRole(models.RoleAnalyst)
	certifier := middleware.RequireRole(models.RoleCertifier)

	tickets := e.Group("/api/tickets")
	{
		tickets.GET("", h.List)                              // GET /api/tickets?status=open
		tickets.POST("", h.Create, middleware.RequireAuth()) // POST /api/tickets
		tickets.GET("/pending-analysis", h.PendingAnalysis)  // GET /api/tickets/pending-analysis
		tickets.GET("/client/:address", h.ListByClient)      // GET /api/tickets/client/{address}
		tickets.GET("/:id", h.Get)                           // GET /api/tickets/{id}

		tickets.POST("/:id/assign-analyst", h.AssignAnalyst, analyst)       // POST /api/tickets/{id}/assign-analyst
		tickets.POST("/:id/submit-report", h.SubmitReport, analyst)         // POST /api/tickets/{id}/submit-report
		tickets.POST("/:id/assign-certifier", h.AssignCertifier, certifier) // POST /api/tickets/{id}/assign-certifier
		tickets.POST("/:id/validate", h.Validate, certifier)                // POST /api/tickets/{id}/validate
		tickets.POST("/:id/complete", h.Complete, middleware.RequireAuth()) // POST /api/tickets/{id}/complete

		tickets.GET("/:id/shortlist", h.ListShortlist)                                         // GET /api/tickets/{id}/shortlist
		tickets.POST("/:id/shortlist", h.AddShortlist, analyst)                                // POST /api/tickets/{id}/shortlist
		tickets.DELETE("/:id/shortlist/:address", h.RemoveShortlist, middleware.RequireAuth()) // DELETE /api/tickets/{id}/shortlist/{address}
	}
}

// RegisterTokenRoutes registers CLT and staking routes
func RegisterTokenRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewTokenHandler(c)

	tokens := e.Group("/api/tokens")
	{
		tokens.POST("/mint", h.Mint, middleware.RequireAuth())       // POST /api/tokens/mint
		tokens.POST("/approve", h.Approve, middleware.RequireAuth()) // POST /api/tokens/approve
		tokens.GET("/balance/:address", h.Balance)                   // GET /api/tokens/balance/{address}
	}

	staking := e.Group("/api/staking")
	{
		staking.POST("/join", h.JoinPool, middleware.RequireAuth())         // POST /api/staking/join
		staking.POST("/claim", h.ClaimPoolReward, middleware.RequireAuth()) // POST /api/staking/claim
		staking.GET("/:address", h.Positions)                               // GET /api/staking/{address}
	}
}

// RegisterAIRoutes registers the security assistant routes
func RegisterAIRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewAIHandler(c)

	assistant := e.Group("/api/ai", middleware.RequireAuth())
	{
		assistant.POST("/analyze", h.Analyze)          // POST /api/ai/analyze
		assistant.POST("/chat", h.Chat)                // POST /api/ai/chat
		assistant.POST("/audit-report", h.AuditReport) // POST /api/ai/audit-report
	}
}
