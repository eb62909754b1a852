package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/DEEPML1818/dsoc/cmd/api/container"
	"github.com/DEEPML1818/dsoc/cmd/api/graphql"
	"github.com/DEEPML1818/dsoc/cmd/api/live"
	apimw "github.com/DEEPML1818/dsoc/cmd/api/middleware"
	"github.com/DEEPML1818/dsoc/cmd/api/routes"
	"github.com/DEEPML1818/dsoc/common/bootstrap"
	"github.com/DEEPML1818/dsoc/common/logger"
	commonmw "github.com/DEEPML1818/dsoc/common/middleware"
	"github.com/DEEPML1818/dsoc/common/server"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Bootstrap common components (DB, logger, queue, cache, telemetry)
	components, err := bootstrap.Setup(ctx, "api")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap api: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	// Initialize service container (singleton pattern - all services created once)
	serviceContainer, err := container.NewContainer(ctx, components)
	if err != nil {
		components.Logger.Error("failed to initialize service container", "error", err)
		os.Exit(1)
	}
	defer serviceContainer.Close()

	// Live updates fan ticket events out to connected wallets
	hub := live.NewHub(components.Logger)
	go hub.Run(ctx)
	if components.Queue != nil {
		if err := live.Subscribe(ctx, components.Queue, hub); err != nil {
			components.Logger.Warn("live updates disabled", "error", err)
		}
	}

	// Initialize Echo server
	e := setupEcho()

	// Setup middleware
	setupMiddleware(e, serviceContainer)

	// Setup health check
	setupHealthCheck(e, components)

	// Register all routes
	if err := registerRoutes(e, serviceContainer, hub); err != nil {
		components.Logger.Error("failed to register routes", "error", err)
		os.Exit(1)
	}

	// Start server
	startServer(ctx, e, components)
}

// setupEcho initializes the Echo server with basic configuration
func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	return e
}

// setupMiddleware configures all middleware for the Echo server.
// Authentication runs before the per-address limiter so signed-in wallets
// are counted by address instead of IP.
func setupMiddleware(e *echo.Echo, c *container.Container) {
	cfg := c.Components.Config

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		RequestIDHandler: func(ctx echo.Context, id string) {
			req := ctx.Request()
			ctx.SetRequest(req.WithContext(context.WithValue(req.Context(), logger.RequestIDKey, id)))
		},
	}))
	e.Use(apimw.Authenticate(c.Tokens, cfg.Auth.AllowHeaderAuth))

	if cfg.RateLimit.Enabled {
		e.Use(commonmw.GlobalRateLimitMiddleware(c.Components.Limiter, c.Limits))
		e.Use(commonmw.AddressRateLimitMiddleware(c.Components.Limiter, c.Limits))
	}
}

// setupHealthCheck registers the health check endpoint
func setupHealthCheck(e *echo.Echo, components *bootstrap.Components) {
	e.GET("/health", func(c echo.Context) error {
		if err := components.Health(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status":  "unhealthy",
				"service": "api",
				"error":   err.Error(),
			})
		}
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "api",
		})
	})
}

// registerRoutes registers all application routes using the service container
func registerRoutes(e *echo.Echo, serviceContainer *container.Container, hub *live.Hub) error {
	routes.RegisterAuthRoutes(e, serviceContainer)
	routes.RegisterUserRoutes(e, serviceContainer)
	routes.RegisterIncidentReportRoutes(e, serviceContainer)
	routes.RegisterTicketRoutes(e, serviceContainer)
	routes.RegisterTokenRoutes(e, serviceContainer)
	routes.RegisterAIRoutes(e, serviceContainer)

	schema, err := graphql.NewSchema(serviceContainer.TicketService)
	if err != nil {
		return fmt.Errorf("failed to build graphql schema: %w", err)
	}
	e.POST("/graphql", echo.WrapHandler(graphql.NewHandler(&schema))) // POST /graphql
	e.GET("/ws", live.Handler(hub))                                    // GET /ws?address=0x...
	return nil
}

// startServer serves on the configured port until an interrupt arrives
func startServer(ctx context.Context, e *echo.Echo, components *bootstrap.Components) {
	port := components.Config.Service.Port

	srv := server.New("api", port, e, components.Logger)
	if err := srv.Start(ctx); err != nil {
		components.Logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
