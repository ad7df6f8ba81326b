package router

import (
	"net/http"
	"slices"

	"textreply/backend/pkg/di"
	"textreply/backend/pkg/errors"
	"textreply/backend/pkg/logger"
	"textreply/backend/pkg/middleware"
	"textreply/backend/shared/observability"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
)

// Router is the main router for the application
type Router struct {
	Engine    *gin.Engine
	Container *di.Container
	Logger    *logger.Logger
}

// New creates a new router with the given container
func New(container *di.Container) *Router {
	cfg := container.Config

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	// Logger first so every later middleware sees the request-scoped logger
	engine.Use(logger.Middleware(container.Logger))
	engine.Use(errors.ErrorHandler())
	engine.Use(errors.RecoveryWithLogger())
	engine.Use(corsMiddleware(cfg.Security.AllowedOrigins))

	if cfg.Observability.MetricsEnabled {
		httpMetrics, err := observability.HTTPMetrics(otel.Meter(cfg.Observability.ServiceName))
		if err != nil {
			container.Logger.LogError(err, "Failed to create HTTP metrics middleware")
		} else {
			engine.Use(httpMetrics)
		}
	}

	return &Router{
		Engine:    engine,
		Container: container,
		Logger:    container.Logger,
	}
}

// SetupRoutes registers all application routes
func (r *Router) SetupRoutes() {
	c := r.Container
	cfg := c.Config

	if cfg.OpenAPI.SchemaPath != "" {
		r.AddOpenAPIValidation(cfg.OpenAPI.SchemaPath)
	}

	r.Engine.GET("/", c.SystemHandler.Root)
	r.setupHealthRoutes()
	if cfg.Observability.MetricsEnabled {
		r.Engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	// Facebook calls the webhook; it is neither authenticated nor rate limited
	webhook := r.Engine.Group("/webhook")
	{
		webhook.GET("", c.WebhookHandler.Verify)
		webhook.POST("", c.WebhookHandler.Receive)
	}

	// The limiter keys on the account, so it runs after authentication
	limit := c.RateLimiter.Middleware()
	jwtAuth := middleware.JWTAuthMiddleware(c.JWTService, r.Logger)

	// The webhook applies its own cap so oversized deliveries are still acknowledged
	api := r.Engine.Group("/api", middleware.BodyLimit(cfg.Security.MaxBodySize))

	auth := api.Group("/auth")
	{
		auth.GET("/facebook", limit, c.AuthHandler.Start)
		auth.GET("/facebook/callback", limit, c.AuthHandler.Callback)
		auth.GET("/me", jwtAuth, limit, c.AuthHandler.Me)
	}

	// Browsers cannot set headers on websocket upgrades, so the live feed also
	// accepts ?token=
	api.GET("/pages/:id/live", middleware.JWTQueryAuthMiddleware(c.JWTService, r.Logger), limit, c.PagesHandler.Live)

	pages := api.Group("/pages", jwtAuth, limit)
	c.PagesHandler.RegisterRoutes(pages)
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowAny := slices.Contains(allowedOrigins, "*")
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" && (allowAny || slices.Contains(allowedOrigins, origin)) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Add("Vary", "Origin")
		}

		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept, Accept-Encoding, Authorization, Origin, Upgrade, Connection, Cache-Control, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
