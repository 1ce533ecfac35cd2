package router

import (
	"context"
	"net/http"
	"strings"

	"oficiogen/backend/internal/api"
	"oficiogen/backend/internal/ws"
	"oficiogen/backend/pkg/config"
	"oficiogen/backend/pkg/di"
	"oficiogen/backend/pkg/errors"
	"oficiogen/backend/pkg/logger"
	"oficiogen/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Router is the main router for the application
type Router struct {
	Engine    *gin.Engine
	Container *di.Container
	Logger    *logger.Logger
	Hub       *ws.Hub
	Config    *config.Config

	limiter     *middleware.RateLimiter
	sendLimiter *middleware.RateLimiter
}

// New creates a new router with the given container
func New(container *di.Container) *Router {
	logger.SetGlobal(container.Logger)
	cfg := container.Config

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	// Request id first so the request logger picks it up
	engine.Use(middleware.RequestIDMiddleware())
	engine.Use(logger.Middleware(container.Logger))
	engine.Use(errors.ErrorHandler())
	engine.Use(errors.RecoveryWithLogger())
	engine.Use(corsMiddleware(cfg.Security.AllowedOrigins))
	engine.Use(bodyLimit(cfg.Security.MaxBodySize))

	limiter := middleware.NewRateLimiter(container.Logger, middleware.RateLimiterOptions{
		Limit:   rate.Limit(cfg.Security.RateLimit),
		Burst:   cfg.Security.RateLimitBurst,
		KeyFunc: middleware.ClientIPKey,
	})
	engine.Use(limiter.Middleware())

	sendLimiter := middleware.NewRateLimiter(container.Logger, middleware.RateLimiterOptions{
		Limit:   rate.Limit(cfg.Security.SendRateLimit),
		Burst:   cfg.Security.SendBurst,
		KeyFunc: middleware.ProfileKey,
	})

	return &Router{
		Engine:      engine,
		Container:   container,
		Logger:      container.Logger,
		Hub:         container.Hub,
		Config:      cfg,
		limiter:     limiter,
		sendLimiter: sendLimiter,
	}
}

// SetupRoutes registers all application routes
func (r *Router) SetupRoutes() {
	auth := middleware.ProfileAuth(r.Container.JWTService, r.Logger)

	v1 := r.Engine.Group("/api/v1")

	handler := api.NewHandler(r.Container.Registry, r.Container.JWTService, r.Logger)
	handler.RegisterRoutesV1(v1, auth, r.sendLimiter.Middleware())

	v1.GET("/ws", auth, ws.Handler(r.Hub, r.Container.Registry, ws.NewUpgrader(r.Config.Security.AllowedOrigins)))

	r.setupHealthRoutes()
	r.Engine.GET("/metrics", gin.WrapH(r.Container.Prometheus.Handler()))
}

// RunBackground starts the hub and the rate limiter eviction loops
func (r *Router) RunBackground(ctx context.Context) {
	go r.Hub.Run(ctx)
	go r.limiter.Run(ctx)
	go r.sendLimiter.Run(ctx)
}

// corsMiddleware allows the configured origins, including websocket upgrade headers
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowAll := false
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		o = strings.TrimSpace(o)
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		switch {
		case origin != "" && allowed[origin]:
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Add("Vary", "Origin")
		case allowAll:
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept, Accept-Encoding, Authorization, Origin, Upgrade, Connection, Cache-Control, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, Retry-After")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// bodyLimit caps request bodies at max bytes
func bodyLimit(max int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if max > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, max)
		}
		c.Next()
	}
}
