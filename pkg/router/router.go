package router

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"nonprofit-site/backend/internal/api"
	"nonprofit-site/backend/pkg/config"
	"nonprofit-site/backend/pkg/di"
	"nonprofit-site/backend/pkg/errors"
	"nonprofit-site/backend/pkg/logger"
	"nonprofit-site/backend/pkg/middleware"
)

// Router is the main router for the application
type Router struct {
	Engine    *gin.Engine
	Container *di.Container
	Logger    *logger.Logger
	Config    *config.Config
}

// New creates a new router with the given container
func New(container *di.Container) *Router {
	cfg := container.Config

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(middleware.RequestIDMiddleware())
	engine.Use(logger.Middleware(container.Logger))
	engine.Use(errors.RecoveryWithLogger(container.Translator))
	engine.Use(errors.ErrorHandler(container.Translator))
	engine.Use(corsMiddleware(cfg.Security.AllowedOrigins))
	engine.Use(bodyLimit(cfg.Security.MaxBodySize))

	return &Router{
		Engine:    engine,
		Container: container,
		Logger:    container.Logger,
		Config:    cfg,
	}
}

// SetupRoutes registers all application routes
func (r *Router) SetupRoutes() {
	c := r.Container

	health := api.NewHealthController(c.Health, r.connections(), c.Version)
	health.RegisterRoutes(r.Engine)

	if h := c.Telemetry.MetricsHandler(); h != nil {
		r.Engine.GET("/metrics", gin.WrapH(h))
	}

	var wsServer api.WebSocketServer
	if c.WebSocket != nil {
		wsServer = c.WebSocket
	}
	chat := api.NewChatController(
		c.ChatService,
		c.Resolver,
		c.Translator,
		api.CookieConfig{
			Name:   r.Config.Session.CookieName,
			MaxAge: int(r.Config.Session.TTL.Seconds()),
			Secure: r.Config.IsProduction(),
		},
		r.Config.Chat.MaxMessageLength,
		wsServer,
	)
	chat.RegisterRoutes(r.Engine, c.RateLimiter.Middleware(), c.Validator.Middleware())

	r.setupDocs()
}

func (r *Router) connections() api.ConnectionCounter {
	if r.Container.Hub == nil {
		return nil
	}
	return r.Container.Hub
}

// corsMiddleware echoes allowed origins with credentials so the session cookie
// works cross-site. "*" allows every origin.
func corsMiddleware(allowed []string) gin.HandlerFunc {
	allowAll := slices.Contains(allowed, "*")

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" && (allowAll || slices.Contains(allowed, origin)) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", strings.Join([]string{
				"Content-Type", "Accept", "Accept-Language", "Origin",
				middleware.SessionHeader, "X-Request-ID", "Upgrade", "Connection",
			}, ", "))
			h.Set("Access-Control-Expose-Headers", "X-Request-ID, Retry-After")
			h.Set("Access-Control-Max-Age", strconv.Itoa(86400))
			h.Add("Vary", "Origin")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func bodyLimit(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if n > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}
