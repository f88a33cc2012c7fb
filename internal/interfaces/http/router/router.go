package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/invoo/backend/internal/infrastructure/config"
	"github.com/invoo/backend/internal/infrastructure/logger"
	"github.com/invoo/backend/internal/interfaces/http/handler"
	"github.com/invoo/backend/internal/interfaces/http/middleware"
)

// RouteRegistrar defines the interface for registering routes
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Router assembles the gin engine: middleware stack, versioned API group,
// and the unversioned webhook and health endpoints.
type Router struct {
	engine     *gin.Engine
	apiVersion string
	registrars []RouteRegistrar
	webhooks   []RouteRegistrar
}

// New creates a gin engine with the standard middleware stack applied
func New(cfg *config.Config, log *zap.Logger) *Router {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("invalid trusted proxies configuration", zap.Error(err))
		}
	}
	engine.Use(
		middleware.RequestID(),
		logger.GinMiddleware(log),
		logger.Recovery(log),
		middleware.Secure(),
		middleware.CORSWithConfig(corsConfig(cfg)),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
		middleware.RateLimit(middleware.NewRateLimiter(cfg.HTTP.RateLimitPerMinute, time.Minute)),
	)

	return &Router{
		engine:     engine,
		apiVersion: "v1",
	}
}

// Register adds a registrar to the versioned API group
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// RegisterWebhook adds a registrar to the unversioned root group. Webhook
// paths are part of the contract with the remote API and never move with
// API versions.
func (r *Router) RegisterWebhook(registrar RouteRegistrar) *Router {
	r.webhooks = append(r.webhooks, registrar)
	return r
}

// Setup wires all registered routes and returns the engine
func (r *Router) Setup(health *handler.HealthHandler) *gin.Engine {
	r.engine.GET("/health", health.Health)

	root := r.engine.Group("")
	for _, registrar := range r.webhooks {
		registrar.RegisterRoutes(root)
	}

	api := r.engine.Group("/api/" + r.apiVersion)
	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(api)
	}

	return r.engine
}

func corsConfig(cfg *config.Config) middleware.CORSConfig {
	corsCfg := middleware.DefaultCORSConfig()
	if len(cfg.HTTP.CORSAllowOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	}
	return corsCfg
}
