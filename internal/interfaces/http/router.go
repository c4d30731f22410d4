// Package http wires the gin engine serving JWKS, token revocation, health and metrics.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/turtacn/authstore/internal/config"
	"github.com/turtacn/authstore/internal/infrastructure/monitoring"
	"github.com/turtacn/authstore/internal/interfaces/http/handlers"
	"github.com/turtacn/authstore/internal/interfaces/http/middleware"
	"github.com/turtacn/authstore/pkg/logger"
)

// AdminScope is required on bearer tokens calling the internal endpoints.
const AdminScope = "authstore.admin"

// Router HTTP 路由器
type Router struct {
	engine               *gin.Engine
	config               *config.Config
	logger               logger.Logger
	metrics              *monitoring.Metrics
	gatherer             prometheus.Gatherer
	verifier             middleware.TokenVerifier
	healthHandler        *handlers.HealthHandler
	jwksHandler          *handlers.JWKSHandler
	authorizationHandler *handlers.AuthorizationHandler
	server               *http.Server
}

// NewRouter 创建路由器
func NewRouter(
	cfg *config.Config,
	log logger.Logger,
	metrics *monitoring.Metrics,
	gatherer prometheus.Gatherer,
	verifier middleware.TokenVerifier,
	healthHandler *handlers.HealthHandler,
	jwksHandler *handlers.JWKSHandler,
	authorizationHandler *handlers.AuthorizationHandler,
) *Router {
	// 设置 Gin 模式
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := &Router{
		engine:               gin.New(),
		config:               cfg,
		logger:               log.WithComponent("http"),
		metrics:              metrics,
		gatherer:             gatherer,
		verifier:             verifier,
		healthHandler:        healthHandler,
		jwksHandler:          jwksHandler,
		authorizationHandler: authorizationHandler,
	}
	r.setupRoutes()
	return r
}

// Handler returns the configured engine.
func (r *Router) Handler() http.Handler {
	return r.engine
}

func (r *Router) setupRoutes() {
	// 全局中间件
	r.engine.Use(handlers.RecoveryMiddleware(r.logger))
	r.engine.Use(handlers.RequestIDMiddleware())
	r.engine.Use(middleware.ObservabilityMiddleware(
		otel.Tracer("github.com/turtacn/authstore/internal/interfaces/http"),
		r.metrics.HTTPRequests,
		r.metrics.HTTPRequestDuration,
	))
	r.engine.Use(handlers.LoggingMiddleware(r.logger))

	// CORS 配置
	r.engine.Use(cors.New(cors.Config{
		AllowOrigins:     r.config.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", handlers.HeaderRequestID, middleware.HeaderTenantID},
		ExposeHeaders:    []string{handlers.HeaderRequestID},
		AllowCredentials: !containsWildcard(r.config.Server.AllowedOrigins),
		MaxAge:           12 * time.Hour,
	}))

	// 健康检查路由（不需要认证）
	r.engine.GET("/health", r.healthHandler.HealthCheck)
	r.engine.GET("/ready", r.healthHandler.ReadinessCheck)
	r.engine.GET("/live", r.healthHandler.LivenessCheck)

	// Prometheus metrics
	r.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})))

	// Pprof 性能分析（仅在非生产环境）
	if r.config.Server.Environment != "production" {
		pprof.Register(r.engine)
	}

	r.engine.GET("/.well-known/jwks.json", r.jwksHandler.GetJWKS)

	tenant := r.engine.Group("/", middleware.RequestContextMiddleware(r.config.Store, r.config.Signing))
	tenant.POST("/oauth2/revoke", r.authorizationHandler.Revoke)

	internal := tenant.Group("/internal", middleware.RequireJWT(r.verifier, AdminScope, r.logger))
	internal.POST("/authorizations/lookup", r.authorizationHandler.Lookup)

	// 404 处理
	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, handlers.ErrorResponse{
			Error:            "not_found",
			ErrorDescription: "The requested resource was not found.",
		})
	})
}

// Start 启动 HTTP 服务器，阻塞直到服务器关闭
func (r *Router) Start() error {
	r.server = &http.Server{
		Addr:           r.config.Server.Address(),
		Handler:        r.engine,
		ReadTimeout:    r.config.Server.ReadTimeout,
		WriteTimeout:   r.config.Server.WriteTimeout,
		IdleTimeout:    r.config.Server.IdleTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	r.logger.Info(context.Background(), "Starting HTTP server", logger.String("address", r.server.Addr))
	if err := r.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop 停止 HTTP 服务器
func (r *Router) Stop(ctx context.Context) error {
	if r.server == nil {
		return nil
	}
	r.logger.Info(ctx, "Stopping HTTP server")
	return r.server.Shutdown(ctx)
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
