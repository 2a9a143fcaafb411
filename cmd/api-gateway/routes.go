package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/notifications-dashboard-api/internal/handler"
	internalmiddleware "github.com/noah-isme/notifications-dashboard-api/internal/middleware"
	"github.com/noah-isme/notifications-dashboard-api/internal/models"
	"github.com/noah-isme/notifications-dashboard-api/internal/repository"
	"github.com/noah-isme/notifications-dashboard-api/internal/service"
	"github.com/noah-isme/notifications-dashboard-api/pkg/config"
	"github.com/noah-isme/notifications-dashboard-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/notifications-dashboard-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/notifications-dashboard-api/pkg/middleware/requestid"
)

type routeHandlers struct {
	auth          *handler.AuthHandler
	notifications *handler.NotificationHandler
	exports       *handler.ExportHandler
	metrics       *handler.MetricsHandler
}

type routerDeps struct {
	cfg      *config.Config
	logger   *zap.Logger
	metrics  *service.MetricsService
	auth     *service.AuthService
	guard    *service.SessionGuard
	audit    *repository.AuditRepository
	handlers routeHandlers
}

func newRouter(deps routerDeps) *gin.Engine {
	cfg := deps.cfg
	h := deps.handlers

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(deps.logger))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(deps.metrics))

	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(internalmiddleware.WithResponseMeta())

	api.POST("/auth/login", h.auth.Login)
	api.GET("/exports/:token", h.exports.Download)

	secured := api.Group("")
	secured.Use(internalmiddleware.RequireSession(deps.auth, deps.guard, cfg.Auth.LoginPath))
	secured.POST("/auth/logout", h.auth.Logout)
	secured.GET("/auth/me", h.auth.Me)

	notifications := secured.Group("/notifications")
	notifications.GET("", h.notifications.List)
	notifications.GET("/stats", h.notifications.Stats)
	notifications.GET("/events", h.notifications.Events)
	notifications.POST("/refresh", h.notifications.Refresh)
	notifications.POST("/exports", h.exports.Create)
	notifications.GET("/exports/:id", h.exports.Get)

	writer := notifications.Group("")
	writer.Use(internalmiddleware.RequireWriter())
	audited := func(action string) gin.HandlerFunc {
		return internalmiddleware.Audit(deps.audit, action, deps.logger)
	}
	writer.PATCH("/:id/flag", audited(models.AuditActionSetFlag), h.notifications.SetFlag)
	writer.PATCH("/:id/step", audited(models.AuditActionSetStep), h.notifications.SetStep)
	writer.PATCH("/:id/status", audited(models.AuditActionSetStatus), h.notifications.SetStatus)
	writer.DELETE("/:id", audited(models.AuditActionHide), h.notifications.Delete)
	writer.DELETE("", audited(models.AuditActionHideAll), h.notifications.DeleteAll)

	return r
}
