package api

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/taoyao-code/pos-server/internal/api/middleware"
	cfgpkg "github.com/taoyao-code/pos-server/internal/config"
	appmetrics "github.com/taoyao-code/pos-server/internal/metrics"
	"github.com/taoyao-code/pos-server/internal/presence"
	"github.com/taoyao-code/pos-server/internal/storage"

	_ "github.com/taoyao-code/pos-server/docs" // swagger 文档
)

// RegisterPresenceRoutes 注册设备在线状态路由
func RegisterPresenceRoutes(
	r *gin.Engine,
	svc *presence.Service,
	archives storage.ArchiveRepo,
	metrics *appmetrics.AppMetrics,
	messages *presence.MessageMap,
	authCfg cfgpkg.AuthConfig,
	rlCfg cfgpkg.RateLimitConfig,
	logger *zap.Logger,
) {
	if r == nil || svc == nil {
		return
	}

	handler := NewPresenceHandler(svc, archives, metrics, messages, logger)

	// Swagger 文档(无需认证)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// API路由组(需要认证)
	v1 := r.Group("/api/v1")
	v1.Use(middleware.APIKeyAuth(authCfg, logger))
	if authCfg.Enabled {
		logger.Info("api authentication enabled", zap.Int("api_keys_count", len(authCfg.Keys)))
	} else {
		logger.Warn("api authentication disabled - only for development!")
	}

	// 设备端点（限流保护）
	device := v1.Group("")
	device.Use(middleware.RateLimit(rlCfg, func() { metrics.RateLimitRejected.Inc() }))
	device.POST("/device-sessions", handler.RegisterSession)
	device.POST("/device-sessions/:session_id/heartbeat", handler.Heartbeat)
	device.DELETE("/device-sessions/:session_id", handler.DisconnectSession)

	// 监控视图
	v1.GET("/device-sessions", handler.ListSessions)
	v1.GET("/device-sessions/archive", handler.ListArchivedSessions)
	v1.GET("/device-sessions/:session_id", handler.GetSession)

	// 管理端点
	admin := v1.Group("")
	admin.Use(middleware.RequireAdmin(logger))
	admin.POST("/device-sessions/:session_id/force-disconnect", handler.ForceDisconnect)

	logger.Info("presence routes registered", zap.Int("endpoints", 7))
}
