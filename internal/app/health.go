package app

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taoyao-code/pos-server/internal/health"
)

// NewReady 创建就绪状态聚合
func NewReady() *health.Readiness {
	return health.New()
}

// NewHealthAggregator 创建健康检查聚合器
func NewHealthAggregator(dbpool *pgxpool.Pool) *health.Aggregator {
	// 初始时只添加数据库检查器，Redis 检查器在启用后追加
	return health.NewAggregator(
		health.NewDatabaseChecker(dbpool),
	)
}

// RegisterHealthRoutes 注册健康检查HTTP路由
func RegisterHealthRoutes(r *gin.Engine, aggregator *health.Aggregator) {
	health.RegisterHTTPRoutes(r, aggregator)
}
