package app

import (
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/pos-server/internal/config"
	"github.com/taoyao-code/pos-server/internal/health"
	redisstorage "github.com/taoyao-code/pos-server/internal/storage/redis"
)

// NewRedisClient 创建Redis客户端（未启用时返回 nil）
func NewRedisClient(cfg cfgpkg.RedisConfig, logger *zap.Logger) (*redisstorage.Client, error) {
	if !cfg.Enabled {
		logger.Info("redis is disabled, skipping initialization")
		return nil, nil
	}

	client, err := redisstorage.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	logger.Info("redis client initialized",
		zap.String("addr", cfg.Addr),
		zap.Int("pool_size", cfg.PoolSize))

	return client, nil
}

// AddRedisChecker 添加Redis检查器到聚合器
func AddRedisChecker(aggregator *health.Aggregator, redisClient *redisstorage.Client) {
	if redisClient != nil {
		aggregator.AddChecker(health.NewRedisChecker(redisClient))
	}
}
