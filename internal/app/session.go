package app

import (
	"time"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/pos-server/internal/config"
	"github.com/taoyao-code/pos-server/internal/presence"
	redisstorage "github.com/taoyao-code/pos-server/internal/storage/redis"
)

// NewPolicy 由配置构造存活判定策略
func NewPolicy(cfg cfgpkg.SessionConfig) presence.Policy {
	return presence.Policy{
		HeartbeatInterval: time.Duration(cfg.HeartbeatIntervalSec) * time.Second,
		HardTimeout:       time.Duration(cfg.HardTimeoutSec) * time.Second,
		RetentionWindow:   time.Duration(cfg.RetentionSec) * time.Second,
	}.Normalize()
}

// NewRegistryAndCredentials 构造会话注册表与设备凭证缓存。
// Redis 可用时走 Redis（支持多实例部署），否则使用内存实现。
// Redis 记录 TTL 取 2*(hardTimeout+retention)，保证老化剔除先于 key 过期。
func NewRegistryAndCredentials(
	policy presence.Policy,
	redisClient *redisstorage.Client,
	logger *zap.Logger,
) (presence.Registry, presence.CredentialStore) {
	if redisClient != nil {
		ttl := 2 * (policy.HardTimeout + policy.RetentionWindow)
		logger.Info("using redis session registry",
			zap.Duration("hard_timeout", policy.HardTimeout),
			zap.Duration("record_ttl", ttl))
		return presence.NewRedisRegistry(redisClient.Client, ttl),
			redisstorage.NewCredentialStore(redisClient, ttl)
	}

	logger.Info("using memory session registry",
		zap.Duration("hard_timeout", policy.HardTimeout))
	return presence.NewMemoryRegistry(), presence.NewMemoryCredentialStore()
}
