package middleware

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	cfgpkg "github.com/taoyao-code/pos-server/internal/config"
)

// RateLimiter 基于Token Bucket的限流器，按客户端（API Key 或 IP）分桶。
// 心跳/注册端点的保护：单个异常设备刷请求不影响其他商户。
type RateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*rate.Limiter
	perSec   rate.Limit
	burst    int
	rejected atomic.Int64
}

// NewRateLimiter 创建限流器
// perSec: 每个客户端每秒允许的请求数（稳定速率）
// burst: 突发容量（桶的大小）
func NewRateLimiter(perSec int, burst int) *RateLimiter {
	if perSec <= 0 {
		perSec = 100
	}
	if burst <= 0 {
		burst = perSec * 2
	}
	return &RateLimiter{
		buckets: make(map[string]*rate.Limiter),
		perSec:  rate.Limit(perSec),
		burst:   burst,
	}
}

// Allow 检查指定客户端是否允许请求（非阻塞）
func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	lim, ok := l.buckets[key]
	if !ok {
		lim = rate.NewLimiter(l.perSec, l.burst)
		l.buckets[key] = lim
	}
	l.mu.Unlock()

	if lim.Allow() {
		return true
	}
	l.rejected.Add(1)
	return false
}

// RejectedCount 被拒绝的请求数（累计）
func (l *RateLimiter) RejectedCount() int64 {
	return l.rejected.Load()
}

// RateLimit 限流中间件。onReject 用于指标上报，可为 nil。
func RateLimit(cfg cfgpkg.RateLimitConfig, onReject func()) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	limiter := NewRateLimiter(cfg.RequestsPerSec, cfg.Burst)

	return func(c *gin.Context) {
		key := c.GetHeader("X-API-Key")
		if key == "" {
			key = c.ClientIP()
		}
		if !limiter.Allow(key) {
			if onReject != nil {
				onReject()
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limited",
				"message": "请求过于频繁，请稍后重试",
			})
			return
		}
		c.Next()
	}
}
