// Package middleware 提供HTTP中间件
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/pos-server/internal/config"
)

// Principal 认证通过后的请求主体：API Key 绑定的商户范围与角色
type Principal struct {
	Name       string
	MerchantID string
	Admin      bool
}

// 上下文键
const (
	ctxKeyPrincipal = "principal"
)

// PrincipalFrom 从请求上下文取出认证主体
func PrincipalFrom(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(ctxKeyPrincipal)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}

// APIKeyAuth API Key认证中间件。
// 每个 Key 绑定一个商户与角色（device/admin），认证通过后将 Principal
// 写入请求上下文，后续所有读写都按该商户范围过滤。
//
// 使用方式:
//  1. Header: X-API-Key: sk_live_xxxx
//  2. Header: Authorization: Bearer sk_live_xxxx
func APIKeyAuth(cfg cfgpkg.AuthConfig, logger *zap.Logger) gin.HandlerFunc {
	// key -> principal 查找表
	keys := make(map[string]Principal, len(cfg.Keys))
	for _, k := range cfg.Keys {
		keys[k.Key] = Principal{Name: k.Name, MerchantID: k.MerchantID, Admin: k.Admin}
	}

	return func(c *gin.Context) {
		// 如果未启用认证，直接放行（开发环境）
		if !cfg.Enabled {
			c.Set(ctxKeyPrincipal, Principal{Name: "dev", MerchantID: c.GetHeader("X-Merchant-ID"), Admin: true})
			c.Next()
			return
		}

		// 从Header获取API Key
		apiKey := c.GetHeader("X-API-Key")
		if apiKey == "" {
			// 兼容Bearer Token格式
			auth := c.GetHeader("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				apiKey = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		if apiKey == "" {
			logger.Warn("api auth: missing api key",
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
				zap.String("remote_addr", c.ClientIP()),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "请在Header中提供 X-API-Key 或 Authorization: Bearer <token>",
			})
			return
		}

		p, ok := keys[apiKey]
		if !ok {
			logger.Warn("api auth: invalid api key",
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
				zap.String("remote_addr", c.ClientIP()),
				zap.String("api_key_prefix", maskAPIKey(apiKey)),
			)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "无效的API Key",
			})
			return
		}

		c.Set(ctxKeyPrincipal, p)
		c.Next()
	}
}

// RequireAdmin 管理端点保护：非 admin 主体直接 403
func RequireAdmin(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok || !p.Admin {
			logger.Warn("api auth: admin required",
				zap.String("path", c.Request.URL.Path),
				zap.String("actor", p.Name),
			)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "该操作仅限管理员",
			})
			return
		}
		c.Next()
	}
}

// maskAPIKey 脱敏API Key（仅显示前4位和后4位）
func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
