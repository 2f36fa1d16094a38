package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// 设备凭证缓存 Key：cred:device:{sessionID} -> token
const keyCredentialPrefix = "cred:device:"

// CredentialStore Redis版设备凭证缓存。
// 注册时下发凭证，断开确认（主动或强制）时清除，
// 被终止的设备即使继续持有旧 token 也无法通过校验。
type CredentialStore struct {
	client *Client
	ttl    time.Duration
}

// NewCredentialStore 创建设备凭证缓存。
// ttl 为凭证兜底过期时间，应不小于注册表记录的存活上限。
func NewCredentialStore(client *Client, ttl time.Duration) *CredentialStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CredentialStore{client: client, ttl: ttl}
}

// Store 写入设备凭证
func (s *CredentialStore) Store(ctx context.Context, sessionID, token string) error {
	return s.client.Set(ctx, keyCredentialPrefix+sessionID, token, s.ttl).Err()
}

// Check 校验设备凭证，不存在或不一致返回 false
func (s *CredentialStore) Check(ctx context.Context, sessionID, token string) (bool, error) {
	val, err := s.client.Get(ctx, keyCredentialPrefix+sessionID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return token != "" && val == token, nil
}

// Clear 清除设备凭证，不存在时静默成功
func (s *CredentialStore) Clear(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, keyCredentialPrefix+sessionID).Err()
}
