package presence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis Key设计
const (
	// presence:session:{sessionID} -> DeviceSession JSON
	keySessionPrefix = "presence:session:"

	// presence:merchant:{merchantID} -> Set[sessionID]
	keyMerchantPrefix = "presence:merchant:"
)

// Update 乐观并发重试次数。WATCH 冲突说明心跳与强制断开同时
// 修改同一条记录，概率很低，少量重试足够。
const redisUpdateRetries = 5

// RedisRegistry Redis版本的会话注册表，支持多实例部署。
// Update 使用 WATCH 事务实现单键原子读-改-写（compare-and-clear）。
type RedisRegistry struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisRegistry 创建Redis注册表。
// ttl 为记录的兜底过期时间，应显著大于 hardTimeout + retentionWindow，
// 保证老化剔除先于 key 过期发生；彻底失联的残留记录最终由 TTL 回收。
func NewRedisRegistry(client *redis.Client, ttl time.Duration) *RedisRegistry {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisRegistry{client: client, ttl: ttl}
}

// Put 写入新会话记录并加入商户索引
func (r *RedisRegistry) Put(ctx context.Context, s *DeviceSession) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, keySessionPrefix+s.SessionID, data, r.ttl)
	pipe.SAdd(ctx, keyMerchantPrefix+s.MerchantID, s.SessionID)
	pipe.Expire(ctx, keyMerchantPrefix+s.MerchantID, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return &TransientError{Op: "redis put session", Err: err}
	}
	return nil
}

// Get 按 session_id 读取
func (r *RedisRegistry) Get(ctx context.Context, sessionID string) (*DeviceSession, error) {
	val, err := r.client.Get(ctx, keySessionPrefix+sessionID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, &TransientError{Op: "redis get session", Err: err}
	}

	var s DeviceSession
	if err := json.Unmarshal([]byte(val), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Update 基于 WATCH 的原子读-改-写。
// 并发写冲突时整个事务失败并重试，保证强制断开标记不丢失、不重复送达。
func (r *RedisRegistry) Update(ctx context.Context, sessionID string, fn func(*DeviceSession) error) (*DeviceSession, error) {
	key := keySessionPrefix + sessionID
	var updated *DeviceSession

	txn := func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}

		var s DeviceSession
		if err := json.Unmarshal([]byte(val), &s); err != nil {
			return err
		}
		if err := fn(&s); err != nil {
			return err
		}

		data, err := json.Marshal(&s)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, r.ttl)
			// 商户索引与记录同步续期，活跃商户的索引不先于记录过期
			pipe.Expire(ctx, keyMerchantPrefix+s.MerchantID, r.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		updated = &s
		return nil
	}

	for i := 0; i < redisUpdateRetries; i++ {
		err := r.client.Watch(ctx, txn, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue // 并发冲突，重试
		}
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, &TransientError{Op: "redis update session", Err: err}
	}
	return nil, &TransientError{Op: "redis update session", Err: redis.TxFailedErr}
}

// ListByMerchant 返回商户索引下的全部会话，顺带清理已过期的索引成员
func (r *RedisRegistry) ListByMerchant(ctx context.Context, merchantID string) ([]*DeviceSession, error) {
	setKey := keyMerchantPrefix + merchantID
	ids, err := r.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, &TransientError{Op: "redis list sessions", Err: err}
	}

	out := make([]*DeviceSession, 0, len(ids))
	for _, id := range ids {
		s, err := r.Get(ctx, id)
		if errors.Is(err, ErrSessionNotFound) {
			// 记录已被 TTL 回收，惰性清理索引
			r.client.SRem(ctx, setKey, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Delete 移除会话记录与商户索引成员
func (r *RedisRegistry) Delete(ctx context.Context, sessionID string) error {
	s, err := r.Get(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, keySessionPrefix+sessionID)
	pipe.SRem(ctx, keyMerchantPrefix+s.MerchantID, sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return &TransientError{Op: "redis delete session", Err: err}
	}
	return nil
}
