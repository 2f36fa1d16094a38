package presence

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 使用测试用Redis客户端（需要真实Redis实例）
func setupTestRedis(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // 测试专用数据库
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Redis not available, skipping test")
		return nil
	}

	client.FlushDB(ctx)
	t.Cleanup(func() {
		client.FlushDB(ctx)
		client.Close()
	})
	return client
}

func TestRedisRegistry_PutGet(t *testing.T) {
	client := setupTestRedis(t)
	if client == nil {
		return
	}
	ctx := context.Background()
	r := NewRedisRegistry(client, time.Hour)

	_, err := r.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	s := newTestSession("s1", "m1")
	require.NoError(t, r.Put(ctx, s))

	got, err := r.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "POS-1", got.DeviceName)
	assert.Equal(t, "m1", got.MerchantID)
	assert.Equal(t, StatusOnline, got.Status)
}

func TestRedisRegistry_Update(t *testing.T) {
	client := setupTestRedis(t)
	if client == nil {
		return
	}
	ctx := context.Background()
	r := NewRedisRegistry(client, time.Hour)
	require.NoError(t, r.Put(ctx, newTestSession("s1", "m1")))

	updated, err := r.Update(ctx, "s1", func(sess *DeviceSession) error {
		sess.Status = StatusIdle
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, updated.Status)

	got, _ := r.Get(ctx, "s1")
	assert.Equal(t, StatusIdle, got.Status)

	// fn 报错时不落盘
	boom := &ValidationError{Field: "x", Reason: "boom"}
	_, err = r.Update(ctx, "s1", func(sess *DeviceSession) error {
		sess.Status = StatusError
		return boom
	})
	assert.ErrorIs(t, err, boom)
	got, _ = r.Get(ctx, "s1")
	assert.Equal(t, StatusIdle, got.Status)

	_, err = r.Update(ctx, "missing", func(*DeviceSession) error { return nil })
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisRegistry_ConcurrentUpdate(t *testing.T) {
	client := setupTestRedis(t)
	if client == nil {
		return
	}
	ctx := context.Background()
	r := NewRedisRegistry(client, time.Hour)
	s := newTestSession("s1", "m1")
	s.Metadata = map[string]string{"n": "0"}
	require.NoError(t, r.Put(ctx, s))

	// 并发自增：WATCH 冲突时 Update 自行重试，偶发耗尽重试则在调用方补偿
	const workers = 4
	const rounds = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				for {
					_, err := r.Update(ctx, "s1", func(sess *DeviceSession) error {
						n, _ := strconv.Atoi(sess.Metadata["n"])
						sess.Metadata["n"] = strconv.Itoa(n + 1)
						return nil
					})
					if err == nil {
						break
					}
					if !IsTransient(err) {
						t.Errorf("update: %v", err)
						return
					}
				}
			}
		}()
	}
	wg.Wait()

	got, err := r.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(workers*rounds), got.Metadata["n"], "lost updates")
}

func TestRedisRegistry_ListByMerchant(t *testing.T) {
	client := setupTestRedis(t)
	if client == nil {
		return
	}
	ctx := context.Background()
	r := NewRedisRegistry(client, time.Hour)
	require.NoError(t, r.Put(ctx, newTestSession("a", "m1")))
	require.NoError(t, r.Put(ctx, newTestSession("b", "m1")))
	require.NoError(t, r.Put(ctx, newTestSession("c", "m2")))

	m1, err := r.ListByMerchant(ctx, "m1")
	require.NoError(t, err)
	assert.Len(t, m1, 2)
	for _, s := range m1 {
		assert.Equal(t, "m1", s.MerchantID)
	}

	empty, err := r.ListByMerchant(ctx, "m3")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

// 心跳路径必须同步续期商户索引，活跃会话不得因索引先过期而从列表消失
func TestRedisRegistry_UpdateRenewsMerchantIndex(t *testing.T) {
	client := setupTestRedis(t)
	if client == nil {
		return
	}
	ctx := context.Background()
	r := NewRedisRegistry(client, time.Hour)
	require.NoError(t, r.Put(ctx, newTestSession("s1", "m1")))

	// 人为把商户索引压到临期，模拟长时间只有心跳、没有新注册的商户
	indexKey := "presence:merchant:m1"
	require.NoError(t, client.Expire(ctx, indexKey, time.Second).Err())

	_, err := r.Update(ctx, "s1", func(sess *DeviceSession) error {
		sess.Status = StatusIdle
		return nil
	})
	require.NoError(t, err)

	ttl, err := client.TTL(ctx, indexKey).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 30*time.Minute, "merchant index TTL must be renewed on update")

	m1, err := r.ListByMerchant(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, m1, 1, "actively heartbeating session must stay visible")
	assert.Equal(t, StatusIdle, m1[0].Status)
}

func TestRedisRegistry_Delete(t *testing.T) {
	client := setupTestRedis(t)
	if client == nil {
		return
	}
	ctx := context.Background()
	r := NewRedisRegistry(client, time.Hour)
	require.NoError(t, r.Put(ctx, newTestSession("s1", "m1")))

	require.NoError(t, r.Delete(ctx, "s1"))
	_, err := r.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// 商户索引同步清理
	m1, err := r.ListByMerchant(ctx, "m1")
	require.NoError(t, err)
	assert.Empty(t, m1)

	// 幂等
	require.NoError(t, r.Delete(ctx, "s1"))
}

// 记录被 TTL 回收后，列表惰性清理索引成员
func TestRedisRegistry_ListCleansStaleIndex(t *testing.T) {
	client := setupTestRedis(t)
	if client == nil {
		return
	}
	ctx := context.Background()
	r := NewRedisRegistry(client, time.Hour)
	require.NoError(t, r.Put(ctx, newTestSession("s1", "m1")))

	// 直接删掉记录、留下索引成员，模拟 TTL 回收
	require.NoError(t, client.Del(ctx, "presence:session:s1").Err())

	m1, err := r.ListByMerchant(ctx, "m1")
	require.NoError(t, err)
	assert.Empty(t, m1)

	members, err := client.SMembers(ctx, "presence:merchant:m1").Result()
	require.NoError(t, err)
	assert.Empty(t, members, "stale index member must be removed")
}
