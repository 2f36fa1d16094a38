package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeClock 可拨动的时间源
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// allowAll 放行所有管理操作
type allowAll struct{}

func (allowAll) Authorize(context.Context, Actor, string) error { return nil }

// denyAll 拒绝所有管理操作
type denyAll struct{}

func (denyAll) Authorize(context.Context, Actor, string) error { return ErrPermissionDenied }

// recordingArchiver 记录归档调用
type recordingArchiver struct {
	mu      sync.Mutex
	entries []archiveEntry
}

type archiveEntry struct {
	sessionID string
	reason    EndReason
}

func (a *recordingArchiver) Archive(_ context.Context, s *DeviceSession, reason EndReason, _ time.Time) error {
	a.mu.Lock()
	a.entries = append(a.entries, archiveEntry{sessionID: s.SessionID, reason: reason})
	a.mu.Unlock()
	return nil
}

func (a *recordingArchiver) byID(id string) []archiveEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []archiveEntry
	for _, e := range a.entries {
		if e.sessionID == id {
			out = append(out, e)
		}
	}
	return out
}

type testEnv struct {
	svc     *Service
	clock   *fakeClock
	creds   *MemoryCredentialStore
	archive *recordingArchiver
}

func newTestEnv(t *testing.T, authz Authorizer) *testEnv {
	t.Helper()
	clock := newFakeClock()
	creds := NewMemoryCredentialStore()
	archive := &recordingArchiver{}
	svc := NewService(
		NewMemoryRegistry(), creds, archive, authz,
		DefaultPolicy(), zap.NewNop(),
		WithClock(clock.Now),
	)
	return &testEnv{svc: svc, clock: clock, creds: creds, archive: archive}
}

// device 注册产物：会话 + 下发凭证
type device struct {
	sess  *DeviceSession
	token string
}

func register(t *testing.T, env *testEnv, merchant, name string, typ DeviceType) device {
	t.Helper()
	sess, token, err := env.svc.Register(context.Background(), RegisterInput{
		MerchantID: merchant,
		DeviceName: name,
		DeviceType: typ,
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)
	return device{sess: sess, token: token}
}

// heartbeat 以设备自己的商户与凭证上报
func heartbeat(t *testing.T, env *testEnv, d device, in HeartbeatInput) (bool, error) {
	t.Helper()
	if in.DeviceToken == "" {
		in.DeviceToken = d.token
	}
	return env.svc.Heartbeat(context.Background(), d.sess.MerchantID, d.sess.SessionID, in)
}

func TestRegister_Validation(t *testing.T) {
	env := newTestEnv(t, allowAll{})
	ctx := context.Background()

	tests := []struct {
		name string
		in   RegisterInput
	}{
		{"商户为空", RegisterInput{DeviceName: "POS-1", DeviceType: DeviceTypePOS}},
		{"设备名为空", RegisterInput{MerchantID: "m1", DeviceType: DeviceTypePOS}},
		{"设备类型未知", RegisterInput{MerchantID: "m1", DeviceName: "POS-1", DeviceType: "toaster"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := env.svc.Register(ctx, tt.in)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
		})
	}
}

func TestRegister_InitialState(t *testing.T) {
	env := newTestEnv(t, allowAll{})
	d := register(t, env, "m1", "Kitchen Display", DeviceTypeKitchenDisplay)

	assert.Equal(t, StatusOnline, d.sess.Status)
	assert.Equal(t, env.clock.Now(), d.sess.ConnectedAt)
	assert.Equal(t, env.clock.Now(), d.sess.LastHeartbeat)
	assert.NotEmpty(t, d.sess.SessionID)

	// 注册即下发设备凭证
	stored, ok := env.creds.Get(d.sess.SessionID)
	assert.True(t, ok)
	assert.Equal(t, d.token, stored)
}

func TestRegister_DistinctSessionIDs(t *testing.T) {
	env := newTestEnv(t, allowAll{})
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		d := register(t, env, "m1", "POS-1", DeviceTypePOS)
		require.False(t, seen[d.sess.SessionID], "duplicate session id %s", d.sess.SessionID)
		seen[d.sess.SessionID] = true
	}
}

func TestHeartbeat_UpdatesStatusAndMetadata(t *testing.T) {
	env := newTestEnv(t, allowAll{})
	ctx := context.Background()
	d := register(t, env, "m1", "POS-1", DeviceTypePOS)

	env.clock.Advance(10 * time.Second)
	forced, err := heartbeat(t, env, d, HeartbeatInput{
		Status:            StatusIdle,
		ActiveOrderNumber: "T-1042",
		Metadata:          map[string]string{"orders": "3"},
	})
	require.NoError(t, err)
	assert.False(t, forced)

	view, err := env.svc.GetSession(ctx, "m1", d.sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, view.Status)
	assert.Equal(t, StatusIdle, view.EffectiveStatus)
	assert.Equal(t, "T-1042", view.ActiveOrderNumber)
	assert.Equal(t, "3", view.Metadata["orders"])
	assert.Equal(t, env.clock.Now(), view.LastHeartbeat)

	// metadata 合并而非替换
	env.clock.Advance(10 * time.Second)
	_, err = heartbeat(t, env, d, HeartbeatInput{
		Status:   StatusOnline,
		Metadata: map[string]string{"printer": "ok"},
	})
	require.NoError(t, err)

	view, _ = env.svc.GetSession(ctx, "m1", d.sess.SessionID)
	assert.Equal(t, "3", view.Metadata["orders"])
	assert.Equal(t, "ok", view.Metadata["printer"])
}

func TestHeartbeat_UnknownSession(t *testing.T) {
	env := newTestEnv(t, allowAll{})
	_, err := env.svc.Heartbeat(context.Background(), "m1", "nope", HeartbeatInput{Status: StatusOnline})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestHeartbeat_RejectsOfflineReport(t *testing.T) {
	env := newTestEnv(t, allowAll{})
	d := register(t, env, "m1", "POS-1", DeviceTypePOS)

	_, err := heartbeat(t, env, d, HeartbeatInput{Status: StatusOffline})
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
}

// 跨商户写入按不存在处理：别家商户的 Key 不能心跳/终止本商户的会话
func TestHeartbeat_CrossMerchantIsNotFound(t *testing.T) {
	env := newTestEnv(t, allowAll{})
	ctx := context.Background()
	d := register(t, env, "m1", "POS-1", DeviceTypePOS)

	_, err := env.svc.Heartbeat(ctx, "m2", d.sess.SessionID, HeartbeatInput{
		Status:      StatusOnline,
		DeviceToken: d.token,
	})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	err = env.svc.Disconnect(ctx, "m2", d.sess.SessionID, d.token)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// 会话未被跨商户写入触碰
	view, err := env.svc.GetSession(ctx, "m1", d.sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, StatusOnline, view.Status)
	assert.Equal(t, d.sess.LastHeartbeat, view.LastHeartbeat)
}

// 凭证不匹配拒绝写入
func TestHeartbeat_InvalidDeviceToken(t *testing.T) {
	env := newTestEnv(t, allowAll{})
	ctx := context.Background()
	d := register(t, env, "m1", "POS-1", DeviceTypePOS)

	_, err := env.svc.Heartbeat(ctx, "m1", d.sess.SessionID, HeartbeatInput{
		Status:      StatusOnline,
		DeviceToken: "stolen",
	})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = env.svc.Heartbeat(ctx, "m1", d.sess.SessionID, HeartbeatInput{Status: StatusOnline})
	assert.ErrorIs(t, err, ErrPermissionDenied, "empty token must not pass")

	err = env.svc.Disconnect(ctx, "m1", d.sess.SessionID, "stolen")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	// 状态未被无效凭证改写
	view, _ := env.svc.GetSession(ctx, "m1", d.sess.SessionID)
	assert.Equal(t, StatusOnline, view.Status)
}

func TestForceDisconnect_DeliveredOnNextHeartbeat(t *testing.T) {
	env := newTestEnv(t, allowAll{})
	ctx := context.Background()
	d := register(t, env, "m1", "POS-1", DeviceTypePOS)
	admin := Actor{Name: "ops", MerchantID: "m1", Admin: true}

	env.clock.Advance(5 * time.Second)
	require.NoError(t, env.svc.RequestDisconnect(ctx, d.sess.SessionID, admin))

	// 标记未立即改变状态
	view, _ := env.svc.GetSession(ctx, "m1", d.sess.SessionID)
	assert.Equal(t, StatusOnline, view.Status)

	// 下一次心跳收到信号，状态落为 offline
	env.clock.Advance(5 * time.Second)
	forced, err := heartbeat(t, env, d, HeartbeatInput{Status: StatusOnline})
	require.NoError(t, err)
	assert.True(t, forced)

	view, _ = env.svc.GetSession(ctx, "m1", d.sess.SessionID)
	assert.Equal(t, StatusOffline, view.Status)

	// 凭证已清除，会话已归档
	_, ok := env.creds.Get(d.sess.SessionID)
	assert.False(t, ok)
	entries := env.archive.byID(d.sess.SessionID)
	require.Len(t, entries, 1)
	assert.Equal(t, EndReasonForceDisconnect, entries[0].reason)

	// 标记不粘滞：凭证虽已清除，终态心跳仍为空操作并返回 false
	env.clock.Advance(10 * time.Second)
	forced, err = heartbeat(t, env, d, HeartbeatInput{Status: StatusOnline})
	require.NoError(t, err)
	assert.False(t, forced)

	view, _ = env.svc.GetSession(ctx, "m1", d.sess.SessionID)
	assert.Equal(t, StatusOffline, view.Status)
}

func TestForceDisconnect_Idempotent(t *testing.T) {
	env := newTestEnv(t, allowAll{})
	ctx := context.Background()
	d := register(t, env, "m1", "POS-1", DeviceTypePOS)
	admin := Actor{Name: "ops", MerchantID: "m1", Admin: true}

	require.NoError(t, env.svc.RequestDisconnect(ctx, d.sess.SessionID, admin))
	require.NoError(t, env.svc.RequestDisconnect(ctx, d.sess.SessionID, admin))

	// 两次请求只送达一次
	forced, err := heartbeat(t, env, d, HeartbeatInput{Status: StatusOnline})
	require.NoError(t, err)
	assert.True(t, forced)

	// 已 offline 后再次请求仍然成功
	require.NoError(t, env.svc.RequestDisconnect(ctx, d.sess.SessionID, admin))
	forced, err = heartbeat(t, env, d, HeartbeatInput{Status: StatusOnline})
	require.NoError(t, err)
	assert.False(t, forced)
}

func TestForceDisconnect_Errors(t *testing.T) {
	env := newTestEnv(t, denyAll{})
	ctx := context.Background()
	d := register(t, env, "m1", "POS-1", DeviceTypePOS)
	actor := Actor{Name: "other", MerchantID: "m2"}

	err := env.svc.RequestDisconnect(ctx, d.sess.SessionID, actor)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	err = env.svc.RequestDisconnect(ctx, "missing", actor)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestDisconnect_Voluntary(t *testing.T) {
	env := newTestEnv(t, allowAll{})
	ctx := context.Background()
	d := register(t, env, "m1", "POS-1", DeviceTypePOS)

	require.NoError(t, env.svc.Disconnect(ctx, "m1", d.sess.SessionID, d.token))

	view, err := env.svc.GetSession(ctx, "m1", d.sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, StatusOffline, view.Status)

	_, ok := env.creds.Get(d.sess.SessionID)
	assert.False(t, ok)
	entries := env.archive.byID(d.sess.SessionID)
	require.Len(t, entries, 1)
	assert.Equal(t, EndReasonDisconnect, entries[0].reason)

	// 重复断开幂等（凭证已清除也不再校验），不再归档
	require.NoError(t, env.svc.Disconnect(ctx, "m1", d.sess.SessionID, d.token))
	assert.Len(t, env.archive.byID(d.sess.SessionID), 1)

	// 未知会话返回 NotFound，绝不静默成功
	assert.ErrorIs(t, env.svc.Disconnect(ctx, "m1", "missing", "t"), ErrSessionNotFound)
}

func TestListActive_RetentionWindow(t *testing.T) {
	env := newTestEnv(t, allowAll{})
	ctx := context.Background()

	fresh := register(t, env, "m1", "Fresh", DeviceTypePOS)
	aging := register(t, env, "m1", "Aging", DeviceTypeTablet)
	require.NoError(t, env.svc.Disconnect(ctx, "m1", aging.sess.SessionID, aging.token))

	// 299s：offline 会话仍显式可见
	env.clock.Advance(299 * time.Second)
	_, err := heartbeat(t, env, fresh, HeartbeatInput{Status: StatusOnline})
	require.NoError(t, err)

	views, counts, err := env.svc.ListActive(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, 1, counts.Online)
	assert.Equal(t, 1, counts.Offline)

	// >300s：超过保留窗口后从视图剔除
	env.clock.Advance(2 * time.Second)
	_, err = heartbeat(t, env, fresh, HeartbeatInput{Status: StatusOnline})
	require.NoError(t, err)

	views, counts, err = env.svc.ListActive(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "Fresh", views[0].DeviceName)
	assert.Equal(t, 1, counts.Total)

	// 被剔除的记录已从注册表移除
	_, err = env.svc.GetSession(ctx, "m1", aging.sess.SessionID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestListActive_TimeoutEvictionArchivesOnce(t *testing.T) {
	env := newTestEnv(t, allowAll{})
	ctx := context.Background()
	d := register(t, env, "m1", "Ghost", DeviceTypeMobile)

	// 设备直接失联：硬超时 + 保留窗口过后在聚合时归档（reason=timeout）
	env.clock.Advance(130*time.Second + 300*time.Second)
	views, _, err := env.svc.ListActive(ctx, "m1")
	require.NoError(t, err)
	assert.Empty(t, views)

	entries := env.archive.byID(d.sess.SessionID)
	require.Len(t, entries, 1)
	assert.Equal(t, EndReasonTimeout, entries[0].reason)
}

func TestListActive_MerchantScoping(t *testing.T) {
	env := newTestEnv(t, allowAll{})
	ctx := context.Background()
	register(t, env, "m1", "POS-1", DeviceTypePOS)
	other := register(t, env, "m2", "POS-9", DeviceTypePOS)

	views, _, err := env.svc.ListActive(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.NotEqual(t, other.sess.SessionID, views[0].SessionID)

	// 跨商户读取按不存在处理
	_, err = env.svc.GetSession(ctx, "m1", other.sess.SessionID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

// 端到端：注册 -> idle 心跳 -> 长时间静默后判定 offline
func TestEndToEnd_HeartbeatThenSilence(t *testing.T) {
	env := newTestEnv(t, allowAll{})
	ctx := context.Background()

	d := register(t, env, "m1", "Kitchen Display", DeviceTypeKitchenDisplay)
	view, err := env.svc.GetSession(ctx, "m1", d.sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, StatusOnline, view.EffectiveStatus)

	// t+10s: idle 心跳
	env.clock.Advance(10 * time.Second)
	_, err = heartbeat(t, env, d, HeartbeatInput{Status: StatusIdle})
	require.NoError(t, err)

	view, _ = env.svc.GetSession(ctx, "m1", d.sess.SessionID)
	assert.Equal(t, StatusIdle, view.EffectiveStatus)

	// t+150s: 静默超过硬超时，读取时判定 offline（存储状态未被改写）
	env.clock.Advance(140 * time.Second)
	view, _ = env.svc.GetSession(ctx, "m1", d.sess.SessionID)
	assert.Equal(t, StatusOffline, view.EffectiveStatus)
	assert.Equal(t, StatusIdle, view.Status)
}

// 端到端：t+5s 管理端请求断开，t+10s 心跳送达信号
func TestEndToEnd_ForceDisconnectTimeline(t *testing.T) {
	env := newTestEnv(t, allowAll{})
	ctx := context.Background()
	admin := Actor{Name: "ops", MerchantID: "m1", Admin: true}

	d := register(t, env, "m1", "POS-1", DeviceTypePOS)

	env.clock.Advance(5 * time.Second)
	require.NoError(t, env.svc.RequestDisconnect(ctx, d.sess.SessionID, admin))

	env.clock.Advance(5 * time.Second)
	forced, err := heartbeat(t, env, d, HeartbeatInput{Status: StatusOnline})
	require.NoError(t, err)
	assert.True(t, forced)

	view, _ := env.svc.GetSession(ctx, "m1", d.sess.SessionID)
	assert.Equal(t, StatusOffline, view.Status)
}

// 心跳与强制断开并发竞争：信号恰好送达一次
func TestConcurrent_HeartbeatVsForceDisconnect(t *testing.T) {
	env := newTestEnv(t, allowAll{})
	admin := Actor{Name: "ops", MerchantID: "m1", Admin: true}

	for i := 0; i < 20; i++ {
		d := register(t, env, "m1", "POS-1", DeviceTypePOS)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = env.svc.RequestDisconnect(context.Background(), d.sess.SessionID, admin)
		}()
		delivered := 0
		var mu sync.Mutex
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				forced, err := heartbeat(t, env, d, HeartbeatInput{Status: StatusOnline})
				if err == nil && forced {
					mu.Lock()
					delivered++
					mu.Unlock()
				}
			}
		}()
		wg.Wait()

		// 竞争结束后补一次心跳，保证请求若晚于全部心跳也被送达
		forced, err := heartbeat(t, env, d, HeartbeatInput{Status: StatusOnline})
		require.NoError(t, err)
		if forced {
			delivered++
		}
		assert.Equal(t, 1, delivered, "disconnect must be delivered exactly once")
	}
}
