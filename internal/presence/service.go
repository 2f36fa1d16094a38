package presence

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Actor 发起管理操作的主体（来自认证层）
type Actor struct {
	Name       string
	MerchantID string
	Admin      bool
}

// Authorizer 外部访问控制协作方：判断 actor 是否可管理指定商户的会话。
// 本包只消费判定结果，不关心鉴权机制本身。
type Authorizer interface {
	Authorize(ctx context.Context, actor Actor, merchantID string) error
}

// CredentialStore 设备凭证缓存。注册时下发，心跳/断开时校验，
// 断开确认时清除，保证被终止的设备不会继续持有可用凭证。
type CredentialStore interface {
	Store(ctx context.Context, sessionID, token string) error
	// Check 校验凭证是否与下发值一致；凭证不存在或不一致返回 false
	Check(ctx context.Context, sessionID, token string) (bool, error)
	Clear(ctx context.Context, sessionID string) error
}

// Archiver 会话归档：结束的会话落库留档，不参与存活判定
type Archiver interface {
	Archive(ctx context.Context, s *DeviceSession, reason EndReason, endedAt time.Time) error
}

// Service 设备在线状态服务：注册、心跳、断开、强制断开与监控聚合
type Service struct {
	registry Registry
	creds    CredentialStore
	archive  Archiver
	authz    Authorizer
	policy   Policy
	logger   *zap.Logger
	now      func() time.Time
}

// Option Service 可选配置
type Option func(*Service)

// WithClock 替换时间源（测试用）
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService 创建在线状态服务
func NewService(
	registry Registry,
	creds CredentialStore,
	archive Archiver,
	authz Authorizer,
	policy Policy,
	logger *zap.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		registry: registry,
		creds:    creds,
		archive:  archive,
		authz:    authz,
		policy:   policy.Normalize(),
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy 返回当前存活判定策略
func (s *Service) Policy() Policy { return s.policy }

// RegisterInput 注册入参
type RegisterInput struct {
	MerchantID  string
	DeviceName  string
	DeviceType  DeviceType
	StationName string
	UserName    string
	IPAddress   string
	Metadata    map[string]string
}

// Register 设备上线注册。非幂等：重复调用产生新会话，旧会话自然老化。
// 返回新会话与下发给设备的凭证 token。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*DeviceSession, string, error) {
	if in.MerchantID == "" {
		return nil, "", &ValidationError{Field: "merchant_id", Reason: "must not be empty"}
	}
	if in.DeviceName == "" {
		return nil, "", &ValidationError{Field: "device_name", Reason: "must not be empty"}
	}
	if !in.DeviceType.Valid() {
		return nil, "", &ValidationError{Field: "device_type", Reason: "unknown device type"}
	}

	now := s.now()
	sess := &DeviceSession{
		SessionID:     uuid.New().String(),
		MerchantID:    in.MerchantID,
		DeviceName:    in.DeviceName,
		DeviceType:    in.DeviceType,
		StationName:   in.StationName,
		UserName:      in.UserName,
		Status:        StatusOnline,
		ConnectedAt:   now,
		LastHeartbeat: now,
		IPAddress:     in.IPAddress,
		Metadata:      in.Metadata,
	}

	if err := s.registry.Put(ctx, sess); err != nil {
		return nil, "", err
	}

	token := uuid.New().String()
	if err := s.creds.Store(ctx, sess.SessionID, token); err != nil {
		s.logger.Warn("store device credential failed",
			zap.String("session_id", sess.SessionID), zap.Error(err))
	}

	s.logger.Info("device session registered",
		zap.String("session_id", sess.SessionID),
		zap.String("merchant_id", sess.MerchantID),
		zap.String("device_name", sess.DeviceName),
		zap.String("device_type", string(sess.DeviceType)))

	return sess.Clone(), token, nil
}

// HeartbeatInput 心跳入参
type HeartbeatInput struct {
	Status            Status
	DeviceToken       string
	ActiveOrderNumber string
	ErrorMessage      string
	Metadata          map[string]string
}

// Heartbeat 处理设备心跳。返回 forcedDisconnect=true 表示管理端已请求断开，
// 设备应执行本地清理后停止上报。
//
// 会话只接受所属商户的心跳，跨商户按不存在处理；凭证不匹配拒绝写入。
// 强制断开标记的清除与 offline 置位在同一次原子更新内完成（compare-and-clear），
// 标记既不会丢失也不会二次送达。已 offline 的会话心跳为空操作并返回 false。
func (s *Service) Heartbeat(ctx context.Context, merchantID, sessionID string, in HeartbeatInput) (bool, error) {
	if !in.Status.Reportable() {
		return false, &ValidationError{Field: "status", Reason: "must be online, idle or error"}
	}

	now := s.now()
	forced := false
	terminal := false

	updated, err := s.registry.Update(ctx, sessionID, func(sess *DeviceSession) error {
		if sess.MerchantID != merchantID {
			// 跨商户不可见，按不存在处理
			return ErrSessionNotFound
		}
		if sess.Status == StatusOffline {
			// offline 为终态，恢复需要重新注册；凭证已清除，不再校验
			terminal = true
			return nil
		}
		ok, err := s.creds.Check(ctx, sessionID, in.DeviceToken)
		if err != nil {
			return err
		}
		if !ok {
			return ErrPermissionDenied
		}

		sess.MergeMetadata(in.Metadata)
		if sess.LastHeartbeat.Before(now) {
			sess.LastHeartbeat = now
		}

		if sess.ForceDisconnectRequested {
			sess.ForceDisconnectRequested = false
			sess.Status = StatusOffline
			forced = true
			return nil
		}

		sess.Status = in.Status
		sess.ActiveOrderNumber = in.ActiveOrderNumber
		sess.ErrorMessage = in.ErrorMessage
		return nil
	})
	if err != nil {
		return false, err
	}
	if terminal {
		return false, nil
	}

	if forced {
		s.endSession(ctx, updated, EndReasonForceDisconnect, now)
		s.logger.Info("force disconnect delivered",
			zap.String("session_id", sessionID),
			zap.String("merchant_id", updated.MerchantID))
	}
	return forced, nil
}

// Disconnect 设备主动断开（关机/退出时调用）。
// 会话只接受所属商户的断开，跨商户按不存在处理；凭证不匹配拒绝写入。
func (s *Service) Disconnect(ctx context.Context, merchantID, sessionID, deviceToken string) error {
	now := s.now()
	already := false

	updated, err := s.registry.Update(ctx, sessionID, func(sess *DeviceSession) error {
		if sess.MerchantID != merchantID {
			return ErrSessionNotFound
		}
		if sess.Status == StatusOffline {
			already = true
			return nil
		}
		ok, err := s.creds.Check(ctx, sessionID, deviceToken)
		if err != nil {
			return err
		}
		if !ok {
			return ErrPermissionDenied
		}
		sess.Status = StatusOffline
		sess.ForceDisconnectRequested = false
		if sess.LastHeartbeat.Before(now) {
			sess.LastHeartbeat = now
		}
		return nil
	})
	if err != nil {
		return err
	}
	if already {
		return nil
	}

	s.endSession(ctx, updated, EndReasonDisconnect, now)
	s.logger.Info("device session disconnected",
		zap.String("session_id", sessionID),
		zap.String("merchant_id", updated.MerchantID))
	return nil
}

// RequestDisconnect 管理端请求强制断开。只设置标记，权威状态切换发生在
// 设备下一次心跳（给设备留出本地清理的机会）；设备失联时由硬超时兜底，
// 两条路径收敛到同一 offline 终态。幂等：已标记或已 offline 时直接成功。
func (s *Service) RequestDisconnect(ctx context.Context, sessionID string, actor Actor) error {
	sess, err := s.registry.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	if err := s.authz.Authorize(ctx, actor, sess.MerchantID); err != nil {
		s.logger.Warn("force disconnect denied",
			zap.String("session_id", sessionID),
			zap.String("actor", actor.Name),
			zap.String("merchant_id", sess.MerchantID))
		return err
	}

	_, err = s.registry.Update(ctx, sessionID, func(sess *DeviceSession) error {
		if sess.Status == StatusOffline || sess.ForceDisconnectRequested {
			return nil
		}
		sess.ForceDisconnectRequested = true
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("force disconnect requested",
		zap.String("session_id", sessionID),
		zap.String("actor", actor.Name),
		zap.String("merchant_id", sess.MerchantID))
	return nil
}

// GetSession 查询单个会话（带有效状态），校验商户范围
func (s *Service) GetSession(ctx context.Context, merchantID, sessionID string) (*SessionView, error) {
	sess, err := s.registry.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.MerchantID != merchantID {
		// 跨商户不可见，按不存在处理
		return nil, ErrSessionNotFound
	}
	return &SessionView{
		DeviceSession:   *sess,
		EffectiveStatus: Classify(sess, s.now(), s.policy.HardTimeout),
	}, nil
}

// ListActive 商户活跃会话列表：逐条计算有效状态，剔除超过保留窗口的
// offline 会话（剔除时归档落库并从注册表移除）。
func (s *Service) ListActive(ctx context.Context, merchantID string) ([]SessionView, Counts, error) {
	sessions, err := s.registry.ListByMerchant(ctx, merchantID)
	if err != nil {
		return nil, Counts{}, err
	}

	now := s.now()
	views := make([]SessionView, 0, len(sessions))
	for _, sess := range sessions {
		eff := Classify(sess, now, s.policy.HardTimeout)
		if eff == StatusOffline && now.Sub(sess.LastHeartbeat) > s.policy.RetentionWindow {
			s.evict(ctx, sess, now)
			continue
		}
		views = append(views, SessionView{DeviceSession: *sess, EffectiveStatus: eff})
	}

	sort.Slice(views, func(i, j int) bool {
		return views[i].ConnectedAt.Before(views[j].ConnectedAt)
	})
	return views, ComputeCounts(views), nil
}

// endSession 断开确认后的收尾：清除设备凭证并归档
func (s *Service) endSession(ctx context.Context, sess *DeviceSession, reason EndReason, at time.Time) {
	if err := s.creds.Clear(ctx, sess.SessionID); err != nil {
		s.logger.Warn("clear device credential failed",
			zap.String("session_id", sess.SessionID), zap.Error(err))
	}
	if s.archive == nil {
		return
	}
	if err := s.archive.Archive(ctx, sess, reason, at); err != nil {
		s.logger.Warn("archive session failed",
			zap.String("session_id", sess.SessionID), zap.Error(err))
	}
}

// evict 保留窗口外的会话从活跃视图彻底移除。
// 存储状态仍为自报状态说明设备是硬超时失联的，此前未走过断开收尾，
// 在这里补归档（reason=timeout）；已 offline 的会话在断开时归档过，只删。
func (s *Service) evict(ctx context.Context, sess *DeviceSession, now time.Time) {
	if sess.Status != StatusOffline {
		s.endSession(ctx, sess, EndReasonTimeout, now)
	}
	if err := s.registry.Delete(ctx, sess.SessionID); err != nil {
		s.logger.Warn("delete aged session failed",
			zap.String("session_id", sess.SessionID), zap.Error(err))
	}
}
