package presence

import (
	"context"
	"sync"
)

// Registry 会话注册表接口，支持内存和Redis两种实现。
// 所有读写以 session_id 为键；Update 必须保证单键读-改-写的原子性，
// 否则心跳与强制断开并发修改同一条记录时会丢失 force_disconnect 标记。
type Registry interface {
	// Put 写入新会话记录
	Put(ctx context.Context, s *DeviceSession) error

	// Get 按 session_id 读取（返回副本）
	Get(ctx context.Context, sessionID string) (*DeviceSession, error)

	// Update 对单条记录执行原子读-改-写。fn 返回错误则放弃写入。
	// 返回修改后的记录副本。
	Update(ctx context.Context, sessionID string, fn func(*DeviceSession) error) (*DeviceSession, error)

	// ListByMerchant 返回商户范围内的全部会话（副本）
	ListByMerchant(ctx context.Context, merchantID string) ([]*DeviceSession, error)

	// Delete 移除会话记录（归档后调用）
	Delete(ctx context.Context, sessionID string) error
}

// MemoryRegistry 内存注册表：单实例部署使用，互斥锁保证单键原子性
type MemoryRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*DeviceSession // session_id -> record
}

// NewMemoryRegistry 创建内存注册表
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{sessions: make(map[string]*DeviceSession)}
}

// Put 写入新会话记录。session_id 由服务端生成，冲突视为内部错误。
func (r *MemoryRegistry) Put(_ context.Context, s *DeviceSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.SessionID] = s.Clone()
	return nil
}

// Get 按 session_id 读取
func (r *MemoryRegistry) Get(_ context.Context, sessionID string) (*DeviceSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.Clone(), nil
}

// Update 原子读-改-写
func (r *MemoryRegistry) Update(_ context.Context, sessionID string, fn func(*DeviceSession) error) (*DeviceSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	// 在副本上执行修改，fn 报错时原记录保持不变
	next := s.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	r.sessions[sessionID] = next
	return next.Clone(), nil
}

// ListByMerchant 返回商户范围内的全部会话
func (r *MemoryRegistry) ListByMerchant(_ context.Context, merchantID string) ([]*DeviceSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*DeviceSession, 0)
	for _, s := range r.sessions {
		if s.MerchantID == merchantID {
			out = append(out, s.Clone())
		}
	}
	return out, nil
}

// Delete 移除会话记录，不存在时静默成功
func (r *MemoryRegistry) Delete(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
	return nil
}
