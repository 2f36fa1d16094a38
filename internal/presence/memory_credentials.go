package presence

import (
	"context"
	"sync"
)

// MemoryCredentialStore 内存版设备凭证缓存（单实例部署/测试用）
type MemoryCredentialStore struct {
	mu     sync.RWMutex
	tokens map[string]string // session_id -> token
}

// NewMemoryCredentialStore 创建内存凭证缓存
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{tokens: make(map[string]string)}
}

// Store 写入设备凭证
func (m *MemoryCredentialStore) Store(_ context.Context, sessionID, token string) error {
	m.mu.Lock()
	m.tokens[sessionID] = token
	m.mu.Unlock()
	return nil
}

// Check 校验设备凭证，不存在或不一致返回 false
func (m *MemoryCredentialStore) Check(_ context.Context, sessionID, token string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tokens[sessionID]
	return ok && token != "" && t == token, nil
}

// Clear 清除设备凭证，不存在时静默成功
func (m *MemoryCredentialStore) Clear(_ context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.tokens, sessionID)
	m.mu.Unlock()
	return nil
}

// Get 查询设备凭证（测试辅助）
func (m *MemoryCredentialStore) Get(sessionID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tokens[sessionID]
	return t, ok
}
