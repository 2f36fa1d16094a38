package presence

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// MessageMap 面向用户的提示文案映射：错误码 -> 文案。
// 内置默认文案，可用 YAML 文件覆盖（运营侧定制话术）。
type MessageMap struct {
	Messages map[string]string `yaml:"messages"`
}

// 错误码（对外API返回的 error 字段）
const (
	CodeValidation       = "validation_error"
	CodeSessionNotFound  = "session_not_found"
	CodePermissionDenied = "permission_denied"
	CodeTransient        = "service_unavailable"
)

// DefaultMessageMap 返回默认文案
func DefaultMessageMap() *MessageMap {
	return &MessageMap{
		Messages: map[string]string{
			CodeValidation:       "请求参数无效，请检查后重试",
			CodeSessionNotFound:  "设备会话不存在或已失效，请重新注册设备",
			CodePermissionDenied: "无权管理该商户的设备会话",
			CodeTransient:        "服务暂时不可用，请稍后重试",
		},
	}
}

// LoadMessageMap 从 YAML 文件加载文案并合并到默认文案之上
func LoadMessageMap(path string) (*MessageMap, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read message map: %w", err)
	}
	var override MessageMap
	if err := yaml.Unmarshal(b, &override); err != nil {
		return nil, fmt.Errorf("unmarshal message map: %w", err)
	}

	m := DefaultMessageMap()
	m.Merge(&override)
	return m, nil
}

// Lookup 查询错误码对应的文案
func (m *MessageMap) Lookup(code string) string {
	if m == nil || m.Messages == nil {
		return code
	}
	if msg, ok := m.Messages[code]; ok {
		return msg
	}
	return code
}

// Merge 合并另一份文案（覆盖同名错误码）
func (m *MessageMap) Merge(other *MessageMap) {
	if m == nil || m.Messages == nil || other == nil || other.Messages == nil {
		return
	}
	for k, v := range other.Messages {
		m.Messages[k] = v
	}
}
