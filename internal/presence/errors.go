package presence

import (
	"errors"
	"fmt"
)

// 错误分类：
// - ValidationError 注册入参非法，不应重试
// - ErrSessionNotFound 会话不存在，调用方需重新注册
// - ErrPermissionDenied 无权操作目标会话
// - TransientError 存储/网络暂时不可用，下个心跳周期自然重试
var (
	ErrSessionNotFound  = errors.New("device session not found")
	ErrPermissionDenied = errors.New("permission denied")
)

// ValidationError 注册/心跳入参校验失败
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// TransientError 包装底层存储的暂时性错误，心跳发送方按周期重试即可
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient 判断错误是否为暂时性错误
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
