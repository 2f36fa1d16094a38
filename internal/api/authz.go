package api

import (
	"context"

	"github.com/taoyao-code/pos-server/internal/presence"
)

// StaticAuthorizer 基于 API Key 绑定关系的访问控制实现：
// 管理员只能管理自己商户范围内的会话；MerchantID 为空的管理员
// 视为平台运维，可管理任意商户。
type StaticAuthorizer struct{}

// Authorize 判断 actor 是否可管理指定商户的会话
func (StaticAuthorizer) Authorize(_ context.Context, actor presence.Actor, merchantID string) error {
	if !actor.Admin {
		return presence.ErrPermissionDenied
	}
	if actor.MerchantID != "" && actor.MerchantID != merchantID {
		return presence.ErrPermissionDenied
	}
	return nil
}
