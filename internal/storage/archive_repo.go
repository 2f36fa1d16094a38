package storage

import (
	"context"

	"github.com/taoyao-code/pos-server/internal/storage/models"
)

// ArchiveRepo 会话归档存储抽象。
// 约束：
// - 禁止上层直接写 SQL，统一通过本接口访问
// - 归档为追加写，不提供更新/删除
// - 接口保持 DB-agnostic（面向模型与基础类型）
type ArchiveRepo interface {
	// AppendArchive 追加一条会话归档记录。
	// session_id 唯一，重复归档同一会话时保留首条（冲突静默忽略）。
	AppendArchive(ctx context.Context, rec *models.SessionArchive) error

	// ListArchivesByMerchant 按商户分页查询归档，按结束时间倒序
	ListArchivesByMerchant(ctx context.Context, merchantID string, limit, offset int) ([]models.SessionArchive, error)

	// CountArchivesByMerchant 商户归档总数
	CountArchivesByMerchant(ctx context.Context, merchantID string) (int64, error)
}
