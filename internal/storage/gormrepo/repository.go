package gormrepo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/taoyao-code/pos-server/internal/storage"
	"github.com/taoyao-code/pos-server/internal/storage/models"
)

// Repository 基于 GORM 的 ArchiveRepo 实现
type Repository struct {
	db *gorm.DB
}

// New 返回一个使用给定 *gorm.DB 的 ArchiveRepo 实例
func New(db *gorm.DB) storage.ArchiveRepo {
	return &Repository{db: db}
}

// AppendArchive 追加归档记录，session_id 冲突时静默忽略（保留首条）
func (r *Repository) AppendArchive(ctx context.Context, rec *models.SessionArchive) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}},
			DoNothing: true,
		}).
		Create(rec).Error
}

// ListArchivesByMerchant 按商户分页查询归档，按结束时间倒序
func (r *Repository) ListArchivesByMerchant(ctx context.Context, merchantID string, limit, offset int) ([]models.SessionArchive, error) {
	var recs []models.SessionArchive
	q := r.db.WithContext(ctx).
		Where("merchant_id = ?", merchantID).
		Order("ended_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// CountArchivesByMerchant 商户归档总数
func (r *Repository) CountArchivesByMerchant(ctx context.Context, merchantID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.SessionArchive{}).
		Where("merchant_id = ?", merchantID).
		Count(&n).Error
	return n, err
}
