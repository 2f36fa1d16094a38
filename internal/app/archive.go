package app

import (
	"context"
	"encoding/json"
	"time"

	"github.com/taoyao-code/pos-server/internal/presence"
	"github.com/taoyao-code/pos-server/internal/storage"
	"github.com/taoyao-code/pos-server/internal/storage/models"
)

// SessionArchiver 把结束的会话写入归档库，实现 presence.Archiver
type SessionArchiver struct {
	repo storage.ArchiveRepo
}

// NewSessionArchiver 创建归档适配器
func NewSessionArchiver(repo storage.ArchiveRepo) *SessionArchiver {
	return &SessionArchiver{repo: repo}
}

// Archive 将会话记录转换为归档模型并追加写入
func (a *SessionArchiver) Archive(ctx context.Context, s *presence.DeviceSession, reason presence.EndReason, endedAt time.Time) error {
	rec := &models.SessionArchive{
		SessionID:     s.SessionID,
		MerchantID:    s.MerchantID,
		DeviceName:    s.DeviceName,
		DeviceType:    string(s.DeviceType),
		IPAddress:     s.IPAddress,
		EndReason:     string(reason),
		ConnectedAt:   s.ConnectedAt,
		LastHeartbeat: s.LastHeartbeat,
		EndedAt:       endedAt,
	}
	rec.StationName = optional(s.StationName)
	rec.UserName = optional(s.UserName)
	rec.ActiveOrderNumber = optional(s.ActiveOrderNumber)
	rec.ErrorMessage = optional(s.ErrorMessage)

	if len(s.Metadata) > 0 {
		if b, err := json.Marshal(s.Metadata); err == nil {
			rec.Metadata = b
		}
	}

	return a.repo.AppendArchive(ctx, rec)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
