package models

import (
	"time"
)

// 注意：
// - 保持与 db/migrations/0001_session_archive_up.sql 完全对齐
// - 不使用 gorm.Model，显式声明每个字段，避免隐式 DeletedAt

// SessionArchive 映射 session_archive 表。
// 结束的设备会话（主动断开/强制断开/硬超时老化）在此留档，
// 仅用于追溯查询，不参与存活判定。
type SessionArchive struct {
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// 会话唯一标识（注册时生成）
	SessionID string `gorm:"column:session_id;type:text;not null;uniqueIndex"`
	// 商户范围
	MerchantID string `gorm:"column:merchant_id;type:text;not null;index:idx_archive_merchant_time,priority:1"`
	DeviceName string `gorm:"column:device_name;type:text;not null"`
	DeviceType string `gorm:"column:device_type;type:text;not null"`
	// 可选描述字段
	StationName       *string `gorm:"column:station_name;type:text"`
	UserName          *string `gorm:"column:user_name;type:text"`
	ActiveOrderNumber *string `gorm:"column:active_order_number;type:text"`
	ErrorMessage      *string `gorm:"column:error_message;type:text"`
	IPAddress         string  `gorm:"column:ip_address;type:text"`
	// Metadata 会话结束时的键值对快照（JSON）
	Metadata []byte `gorm:"column:metadata;type:jsonb"`
	// 结束原因：disconnect / force_disconnect / timeout
	EndReason string `gorm:"column:end_reason;type:text;not null"`
	// 会话时间线
	ConnectedAt   time.Time `gorm:"column:connected_at;not null"`
	LastHeartbeat time.Time `gorm:"column:last_heartbeat;not null"`
	EndedAt       time.Time `gorm:"column:ended_at;not null;index:idx_archive_merchant_time,priority:2,sort:desc"`
	// 审计字段
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (SessionArchive) TableName() string { return "session_archive" }
