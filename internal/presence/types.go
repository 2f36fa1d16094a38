package presence

import (
	"time"
)

// DeviceType 设备类型
type DeviceType string

const (
	DeviceTypePOS             DeviceType = "pos"
	DeviceTypeCustomerDisplay DeviceType = "customer_display"
	DeviceTypeKitchenDisplay  DeviceType = "kitchen_display"
	DeviceTypeTablet          DeviceType = "tablet"
	DeviceTypeMobile          DeviceType = "mobile"
	DeviceTypeWeb             DeviceType = "web"
)

// Valid 判断设备类型是否为已知类型
func (t DeviceType) Valid() bool {
	switch t {
	case DeviceTypePOS, DeviceTypeCustomerDisplay, DeviceTypeKitchenDisplay,
		DeviceTypeTablet, DeviceTypeMobile, DeviceTypeWeb:
		return true
	}
	return false
}

// Status 会话状态
// online/idle/error 为设备自报状态，可互相转换；
// offline 为终态：硬超时或强制断开确认后进入，同一 session_id 不再恢复。
type Status string

const (
	StatusOnline  Status = "online"
	StatusIdle    Status = "idle"
	StatusOffline Status = "offline"
	StatusError   Status = "error"
)

// Reportable 判断状态是否允许设备自报（offline 只能由服务端判定）
func (s Status) Reportable() bool {
	return s == StatusOnline || s == StatusIdle || s == StatusError
}

// DeviceSession 设备会话记录，由 Registry 独占持有。
// 只通过 Register/Heartbeat/RequestDisconnect 修改。
type DeviceSession struct {
	SessionID  string     `json:"session_id"`
	MerchantID string     `json:"merchant_id"`
	DeviceName string     `json:"device_name"`
	DeviceType DeviceType `json:"device_type"`

	// 可选描述字段
	StationName       string `json:"station_name,omitempty"`
	UserName          string `json:"user_name,omitempty"`
	ActiveOrderNumber string `json:"active_order_number,omitempty"`
	ErrorMessage      string `json:"error_message,omitempty"`

	// Status 最近一次自报状态（对外展示时以 Classify 结果为准）
	Status        Status    `json:"status"`
	ConnectedAt   time.Time `json:"connected_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	IPAddress     string    `json:"ip_address"`

	// Metadata 开放键值对，心跳时合并而非替换
	Metadata map[string]string `json:"metadata,omitempty"`

	// ForceDisconnectRequested 管理端断开意图，不直接暴露给设备，
	// 只通过心跳响应的 forced_disconnect 信号传达
	ForceDisconnectRequested bool `json:"-"`
}

// Clone 深拷贝会话记录，Registry 返回副本避免调用方绕过锁修改内部状态
func (s *DeviceSession) Clone() *DeviceSession {
	if s == nil {
		return nil
	}
	cp := *s
	if s.Metadata != nil {
		cp.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// MergeMetadata 合并键值对（覆盖同名键，保留其余）
func (s *DeviceSession) MergeMetadata(kv map[string]string) {
	if len(kv) == 0 {
		return
	}
	if s.Metadata == nil {
		s.Metadata = make(map[string]string, len(kv))
	}
	for k, v := range kv {
		s.Metadata[k] = v
	}
}

// Counts 按有效状态划分的会话数量统计
type Counts struct {
	Total   int `json:"total"`
	Online  int `json:"online"`
	Idle    int `json:"idle"`
	Offline int `json:"offline"`
	Error   int `json:"error"`
}

// SessionView 对外展示的会话视图：原始记录 + 读取时计算的有效状态
type SessionView struct {
	DeviceSession
	EffectiveStatus Status `json:"effective_status"`
}

// EndReason 会话结束原因（写入归档）
type EndReason string

const (
	EndReasonDisconnect      EndReason = "disconnect"       // 设备主动断开
	EndReasonForceDisconnect EndReason = "force_disconnect" // 管理端强制断开（设备已确认）
	EndReasonTimeout         EndReason = "timeout"          // 硬超时老化
)
