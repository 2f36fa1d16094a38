package presence

import "time"

// Policy 存活判定策略。阈值来自配置，不是固定常量。
type Policy struct {
	// HeartbeatInterval 设备上报周期（强制断开的最坏送达延迟 = 一个周期 + 网络往返）
	HeartbeatInterval time.Duration
	// HardTimeout 超过该时长无心跳即判定 offline，覆盖崩溃/失联设备
	HardTimeout time.Duration
	// RetentionWindow offline 会话在活跃列表中保留的时长，超过后从视图剔除
	RetentionWindow time.Duration
}

// DefaultPolicy 返回默认策略（10s 心跳 / 120s 硬超时 / 300s 保留窗口）
func DefaultPolicy() Policy {
	return Policy{
		HeartbeatInterval: 10 * time.Second,
		HardTimeout:       120 * time.Second,
		RetentionWindow:   300 * time.Second,
	}
}

// Normalize 填充非法或缺省的阈值
func (p Policy) Normalize() Policy {
	d := DefaultPolicy()
	if p.HeartbeatInterval <= 0 {
		p.HeartbeatInterval = d.HeartbeatInterval
	}
	if p.HardTimeout <= 0 {
		p.HardTimeout = d.HardTimeout
	}
	if p.RetentionWindow <= 0 {
		p.RetentionWindow = d.RetentionWindow
	}
	return p
}
