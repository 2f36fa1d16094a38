package presence

import "time"

// Classify 计算会话在 now 时刻的有效状态。
// 纯函数：相同 (session, now) 输入恒得相同结果，无副作用，读取时求值，
// 不依赖后台扫描，任意并发观察者看到一致结果。
//
// 规则：
//  1. now - last_heartbeat > hardTimeout => offline（无论自报状态）
//  2. 否则 => 存储的自报状态
func Classify(s *DeviceSession, now time.Time, hardTimeout time.Duration) Status {
	if s == nil {
		return StatusOffline
	}
	if now.Sub(s.LastHeartbeat) > hardTimeout {
		return StatusOffline
	}
	return s.Status
}

// ComputeCounts 按有效状态对会话视图分组计数
func ComputeCounts(views []SessionView) Counts {
	c := Counts{Total: len(views)}
	for _, v := range views {
		switch v.EffectiveStatus {
		case StatusOnline:
			c.Online++
		case StatusIdle:
			c.Idle++
		case StatusOffline:
			c.Offline++
		case StatusError:
			c.Error++
		}
	}
	return c
}
