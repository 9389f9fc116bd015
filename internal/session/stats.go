package session

import (
	"sync/atomic"
	"time"
)

// Stats 进程级会话统计
// 仅由 Receiver 写入（原子递增），状态查询读取只读快照
// 进程启动时创建，单次会话内不重置
type Stats struct {
	start      time.Time
	packets    atomic.Int64
	lastPacket atomic.Int64 // UnixNano，0 表示尚未收到任何包
}

// NewStats 创建会话统计（以当前时间为会话起点）
func NewStats() *Stats {
	return &Stats{start: time.Now()}
}

// RecordPacket 记录一个收到的数据包
func (s *Stats) RecordPacket(at time.Time) {
	s.packets.Add(1)
	s.lastPacket.Store(at.UnixNano())
}

// Snapshot 只读快照
type Snapshot struct {
	PacketsReceived int64      `json:"packets_received"`
	LastPacketTime  *time.Time `json:"last_packet_time"`
	SessionStart    time.Time  `json:"session_start"`
	SessionDuration float64    `json:"session_duration"` // 秒
}

// Snapshot 当前统计快照
func (s *Stats) Snapshot() Snapshot {
	snap := Snapshot{
		PacketsReceived: s.packets.Load(),
		SessionStart:    s.start,
		SessionDuration: time.Since(s.start).Seconds(),
	}
	if ns := s.lastPacket.Load(); ns > 0 {
		t := time.Unix(0, ns)
		snap.LastPacketTime = &t
	}
	return snap
}
