// Package bus 进程内有界事件日志（多订阅者扇出）。
//
// 单一全序追加日志 + 单调序列号；发布方绝不因订阅者读取速度阻塞。
// 订阅只持有一个游标整数，不持有内部存储的引用；游标落后于淘汰
// 水位线时静默跳到最旧保留事件（有界积压是尽力而为的回放，不是
// 可靠投递日志）。
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 广播事件类型
const (
	EventMeasurement  = "measurement"
	EventEpisodeStart = "episode-start"
	EventEpisodeEnd   = "episode-end"
)

// Event 不可变的广播事件快照（发布时分配序列号）
type Event struct {
	Seq       uint64          `json:"seq"`
	Type      string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Published time.Time       `json:"published_at"`
}

// Bus 有界事件日志
type Bus struct {
	mu       sync.Mutex
	events   []Event
	firstSeq uint64 // events[0] 的序列号
	nextSeq  uint64
	capacity int
	notify   chan struct{} // 发布时 close 再更换（广播唤醒）
	logger   *zap.Logger
}

// New 创建事件总线；capacity 为积压上限（超过则淘汰最旧事件）
func New(capacity int, logger *zap.Logger) *Bus {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Bus{
		capacity: capacity,
		notify:   make(chan struct{}),
		logger:   logger,
	}
}

// Publish 序列化 payload 并追加到日志，唤醒所有阻塞的订阅者。
// 只在追加+唤醒期间持锁，绝不等待订阅者。
func (b *Bus) Publish(eventType string, payload any) (uint64, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	b.mu.Lock()
	seq := b.nextSeq
	b.nextSeq++
	b.events = append(b.events, Event{
		Seq:       seq,
		Type:      eventType,
		Data:      data,
		Published: time.Now(),
	})
	// 淘汰最旧事件，保持积压有界
	if overflow := len(b.events) - b.capacity; overflow > 0 {
		b.events = b.events[overflow:]
		b.firstSeq += uint64(overflow)
	}
	close(b.notify)
	b.notify = make(chan struct{})
	b.mu.Unlock()

	return seq, nil
}

// LastSeq 已分配的最后一个序列号（尚未发布任何事件时为 0, false）
func (b *Bus) LastSeq() (uint64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.nextSeq == 0 {
		return 0, false
	}
	return b.nextSeq - 1, true
}

// Subscription 单个连接的订阅游标；各连接独立，不跨连接共享
type Subscription struct {
	ID     string
	bus    *Bus
	cursor uint64
}

// Subscribe 创建订阅；from 为起始序列号（0 表示完整回放积压）
func (b *Bus) Subscribe(from uint64) *Subscription {
	return &Subscription{
		ID:     uuid.New().String(),
		bus:    b,
		cursor: from,
	}
}

// Next 返回游标处的下一个事件。
// 无新事件时阻塞；空闲超过 keepAlive 返回 (nil, true, nil) 作为
// 保活标记；ctx 取消返回其错误。只在快照游标与日志长度比较时持锁，
// 序列化与传输均在锁外。
func (s *Subscription) Next(ctx context.Context, keepAlive time.Duration) (*Event, bool, error) {
	for {
		s.bus.mu.Lock()
		// 游标落后于淘汰水位线：静默跳到最旧保留事件
		if s.cursor < s.bus.firstSeq {
			s.cursor = s.bus.firstSeq
		}
		if s.cursor < s.bus.nextSeq {
			ev := s.bus.events[s.cursor-s.bus.firstSeq]
			s.cursor++
			s.bus.mu.Unlock()
			return &ev, false, nil
		}
		notify := s.bus.notify
		s.bus.mu.Unlock()

		select {
		case <-notify:
		case <-time.After(keepAlive):
			return nil, true, nil
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
}
