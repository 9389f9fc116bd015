// Package tracker 异常事件状态机：把逐包报警标志流聚合为离散的异常事件。
//
// 状态：Idle（无进行中事件）/ Open（事件累积中）。全局单事件：不按来源
// 隔离，第二个来源在事件进行中发出的报警视为同一事件的延续。
package tracker

import (
	"fmt"
	"sync"
	"time"

	"github.com/alexlav17/SafeWatch-ReceiveData/internal/bus"
	"github.com/alexlav17/SafeWatch-ReceiveData/internal/models"

	"go.uber.org/zap"
)

// 聚合描述用的阈值
const (
	bpmLowThreshold   = 40.0
	bpmHighThreshold  = 150.0
	accelIntenseLimit = 1.5 // 超过 1.5g 视为剧烈运动
)

// episodeIDLayout 事件 ID 由开始时间派生
const episodeIDLayout = "20060102_150405"

// EpisodeArchiver 事件关闭时的持久化出口（归档行 + 原始采样快照）
type EpisodeArchiver interface {
	ArchiveEpisode(episode *models.Episode, summary *models.EpisodeSummary) error
}

// Publisher 广播出口
type Publisher interface {
	Publish(eventType string, payload any) (uint64, error)
}

// StartEvent episode-start 广播载荷：分类 + 当前读数快照
// 必须在任何时长门控之前立即发出，让值守人员第一时间看到信号
type StartEvent struct {
	Category         string   `json:"type"`
	ReportedType     string   `json:"reported_type"`
	Severity         string   `json:"severity"`
	ReportedSeverity string   `json:"reported_severity"`
	Urgency          string   `json:"urgency"`
	Message          string   `json:"message"`
	DelaySec         *int     `json:"intervention_delay_sec,omitempty"`
	BPM              *float64 `json:"bpm"`
	BPMValid         bool     `json:"bpm_valid"`
	AccelMax         float64  `json:"accel_max"`
	SignalQuality    float64  `json:"signal_quality"`
	Timestamp        string   `json:"timestamp"`
}

// Tracker 异常事件追踪器
// 互斥锁只在状态转移期间持有，绝不跨 I/O 调用；持久化与广播在锁外进行
type Tracker struct {
	minDuration time.Duration
	archive     EpisodeArchiver
	publisher   Publisher
	logger      *zap.Logger
	now         func() time.Time

	mu        sync.Mutex
	open      bool
	startTime time.Time
	category  string
	severity  string
	samples   []models.EpisodeSample
}

// New 创建事件追踪器；minDuration 为事件最短持续时长（低于则视为噪声丢弃）
func New(minDuration time.Duration, archive EpisodeArchiver, publisher Publisher, logger *zap.Logger) *Tracker {
	return &Tracker{
		minDuration: minDuration,
		archive:     archive,
		publisher:   publisher,
		logger:      logger,
		now:         time.Now,
	}
}

// Open 当前是否有进行中的事件
func (t *Tracker) Open() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

// Process 处理一个已分类的数据包，驱动状态机
func (t *Tracker) Process(p *models.SensorPacket, c models.Classification) {
	if p.Alert {
		t.processAlert(p, c)
		return
	}
	t.processClear(p)
}

// processAlert Idle→Open（立即广播 episode-start）或 Open→Open（仅累积）
func (t *Tracker) processAlert(p *models.SensorPacket, c models.Classification) {
	sample := models.EpisodeSample{
		Timestamp:     p.Timestamp,
		ECG:           p.ECG,
		BPM:           p.BPM,
		AccelX:        p.X,
		AccelY:        p.Y,
		AccelZ:        p.Z,
		Category:      c.Category,
		Severity:      c.Severity,
		Urgency:       c.Urgency,
		Message:       c.Message,
		DelaySec:      c.InterventionDelaySec,
		BPMValid:      p.BPMValid,
		SignalValid:   p.SignalValid,
		SignalQuality: p.SignalQuality,
		ReportedType:  p.AnomalyType,
		ReportedLevel: p.AnomalySeverity,
	}

	t.mu.Lock()
	opened := false
	if !t.open {
		t.open = true
		t.startTime = t.now()
		t.category = c.Category
		t.severity = c.Severity
		t.samples = t.samples[:0]
		opened = true
	}
	t.samples = append(t.samples, sample)
	startTime := t.startTime
	t.mu.Unlock()

	if !opened {
		return
	}

	t.logger.Warn("Episode started",
		zap.String("category", c.Category),
		zap.String("severity", c.Severity),
		zap.String("urgency", c.Urgency),
		zap.String("message", c.Message),
	)

	start := StartEvent{
		Category:         c.Category,
		ReportedType:     p.AnomalyType,
		Severity:         c.Severity,
		ReportedSeverity: p.AnomalySeverity,
		Urgency:          c.Urgency,
		Message:          c.Message,
		DelaySec:         c.InterventionDelaySec,
		BPM:              p.BPM,
		BPMValid:         p.BPMValid,
		AccelMax:         maxAbs3(p.X, p.Y, p.Z),
		SignalQuality:    p.SignalQuality,
		Timestamp:        startTime.Format(time.RFC3339),
	}
	if _, err := t.publisher.Publish(bus.EventEpisodeStart, start); err != nil {
		t.logger.Error("Failed to publish episode-start", zap.Error(err))
	}
}

// processClear Open→Idle：时长达标则归档并广播 episode-end，否则静默丢弃。
// 时长不足时不发任何补偿事件，已广播的 episode-start 保持原样。
func (t *Tracker) processClear(p *models.SensorPacket) {
	t.mu.Lock()
	if !t.open {
		t.mu.Unlock()
		return
	}
	endTime := t.now()
	episode := &models.Episode{
		ID:        t.startTime.Format(episodeIDLayout),
		StartTime: t.startTime,
		EndTime:   endTime,
		Category:  t.category,
		Severity:  t.severity,
		Samples:   append([]models.EpisodeSample(nil), t.samples...),
	}
	t.open = false
	t.samples = t.samples[:0]
	t.mu.Unlock()

	duration := episode.Duration()
	if duration < t.minDuration {
		t.logger.Info("Episode discarded as noise",
			zap.String("category", episode.Category),
			zap.Duration("duration", duration),
			zap.Duration("min_duration", t.minDuration),
		)
		return
	}

	summary := BuildSummary(episode)

	if err := t.archive.ArchiveEpisode(episode, summary); err != nil {
		// 归档失败只记录：广播与持久化是相互独立的尽力而为出口
		t.logger.Error("Failed to archive episode",
			zap.String("episode_id", episode.ID),
			zap.Error(err),
		)
	}

	if _, err := t.publisher.Publish(bus.EventEpisodeEnd, summary); err != nil {
		t.logger.Error("Failed to publish episode-end", zap.Error(err))
	}

	t.logger.Info("Episode closed",
		zap.String("episode_id", episode.ID),
		zap.String("category", episode.Category),
		zap.Float64("duration_seconds", duration.Seconds()),
	)
}

// BuildSummary 计算事件聚合统计：bpm 最小/最大/均值、各轴最大 |accel|、
// 由阈值突破拼接的文字描述
func BuildSummary(episode *models.Episode) *models.EpisodeSummary {
	summary := &models.EpisodeSummary{
		ID:              episode.ID,
		StartTime:       episode.StartTime.Format(time.RFC3339),
		EndTime:         episode.EndTime.Format(time.RFC3339),
		DurationSeconds: episode.Duration().Seconds(),
		Category:        episode.Category,
		Severity:        episode.Severity,
	}

	var bpmSum float64
	var bpmCount int
	for _, s := range episode.Samples {
		if s.BPM != nil {
			v := *s.BPM
			if summary.BPMMin == nil || v < *summary.BPMMin {
				summary.BPMMin = floatPtr(v)
			}
			if summary.BPMMax == nil || v > *summary.BPMMax {
				summary.BPMMax = floatPtr(v)
			}
			bpmSum += v
			bpmCount++
		}
		summary.AccelXMax = maxFloat(summary.AccelXMax, abs(s.AccelX))
		summary.AccelYMax = maxFloat(summary.AccelYMax, abs(s.AccelY))
		summary.AccelZMax = maxFloat(summary.AccelZMax, abs(s.AccelZ))
	}
	if bpmCount > 0 {
		summary.BPMAvg = floatPtr(bpmSum / float64(bpmCount))
	}
	summary.AccelMax = maxFloat(summary.AccelXMax, maxFloat(summary.AccelYMax, summary.AccelZMax))
	summary.Description = buildDescription(summary)

	return summary
}

// buildDescription 组合阈值突破的文字描述
func buildDescription(s *models.EpisodeSummary) string {
	desc := "Anomaly detected: " + s.Category
	if s.BPMMin != nil && *s.BPMMin < bpmLowThreshold {
		desc += fmt.Sprintf(" | low bpm: %.0f", *s.BPMMin)
	}
	if s.BPMMax != nil && *s.BPMMax > bpmHighThreshold {
		desc += fmt.Sprintf(" | high bpm: %.0f", *s.BPMMax)
	}
	if s.AccelMax > accelIntenseLimit {
		desc += " | intense movement"
	}
	return desc
}

func floatPtr(f float64) *float64 {
	return &f
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func maxAbs3(x, y, z float64) float64 {
	return maxFloat(abs(x), maxFloat(abs(y), abs(z)))
}
