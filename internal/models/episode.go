package models

import "time"

// EpisodeSample 异常期间累积的单个采样（含当时的分类快照）
type EpisodeSample struct {
	Timestamp     time.Time `json:"timestamp"`
	ECG           *int64    `json:"ecg"`
	BPM           *float64  `json:"bpm"`
	AccelX        float64   `json:"accel_x"`
	AccelY        float64   `json:"accel_y"`
	AccelZ        float64   `json:"accel_z"`
	Category      string    `json:"anomaly_type"`
	Severity      string    `json:"severity"`
	Urgency       string    `json:"urgency"`
	Message       string    `json:"message"`
	DelaySec      *int      `json:"intervention_delay_sec,omitempty"`
	BPMValid      bool      `json:"bpm_valid"`
	SignalValid   bool      `json:"signal_valid"`
	SignalQuality float64   `json:"signal_quality"`
	ReportedType  string    `json:"reported_type"`     // 传感器上报的原始类型
	ReportedLevel string    `json:"reported_severity"` // 传感器上报的原始严重度
}

// Episode 一次异常事件：从 alert 置位到解除的连续区间
// ID 由开始时间派生（20060102_150405）；由 Tracker 独占持有
type Episode struct {
	ID        string          `json:"id"`
	StartTime time.Time       `json:"start_time"`
	EndTime   time.Time       `json:"end_time"`
	Category  string          `json:"type"`
	Severity  string          `json:"severity"`
	Samples   []EpisodeSample `json:"data"`
}

// Duration 事件持续时长
func (e *Episode) Duration() time.Duration {
	return e.EndTime.Sub(e.StartTime)
}

// EpisodeSummary 事件关闭时的聚合统计（episode-end 广播载荷）
type EpisodeSummary struct {
	ID              string   `json:"id"`
	StartTime       string   `json:"start_time"`
	EndTime         string   `json:"end_time"`
	DurationSeconds float64  `json:"duration"`
	Category        string   `json:"type"`
	Severity        string   `json:"severity"`
	BPMMin          *float64 `json:"bpm_min"`
	BPMMax          *float64 `json:"bpm_max"`
	BPMAvg          *float64 `json:"bpm_avg"`
	AccelXMax       float64  `json:"accel_x_max"`
	AccelYMax       float64  `json:"accel_y_max"`
	AccelZMax       float64  `json:"accel_z_max"`
	AccelMax        float64  `json:"accel_max"`
	Description     string   `json:"description"`
}

// EpisodeRecord 异常归档 CSV 的一行（读取路径用）
type EpisodeRecord struct {
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	DurationSeconds string `json:"duration_seconds"`
	AnomalyType     string `json:"anomaly_type"`
	BPMMin          string `json:"bpm_min"`
	BPMMax          string `json:"bpm_max"`
	BPMAvg          string `json:"bpm_avg"`
	AccelXMax       string `json:"accel_x_max"`
	AccelYMax       string `json:"accel_y_max"`
	AccelZMax       string `json:"accel_z_max"`
	Severity        string `json:"severity"`
	Description     string `json:"description"`
}
