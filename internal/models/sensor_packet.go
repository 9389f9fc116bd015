package models

import (
	"encoding/json"
	"time"
)

// 包类型（根据载荷内容推断，或由传感器显式指定）
const (
	KindAccel   = "accel"   // 仅加速度计数据
	KindCardiac = "cardiac" // 心率/ECG 数据
	KindRaw     = "raw"     // 无法识别的载荷
)

// SensorPacket 单个 UDP 数据报解析后的传感器数据包
// 字段缺失不导致拒收：加速度缺省为 0.0，心率缺省为 nil（宽松解析）
type SensorPacket struct {
	SourceID  string    `json:"id"`
	Kind      string    `json:"type"` // accel, cardiac, raw
	Timestamp time.Time `json:"timestamp"`

	// 加速度计（始终钳制在 ±2.0g）
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`

	// 心率传感器（可为空）
	BPM *float64 `json:"bpm,omitempty"` // 40-180，超出范围视为无效
	IR  *int64   `json:"ir,omitempty"`  // 红外振幅
	ECG *int64   `json:"ecg,omitempty"` // 原始心电信号

	// 传感器节点自带的报警字段
	Alert           bool    `json:"alert"`
	AnomalyType     string  `json:"anomaly_type,omitempty"`     // 如 FALL_CRITICAL, CONVULSION
	AnomalySeverity string  `json:"anomaly_severity,omitempty"` // CRITICAL, MODERATE, NONE
	SignalQuality   float64 `json:"signal_quality,omitempty"`
	BPMValid        bool    `json:"bpm_valid,omitempty"`
	SignalValid     bool    `json:"signal_valid,omitempty"`

	// 原始载荷副本（审计用，未识别的键原样保留）
	Raw json.RawMessage `json:"raw,omitempty"`
}

// HasCardiac 是否携带心率类数据
func (p *SensorPacket) HasCardiac() bool {
	return p.BPM != nil || p.IR != nil || p.ECG != nil
}
