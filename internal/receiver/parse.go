package receiver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alexlav17/SafeWatch-ReceiveData/internal/models"
)

// 加速度钳制范围（±2g，MPU 量程）
const (
	accelMin = -2.0
	accelMax = 2.0
)

// 有效心率范围；超出视为无效读数（nil），不拒收数据包
const (
	bpmMin = 40.0
	bpmMax = 180.0
)

// ParsePacket 把一个 UDP 数据报解析为 SensorPacket。
// 宽松解析：字段缺失或类型不符时取缺省值，绝不因部分有效而拒收；
// 只有 JSON 本身无法解码才返回错误。未识别的键保留在审计副本中。
func ParsePacket(data []byte, remoteAddr string, receivedAt time.Time) (*models.SensorPacket, error) {
	trimmed := bytes.TrimSpace(data)

	var payload map[string]any
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode datagram: %w", err)
	}

	p := &models.SensorPacket{
		Raw: json.RawMessage(append([]byte(nil), trimmed...)),
	}

	// 来源标识：缺失时退回发送方地址
	p.SourceID = stringField(payload, "id")
	if p.SourceID == "" {
		p.SourceID = remoteAddr
	}

	// 时间戳：传感器提供的 ISO-8601，解析失败退回接收时间
	p.Timestamp = receivedAt
	if ts := stringField(payload, "timestamp"); ts != "" {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			p.Timestamp = parsed
		}
	}

	// 加速度（别名 x/acc_x 等；缺省 0.0；钳制 ±2g）
	p.X = clampAccel(floatField(payload, "x", "acc_x"))
	p.Y = clampAccel(floatField(payload, "y", "acc_y"))
	p.Z = clampAccel(floatField(payload, "z", "acc_z"))

	// 心率：范围外视为无效（nil）
	if bpm, ok := optionalFloat(payload, "bpm"); ok && bpm >= bpmMin && bpm <= bpmMax {
		p.BPM = &bpm
	}
	if ir, ok := optionalFloat(payload, "ir"); ok {
		v := int64(ir)
		p.IR = &v
	}
	// 心电信号：别名 ecg/signal
	if ecg, ok := optionalFloat(payload, "ecg", "signal"); ok {
		v := int64(ecg)
		p.ECG = &v
	}

	// 报警字段
	p.Alert = boolField(payload, "alert")
	p.AnomalyType = stringField(payload, "anomaly_type")
	p.AnomalySeverity = stringField(payload, "anomaly_severity")
	p.SignalQuality = floatField(payload, "signal_quality")
	p.BPMValid = boolField(payload, "bpm_valid")
	p.SignalValid = boolField(payload, "signal_valid")

	p.Kind = inferKind(payload)

	return p, nil
}

// inferKind 包类型：显式 type 字段优先，否则按载荷键推断。
// 按键而非按解析结果判断：越界心率的心脏包仍是心脏包。
func inferKind(payload map[string]any) string {
	if kind := stringField(payload, "type"); kind != "" {
		return kind
	}
	if hasAny(payload, "bpm", "ir", "ecg", "signal") {
		return models.KindCardiac
	}
	if hasAny(payload, "x", "acc_x", "y", "acc_y", "z", "acc_z") {
		return models.KindAccel
	}
	return models.KindRaw
}

func clampAccel(v float64) float64 {
	if v < accelMin {
		return accelMin
	}
	if v > accelMax {
		return accelMax
	}
	return v
}

func stringField(payload map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := payload[k].(string); ok {
			return s
		}
	}
	return ""
}

func boolField(payload map[string]any, keys ...string) bool {
	for _, k := range keys {
		if b, ok := payload[k].(bool); ok {
			return b
		}
	}
	return false
}

// floatField 第一个存在且为数值的别名；全部缺失返回 0.0
func floatField(payload map[string]any, keys ...string) float64 {
	v, _ := optionalFloat(payload, keys...)
	return v
}

// optionalFloat 区分缺失与 0 值
func optionalFloat(payload map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if f, ok := payload[k].(float64); ok {
			return f, true
		}
	}
	return 0, false
}

func hasAny(payload map[string]any, keys ...string) bool {
	for _, k := range keys {
		if _, ok := payload[k]; ok {
			return true
		}
	}
	return false
}
