// Package classifier 将传感器节点上报的报警字段映射到异常分类体系。
// 纯函数，无状态、无 I/O；未见过的 (severity, type) 组合软降级而非报错。
package classifier

import (
	"fmt"
	"strings"

	"github.com/alexlav17/SafeWatch-ReceiveData/internal/models"
)

// 传感器节点上报的原始类型（ESP32 固件侧的枚举）
const (
	typeFallCritical       = "FALL_CRITICAL"
	typeConvulsion         = "CONVULSION"
	typeFallDetected       = "FALL_DETECTED"
	typeDifficultyStanding = "DIFFICULTY_STANDING"
	typeBPMCriticalLow     = "BPM_CRITICAL_LOW"
	typeBPMCriticalHigh    = "BPM_CRITICAL_HIGH"
	typeBPMLow             = "BPM_LOW"
)

// categoryMapping 上报类型 -> 分类体系
var categoryMapping = map[string]string{
	typeFallCritical:       models.CategoryFallCritical,
	typeConvulsion:         models.CategoryConvulsion,
	typeFallDetected:       models.CategoryFallDetected,
	typeDifficultyStanding: models.CategoryDifficultyStanding,
	typeBPMCriticalLow:     models.CategoryBradycardiaCritical,
	typeBPMCriticalHigh:    models.CategoryTachycardiaCritical,
	typeBPMLow:             models.CategoryBradycardiaMild,
	"NONE":                 models.CategoryNone,
}

// Classify 根据上报的 (anomaly_severity, anomaly_type) 和当前心率返回分类。
// 确定性查表；未知类型在已知严重度下仍返回 unknown-critical/unknown-moderate
// 语义（类别透传小写原文），绝不返回错误。
func Classify(p *models.SensorPacket) models.Classification {
	anomalyType := p.AnomalyType
	if anomalyType == "" {
		anomalyType = "NONE"
	}

	category, known := categoryMapping[anomalyType]
	if !known {
		category = strings.ToLower(anomalyType)
	}

	switch p.AnomalySeverity {
	case "CRITICAL":
		return classifyCritical(anomalyType, category, p.BPM)
	case "MODERATE":
		return classifyModerate(anomalyType, category, p.BPM)
	default:
		return models.Classification{
			Category: models.CategoryNone,
			Severity: models.SeverityNormal,
			Urgency:  models.UrgencyMonitoring,
			Message:  "Readings normal",
		}
	}
}

// classifyCritical 危急级别：立即或限时干预
func classifyCritical(anomalyType, category string, bpm *float64) models.Classification {
	switch anomalyType {
	case typeFallCritical:
		return models.Classification{
			Category:             category,
			Severity:             models.SeverityCritical,
			Urgency:              models.UrgencyMaxEmergency,
			Message:              "Fall with immobility - person possibly unconscious",
			InterventionDelaySec: intPtr(0),
		}
	case typeConvulsion:
		return models.Classification{
			Category:             category,
			Severity:             models.SeverityCritical,
			Urgency:              models.UrgencyMedicalEmergency,
			Message:              "Convulsion detected after fall",
			InterventionDelaySec: intPtr(0),
		}
	case typeFallDetected:
		return models.Classification{
			Category:             category,
			Severity:             models.SeverityCritical,
			Urgency:              models.UrgencyActiveWatch,
			Message:              "Fall detected - analysis in progress (5s)",
			InterventionDelaySec: intPtr(5),
		}
	case typeBPMCriticalLow:
		return models.Classification{
			Category:             category,
			Severity:             models.SeverityCritical,
			Urgency:              models.UrgencyMedicalAlert,
			Message:              fmt.Sprintf("Severe bradycardia: %s bpm (< 35)", formatBPM(bpm)),
			InterventionDelaySec: intPtr(10),
		}
	case typeBPMCriticalHigh:
		return models.Classification{
			Category:             category,
			Severity:             models.SeverityCritical,
			Urgency:              models.UrgencyMedicalAlert,
			Message:              fmt.Sprintf("Severe tachycardia: %s bpm (> 150)", formatBPM(bpm)),
			InterventionDelaySec: intPtr(10),
		}
	default:
		// 未知危急类型：软降级，类别透传
		return models.Classification{
			Category:             category,
			Severity:             models.SeverityCritical,
			Urgency:              models.UrgencyCriticalAlert,
			Message:              fmt.Sprintf("Critical anomaly: %s", anomalyType),
			InterventionDelaySec: intPtr(0),
		}
	}
}

// classifyModerate 中等级别：加强监视
func classifyModerate(anomalyType, category string, bpm *float64) models.Classification {
	switch anomalyType {
	case typeDifficultyStanding:
		return models.Classification{
			Category:             category,
			Severity:             models.SeveritySevere, // 显示为橙色（多次跌倒）
			Urgency:              models.UrgencyAssistSuggested,
			Message:              "Difficulty standing up - repeated falls",
			InterventionDelaySec: intPtr(30),
		}
	case typeBPMLow:
		return models.Classification{
			Category: category,
			Severity: models.SeverityModerate,
			Urgency:  models.UrgencyInfo,
			Message:  fmt.Sprintf("Slightly low heart rate: %s bpm (< 50)", formatBPM(bpm)),
		}
	default:
		return models.Classification{
			Category: category,
			Severity: models.SeverityModerate,
			Urgency:  models.UrgencyWatch,
			Message:  fmt.Sprintf("Moderate anomaly: %s", anomalyType),
		}
	}
}

// formatBPM 心率缺失时显示 "?"
func formatBPM(bpm *float64) string {
	if bpm == nil {
		return "?"
	}
	return fmt.Sprintf("%.0f", *bpm)
}

func intPtr(i int) *int {
	return &i
}
