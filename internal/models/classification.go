package models

// 异常分类（固定枚举；未知类型按小写原文透传）
const (
	CategoryNone                = "none"
	CategoryFallCritical        = "fall_critical"
	CategoryConvulsion          = "convulsion"
	CategoryFallDetected        = "fall_detected"
	CategoryDifficultyStanding  = "difficulty_standing"
	CategoryBradycardiaCritical = "bradycardia_critical"
	CategoryTachycardiaCritical = "tachycardia_critical"
	CategoryBradycardiaMild     = "bradycardia_mild"
)

// 严重程度分级（驱动 UI 样式和干预延迟建议）
const (
	SeverityNormal   = "normal"
	SeverityModerate = "moderate"
	SeveritySevere   = "severe"
	SeverityCritical = "critical"
)

// 紧急程度
const (
	UrgencyMaxEmergency     = "MAX_EMERGENCY"     // 立即干预
	UrgencyMedicalEmergency = "MEDICAL_EMERGENCY" // 医疗紧急
	UrgencyActiveWatch      = "ACTIVE_WATCH"      // 主动监视（分析中）
	UrgencyMedicalAlert     = "MEDICAL_ALERT"     // 医疗警报
	UrgencyCriticalAlert    = "CRITICAL_ALERT"    // 未知危急异常
	UrgencyAssistSuggested  = "ASSIST_SUGGESTED"  // 建议协助
	UrgencyInfo             = "INFO"              // 信息
	UrgencyWatch            = "WATCH"             // 观察
	UrgencyMonitoring       = "MONITORING"        // 正常监测
)

// Classification 单个数据包的异常分类结果（纯函数输出）
type Classification struct {
	Category string `json:"category"`
	Severity string `json:"severity"` // normal, moderate, severe, critical
	Urgency  string `json:"urgency"`
	Message  string `json:"message"`

	// 建议干预延迟（秒）；nil 表示无需定时干预
	InterventionDelaySec *int `json:"intervention_delay_sec,omitempty"`
}

// IsAnomalous 是否为异常分类（非 normal）
func (c Classification) IsAnomalous() bool {
	return c.Severity != SeverityNormal
}
