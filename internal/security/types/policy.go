package types

import (
	"time"
)

// Severity 规则与事件的严重级别
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// RuleType 安全规则类型
type RuleType string

const (
	RuleTypeDataAccess     RuleType = "data_access"
	RuleTypeCodeExecution  RuleType = "code_execution"
	RuleTypeFileOperations RuleType = "file_operations"
	RuleTypeNetworkAccess  RuleType = "network_access"
	RuleTypeSensitiveData  RuleType = "sensitive_data"
	RuleTypeAuthentication RuleType = "authentication"
	RuleTypeAuthorization  RuleType = "authorization"
	RuleTypeCompliance     RuleType = "compliance"
	RuleTypeAudit          RuleType = "audit"
)

// ConditionType 规则条件类型
type ConditionType string

const (
	ConditionPatternMatch    ConditionType = "pattern_match"
	ConditionPermissionCheck ConditionType = "permission_check"
	ConditionTimeBased       ConditionType = "time_based"
	ConditionLocationBased   ConditionType = "location_based"
	ConditionRiskScore       ConditionType = "risk_score"
)

// Operator 条件比较运算符
type Operator string

const (
	OperatorEquals      Operator = "equals"
	OperatorContains    Operator = "contains"
	OperatorMatches     Operator = "matches"
	OperatorGreaterThan Operator = "greater_than"
	OperatorLessThan    Operator = "less_than"
	OperatorInRange     Operator = "in_range"
)

// ActionType 规则动作类型
type ActionType string

const (
	ActionBlock           ActionType = "block"
	ActionWarn            ActionType = "warn"
	ActionLog             ActionType = "log"
	ActionRequireApproval ActionType = "require_approval"
	ActionQuarantine      ActionType = "quarantine"
	ActionNotify          ActionType = "notify"
)

// PatternCondition 关键字匹配条件
type PatternCondition struct {
	Patterns []string `json:"patterns"`
}

// PermissionCheckCondition 权限复查条件
type PermissionCheckCondition struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

// TimeCondition 时间窗口条件（小时，本地时间，[Start, End)）
type TimeCondition struct {
	StartHour int `json:"start_hour"`
	EndHour   int `json:"end_hour"`
}

// LocationCondition 地理位置条件
type LocationCondition struct {
	AllowedCountries []string `json:"allowed_countries"`
}

// RiskCondition 风险分数条件
type RiskCondition struct {
	Threshold float64 `json:"threshold"`
	Min       float64 `json:"min,omitempty"`
	Max       float64 `json:"max,omitempty"`
}

// Condition 规则条件（按 Type 区分的变体，仅对应变体字段被设置）
type Condition struct {
	Type     ConditionType `json:"type"`
	Operator Operator      `json:"operator"`

	Pattern    *PatternCondition         `json:"pattern,omitempty"`
	Permission *PermissionCheckCondition `json:"permission,omitempty"`
	Time       *TimeCondition            `json:"time,omitempty"`
	Location   *LocationCondition        `json:"location,omitempty"`
	Risk       *RiskCondition            `json:"risk,omitempty"`
}

// Escalation 规则升级配置：时间窗口内违规次数达到阈值后追加执行动作
type Escalation struct {
	Threshold         int           `json:"threshold"`
	TimeWindow        time.Duration `json:"time_window"`
	Action            ActionType    `json:"action"`
	NotificationRoles []string      `json:"notification_roles"`
}

// Action 规则动作
type Action struct {
	Type          ActionType        `json:"type"`
	ApproverRoles []string          `json:"approver_roles,omitempty"`
	Channels      []string          `json:"channels,omitempty"`
	Parameters    map[string]string `json:"parameters,omitempty"`
	Escalation    *Escalation       `json:"escalation,omitempty"`
}

// SecurityRule 安全规则
type SecurityRule struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Type       RuleType  `json:"type"`
	Severity   Severity  `json:"severity"`
	Condition  Condition `json:"condition"`
	Action     Action    `json:"action"`
	IsEnabled  bool      `json:"is_enabled"`
	Exceptions []string  `json:"exceptions,omitempty"`
}

// Framework 合规框架
type Framework string

const (
	FrameworkSOC2     Framework = "SOC2"
	FrameworkGDPR     Framework = "GDPR"
	FrameworkHIPAA    Framework = "HIPAA"
	FrameworkISO27001 Framework = "ISO27001"
	FrameworkPCIDSS   Framework = "PCI_DSS"
	FrameworkCustom   Framework = "CUSTOM"
)

// ComplianceStatus 合规状态
type ComplianceStatus string

const (
	ComplianceStatusCompliant    ComplianceStatus = "compliant"
	ComplianceStatusNonCompliant ComplianceStatus = "non_compliant"
	ComplianceStatusPending      ComplianceStatus = "pending"
)

// ComplianceRequirement 合规要求
type ComplianceRequirement struct {
	ID                  string           `json:"id"`
	Framework           Framework        `json:"framework"`
	ControlID           string           `json:"control_id"`
	Requirements        []string         `json:"requirements"`
	ImplementedControls []string         `json:"implemented_controls"`
	AuditFrequency      time.Duration    `json:"audit_frequency"`
	Status              ComplianceStatus `json:"status"`
}

// AuditSettings 审计配置
type AuditSettings struct {
	RetentionDays       int            `json:"retention_days"`
	LogLevel            string         `json:"log_level"`
	RealTimeMonitoring  bool           `json:"real_time_monitoring"`
	AlertThresholds     map[string]int `json:"alert_thresholds,omitempty"`
	EncryptionAlgorithm string         `json:"encryption_algorithm"`
	KeyRotationDays     int            `json:"key_rotation_days"`
	BackupEnabled       bool           `json:"backup_enabled"`
	BackupFrequency     string         `json:"backup_frequency"`
}

// SecurityPolicy 安全策略：规则、合规要求与审计配置的集合
type SecurityPolicy struct {
	ID             string                  `json:"id"`
	Name           string                  `json:"name"`
	Version        int                     `json:"version"`
	OrganizationID string                  `json:"organization_id"`
	IsActive       bool                    `json:"is_active"`
	Rules          []SecurityRule          `json:"rules"`
	Compliance     []ComplianceRequirement `json:"compliance"`
	AuditSettings  AuditSettings           `json:"audit_settings"`
	CreatedAt      time.Time               `json:"created_at"`
	UpdatedAt      time.Time               `json:"updated_at"`
}
