package types

import (
	"time"
)

// Outcome 安全事件结果
type Outcome string

const (
	OutcomeAllowed          Outcome = "allowed"
	OutcomeBlocked          Outcome = "blocked"
	OutcomeRequiresApproval Outcome = "requires_approval"
)

// Geolocation 请求来源地理信息（由外部会话子系统提供）
type Geolocation struct {
	Country     string `json:"country,omitempty"`
	Region      string `json:"region,omitempty"`
	City        string `json:"city,omitempty"`
	VPNDetected bool   `json:"vpn_detected"`
}

// AccessContext 请求上下文（评分与条件判定的输入）
type AccessContext struct {
	SessionID         string       `json:"session_id,omitempty"`
	OrganizationID    string       `json:"organization_id,omitempty"`
	IPAddress         string       `json:"ip_address,omitempty"`
	MFAVerified       bool         `json:"mfa_verified"`
	Geolocation       *Geolocation `json:"geolocation,omitempty"`
	DeviceFingerprint string       `json:"device_fingerprint,omitempty"`
}

// EncryptedEnvelope 认证加密信封，替换事件中的敏感 metadata
type EncryptedEnvelope struct {
	Ciphertext string `json:"ciphertext"`
	AuthTag    string `json:"auth_tag"`
	KeyID      string `json:"key_id"`
	Algorithm  string `json:"algorithm"`
}

// SecurityEvent 安全事件（不可变，仅加密时替换 metadata）
type SecurityEvent struct {
	ID                string                 `json:"id"`
	Timestamp         time.Time              `json:"timestamp"`
	Type              string                 `json:"type"`
	Severity          Severity               `json:"severity"`
	UserID            string                 `json:"user_id,omitempty"`
	SessionID         string                 `json:"session_id,omitempty"`
	OrganizationID    string                 `json:"organization_id,omitempty"`
	Resource          string                 `json:"resource"`
	Action            string                 `json:"action"`
	Outcome           Outcome                `json:"outcome"`
	RiskScore         float64                `json:"risk_score"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
	EncryptedMetadata *EncryptedEnvelope     `json:"encrypted_metadata,omitempty"`
	Geolocation       *Geolocation           `json:"geolocation,omitempty"`
	DeviceFingerprint string                 `json:"device_fingerprint,omitempty"`
}

// ViolationStatus 违规处理状态
type ViolationStatus string

const (
	ViolationStatusOpen          ViolationStatus = "open"
	ViolationStatusInvestigating ViolationStatus = "investigating"
	ViolationStatusResolved      ViolationStatus = "resolved"
	ViolationStatusFalsePositive ViolationStatus = "false_positive"
)

// CustodyEntry 证据保管链条目
type CustodyEntry struct {
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

// Evidence 违规证据
type Evidence struct {
	Data           string         `json:"data"`
	Hash           string         `json:"hash"`
	ChainOfCustody []CustodyEntry `json:"chain_of_custody"`
}

// Impact 违规影响评估
type Impact struct {
	DataCompromised        bool     `json:"data_compromised"`
	SystemsAffected        []string `json:"systems_affected"`
	UsersImpacted          int      `json:"users_impacted"`
	EstimatedCost          float64  `json:"estimated_cost"`
	ComplianceImplications []string `json:"compliance_implications,omitempty"`
}

// SecurityViolation 安全违规：某条规则对某个事件的命中记录
type SecurityViolation struct {
	ID               string          `json:"id"`
	EventID          string          `json:"event_id"`
	RuleID           string          `json:"rule_id"`
	Severity         Severity        `json:"severity"`
	Status           ViolationStatus `json:"status"`
	RemediationSteps []string        `json:"remediation_steps"`
	Impact           Impact          `json:"impact"`
	Evidence         []Evidence      `json:"evidence"`
	DetectedAt       time.Time       `json:"detected_at"`
}
