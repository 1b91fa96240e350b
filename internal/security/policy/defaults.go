package policy

import (
	"time"

	"github.com/kashguard/go-sentinel/internal/security/types"
)

const (
	// RuleSensitiveDataAccess 默认策略中的敏感数据访问规则 ID
	RuleSensitiveDataAccess = "prevent-sensitive-data-access"
	// RuleDangerousFileOperations 默认策略中的危险文件操作规则 ID
	RuleDangerousFileOperations = "block-dangerous-file-operations"

	defaultRetentionDays   = 2555 // 7 年
	defaultKeyRotationDays = 90
)

// DefaultPolicy 默认基线策略：敏感数据与危险文件操作两条示例规则、
// SOC2/GDPR 合规要求与默认审计配置
func DefaultPolicy(organizationID string) *types.SecurityPolicy {
	return &types.SecurityPolicy{
		Name:           "Baseline Security Policy",
		OrganizationID: organizationID,
		IsActive:       true,
		Rules: []types.SecurityRule{
			{
				ID:       RuleSensitiveDataAccess,
				Name:     "Sensitive data access",
				Type:     types.RuleTypeSensitiveData,
				Severity: types.SeverityCritical,
				Condition: types.Condition{
					Type:     types.ConditionPatternMatch,
					Operator: types.OperatorContains,
					Pattern: &types.PatternCondition{
						Patterns: []string{"password", "secret", "key", "token"},
					},
				},
				Action: types.Action{
					Type:          types.ActionRequireApproval,
					ApproverRoles: []string{"security_admin"},
					Escalation: &types.Escalation{
						Threshold:         3,
						TimeWindow:        time.Hour,
						Action:            types.ActionNotify,
						NotificationRoles: []string{"security_admin", "compliance_officer"},
					},
				},
				IsEnabled: true,
			},
			{
				ID:       RuleDangerousFileOperations,
				Name:     "Dangerous file operation",
				Type:     types.RuleTypeFileOperations,
				Severity: types.SeverityHigh,
				Condition: types.Condition{
					Type:     types.ConditionPatternMatch,
					Operator: types.OperatorContains,
					Pattern: &types.PatternCondition{
						Patterns: []string{"rm -rf", "format c:", "del /f", "dd if=", "mkfs"},
					},
				},
				Action: types.Action{
					Type: types.ActionBlock,
				},
				IsEnabled: true,
			},
		},
		Compliance: []types.ComplianceRequirement{
			{
				ID:           "soc2-access-control",
				Framework:    types.FrameworkSOC2,
				ControlID:    "CC6.1",
				Requirements: []string{"logical access controls", "role-based permissions"},
				ImplementedControls: []string{
					"rbac_permissions",
					"audit_logging",
					"mfa_conditions",
				},
				AuditFrequency: 30 * 24 * time.Hour,
				Status:         types.ComplianceStatusPending,
			},
			{
				ID:           "gdpr-data-protection",
				Framework:    types.FrameworkGDPR,
				ControlID:    "Art.25",
				Requirements: []string{"data protection by design", "encryption of personal data"},
				ImplementedControls: []string{
					"metadata_encryption",
					"retention_policy",
				},
				AuditFrequency: 90 * 24 * time.Hour,
				Status:         types.ComplianceStatusPending,
			},
		},
		AuditSettings: types.AuditSettings{
			RetentionDays:      defaultRetentionDays,
			LogLevel:           "detailed",
			RealTimeMonitoring: true,
			AlertThresholds: map[string]int{
				"critical_violations": 1,
				"high_violations":     5,
				"failed_logins":       10,
			},
			EncryptionAlgorithm: "AES-256-GCM",
			KeyRotationDays:     defaultKeyRotationDays,
			BackupEnabled:       true,
			BackupFrequency:     "daily",
		},
	}
}
