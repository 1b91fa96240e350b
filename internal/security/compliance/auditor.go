package compliance

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/kashguard/go-sentinel/internal/metrics"
	"github.com/kashguard/go-sentinel/internal/security/audit"
	"github.com/kashguard/go-sentinel/internal/security/policy"
	"github.com/kashguard/go-sentinel/internal/security/types"
)

const compliantThreshold = 80

// Finding 不合规要求的详情
type Finding struct {
	RequirementID string                 `json:"requirement_id"`
	Framework     types.Framework        `json:"framework"`
	ControlID     string                 `json:"control_id"`
	Severity      types.Severity         `json:"severity"`
	Status        types.ComplianceStatus `json:"status"`
	Detail        string                 `json:"detail"`
	Remediation   string                 `json:"remediation"`
}

// Report 合规检查报告
type Report struct {
	Framework       types.Framework        `json:"framework,omitempty"`
	RanAt           time.Time              `json:"ran_at"`
	TotalChecks     int                    `json:"total_checks"`
	Passed          int                    `json:"passed"`
	Failed          int                    `json:"failed"`
	Score           int                    `json:"score"`
	OverallStatus   types.ComplianceStatus `json:"overall_status"`
	Findings        []Finding              `json:"findings"`
	Recommendations []string               `json:"recommendations"`
}

// Auditor 合规审计服务接口
type Auditor interface {
	RunComplianceCheck(ctx context.Context, framework types.Framework) (*Report, error)
}

// auditor 合规审计服务实现
type auditor struct {
	policies policy.Store
	logger   audit.Logger
	now      func() time.Time
}

// NewAuditor 创建新的合规审计服务
//
//nolint:ireturn // returning interface is intentional for abstraction
func NewAuditor(policies policy.Store, logger audit.Logger) Auditor {
	return &auditor{
		policies: policies,
		logger:   logger,
		now:      time.Now,
	}
}

// RunComplianceCheck 评估启用策略的全部合规要求（可按框架过滤）
// score = round(passed/total*100)，无检查项时为 100；score >= 80 即 compliant
func (a *auditor) RunComplianceCheck(ctx context.Context, framework types.Framework) (*Report, error) {
	policies, err := a.policies.List(ctx, true)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list active policies")
	}

	report := &Report{
		Framework:       framework,
		RanAt:           a.now(),
		Findings:        []Finding{},
		Recommendations: []string{},
	}

	for _, pol := range policies {
		for i := range pol.Compliance {
			req := &pol.Compliance[i]
			if framework != "" && req.Framework != framework {
				continue
			}

			report.TotalChecks++
			finding := evaluateRequirement(req)
			if finding == nil {
				report.Passed++
				continue
			}

			report.Failed++
			report.Findings = append(report.Findings, *finding)
			report.Recommendations = append(report.Recommendations, finding.Remediation)
		}
	}

	report.Score = 100
	if report.TotalChecks > 0 {
		report.Score = int(math.Round(float64(report.Passed) / float64(report.TotalChecks) * 100))
	}
	report.OverallStatus = types.ComplianceStatusNonCompliant
	if report.Score >= compliantThreshold {
		report.OverallStatus = types.ComplianceStatusCompliant
	}

	metrics.ComplianceScore.Set(float64(report.Score))
	a.logRun(ctx, report)

	return report, nil
}

// evaluateRequirement 合规即返回 nil，否则返回不合规详情
// 每条要求都需至少一个已实现控制覆盖
func evaluateRequirement(req *types.ComplianceRequirement) *Finding {
	if len(req.ImplementedControls) > 0 && len(req.ImplementedControls) >= len(req.Requirements) {
		return nil
	}

	missing := len(req.Requirements) - len(req.ImplementedControls)
	if missing < 0 {
		missing = 0
	}

	return &Finding{
		RequirementID: req.ID,
		Framework:     req.Framework,
		ControlID:     req.ControlID,
		Severity:      findingSeverity(req.Framework),
		Status:        types.ComplianceStatusNonCompliant,
		Detail: fmt.Sprintf("%s control %s has %d requirement(s) without an implemented control",
			req.Framework, req.ControlID, missing),
		Remediation: fmt.Sprintf("Implement controls covering all requirements of %s %s",
			req.Framework, req.ControlID),
	}
}

func findingSeverity(framework types.Framework) types.Severity {
	switch framework {
	case types.FrameworkGDPR, types.FrameworkHIPAA, types.FrameworkPCIDSS:
		return types.SeverityCritical
	case types.FrameworkSOC2, types.FrameworkISO27001:
		return types.SeverityHigh
	default:
		return types.SeverityMedium
	}
}

func (a *auditor) logRun(ctx context.Context, report *Report) {
	riskScore := 0.0
	if _, err := a.logger.LogSecurityEvent(ctx, &audit.EventInput{
		Type:     "compliance_check",
		Severity: types.SeverityLow,
		Resource: "compliance",
		Action:   "audit",
		Outcome:  types.OutcomeAllowed,
		Metadata: map[string]interface{}{
			"framework":      string(report.Framework),
			"total_checks":   report.TotalChecks,
			"passed":         report.Passed,
			"failed":         report.Failed,
			"score":          report.Score,
			"overall_status": string(report.OverallStatus),
		},
		RiskScore: &riskScore,
	}); err != nil {
		log.Error().Err(err).Msg("Failed to log compliance check")
	}
}
