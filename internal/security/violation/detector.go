package violation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/kashguard/go-sentinel/internal/metrics"
	"github.com/kashguard/go-sentinel/internal/security/access"
	"github.com/kashguard/go-sentinel/internal/security/notify"
	"github.com/kashguard/go-sentinel/internal/security/policy"
	"github.com/kashguard/go-sentinel/internal/security/storage"
	"github.com/kashguard/go-sentinel/internal/security/types"
)

// ErrActionFailed 规则动作执行失败；违规记录保持 open 供人工跟进
var ErrActionFailed = errors.New("violation action failed")

// Detector 违规检测服务接口
// 实现 audit.ViolationChecker，每个新事件同步回放全部启用规则
type Detector interface {
	CheckForViolations(ctx context.Context, event *types.SecurityEvent) error
	Get(ctx context.Context, violationID string) (*types.SecurityViolation, error)
	List(ctx context.Context, filter *storage.ViolationFilter) ([]*types.SecurityViolation, error)
}

// detector 违规检测服务实现
type detector struct {
	store     storage.Store
	policies  policy.Store
	evaluator access.Evaluator
	executor  ActionExecutor
	notifier  *notify.Notifier
	now       func() time.Time
}

// NewDetector 创建新的违规检测服务
//
//nolint:ireturn // returning interface is intentional for abstraction
func NewDetector(
	store storage.Store,
	policies policy.Store,
	evaluator access.Evaluator,
	executor ActionExecutor,
	notifier *notify.Notifier,
) Detector {
	return &detector{
		store:     store,
		policies:  policies,
		evaluator: evaluator,
		executor:  executor,
		notifier:  notifier,
		now:       time.Now,
	}
}

// CheckForViolations 对事件回放每个启用策略的每条启用规则
func (d *detector) CheckForViolations(ctx context.Context, event *types.SecurityEvent) error {
	policies, err := d.policies.List(ctx, true)
	if err != nil {
		return errors.Wrap(err, "failed to list active policies")
	}

	for _, pol := range policies {
		for i := range pol.Rules {
			rule := &pol.Rules[i]
			if !rule.IsEnabled || d.exempted(rule, event) {
				continue
			}
			matched, err := d.conditionMatches(ctx, &rule.Condition, event)
			if err != nil {
				log.Error().Err(err).Str("rule_id", rule.ID).Msg("Rule condition evaluation failed")
				continue
			}
			if !matched {
				continue
			}
			if err := d.recordViolation(ctx, rule, event); err != nil {
				return errors.Wrapf(err, "rule %s", rule.ID)
			}
		}
	}
	return nil
}

// Get 获取违规记录
func (d *detector) Get(ctx context.Context, violationID string) (*types.SecurityViolation, error) {
	violation, err := d.store.GetViolation(ctx, violationID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get violation")
	}
	return violation, nil
}

// List 按过滤器列出违规记录
func (d *detector) List(ctx context.Context, filter *storage.ViolationFilter) ([]*types.SecurityViolation, error) {
	violations, err := d.store.ListViolations(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list violations")
	}
	return violations, nil
}

func (d *detector) exempted(rule *types.SecurityRule, event *types.SecurityEvent) bool {
	for _, id := range rule.Exceptions {
		if id == event.UserID {
			return true
		}
	}
	return false
}

// conditionMatches 按条件类型判定事件是否命中规则
func (d *detector) conditionMatches(ctx context.Context, cond *types.Condition, event *types.SecurityEvent) (bool, error) {
	switch cond.Type {
	case types.ConditionPatternMatch:
		return matchPatterns(cond, event), nil
	case types.ConditionPermissionCheck:
		return d.matchPermissionCheck(ctx, cond, event)
	case types.ConditionTimeBased:
		return matchTimeWindow(cond.Time, event.Timestamp), nil
	case types.ConditionLocationBased:
		return matchLocation(cond.Location, event.Geolocation), nil
	case types.ConditionRiskScore:
		return matchRiskScore(cond, event.RiskScore), nil
	default:
		return false, errors.Errorf("unknown condition type %q", cond.Type)
	}
}

// matchPatterns 任一关键字命中序列化 metadata（大小写不敏感）即匹配
func matchPatterns(cond *types.Condition, event *types.SecurityEvent) bool {
	if cond.Pattern == nil || event.Metadata == nil {
		return false
	}
	serialized, err := json.Marshal(event.Metadata)
	if err != nil {
		return false
	}
	haystack := strings.ToLower(string(serialized))

	for _, pattern := range cond.Pattern.Patterns {
		switch cond.Operator {
		case types.OperatorMatches:
			re, err := regexp.Compile("(?i)" + pattern)
			if err != nil {
				continue
			}
			if re.MatchString(haystack) {
				return true
			}
		case types.OperatorEquals:
			if haystack == strings.ToLower(pattern) {
				return true
			}
		default:
			// contains 为默认语义
			if strings.Contains(haystack, strings.ToLower(pattern)) {
				return true
			}
		}
	}
	return false
}

// matchPermissionCheck 复查授权，拒绝即命中（行为人缺少所需授权）
func (d *detector) matchPermissionCheck(ctx context.Context, cond *types.Condition, event *types.SecurityEvent) (bool, error) {
	if cond.Permission == nil {
		return false, nil
	}
	accessCtx := &types.AccessContext{
		SessionID:         event.SessionID,
		OrganizationID:    event.OrganizationID,
		Geolocation:       event.Geolocation,
		DeviceFingerprint: event.DeviceFingerprint,
	}
	decision, err := d.evaluator.Evaluate(ctx, event.UserID, cond.Permission.Resource, cond.Permission.Action, accessCtx)
	if err != nil {
		return false, errors.Wrap(err, "permission re-check failed")
	}
	return !decision.Granted, nil
}

func matchTimeWindow(window *types.TimeCondition, timestamp time.Time) bool {
	if window == nil {
		return false
	}
	hour := timestamp.Hour()
	if window.StartHour <= window.EndHour {
		return hour >= window.StartHour && hour < window.EndHour
	}
	// 窗口跨午夜
	return hour >= window.StartHour || hour < window.EndHour
}

// matchLocation 来源国不在允许列表内即命中
func matchLocation(location *types.LocationCondition, geo *types.Geolocation) bool {
	if location == nil || geo == nil || geo.Country == "" {
		return false
	}
	for _, country := range location.AllowedCountries {
		if strings.EqualFold(country, geo.Country) {
			return false
		}
	}
	return true
}

func matchRiskScore(cond *types.Condition, score float64) bool {
	risk := cond.Risk
	if risk == nil {
		return false
	}
	switch cond.Operator {
	case types.OperatorGreaterThan:
		return score > risk.Threshold
	case types.OperatorLessThan:
		return score < risk.Threshold
	case types.OperatorEquals:
		return score == risk.Threshold
	case types.OperatorInRange:
		return score >= risk.Min && score <= risk.Max
	default:
		return false
	}
}

// recordViolation 创建违规记录、评估影响、采集证据并执行规则动作
func (d *detector) recordViolation(ctx context.Context, rule *types.SecurityRule, event *types.SecurityEvent) error {
	violation := &types.SecurityViolation{
		ID:               "vio-" + uuid.New().String(),
		EventID:          event.ID,
		RuleID:           rule.ID,
		Severity:         rule.Severity,
		Status:           types.ViolationStatusOpen,
		RemediationSteps: remediationSteps(rule.Type),
		Impact:           assessImpact(rule, event),
		Evidence:         []types.Evidence{d.collectEvidence(event)},
		DetectedAt:       d.now(),
	}

	if err := d.store.SaveViolation(ctx, violation); err != nil {
		return errors.Wrap(err, "failed to save violation")
	}

	metrics.ViolationsDetected.WithLabelValues(string(rule.Severity)).Inc()
	d.notifier.Publish(notify.TopicSecurityViolation, violation)
	log.Warn().
		Str("violation_id", violation.ID).
		Str("rule_id", rule.ID).
		Str("event_id", event.ID).
		Str("severity", string(rule.Severity)).
		Msg("Security violation detected")

	// 动作失败不回滚违规记录，保持 open 供人工跟进
	if err := d.executeAction(ctx, &rule.Action, event, violation); err != nil {
		log.Error().Err(err).Str("violation_id", violation.ID).Msg("Violation action failed")
	}

	if rule.Action.Escalation != nil {
		d.escalate(ctx, rule, event, violation)
	}
	return nil
}

func (d *detector) executeAction(ctx context.Context, action *types.Action, event *types.SecurityEvent, violation *types.SecurityViolation) error {
	var err error
	switch action.Type {
	case types.ActionBlock:
		err = d.executor.Block(ctx, event, violation)
	case types.ActionWarn:
		err = d.executor.Warn(ctx, event, violation)
	case types.ActionRequireApproval:
		err = d.executor.RequireApproval(ctx, event, violation, action.ApproverRoles)
	case types.ActionQuarantine:
		err = d.executor.Quarantine(ctx, event, violation)
	case types.ActionNotify:
		err = d.executor.Notify(ctx, event, violation, action.Channels)
	case types.ActionLog:
		log.Info().Str("violation_id", violation.ID).Str("event_id", event.ID).Msg("Violation logged")
	default:
		return errors.Wrapf(ErrActionFailed, "unknown action type %q", action.Type)
	}
	if err != nil {
		return errors.Wrap(ErrActionFailed, err.Error())
	}
	return nil
}

// escalate 统计升级窗口内该规则的违规次数，达到阈值后追加执行升级动作
func (d *detector) escalate(ctx context.Context, rule *types.SecurityRule, event *types.SecurityEvent, violation *types.SecurityViolation) {
	esc := rule.Action.Escalation
	since := d.now().Add(-esc.TimeWindow)

	count, err := d.store.CountViolationsSince(ctx, rule.ID, since)
	if err != nil {
		log.Error().Err(err).Str("rule_id", rule.ID).Msg("Escalation count failed")
		return
	}
	if count < esc.Threshold {
		return
	}

	log.Warn().
		Str("rule_id", rule.ID).
		Int("count", count).
		Int("threshold", esc.Threshold).
		Strs("notification_roles", esc.NotificationRoles).
		Msg("Violation threshold reached, escalating")

	escalated := types.Action{Type: esc.Action, Channels: esc.NotificationRoles}
	if err := d.executeAction(ctx, &escalated, event, violation); err != nil {
		log.Error().Err(err).Str("rule_id", rule.ID).Msg("Escalation action failed")
	}
}

func (d *detector) collectEvidence(event *types.SecurityEvent) types.Evidence {
	serialized, err := json.Marshal(event)
	if err != nil {
		serialized = []byte(event.ID)
	}
	digest := sha256.Sum256(serialized)

	return types.Evidence{
		Data: string(serialized),
		Hash: hex.EncodeToString(digest[:]),
		ChainOfCustody: []types.CustodyEntry{
			{Actor: "violation-detector", Action: "collected", Timestamp: d.now()},
		},
	}
}

func assessImpact(rule *types.SecurityRule, event *types.SecurityEvent) types.Impact {
	impact := types.Impact{
		DataCompromised: rule.Type == types.RuleTypeSensitiveData,
		SystemsAffected: []string{event.Resource},
		UsersImpacted:   1,
	}

	switch rule.Severity {
	case types.SeverityCritical:
		impact.EstimatedCost = 10000
	case types.SeverityHigh:
		impact.EstimatedCost = 5000
	default:
		impact.EstimatedCost = 1000
	}

	if rule.Type == types.RuleTypeSensitiveData {
		impact.ComplianceImplications = []string{string(types.FrameworkGDPR), string(types.FrameworkSOC2)}
	}
	return impact
}

// remediationSteps 通用步骤加按规则类型追加的专项步骤
func remediationSteps(ruleType types.RuleType) []string {
	steps := []string{
		"Review the triggering event",
		"Verify the actor's authorization",
		"Document findings",
	}

	switch ruleType {
	case types.RuleTypeSensitiveData, types.RuleTypeDataAccess:
		steps = append(steps, "Review data access logs", "Rotate exposed credentials")
	case types.RuleTypeFileOperations:
		steps = append(steps, "Verify file system integrity", "Restore affected files from backup")
	case types.RuleTypeCodeExecution:
		steps = append(steps, "Inspect the executed code", "Scan the host for persistence")
	case types.RuleTypeNetworkAccess:
		steps = append(steps, "Review firewall rules", "Inspect connection logs")
	case types.RuleTypeAuthentication:
		steps = append(steps, "Force a credential reset", "Review recent sign-in activity")
	case types.RuleTypeAuthorization:
		steps = append(steps, "Review role assignments")
	case types.RuleTypeCompliance:
		steps = append(steps, "Notify the compliance officer")
	case types.RuleTypeAudit:
		steps = append(steps, "Verify audit trail integrity")
	}
	return steps
}
