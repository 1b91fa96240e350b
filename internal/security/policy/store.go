package policy

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/kashguard/go-sentinel/internal/security/notify"
	"github.com/kashguard/go-sentinel/internal/security/storage"
	"github.com/kashguard/go-sentinel/internal/security/types"
)

var (
	ErrPolicyNotFound = errors.New("policy not found")
	ErrInvalidPolicy  = errors.New("invalid policy")
)

// Store 策略管理服务接口（组合其余组件的根对象）
type Store interface {
	Initialize(ctx context.Context, organizationID string) error
	Create(ctx context.Context, policy *types.SecurityPolicy) (*types.SecurityPolicy, error)
	Update(ctx context.Context, policyID string, patch *Patch) (*types.SecurityPolicy, error)
	Get(ctx context.Context, policyID string) (*types.SecurityPolicy, error)
	List(ctx context.Context, activeOnly bool) ([]*types.SecurityPolicy, error)
}

// Patch 策略更新补丁，nil 字段保持不变
type Patch struct {
	Name          *string
	IsActive      *bool
	Rules         *[]types.SecurityRule
	Compliance    *[]types.ComplianceRequirement
	AuditSettings *types.AuditSettings
}

// store 策略管理服务实现
type store struct {
	backend  storage.Store
	notifier *notify.Notifier
}

// NewStore 创建新的策略管理服务
//
//nolint:ireturn // returning interface is intentional for abstraction
func NewStore(backend storage.Store, notifier *notify.Notifier) Store {
	return &store{backend: backend, notifier: notifier}
}

// Initialize 初始化：不存在任何策略时植入默认基线策略
func (s *store) Initialize(ctx context.Context, organizationID string) error {
	existing, err := s.backend.ListPolicies(ctx, false)
	if err != nil {
		return errors.Wrap(err, "failed to list policies")
	}
	if len(existing) > 0 {
		return nil
	}

	if _, err := s.Create(ctx, DefaultPolicy(organizationID)); err != nil {
		return errors.Wrap(err, "failed to seed default policy")
	}

	log.Info().Str("organization_id", organizationID).Msg("Seeded default security policy")
	return nil
}

// Create 创建策略：校验必填字段，分配 ID 与时间戳，发布 policy_created
func (s *store) Create(ctx context.Context, policy *types.SecurityPolicy) (*types.SecurityPolicy, error) {
	if err := validate(policy); err != nil {
		return nil, err
	}

	now := time.Now()
	policy.ID = "pol-" + uuid.New().String()
	policy.Version = 1
	policy.CreatedAt = now
	policy.UpdatedAt = now

	if err := s.backend.SavePolicy(ctx, policy); err != nil {
		return nil, errors.Wrap(err, "failed to save policy")
	}

	s.notifier.Publish(notify.TopicPolicyCreated, policy)
	return policy, nil
}

// Update 合并补丁并保存：版本递增，更新时间戳，发布 policy_updated
func (s *store) Update(ctx context.Context, policyID string, patch *Patch) (*types.SecurityPolicy, error) {
	policy, err := s.Get(ctx, policyID)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		policy.Name = *patch.Name
	}
	if patch.IsActive != nil {
		policy.IsActive = *patch.IsActive
	}
	if patch.Rules != nil {
		policy.Rules = *patch.Rules
	}
	if patch.Compliance != nil {
		policy.Compliance = *patch.Compliance
	}
	if patch.AuditSettings != nil {
		policy.AuditSettings = *patch.AuditSettings
	}

	if err := validate(policy); err != nil {
		return nil, err
	}

	policy.Version++
	policy.UpdatedAt = time.Now()

	if err := s.backend.UpdatePolicy(ctx, policyID, policy); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errors.Wrapf(ErrPolicyNotFound, "%s", policyID)
		}
		return nil, errors.Wrap(err, "failed to update policy")
	}

	s.notifier.Publish(notify.TopicPolicyUpdated, policy)
	return policy, nil
}

// Get 获取策略
func (s *store) Get(ctx context.Context, policyID string) (*types.SecurityPolicy, error) {
	policy, err := s.backend.GetPolicy(ctx, policyID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errors.Wrapf(ErrPolicyNotFound, "%s", policyID)
		}
		return nil, errors.Wrap(err, "failed to get policy")
	}
	return policy, nil
}

// List 列出策略，activeOnly 时仅返回启用的策略
func (s *store) List(ctx context.Context, activeOnly bool) ([]*types.SecurityPolicy, error) {
	policies, err := s.backend.ListPolicies(ctx, activeOnly)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list policies")
	}
	return policies, nil
}

func validate(policy *types.SecurityPolicy) error {
	if policy == nil {
		return errors.Wrap(ErrInvalidPolicy, "policy is nil")
	}
	if policy.Name == "" {
		return errors.Wrap(ErrInvalidPolicy, "name is required")
	}
	if policy.OrganizationID == "" {
		return errors.Wrap(ErrInvalidPolicy, "organization_id is required")
	}

	for i := range policy.Rules {
		if err := validateRule(&policy.Rules[i]); err != nil {
			return errors.Wrapf(err, "rule %s", policy.Rules[i].ID)
		}
	}
	return nil
}

// validateRule 确保条件变体与声明的类型一致（仅对应变体字段被设置）
func validateRule(rule *types.SecurityRule) error {
	if rule.ID == "" {
		return errors.Wrap(ErrInvalidPolicy, "rule id is required")
	}

	switch rule.Severity {
	case types.SeverityLow, types.SeverityMedium, types.SeverityHigh, types.SeverityCritical:
	default:
		return errors.Wrapf(ErrInvalidPolicy, "unknown severity %q", rule.Severity)
	}

	cond := rule.Condition
	switch cond.Type {
	case types.ConditionPatternMatch:
		if cond.Pattern == nil || len(cond.Pattern.Patterns) == 0 {
			return errors.Wrap(ErrInvalidPolicy, "pattern_match condition requires patterns")
		}
	case types.ConditionPermissionCheck:
		if cond.Permission == nil || cond.Permission.Resource == "" || cond.Permission.Action == "" {
			return errors.Wrap(ErrInvalidPolicy, "permission_check condition requires resource and action")
		}
	case types.ConditionTimeBased:
		if cond.Time == nil {
			return errors.Wrap(ErrInvalidPolicy, "time_based condition requires a time window")
		}
	case types.ConditionLocationBased:
		if cond.Location == nil {
			return errors.Wrap(ErrInvalidPolicy, "location_based condition requires a location")
		}
	case types.ConditionRiskScore:
		if cond.Risk == nil {
			return errors.Wrap(ErrInvalidPolicy, "risk_score condition requires a threshold")
		}
	default:
		return errors.Wrapf(ErrInvalidPolicy, "unknown condition type %q", cond.Type)
	}

	switch rule.Action.Type {
	case types.ActionBlock, types.ActionWarn, types.ActionLog,
		types.ActionRequireApproval, types.ActionQuarantine, types.ActionNotify:
	default:
		return errors.Wrapf(ErrInvalidPolicy, "unknown action type %q", rule.Action.Type)
	}

	if esc := rule.Action.Escalation; esc != nil {
		if esc.Threshold <= 0 || esc.TimeWindow <= 0 {
			return errors.Wrap(ErrInvalidPolicy, "escalation requires a positive threshold and time window")
		}
	}
	return nil
}
